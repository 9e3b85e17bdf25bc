package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/wrisc/scfpipe/internal/core"
	"github.com/wrisc/scfpipe/internal/workbook"
)

func assembleFixture(t *testing.T, opts AssemblerOptions) *Assembler {
	t.Helper()
	tables, links := extractFixture(t)
	return NewAssembler(tables, links, testRegistry(t), opts)
}

func TestAssemble_Document(t *testing.T) {
	a := assembleFixture(t, AssemblerOptions{})

	doc, err := a.Assemble("GOV-01")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if doc["_id"] != "GOV-01" || doc["control_id"] != "GOV-01" {
		t.Errorf("identifiers = %v / %v", doc["_id"], doc["control_id"])
	}
	if doc["title"] != "Security & Privacy Governance Program" {
		t.Errorf("title = %v", doc["title"])
	}

	domain, ok := doc["domain"].(map[string]any)
	if !ok {
		t.Fatalf("domain = %T, want map", doc["domain"])
	}
	if domain["identifier"] != "GOV" || domain["name"] != "Security & Privacy Governance" {
		t.Errorf("domain = %v", domain)
	}

	fw, ok := doc["framework_mappings"].(map[string]any)
	if !ok {
		t.Fatalf("framework_mappings = %T, want map", doc["framework_mappings"])
	}
	if got := fw["nist_800_53_rev5"]; !reflect.DeepEqual(got, []string{"PM-1", "PM-2", "pm-3"}) {
		t.Errorf("nist mapping = %v", got)
	}
	if got := fw["iso_27001"]; !reflect.DeepEqual(got, []string{"5.1"}) {
		t.Errorf("iso mapping = %v", got)
	}

	// The cited assessment objective is embedded in full, minus its own
	// identifier bookkeeping fields.
	aos, ok := doc["assessment_objectives"].([]any)
	if !ok || len(aos) != 1 {
		t.Fatalf("assessment_objectives = %v", doc["assessment_objectives"])
	}
	ao := aos[0].(map[string]any)
	if ao["objective"] != "Mechanisms exist" {
		t.Errorf("embedded objective = %v", ao)
	}
	if _, leaked := ao["scf_id"]; leaked {
		t.Error("embedded record should not carry its relationship field")
	}
}

func TestAssemble_ExactFieldSet(t *testing.T) {
	reg := testRegistry(t)
	ext := &workbook.Extraction{Sheets: []workbook.Sheet{
		{
			Name:    "SCF",
			Columns: []string{"SCF #", "SCF Control", "NIST 800-53 R5", "ISO 27001"},
			Rows: []map[string]string{{
				"SCF #":          "GOV-01",
				"SCF Control":    "Security & Privacy Governance Program",
				"NIST 800-53 R5": "PM-1\nPM-2",
				"ISO 27001":      "5.1",
			}},
		},
		{
			Name:    "Domains",
			Columns: []string{"Domain #", "Domain Name"},
			Rows:    []map[string]string{{"Domain #": "GOV", "Domain Name": "Governance"}},
		},
	}}

	n := &Normalizer{Registry: reg}
	tables, err := n.Normalize(ext, NewReport())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	e := &Extractor{Registry: reg}
	links := e.Extract(tables)

	a := NewAssembler(tables, links, reg, AssemblerOptions{
		FrameworkFilter: []string{"nist_800_53_rev5"},
	})
	doc, err := a.Assemble("GOV-01")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	var keys []string
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"_id", "control_id", "domain", "framework_mappings", "title"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("document keys = %v, want exactly %v", keys, want)
	}

	fw := doc["framework_mappings"].(map[string]any)
	if _, filtered := fw["iso_27001"]; filtered {
		t.Error("iso_27001 should be excluded by the framework filter")
	}
	if _, kept := fw["nist_800_53_rev5"]; !kept {
		t.Error("nist_800_53_rev5 should survive the framework filter")
	}
}

func TestAssemble_FilterAcceptsPrefixedKeys(t *testing.T) {
	a := assembleFixture(t, AssemblerOptions{
		FrameworkFilter: []string{"scf_to_nist_800_53_rev5"},
	})
	doc, err := a.Assemble("GOV-01")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	fw := doc["framework_mappings"].(map[string]any)
	if _, ok := fw["nist_800_53_rev5"]; !ok {
		t.Error("prefixed filter key should match its framework")
	}
}

func TestAssemble_UnknownDomainGetsStub(t *testing.T) {
	a := assembleFixture(t, AssemblerOptions{})

	// GOV-02 resolves; fabricate a control whose prefix has no domain row.
	tables, links := extractFixture(t)
	controls, _ := tables.Get(core.EntityControl)
	controls.Append(core.Record{"scf_id": "XYZ-01", "title": "Orphan"})
	a = NewAssembler(tables, links, testRegistry(t), AssemblerOptions{})

	doc, err := a.Assemble("XYZ-01")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	domain := doc["domain"].(map[string]any)
	if domain["identifier"] != "XYZ" || domain["name"] != "Unknown" {
		t.Errorf("domain stub = %v", domain)
	}
}

func TestAssemble_MissingControl(t *testing.T) {
	a := assembleFixture(t, AssemblerOptions{})

	doc, err := a.Assemble("NOPE-01")
	var mce *core.MissingControlError
	if !errors.As(err, &mce) {
		t.Fatalf("error = %v, want *core.MissingControlError", err)
	}
	if mce.ControlID != "NOPE-01" {
		t.Errorf("ControlID = %q", mce.ControlID)
	}
	if doc != nil {
		t.Errorf("doc = %v, want no partial document", doc)
	}
}

func TestAssembleAll_DeterministicOrder(t *testing.T) {
	sequential := assembleFixture(t, AssemblerOptions{Workers: 1})
	parallel := assembleFixture(t, AssemblerOptions{Workers: 8})

	want, err := sequential.AssembleAll(context.Background())
	if err != nil {
		t.Fatalf("AssembleAll(1 worker) error = %v", err)
	}
	got, err := parallel.AssembleAll(context.Background())
	if err != nil {
		t.Fatalf("AssembleAll(8 workers) error = %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("document %d differs between worker counts", i)
		}
	}
	// Master list order.
	if want[0]["_id"] != "GOV-01" || want[1]["_id"] != "GOV-02" {
		t.Errorf("order = %v, %v", want[0]["_id"], want[1]["_id"])
	}
}

func TestAssembleAll_Cancellation(t *testing.T) {
	a := assembleFixture(t, AssemblerOptions{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.AssembleAll(ctx); err == nil {
		t.Error("AssembleAll() with cancelled context should fail")
	}
}
