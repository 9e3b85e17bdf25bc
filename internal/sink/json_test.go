package sink

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wrisc/scfpipe/internal/core"
)

func TestWriteTablesJSON(t *testing.T) {
	dir := t.TempDir()
	if err := WriteTablesJSON(dir, sampleTables()); err != nil {
		t.Fatalf("WriteTablesJSON() error = %v", err)
	}

	var rows []map[string]any
	mustUnmarshal(t, readFile(t, filepath.Join(dir, "control.json")), &rows)
	if len(rows) != 2 {
		t.Fatalf("control.json rows = %d, want 2", len(rows))
	}
	if rows[0]["scf_id"] != "GOV-01" {
		t.Errorf("rows[0].scf_id = %v", rows[0]["scf_id"])
	}

	// Fields absent from a record stay absent in JSON output.
	if _, ok := rows[1]["nist_800_53_rev5"]; ok {
		t.Error("GOV-02 gained a nist_800_53_rev5 field it never had")
	}
}

func TestWriteTablesJSON_EmptyTable(t *testing.T) {
	dir := t.TempDir()
	ts := core.NewTableSet()
	ts.Add(core.NewTable(core.EntityThreat, "threat_id", []string{"threat_id"}))
	if err := WriteTablesJSON(dir, ts); err != nil {
		t.Fatalf("WriteTablesJSON() error = %v", err)
	}

	// An empty table serializes as an empty array, not null.
	got := strings.TrimSpace(readFile(t, filepath.Join(dir, "threat.json")))
	if got != "[]" {
		t.Errorf("threat.json = %q, want []", got)
	}
}

func TestWriteLinksJSON(t *testing.T) {
	dir := t.TempDir()
	if err := WriteLinksJSON(dir, sampleLinks()); err != nil {
		t.Fatalf("WriteLinksJSON() error = %v", err)
	}

	var pairs []struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	mustUnmarshal(t, readFile(t, filepath.Join(dir, SCFRelDir, "scf_to_threat.json")), &pairs)
	if len(pairs) != 2 || pairs[0].Source != "GOV-01" || pairs[0].Target != "MT-1" {
		t.Errorf("scf_to_threat.json pairs = %+v", pairs)
	}

	mustUnmarshal(t, readFile(t, filepath.Join(dir, FrameworkRelDir, "scf_to_nist_800_53_rev5.json")), &pairs)
	if len(pairs) != 1 || pairs[0].Target != "PM-1" {
		t.Errorf("scf_to_nist_800_53_rev5.json pairs = %+v", pairs)
	}
}

func TestWriteDocumentsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "documents.json")
	docs := []core.Document{
		{"_id": "GOV-01", "control_id": "GOV-01", "title": "Governance <Program>"},
		{"_id": "GOV-02", "control_id": "GOV-02"},
	}
	if err := WriteDocumentsJSON(path, docs); err != nil {
		t.Fatalf("WriteDocumentsJSON() error = %v", err)
	}

	raw := readFile(t, path)
	var got []core.Document
	mustUnmarshal(t, raw, &got)
	if len(got) != 2 || got[0]["_id"] != "GOV-01" || got[1]["_id"] != "GOV-02" {
		t.Errorf("documents order = %+v", got)
	}

	// HTML escaping is off so angle brackets survive verbatim.
	if !strings.Contains(raw, "Governance <Program>") {
		t.Errorf("output escaped HTML: %q", raw)
	}
}

func TestWriteDocumentsJSON_Deterministic(t *testing.T) {
	dir := t.TempDir()
	docs := []core.Document{{"b": "2", "a": "1", "c": map[string]any{"y": "2", "x": "1"}}}

	p1 := filepath.Join(dir, "one.json")
	p2 := filepath.Join(dir, "two.json")
	if err := WriteDocumentsJSON(p1, docs); err != nil {
		t.Fatal(err)
	}
	if err := WriteDocumentsJSON(p2, docs); err != nil {
		t.Fatal(err)
	}
	if readFile(t, p1) != readFile(t, p2) {
		t.Error("repeated writes of the same documents differ")
	}
}

func mustUnmarshal(t *testing.T, raw string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		t.Fatalf("unmarshal: %v\nraw: %s", err, raw)
	}
}
