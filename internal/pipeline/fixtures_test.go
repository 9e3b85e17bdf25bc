package pipeline

import (
	"strings"
	"testing"

	"github.com/wrisc/scfpipe/internal/core"
	"github.com/wrisc/scfpipe/internal/registry"
	"github.com/wrisc/scfpipe/internal/workbook"
)

// testRegister is a small column register exercising every rule role: key,
// plain text, forward relationship, framework mapping, and a reverse
// relationship on the assessment-objective sheet.
const testRegister = `raw_column,entity_type,target_field,value_type,delimiter,blank_policy,label,target_entity
SCF #,control,scf_id,text,,,key,
SCF Control,control,title,text,,,,
Threats,control,threat,list,\n,,relationship,threat
NIST 800-53 R5,control,nist_800_53_rev5,list,\n,,framework,
ISO 27001,control,iso_27001,list,\n,,framework,
Domain #,domain,identifier,text,,,key,
Domain Name,domain,name,text,,,,
AO #,assessment_objective,ao_id,text,,,key,
Assessment Objective,assessment_objective,objective,text,,,,
SCF #,assessment_objective,scf_id,list,\n,,relationship,control
@skip_rows,threat,2,,,,,
Threat #,threat,threat_id,text,,,key,
Threat,threat,description,text,,,,
`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse(strings.NewReader(testRegister))
	if err != nil {
		t.Fatalf("parse test register: %v", err)
	}
	return reg
}

// flagRegistry declares a bool-typed column on an auxiliary flags sheet,
// for conversion-failure tests.
func flagRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse(strings.NewReader(
		"raw_column,entity_type,target_field,value_type\n" +
			"Flag,scf_core_flags,flag,bool\n"))
	if err != nil {
		t.Fatalf("parse flag register: %v", err)
	}
	return reg
}

// testExtraction covers the mandatory control and domain sheets plus a
// threat catalog with its junk leading rows already dropped by the loader.
func testExtraction() *workbook.Extraction {
	return &workbook.Extraction{Sheets: []workbook.Sheet{
		{
			Name:    "SCF",
			Columns: []string{"SCF #", "SCF Control", "Threats", "NIST 800-53 R5", "ISO 27001"},
			Rows: []map[string]string{
				{
					"SCF #":          "GOV-01",
					"SCF Control":    "Security & Privacy Governance Program",
					"NIST 800-53 R5": "PM-1\nPM-2\nPM-1\npm-3",
					"ISO 27001":      "5.1",
				},
				{
					"SCF #":       "GOV-02",
					"SCF Control": "Publishing Documentation",
					"Threats":     "MT-1\nMT-9",
				},
				{
					"SCF #":       "GOV-01",
					"SCF Control": "Duplicate row, dropped",
				},
				{
					"SCF #":       "",
					"SCF Control": "Junk footer without identifier",
				},
			},
		},
		{
			Name:    "Domains",
			Columns: []string{"Domain #", "Domain Name"},
			Rows: []map[string]string{
				{"Domain #": "GOV", "Domain Name": "Security & Privacy Governance"},
			},
		},
		{
			Name:    "Threat Catalog",
			Columns: []string{"Threat #", "Threat"},
			Rows: []map[string]string{
				{"Threat #": "MT-1", "Threat": "Drought & Famine"},
			},
		},
		{
			Name:    "Assessment Objectives",
			Columns: []string{"AO #", "Assessment Objective", "SCF #"},
			Rows: []map[string]string{
				{"AO #": "GOV-01-M1", "Assessment Objective": "Mechanisms exist", "SCF #": "GOV-01"},
			},
		},
	}}
}

// normalizeFixture runs the normalizer over the standard extraction.
func normalizeFixture(t *testing.T) (*core.TableSet, *Report) {
	t.Helper()
	report := NewReport()
	n := &Normalizer{Registry: testRegistry(t)}
	tables, err := n.Normalize(testExtraction(), report)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return tables, report
}
