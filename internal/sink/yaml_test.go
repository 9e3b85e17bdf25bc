package sink

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/wrisc/scfpipe/internal/core"
)

func riskControls() *core.Table {
	t := core.NewTable(core.EntityControl, "scf_id",
		[]string{"scf_id", fieldDomain, fieldName, fieldDescription, fieldAnnotation})
	t.Append(core.Record{
		"scf_id":         "IAC-01",
		fieldDomain:      "Identification & Authentication",
		fieldName:        "Identity & Access Management (IAM)",
		fieldDescription: "The organization facilitates the (us) implementation of identification controls.",
		fieldAnnotation:  "Does the organization facilitate identification controls?",
	})
	t.Append(core.Record{
		"scf_id":         "GOV-01",
		fieldDomain:      "Cybersecurity & Data Protection Governance",
		fieldName:        "Cybersecurity & Data Protection Governance Program",
		fieldDescription: "Maintain the program.",
	})
	t.Append(core.Record{
		"scf_id":         "GOV-02",
		fieldDomain:      "Cybersecurity & Data Protection Governance",
		fieldName:        "Publishing Documentation",
	})
	return t
}

func TestWriteRiskLibraryYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scf-2025-2-1.yaml")
	if err := WriteRiskLibraryYAML(path, riskControls(), "2025.2.1", "2025-06-30"); err != nil {
		t.Fatalf("WriteRiskLibraryYAML() error = %v", err)
	}

	var lib struct {
		URN             string `yaml:"urn"`
		RefID           string `yaml:"ref_id"`
		PublicationDate string `yaml:"publication_date"`
		Objects         struct {
			Framework struct {
				URN              string `yaml:"urn"`
				MinScore         int    `yaml:"min_score"`
				MaxScore         int    `yaml:"max_score"`
				ScoresDefinition []struct {
					Score int    `yaml:"score"`
					Name  string `yaml:"name"`
				} `yaml:"scores_definition"`
				ImplGroupsDef []struct {
					RefID string `yaml:"ref_id"`
				} `yaml:"implementation_groups_definition"`
				RequirementNodes []struct {
					URN        string   `yaml:"urn"`
					Assessable bool     `yaml:"assessable"`
					Depth      int      `yaml:"depth"`
					ParentURN  string   `yaml:"parent_urn"`
					RefID      string   `yaml:"ref_id"`
					Name       string   `yaml:"name"`
					ImplGroups []string `yaml:"implementation_groups"`
				} `yaml:"requirement_nodes"`
			} `yaml:"framework"`
		} `yaml:"objects"`
	}
	if err := yaml.Unmarshal([]byte(readFile(t, path)), &lib); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// ------------------------------------------------------------------
	// Library and framework envelope
	// ------------------------------------------------------------------

	if lib.URN != "urn:wrisc:risk:library:scf-2025-2-1" {
		t.Errorf("library urn = %q", lib.URN)
	}
	if lib.RefID != "SCF-2025-2-1" {
		t.Errorf("ref_id = %q", lib.RefID)
	}
	if lib.PublicationDate != "2025-06-30" {
		t.Errorf("publication_date = %q", lib.PublicationDate)
	}

	fw := lib.Objects.Framework
	if fw.URN != "urn:wrisc:risk:framework:scf-2025-2-1" {
		t.Errorf("framework urn = %q", fw.URN)
	}
	if fw.MinScore != 1 || fw.MaxScore != 5 {
		t.Errorf("score range = [%d, %d], want [1, 5]", fw.MinScore, fw.MaxScore)
	}
	if len(fw.ScoresDefinition) != 6 || fw.ScoresDefinition[0].Score != 0 || fw.ScoresDefinition[5].Name != "Continuously Improving" {
		t.Errorf("scores definition = %+v", fw.ScoresDefinition)
	}
	if len(fw.ImplGroupsDef) != 3 || fw.ImplGroupsDef[0].RefID != "tier1" {
		t.Errorf("implementation groups = %+v", fw.ImplGroupsDef)
	}

	// ------------------------------------------------------------------
	// Requirement node tree
	// ------------------------------------------------------------------

	nodes := fw.RequirementNodes
	if len(nodes) != 5 {
		t.Fatalf("requirement nodes = %d, want 2 domains + 3 controls", len(nodes))
	}

	// Domains sort alphabetically, so Governance precedes Identification
	// even though IAC-01 came first in the table.
	if nodes[0].Name != "Cybersecurity & Data Protection Governance" {
		t.Errorf("nodes[0].name = %q", nodes[0].Name)
	}
	if nodes[0].Assessable || nodes[0].Depth != 1 {
		t.Errorf("domain node = %+v, want non-assessable depth 1", nodes[0])
	}

	// Node numbering starts at 2 and counts every node, so the second
	// domain parent lands at node5 (2 + itself and its two controls).
	if nodes[0].URN != "urn:wrisc:risk:req_node:scf-2025-2-1:node2" {
		t.Errorf("nodes[0].urn = %q", nodes[0].URN)
	}
	if nodes[3].URN != "urn:wrisc:risk:req_node:scf-2025-2-1:node5" {
		t.Errorf("nodes[3].urn = %q", nodes[3].URN)
	}

	gov01 := nodes[1]
	if gov01.RefID != "GOV-01" || !gov01.Assessable || gov01.Depth != 2 {
		t.Errorf("control node = %+v", gov01)
	}
	if gov01.ParentURN != nodes[0].URN {
		t.Errorf("parent_urn = %q, want %q", gov01.ParentURN, nodes[0].URN)
	}
	if fmt.Sprint(gov01.ImplGroups) != "[tier1 tier2 tier3]" {
		t.Errorf("implementation_groups = %v", gov01.ImplGroups)
	}
	if nodes[4].RefID != "IAC-01" || nodes[4].ParentURN != nodes[3].URN {
		t.Errorf("nodes[4] = %+v", nodes[4])
	}
}

func TestWriteRiskLibraryYAML_UKSpelling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.yaml")
	if err := WriteRiskLibraryYAML(path, riskControls(), "2025.2.1", "2025-06-30"); err != nil {
		t.Fatalf("WriteRiskLibraryYAML() error = %v", err)
	}
	raw := readFile(t, path)
	if !strings.Contains(raw, "The organisation facilitates") {
		t.Error("delimited 'organization' not converted to UK spelling")
	}
	if !strings.Contains(raw, "(us)") {
		// Sanity check the fixture still carries the parenthesized form.
		t.Error("fixture lost its (us) marker")
	}
}

func TestUKSpelling(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"delimited word", "the organization is", "the organisation is"},
		{"parenthesized", "defense (center) here", "defense (centre) here"},
		{"quoted", "the 'behavior' flag", "the 'behaviour' flag"},
		{"word prefix survives", "organizational chart", "organizational chart"},
		{"start of string untouched", "organization first", "organization first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ukSpelling(tt.in); got != tt.want {
				t.Errorf("ukSpelling(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
