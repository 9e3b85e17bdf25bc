package sink

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wrisc/scfpipe/internal/core"
)

const providerURN = "wrisc"

// Control table fields consumed by the risk-library export. These match the
// normalized field names the column register produces for the control sheet.
const (
	fieldDomain      = "scf_domain"
	fieldName        = "scf_control"
	fieldDescription = "secure_controls_framework_scf_control_description"
	fieldAnnotation  = "scf_control_question"
)

type scoreDef struct {
	Score       int     `yaml:"score"`
	Name        string  `yaml:"name"`
	Description *string `yaml:"description"`
}

type implGroupDef struct {
	RefID       string  `yaml:"ref_id"`
	Name        string  `yaml:"name"`
	Description *string `yaml:"description"`
}

type reqNode struct {
	URN         string   `yaml:"urn"`
	Assessable  bool     `yaml:"assessable"`
	Depth       int      `yaml:"depth"`
	ParentURN   string   `yaml:"parent_urn,omitempty"`
	RefID       string   `yaml:"ref_id,omitempty"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Annotation  string   `yaml:"annotation,omitempty"`
	ImplGroups  []string `yaml:"implementation_groups,omitempty"`
}

type riskFramework struct {
	URN              string         `yaml:"urn"`
	RefID            string         `yaml:"ref_id"`
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	MinScore         int            `yaml:"min_score"`
	MaxScore         int            `yaml:"max_score"`
	ScoresDefinition []scoreDef     `yaml:"scores_definition"`
	ImplGroupsDef    []implGroupDef `yaml:"implementation_groups_definition"`
	RequirementNodes []reqNode      `yaml:"requirement_nodes"`
}

type riskLibrary struct {
	URN             string `yaml:"urn"`
	Locale          string `yaml:"locale"`
	RefID           string `yaml:"ref_id"`
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Copyright       string `yaml:"copyright"`
	Version         int    `yaml:"version"`
	PublicationDate string `yaml:"publication_date"`
	Provider        string `yaml:"provider"`
	Packager        string `yaml:"packager"`
	Objects         struct {
		Framework riskFramework `yaml:"framework"`
	} `yaml:"objects"`
}

// WriteRiskLibraryYAML builds the risk-library YAML document from the
// control table: one non-assessable parent node per domain name, one
// assessable child node per control, with UK spelling applied to the final
// output. Version is the upstream release label, e.g. "2025.2.1".
func WriteRiskLibraryYAML(path string, controls *core.Table, version, publicationDate string) error {
	urnVersion := strings.ReplaceAll(version, ".", "-")

	lib := riskLibrary{
		URN:             fmt.Sprintf("urn:%s:risk:library:scf-%s", providerURN, urnVersion),
		Locale:          "en",
		RefID:           "SCF-" + urnVersion,
		Name:            "SCF: Secure Controls Framework",
		Description:     "SCF: Secure Controls Framework\n\n  https://securecontrolsframework.com/about-us/",
		Copyright:       "SCF - https://securecontrolsframework.com/terms-conditions/",
		Version:         1,
		PublicationDate: publicationDate,
		Provider:        "SCF",
		Packager:        providerURN,
	}
	lib.Objects.Framework = riskFramework{
		URN:         fmt.Sprintf("urn:%s:risk:framework:scf-%s", providerURN, urnVersion),
		RefID:       "SCF-" + urnVersion,
		Name:        "SCF: Secure Controls Framework",
		Description: "SCF: Secure Controls Framework\n\n      https://securecontrolsframework.com/about-us/",
		MinScore:    1,
		MaxScore:    5,
		ScoresDefinition: []scoreDef{
			{Score: 0, Name: "Not Performed"},
			{Score: 1, Name: "Performed Informally"},
			{Score: 2, Name: "Planned & Tracked"},
			{Score: 3, Name: "Well Defined"},
			{Score: 4, Name: "Quantitatively Controlled"},
			{Score: 5, Name: "Continuously Improving"},
		},
		ImplGroupsDef: []implGroupDef{
			{RefID: "tier1", Name: "Tier 1 - Strategic"},
			{RefID: "tier2", Name: "Tier 2 - Operational"},
			{RefID: "tier3", Name: "Tier 3 - Tactical"},
		},
		RequirementNodes: requirementNodes(controls, urnVersion),
	}

	out, err := yaml.Marshal(&lib)
	if err != nil {
		return fmt.Errorf("marshal risk library: %w", err)
	}
	out = []byte(ukSpelling(string(out)))
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// requirementNodes groups controls by domain name, sorted, with controls in
// master order within each domain. Node numbering starts at 2 and counts
// every node, matching the published library layout.
func requirementNodes(controls *core.Table, urnVersion string) []reqNode {
	byDomain := make(map[string][]core.Record)
	var domains []string
	for _, rec := range controls.Rows {
		d := rec.ID(fieldDomain)
		if _, seen := byDomain[d]; !seen {
			domains = append(domains, d)
		}
		byDomain[d] = append(byDomain[d], rec)
	}
	sort.Strings(domains)

	var nodes []reqNode
	counter := 2
	for _, domain := range domains {
		parentURN := fmt.Sprintf("urn:%s:risk:req_node:scf-%s:node%d", providerURN, urnVersion, counter)
		nodes = append(nodes, reqNode{
			URN:        parentURN,
			Assessable: false,
			Depth:      1,
			Name:       domain,
		})
		counter++

		for _, rec := range byDomain[domain] {
			id := rec.ID(controls.Key)
			nodes = append(nodes, reqNode{
				URN:         fmt.Sprintf("urn:%s:risk:req_node:scf-%s:%s", providerURN, urnVersion, id),
				Assessable:  true,
				Depth:       2,
				ParentURN:   parentURN,
				RefID:       id,
				Name:        rec.ID(fieldName),
				Description: rec.ID(fieldDescription),
				Annotation:  rec.ID(fieldAnnotation),
				ImplGroups:  []string{"tier1", "tier2", "tier3"},
			})
			counter++
		}
	}
	return nodes
}

var ukReplacements = [][2]string{
	{"organization", "organisation"},
	{"organizations", "organisations"},
	{"recognize", "recognise"},
	{"recognizes", "recognises"},
	{"analyze", "analyse"},
	{"analyzes", "analyses"},
	{"color", "colour"},
	{"center", "centre"},
	{"behavior", "behaviour"},
	{"license", "licence"},
	{"program", "programme"},
}

// ukSpelling replaces common US spellings with UK ones. Replacement only
// fires on delimited whole words so substrings inside longer words survive.
func ukSpelling(text string) string {
	for _, r := range ukReplacements {
		us, uk := r[0], r[1]
		text = strings.ReplaceAll(text, " "+us+" ", " "+uk+" ")
		text = strings.ReplaceAll(text, "("+us+")", "("+uk+")")
		text = strings.ReplaceAll(text, "'"+us+"'", "'"+uk+"'")
	}
	return text
}
