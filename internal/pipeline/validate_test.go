package pipeline

import (
	"testing"

	"github.com/wrisc/scfpipe/internal/core"
)

func TestValidate_CleanFixtureHasOnlyKnownGaps(t *testing.T) {
	tables, links := extractFixture(t)

	violations := Validate(tables, links)

	// GOV-02 cites threat MT-9 which the catalog does not list.
	var warnings, errs int
	for _, v := range violations {
		switch v.Severity {
		case core.SeverityWarning:
			warnings++
			if v.RelationshipType != "scf_to_threat" || v.TargetID != "MT-9" {
				t.Errorf("unexpected warning: %+v", v)
			}
		case core.SeverityError:
			errs++
		}
	}
	if warnings != 1 || errs != 0 {
		t.Errorf("violations = %d warnings, %d errors; want 1, 0: %+v", warnings, errs, violations)
	}
}

func TestValidate_DanglingControlIsError(t *testing.T) {
	tables, links := extractFixture(t)

	nist, _ := links.Get("scf_to_nist_800_53_rev5")
	nist.Links = append(nist.Links, core.LinkRecord{SourceID: "ZZZ-99", TargetID: "PM-1"})

	violations := Validate(tables, links)

	found := false
	for _, v := range violations {
		if v.SourceID == "ZZZ-99" {
			found = true
			if v.Severity != core.SeverityError {
				t.Errorf("dangling control severity = %v, want error", v.Severity)
			}
		}
	}
	if !found {
		t.Error("dangling control endpoint not reported")
	}
}

func TestValidate_WarningRetainsLink(t *testing.T) {
	tables, links := extractFixture(t)

	threats, _ := links.Get("scf_to_threat")
	before := len(threats.Links)

	Validate(tables, links)

	if len(threats.Links) != before {
		t.Errorf("links = %d after validation, want %d; validator must not drop records", len(threats.Links), before)
	}
}

func TestValidate_NoTargetTableSkipsCheck(t *testing.T) {
	tables, links := extractFixture(t)

	// Framework tables have no authoritative list; their targets are never
	// warned about.
	for _, v := range Validate(tables, links) {
		if v.RelationshipType == "scf_to_nist_800_53_rev5" || v.RelationshipType == "scf_to_iso_27001" {
			t.Errorf("framework targets should not be checked: %+v", v)
		}
	}
}
