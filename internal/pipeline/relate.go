package pipeline

// relate.go materializes explicit many-to-many link tables from the
// normalized tables. All relationship discovery is data-driven from the
// column register:
//
//   - relationship/framework-labeled rules on the control entity explode a
//     control's reference list into (control, target) pairs
//   - relationship-labeled rules on other entities run in reverse: the row's
//     own identifier becomes the target and the referenced control IDs the
//     sources (assessment objectives and data-privacy principles cite
//     controls, not the other way around)
//   - the control-to-domain link is derived from the control ID prefix
//
// Relationship type keys follow register order, so output is deterministic
// across runs.

import (
	"log/slog"

	"github.com/wrisc/scfpipe/internal/core"
	"github.com/wrisc/scfpipe/internal/registry"
)

// RelTypePrefix prefixes every relationship type key.
const RelTypePrefix = "scf_to_"

// DomainRelType is the derived control-to-domain relationship type.
const DomainRelType = RelTypePrefix + "domain"

// Extractor derives link tables from normalized tables.
type Extractor struct {
	Registry *registry.Registry
	// DomainIDLength is how many leading characters of a control ID name
	// its domain.
	DomainIDLength int
	Logger         *slog.Logger
}

// Extract produces one link table per relationship-tagged rule, plus the
// derived domain link table.
func (e *Extractor) Extract(tables *core.TableSet) *core.LinkSet {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	links := core.NewLinkSet()

	for _, rule := range e.Registry.Relationships() {
		var table *core.LinkTable
		if rule.Entity == core.EntityControl {
			table = e.forwardLinks(tables, rule)
		} else {
			table = e.reverseLinks(tables, rule)
		}
		if table == nil {
			continue
		}
		links.Add(table)
		logger.Debug("relationship extracted", "type", table.Type, "links", len(table.Links))
	}

	if domain := e.domainLinks(tables); domain != nil {
		links.Add(domain)
	}

	return links
}

// forwardLinks explodes a control reference field into link records,
// preserving the cleaner's per-control ordering.
func (e *Extractor) forwardLinks(tables *core.TableSet, rule core.Rule) *core.LinkTable {
	controls, ok := tables.Get(core.EntityControl)
	if !ok {
		return nil
	}

	table := &core.LinkTable{
		Type:         RelTypePrefix + rule.Field,
		Field:        rule.Field,
		TargetEntity: rule.TargetEntity,
		Framework:    rule.Label == core.LabelFramework,
	}

	for _, rec := range controls.Rows {
		sourceID := rec.ID(controls.Key)
		for _, targetID := range listValue(rec[rule.Field]) {
			table.Links = append(table.Links, core.LinkRecord{SourceID: sourceID, TargetID: targetID})
		}
	}
	return table
}

// reverseLinks handles entities whose rows cite controls: each referenced
// control becomes the source and the row's identifier the target.
func (e *Extractor) reverseLinks(tables *core.TableSet, rule core.Rule) *core.LinkTable {
	entityTable, ok := tables.Get(rule.Entity)
	if !ok || entityTable.Key == "" {
		return nil
	}

	table := &core.LinkTable{
		Type:         RelTypePrefix + string(rule.Entity),
		Field:        entityTable.Key,
		TargetEntity: rule.Entity,
		Framework:    rule.Label == core.LabelFramework,
	}

	for _, rec := range entityTable.Rows {
		targetID := rec.ID(entityTable.Key)
		for _, sourceID := range listValue(rec[rule.Field]) {
			table.Links = append(table.Links, core.LinkRecord{SourceID: sourceID, TargetID: targetID})
		}
	}
	return table
}

// domainLinks links each control to its domain via the ID prefix
// ("GOV-01" lives in domain "GOV").
func (e *Extractor) domainLinks(tables *core.TableSet) *core.LinkTable {
	controls, ok := tables.Get(core.EntityControl)
	if !ok {
		return nil
	}
	domains, _ := tables.Get(core.EntityDomain)

	field := "domain_id"
	if domains != nil && domains.Key != "" {
		field = domains.Key
	}

	length := e.DomainIDLength
	if length <= 0 {
		length = 3
	}

	table := &core.LinkTable{
		Type:         DomainRelType,
		Field:        field,
		TargetEntity: core.EntityDomain,
	}
	for _, rec := range controls.Rows {
		id := rec.ID(controls.Key)
		if len(id) < length {
			continue
		}
		table.Links = append(table.Links, core.LinkRecord{SourceID: id, TargetID: id[:length]})
	}
	return table
}

// listValue reads a cleaned field as an identifier sequence. Scalar string
// references count as a one-element sequence.
func listValue(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	}
	return nil
}
