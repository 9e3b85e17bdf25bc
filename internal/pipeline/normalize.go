// Package pipeline implements the transformation stages that turn a raw
// workbook extraction into normalized entity tables, explicit link tables,
// and denormalized per-control documents. Every stage computes over
// immutable in-memory snapshots; no stage mutates another stage's output.
package pipeline

import (
	"log/slog"
	"strings"

	"github.com/wrisc/scfpipe/internal/core"
	"github.com/wrisc/scfpipe/internal/registry"
	"github.com/wrisc/scfpipe/internal/workbook"
)

// EntityForSheet resolves a sheet's entity type by name convention, the same
// routing the upstream workbook uses: the main controls sheet is "SCF", the
// rest are matched on telltale name fragments. Unrecognized sheets become
// auxiliary entity types named after the sanitized sheet name.
func EntityForSheet(sheetName string) core.EntityType {
	name := strings.ToLower(workbook.SanitizeSheetName(sheetName))
	switch {
	case name == "scf":
		return core.EntityControl
	case strings.Contains(name, "domain"):
		return core.EntityDomain
	case strings.Contains(name, "assessment"):
		return core.EntityAssessmentObjective
	case strings.Contains(name, "threat"):
		return core.EntityThreat
	case strings.Contains(name, "risk"):
		return core.EntityRisk
	case strings.Contains(name, "evidence"):
		return core.EntityEvidenceRequest
	case strings.Contains(name, "privacy"):
		return core.EntityDataPrivacy
	}
	return core.EntityType(name)
}

// Normalizer orchestrates the column cleaner across all sheets of the raw
// extraction, producing one normalized record set per entity type.
type Normalizer struct {
	Registry *registry.Registry
	// Strict aborts on the first conversion error instead of collecting
	// everything into the report.
	Strict bool
	Logger *slog.Logger
}

// Normalize cleans every sheet and returns the normalized tables. Sheets
// required by mandatory entity types must be present; optional entity types
// degrade to an empty table. Duplicated identifiers keep the first
// occurrence and report the rest.
func (n *Normalizer) Normalize(ext *workbook.Extraction, report *Report) (*core.TableSet, error) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tables := core.NewTableSet()

	for i := range ext.Sheets {
		sheet := &ext.Sheets[i]
		entity := EntityForSheet(sheet.Name)

		// Several raw sheets can resolve to one entity type (version-suffixed
		// names sanitize to the same base). Their rows merge into one table so
		// no sheet's records are silently replaced; identifiers already seen
		// keep the first occurrence and report the rest.
		table, ok := tables.Get(entity)
		if !ok {
			table = core.NewTable(entity, n.Registry.KeyField(entity), nil)
			tables.Add(table)
		}

		if err := n.normalizeSheet(sheet, table, report); err != nil {
			return nil, err
		}

		logger.Info("sheet normalized",
			"sheet", sheet.Name,
			"entity", entity,
			"rows", table.Len(),
		)
	}

	for _, entity := range core.MandatoryEntities {
		t, ok := tables.Get(entity)
		if !ok || t.Len() == 0 {
			return nil, &core.SheetNotFoundError{Entity: entity}
		}
	}

	return tables, nil
}

func (n *Normalizer) normalizeSheet(sheet *workbook.Sheet, table *core.Table, report *Report) error {
	entity := table.Entity
	rules, unmapped := n.Registry.RulesForSheet(entity, sheet.Columns)
	for _, col := range unmapped {
		report.Unmapped = append(report.Unmapped, UnmappedColumn{Sheet: sheet.Name, Column: col})
	}
	mergeColumns(table, targetColumns(rules))

	var fillFields []string
	for _, rule := range rules {
		if rule.Blank == core.BlankFill {
			fillFields = append(fillFields, rule.Field)
		}
	}
	// Fill-down state resets per sheet; merged-cell blanks never span sheets.
	fill := make(map[string]any, len(fillFields))

	key := table.Key
	for rowIdx, raw := range sheet.Rows {
		rec, cellErrs := core.CleanRecord(raw, rules)

		for _, ce := range cellErrs {
			ce.Sheet = sheet.Name
			ce.Row = rowIdx + 1
			if n.Strict {
				return &ce
			}
			report.Conversions = append(report.Conversions, ce)
		}

		for _, field := range fillFields {
			if v, ok := rec[field]; ok {
				fill[field] = v
			} else if v, ok := fill[field]; ok {
				rec[field] = v
			}
		}

		// Rows without an identifier are junk footers or spacer lines.
		if key != "" && rec.ID(key) == "" {
			continue
		}

		if !table.Append(rec) {
			report.Duplicates = append(report.Duplicates, DuplicateID{
				Entity: entity,
				ID:     rec.ID(key),
				Row:    rowIdx + 1,
			})
		}
	}

	return nil
}

// mergeColumns extends the table's column order with fields it has not seen,
// preserving existing positions when sheets merge.
func mergeColumns(table *core.Table, cols []string) {
	seen := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		seen[c] = true
	}
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			table.Columns = append(table.Columns, c)
		}
	}
}

// targetColumns derives the normalized column order from the rule order,
// skipping removed columns.
func targetColumns(rules []core.Rule) []string {
	cols := make([]string, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if rule.Label == core.LabelRemove || seen[rule.Field] {
			continue
		}
		seen[rule.Field] = true
		cols = append(cols, rule.Field)
	}
	return cols
}
