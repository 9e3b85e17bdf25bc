// Package registry loads the column register: the declarative, human-editable
// table of per-field cleaning rules that drives every pipeline stage.
//
// The register is a CSV file with one row per raw column:
//
//	raw_column,entity_type,target_field,value_type,delimiter,blank_policy,label,target_entity
//
// value_type is one of text, bool, numeric, list, enum(a|b|c), or
// prefix(NT=Natural Threat|*=Man-Made Threat), which derives a label from the
// raw value's prefix with "*" as the fallback. blank_policy is omit (the
// default), empty, or fill; fill carries the column's last non-empty value
// down merged-cell blanks. Note that assembled control documents always omit
// empty values, so blank_policy=empty shapes the flat table exports only.
// label is empty or one of key, remove, relationship, framework. Rows whose
// raw_column starts with "@" are sheet directives rather than field rules;
// the only directive currently recognized is @skip_rows, whose target_field
// holds the number of junk leading rows on that entity's sheet.
//
// Raw columns not present in the register pass through unmodified (reported
// as unmapped, never fatal), so adding a new framework needs only a register
// row, never a code change.
package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wrisc/scfpipe/internal/core"
)

// Registry is the immutable, fully-loaded rule set. It is constructed once
// and passed into each stage rather than held as ambient global state.
type Registry struct {
	entities []core.EntityType
	rules    map[core.EntityType][]core.Rule
	skipRows map[core.EntityType]int
}

// Load reads and validates the column register file. It fails with a
// *core.ConfigurationError when the file is missing, structurally malformed,
// or contains duplicate target fields within one entity type.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.ConfigurationError{Path: path, Reason: "cannot open", Err: err}
	}
	defer f.Close()

	reg, err := Parse(f)
	if err != nil {
		if ce, ok := err.(*core.ConfigurationError); ok {
			ce.Path = path
			return nil, ce
		}
		return nil, &core.ConfigurationError{Path: path, Reason: "parse failed", Err: err}
	}
	return reg, nil
}

// Parse reads a column register from r. Split out from Load for testing.
func Parse(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, &core.ConfigurationError{Reason: "missing header row", Err: err}
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"raw_column", "entity_type", "target_field", "value_type"} {
		if _, ok := col[required]; !ok {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("header lacks %q column", required)}
		}
	}

	reg := &Registry{
		rules:    make(map[core.EntityType][]core.Rule),
		skipRows: make(map[core.EntityType]int),
	}
	seenTargets := make(map[core.EntityType]map[string]bool)

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("line %d unreadable", line+1), Err: err}
		}
		line++

		rawColumn := cell(row, "raw_column")
		entity := core.EntityType(cell(row, "entity_type"))
		if rawColumn == "" || entity == "" {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("line %d: raw_column and entity_type are required", line)}
		}

		if strings.HasPrefix(rawColumn, "@") {
			if err := reg.applyDirective(rawColumn, entity, cell(row, "target_field"), line); err != nil {
				return nil, err
			}
			continue
		}

		rule, err := buildRule(rawColumn, entity, row, cell, line)
		if err != nil {
			return nil, err
		}

		if rule.Label != core.LabelRemove {
			if seenTargets[entity] == nil {
				seenTargets[entity] = make(map[string]bool)
			}
			if seenTargets[entity][rule.Field] {
				return nil, &core.ConfigurationError{
					Reason: fmt.Sprintf("line %d: duplicate target field %q for entity %q", line, rule.Field, entity),
				}
			}
			// A plain target and a dotted target under the same prefix would
			// make the field both a scalar and a nested group at assembly.
			for existing := range seenTargets[entity] {
				if targetsConflict(existing, rule.Field) {
					return nil, &core.ConfigurationError{
						Reason: fmt.Sprintf("line %d: target field %q conflicts with %q for entity %q", line, rule.Field, existing, entity),
					}
				}
			}
			seenTargets[entity][rule.Field] = true
		}

		if _, known := reg.rules[entity]; !known {
			reg.entities = append(reg.entities, entity)
		}
		reg.rules[entity] = append(reg.rules[entity], rule)
	}

	return reg, nil
}

func (r *Registry) applyDirective(name string, entity core.EntityType, value string, line int) error {
	switch name {
	case "@skip_rows":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return &core.ConfigurationError{Reason: fmt.Sprintf("line %d: @skip_rows needs a non-negative integer, got %q", line, value)}
		}
		r.skipRows[entity] = n
		return nil
	}
	return &core.ConfigurationError{Reason: fmt.Sprintf("line %d: unknown directive %q", line, name)}
}

// targetsConflict reports whether one target field names a dotted group
// inside the other.
func targetsConflict(a, b string) bool {
	return strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

func buildRule(rawColumn string, entity core.EntityType, row []string, cell func([]string, string) string, line int) (core.Rule, error) {
	rule := core.Rule{
		RawColumn:    rawColumn,
		Entity:       entity,
		Field:        cell(row, "target_field"),
		Delimiter:    unescapeDelimiter(cell(row, "delimiter")),
		Label:        core.RuleLabel(cell(row, "label")),
		TargetEntity: core.EntityType(cell(row, "target_entity")),
	}
	if rule.Field == "" {
		rule.Field = core.SnakeCase(rawColumn)
	}

	switch rule.Label {
	case core.LabelNone, core.LabelKey, core.LabelRemove, core.LabelRelationship, core.LabelFramework:
	default:
		return core.Rule{}, &core.ConfigurationError{Reason: fmt.Sprintf("line %d: unknown label %q", line, rule.Label)}
	}

	rawType := cell(row, "value_type")
	valueType := strings.ToLower(rawType)
	switch {
	case valueType == "" || valueType == "text" || valueType == "string":
		rule.Type = core.FieldText
	case valueType == "bool" || valueType == "boolean":
		rule.Type = core.FieldBool
	case valueType == "numeric" || valueType == "number":
		rule.Type = core.FieldNumeric
	case valueType == "list":
		rule.Type = core.FieldList
	case strings.HasPrefix(valueType, "enum(") && strings.HasSuffix(valueType, ")"):
		rule.Type = core.FieldEnum
		inner := valueType[len("enum(") : len(valueType)-1]
		for _, v := range strings.Split(inner, "|") {
			if v = strings.TrimSpace(v); v != "" {
				rule.EnumValues = append(rule.EnumValues, v)
			}
		}
	case strings.HasPrefix(valueType, "prefix(") && strings.HasSuffix(valueType, ")"):
		rule.Type = core.FieldPrefixMap
		// Labels keep their declared casing, so parse from the raw spelling.
		inner := rawType[len("prefix(") : len(rawType)-1]
		for _, pair := range strings.Split(inner, "|") {
			prefix, label, ok := strings.Cut(pair, "=")
			if !ok {
				return core.Rule{}, &core.ConfigurationError{Reason: fmt.Sprintf("line %d: prefix mapping %q needs prefix=label", line, pair)}
			}
			rule.PrefixMap = append(rule.PrefixMap, [2]string{strings.TrimSpace(prefix), strings.TrimSpace(label)})
		}
		if len(rule.PrefixMap) == 0 {
			return core.Rule{}, &core.ConfigurationError{Reason: fmt.Sprintf("line %d: empty prefix mapping", line)}
		}
	default:
		return core.Rule{}, &core.ConfigurationError{Reason: fmt.Sprintf("line %d: unknown value_type %q", line, valueType)}
	}

	switch blank := strings.ToLower(cell(row, "blank_policy")); blank {
	case "", "omit":
		rule.Blank = core.BlankOmit
	case "empty":
		rule.Blank = core.BlankEmpty
	case "fill":
		rule.Blank = core.BlankFill
	default:
		return core.Rule{}, &core.ConfigurationError{Reason: fmt.Sprintf("line %d: unknown blank_policy %q", line, blank)}
	}

	// Relationship fields are identifier lists unless declared otherwise.
	if (rule.Label == core.LabelRelationship || rule.Label == core.LabelFramework) && valueType == "" {
		rule.Type = core.FieldList
	}

	return rule, nil
}

// unescapeDelimiter translates the register file's escaped delimiter
// spellings into the characters they stand for.
func unescapeDelimiter(s string) string {
	switch s {
	case `\n`:
		return "\n"
	case `\t`:
		return "\t"
	}
	return s
}

// RulesFor returns the ordered field rules for an entity type. The returned
// slice is shared; callers must not mutate it.
func (r *Registry) RulesFor(entity core.EntityType) []core.Rule {
	return r.rules[entity]
}

// RulesForSheet returns the rules to apply to a sheet with the given raw
// headers: the registered rules for the entity type plus a synthesized
// pass-through rule for every unregistered header. The second return value
// lists the unmapped headers so the caller can log them.
func (r *Registry) RulesForSheet(entity core.EntityType, headers []string) ([]core.Rule, []string) {
	registered := make(map[string]bool)
	for _, rule := range r.rules[entity] {
		registered[rule.RawColumn] = true
	}

	rules := append([]core.Rule(nil), r.rules[entity]...)
	var unmapped []string
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" || registered[h] {
			continue
		}
		registered[h] = true
		// Errata columns come and go between releases; pass them through
		// without flagging them.
		if !strings.HasPrefix(h, "Errata") {
			unmapped = append(unmapped, h)
		}
		rules = append(rules, core.Rule{
			RawColumn:   h,
			Entity:      entity,
			Field:       core.SnakeCase(h),
			Type:        core.FieldText,
			Passthrough: true,
		})
	}
	return rules, unmapped
}

// KeyField returns the identifier field for an entity type, per its
// key-labeled rule. Auxiliary entities without a key rule return "".
func (r *Registry) KeyField(entity core.EntityType) string {
	for _, rule := range r.rules[entity] {
		if rule.Label == core.LabelKey {
			return rule.Field
		}
	}
	return ""
}

// SkipRows returns the @skip_rows directive for an entity's sheet, or 0.
func (r *Registry) SkipRows(entity core.EntityType) int {
	return r.skipRows[entity]
}

// Entities returns the entity types mentioned in the register, in first-seen
// order.
func (r *Registry) Entities() []core.EntityType {
	return r.entities
}

// Relationships returns every relationship- or framework-labeled rule across
// all entity types, in register order. This single list is what drives the
// relationship extractor for core links and the hundreds of framework
// mappings alike.
func (r *Registry) Relationships() []core.Rule {
	var out []core.Rule
	for _, entity := range r.entities {
		for _, rule := range r.rules[entity] {
			if rule.Label == core.LabelRelationship || rule.Label == core.LabelFramework {
				out = append(out, rule)
			}
		}
	}
	return out
}
