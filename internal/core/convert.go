package core

// convert.go provides the column-cleaning engine: pure functions that turn
// raw cell values into normalized typed values under a Field Rule.
//
// Raw workbook data is messy in predictable ways:
//   - Headers like "SCF #" or "NIST 800-53\nR5" instead of stable field names
//   - Invisible control characters pasted in from other documents
//   - Boolean columns marked with "x" or left blank
//   - Multi-value reference cells joined by newlines or semicolons,
//     with duplicate and inconsistently-cased identifiers
//
// CleanRecord has no side effects; conversion failures are returned as
// values so the caller decides between collect-all and abort-on-first.

import (
	"regexp"
	"strconv"
	"strings"
)

// snakeOverrides are raw headers whose snake_case form cannot be derived
// mechanically.
var snakeOverrides = map[string]string{
	"#":           "index",
	"SCF #":       "scf_id",
	"SCF Control": "scf_control",
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// SnakeCase converts a raw column header to a stable snake_case field name.
// "Threat #" becomes "threat_id", "NIST 800-53 R5" becomes "nist_800_53_r5".
func SnakeCase(name string) string {
	name = strings.TrimSpace(name)
	if out, ok := snakeOverrides[name]; ok {
		return out
	}
	if strings.HasSuffix(name, " #") {
		name = strings.TrimSuffix(name, " #") + "_id"
	}
	s := nonAlnum.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

// CleanCell trims whitespace and strips invisible control characters and
// Excel formula prefixes (="value") from a raw cell. Common whitespace
// (space, tab, newline) is preserved inside the value.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else {
		s = strings.TrimPrefix(s, "=")
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		}
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ToBool converts a raw token to a boolean using the workbook's fixed
// vocabulary. Blank cells are falsy; anything outside the vocabulary is a
// conversion error rather than silently false.
func ToBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "true", "yes", "1":
		return true, nil
	case "", "no", "false", "0":
		return false, nil
	}
	return false, &ValueConversionError{Value: s, Reason: "not a recognized boolean token"}
}

// ToNumeric converts a raw cell to a float64, tolerating thousands
// separators.
func ToNumeric(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ValueConversionError{Value: s, Reason: "not a number"}
	}
	return f, nil
}

// SplitList splits a raw multi-value cell into an ordered identifier
// sequence: split on the delimiter, clean each element, drop empties, and
// de-duplicate case-insensitively keeping the first occurrence's casing.
// An empty delimiter splits on newlines.
func SplitList(raw, delimiter string) []string {
	if delimiter == "" {
		delimiter = "\n"
	}

	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, delimiter) {
		part = CleanCell(part)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, part)
	}
	return out
}

// CleanRecord applies field rules to one raw row, producing a normalized
// record. It is a pure function: conversion failures are returned with
// column context (the caller adds sheet and row) and the affected field is
// left unset.
func CleanRecord(raw map[string]string, rules []Rule) (Record, []ValueConversionError) {
	rec := make(Record, len(rules))
	var errs []ValueConversionError

	for _, rule := range rules {
		if rule.Label == LabelRemove {
			continue
		}

		value := CleanCell(raw[rule.RawColumn])

		switch rule.Type {
		case FieldBool:
			b, err := ToBool(value)
			if err != nil {
				errs = append(errs, ValueConversionError{
					Entity: rule.Entity, Column: rule.RawColumn, Value: value,
					Reason: "not a recognized boolean token",
				})
				continue
			}
			rec[rule.Field] = b

		case FieldNumeric:
			if value == "" {
				setBlank(rec, rule)
				continue
			}
			f, err := ToNumeric(value)
			if err != nil {
				errs = append(errs, ValueConversionError{
					Entity: rule.Entity, Column: rule.RawColumn, Value: value,
					Reason: "not a number",
				})
				continue
			}
			rec[rule.Field] = f

		case FieldEnum:
			if value == "" {
				setBlank(rec, rule)
				continue
			}
			matched := false
			for _, allowed := range rule.EnumValues {
				if strings.EqualFold(allowed, value) {
					rec[rule.Field] = allowed
					matched = true
					break
				}
			}
			if !matched {
				errs = append(errs, ValueConversionError{
					Entity: rule.Entity, Column: rule.RawColumn, Value: value,
					Reason: "value not in enumeration: " + strings.Join(rule.EnumValues, ", "),
				})
			}

		case FieldPrefixMap:
			if value == "" {
				setBlank(rec, rule)
				continue
			}
			matched := false
			for _, pm := range rule.PrefixMap {
				if pm[0] == "*" || strings.HasPrefix(value, pm[0]) {
					rec[rule.Field] = pm[1]
					matched = true
					break
				}
			}
			if !matched {
				setBlank(rec, rule)
			}

		case FieldList:
			items := SplitList(value, rule.Delimiter)
			if len(items) == 0 {
				setBlank(rec, rule)
				continue
			}
			rec[rule.Field] = items

		default: // FieldText
			if value == "" {
				setBlank(rec, rule)
				continue
			}
			rec[rule.Field] = value
		}
	}

	return rec, errs
}

// setBlank applies the rule's blank policy for an empty cleaned value.
func setBlank(rec Record, rule Rule) {
	if rule.Blank == BlankEmpty {
		rec[rule.Field] = ""
	}
}

// Expand converts a flat record with dotted field names into a nested map,
// so a register row can target "solutions_by_business_size.micro_small"
// without any assembly code knowing the grouping.
func Expand(rec Record) map[string]any {
	out := make(map[string]any, len(rec))
	for field, value := range rec {
		parts := strings.Split(field, ".")
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return out
}

// PruneEmpty recursively removes absent values: nil, empty strings, empty
// maps and empty slices. It returns nil when nothing remains, so callers
// can drop the whole value. Assembled documents are pruned unconditionally,
// so the empty-string blank policy is observable only in flat table exports;
// within a document, blank handling is uniform.
func PruneEmpty(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if pruned := PruneEmpty(item); pruned != nil {
				out[k] = pruned
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case Document:
		if pruned := PruneEmpty(map[string]any(val)); pruned != nil {
			return Document(pruned.(map[string]any))
		}
		return nil
	case Record:
		if pruned := PruneEmpty(map[string]any(val)); pruned != nil {
			return Record(pruned.(map[string]any))
		}
		return nil
	case []string:
		if len(val) == 0 {
			return nil
		}
		return val
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if pruned := PruneEmpty(item); pruned != nil {
				out = append(out, pruned)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return v
}
