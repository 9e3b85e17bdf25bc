// Package core provides the shared data model for the SCF transformation
// pipeline: entity tables, field rules, link tables, and control documents.
// This package has no I/O dependencies and can be used by any stage.
package core

// EntityType identifies one normalized table produced by the pipeline.
// The well-known types below have fixed roles; any other value names an
// auxiliary sheet carried through for flat export (e.g. a framework's
// authoritative control list).
type EntityType string

const (
	EntityControl             EntityType = "control"
	EntityDomain              EntityType = "domain"
	EntityAssessmentObjective EntityType = "assessment_objective"
	EntityThreat              EntityType = "threat"
	EntityRisk                EntityType = "risk"
	EntityEvidenceRequest     EntityType = "evidence_request"
	EntityDataPrivacy         EntityType = "data_privacy"
)

// MandatoryEntities are the entity types whose sheets must be present in the
// raw extraction. All other entity types degrade to an empty table.
var MandatoryEntities = []EntityType{EntityControl, EntityDomain}

// FieldType represents the declared type for a normalized field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldNumeric
	FieldBool
	FieldList
	// FieldPrefixMap derives a label from the raw value's prefix, e.g. a
	// threat grouping derived from the threat identifier ("NT-" vs "MT-").
	FieldPrefixMap
)

// BlankPolicy governs how an empty cleaned value is represented.
type BlankPolicy int

const (
	// BlankOmit drops the field from the record entirely (the default).
	BlankOmit BlankPolicy = iota
	// BlankEmpty keeps the field with an empty-string value.
	BlankEmpty
	// BlankFill carries the column's last non-empty value forward, for sheets
	// whose merged cells leave grouping columns blank below the first row.
	BlankFill
)

// RuleLabel tags a rule with a pipeline role beyond plain cleaning.
type RuleLabel string

const (
	LabelNone RuleLabel = ""
	// LabelKey marks the field as the record identifier for its entity type.
	LabelKey RuleLabel = "key"
	// LabelRemove drops the raw column entirely.
	LabelRemove RuleLabel = "remove"
	// LabelRelationship marks a multi-value (or scalar) reference field that
	// the relationship extractor explodes into a link table.
	LabelRelationship RuleLabel = "relationship"
	// LabelFramework marks an external-framework reference field. Each such
	// rule produces its own framework link table, which is what lets the
	// pipeline scale to hundreds of frameworks without per-framework code.
	LabelFramework RuleLabel = "framework"
)

// Rule describes how one raw column maps to one normalized field.
// Rules are loaded from the column register and applied by CleanRecord.
type Rule struct {
	RawColumn    string      // header as it appears in the raw sheet
	Entity       EntityType  // entity type the rule belongs to
	Field        string      // normalized field name; may be dotted ("a.b") for nested placement at assembly
	Type         FieldType   // declared value type
	Delimiter    string      // separator for FieldList values (default "\n")
	EnumValues   []string    // allowed values for FieldEnum
	PrefixMap    [][2]string // ordered (prefix, label) pairs for FieldPrefixMap; "*" matches anything
	Blank        BlankPolicy // empty-value representation
	Label        RuleLabel   // pipeline role
	TargetEntity EntityType  // entity table the referenced identifiers resolve against, if any
	Passthrough  bool        // synthesized fallback for an unregistered column
}

// Record is one normalized row: field name to cleaned scalar or list value.
// Values are string, bool, float64 or []string; fields with no underlying
// value are absent under BlankOmit.
type Record map[string]any

// ID returns the record's value for the given key field, or "" if unset.
func (r Record) ID(key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Table is an ordered set of normalized records for one entity type, with a
// unique-identifier index. Rows preserve first-seen sheet order.
type Table struct {
	Entity  EntityType
	Key     string // key field name; "" for auxiliary tables without identity
	Columns []string
	Rows    []Record

	index map[string]int
}

// NewTable creates an empty table for the given entity type.
func NewTable(entity EntityType, key string, columns []string) *Table {
	return &Table{
		Entity:  entity,
		Key:     key,
		Columns: columns,
		index:   make(map[string]int),
	}
}

// Append adds a record, enforcing identifier uniqueness when the table has a
// key field. Returns false if a record with the same identifier already
// exists (first occurrence wins).
func (t *Table) Append(rec Record) bool {
	if t.Key != "" {
		id := rec.ID(t.Key)
		if _, dup := t.index[id]; dup {
			return false
		}
		t.index[id] = len(t.Rows)
	}
	t.Rows = append(t.Rows, rec)
	return true
}

// Lookup returns the record with the given identifier.
func (t *Table) Lookup(id string) (Record, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.Rows[i], true
}

// Len returns the number of records in the table.
func (t *Table) Len() int { return len(t.Rows) }

// TableSet holds normalized tables keyed by entity type, preserving the
// order in which tables were added for deterministic output.
type TableSet struct {
	entities []EntityType
	tables   map[EntityType]*Table
}

// NewTableSet creates an empty table set.
func NewTableSet() *TableSet {
	return &TableSet{tables: make(map[EntityType]*Table)}
}

// Add registers a table. A second table for the same entity type replaces
// the first without changing its position.
func (s *TableSet) Add(t *Table) {
	if _, exists := s.tables[t.Entity]; !exists {
		s.entities = append(s.entities, t.Entity)
	}
	s.tables[t.Entity] = t
}

// Get returns the table for an entity type.
func (s *TableSet) Get(entity EntityType) (*Table, bool) {
	t, ok := s.tables[entity]
	return t, ok
}

// Entities returns entity types in insertion order.
func (s *TableSet) Entities() []EntityType {
	return s.entities
}

// LinkRecord is one explicit many-to-many edge from a control to another
// entity, in per-control first-seen order.
type LinkRecord struct {
	SourceID string // control identifier
	TargetID string // referenced entity identifier
}

// LinkTable holds all link records for one relationship type.
type LinkTable struct {
	Type         string     // relationship type key, e.g. "scf_to_nist_800_53_rev5"
	Field        string     // target column name in flat two-column output
	TargetEntity EntityType // table the targets resolve against; "" when no authoritative list exists
	Framework    bool       // true for external-framework mappings
	Links        []LinkRecord
}

// ForSource returns the ordered target identifiers linked from one control.
func (t *LinkTable) ForSource(id string) []string {
	var out []string
	for _, l := range t.Links {
		if l.SourceID == id {
			out = append(out, l.TargetID)
		}
	}
	return out
}

// LinkSet holds link tables keyed by relationship type. Type order follows
// first appearance in the column register, keeping output deterministic
// across runs.
type LinkSet struct {
	types  []string
	tables map[string]*LinkTable
}

// NewLinkSet creates an empty link set.
func NewLinkSet() *LinkSet {
	return &LinkSet{tables: make(map[string]*LinkTable)}
}

// Add registers a link table under its relationship type.
func (s *LinkSet) Add(t *LinkTable) {
	if _, exists := s.tables[t.Type]; !exists {
		s.types = append(s.types, t.Type)
	}
	s.tables[t.Type] = t
}

// Get returns the link table for a relationship type.
func (s *LinkSet) Get(relType string) (*LinkTable, bool) {
	t, ok := s.tables[relType]
	return t, ok
}

// Types returns relationship type keys in insertion order.
func (s *LinkSet) Types() []string {
	return s.types
}

// Severity classifies an integrity violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Violation reports one dangling endpoint found by the integrity validator.
// Violations are diagnostic only; the offending link records are retained.
type Violation struct {
	RelationshipType string
	SourceID         string
	TargetID         string
	Severity         Severity
	Detail           string
}

// Document is one fully assembled, denormalized control document, ready for
// bulk loading into a document store. Nested values are maps, slices and
// scalars only, and empty fields are pruned before the document is emitted.
type Document map[string]any
