package pipeline

// assemble.go joins a control's normalized attributes with its relationship
// links and the referenced entities' attributes into one self-contained
// document per control. Assembly is pure per control and runs over read-only
// snapshots, so controls are assembled on parallel workers with results
// collected into a position-indexed slice; output order always matches the
// master control list regardless of completion order.

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wrisc/scfpipe/internal/core"
	"github.com/wrisc/scfpipe/internal/registry"
)

// embedNames maps entity types whose full records are embedded in the
// document to their document field. Relationship targets outside this map
// stay as identifier lists under scf_relationships.
var embedNames = map[core.EntityType]string{
	core.EntityAssessmentObjective: "assessment_objectives",
	core.EntityThreat:              "threats",
	core.EntityRisk:                "risks",
	core.EntityEvidenceRequest:     "evidence_requests",
}

// Assembler builds denormalized control documents.
type Assembler struct {
	tables         *core.TableSet
	links          *core.LinkSet
	domainIDLength int
	workers        int

	// filter holds framework keys (without the scf_to_ prefix) to include;
	// nil means all frameworks.
	filter map[string]bool

	// relationship-tagged fields are consumed by the extractor and excluded
	// from flat copies of their entity's records.
	relFields map[core.EntityType]map[string]bool
}

// AssemblerOptions configures document assembly.
type AssemblerOptions struct {
	DomainIDLength int
	Workers        int
	// FrameworkFilter restricts framework_mappings to the given relationship
	// type keys (with or without the scf_to_ prefix). Empty means all.
	FrameworkFilter []string
}

// NewAssembler creates an assembler over read-only table and link
// snapshots.
func NewAssembler(tables *core.TableSet, links *core.LinkSet, reg *registry.Registry, opts AssemblerOptions) *Assembler {
	a := &Assembler{
		tables:         tables,
		links:          links,
		domainIDLength: opts.DomainIDLength,
		workers:        opts.Workers,
		relFields:      make(map[core.EntityType]map[string]bool),
	}
	if a.domainIDLength <= 0 {
		a.domainIDLength = 3
	}
	if a.workers <= 0 {
		a.workers = 1
	}

	for _, rule := range reg.Relationships() {
		if a.relFields[rule.Entity] == nil {
			a.relFields[rule.Entity] = make(map[string]bool)
		}
		a.relFields[rule.Entity][rule.Field] = true
	}

	if len(opts.FrameworkFilter) > 0 {
		a.filter = make(map[string]bool, len(opts.FrameworkFilter))
		for _, key := range opts.FrameworkFilter {
			a.filter[strings.TrimPrefix(key, RelTypePrefix)] = true
		}
	}

	return a
}

// AssembleAll assembles every control on a bounded worker pool, preserving
// master control-list order in the result.
func (a *Assembler) AssembleAll(ctx context.Context) ([]core.Document, error) {
	controls, ok := a.tables.Get(core.EntityControl)
	if !ok {
		return nil, &core.SheetNotFoundError{Entity: core.EntityControl}
	}

	docs := make([]core.Document, controls.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, rec := range controls.Rows {
		i := i
		id := rec.ID(controls.Key)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := a.Assemble(id)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Assemble builds the document for one control. It either fully succeeds or
// returns an error with no partial document; a *core.MissingControlError is
// fatal only for this call.
func (a *Assembler) Assemble(controlID string) (core.Document, error) {
	controls, ok := a.tables.Get(core.EntityControl)
	if !ok {
		return nil, &core.SheetNotFoundError{Entity: core.EntityControl}
	}
	rec, ok := controls.Lookup(controlID)
	if !ok {
		return nil, &core.MissingControlError{ControlID: controlID}
	}

	doc := core.Document{
		"_id":        controlID,
		"control_id": controlID,
	}

	// Flat control attributes, with dotted register targets expanded into
	// nested groups. The identifier and relationship fields are represented
	// elsewhere in the document.
	for k, v := range a.expandRecord(core.EntityControl, controls.Key, rec) {
		doc[k] = v
	}

	doc["domain"] = a.embedDomain(controlID)

	frameworks := make(map[string]any)
	scfRels := make(map[string]any)

	for _, relType := range a.links.Types() {
		if relType == DomainRelType {
			continue
		}
		link, _ := a.links.Get(relType)
		ids := link.ForSource(controlID)
		if len(ids) == 0 {
			continue
		}
		name := strings.TrimPrefix(relType, RelTypePrefix)

		switch {
		case link.Framework:
			if a.filter != nil && !a.filter[name] {
				continue
			}
			frameworks[name] = ids

		case a.canEmbed(link.TargetEntity):
			doc[embedNames[link.TargetEntity]] = a.embedRecords(link.TargetEntity, ids)

		default:
			scfRels[name] = ids
		}
	}

	doc["framework_mappings"] = frameworks
	doc["scf_relationships"] = scfRels

	pruned := core.PruneEmpty(doc)
	if pruned == nil {
		return core.Document{}, nil
	}
	return pruned.(core.Document), nil
}

// embedDomain resolves the control's domain by ID prefix and embeds the
// domain record. An unknown prefix still yields an identified stub so the
// document remains self-describing.
func (a *Assembler) embedDomain(controlID string) map[string]any {
	domainID := controlID
	if len(controlID) >= a.domainIDLength {
		domainID = controlID[:a.domainIDLength]
	}

	domains, ok := a.tables.Get(core.EntityDomain)
	if ok {
		if rec, found := domains.Lookup(domainID); found {
			return a.expandRecord(core.EntityDomain, "", rec)
		}
	}

	key := "identifier"
	if ok && domains.Key != "" {
		key = domains.Key
	}
	return map[string]any{key: domainID, "name": "Unknown"}
}

func (a *Assembler) canEmbed(entity core.EntityType) bool {
	if _, embeddable := embedNames[entity]; !embeddable {
		return false
	}
	t, ok := a.tables.Get(entity)
	return ok && t.Key != "" && t.Len() > 0
}

// embedRecords expands the referenced records in link order. Identifiers
// the target table does not know are left to the integrity report; they do
// not produce placeholder entries.
func (a *Assembler) embedRecords(entity core.EntityType, ids []string) []any {
	table, _ := a.tables.Get(entity)
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if rec, ok := table.Lookup(id); ok {
			out = append(out, a.expandRecord(entity, "", rec))
		}
	}
	return out
}

// expandRecord copies a record minus its relationship fields and the given
// key field, expanding dotted register targets into nested groups.
func (a *Assembler) expandRecord(entity core.EntityType, keyField string, rec core.Record) map[string]any {
	flat := make(core.Record, len(rec))
	for field, value := range rec {
		if field == keyField || a.relFields[entity][field] {
			continue
		}
		flat[field] = value
	}
	return core.Expand(flat)
}
