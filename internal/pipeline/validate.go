package pipeline

// validate.go checks the referential-integrity contract across every link
// table: each endpoint must resolve in its normalized table. The validator
// is purely diagnostic; it never mutates or drops link records. A dangling
// control endpoint is a structural error (control tables are mandatory); a
// dangling target is a warning, because framework authoritative lists are
// known to be incomplete and dropping those links would silently lose
// mapping data.

import (
	"github.com/wrisc/scfpipe/internal/core"
)

// Validate checks every link record in every relationship type and returns
// all violations found. Link tables whose target entity has no normalized
// table at all are skipped: there is no authoritative list to check
// against.
func Validate(tables *core.TableSet, links *core.LinkSet) []core.Violation {
	var out []core.Violation

	controls, haveControls := tables.Get(core.EntityControl)

	for _, relType := range links.Types() {
		link, _ := links.Get(relType)

		var targets *core.Table
		if link.TargetEntity != "" {
			if t, ok := tables.Get(link.TargetEntity); ok && t.Key != "" && t.Len() > 0 {
				targets = t
			}
		}

		for _, rec := range link.Links {
			if haveControls {
				if _, ok := controls.Lookup(rec.SourceID); !ok {
					out = append(out, core.Violation{
						RelationshipType: relType,
						SourceID:         rec.SourceID,
						TargetID:         rec.TargetID,
						Severity:         core.SeverityError,
						Detail:           "control identifier not found in control table",
					})
				}
			}

			if targets == nil {
				continue
			}
			if _, ok := targets.Lookup(rec.TargetID); !ok {
				out = append(out, core.Violation{
					RelationshipType: relType,
					SourceID:         rec.SourceID,
					TargetID:         rec.TargetID,
					Severity:         core.SeverityWarning,
					Detail:           "target identifier not found in " + string(link.TargetEntity) + " table; link retained",
				})
			}
		}
	}

	return out
}
