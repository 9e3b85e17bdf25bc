package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wrisc/scfpipe/internal/core"
)

// UnmappedColumn records a raw column with no register entry. The column is
// passed through unmodified; this is informational.
type UnmappedColumn struct {
	Sheet  string
	Column string
}

// DuplicateID records a later occurrence of an already-seen identifier. The
// first occurrence wins; the duplicate row is dropped.
type DuplicateID struct {
	Entity core.EntityType
	ID     string
	Row    int
}

// Report accumulates everything a caller needs to locate and fix offending
// source rows without re-running the pipeline: unmapped columns, dropped
// duplicates, per-cell conversion failures, and integrity violations.
type Report struct {
	RunID         string
	SourceVersion string
	StartedAt     time.Time
	Duration      time.Duration

	Unmapped    []UnmappedColumn
	Duplicates  []DuplicateID
	Conversions []core.ValueConversionError
	Violations  []core.Violation
}

// NewReport creates a report stamped with a fresh run ID.
func NewReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// ErrorViolations returns the violations with error severity.
func (r *Report) ErrorViolations() []core.Violation {
	var out []core.Violation
	for _, v := range r.Violations {
		if v.Severity == core.SeverityError {
			out = append(out, v)
		}
	}
	return out
}

// WarningCount returns the number of warning-severity violations.
func (r *Report) WarningCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == core.SeverityWarning {
			n++
		}
	}
	return n
}

// Failed reports whether the run produced record-level errors: any
// conversion failure or error-severity violation.
func (r *Report) Failed() bool {
	return len(r.Conversions) > 0 || len(r.ErrorViolations()) > 0
}

// CheckEscalation applies the caller-configured warning threshold: when
// maxWarnings is positive and the warning count exceeds it, the run is
// escalated to a failure. Zero disables escalation.
func (r *Report) CheckEscalation(maxWarnings int) error {
	if maxWarnings > 0 && r.WarningCount() > maxWarnings {
		return fmt.Errorf("integrity warnings (%d) exceed configured limit (%d)", r.WarningCount(), maxWarnings)
	}
	return nil
}

// Log writes a structured summary followed by every finding, with enough
// context to locate each offending source row.
func (r *Report) Log(logger *slog.Logger) {
	logger.Info("pipeline report",
		"run_id", r.RunID,
		"source_version", r.SourceVersion,
		"duration", r.Duration,
		"unmapped_columns", len(r.Unmapped),
		"duplicate_ids", len(r.Duplicates),
		"conversion_errors", len(r.Conversions),
		"violations", len(r.Violations),
		"violation_warnings", r.WarningCount(),
	)

	for _, u := range r.Unmapped {
		logger.Debug("unmapped column passed through", "sheet", u.Sheet, "column", u.Column)
	}
	for _, d := range r.Duplicates {
		logger.Warn("duplicate identifier dropped", "entity", d.Entity, "id", d.ID, "row", d.Row)
	}
	for i := range r.Conversions {
		c := &r.Conversions[i]
		logger.Error("value conversion failed",
			"entity", c.Entity, "sheet", c.Sheet, "row", c.Row,
			"column", c.Column, "value", c.Value, "reason", c.Reason)
	}
	for _, v := range r.Violations {
		attrs := []any{
			"relationship", v.RelationshipType,
			"source_id", v.SourceID,
			"target_id", v.TargetID,
			"detail", v.Detail,
		}
		if v.Severity == core.SeverityError {
			logger.Error("integrity violation", attrs...)
		} else {
			logger.Warn("integrity violation", attrs...)
		}
	}
}
