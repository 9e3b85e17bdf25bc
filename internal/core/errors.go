package core

// errors.go defines the pipeline's error taxonomy.
//
// Stage-local errors that affect a single record (ValueConversionError) are
// normally collected into the run report instead of aborting the pipeline.
// Errors that compromise all downstream output (ConfigurationError,
// SheetNotFoundError) abort the run immediately. MissingControlError is
// fatal only for the single assembly call that raised it.

import "fmt"

// ConfigurationError indicates the column register is missing or
// structurally malformed. Always fatal.
type ConfigurationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("column register %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("column register %s: %s", e.Path, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SheetNotFoundError indicates a sheet required by a mandatory entity type
// is absent from the raw extraction. Always fatal.
type SheetNotFoundError struct {
	Entity EntityType
}

func (e *SheetNotFoundError) Error() string {
	return fmt.Sprintf("no sheet found for mandatory entity type %q", e.Entity)
}

// ValueConversionError reports a raw cell that could not be coerced to its
// rule's declared type, with enough context to locate the offending source
// row without re-running the pipeline.
type ValueConversionError struct {
	Entity EntityType
	Sheet  string
	Row    int // 1-based data row within the sheet
	Column string
	Value  string
	Reason string
}

func (e *ValueConversionError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("sheet %q row %d column %q: cannot convert %q: %s",
			e.Sheet, e.Row, e.Column, e.Value, e.Reason)
	}
	return fmt.Sprintf("column %q: cannot convert %q: %s", e.Column, e.Value, e.Reason)
}

// MissingControlError indicates document assembly was requested for a
// control identifier with no control record. It fails that single assembly
// call and never aborts a batch of other controls.
type MissingControlError struct {
	ControlID string
}

func (e *MissingControlError) Error() string {
	return fmt.Sprintf("no control record for %q", e.ControlID)
}
