package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

// Structural ingestion errors. Any of these aborts the run; cadence
// irregularity is the only diagnostic that stays a warning.
var (
	// ErrSourceNotFound is returned when the source file does not exist.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrEmptySource is returned when the source contains no data rows.
	ErrEmptySource = errors.New("source contains no data rows")
)

// SchemaError reports required input columns missing from the source.
// The timestamp requirement is checked after timestamp parsing, so a source
// may satisfy it under either accepted column name.
type SchemaError struct {
	Missing []string // missing required column names, canonical order
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: missing required columns [%s]", strings.Join(e.Missing, ", "))
}

// TimezoneError reports a timestamp that is timezone-naive or carries a
// non-UTC offset while normalization is disabled.
type TimezoneError struct {
	Row    int    // 1-based data row number
	Value  string // offending raw value
	Reason string // naive or offset description
}

func (e *TimezoneError) Error() string {
	return fmt.Sprintf("timezone error: row %d value %q is %s", e.Row, e.Value, e.Reason)
}

// RowError reports a malformed cell value. Row numbers are 1-based over data
// rows, excluding the header.
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("parse row %d column %s: %v", e.Row, e.Column, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
