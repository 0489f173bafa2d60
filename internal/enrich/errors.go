package enrich

import (
	"errors"
	"fmt"
	"strings"
)

// Hard validation errors. These abort the call under both failure policies
// because they signal a malformed request, not an indicator failure.
var (
	// ErrNilCore is returned when the caller passes no core table.
	ErrNilCore = errors.New("nil core table")

	// ErrNilRegistry is returned when an executor is built without a registry.
	ErrNilRegistry = errors.New("nil indicator registry")
)

// DuplicateRequestError reports an indicator named more than once in a
// single request. Parameters apply per name, so a second occurrence could
// only shadow the first.
type DuplicateRequestError struct {
	Name string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("indicator %q requested more than once", e.Name)
}

// MissingInputError reports required columns absent from the working copy at
// the time an indicator was scheduled to run.
type MissingInputError struct {
	Indicator string
	Missing   []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("indicator %q missing required columns [%s]",
		e.Indicator, strings.Join(e.Missing, ", "))
}

// BadOutputError reports a compute function whose output did not match its
// declared Produces set: a missing or undeclared column, a wrong length, or
// a name that collides with an existing column. Output is only attached to
// the table once the whole set checks out, so a bad producer adds nothing.
type BadOutputError struct {
	Indicator string
	Reason    string
}

func (e *BadOutputError) Error() string {
	return fmt.Sprintf("indicator %q produced bad output: %s", e.Indicator, e.Reason)
}

// AbortError wraps the failure that stopped an enrichment run, tagged with
// the phase it happened in. Under the strict policy any indicator failure
// aborts; under the lenient policy only request validation, context
// cancellation, and immutability violations do.
type AbortError struct {
	Phase Phase
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("enrichment aborted while %s: %v", e.Phase, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
