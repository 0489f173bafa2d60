package enrich

import (
	"time"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// Phase names the stage an enrichment run is in. Aborts carry the phase they
// happened in on the returned AbortError.
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseResolving  Phase = "resolving"
	PhaseComputing  Phase = "computing"
	PhaseVerifying  Phase = "verifying"
	PhaseDone       Phase = "done"
)

// Failure records one indicator that did not run, with the reason it was
// skipped or the error it produced.
type Failure struct {
	Indicator string
	Err       error
}

// Result is the outcome of a completed enrichment run.
//
// Core is the caller's table, returned untouched. Enriched is the working
// copy carrying every produced column. Applied lists indicators in the order
// they actually ran; Failed lists those that did not, which is only ever
// non-empty under the lenient policy.
type Result struct {
	Core     *domain.CoreTable
	Enriched *domain.EnrichedTable
	Applied  []string
	Failed   []Failure
	CoreHash string
	Runtime  time.Duration
}

// FailedNames returns the names of all failed indicators in report order.
func (r *Result) FailedNames() []string {
	if len(r.Failed) == 0 {
		return nil
	}
	names := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		names[i] = f.Indicator
	}
	return names
}
