package enrich

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/indicator"
	"github.com/Gitchegumi/quantpipe-sub002/internal/verification"
)

// Options contains configuration for creating an Executor.
type Options struct {
	Registry *indicator.Registry
	Logger   *zerolog.Logger
}

// Executor applies requested indicators to a working copy of a finalized
// candle table. The core columns are hashed before the run and re-verified
// after it, so a compute function can never smuggle writes into ingested
// data, whatever the failure policy.
type Executor struct {
	registry *indicator.Registry
	logger   zerolog.Logger
}

// NewExecutor creates an enrichment executor over a populated registry.
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Registry == nil {
		return nil, ErrNilRegistry
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Executor{registry: opts.Registry, logger: logger}, nil
}

// Enrich computes the named indicators over core in dependency order.
// Parameter overrides are keyed by indicator name and merged over each
// spec's defaults.
//
// Under the strict policy the first failure of any kind aborts the run.
// Under the lenient policy unknown names, unsatisfiable dependencies, and
// per-indicator failures land in Result.Failed while the rest of the request
// still runs. A request that names no core table or repeats an indicator is
// rejected under both policies, as is any mutation of the core columns.
func (e *Executor) Enrich(ctx context.Context, core *domain.CoreTable, names []string, overrides map[string]indicator.Params, strict bool) (*Result, error) {
	start := time.Now()

	if core == nil {
		return nil, &AbortError{Phase: PhaseValidating, Err: ErrNilCore}
	}
	if dup := firstDuplicate(names); dup != "" {
		return nil, &AbortError{Phase: PhaseValidating, Err: &DuplicateRequestError{Name: dup}}
	}

	before := verification.Capture(core)
	table := domain.NewEnrichedTable(core)

	var (
		ordered []indicator.Spec
		failed  []Failure
	)
	if strict {
		specs, err := indicator.Resolve(e.registry, names)
		if err != nil {
			return nil, &AbortError{Phase: PhaseResolving, Err: err}
		}
		ordered = specs
	} else {
		var unknown, unresolved []string
		ordered, unknown, unresolved = indicator.Plan(e.registry, names)
		for _, name := range unknown {
			failed = append(failed, Failure{
				Indicator: name,
				Err:       &indicator.UnknownIndicatorError{Name: name, Known: knownNames(e.registry)},
			})
		}
		if len(unresolved) > 0 {
			cycleErr := &indicator.CycleError{Unresolved: unresolved}
			for _, name := range unresolved {
				failed = append(failed, Failure{Indicator: name, Err: cycleErr})
			}
		}
	}

	applied := make([]string, 0, len(ordered))
	for _, spec := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, &AbortError{Phase: PhaseComputing, Err: err}
		}

		params := spec.Defaults.Merge(overrides[spec.Name])
		if err := e.applyOne(table, spec, params); err != nil {
			if strict {
				return nil, &AbortError{Phase: PhaseComputing, Err: err}
			}
			e.logger.Warn().Str("indicator", spec.Name).Err(err).
				Msg("indicator failed; continuing")
			failed = append(failed, Failure{Indicator: spec.Name, Err: err})
			continue
		}
		applied = append(applied, spec.Name)
	}

	if err := verification.VerifyCore(before, table.Core()); err != nil {
		return nil, &AbortError{Phase: PhaseVerifying, Err: err}
	}

	runtime := time.Since(start)
	e.logger.Info().
		Int("requested", len(names)).
		Int("applied", len(applied)).
		Int("failed", len(failed)).
		Dur("runtime", runtime).
		Msg("enrichment complete")

	return &Result{
		Core:     core,
		Enriched: table,
		Applied:  applied,
		Failed:   failed,
		CoreHash: before,
		Runtime:  runtime,
	}, nil
}

// applyOne runs a single indicator and attaches its output. The produced set
// is checked in full before any column is added, so a failing indicator
// leaves the table exactly as it was.
func (e *Executor) applyOne(table *domain.EnrichedTable, spec indicator.Spec, params indicator.Params) error {
	var missing []string
	for _, col := range spec.Requires {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingInputError{Indicator: spec.Name, Missing: missing}
	}

	out, err := safeCompute(spec, table, params)
	if err != nil {
		return fmt.Errorf("compute %s: %w", spec.Name, err)
	}

	if len(out) != len(spec.Produces) {
		return &BadOutputError{
			Indicator: spec.Name,
			Reason:    fmt.Sprintf("returned %d columns, declared %d", len(out), len(spec.Produces)),
		}
	}
	for _, name := range spec.Produces {
		vals, ok := out[name]
		if !ok {
			return &BadOutputError{
				Indicator: spec.Name,
				Reason:    fmt.Sprintf("declared column %s absent from output", name),
			}
		}
		if len(vals) != table.Len() {
			return &BadOutputError{
				Indicator: spec.Name,
				Reason: fmt.Sprintf("column %s has %d values, table has %d rows",
					name, len(vals), table.Len()),
			}
		}
		if table.HasColumn(name) {
			return &BadOutputError{
				Indicator: spec.Name,
				Reason:    fmt.Sprintf("column %s already exists", name),
			}
		}
	}
	for _, name := range spec.Produces {
		if err := table.AddColumn(name, out[name]); err != nil {
			return &BadOutputError{Indicator: spec.Name, Reason: err.Error()}
		}
	}
	return nil
}

// safeCompute shields the run from a panicking compute function.
func safeCompute(spec indicator.Spec, table *domain.EnrichedTable, params indicator.Params) (out map[string][]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return spec.Compute(table, params)
}

func firstDuplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return name
		}
		seen[name] = struct{}{}
	}
	return ""
}

func knownNames(reg *indicator.Registry) []string {
	names := reg.List()
	sort.Strings(names)
	return names
}
