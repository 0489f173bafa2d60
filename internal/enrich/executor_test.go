package enrich

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Gitchegumi/quantpipe-sub002/internal/corehash"
	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/indicator"
	"github.com/Gitchegumi/quantpipe-sub002/internal/verification"
)

// coreFixture builds n one-minute candles with a gently rising close.
func coreFixture(t *testing.T, n int) *domain.CoreTable {
	t.Helper()
	table := domain.NewCoreTable(n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		table.Append(domain.Candle{
			TimestampMs: int64(i) * 60_000,
			Open:        price,
			High:        price + 1,
			Low:         price - 1,
			Close:       price,
			Volume:      10,
		})
	}
	return table
}

// executorFixture builds an executor over the builtin catalogue plus any
// extra test specs.
func executorFixture(t *testing.T, extra ...indicator.Spec) *Executor {
	t.Helper()
	reg := indicator.NewRegistry()
	if err := indicator.RegisterBuiltins(reg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	for _, s := range extra {
		if err := reg.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name, err)
		}
	}
	exec, err := NewExecutor(Options{Registry: reg})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

func requireAbort(t *testing.T, err error, phase Phase) *AbortError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an abort in phase %s, got nil error", phase)
	}
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %T: %v", err, err)
	}
	if abort.Phase != phase {
		t.Errorf("expected abort in phase %s, got %s", phase, abort.Phase)
	}
	return abort
}

func TestEnrich_AppliesInDependencyOrder(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 5)

	// vwap requires the typical_price column, so it must run second even
	// though it is requested first.
	res, err := exec.Enrich(context.Background(), core, []string{indicator.ColVWAP, indicator.ColTypicalPrice}, nil, true)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	want := []string{indicator.ColTypicalPrice, indicator.ColVWAP}
	if len(res.Applied) != 2 || res.Applied[0] != want[0] || res.Applied[1] != want[1] {
		t.Errorf("Expected applied %v, got %v", want, res.Applied)
	}
	for _, col := range want {
		if !res.Enriched.HasColumn(col) {
			t.Errorf("Expected enriched column %s", col)
		}
	}
	if len(res.Failed) != 0 {
		t.Errorf("Expected no failures, got %v", res.FailedNames())
	}
}

func TestEnrich_CoreTableUntouched(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 40)
	before := corehash.Sum(core)

	res, err := exec.Enrich(context.Background(), core,
		[]string{indicator.ColSMA, indicator.ColRSI, indicator.ColMACD}, nil, false)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if got := corehash.Sum(core); got != before {
		t.Errorf("Core table changed: hash %s != %s", got, before)
	}
	if res.CoreHash != before {
		t.Errorf("Result hash %s != input hash %s", res.CoreHash, before)
	}
	// The working copy keeps identical core columns.
	if got := corehash.Sum(res.Enriched.Core()); got != before {
		t.Errorf("Working copy core diverged: hash %s != %s", got, before)
	}
}

func TestEnrich_SelectivityNoAutoInclusion(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 5)

	// vwap alone: its typical_price dependency is not pulled in silently.
	_, err := exec.Enrich(context.Background(), core, []string{indicator.ColVWAP}, nil, true)
	abort := requireAbort(t, err, PhaseComputing)

	var missing *MissingInputError
	if !errors.As(abort.Err, &missing) {
		t.Fatalf("expected MissingInputError, got %v", abort.Err)
	}
	if missing.Indicator != indicator.ColVWAP {
		t.Errorf("Expected vwap to fail, got %s", missing.Indicator)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != indicator.ColTypicalPrice {
		t.Errorf("Expected missing [typical_price], got %v", missing.Missing)
	}
}

func TestEnrich_LenientIsolatesFailures(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 30)

	res, err := exec.Enrich(context.Background(), core,
		[]string{indicator.ColSMA, "bogus", indicator.ColEMA}, nil, false)
	if err != nil {
		t.Fatalf("Lenient run must not fail on an unknown name: %v", err)
	}

	if len(res.Applied) != 2 || res.Applied[0] != indicator.ColSMA || res.Applied[1] != indicator.ColEMA {
		t.Errorf("Expected applied [sma ema], got %v", res.Applied)
	}
	if got := res.FailedNames(); len(got) != 1 || got[0] != "bogus" {
		t.Fatalf("Expected failed [bogus], got %v", got)
	}
	var unknown *indicator.UnknownIndicatorError
	if !errors.As(res.Failed[0].Err, &unknown) {
		t.Errorf("Expected UnknownIndicatorError, got %v", res.Failed[0].Err)
	}
	if res.Enriched.HasColumn("bogus") {
		t.Error("Failed indicator must not leave a column behind")
	}
}

func TestEnrich_LenientFailedDependencyCascades(t *testing.T) {
	broken := indicator.Spec{
		Name:     "broken",
		Requires: []string{domain.ColClose},
		Produces: []string{"broken_out"},
		Compute: func(*domain.EnrichedTable, indicator.Params) (map[string][]float64, error) {
			return nil, errors.New("refusing to compute")
		},
	}
	dependent := indicator.Spec{
		Name:     "dependent",
		Requires: []string{"broken_out"},
		Produces: []string{"dependent_out"},
		Compute: func(t *domain.EnrichedTable, _ indicator.Params) (map[string][]float64, error) {
			return map[string][]float64{"dependent_out": make([]float64, t.Len())}, nil
		},
	}
	exec := executorFixture(t, broken, dependent)
	core := coreFixture(t, 5)

	res, err := exec.Enrich(context.Background(), core,
		[]string{"broken", "dependent", indicator.ColSMA}, nil, false)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if got := res.FailedNames(); len(got) != 2 || got[0] != "broken" || got[1] != "dependent" {
		t.Fatalf("Expected failed [broken dependent], got %v", got)
	}
	var missing *MissingInputError
	if !errors.As(res.Failed[1].Err, &missing) {
		t.Errorf("Expected the dependent to fail on missing input, got %v", res.Failed[1].Err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != indicator.ColSMA {
		t.Errorf("Expected applied [sma], got %v", res.Applied)
	}
}

func TestEnrich_StrictAbortsOnUnknown(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 5)

	_, err := exec.Enrich(context.Background(), core, []string{indicator.ColSMA, "bogus"}, nil, true)
	abort := requireAbort(t, err, PhaseResolving)

	var unknown *indicator.UnknownIndicatorError
	if !errors.As(abort.Err, &unknown) {
		t.Fatalf("expected UnknownIndicatorError, got %v", abort.Err)
	}
	if unknown.Name != "bogus" {
		t.Errorf("Expected bogus reported, got %s", unknown.Name)
	}
}

func TestEnrich_DuplicateRequestRejectedBothModes(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 5)

	for _, strict := range []bool{true, false} {
		_, err := exec.Enrich(context.Background(), core,
			[]string{indicator.ColSMA, indicator.ColEMA, indicator.ColSMA}, nil, strict)
		abort := requireAbort(t, err, PhaseValidating)

		var dup *DuplicateRequestError
		if !errors.As(abort.Err, &dup) {
			t.Fatalf("strict=%v: expected DuplicateRequestError, got %v", strict, abort.Err)
		}
		if dup.Name != indicator.ColSMA {
			t.Errorf("strict=%v: expected sma flagged, got %s", strict, dup.Name)
		}
	}
}

func TestEnrich_NilCoreRejectedBothModes(t *testing.T) {
	exec := executorFixture(t)

	for _, strict := range []bool{true, false} {
		_, err := exec.Enrich(context.Background(), nil, []string{indicator.ColSMA}, nil, strict)
		abort := requireAbort(t, err, PhaseValidating)
		if !errors.Is(abort, ErrNilCore) {
			t.Errorf("strict=%v: expected ErrNilCore, got %v", strict, abort.Err)
		}
	}
}

func TestEnrich_MutatingIndicatorFatalBothModes(t *testing.T) {
	mutator := indicator.Spec{
		Name:     "mutator",
		Requires: []string{domain.ColClose},
		Produces: []string{"mutator_out"},
		Compute: func(t *domain.EnrichedTable, _ indicator.Params) (map[string][]float64, error) {
			t.Core().Close[0] = -42
			return map[string][]float64{"mutator_out": make([]float64, t.Len())}, nil
		},
	}
	exec := executorFixture(t, mutator)

	for _, strict := range []bool{true, false} {
		core := coreFixture(t, 5)
		_, err := exec.Enrich(context.Background(), core, []string{"mutator"}, nil, strict)
		abort := requireAbort(t, err, PhaseVerifying)

		var violation *verification.ImmutabilityError
		if !errors.As(abort.Err, &violation) {
			t.Errorf("strict=%v: expected ImmutabilityError, got %v", strict, abort.Err)
		}
	}
}

func TestEnrich_PanicIsRecovered(t *testing.T) {
	angry := indicator.Spec{
		Name:     "angry",
		Requires: []string{domain.ColClose},
		Produces: []string{"angry_out"},
		Compute: func(*domain.EnrichedTable, indicator.Params) (map[string][]float64, error) {
			panic("indicator bug")
		},
	}
	exec := executorFixture(t, angry)
	core := coreFixture(t, 30)

	res, err := exec.Enrich(context.Background(), core, []string{"angry", indicator.ColSMA}, nil, false)
	if err != nil {
		t.Fatalf("Lenient run must survive a panicking indicator: %v", err)
	}
	if got := res.FailedNames(); len(got) != 1 || got[0] != "angry" {
		t.Fatalf("Expected failed [angry], got %v", got)
	}
	if len(res.Applied) != 1 || res.Applied[0] != indicator.ColSMA {
		t.Errorf("Expected applied [sma], got %v", res.Applied)
	}

	_, err = exec.Enrich(context.Background(), core, []string{"angry"}, nil, true)
	requireAbort(t, err, PhaseComputing)
}

func TestEnrich_PartialOutputAddsNothing(t *testing.T) {
	half := indicator.Spec{
		Name:     "half",
		Requires: []string{domain.ColClose},
		Produces: []string{"half_a", "half_b"},
		Compute: func(t *domain.EnrichedTable, _ indicator.Params) (map[string][]float64, error) {
			return map[string][]float64{"half_a": make([]float64, t.Len())}, nil
		},
	}
	exec := executorFixture(t, half)
	core := coreFixture(t, 5)

	res, err := exec.Enrich(context.Background(), core, []string{"half"}, nil, false)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	var bad *BadOutputError
	if len(res.Failed) != 1 || !errors.As(res.Failed[0].Err, &bad) {
		t.Fatalf("Expected BadOutputError, got %v", res.Failed)
	}
	if res.Enriched.HasColumn("half_a") || res.Enriched.HasColumn("half_b") {
		t.Error("Bad output must not attach any column")
	}
}

func TestEnrich_ParamOverrides(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 5) // closes 100..104

	overrides := map[string]indicator.Params{
		indicator.ColSMA: {"period": 2},
	}
	res, err := exec.Enrich(context.Background(), core, []string{indicator.ColSMA}, overrides, true)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	vals, err := res.Enriched.Floats(indicator.ColSMA)
	if err != nil {
		t.Fatalf("Floats failed: %v", err)
	}
	if !math.IsNaN(vals[0]) {
		t.Errorf("Expected NaN warmup at row 0, got %v", vals[0])
	}
	if vals[1] != 100.5 || vals[4] != 103.5 {
		t.Errorf("Expected period-2 means 100.5 and 103.5, got %v and %v", vals[1], vals[4])
	}
}

func TestEnrich_EmptyRequest(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 5)

	res, err := exec.Enrich(context.Background(), core, nil, nil, true)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if len(res.Applied) != 0 || len(res.Failed) != 0 {
		t.Errorf("Expected empty outcome, got applied=%v failed=%v", res.Applied, res.FailedNames())
	}
	if got := len(res.Enriched.ExtraColumns()); got != 0 {
		t.Errorf("Expected no extra columns, got %d", got)
	}
}

func TestEnrich_CanceledContext(t *testing.T) {
	exec := executorFixture(t)
	core := coreFixture(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Enrich(ctx, core, []string{indicator.ColSMA}, nil, false)
	abort := requireAbort(t, err, PhaseComputing)
	if !errors.Is(abort, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", abort.Err)
	}
}

func TestNewExecutor_NilRegistry(t *testing.T) {
	if _, err := NewExecutor(Options{}); !errors.Is(err, ErrNilRegistry) {
		t.Fatalf("Expected ErrNilRegistry, got %v", err)
	}
}
