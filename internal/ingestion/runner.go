package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gitchegumi/quantpipe-sub002/internal/cache"
	"github.com/Gitchegumi/quantpipe-sub002/internal/corehash"
	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/metrics"
)

// Options contains configuration for creating a Runner.
type Options struct {
	IntervalMinutes int         // expected candle cadence, default 1
	Mode            domain.Mode // consumption mode, default columnar
	Downcast        bool        // narrow float columns that tolerate float32
	UseCache        bool        // serve and refresh binary cache artifacts
	CacheDir        string      // artifact directory, default .qpcache
	FillGaps        bool        // synthesize rows for missing intervals
	StrictCadence   bool        // warn when cadence deviation exceeds threshold
	RequireUTC      bool        // reject naive/offset timestamps instead of normalizing
	Logger          *zerolog.Logger
}

// Runner ingests one source file at a time into a finalized candle table.
type Runner struct {
	intervalMs    int64
	mode          domain.Mode
	downcast      bool
	fillGaps      bool
	strictCadence bool
	requireUTC    bool
	cache         *cache.Store // nil when caching is disabled
	logger        zerolog.Logger
}

// Result is one finalized ingestion. Exactly one of Table and Records is
// set, matching the configured mode; both views carry identical rows.
type Result struct {
	Table    *domain.CoreTable
	Records  *Records
	CoreHash string
	Metrics  domain.IngestionMetrics
}

// NewRunner creates an ingestion runner.
func NewRunner(opts Options) (*Runner, error) {
	intervalMinutes := opts.IntervalMinutes
	if intervalMinutes == 0 {
		intervalMinutes = 1
	}
	if intervalMinutes < 0 {
		return nil, fmt.Errorf("interval must be positive, got %d", intervalMinutes)
	}

	mode := opts.Mode
	if mode == "" {
		mode = domain.ModeColumnar
	} else if _, err := domain.ParseMode(string(mode)); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	r := &Runner{
		intervalMs:    int64(intervalMinutes) * 60_000,
		mode:          mode,
		downcast:      opts.Downcast,
		fillGaps:      opts.FillGaps,
		strictCadence: opts.StrictCadence,
		requireUTC:    opts.RequireUTC,
		logger:        logger,
	}

	if opts.UseCache {
		dir := opts.CacheDir
		if dir == "" {
			dir = ".qpcache"
		}
		store, err := cache.NewStore(dir)
		if err != nil {
			return nil, err
		}
		r.cache = store
	}
	return r, nil
}

// Ingest runs the full pipeline for one source file. Every structural
// problem aborts with an error; cadence irregularity only warns.
func (r *Runner) Ingest(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	m := domain.IngestionMetrics{SourcePath: path}

	if r.cache != nil {
		table, hit, err := r.cache.Lookup(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
			}
			return nil, err
		}
		if hit {
			m.Backend = domain.BackendCache
			m.CacheHit = true
			r.describeTable(table, &m)
			return r.finalize(table, m, start), nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, backend, err := readSource(path)
	if err != nil {
		return nil, err
	}
	m.Backend = backend
	m.RowsIn = len(raw.rows)

	tsMs, tsFound, err := normalizeTimestamps(raw, !r.requireUTC)
	if err != nil {
		return nil, err
	}
	if err := validateColumns(raw, tsFound); err != nil {
		return nil, err
	}

	frame, err := parseFrame(raw, tsMs)
	if err != nil {
		return nil, err
	}
	if len(frame.dropped) > 0 {
		r.logger.Debug().Strs("columns", frame.dropped).Str("source", path).
			Msg("dropping extra source columns")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame.sortChronological()
	m.DuplicatesRemoved = frame.dedupe()

	m.CadenceExpected = metrics.ExpectedRows(frame.tsMs[0], frame.tsMs[frame.len()-1], r.intervalMs)
	m.CadenceDeviation = metrics.CadenceDeviation(m.CadenceExpected, frame.len())
	if r.strictCadence && m.CadenceDeviation > metrics.CadenceWarnThreshold {
		r.logger.Warn().
			Str("source", path).
			Int("expected_rows", m.CadenceExpected).
			Int("actual_rows", frame.len()).
			Float64("deviation_pct", m.CadenceDeviation).
			Msg("cadence deviation exceeds threshold; continuing")
	}

	if r.fillGaps {
		m.GapsInserted = frame.fillGaps(r.intervalMs)
	}

	table := frame.restrict()

	if r.downcast {
		narrowed := downcastTable(table)
		m.DowncastApplied = len(narrowed) > 0
	}

	if r.cache != nil {
		if err := r.cache.Write(path, table); err != nil {
			// A failed artifact write degrades the next run to a re-parse;
			// the current result is unaffected.
			r.logger.Warn().Err(err).Str("source", path).Msg("cache write failed")
		}
	}

	return r.finalize(table, m, start), nil
}

// describeTable fills table-derived metrics for runs served from cache,
// where transform counters do not apply.
func (r *Runner) describeTable(table *domain.CoreTable, m *domain.IngestionMetrics) {
	m.RowsIn = table.Len()
	m.DowncastApplied = len(table.Narrowed) > 0
	for _, gap := range table.IsGap {
		if gap {
			m.GapsInserted++
		}
	}
	if table.Len() > 0 {
		m.CadenceExpected = metrics.ExpectedRows(
			table.TimestampMs[0], table.TimestampMs[table.Len()-1], r.intervalMs)
		m.CadenceDeviation = metrics.CadenceDeviation(m.CadenceExpected, table.Len())
	}
}

// finalize computes the core hash and closing metrics, then adapts the
// table to the configured consumption mode.
func (r *Runner) finalize(table *domain.CoreTable, m domain.IngestionMetrics, start time.Time) *Result {
	m.RowsOut = table.Len()
	m.Runtime = time.Since(start)
	m.RowsPerSecond = metrics.Throughput(m.RowsOut, m.Runtime)
	m.MetStretchTarget = metrics.MetStretchTarget(m.RowsPerSecond)

	res := &Result{
		CoreHash: corehash.Sum(table),
		Metrics:  m,
	}
	switch r.mode {
	case domain.ModeIterator:
		res.Records = NewRecords(table)
	default:
		res.Table = table
	}

	r.logger.Info().
		Str("source", m.SourcePath).
		Str("backend", m.Backend).
		Int("rows_out", m.RowsOut).
		Int("duplicates_removed", m.DuplicatesRemoved).
		Int("gaps_inserted", m.GapsInserted).
		Bool("cache_hit", m.CacheHit).
		Dur("runtime", m.Runtime).
		Float64("rows_per_sec", m.RowsPerSecond).
		Msg("ingestion complete")

	return res
}
