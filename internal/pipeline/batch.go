// Package pipeline runs ingestion across many source files at once and
// optionally persists the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/ingestion"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage"
)

// DefaultWorkers is the pool size used when Options.Workers is zero.
const DefaultWorkers = 4

// Options configures a Batch.
type Options struct {
	// Ingest is the per-file ingestion template. The consumption mode is
	// always forced to columnar: the batch persists whole tables, and a
	// cursor view can be rebuilt from any FileResult with NewRecords.
	Ingest ingestion.Options

	// Workers bounds how many files are ingested concurrently.
	Workers int

	Logger *zerolog.Logger

	// Candles, when set, receives the finalized table of every file under
	// the symbol derived from the file name.
	Candles storage.CandleStore

	// Runs, when set, receives one catalog row per successfully ingested
	// file.
	Runs storage.RunStore
}

// Batch ingests a set of source files on a bounded worker pool. Each file is
// processed independently; one bad file never stops the rest.
type Batch struct {
	runner  *ingestion.Runner
	workers int
	logger  zerolog.Logger
	candles storage.CandleStore
	runs    storage.RunStore
}

// FileResult is the outcome of one source file in a batch.
type FileResult struct {
	Path   string
	Symbol string
	RunID  string            // set when a catalog row was written
	Result *ingestion.Result // nil when Err is set
	Err    error
}

// BatchResult aggregates a whole batch run. Files holds one entry per input
// path, in input order.
type BatchResult struct {
	Files     []FileResult
	Succeeded int
	Failed    int
	Failures  map[string]error // failed paths to their error; nil when none
	Runtime   time.Duration
}

// NewBatch validates the options and builds the shared per-file runner.
func NewBatch(opts Options) (*Batch, error) {
	if opts.Workers < 0 {
		return nil, fmt.Errorf("batch: workers must not be negative, got %d", opts.Workers)
	}
	workers := opts.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}

	ingestOpts := opts.Ingest
	ingestOpts.Mode = domain.ModeColumnar
	if ingestOpts.Logger == nil {
		ingestOpts.Logger = opts.Logger
	}
	runner, err := ingestion.NewRunner(ingestOpts)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Batch{
		runner:  runner,
		workers: workers,
		logger:  logger,
		candles: opts.Candles,
		runs:    opts.Runs,
	}, nil
}

// Run ingests every path on the worker pool and reports per-file outcomes.
// A failed file lands in BatchResult.Failures; only context cancellation
// makes Run itself return an error.
func (b *Batch) Run(ctx context.Context, paths []string) (*BatchResult, error) {
	start := time.Now()
	files := make([]FileResult, len(paths))

	pool := pond.NewPool(b.workers)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	var succeeded, failed atomic.Int64
	for i, path := range paths {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			// Each task owns exactly one slot, so no lock is needed.
			files[i] = b.processOne(groupCtx, path)
			if files[i].Err != nil {
				failed.Add(1)
			} else {
				succeeded.Add(1)
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, fmt.Errorf("batch wait: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &BatchResult{
		Files:     files,
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Runtime:   time.Since(start),
	}
	if out.Failed > 0 {
		out.Failures = make(map[string]error, out.Failed)
		for _, f := range files {
			if f.Err != nil {
				out.Failures[f.Path] = f.Err
			}
		}
	}

	b.logger.Info().
		Int("files", len(paths)).
		Int("succeeded", out.Succeeded).
		Int("failed", out.Failed).
		Dur("runtime", out.Runtime).
		Msg("batch complete")
	return out, nil
}

func (b *Batch) processOne(ctx context.Context, path string) FileResult {
	out := FileResult{Path: path, Symbol: SymbolFor(path)}
	startedAt := time.Now().UnixMilli()

	res, err := b.runner.Ingest(ctx, path)
	if err != nil {
		b.logger.Error().Err(err).Str("source", path).Msg("batch file failed")
		out.Err = err
		return out
	}
	out.Result = res

	if b.candles != nil {
		if err := b.candles.InsertTable(ctx, out.Symbol, res.Table); err != nil {
			out.Err = fmt.Errorf("persist candles for %s: %w", out.Symbol, err)
			b.logger.Error().Err(err).Str("symbol", out.Symbol).Msg("candle persistence failed")
			return out
		}
	}
	if b.runs != nil {
		run := &domain.IngestionRun{
			RunID:     uuid.NewString(),
			StartedAt: startedAt,
			CoreHash:  res.CoreHash,
			Metrics:   res.Metrics,
		}
		if err := b.runs.Insert(ctx, run); err != nil {
			out.Err = fmt.Errorf("catalog run for %s: %w", path, err)
			b.logger.Error().Err(err).Str("run_id", run.RunID).Msg("run catalog failed")
			return out
		}
		out.RunID = run.RunID
	}
	return out
}

// SymbolFor derives the storage symbol from a source file name: the base
// name without its extension, uppercased. "data/btc_usd_1m.csv" maps to
// "BTC_USD_1M".
func SymbolFor(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}
