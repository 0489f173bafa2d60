package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Gitchegumi/quantpipe-sub002/internal/config"
	"github.com/Gitchegumi/quantpipe-sub002/internal/ingestion"
	"github.com/Gitchegumi/quantpipe-sub002/internal/pipeline"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage"
	chstore "github.com/Gitchegumi/quantpipe-sub002/internal/storage/clickhouse"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage/migrations"
	pgstore "github.com/Gitchegumi/quantpipe-sub002/internal/storage/postgres"
)

func main() {
	paths := flag.String("paths", "", "Comma-separated source files or globs")
	workers := flag.Int("workers", 0, "Concurrent file ingestions (0 = config default)")
	interval := flag.Int("interval", 0, "Expected candle interval in minutes (0 = config default)")
	downcast := flag.Bool("downcast", false, "Narrow float columns that survive a float32 round trip")
	useCache := flag.Bool("cache", false, "Reuse parse artifacts between runs")
	fillGaps := flag.Bool("fill-gaps", false, "Synthesize flagged rows for missing intervals")
	strictCadence := flag.Bool("strict-cadence", false, "Warn when cadence deviation exceeds the threshold")
	requireUTC := flag.Bool("require-utc", false, "Reject timezone-naive and non-UTC timestamps")
	persist := flag.Bool("persist", false, "Write tables and run rows to the configured stores")
	demo := flag.Bool("demo", false, "Generate deterministic sample sources and include them in the run")
	demoDir := flag.String("demo-dir", "demo_data", "Directory for -demo sources")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := expandPaths(*paths)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad -paths")
	}
	if *demo {
		generated, err := pipeline.WriteFixtures(*demoDir, pipeline.DemoFixtures(time.Now().UTC().Truncate(time.Hour)))
		if err != nil {
			logger.Fatal().Err(err).Msg("demo fixtures failed")
		}
		logger.Info().Strs("files", generated).Msg("demo sources generated")
		inputs = append(inputs, generated...)
	}
	if len(inputs) == 0 {
		logger.Fatal().Msg("-paths is required (or use -demo)")
	}

	var candles storage.CandleStore
	var runs storage.RunStore
	if *persist {
		if cfg.ClickhouseDSN == "" && cfg.PostgresDSN == "" {
			logger.Fatal().Msg("set QUANTPIPE_CLICKHOUSE_DSN or QUANTPIPE_POSTGRES_DSN to persist")
		}
		if cfg.ClickhouseDSN != "" {
			conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
			if err != nil {
				logger.Fatal().Err(err).Msg("clickhouse migrations failed")
			}
			defer conn.Close()
			candles = chstore.NewCandleStore(conn)
		}
		if cfg.PostgresDSN != "" {
			pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
			if err != nil {
				logger.Fatal().Err(err).Msg("postgres connection failed")
			}
			defer pool.Close()
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				logger.Fatal().Err(err).Msg("postgres migrations failed")
			}
			runs = pgstore.NewRunStore(pool)
		}
	}

	intervalMinutes := *interval
	if intervalMinutes == 0 {
		intervalMinutes = cfg.IntervalMinutes
	}
	poolSize := *workers
	if poolSize == 0 {
		poolSize = cfg.Workers
	}

	batch, err := pipeline.NewBatch(pipeline.Options{
		Ingest: ingestion.Options{
			IntervalMinutes: intervalMinutes,
			Downcast:        *downcast,
			UseCache:        *useCache,
			CacheDir:        cfg.CacheDir,
			FillGaps:        *fillGaps,
			StrictCadence:   *strictCadence,
			RequireUTC:      *requireUTC,
		},
		Workers: poolSize,
		Logger:  &logger,
		Candles: candles,
		Runs:    runs,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bad batch options")
	}

	res, err := batch.Run(ctx, inputs)
	if err != nil {
		logger.Fatal().Err(err).Msg("batch failed")
	}

	printBatchSummary(res)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

// expandPaths resolves each comma-separated entry as a glob. Entries that
// match nothing are kept verbatim so missing files surface as per-file
// failures instead of vanishing silently.
func expandPaths(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		matches, err := filepath.Glob(part)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", part, err)
		}
		if len(matches) == 0 {
			out = append(out, part)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

func printBatchSummary(res *pipeline.BatchResult) {
	fmt.Printf("%-40s %-14s %8s %6s %6s  %s\n", "PATH", "SYMBOL", "ROWS", "DUPS", "GAPS", "STATUS")
	for _, f := range res.Files {
		if f.Err != nil {
			fmt.Printf("%-40s %-14s %8s %6s %6s  %v\n", f.Path, f.Symbol, "-", "-", "-", f.Err)
			continue
		}
		m := f.Result.Metrics
		fmt.Printf("%-40s %-14s %8d %6d %6d  ok\n",
			f.Path, f.Symbol, m.RowsOut, m.DuplicatesRemoved, m.GapsInserted)
	}
	fmt.Printf("\n%d files: %d succeeded, %d failed in %s\n",
		len(res.Files), res.Succeeded, res.Failed, res.Runtime)
}
