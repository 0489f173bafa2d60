package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Gitchegumi/quantpipe-sub002/internal/config"
	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/ingestion"
	"github.com/Gitchegumi/quantpipe-sub002/internal/pipeline"
	chstore "github.com/Gitchegumi/quantpipe-sub002/internal/storage/clickhouse"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage/migrations"
	pgstore "github.com/Gitchegumi/quantpipe-sub002/internal/storage/postgres"
)

func main() {
	path := flag.String("path", "", "Source candle file (.csv or .json)")
	interval := flag.Int("interval", 0, "Expected candle interval in minutes (0 = config default)")
	mode := flag.String("mode", string(domain.ModeColumnar), "Consumption mode: columnar or iterator")
	downcast := flag.Bool("downcast", false, "Narrow float columns that survive a float32 round trip")
	useCache := flag.Bool("cache", false, "Reuse parse artifacts between runs")
	fillGaps := flag.Bool("fill-gaps", false, "Synthesize flagged rows for missing intervals")
	strictCadence := flag.Bool("strict-cadence", false, "Warn when cadence deviation exceeds the threshold")
	requireUTC := flag.Bool("require-utc", false, "Reject timezone-naive and non-UTC timestamps")
	persist := flag.Bool("persist", false, "Write the table and run row to the configured stores")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	if *path == "" {
		logger.Fatal().Msg("-path is required")
	}
	parsedMode, err := domain.ParseMode(*mode)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad -mode")
	}
	if *persist && parsedMode != domain.ModeColumnar {
		logger.Fatal().Msg("-persist needs columnar mode")
	}

	intervalMinutes := *interval
	if intervalMinutes == 0 {
		intervalMinutes = cfg.IntervalMinutes
	}

	runner, err := ingestion.NewRunner(ingestion.Options{
		IntervalMinutes: intervalMinutes,
		Mode:            parsedMode,
		Downcast:        *downcast,
		UseCache:        *useCache,
		CacheDir:        cfg.CacheDir,
		FillGaps:        *fillGaps,
		StrictCadence:   *strictCadence,
		RequireUTC:      *requireUTC,
		Logger:          &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bad ingestion options")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Ingest(ctx, *path)
	if err != nil {
		logger.Fatal().Err(err).Str("source", *path).Msg("ingestion failed")
	}

	printSummary(res)

	if *persist {
		if err := persistResult(ctx, cfg, &logger, *path, res); err != nil {
			logger.Fatal().Err(err).Msg("persistence failed")
		}
	}
}

func printSummary(res *ingestion.Result) {
	m := res.Metrics
	fmt.Printf("source            %s\n", m.SourcePath)
	fmt.Printf("backend           %s\n", m.Backend)
	fmt.Printf("rows              %d in, %d out\n", m.RowsIn, m.RowsOut)
	fmt.Printf("duplicates        %d removed\n", m.DuplicatesRemoved)
	fmt.Printf("gaps              %d inserted\n", m.GapsInserted)
	fmt.Printf("cadence           %d expected rows, %.2f%% deviation\n", m.CadenceExpected, m.CadenceDeviation)
	fmt.Printf("throughput        %.0f rows/s (stretch target met: %v)\n", m.RowsPerSecond, m.MetStretchTarget)
	fmt.Printf("cache hit         %v\n", m.CacheHit)
	fmt.Printf("downcast applied  %v\n", m.DowncastApplied)
	fmt.Printf("core hash         %s\n", res.CoreHash)
}

// persistResult writes the finalized table to ClickHouse and the run row to
// Postgres, whichever DSNs are configured. Migrations run first, so a fresh
// database works without a separate setup step.
func persistResult(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, path string, res *ingestion.Result) error {
	if cfg.ClickhouseDSN == "" && cfg.PostgresDSN == "" {
		return fmt.Errorf("set QUANTPIPE_CLICKHOUSE_DSN or QUANTPIPE_POSTGRES_DSN to persist")
	}
	symbol := pipeline.SymbolFor(path)

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()

		if err := chstore.NewCandleStore(conn).InsertTable(ctx, symbol, res.Table); err != nil {
			return err
		}
		logger.Info().Str("symbol", symbol).Int("rows", res.Table.Len()).Msg("candles persisted")
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}

		run := &domain.IngestionRun{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UnixMilli(),
			CoreHash:  res.CoreHash,
			Metrics:   res.Metrics,
		}
		if err := pgstore.NewRunStore(pool).Insert(ctx, run); err != nil {
			return err
		}
		logger.Info().Str("run_id", run.RunID).Msg("run cataloged")
	}
	return nil
}
