package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Gitchegumi/quantpipe-sub002/internal/config"
	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/enrich"
	"github.com/Gitchegumi/quantpipe-sub002/internal/indicator"
	"github.com/Gitchegumi/quantpipe-sub002/internal/ingestion"
)

func main() {
	path := flag.String("path", "", "Source candle file (.csv or .json)")
	interval := flag.Int("interval", 0, "Expected candle interval in minutes (0 = config default)")
	downcast := flag.Bool("downcast", false, "Narrow float columns that survive a float32 round trip")
	useCache := flag.Bool("cache", false, "Reuse parse artifacts between runs")
	fillGaps := flag.Bool("fill-gaps", false, "Synthesize flagged rows for missing intervals")
	strictCadence := flag.Bool("strict-cadence", false, "Warn when cadence deviation exceeds the threshold")
	requireUTC := flag.Bool("require-utc", false, "Reject timezone-naive and non-UTC timestamps")
	indicators := flag.String("indicators", "", "Comma-separated indicator names to compute")
	strict := flag.Bool("strict", false, "Abort on the first indicator failure instead of continuing")
	out := flag.String("out", "", "Output CSV path (default: source name + _enriched.csv)")
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
	names := splitNames(*indicators)
	if len(names) == 0 {
		logger.Fatal().Msg("-indicators is required (e.g. -indicators sma,rsi,macd)")
	}

	intervalMinutes := *interval
	if intervalMinutes == 0 {
		intervalMinutes = cfg.IntervalMinutes
	}
	runner, err := ingestion.NewRunner(ingestion.Options{
		IntervalMinutes: intervalMinutes,
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

	ingested, err := runner.Ingest(ctx, *path)
	if err != nil {
		logger.Fatal().Err(err).Str("source", *path).Msg("ingestion failed")
	}

	registry := indicator.NewRegistry()
	if err := indicator.RegisterBuiltins(registry); err != nil {
		logger.Fatal().Err(err).Msg("builtin registration failed")
	}
	executor, err := enrich.NewExecutor(enrich.Options{Registry: registry, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("bad enrichment options")
	}

	result, err := executor.Enrich(ctx, ingested.Table, names, nil, *strict)
	if err != nil {
		logger.Fatal().Err(err).Msg("enrichment failed")
	}

	outPath := *out
	if outPath == "" {
		outPath = strings.TrimSuffix(*path, filepath.Ext(*path)) + "_enriched.csv"
	}
	if err := writeEnrichedCSV(outPath, result.Enriched); err != nil {
		logger.Fatal().Err(err).Str("out", outPath).Msg("write failed")
	}

	fmt.Printf("rows       %d\n", result.Enriched.Len())
	fmt.Printf("applied    %s\n", strings.Join(result.Applied, ", "))
	if len(result.Failed) > 0 {
		fmt.Printf("failed     %s\n", strings.Join(result.FailedNames(), ", "))
		for _, f := range result.Failed {
			fmt.Printf("           %s: %v\n", f.Indicator, f.Err)
		}
	}
	fmt.Printf("runtime    %s\n", result.Runtime)
	fmt.Printf("core hash  %s\n", result.CoreHash)
	fmt.Printf("output     %s\n", outPath)
}

func splitNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// writeEnrichedCSV renders core columns plus indicator outputs. Timestamps
// are RFC3339 UTC; floats use the shortest exact representation, so empty
// warmup cells come out as NaN.
func writeEnrichedCSV(path string, table *domain.EnrichedTable) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	columns := table.Columns()
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	core := table.Core()
	floats := make([][]float64, len(columns))
	for j, name := range columns {
		if name == domain.ColTimestamp || name == domain.ColIsGap {
			continue
		}
		vals, err := table.Floats(name)
		if err != nil {
			return err
		}
		floats[j] = vals
	}

	record := make([]string, len(columns))
	for i := 0; i < table.Len(); i++ {
		for j, name := range columns {
			switch name {
			case domain.ColTimestamp:
				record[j] = time.UnixMilli(core.TimestampMs[i]).UTC().Format(time.RFC3339)
			case domain.ColIsGap:
				record[j] = strconv.FormatBool(core.IsGap[i])
			default:
				record[j] = strconv.FormatFloat(floats[j][i], 'g', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return file.Close()
}
