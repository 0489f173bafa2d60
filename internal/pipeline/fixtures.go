package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// FixtureSpec shapes one deterministic candle source file. The same spec
// always renders byte-identical output, so fixtures are safe to hash and
// compare across runs.
type FixtureSpec struct {
	Symbol   string // storage symbol; also the file base name, lowercased
	Format   string // "csv" or "json"
	Start    time.Time
	Interval time.Duration
	Rows     int
	Base     float64 // price level the synthetic series oscillates around
}

func (s FixtureSpec) validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("fixture: symbol is required")
	}
	if s.Format != "csv" && s.Format != "json" {
		return fmt.Errorf("fixture: unsupported format %q (want csv or json)", s.Format)
	}
	if s.Rows < 1 {
		return fmt.Errorf("fixture: rows must be at least 1, got %d", s.Rows)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("fixture: interval must be positive, got %s", s.Interval)
	}
	return nil
}

// DemoFixtures returns three one-hour minute series (two CSV, one JSON)
// anchored at start. Ingesting them through a Batch exercises both source
// formats and multi-file persistence.
func DemoFixtures(start time.Time) []FixtureSpec {
	return []FixtureSpec{
		{Symbol: "BTC_USD_1M", Format: "csv", Start: start, Interval: time.Minute, Rows: 60, Base: 42_000},
		{Symbol: "ETH_USD_1M", Format: "csv", Start: start, Interval: time.Minute, Rows: 60, Base: 2_500},
		{Symbol: "SOL_USD_1M", Format: "json", Start: start, Interval: time.Minute, Rows: 60, Base: 95},
	}
}

// WriteFixture renders the series into dir and returns the file path. The
// file name is the lowercased symbol plus the format extension, so
// SymbolFor on the returned path recovers spec.Symbol.
func WriteFixture(dir string, spec FixtureSpec) (string, error) {
	if err := spec.validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fixture dir: %w", err)
	}

	path := filepath.Join(dir, strings.ToLower(spec.Symbol)+"."+spec.Format)
	var err error
	switch spec.Format {
	case "json":
		err = writeJSONFixture(path, spec)
	default:
		err = writeCSVFixture(path, spec)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// WriteFixtures renders every spec into dir and returns the paths in spec
// order, ready to hand to Batch.Run.
func WriteFixtures(dir string, specs []FixtureSpec) ([]string, error) {
	paths := make([]string, 0, len(specs))
	for _, spec := range specs {
		path, err := WriteFixture(dir, spec)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// fixtureCandle synthesizes row i of the series: a slow sine walk around the
// base price. Volume cycles over a small set of levels so no two neighboring
// rows are identical.
func fixtureCandle(spec FixtureSpec, i int) domain.Candle {
	open := spec.Base + 2*math.Sin(float64(i)/8)
	close := spec.Base + 2*math.Sin(float64(i+1)/8)
	return domain.Candle{
		TimestampMs: spec.Start.Add(time.Duration(i) * spec.Interval).UnixMilli(),
		Open:        open,
		High:        math.Max(open, close) + 0.75,
		Low:         math.Min(open, close) - 0.75,
		Close:       close,
		Volume:      1_000 + float64(i%7)*25,
	}
}

func writeCSVFixture(path string, spec FixtureSpec) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fixture: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{domain.ColTimestamp, domain.ColOpen, domain.ColHigh, domain.ColLow, domain.ColClose, domain.ColVolume}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < spec.Rows; i++ {
		c := fixtureCandle(spec, i)
		record := []string{
			time.UnixMilli(c.TimestampMs).UTC().Format(time.RFC3339),
			formatPrice(c.Open),
			formatPrice(c.High),
			formatPrice(c.Low),
			formatPrice(c.Close),
			formatPrice(c.Volume),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush fixture: %w", err)
	}
	return file.Close()
}

// jsonCandle mirrors the source shape the JSON reader expects.
type jsonCandle struct {
	Timestamp string  `json:"timestamp_utc"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func writeJSONFixture(path string, spec FixtureSpec) error {
	candles := make([]jsonCandle, 0, spec.Rows)
	for i := 0; i < spec.Rows; i++ {
		c := fixtureCandle(spec, i)
		candles = append(candles, jsonCandle{
			Timestamp: time.UnixMilli(c.TimestampMs).UTC().Format(time.RFC3339),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}

	data, err := json.MarshalIndent(map[string][]jsonCandle{"candles": candles}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
