package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gitchegumi/quantpipe-sub002/internal/ingestion"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage/memory"
)

var fixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func demoPaths(t *testing.T) []string {
	t.Helper()
	paths, err := WriteFixtures(t.TempDir(), DemoFixtures(fixtureStart))
	if err != nil {
		t.Fatalf("WriteFixtures: %v", err)
	}
	return paths
}

func TestBatch_IngestsEveryFile(t *testing.T) {
	paths := demoPaths(t)
	candles := memory.NewCandleStore()
	runs := memory.NewRunStore()

	b, err := NewBatch(Options{Candles: candles, Runs: runs})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	res, err := b.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Succeeded != 3 || res.Failed != 0 {
		t.Fatalf("succeeded/failed = %d/%d, want 3/0", res.Succeeded, res.Failed)
	}
	if res.Failures != nil {
		t.Fatalf("Failures = %v, want nil", res.Failures)
	}
	if len(res.Files) != len(paths) {
		t.Fatalf("len(Files) = %d, want %d", len(res.Files), len(paths))
	}

	wantSymbols := []string{"BTC_USD_1M", "ETH_USD_1M", "SOL_USD_1M"}
	for i, f := range res.Files {
		if f.Path != paths[i] {
			t.Errorf("Files[%d].Path = %q, want %q (input order)", i, f.Path, paths[i])
		}
		if f.Symbol != wantSymbols[i] {
			t.Errorf("Files[%d].Symbol = %q, want %q", i, f.Symbol, wantSymbols[i])
		}
		if f.Err != nil {
			t.Fatalf("Files[%d].Err = %v", i, f.Err)
		}
		if f.Result == nil || f.Result.Table == nil {
			t.Fatalf("Files[%d] has no table", i)
		}
		if f.Result.Table.Len() != 60 {
			t.Errorf("Files[%d] rows = %d, want 60", i, f.Result.Table.Len())
		}
		if f.RunID == "" {
			t.Errorf("Files[%d].RunID is empty, want a catalog row id", i)
		}

		stored, err := candles.GetBySymbol(context.Background(), f.Symbol)
		if err != nil {
			t.Fatalf("GetBySymbol(%s): %v", f.Symbol, err)
		}
		if stored.Len() != 60 {
			t.Errorf("stored rows for %s = %d, want 60", f.Symbol, stored.Len())
		}

		cataloged, err := runs.ListBySource(context.Background(), f.Path)
		if err != nil {
			t.Fatalf("ListBySource(%s): %v", f.Path, err)
		}
		if len(cataloged) != 1 {
			t.Fatalf("catalog rows for %s = %d, want 1", f.Path, len(cataloged))
		}
		if cataloged[0].RunID != f.RunID {
			t.Errorf("catalog RunID = %q, want %q", cataloged[0].RunID, f.RunID)
		}
		if cataloged[0].CoreHash != f.Result.CoreHash {
			t.Errorf("catalog CoreHash = %q, want %q", cataloged[0].CoreHash, f.Result.CoreHash)
		}
	}
}

func TestBatch_IsolatesFailedFiles(t *testing.T) {
	dir := t.TempDir()
	good, err := WriteFixture(dir, FixtureSpec{
		Symbol: "BTC_USD_1M", Format: "csv", Start: fixtureStart, Interval: time.Minute, Rows: 10, Base: 42_000,
	})
	if err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	// Header lacks the volume column, which fails schema validation.
	bad := filepath.Join(dir, "bad.csv")
	data := "timestamp_utc,open,high,low,close\n2024-01-01T00:00:00Z,1,2,0.5,1.5\n"
	if err := os.WriteFile(bad, []byte(data), 0o644); err != nil {
		t.Fatalf("write bad fixture: %v", err)
	}
	missing := filepath.Join(dir, "missing.csv")

	candles := memory.NewCandleStore()
	b, err := NewBatch(Options{Candles: candles})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	res, err := b.Run(context.Background(), []string{good, bad, missing})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Succeeded != 1 || res.Failed != 2 {
		t.Fatalf("succeeded/failed = %d/%d, want 1/2", res.Succeeded, res.Failed)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("len(Failures) = %d, want 2", len(res.Failures))
	}

	var schemaErr *ingestion.SchemaError
	if !errors.As(res.Failures[bad], &schemaErr) {
		t.Errorf("Failures[bad] = %v, want SchemaError", res.Failures[bad])
	}
	if !errors.Is(res.Failures[missing], ingestion.ErrSourceNotFound) {
		t.Errorf("Failures[missing] = %v, want ErrSourceNotFound", res.Failures[missing])
	}

	if res.Files[1].Result != nil {
		t.Errorf("failed file carries a result: %+v", res.Files[1].Result)
	}

	stored, err := candles.GetBySymbol(context.Background(), "BTC_USD_1M")
	if err != nil {
		t.Fatalf("good file was not persisted: %v", err)
	}
	if stored.Len() != 10 {
		t.Errorf("stored rows = %d, want 10", stored.Len())
	}
	if _, err := candles.GetBySymbol(context.Background(), "BAD"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("bad file left rows behind: err = %v", err)
	}
}

func TestBatch_DuplicateSpanRejectedOnPersist(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteFixture(dir, FixtureSpec{
		Symbol: "BTC_USD_1M", Format: "csv", Start: fixtureStart, Interval: time.Minute, Rows: 5, Base: 42_000,
	})
	if err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	// One worker keeps processing in input order, so the second pass over
	// the same file is the one that collides.
	b, err := NewBatch(Options{Workers: 1, Candles: memory.NewCandleStore()})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	res, err := b.Run(context.Background(), []string{path, path})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 1/1", res.Succeeded, res.Failed)
	}
	if res.Files[0].Err != nil {
		t.Errorf("first pass failed: %v", res.Files[0].Err)
	}
	if !errors.Is(res.Files[1].Err, storage.ErrDuplicateKey) {
		t.Errorf("second pass err = %v, want ErrDuplicateKey", res.Files[1].Err)
	}
}

func TestBatch_PersistenceOptional(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteFixture(dir, FixtureSpec{
		Symbol: "BTC_USD_1M", Format: "csv", Start: fixtureStart, Interval: time.Minute, Rows: 5, Base: 42_000,
	})
	if err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	b, err := NewBatch(Options{})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	res, err := b.Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", res.Succeeded)
	}
	if res.Files[0].RunID != "" {
		t.Errorf("RunID = %q, want empty without a run store", res.Files[0].RunID)
	}
}

func TestBatch_CanceledContext(t *testing.T) {
	paths := demoPaths(t)
	b, err := NewBatch(Options{})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := b.Run(ctx, paths)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Fatalf("res = %+v, want nil", res)
	}
}

func TestNewBatch_Validation(t *testing.T) {
	if _, err := NewBatch(Options{Workers: -1}); err == nil {
		t.Error("negative workers accepted")
	}
	if _, err := NewBatch(Options{Ingest: ingestion.Options{IntervalMinutes: -5}}); err == nil {
		t.Error("negative interval accepted")
	}
}

func TestSymbolFor(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"data/btc_usd_1m.csv", "BTC_USD_1M"},
		{"sol_usd_1m.json", "SOL_USD_1M"},
		{"/abs/path/eth-usd.CSV", "ETH-USD"},
		{"noext", "NOEXT"},
	}
	for _, tc := range cases {
		if got := SymbolFor(tc.path); got != tc.want {
			t.Errorf("SymbolFor(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestWriteFixture_RejectsBadSpec(t *testing.T) {
	dir := t.TempDir()
	bad := []FixtureSpec{
		{Format: "csv", Start: fixtureStart, Interval: time.Minute, Rows: 1, Base: 1},               // no symbol
		{Symbol: "X", Format: "xml", Start: fixtureStart, Interval: time.Minute, Rows: 1, Base: 1},  // format
		{Symbol: "X", Format: "csv", Start: fixtureStart, Interval: time.Minute, Rows: 0, Base: 1},  // rows
		{Symbol: "X", Format: "csv", Start: fixtureStart, Interval: -time.Minute, Rows: 1, Base: 1}, // interval
	}
	for i, spec := range bad {
		if _, err := WriteFixture(dir, spec); err == nil {
			t.Errorf("spec %d accepted: %+v", i, spec)
		}
	}
}

func TestWriteFixture_Deterministic(t *testing.T) {
	spec := FixtureSpec{Symbol: "BTC_USD_1M", Format: "csv", Start: fixtureStart, Interval: time.Minute, Rows: 30, Base: 42_000}

	first, err := WriteFixture(t.TempDir(), spec)
	if err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	second, err := WriteFixture(t.TempDir(), spec)
	if err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if string(a) != string(b) {
		t.Error("same spec produced different bytes")
	}
}
