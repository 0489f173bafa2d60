package domain

import "time"

// Source backend identifiers recorded in ingestion metrics.
const (
	BackendCSV   = "csv"
	BackendJSON  = "json"
	BackendCache = "cache"
)

// IngestionMetrics captures per-run diagnostics for one source file.
type IngestionMetrics struct {
	SourcePath        string  // absolute or as-given source path
	Backend           string  // reader backend: csv, json, or cache
	RowsIn            int     // rows read from the source before transforms
	RowsOut           int     // rows in the finalized table
	DuplicatesRemoved int     // rows dropped by keep-first dedup
	GapsInserted      int     // synthetic rows added by gap fill
	CadenceExpected   int     // expected row count for the observed span
	CadenceDeviation  float64 // percent deviation of actual vs expected rows
	Runtime           time.Duration
	RowsPerSecond     float64
	CacheHit          bool // table served from the binary cache
	DowncastApplied   bool // at least one column was narrowed
	MetStretchTarget  bool // throughput reached the stretch target
}

// IngestionRun is one catalog entry: a finalized ingestion of a single
// source, keyed by RunID. Corresponds to the ingestion_runs table in Postgres.
type IngestionRun struct {
	RunID     string // UUID assigned at ingestion time
	StartedAt int64  // Unix timestamp in milliseconds
	CoreHash  string // hex sha256 digest of the finalized core columns
	Metrics   IngestionMetrics
}
