package metrics

import (
	"math"
	"time"
)

// StretchRowsPerSecond is the throughput stretch target for a single
// ingestion run, measured over the full call including parsing.
const StretchRowsPerSecond = 250_000

// CadenceWarnThreshold is the deviation percentage above which strict
// cadence checking emits a warning. Deviation never aborts a run.
const CadenceWarnThreshold = 50.0

// ExpectedRows returns the row count a perfectly regular series would have
// over [startMs, endMs] at the given interval: floor(span/interval) + 1.
// Returns 0 when the span is empty or the interval is not positive.
func ExpectedRows(startMs, endMs, intervalMs int64) int {
	if intervalMs <= 0 || endMs < startMs {
		return 0
	}
	return int((endMs-startMs)/intervalMs) + 1
}

// CadenceDeviation returns |expected-actual| / expected * 100.
// A zero expectation yields zero deviation rather than a division error.
func CadenceDeviation(expected, actual int) float64 {
	if expected == 0 {
		return 0
	}
	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(expected) * 100
}

// Throughput returns rows per second for a completed run.
func Throughput(rows int, runtime time.Duration) float64 {
	secs := runtime.Seconds()
	if secs <= 0 || rows <= 0 {
		return 0
	}
	return float64(rows) / secs
}

// MetStretchTarget reports whether a throughput reading reached the
// stretch target.
func MetStretchTarget(rowsPerSecond float64) bool {
	return rowsPerSecond >= StretchRowsPerSecond && !math.IsInf(rowsPerSecond, 1)
}
