package ingestion

import (
	"errors"
	"strconv"
	"time"
)

// Accepted timestamp column names. The canonical name wins when both appear.
var timestampAliases = []string{"timestamp_utc", "timestamp"}

// Epoch values at or above this magnitude are interpreted as milliseconds;
// below it, as seconds. The boundary sits in 2001 for ms and far beyond any
// market data for seconds.
const epochMsThreshold = 1e12

// Explicit-offset layouts tried before naive ones.
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
}

// Naive layouts carry no zone information. time.Parse reads them as UTC,
// which is exactly the normalization semantic; without normalization they
// are rejected.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var errUnparseableTimestamp = errors.New("unparseable timestamp")

// parseTimestamp converts one raw timestamp cell into UTC epoch milliseconds.
// row is the 1-based data row for error reporting. When normalize is false,
// timezone-naive values and non-UTC offsets yield a TimezoneError; when true,
// naive values are read as UTC and offsets are converted.
func parseTimestamp(raw string, row int, normalize bool) (int64, error) {
	// Integer epochs are inherently UTC.
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if v >= epochMsThreshold || v <= -epochMsThreshold {
			return v, nil
		}
		return v * 1000, nil
	}

	for _, layout := range zonedLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		_, offset := t.Zone()
		if offset != 0 && !normalize {
			return 0, &TimezoneError{Row: row, Value: raw, Reason: "non-UTC (explicit offset)"}
		}
		return t.UTC().UnixMilli(), nil
	}

	for _, layout := range naiveLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if !normalize {
			return 0, &TimezoneError{Row: row, Value: raw, Reason: "timezone-naive"}
		}
		return t.UnixMilli(), nil
	}

	return 0, &RowError{Row: row, Column: "timestamp", Err: errUnparseableTimestamp}
}
