package domain

// Core column names of a finalized candle table. Every ingested table is
// restricted to exactly these seven columns, in this order.
const (
	ColTimestamp = "timestamp_utc"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColClose     = "close"
	ColVolume    = "volume"
	ColIsGap     = "is_gap"
)

// CoreColumns returns the fixed core schema in canonical order.
func CoreColumns() []string {
	return []string{ColTimestamp, ColOpen, ColHigh, ColLow, ColClose, ColVolume, ColIsGap}
}

// FloatColumns returns the core columns holding float64 values,
// in canonical order. These are the candidates for precision narrowing.
func FloatColumns() []string {
	return []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}
}

// Candle represents a single OHLCV record.
// Corresponds to one row of the candles table in ClickHouse.
type Candle struct {
	TimestampMs int64   // Unix timestamp in milliseconds, always UTC
	Open        float64 // opening price of the interval
	High        float64 // highest price of the interval
	Low         float64 // lowest price of the interval
	Close       float64 // closing price of the interval
	Volume      float64 // traded volume in the interval
	IsGap       bool    // true if the row was synthesized to fill a cadence gap
}
