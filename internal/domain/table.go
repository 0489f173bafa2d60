package domain

import (
	"errors"
	"fmt"
)

// Table validation errors.
var (
	// ErrColumnLengthMismatch is returned when core columns have unequal lengths.
	ErrColumnLengthMismatch = errors.New("core columns have unequal lengths")

	// ErrNotChronological is returned when timestamps are not strictly increasing.
	ErrNotChronological = errors.New("timestamps are not strictly increasing")

	// ErrUnknownColumn is returned when a column lookup names no core column.
	ErrUnknownColumn = errors.New("unknown column")
)

// CoreTable is the columnar form of a finalized candle series: one slice per
// core column, all of equal length, timestamps strictly increasing.
type CoreTable struct {
	TimestampMs []int64
	Open        []float64
	High        []float64
	Low         []float64
	Close       []float64
	Volume      []float64
	IsGap       []bool

	// Narrowed lists float columns whose values were quantized to float32
	// width by the downcaster. Values remain float64 in memory but carry no
	// precision beyond float32.
	Narrowed []string
}

// NewCoreTable allocates an empty table with capacity for n rows.
func NewCoreTable(n int) *CoreTable {
	return &CoreTable{
		TimestampMs: make([]int64, 0, n),
		Open:        make([]float64, 0, n),
		High:        make([]float64, 0, n),
		Low:         make([]float64, 0, n),
		Close:       make([]float64, 0, n),
		Volume:      make([]float64, 0, n),
		IsGap:       make([]bool, 0, n),
	}
}

// Len returns the number of rows.
func (t *CoreTable) Len() int {
	return len(t.TimestampMs)
}

// Row returns the candle at index i.
func (t *CoreTable) Row(i int) Candle {
	return Candle{
		TimestampMs: t.TimestampMs[i],
		Open:        t.Open[i],
		High:        t.High[i],
		Low:         t.Low[i],
		Close:       t.Close[i],
		Volume:      t.Volume[i],
		IsGap:       t.IsGap[i],
	}
}

// Append adds a candle as the last row. It does not re-validate ordering.
func (t *CoreTable) Append(c Candle) {
	t.TimestampMs = append(t.TimestampMs, c.TimestampMs)
	t.Open = append(t.Open, c.Open)
	t.High = append(t.High, c.High)
	t.Low = append(t.Low, c.Low)
	t.Close = append(t.Close, c.Close)
	t.Volume = append(t.Volume, c.Volume)
	t.IsGap = append(t.IsGap, c.IsGap)
}

// Clone returns a deep copy of the table.
func (t *CoreTable) Clone() *CoreTable {
	c := &CoreTable{
		TimestampMs: make([]int64, len(t.TimestampMs)),
		Open:        make([]float64, len(t.Open)),
		High:        make([]float64, len(t.High)),
		Low:         make([]float64, len(t.Low)),
		Close:       make([]float64, len(t.Close)),
		Volume:      make([]float64, len(t.Volume)),
		IsGap:       make([]bool, len(t.IsGap)),
	}
	copy(c.TimestampMs, t.TimestampMs)
	copy(c.Open, t.Open)
	copy(c.High, t.High)
	copy(c.Low, t.Low)
	copy(c.Close, t.Close)
	copy(c.Volume, t.Volume)
	copy(c.IsGap, t.IsGap)
	if t.Narrowed != nil {
		c.Narrowed = make([]string, len(t.Narrowed))
		copy(c.Narrowed, t.Narrowed)
	}
	return c
}

// Floats returns the float64 column with the given name.
// Returns ErrUnknownColumn for timestamp_utc, is_gap, and anything else.
func (t *CoreTable) Floats(name string) ([]float64, error) {
	switch name {
	case ColOpen:
		return t.Open, nil
	case ColHigh:
		return t.High, nil
	case ColLow:
		return t.Low, nil
	case ColClose:
		return t.Close, nil
	case ColVolume:
		return t.Volume, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
}

// Validate checks structural invariants: equal column lengths and strictly
// increasing timestamps. It does not check OHLC bounds for synthetic rows
// since gap rows carry a flat forward-filled price.
func (t *CoreTable) Validate() error {
	n := len(t.TimestampMs)
	if len(t.Open) != n || len(t.High) != n || len(t.Low) != n ||
		len(t.Close) != n || len(t.Volume) != n || len(t.IsGap) != n {
		return ErrColumnLengthMismatch
	}
	for i := 1; i < n; i++ {
		if t.TimestampMs[i] <= t.TimestampMs[i-1] {
			return fmt.Errorf("%w: row %d (%d) after row %d (%d)",
				ErrNotChronological, i, t.TimestampMs[i], i-1, t.TimestampMs[i-1])
		}
	}
	return nil
}
