package ingestion

import (
	"sort"
	"strconv"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// Required value columns beyond the timestamp.
var requiredColumns = []string{"open", "high", "low", "close", "volume"}

// frame is the typed working table between parsing and restriction.
// Column slices stay index-aligned through every stage.
type frame struct {
	tsMs    []int64
	open    []float64
	high    []float64
	low     []float64
	close   []float64
	volume  []float64
	isGap   []bool   // nil until gap synthesis runs
	dropped []string // extra source columns discarded by restriction
}

func (f *frame) len() int {
	return len(f.tsMs)
}

// normalizeTimestamps parses the timestamp column into UTC epoch
// milliseconds. Returns found=false when no accepted alias is present, which
// column validation then reports; timezone violations surface here, before
// any schema check.
func normalizeTimestamps(raw *rawFrame, normalize bool) (tsMs []int64, found bool, err error) {
	idx := raw.timestampIndex()
	if idx < 0 {
		return nil, false, nil
	}

	tsMs = make([]int64, len(raw.rows))
	for i, row := range raw.rows {
		ms, err := parseTimestamp(row[idx], i+1, normalize)
		if err != nil {
			return nil, true, err
		}
		tsMs[i] = ms
	}
	return tsMs, true, nil
}

// validateColumns checks the required input set. Missing columns are
// reported together in canonical order, the timestamp first.
func validateColumns(raw *rawFrame, tsFound bool) error {
	var missing []string
	if !tsFound {
		missing = append(missing, "timestamp")
	}
	for _, col := range requiredColumns {
		if raw.columnIndex(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// parseFrame converts the validated raw frame into typed columns. Cells of
// required columns must parse as floats; anything else aborts with a
// row-numbered error. Extra columns are recorded and never parsed.
func parseFrame(raw *rawFrame, tsMs []int64) (*frame, error) {
	f := &frame{
		tsMs:   tsMs,
		open:   make([]float64, len(raw.rows)),
		high:   make([]float64, len(raw.rows)),
		low:    make([]float64, len(raw.rows)),
		close:  make([]float64, len(raw.rows)),
		volume: make([]float64, len(raw.rows)),
	}

	targets := map[string][]float64{
		"open": f.open, "high": f.high, "low": f.low, "close": f.close, "volume": f.volume,
	}

	for _, col := range requiredColumns {
		idx := raw.columnIndex(col)
		dst := targets[col]
		for i, row := range raw.rows {
			v, err := strconv.ParseFloat(row[idx], 64)
			if err != nil {
				return nil, &RowError{Row: i + 1, Column: col, Err: err}
			}
			dst[i] = v
		}
	}

	tsIdx := raw.timestampIndex()
	for i, h := range raw.header {
		if i == tsIdx {
			continue
		}
		if _, required := targets[h]; !required {
			f.dropped = append(f.dropped, h)
		}
	}
	return f, nil
}

// sortChronological stably orders rows by timestamp ascending. Stability
// keeps the source order of equal timestamps, which fixes which duplicate
// the keep-first pass retains.
func (f *frame) sortChronological() {
	idx := make([]int, f.len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return f.tsMs[idx[a]] < f.tsMs[idx[b]]
	})
	f.reorder(idx)
}

// reorder rebuilds every column following the index permutation.
func (f *frame) reorder(idx []int) {
	n := f.len()
	tsMs := make([]int64, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeCol := make([]float64, n)
	volume := make([]float64, n)
	for i, j := range idx {
		tsMs[i] = f.tsMs[j]
		open[i] = f.open[j]
		high[i] = f.high[j]
		low[i] = f.low[j]
		closeCol[i] = f.close[j]
		volume[i] = f.volume[j]
	}
	f.tsMs, f.open, f.high, f.low, f.close, f.volume = tsMs, open, high, low, closeCol, volume
}

// dedupe drops rows sharing a timestamp with an earlier row, keeping the
// first occurrence in post-sort order. Returns the number removed.
func (f *frame) dedupe() int {
	if f.len() < 2 {
		return 0
	}
	w := 1
	for i := 1; i < f.len(); i++ {
		if f.tsMs[i] == f.tsMs[w-1] {
			continue
		}
		f.tsMs[w] = f.tsMs[i]
		f.open[w] = f.open[i]
		f.high[w] = f.high[i]
		f.low[w] = f.low[i]
		f.close[w] = f.close[i]
		f.volume[w] = f.volume[i]
		w++
	}
	removed := f.len() - w
	f.tsMs = f.tsMs[:w]
	f.open = f.open[:w]
	f.high = f.high[:w]
	f.low = f.low[:w]
	f.close = f.close[:w]
	f.volume = f.volume[:w]
	return removed
}

// fillGaps synthesizes rows for missing interval-aligned timestamps between
// consecutive observed rows. Synthetic rows forward-fill the previous close
// into all four prices, carry zero volume, and are flagged. Off-lattice
// source rows are kept as observed; they surface through the cadence
// deviation instead. Returns the number of rows inserted.
func (f *frame) fillGaps(intervalMs int64) int {
	if intervalMs <= 0 || f.len() < 2 {
		f.materializeGapFlags()
		return 0
	}

	n := f.len()
	outTs := make([]int64, 0, n)
	outOpen := make([]float64, 0, n)
	outHigh := make([]float64, 0, n)
	outLow := make([]float64, 0, n)
	outClose := make([]float64, 0, n)
	outVolume := make([]float64, 0, n)
	outGap := make([]bool, 0, n)

	inserted := 0
	for i := 0; i < n; i++ {
		if i > 0 {
			prevClose := f.close[i-1]
			for ts := outTs[len(outTs)-1] + intervalMs; ts < f.tsMs[i]; ts += intervalMs {
				outTs = append(outTs, ts)
				outOpen = append(outOpen, prevClose)
				outHigh = append(outHigh, prevClose)
				outLow = append(outLow, prevClose)
				outClose = append(outClose, prevClose)
				outVolume = append(outVolume, 0)
				outGap = append(outGap, true)
				inserted++
			}
		}
		outTs = append(outTs, f.tsMs[i])
		outOpen = append(outOpen, f.open[i])
		outHigh = append(outHigh, f.high[i])
		outLow = append(outLow, f.low[i])
		outClose = append(outClose, f.close[i])
		outVolume = append(outVolume, f.volume[i])
		outGap = append(outGap, false)
	}

	f.tsMs, f.open, f.high, f.low, f.close, f.volume = outTs, outOpen, outHigh, outLow, outClose, outVolume
	f.isGap = outGap
	return inserted
}

// materializeGapFlags ensures the gap column exists even when synthesis
// never ran or inserted nothing.
func (f *frame) materializeGapFlags() {
	if f.isGap == nil {
		f.isGap = make([]bool, f.len())
	}
}

// restrict finalizes the frame into the fixed seven-column table. Extra
// source columns have already been set aside; this is where they cease to
// exist for consumers.
func (f *frame) restrict() *domain.CoreTable {
	f.materializeGapFlags()
	return &domain.CoreTable{
		TimestampMs: f.tsMs,
		Open:        f.open,
		High:        f.high,
		Low:         f.low,
		Close:       f.close,
		Volume:      f.volume,
		IsGap:       f.isGap,
	}
}
