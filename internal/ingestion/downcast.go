package ingestion

import (
	"math"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// DowncastTolerance is the maximum relative error a column may incur through
// a float32 round trip and still be narrowed.
const DowncastTolerance = 1e-6

// downcastTable narrows float columns that survive a float32 round trip
// within tolerance. Safe columns are quantized in place, so later consumers
// and cache artifacts observe float32 precision; unsafe columns keep full
// width. Each column is judged independently. Returns the narrowed names.
func downcastTable(t *domain.CoreTable) []string {
	cols := [][]float64{t.Open, t.High, t.Low, t.Close, t.Volume}
	var narrowed []string

	for i, name := range domain.FloatColumns() {
		if !downcastSafe(cols[i]) {
			continue
		}
		for j, v := range cols[i] {
			cols[i][j] = float64(float32(v))
		}
		narrowed = append(narrowed, name)
	}

	t.Narrowed = narrowed
	return narrowed
}

// downcastSafe reports whether every value in the column round-trips through
// float32 within the relative tolerance. Non-finite values disqualify the
// column; zero survives exactly.
func downcastSafe(col []float64) bool {
	for _, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if v == 0 {
			continue
		}
		round := float64(float32(v))
		if math.Abs(round-v) > DowncastTolerance*math.Abs(v) {
			return false
		}
	}
	return true
}
