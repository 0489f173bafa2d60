package indicator

import "math"

// Series math shared by the built-in indicators. All functions return one
// value per input element and mark warmup positions NaN until their window
// is filled, so output columns always align with the table rows.

// nanSlice allocates a slice of n NaN values.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// sma computes the simple moving average over a fixed window.
func sma(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// ema computes the exponential moving average seeded with the mean of the
// first fully valid window. NaN inputs (warmup from an upstream series) are
// skipped over: the previous EMA value carries forward, which lets the MACD
// signal line run over the NaN-prefixed MACD series.
func ema(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	alpha := 2.0 / float64(period+1)

	seedAt := -1
	var seed float64
	for i := period - 1; i < len(values); i++ {
		sum, valid := 0.0, true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			seedAt = i
			seed = sum / float64(period)
			break
		}
	}
	if seedAt < 0 {
		return out
	}

	out[seedAt] = seed
	for i := seedAt + 1; i < len(values); i++ {
		prev := out[i-1]
		if math.IsNaN(values[i]) {
			out[i] = prev
			continue
		}
		out[i] = (values[i]-prev)*alpha + prev
	}
	return out
}

// rsi computes the Relative Strength Index with Wilder smoothing.
func rsi(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		avgGain = (avgGain*float64(period-1) + math.Max(change, 0)) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + math.Max(-change, 0)) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

// rsiValue maps smoothed averages to the RSI scale, pinning the flat and
// one-sided edges rather than dividing by zero.
func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	default:
		rs := avgGain / avgLoss
		return 100.0 - 100.0/(1.0+rs)
	}
}

// trueRange computes the per-row true range. The first row has no previous
// close, so its range is high-low.
func trueRange(high, low, closes []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		if i == 0 {
			out[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - closes[i-1])
		lc := math.Abs(low[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// rollingStd computes the population standard deviation over a fixed window.
func rollingStd(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	for i := period - 1; i < len(values); i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += values[j]
		}
		mean := sum / float64(period)

		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period))
	}
	return out
}
