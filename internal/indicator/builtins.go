package indicator

import (
	"fmt"
	"math"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// Column names produced by the built-in indicators.
const (
	ColTypicalPrice   = "typical_price"
	ColSMA            = "sma"
	ColEMA            = "ema"
	ColRSI            = "rsi"
	ColMACD           = "macd"
	ColMACDSignal     = "macd_signal"
	ColMACDHist       = "macd_hist"
	ColATR            = "atr"
	ColVWAP           = "vwap"
	ColBollingerUpper = "bollinger_upper"
	ColBollingerLower = "bollinger_lower"
	ColOBV            = "obv"
)

const builtinVersion = "1.0.0"

// RegisterBuiltins adds the built-in indicator catalogue to the registry.
// vwap depends on typical_price and bollinger on sma, so a request naming
// them exercises genuine inter-indicator dependency edges.
func RegisterBuiltins(reg *Registry) error {
	builtins := []Spec{
		{
			Name:     ColTypicalPrice,
			Requires: []string{domain.ColHigh, domain.ColLow, domain.ColClose},
			Produces: []string{ColTypicalPrice},
			Version:  builtinVersion,
			Compute:  computeTypicalPrice,
		},
		{
			Name:     ColSMA,
			Requires: []string{domain.ColClose},
			Produces: []string{ColSMA},
			Version:  builtinVersion,
			Defaults: Params{"period": 20},
			Compute:  computeSMA,
		},
		{
			Name:     ColEMA,
			Requires: []string{domain.ColClose},
			Produces: []string{ColEMA},
			Version:  builtinVersion,
			Defaults: Params{"period": 12},
			Compute:  computeEMA,
		},
		{
			Name:     ColRSI,
			Requires: []string{domain.ColClose},
			Produces: []string{ColRSI},
			Version:  builtinVersion,
			Defaults: Params{"period": 14},
			Compute:  computeRSI,
		},
		{
			Name:     ColMACD,
			Requires: []string{domain.ColClose},
			Produces: []string{ColMACD, ColMACDSignal, ColMACDHist},
			Version:  builtinVersion,
			Defaults: Params{"fast": 12, "slow": 26, "signal": 9},
			Compute:  computeMACD,
		},
		{
			Name:     ColATR,
			Requires: []string{domain.ColHigh, domain.ColLow, domain.ColClose},
			Produces: []string{ColATR},
			Version:  builtinVersion,
			Defaults: Params{"period": 14},
			Compute:  computeATR,
		},
		{
			Name:     ColVWAP,
			Requires: []string{ColTypicalPrice, domain.ColVolume},
			Produces: []string{ColVWAP},
			Version:  builtinVersion,
			Compute:  computeVWAP,
		},
		{
			Name:     "bollinger",
			Requires: []string{ColSMA, domain.ColClose},
			Produces: []string{ColBollingerUpper, ColBollingerLower},
			Version:  builtinVersion,
			Defaults: Params{"period": 20, "width": 2},
			Compute:  computeBollinger,
		},
		{
			Name:     ColOBV,
			Requires: []string{domain.ColClose, domain.ColVolume},
			Produces: []string{ColOBV},
			Version:  builtinVersion,
			Compute:  computeOBV,
		},
	}

	for _, spec := range builtins {
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("register builtin %s: %w", spec.Name, err)
		}
	}
	return nil
}

func computeTypicalPrice(t *domain.EnrichedTable, _ Params) (map[string][]float64, error) {
	high, low, closes, err := hlc(t)
	if err != nil {
		return nil, err
	}

	tp := make([]float64, len(closes))
	for i := range tp {
		tp[i] = (high[i] + low[i] + closes[i]) / 3
	}
	return map[string][]float64{ColTypicalPrice: tp}, nil
}

func computeSMA(t *domain.EnrichedTable, p Params) (map[string][]float64, error) {
	period, err := periodOf(p, "period", 20)
	if err != nil {
		return nil, err
	}
	closes, err := t.Floats(domain.ColClose)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{ColSMA: sma(closes, period)}, nil
}

func computeEMA(t *domain.EnrichedTable, p Params) (map[string][]float64, error) {
	period, err := periodOf(p, "period", 12)
	if err != nil {
		return nil, err
	}
	closes, err := t.Floats(domain.ColClose)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{ColEMA: ema(closes, period)}, nil
}

func computeRSI(t *domain.EnrichedTable, p Params) (map[string][]float64, error) {
	period, err := periodOf(p, "period", 14)
	if err != nil {
		return nil, err
	}
	closes, err := t.Floats(domain.ColClose)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{ColRSI: rsi(closes, period)}, nil
}

func computeMACD(t *domain.EnrichedTable, p Params) (map[string][]float64, error) {
	fast, err := periodOf(p, "fast", 12)
	if err != nil {
		return nil, err
	}
	slow, err := periodOf(p, "slow", 26)
	if err != nil {
		return nil, err
	}
	signal, err := periodOf(p, "signal", 9)
	if err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("macd fast period %d must be below slow period %d", fast, slow)
	}

	closes, err := t.Floats(domain.ColClose)
	if err != nil {
		return nil, err
	}

	emaFast := ema(closes, fast)
	emaSlow := ema(closes, slow)
	macd := make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			macd[i] = math.NaN()
			continue
		}
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signalLine := ema(macd, signal)
	hist := make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(macd[i]) || math.IsNaN(signalLine[i]) {
			hist[i] = math.NaN()
			continue
		}
		hist[i] = macd[i] - signalLine[i]
	}

	return map[string][]float64{
		ColMACD:       macd,
		ColMACDSignal: signalLine,
		ColMACDHist:   hist,
	}, nil
}

func computeATR(t *domain.EnrichedTable, p Params) (map[string][]float64, error) {
	period, err := periodOf(p, "period", 14)
	if err != nil {
		return nil, err
	}
	high, low, closes, err := hlc(t)
	if err != nil {
		return nil, err
	}
	return map[string][]float64{ColATR: ema(trueRange(high, low, closes), period)}, nil
}

// computeVWAP accumulates typical price weighted by volume over the whole
// table. Rows before any volume has traded carry NaN.
func computeVWAP(t *domain.EnrichedTable, _ Params) (map[string][]float64, error) {
	tp, err := t.Floats(ColTypicalPrice)
	if err != nil {
		return nil, err
	}
	volume, err := t.Floats(domain.ColVolume)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(tp))
	var tpVolume, volumeSum float64
	for i := range tp {
		tpVolume += tp[i] * volume[i]
		volumeSum += volume[i]
		if volumeSum == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = tpVolume / volumeSum
	}
	return map[string][]float64{ColVWAP: out}, nil
}

// computeBollinger places bands a configurable number of standard deviations
// around the sma column. The band window should match the sma period.
func computeBollinger(t *domain.EnrichedTable, p Params) (map[string][]float64, error) {
	period, err := periodOf(p, "period", 20)
	if err != nil {
		return nil, err
	}
	width := p.Value("width", 2)
	if width <= 0 {
		return nil, fmt.Errorf("bollinger width must be positive, got %v", width)
	}

	mid, err := t.Floats(ColSMA)
	if err != nil {
		return nil, err
	}
	closes, err := t.Floats(domain.ColClose)
	if err != nil {
		return nil, err
	}

	std := rollingStd(closes, period)
	upper := make([]float64, len(mid))
	lower := make([]float64, len(mid))
	for i := range mid {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) {
			upper[i] = math.NaN()
			lower[i] = math.NaN()
			continue
		}
		upper[i] = mid[i] + width*std[i]
		lower[i] = mid[i] - width*std[i]
	}
	return map[string][]float64{
		ColBollingerUpper: upper,
		ColBollingerLower: lower,
	}, nil
}

// computeOBV accumulates volume signed by the close-to-close direction,
// starting from zero.
func computeOBV(t *domain.EnrichedTable, _ Params) (map[string][]float64, error) {
	closes, err := t.Floats(domain.ColClose)
	if err != nil {
		return nil, err
	}
	volume, err := t.Floats(domain.ColVolume)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volume[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return map[string][]float64{ColOBV: out}, nil
}

// hlc pulls the three price columns ATR-style indicators need.
func hlc(t *domain.EnrichedTable) (high, low, closes []float64, err error) {
	if high, err = t.Floats(domain.ColHigh); err != nil {
		return nil, nil, nil, err
	}
	if low, err = t.Floats(domain.ColLow); err != nil {
		return nil, nil, nil, err
	}
	if closes, err = t.Floats(domain.ColClose); err != nil {
		return nil, nil, nil, err
	}
	return high, low, closes, nil
}

// periodOf reads a window parameter, rejecting non-positive values.
func periodOf(p Params, key string, fallback int) (int, error) {
	period := p.Int(key, fallback)
	if period <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, period)
	}
	return period, nil
}
