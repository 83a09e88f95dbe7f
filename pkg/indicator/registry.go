// Package indicator implements the closed registry of named indicator
// functions, the formula expression evaluator, and the dependency scheduler
// that resolves a set of indicator/formula bindings into dense per-bar
// series in topological order.
package indicator

import "math"

// SeriesFunc computes an indicator series from a single input series (a
// price field or another indicator's output, for indicator-of-indicator
// bindings).
type SeriesFunc func(input []float64, params map[string]float64) ([]float64, error)

// OHLCFunc computes an indicator series that needs more than one OHLCV
// column directly (ATR, Stochastic, Supertrend).
type OHLCFunc func(ohlc OHLCSeries, params map[string]float64) ([]float64, error)

// OHLCSeries is the minimal read view an OHLCFunc needs.
type OHLCSeries struct {
	Open, High, Low, Close, Volume []float64
}

// MinDataFunc reports the minimum number of input points an indicator needs
// to produce any output, given its resolved params (e.g. depends on period).
type MinDataFunc func(params map[string]float64) int

// Family classifies an indicator for the candidate builder's structural
// rules: oscillators are bounded, range-native series that can't be freely
// compared against price-scaled ones; volatility indicators express their
// constants as a percent of price rather than an absolute level.
type Family string

const (
	FamilyTrend      Family = "trend"
	FamilyOscillator Family = "oscillator"
	FamilyVolatility Family = "volatility"
)

// Spec describes one registered indicator.
type Spec struct {
	Name      string
	NeedsOHLC bool
	Family    Family
	Series    SeriesFunc
	OHLC      OHLCFunc
	MinData   MinDataFunc
}

// registry is the read-only process-wide indicator table, built once at
// package initialization: the only global mutable-looking state in the core, safe to share
// because its contents are fixed at program start.
var registry = buildRegistry()

// Lookup returns the Spec for name, or (Spec{}, false) if name is not a
// registered indicator.
func Lookup(name string) (Spec, bool) {
	s, ok := registry[name]
	return s, ok
}

// Names returns every registered indicator name.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

func periodOf(params map[string]float64, fallback float64) int {
	if p, ok := params["period"]; ok && p > 0 {
		return int(p)
	}
	return int(fallback)
}

func buildRegistry() map[string]Spec {
	m := map[string]Spec{}

	m["sma"] = Spec{
		Name:    "sma",
		Family:  FamilyTrend,
		Series:  smaSeries,
		MinData: func(p map[string]float64) int { return periodOf(p, 14) },
	}
	m["ema"] = Spec{
		Name:    "ema",
		Family:  FamilyTrend,
		Series:  emaSeries,
		MinData: func(p map[string]float64) int { return periodOf(p, 14) },
	}
	m["wma"] = Spec{
		Name:    "wma",
		Family:  FamilyTrend,
		Series:  wmaSeries,
		MinData: func(p map[string]float64) int { return periodOf(p, 14) },
	}
	m["zlema"] = Spec{
		Name:    "zlema",
		Family:  FamilyTrend,
		Series:  zlemaSeries,
		MinData: func(p map[string]float64) int { return periodOf(p, 14) + periodOf(p, 14)/2 },
	}
	m["rsi"] = Spec{
		Name:    "rsi",
		Family:  FamilyOscillator,
		Series:  rsiSeries,
		MinData: func(p map[string]float64) int { return periodOf(p, 14) + 1 },
	}
	m["max_for"] = Spec{
		Name:    "max_for",
		Family:  FamilyTrend,
		Series:  maxForSeries,
		MinData: func(p map[string]float64) int { return periodOf(p, 14) },
	}
	m["min_for"] = Spec{
		Name:    "min_for",
		Family:  FamilyTrend,
		Series:  minForSeries,
		MinData: func(p map[string]float64) int { return periodOf(p, 14) },
	}
	m["atr"] = Spec{
		Name:      "atr",
		Family:    FamilyVolatility,
		NeedsOHLC: true,
		OHLC:      atrSeries,
		MinData:   func(p map[string]float64) int { return periodOf(p, 14) + 1 },
	}
	m["stochastic"] = Spec{
		Name:      "stochastic",
		Family:    FamilyOscillator,
		NeedsOHLC: true,
		OHLC:      stochasticSeries,
		MinData:   func(p map[string]float64) int { return periodOf(p, 14) },
	}
	m["supertrend"] = Spec{
		Name:      "supertrend",
		Family:    FamilyTrend,
		NeedsOHLC: true,
		OHLC:      supertrendSeries,
		MinData:   func(p map[string]float64) int { return periodOf(p, 10) + 1 },
	}

	return m
}

func smaSeries(input []float64, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	if period < 1 {
		return nil, newFeedError("sma", "invalid period %d", period)
	}
	out := make([]float64, len(input))
	sum := 0.0
	for i, v := range input {
		sum += v
		if i >= period {
			sum -= input[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

func emaSeries(input []float64, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	if period < 1 {
		return nil, newFeedError("ema", "invalid period %d", period)
	}
	out := make([]float64, len(input))
	alpha := 2.0 / (float64(period) + 1.0)
	var prev float64
	seeded := false
	for i, v := range input {
		if !seeded {
			out[i] = math.NaN()
			if i == period-1 {
				sum := 0.0
				for j := 0; j <= i; j++ {
					sum += input[j]
				}
				prev = sum / float64(period)
				out[i] = prev
				seeded = true
			}
			continue
		}
		prev = alpha*v + (1-alpha)*prev
		out[i] = prev
	}
	return out, nil
}

func wmaSeries(input []float64, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	if period < 1 {
		return nil, newFeedError("wma", "invalid period %d", period)
	}
	denom := float64(period*(period+1)) / 2
	out := make([]float64, len(input))
	for i := range input {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		weighted := 0.0
		for w := 0; w < period; w++ {
			weighted += input[i-period+1+w] * float64(w+1)
		}
		out[i] = weighted / denom
	}
	return out, nil
}

func zlemaSeries(input []float64, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	if period < 1 {
		return nil, newFeedError("zlema", "invalid period %d", period)
	}
	lag := (period - 1) / 2
	adjusted := make([]float64, len(input))
	for i, v := range input {
		if i < lag {
			adjusted[i] = v
			continue
		}
		adjusted[i] = v + (v - input[i-lag])
	}
	return emaSeries(adjusted, params)
}

func rsiSeries(input []float64, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	if period < 1 {
		return nil, newFeedError("rsi", "invalid period %d", period)
	}
	out := make([]float64, len(input))
	out[0] = math.NaN()
	if len(input) == 0 {
		return out, nil
	}

	var avgGain, avgLoss float64
	for i := 1; i < len(input); i++ {
		change := input[i] - input[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i <= period {
			avgGain += gain
			avgLoss += loss
			out[i] = math.NaN()
			if i == period {
				avgGain /= float64(period)
				avgLoss /= float64(period)
				out[i] = rsiFromAverages(avgGain, avgLoss)
			}
			continue
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func maxForSeries(input []float64, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	return rollingExtreme(input, period, false)
}

func minForSeries(input []float64, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	return rollingExtreme(input, period, true)
}

func rollingExtreme(input []float64, period int, wantMin bool) ([]float64, error) {
	if period < 1 {
		return nil, newFeedError("rolling_extreme", "invalid period %d", period)
	}
	out := make([]float64, len(input))
	for i := range input {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		best := input[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if wantMin && input[j] < best {
				best = input[j]
			}
			if !wantMin && input[j] > best {
				best = input[j]
			}
		}
		out[i] = best
	}
	return out, nil
}

func atrSeries(ohlc OHLCSeries, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	if period < 1 {
		return nil, newFeedError("atr", "invalid period %d", period)
	}
	n := len(ohlc.Close)
	trueRange := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			trueRange[i] = ohlc.High[i] - ohlc.Low[i]
			continue
		}
		hl := ohlc.High[i] - ohlc.Low[i]
		hc := math.Abs(ohlc.High[i] - ohlc.Close[i-1])
		lc := math.Abs(ohlc.Low[i] - ohlc.Close[i-1])
		trueRange[i] = math.Max(hl, math.Max(hc, lc))
	}
	return wilderSmooth(trueRange, period), nil
}

func wilderSmooth(input []float64, period int) []float64 {
	out := make([]float64, len(input))
	var prev float64
	for i, v := range input {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		if i == period-1 {
			sum := 0.0
			for j := 0; j <= i; j++ {
				sum += input[j]
			}
			prev = sum / float64(period)
			out[i] = prev
			continue
		}
		prev = (prev*float64(period-1) + v) / float64(period)
		out[i] = prev
	}
	return out
}

func stochasticSeries(ohlc OHLCSeries, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 14)
	if period < 1 {
		return nil, newFeedError("stochastic", "invalid period %d", period)
	}
	n := len(ohlc.Close)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		lowest, highest := ohlc.Low[i-period+1], ohlc.High[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if ohlc.Low[j] < lowest {
				lowest = ohlc.Low[j]
			}
			if ohlc.High[j] > highest {
				highest = ohlc.High[j]
			}
		}
		if highest == lowest {
			out[i] = 50
			continue
		}
		out[i] = 100 * (ohlc.Close[i] - lowest) / (highest - lowest)
	}
	return out, nil
}

func supertrendSeries(ohlc OHLCSeries, params map[string]float64) ([]float64, error) {
	period := periodOf(params, 10)
	multiplier := params["multiplier"]
	if multiplier == 0 {
		multiplier = 3
	}
	atr, err := atrSeries(ohlc, map[string]float64{"period": float64(period)})
	if err != nil {
		return nil, err
	}
	n := len(ohlc.Close)
	out := make([]float64, n)
	var prevUpper, prevLower, prevTrend float64
	trendUp := true
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) {
			out[i] = math.NaN()
			continue
		}
		mid := (ohlc.High[i] + ohlc.Low[i]) / 2
		upper := mid + multiplier*atr[i]
		lower := mid - multiplier*atr[i]
		if i > 0 && !math.IsNaN(prevUpper) {
			if ohlc.Close[i-1] <= prevUpper {
				upper = math.Min(upper, prevUpper)
			}
			if ohlc.Close[i-1] >= prevLower {
				lower = math.Max(lower, prevLower)
			}
		}
		if ohlc.Close[i] > upper {
			trendUp = true
		} else if ohlc.Close[i] < lower {
			trendUp = false
		}
		if trendUp {
			prevTrend = lower
		} else {
			prevTrend = upper
		}
		out[i] = prevTrend
		prevUpper, prevLower = upper, lower
	}
	return out, nil
}
