// Package stratctx holds the per-backtest shared state the bar loop reads
// and mutates: per-timeframe price/indicator/condition series and session
// metadata.
package stratctx

import (
	"strconv"
	"strings"

	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// TimeframeData is the per-TF slice of a StrategyContext: the current bar
// index plus every dense series computed for that timeframe.
type TimeframeData struct {
	Timeframe quote.TimeFrame
	Frame     *quote.QuoteFrame
	Index     int

	Indicators       map[string][]float64
	AuxIndicators    map[string][]float64
	CustomSeries     map[string][]float64
	ConditionResults map[string]condition.Result
}

func newTimeframeData(tf quote.TimeFrame, frame *quote.QuoteFrame) *TimeframeData {
	return &TimeframeData{
		Timeframe:        tf,
		Frame:            frame,
		Index:            -1,
		Indicators:       map[string][]float64{},
		AuxIndicators:    map[string][]float64{},
		CustomSeries:     map[string][]float64{},
		ConditionResults: map[string]condition.Result{},
	}
}

// StrategyContext is the mutable state shared across one backtest's bar
// loop. It is created once per backtest; nothing about it is shared across
// backtests.
type StrategyContext struct {
	timeframes map[string]*TimeframeData
	primaryKey string

	ActivePositions   map[string]bool // PositionKey.String() -> open
	Metadata          map[string]string
	RuntimeParameters map[string]strategydef.ParamValue
}

// New builds a StrategyContext over frames (keyed by TimeFrame.String()),
// with primary identifying the base timeframe the bar loop steps by.
func New(frames map[string]*quote.QuoteFrame, primary quote.TimeFrame) *StrategyContext {
	ctx := &StrategyContext{
		timeframes:        make(map[string]*TimeframeData, len(frames)),
		primaryKey:        primary.String(),
		ActivePositions:   map[string]bool{},
		Metadata:          map[string]string{},
		RuntimeParameters: map[string]strategydef.ParamValue{},
	}
	for key, frame := range frames {
		ctx.timeframes[key] = newTimeframeData(frame.Timeframe(), frame)
	}
	return ctx
}

// Timeframe returns the TimeframeData for tf, or an error if the context was
// never given that timeframe's frame.
func (c *StrategyContext) Timeframe(tf quote.TimeFrame) (*TimeframeData, error) {
	td, ok := c.timeframes[tf.String()]
	if !ok {
		return nil, newError("Timeframe", "missing timeframe %s in context", tf)
	}
	return td, nil
}

// PrimaryTimeframe returns the TimeframeData for the context's base
// timeframe.
func (c *StrategyContext) PrimaryTimeframe() *TimeframeData {
	return c.timeframes[c.primaryKey]
}

// SetIndices updates every timeframe's current bar index, called once per
// cursor step.
func (c *StrategyContext) SetIndices(indices map[string]int) {
	for key, idx := range indices {
		if td, ok := c.timeframes[key]; ok {
			td.Index = idx
		}
	}
}

// IndicatorSeries resolves alias on tf, returning a "missing indicator
// alias" Error if it was never bound.
func (td *TimeframeData) IndicatorSeries(alias string) ([]float64, error) {
	s, ok := td.Indicators[alias]
	if !ok {
		s, ok = td.AuxIndicators[alias]
	}
	if !ok {
		return nil, newError("IndicatorSeries", "missing indicator alias %q at timeframe %s", alias, td.Timeframe)
	}
	return s, nil
}

// PriceField resolves one of the five OHLCV columns for this timeframe.
func (td *TimeframeData) PriceField(field string) ([]float64, error) {
	switch field {
	case "open":
		return td.Frame.OpenFloat64(), nil
	case "high":
		return td.Frame.HighFloat64(), nil
	case "low":
		return td.Frame.LowFloat64(), nil
	case "close":
		return td.Frame.CloseFloat64(), nil
	case "volume":
		return td.Frame.VolumeFloat64(), nil
	default:
		return nil, newError("PriceField", "missing price field %q", field)
	}
}

// constantSeriesPrefix names a synthetic custom series whose value is a
// fixed constant at every bar (e.g. an oscillator's threshold level),
// rather than one installed by the executor. "const:30" resolves to a
// series of 30 repeated for the timeframe's full length.
const constantSeriesPrefix = "const:"

// CustomSeriesLookup resolves a custom series by key. Keys of the form
// "const:<value>" are synthesized on demand and cached, rather than
// requiring a caller to pre-populate CustomSeries. This lets a condition
// compare an indicator against a fixed numeric threshold (e.g. RSI < 30)
// without the executor needing to know about threshold constants at all.
func (td *TimeframeData) CustomSeriesLookup(key string) ([]float64, error) {
	if s, ok := td.CustomSeries[key]; ok {
		return s, nil
	}
	if strings.HasPrefix(key, constantSeriesPrefix) {
		value, err := strconv.ParseFloat(strings.TrimPrefix(key, constantSeriesPrefix), 64)
		if err != nil {
			return nil, newError("CustomSeriesLookup", "invalid constant series key %q", key)
		}
		series := make([]float64, td.Frame.Len())
		for i := range series {
			series[i] = value
		}
		td.CustomSeries[key] = series
		return series, nil
	}
	return nil, newError("CustomSeriesLookup", "missing custom series %q", key)
}

// ConstantSeriesAlias builds the "const:<value>" alias CustomSeriesLookup
// recognizes, for callers (e.g. the candidate builder) constructing a
// DataSeriesSource that names a fixed numeric threshold.
func ConstantSeriesAlias(value float64) string {
	return constantSeriesPrefix + strconv.FormatFloat(value, 'g', -1, 64)
}

// Resolve dereferences a strategydef.DataSeriesSource against this context,
// falling back to the given default timeframe when the source does not name
// its own.
func (c *StrategyContext) Resolve(src strategydef.DataSeriesSource, fallback quote.TimeFrame) ([]float64, error) {
	tf := fallback
	if src.Timeframe != nil {
		tf = *src.Timeframe
	}
	td, err := c.Timeframe(tf)
	if err != nil {
		return nil, err
	}
	switch src.Kind {
	case strategydef.SeriesIndicator:
		return td.IndicatorSeries(src.Alias)
	case strategydef.SeriesPrice:
		return td.PriceField(src.Field)
	case strategydef.SeriesCustom:
		return td.CustomSeriesLookup(src.Alias)
	default:
		return nil, newError("Resolve", "unsupported data series source kind %q", src.Kind)
	}
}
