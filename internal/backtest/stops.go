package backtest

import (
	"time"

	"github.com/atlas-desktop/strategyforge/internal/position"
	"github.com/atlas-desktop/strategyforge/internal/risk"
	"github.com/atlas-desktop/strategyforge/internal/stratctx"
	"github.com/atlas-desktop/strategyforge/pkg/indicator"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// riskState pairs a position's stop-set and take-set risk state. They are
// tracked separately because each set aggregates its own handlers into its
// own tightest-safe level; folding both into a single
// PositionRiskState.CurrentStop would let a take-profit level overwrite a
// stop-loss level or vice versa.
type riskState struct {
	stop *risk.PositionRiskState
	take *risk.PositionRiskState
}

func newRiskState(direction strategydef.Direction, entryPrice, high, low float64) *riskState {
	return &riskState{
		stop: risk.NewPositionRiskState(direction, entryPrice, high, low),
		take: risk.NewPositionRiskState(direction, entryPrice, high, low),
	}
}

// buildAuxiliarySeries precomputes, once per run, the extra columns stop/take
// handlers need beyond the bare OHLC they always receive: an ATR(period)
// column for atr_trail_stop and atr_trail_indicator_stop, and the bound
// indicator series for any indicator-anchored handler's alias"). Keyed by handler name, matching how
// risk.Manager's SeriesFor resolves a Series per handler.
func buildAuxiliarySeries(prepared *strategydef.PreparedStrategy, ctx *stratctx.StrategyContext, primaryTF quote.TimeFrame) map[string]risk.Series {
	out := map[string]risk.Series{}

	td, err := ctx.Timeframe(primaryTF)
	if err != nil {
		return out
	}
	ohlc := indicator.OHLCSeries{
		Open:   td.Frame.OpenFloat64(),
		High:   td.Frame.HighFloat64(),
		Low:    td.Frame.LowFloat64(),
		Close:  td.Frame.CloseFloat64(),
		Volume: td.Frame.VolumeFloat64(),
	}
	base := risk.Series{High: ohlc.High, Low: ohlc.Low, Close: ohlc.Close}

	atrFor := func(period float64) []float64 {
		if period <= 0 {
			period = 14
		}
		spec, ok := indicator.Lookup("atr")
		if !ok {
			return nil
		}
		series, err := spec.OHLC(ohlc, map[string]float64{"period": period})
		if err != nil {
			return nil
		}
		return series
	}

	for _, spec := range append(append([]strategydef.HandlerSpec{}, prepared.StopHandlers...), prepared.TakeHandlers...) {
		switch spec.HandlerName {
		case "atr_trail_stop":
			s := base
			s.ATR = atrFor(spec.Parameters["period"])
			out[spec.HandlerName] = s
		case "atr_trail_indicator_stop":
			s := base
			s.ATR = atrFor(spec.Parameters["period"])
			if alias := spec.IndicatorAlias; alias != "" {
				s.Indicator = td.Indicators[alias]
			}
			out[spec.HandlerName] = s
		case "percent_trail_indicator_stop":
			s := base
			if alias := spec.IndicatorAlias; alias != "" {
				s.Indicator = td.Indicators[alias]
			}
			out[spec.HandlerName] = s
		default:
			if _, exists := out[spec.HandlerName]; !exists {
				out[spec.HandlerName] = base
			}
		}
	}
	return out
}

func seriesForFunc(aux map[string]risk.Series) risk.SeriesFor {
	return func(name string) risk.Series {
		if s, ok := aux[name]; ok {
			return s
		}
		return risk.Series{}
	}
}

// updateTrailingStops runs on_new_bar extrema tracking and the stop-level
// recompute for every open position's stop and take risk state.
func (e *Executor) updateTrailingStops(open map[position.Key]*position.State, riskStates map[position.Key]*riskState, primary *quote.QuoteFrame, index int, aux map[string]risk.Series) {
	if index < 0 || index >= primary.Len() {
		return
	}
	bar := primary.Quote(index)
	high, _ := bar.High.Float64()
	low, _ := bar.Low.Float64()

	seriesFor := seriesForFunc(aux)
	for key, state := range open {
		rs, ok := riskStates[key]
		if !ok {
			rs = newRiskState(state.Key.Direction, state.AveragePrice, high, low)
			riskStates[key] = rs
		}
		rs.stop.OnNewBar(high, low)
		rs.take.OnNewBar(high, low)
		e.stopMgr.UpdateStop(rs.stop, index, seriesFor, index)
		e.takeMgr.UpdateStop(rs.take, index, seriesFor, index)
	}
}

// validateEntries drops any entry whose pre-entry stop or take validation
// fails.
func (e *Executor) validateEntries(entries []position.Signal, index int, aux map[string]risk.Series) []position.Signal {
	if len(entries) == 0 {
		return entries
	}
	seriesFor := seriesForFunc(aux)
	kept := entries[:0]
	for _, sig := range entries {
		if res := e.stopMgr.ValidateEntry(sig.Direction, sig.Price, sig.Price, seriesFor, index); !res.Valid {
			continue
		}
		if res := e.takeMgr.ValidateEntry(sig.Direction, sig.Price, sig.Price, seriesFor, index); !res.Valid {
			continue
		}
		kept = append(kept, sig)
	}
	return kept
}

// runStopTriggerLoop re-runs the stop-trigger check for both the stop set
// and the take set until a fixed point (no more positions close this bar).
// Returns whether any position closed this bar.
func (e *Executor) runStopTriggerLoop(open map[position.Key]*position.State, riskStates map[position.Key]*riskState, barOpen, barHigh, barLow float64, at time.Time, report *Report) bool {
	triggeredAny := false
	for {
		progressed := false
		for key, state := range open {
			rs, ok := riskStates[key]
			if !ok {
				continue
			}

			kind := ""
			var exitPrice float64
			if triggered, price := risk.CheckTrigger(rs.stop, barOpen, barHigh, barLow); triggered {
				kind, exitPrice = "stop_loss", price
			} else if triggered, price := risk.CheckTrigger(rs.take, barOpen, barHigh, barLow); triggered {
				kind, exitPrice = "take_profit", price
			}
			if kind == "" {
				continue
			}

			decision := position.Decision{
				Exits: []position.Signal{{
					RuleID:         kind,
					Key:            key,
					Direction:      state.Key.Direction,
					Price:          exitPrice,
					TargetEntryIDs: []string{key.EntryRuleID},
				}},
			}
			procReport, err := e.posMgr.Process(decision, at)
			if err != nil {
				continue
			}
			recordReport(report, procReport)
			seedRiskStates(procReport, riskStates, barHigh, barLow)
			progressed = true
			triggeredAny = true
		}
		if !progressed {
			break
		}
		open = e.posMgr.Open()
		if len(open) == 0 {
			break
		}
	}
	return triggeredAny
}
