// Package backtest orchestrates the quote feed, indicator runtime, condition
// kernel, strategy evaluator, risk engine, and position manager into the
// single-threaded bar loop that produces one backtest Report.
package backtest

import (
	"context"
	"time"

	"github.com/atlas-desktop/strategyforge/internal/execution"
	"github.com/atlas-desktop/strategyforge/internal/position"
	"github.com/atlas-desktop/strategyforge/internal/risk"
	"github.com/atlas-desktop/strategyforge/internal/stratctx"
	"github.com/atlas-desktop/strategyforge/pkg/indicator"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// dirtyCacheBars is the equity-curve recompute heuristic: once a bar has
// gone this many steps with no position open and no stop/entry activity,
// equity is assumed unchanged from the prior point.
const dirtyCacheBars = 10

// Executor drives one backtest's bar loop over a fixed set of quote frames
// and a prepared strategy.
type Executor struct {
	cfg       Config
	prepared  *strategydef.PreparedStrategy
	evaluator *execution.Evaluator
	stopMgr   *risk.Manager
	takeMgr   *risk.Manager
	posMgr    *position.Manager
}

// NewExecutor builds an Executor for one (strategy, capital config) pair.
// Stop/take handlers are constructed from the prepared strategy's specs.
func NewExecutor(cfg Config, prepared *strategydef.PreparedStrategy) (*Executor, error) {
	stopHandlers, err := buildHandlers(prepared.StopHandlers)
	if err != nil {
		return nil, wrapError("NewExecutor", err, "building stop handlers")
	}
	takeHandlers, err := buildHandlers(prepared.TakeHandlers)
	if err != nil {
		return nil, wrapError("NewExecutor", err, "building take handlers")
	}

	return &Executor{
		cfg:       cfg,
		prepared:  prepared,
		evaluator: execution.NewEvaluator(prepared),
		stopMgr:   risk.NewManager(stopHandlers),
		takeMgr:   risk.NewManager(takeHandlers),
		posMgr: position.NewManager(position.Config{
			InitialCapital:  cfg.InitialCapital,
			UseFullCapital:  cfg.UseFullCapital,
			ReinvestProfits: cfg.ReinvestProfits,
		}),
	}, nil
}

func buildHandlers(specs []strategydef.HandlerSpec) ([]risk.Handler, error) {
	handlers := make([]risk.Handler, 0, len(specs))
	for _, spec := range specs {
		h, err := risk.NewHandler(spec)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

// Run executes the full bar loop over frames (keyed by TimeFrame.String(),
// must include every timeframe the prepared strategy references) and
// returns the accumulated Report. ctx cancellation stops the loop early,
// wrapping whatever partial report exists at that point.
func (e *Executor) Run(ctx context.Context, frames map[string]*quote.QuoteFrame) (*Report, error) {
	strategyCtx := stratctx.New(frames, primaryTimeframe(frames))

	indicatorSeries, err := resolveIndicators(e.prepared, frames)
	if err != nil {
		return nil, wrapError("Run", err, "resolving indicator bindings")
	}
	installIndicators(strategyCtx, e.prepared.IndicatorBindings, indicatorSeries, frames)

	if err := e.evaluator.PrecomputeConditions(strategyCtx); err != nil {
		return nil, wrapError("Run", err, "precomputing conditions")
	}

	cursor, err := quote.NewCursor(frames)
	if err != nil {
		return nil, wrapError("Run", err, "building cursor")
	}

	primary := frames[cursor.PrimaryTimeframe().String()]
	warmup := warmupBars(e.prepared, frames, primary)

	riskStates := map[position.Key]*riskState{}
	auxSeries := buildAuxiliarySeries(e.prepared, strategyCtx, cursor.PrimaryTimeframe())

	report := &Report{InitialCapital: e.cfg.InitialCapital}
	var lastEquity EquityPoint
	barsSinceActivity := dirtyCacheBars // force the first point to compute
	var lastTimestamp time.Time

	startTS := lastTimestamp
	if primary.Len() > 0 {
		startTS = primary.Timestamps()[0]
	}
	report.EquityCurve = append(report.EquityCurve, EquityPoint{
		Timestamp: startTS,
		Equity:    e.cfg.InitialCapital,
		Cash:      e.cfg.InitialCapital,
	})

	for cursor.Step() {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		idx := cursor.PrimaryIndex()
		ts := cursor.Timestamp()
		strategyCtx.SetIndices(currentIndices(cursor, frames))
		report.TotalBars++
		if report.StartDate.IsZero() {
			report.StartDate = ts
		}
		report.EndDate = ts

		activity := false

		if idx < warmup {
			report.EquityCurve = append(report.EquityCurve, equityAt(e.posMgr, primary, idx, ts))
			lastTimestamp = ts
			continue
		}

		if !lastTimestamp.IsZero() {
			detectSessionBoundary(strategyCtx, lastTimestamp, ts, cursor.PrimaryTimeframe())
		}
		lastTimestamp = ts

		open := e.posMgr.Open()
		if len(open) > 0 {
			e.updateTrailingStops(open, riskStates, primary, idx, auxSeries)
			report.BarsInPositions++
		}

		decision, err := e.evaluator.Evaluate(strategyCtx, cursor.PrimaryTimeframe(), e.cfg.Symbol)
		if err != nil {
			return nil, wrapError("Run", err, "evaluating strategy at bar %d", idx)
		}

		// Exits take priority over entries in the same decision.
		if len(decision.Exits) > 0 {
			decision.Entries = nil
		}

		openPrice := primary.OpenFloat64()[idx]
		for i := range decision.Entries {
			decision.Entries[i].Price = openPrice
		}
		for i := range decision.Exits {
			decision.Exits[i].Price = openPrice
		}

		decision.Entries = e.validateEntries(decision.Entries, idx, auxSeries)

		if len(decision.Entries) > 0 || len(decision.Exits) > 0 {
			activity = true
		}

		bar := primary.Quote(idx)
		barOpen, _ := bar.Open.Float64()
		barHigh, _ := bar.High.Float64()
		barLow, _ := bar.Low.Float64()

		procReport, err := e.posMgr.Process(decision, ts)
		if err != nil {
			return nil, wrapError("Run", err, "processing decision at bar %d", idx)
		}
		recordReport(report, procReport)
		seedRiskStates(procReport, riskStates, barHigh, barLow)

		open = e.posMgr.Open()
		if len(open) > 0 {
			e.updateTrailingStops(open, riskStates, primary, idx, auxSeries)
			triggered := e.runStopTriggerLoop(open, riskStates, barOpen, barHigh, barLow, ts, report)
			if triggered {
				activity = true
			}
		}

		if activity {
			barsSinceActivity = 0
		} else {
			barsSinceActivity++
		}

		if len(open) > 0 || barsSinceActivity < dirtyCacheBars || len(report.EquityCurve) == 0 {
			point := equityAt(e.posMgr, primary, idx, ts)
			report.EquityCurve = append(report.EquityCurve, point)
			lastEquity = point
		} else {
			point := lastEquity
			point.Timestamp = ts
			report.EquityCurve = append(report.EquityCurve, point)
		}
	}

	return report, nil
}

func primaryTimeframe(frames map[string]*quote.QuoteFrame) quote.TimeFrame {
	var best quote.TimeFrame
	var bestMinutes int64 = -1
	for _, f := range frames {
		minutes, ok := f.Timeframe().AsMinutes()
		if !ok {
			continue
		}
		if bestMinutes < 0 || minutes < bestMinutes {
			bestMinutes = minutes
			best = f.Timeframe()
		}
	}
	return best
}

func currentIndices(cursor *quote.Cursor, frames map[string]*quote.QuoteFrame) map[string]int {
	out := make(map[string]int, len(frames))
	for key := range frames {
		out[key] = cursor.Index(key)
	}
	return out
}

func resolveIndicators(prepared *strategydef.PreparedStrategy, frames map[string]*quote.QuoteFrame) (map[string][]float64, error) {
	return indicator.Resolve(prepared.IndicatorBindings, frames)
}

func installIndicators(ctx *stratctx.StrategyContext, bindings []indicator.Binding, series map[string][]float64, frames map[string]*quote.QuoteFrame) {
	for _, b := range bindings {
		frame, ok := frames[b.TimeframeKey]
		if !ok {
			continue
		}
		td, err := ctx.Timeframe(frame.Timeframe())
		if err != nil {
			continue
		}
		td.Indicators[b.Alias] = series[b.Alias]
	}
}

// warmupBars computes max(indicator MinData × 2) across bindings, rescaled
// from each binding's own timeframe into primary-TF bars via the minute
// ratio.
func warmupBars(prepared *strategydef.PreparedStrategy, frames map[string]*quote.QuoteFrame, primary *quote.QuoteFrame) int {
	primaryMinutes, _ := primary.Timeframe().AsMinutes()
	if primaryMinutes <= 0 {
		primaryMinutes = 1
	}

	maxBars := 0
	for _, b := range prepared.IndicatorBindings {
		if b.Indicator == "" {
			continue
		}
		spec, ok := indicator.Lookup(b.Indicator)
		if !ok || spec.MinData == nil {
			continue
		}
		periodBars := spec.MinData(b.Params) * 2

		bindingMinutes := primaryMinutes
		if frame, ok := frames[b.TimeframeKey]; ok {
			if m, ok := frame.Timeframe().AsMinutes(); ok && m > 0 {
				bindingMinutes = m
			}
		}
		ratio := bindingMinutes / primaryMinutes
		if ratio < 1 {
			ratio = 1
		}
		rescaled := periodBars * int(ratio)
		if rescaled > maxBars {
			maxBars = rescaled
		}
	}
	return maxBars
}

func equityAt(posMgr *position.Manager, primary *quote.QuoteFrame, idx int, ts time.Time) EquityPoint {
	cash := posMgr.AvailableCapital()
	equity := cash
	closes := primary.CloseFloat64()
	for _, state := range posMgr.Open() {
		price := state.AveragePrice
		if idx >= 0 && idx < len(closes) {
			price = closes[idx]
		}
		equity += state.Quantity * price
	}
	return EquityPoint{Timestamp: ts, Equity: equity, Cash: cash}
}

func detectSessionBoundary(ctx *stratctx.StrategyContext, last, current time.Time, primaryTF quote.TimeFrame) {
	minutes, ok := primaryTF.AsMinutes()
	if !ok {
		return
	}
	gap := current.Sub(last)
	if gap > time.Duration(minutes)*time.Minute {
		ctx.Metadata["session_boundary"] = "true"
	} else {
		delete(ctx.Metadata, "session_boundary")
	}
}

func recordReport(report *Report, procReport *position.Report) {
	report.Trades = append(report.Trades, procReport.Trades...)
}

func seedRiskStates(procReport *position.Report, states map[position.Key]*riskState, high, low float64) {
	for _, state := range procReport.Opened {
		states[state.Key] = newRiskState(state.Key.Direction, state.AveragePrice, high, low)
	}
	for _, state := range procReport.Closed {
		delete(states, state.Key)
	}
}
