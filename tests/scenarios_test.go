// Package tests exercises end-to-end scenarios across package boundaries:
// quote feed -> indicator runtime -> condition kernel -> strategy context ->
// backtest executor -> fitness, and the discovery ->
// genetic pipeline that feeds it. Package-local unit tests already cover
// scenarios 1, 2, 4 and 5 in their owning packages (backtest, pkg/quote,
// internal/genetic, internal/discovery), and scenario 6 has no dedicated
// test; this suite adds scenario 3 (the
// RSI-oversold round trip) plus a full discovery-to-backtest wiring check
// that no single package test exercises end-to-end.
package tests

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/strategyforge/internal/backtest"
	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/fitness"
	"github.com/atlas-desktop/strategyforge/internal/stratctx"
	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/indicator"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

func buildSineFrame(t *testing.T, bars int) (map[string]*quote.QuoteFrame, []float64) {
	t.Helper()
	sym := quote.Symbol{Ticker: "SINE"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]float64, bars)
	quotes := make([]quote.Quote, bars)
	for i := 0; i < bars; i++ {
		// A slow sinusoid around 50 with enough amplitude to swing RSI(14)
		// through both the oversold (<30) and overbought (>70) bands.
		close := 50 + 35*math.Sin(float64(i)/12.0)
		high := close + 0.5
		low := close - 0.5
		open := close
		if i > 0 {
			open = closes[i-1]
		}
		if open > high {
			high = open
		}
		if open < low {
			low = open
		}
		closes[i] = close
		quotes[i] = quote.Quote{
			Symbol: sym, Timeframe: quote.Minutes(1), Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open: decimal.NewFromFloat(open), High: decimal.NewFromFloat(high), Low: decimal.NewFromFloat(low),
			Close: decimal.NewFromFloat(close), Volume: decimal.NewFromInt(1),
		}
	}
	frame, err := quote.NewQuoteFrame(sym, quote.Minutes(1), quotes)
	if err != nil {
		t.Fatalf("NewQuoteFrame: %v", err)
	}
	return map[string]*quote.QuoteFrame{quote.Minutes(1).String(): frame}, closes
}

func rsiOversoldDefinition() *strategydef.StrategyDefinition {
	return &strategydef.StrategyDefinition{
		Metadata: strategydef.Metadata{ID: "rsi-oversold"},
		IndicatorBindings: []strategydef.IndicatorBindingSpec{
			{Alias: "rsi14", Timeframe: quote.Minutes(1), Source: strategydef.SourceRegistry, Indicator: "rsi", Params: map[string]float64{"period": 14}},
		},
		ConditionBindings: []strategydef.ConditionBindingSpec{
			{
				ID: "rsi_oversold", Kind: condition.Below, Timeframe: quote.Minutes(1),
				A: strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: "rsi14"},
				B: strategydef.DataSeriesSource{Kind: strategydef.SeriesCustom, Alias: stratctx.ConstantSeriesAlias(30)},
			},
			{
				ID: "rsi_overbought", Kind: condition.Above, Timeframe: quote.Minutes(1),
				A: strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: "rsi14"},
				B: strategydef.DataSeriesSource{Kind: strategydef.SeriesCustom, Alias: stratctx.ConstantSeriesAlias(70)},
			},
		},
		EntryRules: []strategydef.Rule{
			{ID: "enter_oversold", Logic: strategydef.LogicAll, Conditions: []string{"rsi_oversold"}, Signal: true, Direction: strategydef.Long},
		},
		ExitRules: []strategydef.Rule{
			{ID: "exit_overbought", Logic: strategydef.LogicAll, Conditions: []string{"rsi_overbought"}, Signal: false, Direction: strategydef.Long},
		},
		StopHandlers: []strategydef.HandlerSpec{
			{ID: "trail", HandlerName: "percent_trailing_stop", Priority: 1, Parameters: map[string]float64{"percent": 2}},
		},
	}
}

// TestRSIOversoldStrategyEntriesAndExitsRespectThresholds runs a
// sinusoidal 500-bar frame through a single RSI(14)<30 entry
// condition, RSI(14)>70 exit, and a 2% trailing stop. Every non-stop exit
// must have fired with RSI>70 at its own entry-rule-driven bar, and every
// entry must have fired with RSI<30.
func TestRSIOversoldStrategyEntriesAndExitsRespectThresholds(t *testing.T) {
	frames, closes := buildSineFrame(t, 500)
	rsiSpec, ok := indicator.Lookup("rsi")
	if !ok {
		t.Fatal("rsi indicator not registered")
	}
	rsiSeries, err := rsiSpec.Series(closes, map[string]float64{"period": 14})
	if err != nil {
		t.Fatalf("computing reference rsi series: %v", err)
	}

	prepared, err := strategydef.Prepare(rsiOversoldDefinition())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	exec, err := backtest.NewExecutor(backtest.Config{Symbol: "SINE", InitialCapital: 10000}, prepared)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	report, err := exec.Run(context.Background(), frames)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Trades) == 0 {
		t.Fatal("expected a positive number of trades from a 500-bar oscillating series")
	}

	primary := frames[quote.Minutes(1).String()]
	timestamps := make(map[time.Time]int, primary.Len())
	for i, ts := range primary.Timestamps() {
		timestamps[ts] = i
	}

	for _, trade := range report.Trades {
		entryIdx, ok := timestamps[trade.EntryTime]
		if !ok {
			t.Fatalf("entry time %v not found in frame", trade.EntryTime)
		}
		if rsi := rsiSeries[entryIdx]; !math.IsNaN(rsi) && rsi >= 30 {
			t.Errorf("trade entered at bar %d with RSI %.2f, want RSI<30 on the signal bar", entryIdx, rsi)
		}
		if trade.ExitRuleID == "exit_overbought" {
			exitIdx, ok := timestamps[trade.ExitTime]
			if !ok {
				t.Fatalf("exit time %v not found in frame", trade.ExitTime)
			}
			if rsi := rsiSeries[exitIdx]; !math.IsNaN(rsi) && rsi <= 70 {
				t.Errorf("rule exit at bar %d had RSI %.2f, want RSI>70 on the signal bar", exitIdx, rsi)
			}
		}
	}
}

// TestDiscoveryToBacktestPipeline wires discovery.Builder's output through
// strategydef.Prepare and backtest.Executor directly (bypassing the
// evaluator's worker pool and Redis-backed cache, which are covered in
// internal/evaluator's own tests) to confirm the StrategyCandidate ->
// StrategyDefinition -> PreparedStrategy round trip is idempotent against a
// real price series end to end.
func TestDiscoveryToBacktestPipeline(t *testing.T) {
	cfg := discovery.DefaultConfig()
	cfg.BaseTimeframe = quote.Minutes(1)
	builder := discovery.NewBuilder(cfg)
	rng := rand.New(rand.NewSource(7))

	frames, _ := buildSineFrame(t, 300)

	for i := 0; i < 5; i++ {
		cand, err := builder.Build(rng)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		prepared1, err := strategydef.Prepare(cand.Definition)
		if err != nil {
			t.Fatalf("Prepare (first): %v", err)
		}
		prepared2, err := strategydef.Prepare(cand.Definition)
		if err != nil {
			t.Fatalf("Prepare (second): %v", err)
		}

		exec1, err := backtest.NewExecutor(backtest.Config{Symbol: "SINE", InitialCapital: 10000}, prepared1)
		if err != nil {
			t.Fatalf("NewExecutor (first): %v", err)
		}
		exec2, err := backtest.NewExecutor(backtest.Config{Symbol: "SINE", InitialCapital: 10000}, prepared2)
		if err != nil {
			t.Fatalf("NewExecutor (second): %v", err)
		}

		report1, err := exec1.Run(context.Background(), frames)
		if err != nil {
			t.Fatalf("Run (first): %v", err)
		}
		report2, err := exec2.Run(context.Background(), frames)
		if err != nil {
			t.Fatalf("Run (second): %v", err)
		}

		if len(report1.Trades) != len(report2.Trades) {
			t.Fatalf("candidate %d: non-deterministic trade count across identical runs: %d vs %d", i, len(report1.Trades), len(report2.Trades))
		}
		for j := range report1.Trades {
			if !reflect.DeepEqual(report1.Trades[j], report2.Trades[j]) {
				t.Fatalf("candidate %d trade %d: non-identical reports across identical runs", i, j)
			}
		}

		m := fitness.Calculate(report1, 1440)
		score := fitness.Score(m, fitness.DefaultWeights())
		if math.IsNaN(score) || math.IsInf(score, 0) {
			t.Fatalf("candidate %d: fitness score is not finite: %v", i, score)
		}
	}
}
