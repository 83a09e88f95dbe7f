package backtest_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/strategyforge/internal/backtest"
	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
	"github.com/shopspring/decimal"
)

func buildFrame(t *testing.T, closes []float64) map[string]*quote.QuoteFrame {
	t.Helper()
	sym := quote.Symbol{Ticker: "TEST"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	quotes := make([]quote.Quote, len(closes))
	for i, c := range closes {
		quotes[i] = quote.Quote{
			Symbol: sym, Timeframe: quote.Minutes(1), Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open: decimal.NewFromFloat(c), High: decimal.NewFromFloat(c + 1), Low: decimal.NewFromFloat(c - 1),
			Close: decimal.NewFromFloat(c), Volume: decimal.NewFromInt(1),
		}
	}
	frame, err := quote.NewQuoteFrame(sym, quote.Minutes(1), quotes)
	if err != nil {
		t.Fatalf("NewQuoteFrame: %v", err)
	}
	return map[string]*quote.QuoteFrame{quote.Minutes(1).String(): frame}
}

func crossoverStrategy(t *testing.T, stopHandlers []strategydef.HandlerSpec) *strategydef.PreparedStrategy {
	t.Helper()
	def := &strategydef.StrategyDefinition{
		IndicatorBindings: []strategydef.IndicatorBindingSpec{
			{Alias: "fast", Timeframe: quote.Minutes(1), Source: strategydef.SourceRegistry, Indicator: "sma", Params: map[string]float64{"period": 2}},
			{Alias: "slow", Timeframe: quote.Minutes(1), Source: strategydef.SourceRegistry, Indicator: "sma", Params: map[string]float64{"period": 4}},
		},
		ConditionBindings: []strategydef.ConditionBindingSpec{
			{
				ID: "fast_above_slow", Kind: condition.Above, Timeframe: quote.Minutes(1),
				A: strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: "fast"},
				B: strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: "slow"},
			},
		},
		EntryRules: []strategydef.Rule{
			{ID: "enter_long", Logic: strategydef.LogicAll, Conditions: []string{"fast_above_slow"}, Signal: true, Direction: strategydef.Long},
		},
		ExitRules: []strategydef.Rule{
			{ID: "exit_long", Logic: strategydef.LogicAll, Conditions: []string{"fast_above_slow"}, Signal: false, Direction: strategydef.Long},
		},
		StopHandlers: stopHandlers,
	}
	prepared, err := strategydef.Prepare(def)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return prepared
}

func TestRunTrivialLongRoundTrip(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 12, 14, 16, 18, 20, 10, 10, 10}
	frames := buildFrame(t, closes)
	prepared := crossoverStrategy(t, nil)

	exec, err := backtest.NewExecutor(backtest.Config{Symbol: "TEST", InitialCapital: 1000}, prepared)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	report, err := exec.Run(context.Background(), frames)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TotalBars != len(closes) {
		t.Fatalf("expected %d bars, got %d", len(closes), report.TotalBars)
	}
	if len(report.Trades) == 0 {
		t.Fatal("expected at least one closed trade from the crossover round trip")
	}
	if len(report.EquityCurve) != len(closes)+1 {
		t.Fatalf("expected one equity point per bar plus the initial-capital seed, got %d", len(report.EquityCurve))
	}
}

type ohlcBar struct{ o, h, l, c float64 }

func buildCustomFrame(t *testing.T, bars []ohlcBar) map[string]*quote.QuoteFrame {
	t.Helper()
	sym := quote.Symbol{Ticker: "TEST"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	quotes := make([]quote.Quote, len(bars))
	for i, b := range bars {
		quotes[i] = quote.Quote{
			Symbol: sym, Timeframe: quote.Minutes(1), Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open: decimal.NewFromFloat(b.o), High: decimal.NewFromFloat(b.h), Low: decimal.NewFromFloat(b.l),
			Close: decimal.NewFromFloat(b.c), Volume: decimal.NewFromInt(1),
		}
	}
	frame, err := quote.NewQuoteFrame(sym, quote.Minutes(1), quotes)
	if err != nil {
		t.Fatalf("NewQuoteFrame: %v", err)
	}
	return map[string]*quote.QuoteFrame{quote.Minutes(1).String(): frame}
}

func TestRunStopLossTriggersExit(t *testing.T) {
	// Rising closes build an entry on bar 8, the first bar after the 8-bar
	// warmup (fast SMA has been above slow since bar 4);
	// bar 9 wicks sharply below the 5% stop intrabar while its close stays
	// high enough that the crossover condition itself never flips, so only
	// the stop, not the rule-based exit, can account for the closed trade.
	bars := []ohlcBar{
		{10, 10, 10, 10}, {10, 10, 10, 10}, {10, 10, 10, 10}, {10, 10, 10, 10},
		{12, 12, 12, 12}, {14, 14, 14, 14}, {16, 16, 16, 16}, {18, 18, 18, 18},
		{20, 21, 19.5, 20},
		{20, 20.5, 10, 19.5},
	}
	frames := buildCustomFrame(t, bars)
	stopHandlers := []strategydef.HandlerSpec{
		{ID: "sl", HandlerName: "stop_loss_pct", Priority: 1, Parameters: map[string]float64{"percent": 5}},
	}
	prepared := crossoverStrategy(t, stopHandlers)

	exec, err := backtest.NewExecutor(backtest.Config{Symbol: "TEST", InitialCapital: 1000}, prepared)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	report, err := exec.Run(context.Background(), frames)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Trades) == 0 {
		t.Fatal("expected the stop-loss to close the long position")
	}
	foundStopExit := false
	for _, trade := range report.Trades {
		if trade.ExitRuleID == "stop_loss" {
			foundStopExit = true
		}
	}
	if !foundStopExit {
		t.Fatalf("expected a trade closed by stop_loss, got exit rule ids: %+v", report.Trades)
	}
}

func TestRunShortFrameProducesFlatEquityNoTrades(t *testing.T) {
	closes := []float64{10, 11, 12}
	frames := buildFrame(t, closes)
	prepared := crossoverStrategy(t, nil)

	exec, err := backtest.NewExecutor(backtest.Config{Symbol: "TEST", InitialCapital: 1000}, prepared)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	report, err := exec.Run(context.Background(), frames)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Trades) != 0 {
		t.Fatalf("expected zero trades on a frame shorter than warmup, got %d", len(report.Trades))
	}
	for _, pt := range report.EquityCurve {
		if pt.Equity != 1000 {
			t.Fatalf("expected flat equity at initial capital during warmup, got %v", pt.Equity)
		}
	}
}
