package evaluator_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategyforge/internal/backtest"
	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/evaluator"
	"github.com/atlas-desktop/strategyforge/internal/genetic"
	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

func buildFrames(t *testing.T, closes []float64) map[string]*quote.QuoteFrame {
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

func crossoverCandidate(id string) *discovery.Candidate {
	def := &strategydef.StrategyDefinition{
		Metadata: strategydef.Metadata{ID: id},
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
	}
	return &discovery.Candidate{ID: id, Definition: def, Signature: "sig_" + id}
}

func testEvaluator(t *testing.T, frames map[string]*quote.QuoteFrame) *evaluator.Evaluator {
	t.Helper()
	cfg := evaluator.DefaultConfig()
	cfg.BacktestConfig = backtest.Config{Symbol: "TEST", InitialCapital: 1000}
	cfg.CandidateTimeout = 2 * time.Second
	return evaluator.NewEvaluator(zap.NewNop(), cfg, frames)
}

func TestEvaluatePopulationWritesFitness(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 12, 14, 16, 18, 20, 10, 10, 10}
	frames := buildFrames(t, closes)
	e := testEvaluator(t, frames)

	pop := genetic.Population{
		{Candidate: crossoverCandidate("a")},
		{Candidate: crossoverCandidate("b")},
	}
	if err := e.EvaluatePopulation(context.Background(), pop); err != nil {
		t.Fatalf("EvaluatePopulation: %v", err)
	}
	for _, ind := range pop {
		if !ind.HasFitness {
			t.Fatalf("candidate %s: expected HasFitness true", ind.Candidate.ID)
		}
	}
}

func TestEvaluatePopulationSkipsAlreadyScored(t *testing.T) {
	frames := buildFrames(t, []float64{10, 11, 12, 13})
	e := testEvaluator(t, frames)

	pop := genetic.Population{
		{Candidate: crossoverCandidate("a"), Fitness: 0.42, HasFitness: true},
	}
	if err := e.EvaluatePopulation(context.Background(), pop); err != nil {
		t.Fatalf("EvaluatePopulation: %v", err)
	}
	if pop[0].Fitness != 0.42 {
		t.Fatalf("expected pre-scored fitness to be left untouched, got %v", pop[0].Fitness)
	}
}

func TestEvaluatePopulationCachesBySignature(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 12, 14, 16, 18, 20, 10, 10, 10}
	frames := buildFrames(t, closes)
	e := testEvaluator(t, frames)

	first := genetic.Population{{Candidate: crossoverCandidate("a")}}
	if err := e.EvaluatePopulation(context.Background(), first); err != nil {
		t.Fatalf("EvaluatePopulation: %v", err)
	}

	second := genetic.Population{{Candidate: crossoverCandidate("a")}} // same Signature
	if err := e.EvaluatePopulation(context.Background(), second); err != nil {
		t.Fatalf("EvaluatePopulation: %v", err)
	}
	if second[0].Fitness != first[0].Fitness {
		t.Fatalf("expected cached fitness %v, got %v", first[0].Fitness, second[0].Fitness)
	}
}

func TestWalkForwardProducesConfiguredFoldCount(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 10 + float64(i%20)
	}
	frames := buildFrames(t, closes)
	e := testEvaluator(t, frames)

	result, err := e.WalkForward(context.Background(), crossoverCandidate("a"), evaluator.WalkForwardConfig{
		Folds: 4, InSamplePct: 0.7,
	})
	if err != nil {
		t.Fatalf("WalkForward: %v", err)
	}
	if len(result.Folds) != 4 {
		t.Fatalf("expected 4 folds, got %d", len(result.Folds))
	}
	for _, f := range result.Folds {
		if !f.OutSampleEnd.After(f.InSampleStart) {
			t.Fatalf("fold %d: out-of-sample end %s not after in-sample start %s", f.FoldNumber, f.OutSampleEnd, f.InSampleStart)
		}
	}
}
