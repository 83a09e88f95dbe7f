package discovery_test

import (
	"math/rand"
	"testing"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

func TestBuildProducesStructurallyValidCandidate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	b := discovery.NewBuilder(discovery.DefaultConfig())

	for i := 0; i < 50; i++ {
		cand, err := b.Build(rng)
		if err != nil {
			t.Fatalf("Build attempt %d: %v", i, err)
		}
		if cand.Signature == "" {
			t.Fatalf("Build attempt %d: empty structural signature", i)
		}
		if len(cand.Definition.IndicatorBindings) == 0 {
			t.Fatalf("Build attempt %d: no indicator bindings", i)
		}
		if len(cand.Definition.EntryRules) == 0 {
			t.Fatalf("Build attempt %d: no entry rules", i)
		}
		if len(cand.Definition.StopHandlers) == 0 {
			t.Fatalf("Build attempt %d: no stop handlers", i)
		}
	}
}

func TestBuildNeverProducesOscillatorVsOscillatorCondition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfg := discovery.DefaultConfig()
	cfg.IndicatorPool = []string{"rsi", "stochastic"}
	b := discovery.NewBuilder(cfg)

	for i := 0; i < 30; i++ {
		cand, err := b.Build(rng)
		if err != nil {
			t.Fatalf("Build attempt %d: %v", i, err)
		}
		family := map[string]bool{}
		for _, ind := range cand.Definition.IndicatorBindings {
			family[ind.Alias] = ind.Indicator == "rsi" || ind.Indicator == "stochastic"
		}
		for _, c := range cand.Definition.ConditionBindings {
			if c.A.Kind == strategydef.SeriesIndicator && c.B.Kind == strategydef.SeriesIndicator {
				if family[c.A.Alias] && family[c.B.Alias] {
					t.Fatalf("Build attempt %d: condition %q compares two oscillators", i, c.ID)
				}
			}
		}
	}
}

func TestBuildRespectsMaxIndicatorDepth(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cfg := discovery.DefaultConfig()
	cfg.MaxIndicatorDepth = 1
	cfg.ProbNestedIndicator = 1.0
	b := discovery.NewBuilder(cfg)

	for i := 0; i < 40; i++ {
		cand, err := b.Build(rng)
		if err != nil {
			t.Fatalf("Build attempt %d: %v", i, err)
		}
		inputOf := map[string]string{}
		for _, ind := range cand.Definition.IndicatorBindings {
			if ind.Input != "" {
				inputOf[ind.Alias] = ind.Input
			}
		}
		for alias := range inputOf {
			depth := 0
			cur := alias
			for {
				parent, ok := inputOf[cur]
				if !ok {
					break
				}
				depth++
				if depth > cfg.MaxIndicatorDepth {
					t.Fatalf("Build attempt %d: nested chain for %q exceeds depth %d", i, alias, cfg.MaxIndicatorDepth)
				}
				cur = parent
			}
		}
	}
}

func TestBuildPrunesOrphanIndicatorAliases(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	b := discovery.NewBuilder(discovery.DefaultConfig())

	cand, err := b.Build(rng)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	referenced := map[string]bool{}
	for _, c := range cand.Definition.ConditionBindings {
		for _, src := range []strategydef.DataSeriesSource{c.A, c.B, c.Lower, c.Upper} {
			if src.Kind == strategydef.SeriesIndicator && src.Alias != "" {
				referenced[src.Alias] = true
			}
		}
	}
	byAlias := map[string]strategydef.IndicatorBindingSpec{}
	for _, ind := range cand.Definition.IndicatorBindings {
		byAlias[ind.Alias] = ind
	}
	for alias := range referenced {
		if _, ok := byAlias[alias]; !ok {
			t.Fatalf("condition references alias %q with no retained binding", alias)
		}
	}
	for _, ind := range cand.Definition.IndicatorBindings {
		if referenced[ind.Alias] {
			continue
		}
		// A kept-but-unreferenced binding must be an ancestor (via Input) of
		// some referenced alias.
		isAncestor := false
		for _, other := range cand.Definition.IndicatorBindings {
			if other.Input == ind.Alias && (referenced[other.Alias] || isAncestorOf(byAlias, other.Alias, referenced)) {
				isAncestor = true
				break
			}
		}
		if !isAncestor {
			t.Fatalf("binding %q is neither referenced nor an ancestor of a referenced binding", ind.Alias)
		}
	}
}

func isAncestorOf(byAlias map[string]strategydef.IndicatorBindingSpec, alias string, referenced map[string]bool) bool {
	for _, other := range byAlias {
		if other.Input == alias && (referenced[other.Alias] || isAncestorOf(byAlias, other.Alias, referenced)) {
			return true
		}
	}
	return false
}

func TestStructuralSignatureIsStableAndOrderIndependent(t *testing.T) {
	tf := quote.Minutes(1)
	def := &strategydef.StrategyDefinition{
		IndicatorBindings: []strategydef.IndicatorBindingSpec{
			{Alias: "b", Indicator: "ema", Timeframe: tf, Source: strategydef.SourceRegistry},
			{Alias: "a", Indicator: "sma", Timeframe: tf, Source: strategydef.SourceRegistry},
		},
		ConditionBindings: []strategydef.ConditionBindingSpec{
			{ID: "c2", Kind: condition.Above, Timeframe: tf,
				A: strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: "a"},
				B: strategydef.DataSeriesSource{Kind: strategydef.SeriesPrice, Field: "close"}},
		},
		StopHandlers: []strategydef.HandlerSpec{{HandlerName: "stop_loss_pct", Timeframe: tf}},
	}

	sigA := discovery.StructuralSignature(def)

	reordered := &strategydef.StrategyDefinition{
		IndicatorBindings: []strategydef.IndicatorBindingSpec{def.IndicatorBindings[1], def.IndicatorBindings[0]},
		ConditionBindings: def.ConditionBindings,
		StopHandlers:      def.StopHandlers,
	}
	sigB := discovery.StructuralSignature(reordered)

	if sigA != sigB {
		t.Fatalf("signature is order-dependent: %q vs %q", sigA, sigB)
	}
}

func TestStructuralSignatureDiffersOnDifferentConditionKind(t *testing.T) {
	tf := quote.Minutes(1)
	base := func(kind condition.Kind) *strategydef.StrategyDefinition {
		return &strategydef.StrategyDefinition{
			IndicatorBindings: []strategydef.IndicatorBindingSpec{{Alias: "a", Indicator: "sma", Timeframe: tf}},
			ConditionBindings: []strategydef.ConditionBindingSpec{{
				ID: "c1", Kind: kind, Timeframe: tf,
				A: strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: "a"},
				B: strategydef.DataSeriesSource{Kind: strategydef.SeriesPrice, Field: "close"},
			}},
		}
	}

	sigAbove := discovery.StructuralSignature(base(condition.Above))
	sigBelow := discovery.StructuralSignature(base(condition.Below))

	if sigAbove == sigBelow {
		t.Fatalf("expected differing signatures for Above vs Below, got equal: %q", sigAbove)
	}
}

func TestDefaultConfigProducesNonEmptyPools(t *testing.T) {
	cfg := discovery.DefaultConfig()
	if len(cfg.IndicatorPool) == 0 {
		t.Fatal("expected non-empty indicator pool")
	}
	if len(cfg.StopHandlerPool) == 0 {
		t.Fatal("expected non-empty stop handler pool")
	}
	if cfg.MaxBuildAttempts <= 0 {
		t.Fatal("expected positive MaxBuildAttempts")
	}
}
