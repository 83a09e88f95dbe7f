// Package discovery builds fresh, structurally valid strategy candidates
// under random draws biased by a probability config.
package discovery

import (
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// Candidate is a proposed strategy graph plus the structural signature used
// for duplicate detection.
type Candidate struct {
	ID         string
	Definition *strategydef.StrategyDefinition
	Signature  string
}

// Clone deep-copies c so a genetic operator can mutate the copy's slices
// freely without aliasing the parent candidate still referenced elsewhere in
// a population.
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	def := c.Definition
	cloned := &strategydef.StrategyDefinition{
		Metadata:           def.Metadata,
		Parameters:         append([]strategydef.ParameterSpec(nil), def.Parameters...),
		IndicatorBindings:  append([]strategydef.IndicatorBindingSpec(nil), def.IndicatorBindings...),
		ConditionBindings:  append([]strategydef.ConditionBindingSpec(nil), def.ConditionBindings...),
		EntryRules:   cloneRules(def.EntryRules),
		ExitRules:    cloneRules(def.ExitRules),
		StopHandlers: cloneHandlers(def.StopHandlers),
		TakeHandlers: cloneHandlers(def.TakeHandlers),
	}
	return &Candidate{ID: c.ID, Definition: cloned, Signature: c.Signature}
}

func cloneRules(rules []strategydef.Rule) []strategydef.Rule {
	if rules == nil {
		return nil
	}
	out := make([]strategydef.Rule, len(rules))
	for i, r := range rules {
		r.Conditions = append([]string(nil), r.Conditions...)
		out[i] = r
	}
	return out
}

func cloneHandlers(handlers []strategydef.HandlerSpec) []strategydef.HandlerSpec {
	if handlers == nil {
		return nil
	}
	out := make([]strategydef.HandlerSpec, len(handlers))
	for i, h := range handlers {
		params := make(map[string]float64, len(h.Parameters))
		for k, v := range h.Parameters {
			params[k] = v
		}
		h.Parameters = params
		out[i] = h
	}
	return out
}

// Config controls candidate construction: probabilities, constraints,
// indicator-parameter rules, and price-field choices.
type Config struct {
	BaseTimeframe             quote.TimeFrame
	AdditionalTimeframes      []quote.TimeFrame
	TimeframeCount            int // max distinct TFs one candidate may reference
	MaxIndicatorDepth         int // max nested-indicator-of-indicator chain length
	AllowIndicatorOnIndicator bool
	MaxOptimizationParams     int
	MaxEntryConditions        int
	MaxExitConditions         int
	MaxStopHandlers           int

	IndicatorPool   []string // subset of indicator.Names() this builder draws from
	PriceFields     []string // e.g. "close", "open", "high", "low"
	StopHandlerPool []string
	TakeHandlerPool []string

	ProbHigherTimeframeIndicator float64
	ProbNestedIndicator          float64
	ProbExtraCondition           float64
	ProbExitCondition            float64
	ProbTakeHandler              float64
	ProbExtraStopHandler         float64

	// MaxBuildAttempts bounds the retry loop when a random draw violates a
	// structural rule, then falls back to a simpler shape.
	MaxBuildAttempts int
}

// DefaultConfig returns the candidate builder's default knob values.
func DefaultConfig() Config {
	return Config{
		BaseTimeframe:                quote.Minutes(1),
		TimeframeCount:               3,
		MaxIndicatorDepth:            2,
		AllowIndicatorOnIndicator:    true,
		MaxOptimizationParams:        8,
		MaxEntryConditions:           4,
		MaxExitConditions:            2,
		MaxStopHandlers:              2,
		IndicatorPool:                []string{"sma", "ema", "rsi", "atr", "stochastic", "supertrend"},
		PriceFields:                  []string{"close"},
		StopHandlerPool:              []string{"stop_loss_pct", "percent_trailing_stop", "atr_trail_stop"},
		TakeHandlerPool:              []string{"stop_loss_pct", "percent_trailing_stop"},
		ProbHigherTimeframeIndicator: 0.3,
		ProbNestedIndicator:          0.2,
		ProbExtraCondition:           0.3,
		ProbExitCondition:            0.25,
		ProbTakeHandler:              0.5,
		ProbExtraStopHandler:         0.2,
		MaxBuildAttempts:             8,
	}
}
