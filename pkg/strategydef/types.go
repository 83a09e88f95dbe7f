// Package strategydef implements the declarative strategy representation
//: StrategyDefinition, its
// parameter/indicator/condition/rule/handler building blocks, and the
// builder that validates and lowers a definition into a PreparedStrategy.
package strategydef

import (
	"time"

	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// Direction is a position or rule-targeted trade direction.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
	Both  Direction = "both"
)

// Metadata identifies one strategy definition.
type Metadata struct {
	ID        string
	Name      string
	Version   string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ParameterSpec describes one tunable free parameter.
type ParameterSpec struct {
	Name           string
	Default        ParamValue
	Min, Max       *float64
	Step           *float64
	DiscreteValues []ParamValue
	Optimize       bool
}

// IndicatorSourceKind tags whether an indicator binding is registry-backed
// or a user formula.
type IndicatorSourceKind string

const (
	SourceRegistry IndicatorSourceKind = "registry"
	SourceFormula  IndicatorSourceKind = "formula"
)

// IndicatorBindingSpec declares one named series to compute before the bar
// loop starts.
type IndicatorBindingSpec struct {
	Alias     string
	Timeframe quote.TimeFrame
	Source    IndicatorSourceKind

	// Registry source.
	Indicator string
	Params    map[string]float64
	// Input names another alias (indicator-of-indicator) or a price field;
	// empty defaults to "close". Ignored by indicators that always read
	// OHLC directly (e.g. ATR, Stochastic, Supertrend).
	Input string

	// Formula source.
	Formula string

	Tags []string
}

// DataSeriesSourceKind tags what a condition operand reads from.
type DataSeriesSourceKind string

const (
	SeriesIndicator DataSeriesSourceKind = "indicator"
	SeriesPrice     DataSeriesSourceKind = "price"
	SeriesCustom    DataSeriesSourceKind = "custom"
)

// DataSeriesSource names one operand of a condition binding.
type DataSeriesSource struct {
	Kind      DataSeriesSourceKind
	Alias     string // indicator alias, or custom series key
	Field     string // price field, when Kind == SeriesPrice
	Timeframe *quote.TimeFrame // nil => the condition's own timeframe
}

// ConditionBindingSpec declares one PreparedCondition.
type ConditionBindingSpec struct {
	ID        string
	Kind      condition.Kind
	Timeframe quote.TimeFrame

	// Operand sources, populated according to condition.ExpectedShape(Kind):
	// Dual/DualWithPercent use A and B; Range uses A, Lower, Upper; Single
	// (RisingTrend/FallingTrend) uses A only.
	A, B, Lower, Upper DataSeriesSource

	Percent float64 // DualWithPercent.
	K       int      // RisingTrend/FallingTrend lookback window.

	Weight float64
	Tags   []string
}

// RuleLogic tags the combinator a Rule uses over its condition list.
type RuleLogic string

const (
	LogicAll        RuleLogic = "all"
	LogicAny        RuleLogic = "any"
	LogicAtLeast    RuleLogic = "at_least"
	LogicWeighted   RuleLogic = "weighted"
	LogicExpression RuleLogic = "expression"
)

// Rule is an entry or exit rule: a combinator over condition bindings that
// emits a trading signal when satisfied.
type Rule struct {
	ID    string
	Logic RuleLogic

	N        int     // LogicAtLeast(n).
	MinTotal float64 // LogicWeighted{min_total}.
	Expression string // LogicExpression(text), over condition IDs as booleans.

	Conditions []string // condition binding IDs this rule reads.

	Signal        bool
	Direction     Direction
	Quantity      *float64
	PositionGroup string
	TargetEntryIDs []string
}

// HandlerSpec declares one stop-loss or take-profit handler attached to
// positions opened by TargetEntryIDs (or all positions, if empty).
type HandlerSpec struct {
	ID          string
	HandlerName string
	Timeframe   quote.TimeFrame
	PriceField  string
	Parameters  map[string]float64

	// IndicatorAlias is the explicit alias an indicator-anchored handler
	// (ATRTrailIndicatorStop, PercentTrailIndicatorStop) reads, replacing the
	// source's undocumented ":indicator" suffix convention.
	IndicatorAlias string

	Direction      Direction
	Priority       int
	TargetEntryIDs []string
}

// StrategyDefinition is the full declarative, serializable strategy
// representation.
type StrategyDefinition struct {
	Metadata          Metadata
	Parameters        []ParameterSpec
	IndicatorBindings []IndicatorBindingSpec
	ConditionBindings []ConditionBindingSpec
	EntryRules        []Rule
	ExitRules         []Rule
	StopHandlers      []HandlerSpec
	TakeHandlers      []HandlerSpec
}

// TimeframeRequirements returns the union of every timeframe referenced
// anywhere in the definition (indicator bindings, condition bindings and
// their operand overrides, handlers).
func (d *StrategyDefinition) TimeframeRequirements() []quote.TimeFrame {
	seen := map[string]quote.TimeFrame{}
	add := func(tf quote.TimeFrame) { seen[tf.String()] = tf }

	for _, b := range d.IndicatorBindings {
		add(b.Timeframe)
	}
	for _, c := range d.ConditionBindings {
		add(c.Timeframe)
		for _, src := range []DataSeriesSource{c.A, c.B, c.Lower, c.Upper} {
			if src.Timeframe != nil {
				add(*src.Timeframe)
			}
		}
	}
	for _, h := range d.StopHandlers {
		add(h.Timeframe)
	}
	for _, h := range d.TakeHandlers {
		add(h.Timeframe)
	}

	out := make([]quote.TimeFrame, 0, len(seen))
	for _, tf := range seen {
		out = append(out, tf)
	}
	return out
}
