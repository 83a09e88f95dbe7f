package strategydef

import (
	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/indicator"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// PreparedCondition is a condition binding lowered to its runtime
// condition.Condition plus the resolved operand sources Evaluate needs.
type PreparedCondition struct {
	ID        string
	Condition condition.Condition
	Shape     condition.InputShape
	Timeframe quote.TimeFrame
	A, B, Lower, Upper DataSeriesSource
	Percent   float64
	Weight    float64
}

// PreparedStrategy is the runtime form of a StrategyDefinition: indicator
// bindings already lowered to indicator.Binding, conditions instantiated to
// polymorphic condition objects, and rules/handlers carried as-is.
type PreparedStrategy struct {
	Metadata           Metadata
	IndicatorBindings  []indicator.Binding
	Conditions         []PreparedCondition
	EntryRules         []Rule
	ExitRules          []Rule
	StopHandlers       []HandlerSpec
	TakeHandlers       []HandlerSpec
	TimeframeRequirements []quote.TimeFrame
}

// Prepare validates def and lowers it to a PreparedStrategy. It never
// mutates def.
func Prepare(def *StrategyDefinition) (*PreparedStrategy, error) {
	aliasSeen := map[string]bool{}
	bindings := make([]indicator.Binding, 0, len(def.IndicatorBindings))
	for _, b := range def.IndicatorBindings {
		if b.Alias == "" {
			return nil, newStrategyError("Prepare", "indicator binding missing alias")
		}
		if aliasSeen[b.Alias] {
			return nil, newStrategyError("Prepare", "duplicate indicator alias %q", b.Alias)
		}
		aliasSeen[b.Alias] = true

		binding := indicator.Binding{
			Alias:        b.Alias,
			Indicator:    b.Indicator,
			Params:       b.Params,
			Input:        b.Input,
			Formula:      b.Formula,
			TimeframeKey: b.Timeframe.String(),
		}
		if b.Source == SourceRegistry {
			if _, ok := indicator.Lookup(b.Indicator); !ok {
				return nil, newStrategyError("Prepare", "unknown indicator %q bound to alias %q", b.Indicator, b.Alias)
			}
		} else if b.Source == SourceFormula && b.Formula == "" {
			return nil, newStrategyError("Prepare", "formula binding %q has no expression", b.Alias)
		}
		bindings = append(bindings, binding)
	}

	condByID := make(map[string]ConditionBindingSpec, len(def.ConditionBindings))
	prepared := make([]PreparedCondition, 0, len(def.ConditionBindings))
	for _, c := range def.ConditionBindings {
		if c.ID == "" {
			return nil, newStrategyError("Prepare", "condition binding missing id")
		}
		if _, dup := condByID[c.ID]; dup {
			return nil, newStrategyError("Prepare", "duplicate condition id %q", c.ID)
		}
		condByID[c.ID] = c

		shape, ok := condition.ExpectedShape(c.Kind)
		if !ok {
			return nil, newStrategyError("Prepare", "condition %q has unknown kind %q", c.ID, c.Kind)
		}
		if err := validateOperands(c, shape); err != nil {
			return nil, wrapStrategyError("Prepare", err, "condition %q operand validation failed", c.ID)
		}

		prepared = append(prepared, PreparedCondition{
			ID:        c.ID,
			Condition: condition.Condition{Kind: c.Kind, K: c.K},
			Shape:     shape,
			Timeframe: c.Timeframe,
			A:         c.A,
			B:         c.B,
			Lower:     c.Lower,
			Upper:     c.Upper,
			Percent:   c.Percent,
			Weight:    c.Weight,
		})
	}

	if err := validateRules(def.EntryRules, condByID); err != nil {
		return nil, err
	}
	if err := validateRules(def.ExitRules, condByID); err != nil {
		return nil, err
	}
	if err := validateHandlers(def.StopHandlers, aliasSeen); err != nil {
		return nil, err
	}
	if err := validateHandlers(def.TakeHandlers, aliasSeen); err != nil {
		return nil, err
	}

	return &PreparedStrategy{
		Metadata:              def.Metadata,
		IndicatorBindings:     bindings,
		Conditions:            prepared,
		EntryRules:            def.EntryRules,
		ExitRules:             def.ExitRules,
		StopHandlers:          def.StopHandlers,
		TakeHandlers:          def.TakeHandlers,
		TimeframeRequirements: def.TimeframeRequirements(),
	}, nil
}

func validateOperands(c ConditionBindingSpec, shape condition.InputShape) error {
	empty := DataSeriesSource{}
	switch shape {
	case condition.ShapeSingle:
		if c.A == empty {
			return newStrategyError("validateOperands", "missing operand A")
		}
	case condition.ShapeDual, condition.ShapeDualWithPercent:
		if c.A == empty || c.B == empty {
			return newStrategyError("validateOperands", "missing operand A or B")
		}
	case condition.ShapeRange:
		if c.A == empty || c.Lower == empty || c.Upper == empty {
			return newStrategyError("validateOperands", "missing operand A, Lower, or Upper")
		}
	}
	return nil
}

func validateRules(rules []Rule, condByID map[string]ConditionBindingSpec) error {
	for _, r := range rules {
		switch r.Logic {
		case LogicAll, LogicAny, LogicAtLeast, LogicWeighted, LogicExpression:
		default:
			return newStrategyError("validateRules", "rule %q has unsupported logic %q", r.ID, r.Logic)
		}
		for _, condID := range r.Conditions {
			if _, ok := condByID[condID]; !ok {
				return newStrategyError("validateRules", "rule %q references unknown condition %q", r.ID, condID)
			}
		}
		if r.Logic == LogicAtLeast && r.N <= 0 {
			return newStrategyError("validateRules", "rule %q: AtLeast logic requires n > 0", r.ID)
		}
		if r.Direction == Both {
			return newStrategyError("validateRules", "rule %q: Both is not a valid actual position direction", r.ID)
		}
	}
	return nil
}

func validateHandlers(handlers []HandlerSpec, knownAliases map[string]bool) error {
	for _, h := range handlers {
		if h.HandlerName == "" {
			return newStrategyError("validateHandlers", "handler %q missing handler name", h.ID)
		}
		if h.IndicatorAlias != "" && !knownAliases[h.IndicatorAlias] {
			return newStrategyError("validateHandlers", "handler %q references unknown indicator alias %q", h.ID, h.IndicatorAlias)
		}
		if h.Direction == Both {
			return newStrategyError("validateHandlers", "handler %q: Both is not a valid actual position direction", h.ID)
		}
	}
	return nil
}
