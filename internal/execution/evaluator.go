// Package execution evaluates a prepared strategy's conditions and rules
// against a StrategyContext, turning per-bar state into a StrategyDecision
// of entry/exit signals.
package execution

import (
	"github.com/atlas-desktop/strategyforge/internal/position"
	"github.com/atlas-desktop/strategyforge/internal/stratctx"
	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// Evaluator runs one PreparedStrategy's conditions and rules. It is built
// once per backtest and reused for every bar.
type Evaluator struct {
	prepared  *strategydef.PreparedStrategy
	condByID  map[string]strategydef.PreparedCondition
	exprCache map[string]*boolExpr
}

// NewEvaluator indexes prepared's conditions by ID for repeated per-bar
// lookups.
func NewEvaluator(prepared *strategydef.PreparedStrategy) *Evaluator {
	condByID := make(map[string]strategydef.PreparedCondition, len(prepared.Conditions))
	for _, c := range prepared.Conditions {
		condByID[c.ID] = c
	}
	return &Evaluator{prepared: prepared, condByID: condByID, exprCache: map[string]*boolExpr{}}
}

// PrecomputeConditions evaluates every condition over its full series, once,
// and stores the result into the owning timeframe's ConditionResults.
func (e *Evaluator) PrecomputeConditions(ctx *stratctx.StrategyContext) error {
	for _, c := range e.prepared.Conditions {
		input, err := buildInput(ctx, c)
		if err != nil {
			return newError("PrecomputeConditions", "condition %q: %v", c.ID, err)
		}
		result, err := condition.Evaluate(c.Condition, input)
		if err != nil {
			return newError("PrecomputeConditions", "condition %q: %v", c.ID, err)
		}
		td, err := ctx.Timeframe(c.Timeframe)
		if err != nil {
			return err
		}
		td.ConditionResults[c.ID] = result
	}
	return nil
}

func buildInput(ctx *stratctx.StrategyContext, c strategydef.PreparedCondition) (condition.Input, error) {
	switch c.Shape {
	case condition.ShapeSingle:
		a, err := ctx.Resolve(c.A, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		return condition.Input{Shape: condition.ShapeSingle, A: a}, nil
	case condition.ShapeDual:
		a, err := ctx.Resolve(c.A, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		b, err := ctx.Resolve(c.B, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		return condition.Input{Shape: condition.ShapeDual, A: a, B: b}, nil
	case condition.ShapeDualWithPercent:
		a, err := ctx.Resolve(c.A, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		b, err := ctx.Resolve(c.B, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		return condition.Input{Shape: condition.ShapeDualWithPercent, A: a, B: b, Percent: c.Percent}, nil
	case condition.ShapeRange:
		a, err := ctx.Resolve(c.A, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		lower, err := ctx.Resolve(c.Lower, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		upper, err := ctx.Resolve(c.Upper, c.Timeframe)
		if err != nil {
			return condition.Input{}, err
		}
		return condition.Input{Shape: condition.ShapeRange, A: a, L: lower, U: upper}, nil
	default:
		return condition.Input{}, newError("buildInput", "unsupported input shape %q", c.Shape)
	}
}

// conditionSignal reads the already-precomputed signal for id at its own
// timeframe's current bar index. A condition not yet past warmup (index
// out of range) reads as false rather than erroring, since the bar loop
// skips decisions during warmup anyway.
func (e *Evaluator) conditionSignal(ctx *stratctx.StrategyContext, id string) (bool, error) {
	c, ok := e.condByID[id]
	if !ok {
		return false, newError("conditionSignal", "unknown condition id %q", id)
	}
	td, err := ctx.Timeframe(c.Timeframe)
	if err != nil {
		return false, err
	}
	result, ok := td.ConditionResults[id]
	if !ok {
		return false, newError("conditionSignal", "condition %q was never precomputed", id)
	}
	if td.Index < 0 || td.Index >= len(result.Signal) {
		return false, nil
	}
	return result.Signal[td.Index], nil
}

// Evaluate runs every entry and exit rule for the current bar and returns
// the resulting Decision.
func (e *Evaluator) Evaluate(ctx *stratctx.StrategyContext, primaryTF quote.TimeFrame, symbol string) (position.Decision, error) {
	decision := position.Decision{}

	for _, rule := range e.prepared.EntryRules {
		fired, err := e.evalRule(ctx, rule)
		if err != nil {
			return decision, err
		}
		if fired == rule.Signal {
			decision.Entries = append(decision.Entries, signalFromRule(rule, symbol, primaryTF, true))
		}
	}
	for _, rule := range e.prepared.ExitRules {
		fired, err := e.evalRule(ctx, rule)
		if err != nil {
			return decision, err
		}
		if fired == rule.Signal {
			decision.Exits = append(decision.Exits, signalFromRule(rule, symbol, primaryTF, false))
		}
	}
	return decision, nil
}

func signalFromRule(rule strategydef.Rule, symbol string, tf quote.TimeFrame, isEntry bool) position.Signal {
	key := position.Key{Symbol: symbol, Timeframe: tf, Direction: rule.Direction, PositionGroup: rule.PositionGroup}
	if isEntry {
		key.EntryRuleID = rule.ID
	}
	return position.Signal{
		RuleID:         rule.ID,
		Key:            key,
		Direction:      rule.Direction,
		Quantity:       rule.Quantity,
		TargetEntryIDs: rule.TargetEntryIDs,
	}
}

func (e *Evaluator) evalRule(ctx *stratctx.StrategyContext, rule strategydef.Rule) (bool, error) {
	switch rule.Logic {
	case strategydef.LogicAll:
		for _, id := range rule.Conditions {
			ok, err := e.conditionSignal(ctx, id)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case strategydef.LogicAny:
		for _, id := range rule.Conditions {
			ok, err := e.conditionSignal(ctx, id)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case strategydef.LogicAtLeast:
		count := 0
		for _, id := range rule.Conditions {
			ok, err := e.conditionSignal(ctx, id)
			if err != nil {
				return false, err
			}
			if ok {
				count++
			}
		}
		return count >= rule.N, nil
	case strategydef.LogicWeighted:
		var total float64
		for _, id := range rule.Conditions {
			ok, err := e.conditionSignal(ctx, id)
			if err != nil {
				return false, err
			}
			if ok {
				total += e.condByID[id].Weight
			}
		}
		return total >= rule.MinTotal, nil
	case strategydef.LogicExpression:
		expr, ok := e.exprCache[rule.ID]
		if !ok {
			parsed, err := parseBoolExpr(rule.Expression)
			if err != nil {
				return false, err
			}
			expr, e.exprCache[rule.ID] = parsed, parsed
		}
		return expr.Evaluate(func(id string) (bool, error) { return e.conditionSignal(ctx, id) })
	default:
		return false, newError("evalRule", "unsupported rule logic %q", rule.Logic)
	}
}
