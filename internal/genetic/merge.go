package genetic

import (
	"fmt"

	"github.com/atlas-desktop/strategyforge/pkg/indicator"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

func isPriceFieldName(name string) bool {
	switch name {
	case indicator.FieldOpen, indicator.FieldHigh, indicator.FieldLow, indicator.FieldClose, indicator.FieldVolume:
		return true
	}
	return false
}

// conditionContentKey canonicalizes a condition's structural content
// (everything but its ID, which is per-definition-local and must not be
// used to tell two parents' conditions apart) for union/dedup purposes when
// merging condition pools from two independently built definitions.
func conditionContentKey(c strategydef.ConditionBindingSpec) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", c.Kind, operandContentKey(c.A), operandContentKey(c.B), operandContentKey(c.Lower), operandContentKey(c.Upper))
}

// operandContentKey ignores the owning definition's alias namespace (two
// aliases named "ind_1" in different parents are unrelated) and instead
// describes what KIND of thing the operand is, so identical-shaped
// conditions from both parents are recognized as duplicates regardless of
// naming. This deliberately collapses "compare to indicator X" from either
// parent into one key per operand slot; conditionContentKey's Kind field is
// what actually distinguishes different comparisons on the same slot shape.
func operandContentKey(s strategydef.DataSeriesSource) string {
	tf := ""
	if s.Timeframe != nil {
		tf = s.Timeframe.String()
	}
	return string(s.Kind) + ":" + s.Field + ":" + tf
}

// resolveAliasInto ensures owner's alias (and, transitively, everything it
// is nested on) exists in target under a fresh "ind_N" name, appending the
// renamed IndicatorBindingSpec(s) to target.IndicatorBindings on first use
// and memoizing the rename in renames so repeated references to the same
// alias resolve consistently. Aliases naming a price field pass through
// unchanged. This is the single primitive both crossover's child assembly
// and mutation's borrow-from-scratch use to avoid the alias-namespace
// collision that merging two independently built definitions would
// otherwise hit (each definition sequences its own "ind_1", "ind_2", ...).
func resolveAliasInto(target, owner *strategydef.StrategyDefinition, alias string, renames map[string]string, seq *int) string {
	if alias == "" || isPriceFieldName(alias) {
		return alias
	}
	if v, ok := renames[alias]; ok {
		return v
	}

	var binding strategydef.IndicatorBindingSpec
	found := false
	for _, b := range owner.IndicatorBindings {
		if b.Alias == alias {
			binding, found = b, true
			break
		}
	}
	if !found {
		// Unknown alias (e.g. a custom-series key, not an indicator binding);
		// leave it as-is rather than fabricate a binding for it.
		return alias
	}

	*seq++
	newAlias := fmt.Sprintf("ind_%d", *seq)
	renames[alias] = newAlias

	newInput := binding.Input
	if binding.Input != "" && !isPriceFieldName(binding.Input) {
		newInput = resolveAliasInto(target, owner, binding.Input, renames, seq)
	}

	nb := binding
	nb.Alias = newAlias
	nb.Input = newInput
	if nb.Params != nil {
		params := make(map[string]float64, len(nb.Params))
		for k, v := range nb.Params {
			params[k] = v
		}
		nb.Params = params
	}
	target.IndicatorBindings = append(target.IndicatorBindings, nb)
	return newAlias
}

// renameOperand rewrites s.Alias through resolveAliasInto when s names an
// indicator series; price/custom operands pass through unchanged.
func renameOperand(target, owner *strategydef.StrategyDefinition, s strategydef.DataSeriesSource, renames map[string]string, seq *int) strategydef.DataSeriesSource {
	if s.Kind == strategydef.SeriesIndicator && s.Alias != "" {
		s.Alias = resolveAliasInto(target, owner, s.Alias, renames, seq)
	}
	return s
}

// appendRuleCondition ensures rules has at least one rule using logic,
// creating it on first use, and appends conditionID to that rule.
func appendRuleCondition(rules *[]strategydef.Rule, ruleIDPrefix string, logic strategydef.RuleLogic, conditionID string) {
	if len(*rules) == 0 {
		*rules = []strategydef.Rule{{
			ID:        ruleIDPrefix + "_1",
			Logic:     logic,
			Signal:    true,
			Direction: strategydef.Long,
		}}
	}
	(*rules)[0].Conditions = append((*rules)[0].Conditions, conditionID)
}

// removeConditionAt deletes def.ConditionBindings[idx] and strips its ID
// from every rule's condition list, dropping any rule left with zero
// conditions.
func removeConditionAt(def *strategydef.StrategyDefinition, idx int) {
	removed := def.ConditionBindings[idx].ID
	def.ConditionBindings = append(def.ConditionBindings[:idx], def.ConditionBindings[idx+1:]...)
	def.EntryRules = stripCondition(def.EntryRules, removed)
	def.ExitRules = stripCondition(def.ExitRules, removed)
}

func stripCondition(rules []strategydef.Rule, conditionID string) []strategydef.Rule {
	out := make([]strategydef.Rule, 0, len(rules))
	for _, r := range rules {
		conds := make([]string, 0, len(r.Conditions))
		for _, id := range r.Conditions {
			if id != conditionID {
				conds = append(conds, id)
			}
		}
		if len(conds) == 0 {
			continue
		}
		r.Conditions = conds
		out = append(out, r)
	}
	return out
}

func conditionIndexesByTag(def *strategydef.StrategyDefinition, tag string) []int {
	var idxs []int
	for i, c := range def.ConditionBindings {
		if hasTag(c.Tags, tag) {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
