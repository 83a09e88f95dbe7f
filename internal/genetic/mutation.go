package genetic

import (
	"math/rand"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// mutationOp is one of the three kinds of mutation applied to a group:
// remove a random element, replace it, or add a new one.
type mutationOp int

const (
	opRemove mutationOp = iota
	opReplace
	opAdd
)

func randomOp(rng *rand.Rand) mutationOp { return mutationOp(rng.Intn(3)) }

// Mutate applies per-group independent mutation to a clone of cand: {entry
// conditions, exit conditions, stop handlers, take
// handlers} each mutate with probability cfg.MutationRate. A group mutation
// that leaves the definition structurally invalid (discovery.ValidateDefinition
// or strategydef.Prepare fails) is retried a bounded number of times, then
// skipped for that group, and the original candidate's shape is kept for
// it.
//
// scratch supplies fresh random material for "replace"/"add": a handful of
// freshly built candidates are drawn from builder and a matching condition
// or handler is borrowed from one of them via the same alias-rename merge
// crossover uses, so mutated material always comes from a structurally
// valid, independently built source rather than being synthesized ad hoc.
func Mutate(rng *rand.Rand, cand *discovery.Candidate, builder *discovery.Builder, dcfg discovery.Config, cfg Config) *discovery.Candidate {
	working := cand.Clone()
	def := working.Definition

	const maxRetriesPerGroup = 3

	mutateGroupIfDue(rng, cfg.MutationRate, func() bool {
		return tryMutateConditions(rng, def, builder, "entry", maxRetriesPerGroup, dcfg)
	})
	mutateGroupIfDue(rng, cfg.MutationRate, func() bool {
		return tryMutateConditions(rng, def, builder, "exit", maxRetriesPerGroup, dcfg)
	})
	mutateGroupIfDue(rng, cfg.MutationRate, func() bool {
		return tryMutateHandlers(rng, def, builder, true, maxRetriesPerGroup, dcfg)
	})
	mutateGroupIfDue(rng, cfg.MutationRate, func() bool {
		return tryMutateHandlers(rng, def, builder, false, maxRetriesPerGroup, dcfg)
	})

	discovery.PruneOrphanAliases(def)
	if err := discovery.ValidateDefinition(def, dcfg); err != nil {
		return cand.Clone()
	}
	if _, err := strategydef.Prepare(def); err != nil {
		return cand.Clone()
	}
	working.Signature = discovery.StructuralSignature(def)
	return working
}

func mutateGroupIfDue(rng *rand.Rand, rate float64, fn func() bool) {
	if rng.Float64() < rate {
		fn()
	}
}

// tryMutateConditions applies one random op to def's tag-matching
// conditions, snapshotting and restoring def on validation failure so a
// rejected op never leaves partial state, then retries up to maxRetries
// times before giving up on this group for this call.
func tryMutateConditions(rng *rand.Rand, def *strategydef.StrategyDefinition, builder *discovery.Builder, tag string, maxRetries int, dcfg discovery.Config) bool {
	for attempt := 0; attempt < maxRetries; attempt++ {
		snapshot := snapshotDef(def)
		op := randomOp(rng)
		idxs := conditionIndexesByTag(def, tag)

		switch op {
		case opRemove:
			if len(idxs) == 0 {
				restoreDef(def, snapshot)
				continue
			}
			removeConditionAt(def, idxs[rng.Intn(len(idxs))])
		case opReplace:
			if len(idxs) > 0 {
				removeConditionAt(def, idxs[rng.Intn(len(idxs))])
			}
			if !addRandomCondition(rng, def, builder, tag) {
				restoreDef(def, snapshot)
				continue
			}
		case opAdd:
			if !addRandomCondition(rng, def, builder, tag) {
				restoreDef(def, snapshot)
				continue
			}
		}

		if err := discovery.ValidateDefinition(def, dcfg); err != nil {
			restoreDef(def, snapshot)
			continue
		}
		return true
	}
	return false
}

// addRandomCondition borrows one randomly built scratch candidate's
// tag-matching condition (falling back to any of its conditions if none
// match the tag) and merges it into def via the same alias-rename closure
// crossover uses.
func addRandomCondition(rng *rand.Rand, def *strategydef.StrategyDefinition, builder *discovery.Builder, tag string) bool {
	scratch, err := builder.Build(rng)
	if err != nil {
		return false
	}
	pool := conditionIndexesByTag(scratch.Definition, tag)
	var cond strategydef.ConditionBindingSpec
	if len(pool) > 0 {
		cond = scratch.Definition.ConditionBindings[pool[rng.Intn(len(pool))]]
	} else if len(scratch.Definition.ConditionBindings) > 0 {
		cond = scratch.Definition.ConditionBindings[rng.Intn(len(scratch.Definition.ConditionBindings))]
		cond.Tags = []string{tag}
	} else {
		return false
	}

	renames := map[string]string{}
	seq := len(def.IndicatorBindings)
	cond.ID = idPrefixed("m_cond", len(def.ConditionBindings)+1)
	cond.A = renameOperand(def, scratch.Definition, cond.A, renames, &seq)
	cond.B = renameOperand(def, scratch.Definition, cond.B, renames, &seq)
	cond.Lower = renameOperand(def, scratch.Definition, cond.Lower, renames, &seq)
	cond.Upper = renameOperand(def, scratch.Definition, cond.Upper, renames, &seq)
	def.ConditionBindings = append(def.ConditionBindings, cond)

	prefix := "entry_rule"
	logic := strategydef.LogicAll
	rules := &def.EntryRules
	if tag == "exit" {
		prefix, logic, rules = "exit_rule", strategydef.LogicAny, &def.ExitRules
	}
	appendRuleCondition(rules, prefix, logic, cond.ID)
	return true
}

// tryMutateHandlers applies one random op to def's stop or take handler
// list, following the same snapshot/validate/retry discipline as
// tryMutateConditions.
func tryMutateHandlers(rng *rand.Rand, def *strategydef.StrategyDefinition, builder *discovery.Builder, stop bool, maxRetries int, dcfg discovery.Config) bool {
	for attempt := 0; attempt < maxRetries; attempt++ {
		snapshot := snapshotDef(def)
		op := randomOp(rng)
		list := def.StopHandlers
		if !stop {
			list = def.TakeHandlers
		}

		switch op {
		case opRemove:
			if len(list) == 0 {
				restoreDef(def, snapshot)
				continue
			}
			removeHandlerAt(def, stop, rng.Intn(len(list)))
		case opReplace:
			if len(list) > 0 {
				removeHandlerAt(def, stop, rng.Intn(len(list)))
			}
			if !addRandomHandler(rng, def, builder, stop) {
				restoreDef(def, snapshot)
				continue
			}
		case opAdd:
			if !addRandomHandler(rng, def, builder, stop) {
				restoreDef(def, snapshot)
				continue
			}
		}

		if err := discovery.ValidateDefinition(def, dcfg); err != nil {
			restoreDef(def, snapshot)
			continue
		}
		return true
	}
	return false
}

func removeHandlerAt(def *strategydef.StrategyDefinition, stop bool, idx int) {
	if stop {
		def.StopHandlers = append(def.StopHandlers[:idx], def.StopHandlers[idx+1:]...)
		return
	}
	def.TakeHandlers = append(def.TakeHandlers[:idx], def.TakeHandlers[idx+1:]...)
}

func addRandomHandler(rng *rand.Rand, def *strategydef.StrategyDefinition, builder *discovery.Builder, stop bool) bool {
	scratch, err := builder.Build(rng)
	if err != nil {
		return false
	}
	pool := scratch.Definition.StopHandlers
	if !stop {
		pool = scratch.Definition.TakeHandlers
	}
	if len(pool) == 0 {
		return false
	}
	h := pool[rng.Intn(len(pool))]

	renames := map[string]string{}
	seq := len(def.IndicatorBindings)
	if h.IndicatorAlias != "" {
		h.IndicatorAlias = resolveAliasInto(def, scratch.Definition, h.IndicatorAlias, renames, &seq)
	}
	if h.Parameters != nil {
		params := make(map[string]float64, len(h.Parameters))
		for k, v := range h.Parameters {
			params[k] = v
		}
		h.Parameters = params
	}

	if stop {
		h.ID = idPrefixed("m_stop_handler", len(def.StopHandlers)+1)
		def.StopHandlers = append(def.StopHandlers, h)
	} else {
		h.ID = idPrefixed("m_take_handler", len(def.TakeHandlers)+1)
		def.TakeHandlers = append(def.TakeHandlers, h)
	}
	return true
}

// defSnapshot is a shallow-but-sufficient copy of the slices Mutate's ops
// touch, letting a rejected op be undone without re-running the whole
// mutation from the clone.
type defSnapshot struct {
	indicatorBindings []strategydef.IndicatorBindingSpec
	conditionBindings []strategydef.ConditionBindingSpec
	entryRules        []strategydef.Rule
	exitRules         []strategydef.Rule
	stopHandlers      []strategydef.HandlerSpec
	takeHandlers      []strategydef.HandlerSpec
}

func snapshotDef(def *strategydef.StrategyDefinition) defSnapshot {
	return defSnapshot{
		indicatorBindings: append([]strategydef.IndicatorBindingSpec(nil), def.IndicatorBindings...),
		conditionBindings: append([]strategydef.ConditionBindingSpec(nil), def.ConditionBindings...),
		entryRules:        append([]strategydef.Rule(nil), def.EntryRules...),
		exitRules:         append([]strategydef.Rule(nil), def.ExitRules...),
		stopHandlers:      append([]strategydef.HandlerSpec(nil), def.StopHandlers...),
		takeHandlers:      append([]strategydef.HandlerSpec(nil), def.TakeHandlers...),
	}
}

func restoreDef(def *strategydef.StrategyDefinition, s defSnapshot) {
	def.IndicatorBindings = s.indicatorBindings
	def.ConditionBindings = s.conditionBindings
	def.EntryRules = s.entryRules
	def.ExitRules = s.exitRules
	def.StopHandlers = s.stopHandlers
	def.TakeHandlers = s.takeHandlers
}
