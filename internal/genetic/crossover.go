package genetic

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

type ownedCondition struct {
	owner *strategydef.StrategyDefinition
	cond  strategydef.ConditionBindingSpec
}

// unionConditions collects the content-deduplicated union of primary's and
// secondary's conditions tagged tag, preferring primary's copy of any
// content duplicated across both.
func unionConditions(primary, secondary *strategydef.StrategyDefinition, tag string) []ownedCondition {
	seen := map[string]bool{}
	var out []ownedCondition
	collect := func(def *strategydef.StrategyDefinition) {
		for _, c := range def.ConditionBindings {
			if !hasTag(c.Tags, tag) {
				continue
			}
			key := conditionContentKey(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ownedCondition{owner: def, cond: c})
		}
	}
	collect(primary)
	collect(secondary)
	return out
}

// pickConditions independently includes each pool member with probability
// include.
func pickConditions(rng *rand.Rand, pool []ownedCondition, include float64) []ownedCondition {
	var picked []ownedCondition
	for _, oc := range pool {
		if rng.Float64() < include {
			picked = append(picked, oc)
		}
	}
	return picked
}

// materializeConditions renames and appends each pooled condition into
// child, wiring its alias references through resolveAliasInto and
// returning the new condition IDs in child's namespace.
func materializeConditions(child *strategydef.StrategyDefinition, pool []ownedCondition, renames map[*strategydef.StrategyDefinition]map[string]string, seq *int, condSeq *int, idPrefix string) []string {
	var ids []string
	for _, oc := range pool {
		owner := oc.owner
		if renames[owner] == nil {
			renames[owner] = map[string]string{}
		}
		ownerRenames := renames[owner]

		c := oc.cond
		*condSeq++
		c.ID = idPrefixed(idPrefix, *condSeq)
		c.A = renameOperand(child, owner, c.A, ownerRenames, seq)
		c.B = renameOperand(child, owner, c.B, ownerRenames, seq)
		c.Lower = renameOperand(child, owner, c.Lower, ownerRenames, seq)
		c.Upper = renameOperand(child, owner, c.Upper, ownerRenames, seq)

		child.ConditionBindings = append(child.ConditionBindings, c)
		ids = append(ids, c.ID)
	}
	return ids
}

func idPrefixed(prefix string, n int) string {
	return fmt.Sprintf("%s_%d", prefix, n)
}

// materializeHandlers copies handlers from owner into child (renaming any
// IndicatorAlias reference), appending to child's stop or take handler list.
func materializeHandlers(child, owner *strategydef.StrategyDefinition, handlers []strategydef.HandlerSpec, renames map[*strategydef.StrategyDefinition]map[string]string, seq *int, stop bool, idPrefix string) {
	if renames[owner] == nil {
		renames[owner] = map[string]string{}
	}
	ownerRenames := renames[owner]
	for i, h := range handlers {
		nh := h
		nh.ID = idPrefixed(idPrefix, i+1)
		if nh.IndicatorAlias != "" {
			nh.IndicatorAlias = resolveAliasInto(child, owner, nh.IndicatorAlias, ownerRenames, seq)
		}
		if nh.Parameters != nil {
			params := make(map[string]float64, len(nh.Parameters))
			for k, v := range nh.Parameters {
				params[k] = v
			}
			nh.Parameters = params
		}
		if stop {
			child.StopHandlers = append(child.StopHandlers, nh)
		} else {
			child.TakeHandlers = append(child.TakeHandlers, nh)
		}
	}
}

// buildCrossChild assembles one child favoring primary's name/metadata,
// drawing entry/exit conditions from the union of primary's and
// secondary's pools with inclusion probability wPrimary, and swapping
// primary's vs. secondary's whole stop/take handler vectors with
// independent 50/50 coin flips.
func buildCrossChild(rng *rand.Rand, primary, secondary *strategydef.StrategyDefinition, wPrimary float64, cfg Config) *strategydef.StrategyDefinition {
	entryPool := unionConditions(primary, secondary, "entry")
	exitPool := unionConditions(primary, secondary, "exit")

	includedEntry := pickConditions(rng, entryPool, wPrimary)
	if len(includedEntry) < cfg.MinEntryConditions {
		includedEntry = borrowUpTo(includedEntry, entryPool, cfg.MinEntryConditions)
	}
	includedExit := pickConditions(rng, exitPool, wPrimary)

	stopSrc, stopHandlers := primary, primary.StopHandlers
	if rng.Float64() >= 0.5 {
		stopSrc, stopHandlers = secondary, secondary.StopHandlers
	}
	takeSrc, takeHandlers := primary, primary.TakeHandlers
	if rng.Float64() >= 0.5 {
		takeSrc, takeHandlers = secondary, secondary.TakeHandlers
	}

	child := &strategydef.StrategyDefinition{Metadata: strategydef.Metadata{Name: primary.Metadata.Name}}
	renames := map[*strategydef.StrategyDefinition]map[string]string{}
	aliasSeq := 0
	condSeq := 0

	entryIDs := materializeConditions(child, includedEntry, renames, &aliasSeq, &condSeq, "cond")
	exitIDs := materializeConditions(child, includedExit, renames, &aliasSeq, &condSeq, "cond")

	materializeHandlers(child, stopSrc, stopHandlers, renames, &aliasSeq, true, "stop_handler")
	materializeHandlers(child, takeSrc, takeHandlers, renames, &aliasSeq, false, "take_handler")

	if len(entryIDs) > 0 {
		child.EntryRules = []strategydef.Rule{{ID: "entry_rule_1", Logic: strategydef.LogicAll, Conditions: entryIDs, Signal: true, Direction: strategydef.Long}}
	}
	if len(exitIDs) > 0 {
		child.ExitRules = []strategydef.Rule{{ID: "exit_rule_1", Logic: strategydef.LogicAny, Conditions: exitIDs, Signal: true, Direction: strategydef.Long}}
	}
	return child
}

// borrowUpTo appends pool members not already present in included (by
// content key) until included reaches min or the pool is exhausted.
func borrowUpTo(included, pool []ownedCondition, min int) []ownedCondition {
	present := map[string]bool{}
	for _, oc := range included {
		present[conditionContentKey(oc.cond)] = true
	}
	for _, oc := range pool {
		if len(included) >= min {
			break
		}
		key := conditionContentKey(oc.cond)
		if present[key] {
			continue
		}
		present[key] = true
		included = append(included, oc)
	}
	return included
}

// CrossoverPair produces two children from p1 and p2. When both parents carry valid fitness and their
// relative gap exceeds cfg.WeightedCrossoverGapThreshold, inclusion
// probability is fitness-weighted; otherwise it is uniform 50/50. A child
// that fails structural validation or preparation after assembly falls back
// to an unchanged clone of its primary parent, mirroring the builder's own
// bounded-retry-then-fallback pattern.
func CrossoverPair(rng *rand.Rand, p1, p2 *Individual, dcfg discovery.Config, cfg Config) (*discovery.Candidate, *discovery.Candidate) {
	w1 := 0.5
	if p1.HasFitness && p2.HasFitness {
		total := p1.Fitness + p2.Fitness
		if total != 0 {
			gap := math.Abs(p1.Fitness-p2.Fitness) / math.Abs(total)
			if gap > cfg.WeightedCrossoverGapThreshold {
				w1 = p1.Fitness / total
			}
		}
	}

	def1 := p1.Candidate.Definition
	def2 := p2.Candidate.Definition

	child1 := buildCrossChild(rng, def1, def2, w1, cfg)
	child2 := buildCrossChild(rng, def2, def1, 1-w1, cfg)

	discovery.PruneOrphanAliases(child1)
	discovery.PruneOrphanAliases(child2)

	return finalizeCrossChild(child1, dcfg, p1.Candidate), finalizeCrossChild(child2, dcfg, p2.Candidate)
}

func finalizeCrossChild(def *strategydef.StrategyDefinition, dcfg discovery.Config, fallback *discovery.Candidate) *discovery.Candidate {
	if err := discovery.ValidateDefinition(def, dcfg); err != nil {
		return fallback.Clone()
	}
	if _, err := strategydef.Prepare(def); err != nil {
		return fallback.Clone()
	}
	id := uuid.New().String()
	def.Metadata.ID = id
	return &discovery.Candidate{ID: id, Definition: def, Signature: discovery.StructuralSignature(def)}
}
