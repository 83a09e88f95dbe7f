package discovery

import (
	"sort"

	"github.com/atlas-desktop/strategyforge/pkg/indicator"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// oscillatorConstantRange returns the allowed [lower, upper] bound for a
// constant compared against the named oscillator: RSI lives in [70,90]
// (upper) or [10,30] (lower); Stochastic in [80,95]/[5,20].
func oscillatorConstantRange(indicatorName string, upper bool) (lo, hi float64) {
	switch indicatorName {
	case "rsi":
		if upper {
			return 70, 90
		}
		return 10, 30
	case "stochastic":
		if upper {
			return 80, 95
		}
		return 5, 20
	default:
		if upper {
			return 70, 90
		}
		return 10, 30
	}
}

// volatilityPercentRange is the default "percent of price" range for
// volatility-family indicator constants: [0.2, 10.0] step 0.1.
func volatilityPercentRange() (lo, hi, step float64) { return 0.2, 10.0, 0.1 }

func isOscillator(name string) bool {
	spec, ok := indicator.Lookup(name)
	return ok && spec.Family == indicator.FamilyOscillator
}

func isVolatility(name string) bool {
	spec, ok := indicator.Lookup(name)
	return ok && spec.Family == indicator.FamilyVolatility
}

// operandPairKey canonicalizes a condition's comparison pair so two
// conditions on the same two operands (regardless of declaration order) are
// recognized as the same pair.
func operandPairKey(a, b strategydef.DataSeriesSource) string {
	ka := operandKey(a)
	kb := operandKey(b)
	if ka > kb {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

func operandKey(s strategydef.DataSeriesSource) string {
	tf := ""
	if s.Timeframe != nil {
		tf = s.Timeframe.String()
	}
	return string(s.Kind) + ":" + s.Alias + ":" + s.Field + ":" + tf
}

// conflictingDirections reports whether two condition kinds on the same
// operand pair contradict each other (both can't hold at once).
func conflictingDirections(a, b condKind) bool {
	pairs := map[[2]condKind]bool{
		{condAbove, condBelow}: true,
		{condBelow, condAbove}: true,
	}
	return pairs[[2]condKind{a, b}]
}

type condKind = string

const (
	condAbove = "above"
	condBelow = "below"
)

// validateStructure re-checks every structural rule against a full
// definition, after any build step that may have introduced a new
// condition, indicator, or nested relation.
func validateStructure(def *strategydef.StrategyDefinition, indicatorFamily map[string]indicator.Family, inputOf map[string]string, cfg Config) error {
	if err := validateNoConflictingComparisons(def); err != nil {
		return err
	}
	if err := validateOscillatorCompatibility(def, indicatorFamily, inputOf); err != nil {
		return err
	}
	if err := validateNestedIndicatorDepth(inputOf, cfg.MaxIndicatorDepth); err != nil {
		return err
	}
	return nil
}

func validateNoConflictingComparisons(def *strategydef.StrategyDefinition) error {
	seen := map[string]condKind{}
	for _, c := range def.ConditionBindings {
		var kind condKind
		switch c.Kind {
		case "above":
			kind = condAbove
		case "below":
			kind = condBelow
		default:
			continue
		}
		key := operandPairKey(c.A, c.B)
		if prior, ok := seen[key]; ok {
			if prior == kind {
				return newError("validateStructure", "duplicate comparison condition on operand pair %q", key)
			}
			if conflictingDirections(prior, kind) {
				return newError("validateStructure", "conflicting comparison directions on operand pair %q", key)
			}
		}
		seen[key] = kind
	}
	return nil
}

// validateOscillatorCompatibility enforces: oscillator-vs-oscillator
// comparisons are forbidden; an oscillator can't be compared against a
// non-oscillator indicator unless that indicator is nested on the same
// oscillator. Only operands whose own indicator is oscillator-typed are
// checked: a condition whose operands are a nested indicator built on an
// oscillator and a price series, a constant or an unrelated indicator is
// not rejected.
func validateOscillatorCompatibility(def *strategydef.StrategyDefinition, family map[string]indicator.Family, inputOf map[string]string) error {
	oscillatorAncestor := func(alias string) (string, bool) {
		seen := map[string]bool{}
		for alias != "" && !seen[alias] {
			seen[alias] = true
			if family[alias] == indicator.FamilyOscillator {
				return alias, true
			}
			alias = inputOf[alias]
		}
		return "", false
	}

	for _, c := range def.ConditionBindings {
		aOsc, aIsOsc := isOscillatorOperand(c.A, family)
		bOsc, bIsOsc := isOscillatorOperand(c.B, family)
		if !aIsOsc && !bIsOsc {
			continue
		}
		if aIsOsc && bIsOsc {
			return newError("validateStructure", "condition %q compares two oscillator operands", c.ID)
		}
		// Exactly one side is oscillator-typed. The other side may be a
		// constant (a SeriesCustom "const:<value>" alias) or a price series;
		// another indicator is allowed only if it shares the same oscillator
		// ancestor (indicator-of-oscillator comparison).
		var oscSide, otherSide strategydef.DataSeriesSource
		if aIsOsc {
			oscSide, otherSide = c.A, c.B
		} else {
			oscSide, otherSide = c.B, c.A
		}
		_ = aOsc
		_ = bOsc
		if otherSide.Kind == strategydef.SeriesIndicator {
			ancestor, ok := oscillatorAncestor(otherSide.Alias)
			oscAncestor, _ := oscillatorAncestor(oscSide.Alias)
			if !ok || ancestor != oscAncestor {
				return newError("validateStructure", "condition %q compares an oscillator against an incompatible indicator", c.ID)
			}
		}
	}
	return nil
}

func isOscillatorOperand(s strategydef.DataSeriesSource, family map[string]indicator.Family) (string, bool) {
	if s.Kind != strategydef.SeriesIndicator {
		return "", false
	}
	return s.Alias, family[s.Alias] == indicator.FamilyOscillator
}

// validateNestedIndicatorDepth walks each alias's input-chain length and
// rejects any chain exceeding maxDepth.
func validateNestedIndicatorDepth(inputOf map[string]string, maxDepth int) error {
	for alias := range inputOf {
		depth := 0
		cur := alias
		seen := map[string]bool{}
		for {
			parent, ok := inputOf[cur]
			if !ok || parent == "" || seen[cur] {
				break
			}
			seen[cur] = true
			depth++
			if depth > maxDepth {
				return newError("validateStructure", "nested indicator chain for %q exceeds max depth %d", alias, maxDepth)
			}
			cur = parent
		}
	}
	return nil
}

// pruneOrphanAliases removes indicator bindings whose alias is neither
// referenced by any retained condition nor an ancestor (via Input chains)
// of one that is.
func pruneOrphanAliases(def *strategydef.StrategyDefinition) {
	referenced := map[string]bool{}
	for _, c := range def.ConditionBindings {
		for _, src := range []strategydef.DataSeriesSource{c.A, c.B, c.Lower, c.Upper} {
			if src.Kind == strategydef.SeriesIndicator && src.Alias != "" {
				referenced[src.Alias] = true
			}
		}
	}
	for _, h := range def.StopHandlers {
		if h.IndicatorAlias != "" {
			referenced[h.IndicatorAlias] = true
		}
	}
	for _, h := range def.TakeHandlers {
		if h.IndicatorAlias != "" {
			referenced[h.IndicatorAlias] = true
		}
	}

	byAlias := map[string]strategydef.IndicatorBindingSpec{}
	for _, b := range def.IndicatorBindings {
		byAlias[b.Alias] = b
	}

	keep := map[string]bool{}
	var mark func(alias string)
	mark = func(alias string) {
		if keep[alias] {
			return
		}
		b, ok := byAlias[alias]
		if !ok {
			return
		}
		keep[alias] = true
		if b.Source == strategydef.SourceRegistry && b.Input != "" {
			if _, isAlias := byAlias[b.Input]; isAlias {
				mark(b.Input)
			}
		}
	}
	for alias := range referenced {
		mark(alias)
	}

	kept := make([]strategydef.IndicatorBindingSpec, 0, len(def.IndicatorBindings))
	for _, b := range def.IndicatorBindings {
		if keep[b.Alias] {
			kept = append(kept, b)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Alias < kept[j].Alias })
	def.IndicatorBindings = kept
}

// familySideTables rebuilds the family/inputOf side tables validateStructure
// and pruneOrphanAliases need from a definition's indicator bindings alone,
// so callers outside this package (internal/genetic's crossover and mutation
// operators) can reuse the same structural-rule engine the builder uses
// without keeping their own buildState in sync.
func familySideTables(def *strategydef.StrategyDefinition) (map[string]indicator.Family, map[string]string) {
	family := map[string]indicator.Family{}
	inputOf := map[string]string{}
	for _, b := range def.IndicatorBindings {
		if spec, ok := indicator.Lookup(b.Indicator); ok {
			family[b.Alias] = spec.Family
		}
		if b.Input != "" && !isPriceFieldName(b.Input) {
			inputOf[b.Alias] = b.Input
		}
	}
	return family, inputOf
}

// ValidateDefinition re-checks every structural rule against def,
// rebuilding the family/inputOf side tables from def's own
// indicator bindings. Genetic operators call this after assembling a
// candidate definition from crossover or mutation, exactly as the builder
// calls validateStructure after every build step.
func ValidateDefinition(def *strategydef.StrategyDefinition, cfg Config) error {
	family, inputOf := familySideTables(def)
	return validateStructure(def, family, inputOf, cfg)
}

// PruneOrphanAliases is the exported entry point to pruneOrphanAliases, for
// callers outside this package that assemble or mutate a definition directly
// (internal/genetic) rather than through a Builder.
func PruneOrphanAliases(def *strategydef.StrategyDefinition) {
	pruneOrphanAliases(def)
}
