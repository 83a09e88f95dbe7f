package discovery

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/atlas-desktop/strategyforge/internal/stratctx"
	"github.com/atlas-desktop/strategyforge/pkg/condition"
	"github.com/atlas-desktop/strategyforge/pkg/indicator"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// Builder constructs fresh, structurally valid candidates from a Config
// under random draws.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder over cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// buildState accumulates the definition under construction plus the side
// tables the structural rules need: each alias's indicator family, and the
// alias it is nested on (its indicator-of-indicator parent, if any).
type buildState struct {
	def     *strategydef.StrategyDefinition
	family  map[string]indicator.Family
	inputOf map[string]string

	entryConditionIDs []string
	exitConditionIDs  []string

	seq int
}

func newBuildState() *buildState {
	return &buildState{
		def:     &strategydef.StrategyDefinition{},
		family:  map[string]indicator.Family{},
		inputOf: map[string]string{},
	}
}

func (s *buildState) next(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

// Build attempts cfg.MaxBuildAttempts random draws of a full candidate; a
// draw that violates a structural rule is discarded and retried. If every
// attempt fails, Build falls back to the guaranteed-valid minimal core.
func (b *Builder) Build(rng *rand.Rand) (*Candidate, error) {
	var lastErr error
	for attempt := 0; attempt < b.cfg.MaxBuildAttempts; attempt++ {
		state, err := b.attempt(rng)
		if err != nil {
			lastErr = err
			continue
		}
		return b.finish(state), nil
	}

	state, err := b.minimalCore(rng)
	if err != nil {
		return nil, newError("Build", "exhausted %d attempts (last: %v) and minimal-core fallback also failed: %v", b.cfg.MaxBuildAttempts, lastErr, err)
	}
	return b.finish(state), nil
}

func (b *Builder) finish(state *buildState) *Candidate {
	if len(state.exitConditionIDs) > 0 {
		state.def.ExitRules = []strategydef.Rule{{
			ID:         state.next("exit_rule"),
			Logic:      strategydef.LogicAny,
			Conditions: append([]string(nil), state.exitConditionIDs...),
			Signal:     true,
			Direction:  strategydef.Long,
		}}
	}
	pruneOrphanAliases(state.def)
	id := uuid.New().String()
	state.def.Metadata.ID = id
	return &Candidate{
		ID:         id,
		Definition: state.def,
		Signature:  StructuralSignature(state.def),
	}
}

// attempt builds the minimal core, then probabilistically layers on
// additional phases, re-validating the full structure after every addition
// so a rejected phase aborts the whole attempt rather than silently
// dropping just that piece.
func (b *Builder) attempt(rng *rand.Rand) (*buildState, error) {
	state, err := b.minimalCore(rng)
	if err != nil {
		return nil, err
	}

	if len(b.cfg.AdditionalTimeframes) > 0 && rng.Float64() < b.cfg.ProbHigherTimeframeIndicator {
		if err := b.addHigherTimeframeIndicator(rng, state); err != nil {
			return nil, err
		}
	}

	if b.cfg.AllowIndicatorOnIndicator && rng.Float64() < b.cfg.ProbNestedIndicator {
		if err := b.addNestedIndicator(rng, state); err != nil {
			return nil, err
		}
	}

	for len(state.entryConditionIDs) < b.cfg.MaxEntryConditions && rng.Float64() < b.cfg.ProbExtraCondition {
		if err := b.addEntryCondition(rng, state); err != nil {
			return nil, err
		}
	}

	for len(state.exitConditionIDs) < b.cfg.MaxExitConditions && rng.Float64() < b.cfg.ProbExitCondition {
		if err := b.addExitCondition(rng, state); err != nil {
			return nil, err
		}
	}

	if rng.Float64() < b.cfg.ProbTakeHandler && len(state.def.TakeHandlers) == 0 {
		if err := b.addHandler(rng, state, false); err != nil {
			return nil, err
		}
	}

	for len(state.def.StopHandlers) < b.cfg.MaxStopHandlers && rng.Float64() < b.cfg.ProbExtraStopHandler {
		if err := b.addHandler(rng, state, true); err != nil {
			return nil, err
		}
	}

	return state, nil
}

// minimalCore builds the minimal structurally valid core: one base-TF
// indicator, one entry condition, one stop handler, with an entry rule
// over the condition.
func (b *Builder) minimalCore(rng *rand.Rand) (*buildState, error) {
	state := newBuildState()

	name := b.pickIndicator(rng)
	alias := state.next("ind")
	if err := b.addIndicatorBinding(state, alias, name, b.cfg.BaseTimeframe, ""); err != nil {
		return nil, err
	}

	if err := b.addConditionFor(rng, state, alias, b.cfg.BaseTimeframe, true); err != nil {
		return nil, err
	}

	if err := b.addHandler(rng, state, true); err != nil {
		return nil, err
	}

	state.def.EntryRules = []strategydef.Rule{{
		ID:         state.next("entry_rule"),
		Logic:      strategydef.LogicAll,
		Conditions: append([]string(nil), state.entryConditionIDs...),
		Signal:     true,
		Direction:  strategydef.Long,
	}}

	return state, nil
}

// addIndicatorBinding registers a registry indicator binding under alias,
// tracking its family and (when input names another binding) its nesting
// parent, then re-validates the structure so the addition can be rejected
// as a whole.
func (b *Builder) addIndicatorBinding(state *buildState, alias, name string, tf quote.TimeFrame, input string) error {
	spec, ok := indicator.Lookup(name)
	if !ok {
		return newError("addIndicatorBinding", "unknown indicator %q", name)
	}

	binding := strategydef.IndicatorBindingSpec{
		Alias:     alias,
		Timeframe: tf,
		Source:    strategydef.SourceRegistry,
		Indicator: name,
		Input:     input,
	}
	state.def.IndicatorBindings = append(state.def.IndicatorBindings, binding)
	state.family[alias] = spec.Family
	if input != "" && !isPriceFieldName(input) {
		state.inputOf[alias] = input
	}

	if err := validateStructure(state.def, state.family, state.inputOf, b.cfg); err != nil {
		state.def.IndicatorBindings = state.def.IndicatorBindings[:len(state.def.IndicatorBindings)-1]
		delete(state.family, alias)
		delete(state.inputOf, alias)
		return err
	}
	return nil
}

func isPriceFieldName(name string) bool {
	switch name {
	case indicator.FieldOpen, indicator.FieldHigh, indicator.FieldLow, indicator.FieldClose, indicator.FieldVolume:
		return true
	}
	return false
}

// addConditionFor builds a condition comparing alias's series against a
// constant threshold (if it is oscillator-typed, per its known constant
// range) or against a price field otherwise, and appends it as an entry or
// exit condition.
func (b *Builder) addConditionFor(rng *rand.Rand, state *buildState, alias string, tf quote.TimeFrame, asEntry bool) error {
	cond := strategydef.ConditionBindingSpec{
		ID:        state.next("cond"),
		Timeframe: tf,
	}

	if isOscillator(indicatorNameFor(state, alias)) {
		upper := rng.Float64() < 0.5
		lo, hi := oscillatorConstantRange(indicatorNameFor(state, alias), upper)
		threshold := lo + rng.Float64()*(hi-lo)
		cond.A = strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: alias, Timeframe: &tf}
		cond.B = strategydef.DataSeriesSource{Kind: strategydef.SeriesCustom, Alias: stratctx.ConstantSeriesAlias(threshold), Timeframe: &tf}
		if upper {
			cond.Kind = condition.Below
		} else {
			cond.Kind = condition.Above
		}
	} else {
		field := b.pickPriceField(rng)
		cond.A = strategydef.DataSeriesSource{Kind: strategydef.SeriesIndicator, Alias: alias, Timeframe: &tf}
		cond.B = strategydef.DataSeriesSource{Kind: strategydef.SeriesPrice, Field: field, Timeframe: &tf}
		if rng.Float64() < 0.5 {
			cond.Kind = condition.CrossesAbove
		} else {
			cond.Kind = condition.CrossesBelow
		}
	}

	if asEntry {
		cond.Tags = []string{"entry"}
	} else {
		cond.Tags = []string{"exit"}
	}

	state.def.ConditionBindings = append(state.def.ConditionBindings, cond)
	if err := validateStructure(state.def, state.family, state.inputOf, b.cfg); err != nil {
		state.def.ConditionBindings = state.def.ConditionBindings[:len(state.def.ConditionBindings)-1]
		return err
	}

	if asEntry {
		state.entryConditionIDs = append(state.entryConditionIDs, cond.ID)
	} else {
		state.exitConditionIDs = append(state.exitConditionIDs, cond.ID)
	}
	return nil
}

func indicatorNameFor(state *buildState, alias string) string {
	for _, b := range state.def.IndicatorBindings {
		if b.Alias == alias {
			return b.Indicator
		}
	}
	return ""
}

// addHigherTimeframeIndicator layers on an indicator bound to one of the
// configured additional timeframes, plus a matching condition, as long as
// the candidate has not already reached its timeframe budget.
func (b *Builder) addHigherTimeframeIndicator(rng *rand.Rand, state *buildState) error {
	if len(state.def.TimeframeRequirements()) >= b.cfg.TimeframeCount {
		return nil
	}
	tf := b.cfg.AdditionalTimeframes[rng.Intn(len(b.cfg.AdditionalTimeframes))]
	name := b.pickIndicator(rng)
	alias := state.next("ind")
	if err := b.addIndicatorBinding(state, alias, name, tf, ""); err != nil {
		return err
	}
	return b.addConditionFor(rng, state, alias, tf, true)
}

// addNestedIndicator builds an indicator-of-indicator: a new indicator
// binding whose Input names an existing indicator alias, respecting the
// configured max nesting depth.
func (b *Builder) addNestedIndicator(rng *rand.Rand, state *buildState) error {
	if len(state.def.IndicatorBindings) == 0 {
		return nil
	}
	parent := state.def.IndicatorBindings[rng.Intn(len(state.def.IndicatorBindings))]
	if parentSpec, ok := indicator.Lookup(parent.Indicator); ok && parentSpec.NeedsOHLC {
		// OHLC-native indicators don't expose a single series another
		// indicator can read as input.
		return nil
	}
	name := b.pickIndicator(rng)
	alias := state.next("ind")
	return b.addIndicatorBinding(state, alias, name, parent.Timeframe, parent.Alias)
}

// addEntryCondition draws an existing indicator alias uniformly at random
// (nested aliases included) and builds another entry condition over it.
func (b *Builder) addEntryCondition(rng *rand.Rand, state *buildState) error {
	if len(state.def.IndicatorBindings) == 0 {
		return nil
	}
	binding := state.def.IndicatorBindings[rng.Intn(len(state.def.IndicatorBindings))]
	return b.addConditionFor(rng, state, binding.Alias, binding.Timeframe, true)
}

// addExitCondition draws an existing indicator alias and builds another exit
// condition over it, mirroring addEntryCondition.
func (b *Builder) addExitCondition(rng *rand.Rand, state *buildState) error {
	if len(state.def.IndicatorBindings) == 0 {
		return nil
	}
	binding := state.def.IndicatorBindings[rng.Intn(len(state.def.IndicatorBindings))]
	return b.addConditionFor(rng, state, binding.Alias, binding.Timeframe, false)
}

// addHandler appends a stop or take handler drawn from the configured pool,
// wiring indicator-anchored handlers to an existing nested-capable alias
// when one of those handler names is drawn.
func (b *Builder) addHandler(rng *rand.Rand, state *buildState, stop bool) error {
	pool := b.cfg.TakeHandlerPool
	prefix := "take"
	if stop {
		pool = b.cfg.StopHandlerPool
		prefix = "stop"
	}
	if len(pool) == 0 {
		return nil
	}
	name := pool[rng.Intn(len(pool))]

	handler := strategydef.HandlerSpec{
		ID:          state.next(prefix + "_handler"),
		HandlerName: name,
		Timeframe:   b.cfg.BaseTimeframe,
		PriceField:  indicator.FieldClose,
		Parameters:  map[string]float64{},
	}

	switch name {
	case "stop_loss_pct", "percent_trailing_stop":
		handler.Parameters["percent"] = 1.0 + rng.Float64()*4.0
	case "atr_trail_stop":
		handler.Parameters["k"] = 1.5 + rng.Float64()*2.5
	case "hi_lo_trailing_stop":
		handler.Parameters["period"] = float64(5 + rng.Intn(15))
	case "atr_trail_indicator_stop", "percent_trail_indicator_stop":
		alias := b.indicatorAliasFor(state, name)
		if alias == "" {
			// No compatible indicator binding exists yet; fall back to a
			// handler that needs none rather than fail the whole attempt.
			return b.addHandler(rng, state, stop)
		}
		handler.IndicatorAlias = alias
		if name == "atr_trail_indicator_stop" {
			handler.Parameters["k"] = 1.5 + rng.Float64()*2.5
		} else {
			handler.Parameters["percent"] = 1.0 + rng.Float64()*4.0
		}
	}

	if stop {
		state.def.StopHandlers = append(state.def.StopHandlers, handler)
	} else {
		state.def.TakeHandlers = append(state.def.TakeHandlers, handler)
	}
	return nil
}

// indicatorAliasFor finds an atr/trend-family alias an indicator-anchored
// handler can read; "atr_trail_indicator_stop" needs an ATR-like series,
// "percent_trail_indicator_stop" works off any trend-family alias.
func (b *Builder) indicatorAliasFor(state *buildState, handlerName string) string {
	want := indicator.FamilyTrend
	if handlerName == "atr_trail_indicator_stop" {
		want = indicator.FamilyVolatility
	}
	for alias, fam := range state.family {
		if fam == want {
			return alias
		}
	}
	return ""
}

func (b *Builder) pickIndicator(rng *rand.Rand) string {
	return b.cfg.IndicatorPool[rng.Intn(len(b.cfg.IndicatorPool))]
}

func (b *Builder) pickPriceField(rng *rand.Rand) string {
	fields := b.cfg.PriceFields
	if len(fields) == 0 {
		return indicator.FieldClose
	}
	return fields[rng.Intn(len(fields))]
}
