package risk

import (
	"math"
	"sort"

	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// NewHandler constructs a built-in handler from a declarative spec. Unknown handler names are a configuration error the
// strategy-preparation step should have already caught, but NewHandler is
// re-checked here since handler wiring happens independently at executor
// build time.
func NewHandler(spec strategydef.HandlerSpec) (Handler, error) {
	switch spec.HandlerName {
	case "stop_loss_pct":
		return &StopLossPctHandler{IDPriority: spec.Priority, Percent: spec.Parameters["percent"]}, nil
	case "percent_trailing_stop":
		return &PercentTrailingStopHandler{IDPriority: spec.Priority, Percent: spec.Parameters["percent"]}, nil
	case "atr_trail_stop":
		return &ATRTrailStopHandler{IDPriority: spec.Priority, K: spec.Parameters["k"]}, nil
	case "hi_lo_trailing_stop":
		return &HiLoTrailingStopHandler{IDPriority: spec.Priority, Period: int(spec.Parameters["period"])}, nil
	case "atr_trail_indicator_stop":
		return &ATRTrailIndicatorStopHandler{IDPriority: spec.Priority, K: spec.Parameters["k"], IndicatorAlias: spec.IndicatorAlias}, nil
	case "percent_trail_indicator_stop":
		return &PercentTrailIndicatorStopHandler{IDPriority: spec.Priority, Percent: spec.Parameters["percent"], IndicatorAlias: spec.IndicatorAlias}, nil
	default:
		return nil, newError("NewHandler", "unknown handler name %q", spec.HandlerName)
	}
}

// Manager aggregates a priority-ordered set of handlers for one rule group
// (a stop set or a take set) and applies the tightest-safe-level and
// trigger rules.
type Manager struct {
	handlers []Handler
}

// NewManager sorts handlers ascending by priority once, up front, so
// UpdateStop and ValidateEntry never re-sort per bar.
func NewManager(handlers []Handler) *Manager {
	sorted := make([]Handler, len(handlers))
	copy(sorted, handlers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Manager{handlers: sorted}
}

// RequiredAuxiliaryIndicators unions every handler's declared auxiliary
// indicator aliases, so the executor can compute them once before the bar
// loop starts.
func (m *Manager) RequiredAuxiliaryIndicators() []string {
	seen := map[string]bool{}
	var out []string
	for _, h := range m.handlers {
		for _, alias := range h.AuxiliaryIndicatorSpecs() {
			if !seen[alias] {
				seen[alias] = true
				out = append(out, alias)
			}
		}
	}
	return out
}

// SeriesFor resolves the per-bar column bundle a named handler should read.
// Handlers commonly need different auxiliary series (distinct ATR periods,
// distinct indicator aliases), so the Manager asks for one Series per
// handler rather than sharing a single bundle across all of them.
type SeriesFor func(handlerName string) Series

// ValidateEntry runs every handler's pre-entry check in priority order and
// returns the first failure, or valid=true if all pass.
func (m *Manager) ValidateEntry(direction strategydef.Direction, entryPrice, currentPrice float64, seriesFor SeriesFor, index int) ValidationResult {
	for _, h := range m.handlers {
		if res := h.ValidateBeforeEntry(direction, entryPrice, currentPrice, seriesFor(h.Name()), index); !res.Valid {
			return res
		}
	}
	return ValidationResult{Valid: true}
}

// UpdateStop asks every handler for its candidate stop level and folds them
// into the tightest-safe level: for Long positions the stop only ever moves
// up (max of existing and every candidate); for Short, only down (min).
// Handlers that return ok=false (e.g. still in warmup) are skipped. Returns
// false if no handler produced a usable level.
func (m *Manager) UpdateStop(state *PositionRiskState, barIndex int, seriesFor SeriesFor, index int) bool {
	var (
		best    float64
		haveAny bool
	)
	if state.CurrentStop != nil {
		best = *state.CurrentStop
		haveAny = true
	}
	for _, h := range m.handlers {
		level, ok := h.ComputeStopLevel(state.Direction, state.EntryPrice, state.MaxHighSinceEntry, state.MinLowSinceEntry, state.CurrentStop, seriesFor(h.Name()), index)
		if !ok {
			continue
		}
		if !haveAny {
			best, haveAny = level, true
			continue
		}
		if isLong(state.Direction) {
			if level > best {
				best = level
			}
		} else {
			if level < best {
				best = level
			}
		}
	}
	if !haveAny {
		return false
	}
	state.recordStop(barIndex, best)
	return true
}

// CheckTrigger applies the trigger rule: Long positions exit when the bar's
// low touches or breaches the stop, Short positions when the high does.
// The exit fills at the more conservative of the bar's open and the stop
// level, modeling a gap-through-stop fill.
func CheckTrigger(state *PositionRiskState, open, high, low float64) (triggered bool, exitPrice float64) {
	if state.CurrentStop == nil {
		return false, 0
	}
	stop := *state.CurrentStop
	if isLong(state.Direction) {
		if low <= stop {
			return true, math.Min(open, stop)
		}
		return false, 0
	}
	if high >= stop {
		return true, math.Max(open, stop)
	}
	return false, 0
}
