// Package risk implements the per-position risk state and the stop/take
// handler engine: rolling stop computation, tightest-safe-level selection,
// and the trigger/exit-price rule.
package risk

import "github.com/atlas-desktop/strategyforge/pkg/strategydef"

// StopHistoryEntry records one stop-level update, consumed by trade
// analytics.
type StopHistoryEntry struct {
	BarIndex  int
	StopLevel float64
	MaxHigh   float64
	MinLow    float64
}

// PositionRiskState is the per-open-position risk state: entry anchor,
// running extrema, current stop, and its history.
type PositionRiskState struct {
	Direction         strategydef.Direction
	EntryPrice        float64
	MaxHighSinceEntry float64
	MinLowSinceEntry  float64
	CurrentStop       *float64
	StopHistory       []StopHistoryEntry
}

// NewPositionRiskState seeds a risk state at the moment a position opens.
func NewPositionRiskState(direction strategydef.Direction, entryPrice, entryHigh, entryLow float64) *PositionRiskState {
	return &PositionRiskState{
		Direction:         direction,
		EntryPrice:        entryPrice,
		MaxHighSinceEntry: entryHigh,
		MinLowSinceEntry:  entryLow,
	}
}

// OnNewBar extends the running high/low extrema the trailing handlers read.
func (s *PositionRiskState) OnNewBar(high, low float64) {
	if high > s.MaxHighSinceEntry {
		s.MaxHighSinceEntry = high
	}
	if low < s.MinLowSinceEntry {
		s.MinLowSinceEntry = low
	}
}

func (s *PositionRiskState) recordStop(barIndex int, level float64) {
	s.CurrentStop = &level
	s.StopHistory = append(s.StopHistory, StopHistoryEntry{
		BarIndex:  barIndex,
		StopLevel: level,
		MaxHigh:   s.MaxHighSinceEntry,
		MinLow:    s.MinLowSinceEntry,
	})
}

// ValidationResult is the outcome of a handler's pre-entry check.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Series bundles the per-bar columns a handler's ComputeStopLevel may need:
// the position's own timeframe OHLC plus any auxiliary/indicator series the
// handler declared via AuxiliaryIndicatorSpecs.
type Series struct {
	High, Low, Close []float64
	ATR              []float64
	Indicator        []float64
}

// Handler is the stop/take handler contract.
type Handler interface {
	Name() string
	Priority() int
	// ValidateBeforeEntry is optional; handlers that have no pre-entry
	// constraint always return {Valid: true}.
	ValidateBeforeEntry(direction strategydef.Direction, entryPrice, currentPrice float64, series Series, index int) ValidationResult
	// ComputeStopLevel returns the handler's proposed stop level for this
	// bar, or ok=false if it cannot yet produce one (e.g. warmup).
	ComputeStopLevel(direction strategydef.Direction, entryPrice, maxHigh, minLow float64, currentStop *float64, series Series, index int) (level float64, ok bool)
	// AuxiliaryIndicatorSpecs lists the indicator aliases this handler needs
	// precomputed, so the executor can compute them once up front").
	AuxiliaryIndicatorSpecs() []string
}
