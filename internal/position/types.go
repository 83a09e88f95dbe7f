// Package position translates strategy signals into position-state
// mutations, bookkeeps capital and realized P&L, and emits a Report per bar
// decision. PositionState.UnrealizedPnL is declared but never set.
package position

import (
	"time"

	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// qtyEpsilon is the quantity below which a position is considered fully
// closed, guarding against floating-point residue after partial exits.
const qtyEpsilon = 1e-9

// Status is a position's lifecycle state.
type Status int

const (
	PendingEntry Status = iota
	Open
	Closing
	Closed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case PendingEntry:
		return "pending_entry"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Key uniquely identifies an open "slot": one open position per Key at a
// time.
type Key struct {
	Symbol        string
	Timeframe     quote.TimeFrame
	Direction     strategydef.Direction
	PositionGroup string
	EntryRuleID   string
}

// State is one tracked position, from entry to close.
type State struct {
	ID            string
	Key           Key
	Status        Status
	Quantity      float64
	AveragePrice  float64
	CurrentPrice  float64
	RealizedPnL   float64
	UnrealizedPnL float64
	OpenedAt      time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
	Metadata      map[string]string
}

func (s *State) markClosed(at time.Time) {
	s.Status = Closed
	s.Quantity = 0
	s.ClosedAt = &at
	s.UpdatedAt = at
}

// ClosedTrade is the immutable record emitted when a position fully closes.
type ClosedTrade struct {
	PositionID  string
	Symbol      string
	Timeframe   quote.TimeFrame
	Direction   strategydef.Direction
	Quantity    float64
	EntryPrice  float64
	ExitPrice   float64
	EntryTime   time.Time
	ExitTime    time.Time
	PnL         float64
	EntryRuleID string
	ExitRuleID  string
	StopHistory []StopHistoryPoint
}

// StopHistoryPoint mirrors risk.StopHistoryEntry without importing the risk
// package, so a ClosedTrade stays a plain data record.
type StopHistoryPoint struct {
	BarIndex  int
	StopLevel float64
	MaxHigh   float64
	MinLow    float64
}

// StopKind classifies a StopSignal's origin.
type StopKind int

const (
	StopKindStopLoss StopKind = iota
	StopKindTakeProfit
	StopKindTrailing
	StopKindCustom
)

// Signal is one entry/exit/custom instruction emitted by strategy
// evaluation for a single bar. Price is the fill price the executor
// resolved for this bar, the current bar's open, since an offline backtest
// has no live quote to ask for one.
type Signal struct {
	RuleID         string
	Key            Key
	Direction      strategydef.Direction
	Quantity       *float64
	Price          float64
	TargetEntryIDs []string
	Metadata       map[string]string
}

// StopSignal is one stop/take-profit trigger for the current bar.
type StopSignal struct {
	HandlerID  string
	PositionID string
	ExitPrice  float64
	Kind       StopKind
	Priority   int
	Metadata   map[string]string
}

// Decision is the output of one bar's strategy evaluation.
type Decision struct {
	Entries     []Signal
	Exits       []Signal
	StopSignals []StopSignal
	Custom      []Signal
	Metadata    map[string]string
}

// Report accumulates everything that happened while processing one
// Decision: newly opened positions, positions whose state changed, and
// trades that closed.
type Report struct {
	Opened  []*State
	Updated []*State
	Closed  []*State
	Trades  []ClosedTrade
}

func (r *Report) recordOpened(s *State)        { r.Opened = append(r.Opened, s) }
func (r *Report) recordUpdated(s *State)       { r.Updated = append(r.Updated, s) }
func (r *Report) recordClosed(s *State)        { r.Closed = append(r.Closed, s) }
func (r *Report) recordTrade(t ClosedTrade)    { r.Trades = append(r.Trades, t) }
