package position

import (
	"fmt"
	"sort"
	"time"

	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// Config carries the position manager's capital semantics.
type Config struct {
	InitialCapital  float64
	UseFullCapital  bool
	ReinvestProfits bool
}

// Manager is the position manager: it owns the set of
// open positions, bookkeeps available capital, and turns a Decision into a
// Report of state mutations.
type Manager struct {
	cfg       Config
	available float64
	open      map[Key]*State
	nextID    int
}

// NewManager seeds the manager with the configured initial capital.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		available: cfg.InitialCapital,
		open:      make(map[Key]*State),
	}
}

// AvailableCapital returns capital not currently committed to an open
// position.
func (m *Manager) AvailableCapital() float64 { return m.available }

// Open returns a snapshot of the currently open positions, keyed by
// PositionKey.
func (m *Manager) Open() map[Key]*State {
	out := make(map[Key]*State, len(m.open))
	for k, v := range m.open {
		out[k] = v
	}
	return out
}

func directionSign(d strategydef.Direction) float64 {
	if d == strategydef.Short {
		return -1
	}
	return 1
}

func opposite(d strategydef.Direction) strategydef.Direction {
	if d == strategydef.Long {
		return strategydef.Short
	}
	return strategydef.Long
}

func (m *Manager) newID() string {
	m.nextID++
	return fmt.Sprintf("pos-%d", m.nextID)
}

// Process applies one bar's Decision against the current position set and
// returns the resulting Report.
//
// Exits are applied before entries; if a Decision carries both for the same
// bar the caller is expected to have already dropped the entries. Process
// itself does not re-check that rule, since by the time it runs, that
// decision has already been made upstream.
func (m *Manager) Process(decision Decision, at time.Time) (*Report, error) {
	report := &Report{}

	for _, sig := range decision.Exits {
		m.applyExit(sig, at, report)
	}
	for _, sig := range decision.Entries {
		if err := m.applyEntry(sig, at, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (m *Manager) applyEntry(sig Signal, at time.Time, report *Report) error {
	key := sig.Key
	price := sig.Price

	if existing, ok := m.open[key]; ok && existing.Status == Open {
		m.scale(existing, sig, price, at, report)
		return nil
	}

	// A position on the opposite direction for the same (symbol, TF) is
	// closed first, at the same price.
	revKey := key
	revKey.Direction = opposite(key.Direction)
	if rev, ok := m.open[revKey]; ok && rev.Status == Open {
		m.closePosition(rev, rev.Quantity, price, at, "", report)
	}

	qty := sig.quantity(m.quantityForEntry(price))
	if qty <= 0 {
		return nil
	}
	cost := qty * price
	if cost > m.available {
		return newError("applyEntry", "insufficient capital: need %.2f have %.2f", cost, m.available)
	}
	m.available -= cost

	state := &State{
		ID:           m.newID(),
		Key:          key,
		Status:       Open,
		Quantity:     qty,
		AveragePrice: price,
		CurrentPrice: price,
		OpenedAt:     at,
		UpdatedAt:    at,
		Metadata:     map[string]string{"last_entry_rule": sig.RuleID},
	}
	m.open[key] = state
	report.recordOpened(state)
	return nil
}

// scale weighted-averages an additional entry into an already-open position.
func (m *Manager) scale(state *State, sig Signal, price float64, at time.Time, report *Report) {
	qty := sig.quantity(m.quantityForEntry(price))
	if qty <= 0 {
		return
	}
	m.available -= qty * price

	totalQty := state.Quantity + qty
	state.AveragePrice = (state.Quantity*state.AveragePrice + qty*price) / totalQty
	state.Quantity = totalQty
	state.CurrentPrice = price
	state.UpdatedAt = at
	if state.Metadata == nil {
		state.Metadata = map[string]string{}
	}
	state.Metadata["last_entry_rule"] = sig.RuleID
	report.recordUpdated(state)
}

func (m *Manager) quantityForEntry(price float64) float64 {
	if price <= 0 {
		return 0
	}
	if m.cfg.UseFullCapital {
		return m.available / price
	}
	return m.cfg.InitialCapital / price
}

func (s Signal) quantity(fallback float64) float64 {
	if s.Quantity != nil {
		return *s.Quantity
	}
	return fallback
}

// applyExit matches the exit signal against open positions by
// target_entry_ids, then position_group, then broad (symbol, tf,
// direction), and reduces quantity.
func (m *Manager) applyExit(sig Signal, at time.Time, report *Report) {
	matches := m.matchForExit(sig)
	for _, state := range matches {
		qty := sig.quantity(state.Quantity)
		if qty > state.Quantity {
			qty = state.Quantity
		}
		m.closePosition(state, qty, sig.Price, at, sig.RuleID, report)
	}
}

func (m *Manager) matchForExit(sig Signal) []*State {
	var out []*State
	for key, state := range m.open {
		if state.Status != Open {
			continue
		}
		if len(sig.TargetEntryIDs) > 0 {
			if contains(sig.TargetEntryIDs, key.EntryRuleID) {
				out = append(out, state)
			}
			continue
		}
		if key.PositionGroup != "" && sig.Key.PositionGroup != "" {
			if key.PositionGroup == sig.Key.PositionGroup {
				out = append(out, state)
			}
			continue
		}
		if key.Symbol == sig.Key.Symbol && key.Timeframe == sig.Key.Timeframe && key.Direction == sig.Key.Direction {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// closePosition reduces a position's quantity by amount, realizing P&L, and
// fully closes it once quantity drops to qtyEpsilon.
// Capital freed by the reduction always returns to available capital; the
// realized P&L on top of it is recycled only when ReinvestProfits is set.
func (m *Manager) closePosition(state *State, amount, exitPrice float64, at time.Time, exitRuleID string, report *Report) {
	if amount <= 0 {
		return
	}
	sign := directionSign(state.Key.Direction)
	pnl := (exitPrice - state.AveragePrice) * amount * sign
	state.RealizedPnL += pnl
	state.Quantity -= amount
	state.CurrentPrice = exitPrice
	state.UpdatedAt = at

	m.available += amount * state.AveragePrice
	if m.cfg.ReinvestProfits {
		m.available += pnl
	}

	if state.Quantity <= qtyEpsilon {
		state.markClosed(at)
		delete(m.open, state.Key)
		report.recordClosed(state)
		report.recordTrade(ClosedTrade{
			PositionID:  state.ID,
			Symbol:      state.Key.Symbol,
			Timeframe:   state.Key.Timeframe,
			Direction:   state.Key.Direction,
			Quantity:    amount,
			EntryPrice:  state.AveragePrice,
			ExitPrice:   exitPrice,
			EntryTime:   state.OpenedAt,
			ExitTime:    at,
			PnL:         pnl,
			EntryRuleID: state.Key.EntryRuleID,
			ExitRuleID:  exitRuleID,
		})
		return
	}
	report.recordUpdated(state)
}
