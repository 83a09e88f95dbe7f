package position_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/strategyforge/internal/position"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

func key(dir strategydef.Direction) position.Key {
	return position.Key{Symbol: "BTC-USD", Timeframe: quote.Minutes(1), Direction: dir}
}

func TestOpenAndCloseRealizesPnL(t *testing.T) {
	mgr := position.NewManager(position.Config{InitialCapital: 10000})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entry := position.Decision{Entries: []position.Signal{{RuleID: "r1", Key: key(strategydef.Long), Price: 100}}}
	report, err := mgr.Process(entry, now)
	if err != nil {
		t.Fatalf("entry Process: %v", err)
	}
	if len(report.Opened) != 1 {
		t.Fatalf("expected 1 opened position, got %d", len(report.Opened))
	}
	opened := report.Opened[0]
	if opened.AveragePrice != 100 {
		t.Fatalf("expected avg price 100, got %v", opened.AveragePrice)
	}

	exit := position.Decision{Exits: []position.Signal{{RuleID: "x1", Key: key(strategydef.Long), Price: 110}}}
	report, err = mgr.Process(exit, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("exit Process: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected 1 closed trade, got %d", len(report.Trades))
	}
	trade := report.Trades[0]
	if trade.PnL <= 0 {
		t.Fatalf("expected positive PnL for a long bought at 100 sold at 110, got %v", trade.PnL)
	}
	if len(mgr.Open()) != 0 {
		t.Fatal("expected no open positions after full exit")
	}
}

func TestScalingWeightedAverages(t *testing.T) {
	mgr := position.NewManager(position.Config{InitialCapital: 100000})
	now := time.Now()
	qty1, qty2 := 10.0, 10.0

	decision := position.Decision{Entries: []position.Signal{{Key: key(strategydef.Long), Price: 100, Quantity: &qty1}}}
	if _, err := mgr.Process(decision, now); err != nil {
		t.Fatalf("first entry: %v", err)
	}
	decision = position.Decision{Entries: []position.Signal{{Key: key(strategydef.Long), Price: 120, Quantity: &qty2}}}
	report, err := mgr.Process(decision, now)
	if err != nil {
		t.Fatalf("second entry: %v", err)
	}
	if len(report.Updated) != 1 {
		t.Fatalf("expected scaling to report an update, got %+v", report)
	}
	state := report.Updated[0]
	if state.AveragePrice != 110 {
		t.Fatalf("expected weighted average 110, got %v", state.AveragePrice)
	}
	if state.Quantity != 20 {
		t.Fatalf("expected quantity 20, got %v", state.Quantity)
	}
}

func TestReversalClosesOppositeBeforeOpening(t *testing.T) {
	mgr := position.NewManager(position.Config{InitialCapital: 10000})
	now := time.Now()

	longQty := 10.0
	if _, err := mgr.Process(position.Decision{Entries: []position.Signal{{Key: key(strategydef.Long), Price: 100, Quantity: &longQty}}}, now); err != nil {
		t.Fatalf("initial long entry: %v", err)
	}

	shortQty := 5.0
	report, err := mgr.Process(position.Decision{Entries: []position.Signal{{Key: key(strategydef.Short), Price: 105, Quantity: &shortQty}}}, now)
	if err != nil {
		t.Fatalf("reversal entry: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected the long to close on reversal, got %d trades", len(report.Trades))
	}
	if len(report.Opened) != 1 {
		t.Fatalf("expected a new short position to open, got %d", len(report.Opened))
	}
	if report.Opened[0].Key.Direction != strategydef.Short {
		t.Fatal("expected the new position to be Short")
	}
}

func TestUseFullCapitalSizesFromAvailable(t *testing.T) {
	mgr := position.NewManager(position.Config{InitialCapital: 1000, UseFullCapital: true})
	now := time.Now()
	report, err := mgr.Process(position.Decision{Entries: []position.Signal{{Key: key(strategydef.Long), Price: 100}}}, now)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Opened[0].Quantity != 10 {
		t.Fatalf("expected qty 1000/100=10, got %v", report.Opened[0].Quantity)
	}
	if mgr.AvailableCapital() != 0 {
		t.Fatalf("expected all capital committed, got %v remaining", mgr.AvailableCapital())
	}
}

func TestReinvestProfitsGrowsAvailableCapital(t *testing.T) {
	mgr := position.NewManager(position.Config{InitialCapital: 1000, UseFullCapital: true, ReinvestProfits: true})
	now := time.Now()
	if _, err := mgr.Process(position.Decision{Entries: []position.Signal{{Key: key(strategydef.Long), Price: 100}}}, now); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := mgr.Process(position.Decision{Exits: []position.Signal{{Key: key(strategydef.Long), Price: 150}}}, now); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if mgr.AvailableCapital() <= 1000 {
		t.Fatalf("expected capital to grow past 1000 after a profitable reinvested trade, got %v", mgr.AvailableCapital())
	}
}

func TestExitMatchesByPositionGroup(t *testing.T) {
	mgr := position.NewManager(position.Config{InitialCapital: 10000})
	now := time.Now()
	k := key(strategydef.Long)
	k.PositionGroup = "breakout"
	if _, err := mgr.Process(position.Decision{Entries: []position.Signal{{Key: k, Price: 100}}}, now); err != nil {
		t.Fatalf("entry: %v", err)
	}
	exitKey := position.Key{Symbol: "OTHER", PositionGroup: "breakout"}
	report, err := mgr.Process(position.Decision{Exits: []position.Signal{{Key: exitKey, Price: 120}}}, now)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if len(report.Trades) != 1 {
		t.Fatalf("expected position_group match to close the trade, got %d trades", len(report.Trades))
	}
}
