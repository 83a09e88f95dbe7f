package backtest

import (
	"time"

	"github.com/atlas-desktop/strategyforge/internal/position"
)

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
	Cash      float64
}

// Config carries the executor's run-time knobs: capital semantics plus the
// symbol/primary-timeframe identity of the backtest.
type Config struct {
	Symbol          string
	InitialCapital  float64
	UseFullCapital  bool
	ReinvestProfits bool
}

// Report is the raw output of one backtest run. Metrics and fitness are
// deliberately not embedded here; they are derived from Report by the
// fitness package, kept separate so backtest never needs to import it.
type Report struct {
	Trades          []position.ClosedTrade
	EquityCurve     []EquityPoint
	StartDate       time.Time
	EndDate         time.Time
	TotalBars       int
	BarsInPositions int
	InitialCapital  float64
}
