// Package fitness derives performance metrics and a scalar fitness score
// from a finished backtest.Report. It deliberately does not import
// internal/backtest's executor, only its Report/EquityPoint/ClosedTrade
// data shapes, so backtest never needs to import fitness back.
package fitness

import (
	"math"
	"time"

	"github.com/atlas-desktop/strategyforge/internal/backtest"
)

// Metrics holds the metrics derived from one backtest.Report's equity curve
// and trade list.
type Metrics struct {
	TotalProfit         float64
	WinningPercentage   float64
	ProfitFactor        float64 // only meaningful when ProfitFactorDefined
	ProfitFactorDefined bool
	SharpeRatio         float64
	Drawdown            float64
	DrawdownPercent     float64
	CAGR                float64
	TotalTrades         int
	WinningTrades       int
	LosingTrades        int
}

// barsPerYearFor maps a timeframe's minute size into how many bars the
// Sharpe annualization factor should assume per year, generalizing a fixed
// 252-trading-day daily-bar assumption to any bar size.
func barsPerYearFor(barMinutes int64) float64 {
	if barMinutes <= 0 {
		barMinutes = 1
	}
	const minutesPerTradingYear = 252 * 24 * 60
	return float64(minutesPerTradingYear) / float64(barMinutes)
}

// Calculate computes Metrics from a finished report. barMinutes is the
// primary timeframe's bar size in minutes, used to annualize the Sharpe
// ratio.
func Calculate(report *backtest.Report, barMinutes int64) Metrics {
	var m Metrics
	m.TotalTrades = len(report.Trades)

	var totalPositive, totalNegative float64
	for _, trade := range report.Trades {
		m.TotalProfit += trade.PnL
		if trade.PnL > 0 {
			m.WinningTrades++
			totalPositive += trade.PnL
		} else if trade.PnL < 0 {
			m.LosingTrades++
			totalNegative += -trade.PnL
		}
	}
	if m.TotalTrades > 0 {
		m.WinningPercentage = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if totalNegative > 0 {
		m.ProfitFactor = totalPositive / totalNegative
		m.ProfitFactorDefined = true
	}

	returns := barReturns(report.EquityCurve)
	if len(returns) > 1 {
		avg := mean(returns)
		sd := stdDev(returns, avg)
		if sd > 0 {
			m.SharpeRatio = (avg / sd) * math.Sqrt(barsPerYearFor(barMinutes))
		}
	}

	m.Drawdown, m.DrawdownPercent = maxDrawdown(report.EquityCurve)
	m.CAGR = cagr(report.EquityCurve, report.StartDate, report.EndDate)

	return m
}

func barReturns(curve []backtest.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, avg float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - avg
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// maxDrawdown returns the worst peak-to-trough decline in absolute equity
// and as a percentage of the peak.
func maxDrawdown(curve []backtest.EquityPoint) (absolute, percent float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Equity
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		dd := peak - pt.Equity
		if dd > absolute {
			absolute = dd
		}
		if peak > 0 {
			if pct := dd / peak * 100; pct > percent {
				percent = pct
			}
		}
	}
	return absolute, percent
}

// cagr is (end/start)^(1/years) - 1, expressed as a percentage (25.0 meaning
// 25%) so it lines up with the fitness formula's clamp(cagr/100, 0, 1) term.
func cagr(curve []backtest.EquityPoint, start, end time.Time) float64 {
	if len(curve) == 0 {
		return 0
	}
	startEquity := curve[0].Equity
	endEquity := curve[len(curve)-1].Equity
	if startEquity <= 0 {
		return 0
	}
	years := end.Sub(start).Hours() / (24 * 365.25)
	if years <= 0 {
		return 0
	}
	return (math.Pow(endEquity/startEquity, 1/years) - 1) * 100
}
