package fitness

import (
	"math/rand"
	"sort"

	"github.com/atlas-desktop/strategyforge/internal/backtest"
)

// MonteCarloConfig controls the bootstrap resample (grounded on
// internal/backtester/montecarlo.go's MonteCarloSimulator).
type MonteCarloConfig struct {
	Enabled    bool
	Iterations int
	Seed       int64
}

// MonteCarloResult is the distribution of outcomes over resampled trade
// orderings.
type MonteCarloResult struct {
	Iterations      int
	MedianReturn    float64
	P5Return        float64
	P95Return       float64
	ProbabilityRuin float64
}

// MonteCarlo bootstraps the closed-trade P&L sequence cfg.Iterations times,
// shuffling trade order to see how sensitive the outcome is to sequencing,
// and reports the resulting return distribution plus probability of ruin
// (equity dropping to zero or below at any point in a simulated path).
func MonteCarlo(report *backtest.Report, cfg MonteCarloConfig) MonteCarloResult {
	if !cfg.Enabled || len(report.Trades) == 0 {
		return MonteCarloResult{}
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 1000
	}

	pnls := make([]float64, len(report.Trades))
	for i, trade := range report.Trades {
		pnls[i] = trade.PnL
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	totalReturns := make([]float64, iterations)
	ruinCount := 0

	for i := 0; i < iterations; i++ {
		shuffled := shuffle(rng, pnls)
		equity := report.InitialCapital
		ruined := false
		for _, pnl := range shuffled {
			equity += pnl
			if equity <= 0 {
				ruined = true
			}
		}
		if ruined {
			ruinCount++
		}
		if report.InitialCapital > 0 {
			totalReturns[i] = (equity - report.InitialCapital) / report.InitialCapital * 100
		}
	}

	sort.Float64s(totalReturns)
	return MonteCarloResult{
		Iterations:      iterations,
		MedianReturn:    percentile(totalReturns, 50),
		P5Return:        percentile(totalReturns, 5),
		P95Return:       percentile(totalReturns, 95),
		ProbabilityRuin: float64(ruinCount) / float64(iterations),
	}
}

func shuffle(rng *rand.Rand, values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
