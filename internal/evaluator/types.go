package evaluator

import (
	"time"

	"github.com/atlas-desktop/strategyforge/internal/backtest"
	"github.com/atlas-desktop/strategyforge/internal/fitness"
)

// Config carries the evaluator's concurrency, timeout, caching, and
// circuit-breaker knobs, plus the
// backtest/fitness configuration applied to every candidate in a
// generation.
type Config struct {
	MaxConcurrentEvaluations int
	CandidateTimeout         time.Duration

	CacheEnabled  bool
	CacheCapacity int
	RedisAddr     string
	RedisTTL      time.Duration

	BreakerName                string
	BreakerConsecutiveFailures uint32
	BreakerFailureRatio        float64
	BreakerMinRequests         uint32
	BreakerInterval            time.Duration
	BreakerTimeout             time.Duration

	BacktestConfig    backtest.Config
	BarMinutes        int64
	FitnessWeights    fitness.Weights
	FitnessThresholds fitness.Thresholds
}

// DefaultConfig returns the evaluator's default knob values.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentEvaluations:   8,
		CandidateTimeout:           30 * time.Second,
		CacheEnabled:               true,
		CacheCapacity:              4096,
		RedisTTL:                   30 * time.Minute,
		BreakerName:                "evaluator",
		BreakerConsecutiveFailures: 5,
		BreakerFailureRatio:        0.5,
		BreakerMinRequests:         10,
		BreakerInterval:            60 * time.Second,
		BreakerTimeout:             30 * time.Second,
		BarMinutes:                 1,
		FitnessWeights:             fitness.DefaultWeights(),
	}
}
