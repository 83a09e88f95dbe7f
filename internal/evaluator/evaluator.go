// Package evaluator runs candidates through a backtest concurrently and
// writes fitness back onto the population.
package evaluator

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategyforge/internal/backtest"
	"github.com/atlas-desktop/strategyforge/internal/fitness"
	"github.com/atlas-desktop/strategyforge/internal/genetic"
	"github.com/atlas-desktop/strategyforge/internal/workers"
	"github.com/atlas-desktop/strategyforge/pkg/quote"
	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// Evaluator evaluates genetic.Population members against a fixed set of
// quote frames, one backtest per candidate, fanned out over a bounded
// worker pool.
type Evaluator struct {
	cfg    Config
	logger *zap.Logger
	frames map[string]*quote.QuoteFrame

	cache   *signatureCache
	breaker *gobreaker.CircuitBreaker

	mu        sync.Mutex
	lastStats workers.PoolStats
}

// NewEvaluator builds an Evaluator bound to one fixed set of quote frames,
// shared by reference across every candidate it evaluates.
func NewEvaluator(logger *zap.Logger, cfg Config, frames map[string]*quote.QuoteFrame) *Evaluator {
	settings := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.BreakerConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > cfg.BreakerFailureRatio
		},
	}
	e := &Evaluator{
		cfg:     cfg,
		logger:  logger,
		frames:  frames,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
	if cfg.CacheEnabled {
		e.cache = newSignatureCache(cfg)
	}
	return e
}

// EvaluatePopulation evaluates every individual in pop that does not
// already carry a fitness value, writing Fitness/HasFitness back in place.
// The pool joins before this returns.
func (e *Evaluator) EvaluatePopulation(ctx context.Context, pop genetic.Population) error {
	pending := make([]*genetic.Individual, 0, len(pop))
	for _, ind := range pop {
		if !ind.HasFitness {
			pending = append(pending, ind)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	workerCount := e.cfg.MaxConcurrentEvaluations
	if cores := runtime.NumCPU(); cores < workerCount {
		workerCount = cores
	}
	if workerCount < 1 {
		workerCount = 1
	}

	poolCfg := workers.DefaultPoolConfig("evaluator")
	poolCfg.NumWorkers = workerCount
	poolCfg.QueueSize = len(pending)
	poolCfg.TaskTimeout = e.cfg.CandidateTimeout + 2*time.Second

	pool := workers.NewPool(e.logger, poolCfg)
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	wg.Add(len(pending))
	for _, ind := range pending {
		ind := ind
		if err := pool.SubmitFunc(func() error {
			defer wg.Done()
			e.evaluateOne(ctx, ind)
			return nil
		}); err != nil {
			wg.Done()
			return newError("EvaluatePopulation", "submitting candidate %s: %v", ind.Candidate.ID, err)
		}
	}
	wg.Wait()

	e.mu.Lock()
	e.lastStats = pool.Stats()
	e.mu.Unlock()

	return nil
}

// PoolStats returns the worker pool statistics from the most recently
// completed EvaluatePopulation call, for a caller that mirrors them onto
// ga_metrics between generations.
func (e *Evaluator) PoolStats() workers.PoolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStats
}

// evaluateOne resolves one individual's fitness via the signature cache or
// a fresh backtest, never returning an error to the caller: a failing or
// timed-out candidate is recorded as zero-fitness and logged.
func (e *Evaluator) evaluateOne(ctx context.Context, ind *genetic.Individual) {
	signature := ind.Candidate.Signature

	if e.cache != nil {
		if fit, ok := e.cache.get(ctx, signature); ok {
			ind.Fitness = fit
			ind.HasFitness = true
			return
		}
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.cfg.CandidateTimeout)
	defer cancel()

	result, err := e.breaker.Execute(func() (any, error) {
		return e.scoreCandidate(evalCtx, ind.Candidate.Definition)
	})
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			e.logger.Warn("candidate evaluation timed out",
				zap.String("candidate_id", ind.Candidate.ID),
				zap.Duration("timeout", e.cfg.CandidateTimeout))
		} else {
			e.logger.Warn("candidate evaluation failed",
				zap.String("candidate_id", ind.Candidate.ID),
				zap.Error(err))
		}
		ind.Fitness = 0
		ind.HasFitness = true
		return
	}

	fit := result.(float64)
	ind.Fitness = fit
	ind.HasFitness = true
	if e.cache != nil {
		e.cache.put(ctx, signature, fit)
	}
}

// scoreCandidate runs build-definition -> backtest -> metrics -> fitness
// for one strategy definition.
func (e *Evaluator) scoreCandidate(ctx context.Context, def *strategydef.StrategyDefinition) (float64, error) {
	prepared, err := strategydef.Prepare(def)
	if err != nil {
		return 0, newError("scoreCandidate", "preparing definition: %v", err)
	}
	exec, err := backtest.NewExecutor(e.cfg.BacktestConfig, prepared)
	if err != nil {
		return 0, newError("scoreCandidate", "building executor: %v", err)
	}
	report, err := exec.Run(ctx, e.frames)
	if err != nil {
		return 0, newError("scoreCandidate", "running backtest: %v", err)
	}
	metrics := fitness.Calculate(report, e.cfg.BarMinutes)
	return fitness.Score(metrics, e.cfg.FitnessWeights), nil
}
