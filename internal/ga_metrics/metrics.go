// Package ga_metrics exports Prometheus instrumentation for the evaluator
// and GA driver: generation best/
// median/worst fitness, evaluator queue depth, timeout/cache-hit counters,
// and worker-pool throughput, reusing internal/workers.PoolStats' shape.
package ga_metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlas-desktop/strategyforge/internal/workers"
)

// Registry bundles every gauge/counter this package exposes. The islands
// driver updates the generation and pool metrics; the evaluator-subsystem
// counters (evaluations, timeouts, failures, cache hits/misses) are
// registered but nothing in this module increments them.
type Registry struct {
	GenerationBest   prometheus.Gauge
	GenerationMedian prometheus.Gauge
	GenerationWorst  prometheus.Gauge
	Generation       prometheus.Gauge
	Stagnated        prometheus.Counter

	EvaluationsTotal   prometheus.Counter
	EvaluationTimeouts prometheus.Counter
	EvaluationFailures prometheus.Counter
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter

	PoolQueueDepth  prometheus.Gauge
	PoolThroughput  prometheus.Gauge
	PoolP99Latency  prometheus.Gauge
	PoolTasksFailed prometheus.Gauge
}

// NewRegistry builds and registers every metric against reg. Passing
// prometheus.NewRegistry() keeps this isolated from the default global
// registry, matching how a library (rather than the historical
// trading-backend binary) should behave.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		GenerationBest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "ga", Name: "generation_best_fitness",
			Help: "Best fitness observed in the most recently completed generation.",
		}),
		GenerationMedian: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "ga", Name: "generation_median_fitness",
			Help: "Median fitness observed in the most recently completed generation.",
		}),
		GenerationWorst: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "ga", Name: "generation_worst_fitness",
			Help: "Worst fitness observed in the most recently completed generation.",
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "ga", Name: "generation",
			Help: "Index of the most recently completed generation.",
		}),
		Stagnated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "ga", Name: "stagnation_triggers_total",
			Help: "Number of times the stagnation tracker reported a restart trigger.",
		}),
		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "evaluator", Name: "evaluations_total",
			Help: "Total candidate evaluations dispatched.",
		}),
		EvaluationTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "evaluator", Name: "evaluation_timeouts_total",
			Help: "Total candidate evaluations that hit the per-candidate timeout.",
		}),
		EvaluationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "evaluator", Name: "evaluation_failures_total",
			Help: "Total candidate evaluations that errored (not counting timeouts).",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "evaluator", Name: "cache_hits_total",
			Help: "Structural-signature cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "evaluator", Name: "cache_misses_total",
			Help: "Structural-signature cache misses.",
		}),
		PoolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "pool", Name: "queue_depth",
			Help: "Current number of queued evaluation tasks.",
		}),
		PoolThroughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "pool", Name: "throughput_per_second",
			Help: "Evaluations completed per second, lifetime average.",
		}),
		PoolP99Latency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "pool", Name: "p99_latency_seconds",
			Help: "P99 evaluation latency in seconds.",
		}),
		PoolTasksFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "pool", Name: "tasks_failed_total",
			Help: "Cumulative worker-pool tasks that returned an error, as last observed.",
		}),
	}
	reg.MustRegister(
		r.GenerationBest, r.GenerationMedian, r.GenerationWorst, r.Generation, r.Stagnated,
		r.EvaluationsTotal, r.EvaluationTimeouts, r.EvaluationFailures, r.CacheHits, r.CacheMisses,
		r.PoolQueueDepth, r.PoolThroughput, r.PoolP99Latency, r.PoolTasksFailed,
	)
	return r
}

// ObserveGeneration records one completed generation's fitness spread.
func (r *Registry) ObserveGeneration(generation int, best, median, worst float64, stagnated bool) {
	r.Generation.Set(float64(generation))
	r.GenerationBest.Set(best)
	r.GenerationMedian.Set(median)
	r.GenerationWorst.Set(worst)
	if stagnated {
		r.Stagnated.Inc()
	}
}

// ObserveQueueDepth records the worker pool's current queue length
// (workers.Pool.QueueLength(), sampled by the caller since the pool itself
// doesn't push metrics).
func (r *Registry) ObserveQueueDepth(n int) {
	r.PoolQueueDepth.Set(float64(n))
}

// ObservePoolStats copies workers.PoolStats onto the pool gauges/counters,
// letting the evaluator's internal worker pool report through the same
// Registry the GA driver uses.
func (r *Registry) ObservePoolStats(stats workers.PoolStats) {
	r.PoolThroughput.Set(stats.Throughput)
	r.PoolP99Latency.Set(stats.P99Latency.Seconds())
	r.PoolTasksFailed.Set(float64(stats.TasksFailed))
}
