package islands

import (
	"context"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategyforge/internal/evaluator"
	"github.com/atlas-desktop/strategyforge/internal/ga_metrics"
	"github.com/atlas-desktop/strategyforge/internal/genetic"
)

// Driver runs a Manager's islands through evaluation, selection/crossover/
// mutation, migration and SDS end to end, generation by generation: per
// generation it evaluates, checks stagnation, runs the optional SDS pass,
// then selects/crossovers/mutates and migrates via Manager.Advance. Selection/crossover/mutation
// themselves live in separate files; Driver only owns the loop around them.
type Driver struct {
	logger     *zap.Logger
	manager    *Manager
	evaluator  *evaluator.Evaluator
	genCfg     genetic.Config
	stagnation *genetic.StagnationTracker
	metrics    *ga_metrics.Registry
}

// NewDriver builds a Driver. metrics may be nil to disable Prometheus
// reporting entirely (a one-shot CLI run has no scrape target).
func NewDriver(logger *zap.Logger, manager *Manager, eval *evaluator.Evaluator, genCfg genetic.Config, metrics *ga_metrics.Registry) *Driver {
	return &Driver{
		logger:     logger,
		manager:    manager,
		evaluator:  eval,
		genCfg:     genCfg,
		stagnation: genetic.NewStagnationTracker(genCfg),
		metrics:    metrics,
	}
}

// GenerationProgress is what Run reports to its caller after each
// generation: the same best/median/worst/stagnated tuple ga_metrics
// records, so a CLI's --verbose flag and the websocket status server
// can both subscribe to the identical shape.
type GenerationProgress struct {
	Generation int
	Best       float64
	Median     float64
	Worst      float64
	Stagnated  bool
}

// Run seeds the islands and evolves them for up to genCfg.MaxGenerations
// generations, or until ctx is cancelled. onProgress, if non-nil, is
// called once per completed generation with a GenerationProgress passed by
// value, so retaining it is safe.
func (d *Driver) Run(ctx context.Context, rng *rand.Rand, onProgress func(GenerationProgress)) (genetic.Population, error) {
	if err := d.manager.Seed(rng); err != nil {
		return nil, newError("Run", "seeding islands: %v", err)
	}

	maxGen := d.genCfg.MaxGenerations
	if maxGen <= 0 {
		maxGen = 1
	}

	for gen := 0; gen < maxGen; gen++ {
		if err := ctx.Err(); err != nil {
			return d.finalPopulation(), nil
		}

		for i, pop := range d.manager.Islands() {
			if err := d.evaluator.EvaluatePopulation(ctx, pop); err != nil {
				return nil, newError("Run", "evaluating island %d generation %d: %v", i, gen, err)
			}
			if d.metrics != nil {
				d.metrics.ObservePoolStats(d.evaluator.PoolStats())
			}
		}

		best, median, worst := combinedStats(d.manager.Islands())
		stagnated := d.stagnation.Observe(best)
		if d.metrics != nil {
			d.metrics.ObserveGeneration(gen, best, median, worst, stagnated)
		}
		if onProgress != nil {
			onProgress(GenerationProgress{Generation: gen, Best: best, Median: median, Worst: worst, Stagnated: stagnated})
		}

		if stagnated {
			d.logger.Info("stagnation window elapsed", zap.Int("generation", gen), zap.Float64("best_fitness", best))
			if d.genCfg.RestartOnStagnation {
				d.restartWorstHalf(rng)
			}
			d.stagnation.Reset()
		}

		if d.cfg().EnableSDS {
			if err := d.manager.SDSPass(rng, d.partialScore, d.reevaluate(ctx)); err != nil {
				return nil, newError("Run", "SDS pass at generation %d: %v", gen, err)
			}
		}

		d.manager.Advance(rng, gen)
	}

	return d.finalPopulation(), nil
}

// cfg exposes the Manager's islands.Config without widening Driver's own
// surface; Manager already owns it and there's no reason to duplicate it.
func (d *Driver) cfg() Config { return d.manager.cfg }

// partialScore implements islands.PartialScoreFunc using the candidate's
// already-computed overall fitness.
func (d *Driver) partialScore(ind *genetic.Individual) float64 {
	if !ind.HasFitness {
		return 0
	}
	return ind.Fitness
}

// reevaluate implements islands.ReevaluateFunc by forcing one individual
// back through the evaluator, bypassing the "skip already-scored"
// shortcut EvaluatePopulation normally takes.
func (d *Driver) reevaluate(ctx context.Context) ReevaluateFunc {
	return func(ind *genetic.Individual) (float64, error) {
		ind.HasFitness = false
		if err := d.evaluator.EvaluatePopulation(ctx, genetic.Population{ind}); err != nil {
			return 0, err
		}
		return ind.Fitness, nil
	}
}

// restartWorstHalf replaces the bottom half of every island (outside its
// elites) with fresh candidates: the restart side of the stagnation
// handling RestartOnStagnation enables.
func (d *Driver) restartWorstHalf(rng *rand.Rand) {
	builder := d.manager.Builder()
	for i, pop := range d.manager.Islands() {
		sorted := genetic.SortByFitnessDescending(pop)
		half := len(sorted) / 2
		if half <= d.genCfg.ElitismCount {
			continue
		}
		for j := half; j < len(sorted); j++ {
			fresh, err := builder.Build(rng)
			if err != nil {
				continue
			}
			sorted[j] = &genetic.Individual{Candidate: fresh}
		}
		d.manager.SetIsland(i, sorted)
	}
}

// finalPopulation flattens every island into one fitness-sorted
// population: the final ranked set of candidates the search produces.
func (d *Driver) finalPopulation() genetic.Population {
	var all genetic.Population
	for _, pop := range d.manager.Islands() {
		all = append(all, pop...)
	}
	return genetic.SortByFitnessDescending(all)
}

// combinedStats computes best/median/worst fitness across every island's
// population combined, the cross-island view a progress display needs
// (each island's own spread is an internal evolutionary-pressure detail,
// not something a caller running "evolve me a strategy" needs to see per
// island).
func combinedStats(pops []genetic.Population) (best, median, worst float64) {
	var values []float64
	for _, pop := range pops {
		for _, ind := range pop {
			if ind.HasFitness {
				values = append(values, ind.Fitness)
			}
		}
	}
	if len(values) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(values)
	best = values[len(values)-1]
	worst = values[0]
	mid := len(values) / 2
	if len(values)%2 == 0 {
		median = (values[mid-1] + values[mid]) / 2
	} else {
		median = values[mid]
	}
	return best, median, worst
}
