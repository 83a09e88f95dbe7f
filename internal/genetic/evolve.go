package genetic

import (
	"math/rand"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
)

// Dedupe collapses duplicate structural signatures within pop").
// Replaced individuals have their Fitness reset to zero/unevaluated, since
// their candidate changed and the old score no longer describes them; the
// evaluator scores them properly next generation.
func Dedupe(rng *rand.Rand, pop Population, builder *discovery.Builder) {
	groups := map[string][]int{}
	for i, ind := range pop {
		groups[ind.Candidate.Signature] = append(groups[ind.Candidate.Signature], i)
	}
	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		best := idxs[0]
		for _, i := range idxs[1:] {
			if fitnessOf(pop[i]) > fitnessOf(pop[best]) {
				best = i
			}
		}
		for _, i := range idxs {
			if i == best {
				continue
			}
			if fresh, err := builder.Build(rng); err == nil {
				pop[i].Candidate = fresh
			}
			pop[i].Fitness = 0
			pop[i].HasFitness = false
		}
	}
}

// StagnationTracker tracks best-fitness-per-generation, and if it hasn't
// improved by >= Epsilon over Window generations, reports a trigger.
type StagnationTracker struct {
	Window  int
	Epsilon float64

	best    float64
	seeded  bool
	stalled int
}

// NewStagnationTracker builds a tracker from a genetic Config's stagnation
// fields.
func NewStagnationTracker(cfg Config) *StagnationTracker {
	return &StagnationTracker{Window: cfg.StagnationWindow, Epsilon: cfg.StagnationEpsilon}
}

// Observe records this generation's best fitness and reports whether the
// stagnation window has elapsed without sufficient improvement. Callers
// that get a true back should either trigger a restart or call Reset;
// both are config options.
func (t *StagnationTracker) Observe(bestFitness float64) (stagnated bool) {
	if !t.seeded {
		t.best = bestFitness
		t.seeded = true
		return false
	}
	if bestFitness-t.best >= t.Epsilon {
		t.best = bestFitness
		t.stalled = 0
		return false
	}
	t.stalled++
	if t.Window <= 0 {
		return false
	}
	return t.stalled >= t.Window
}

// Reset clears the stalled-generations counter without forgetting the best
// fitness seen so far.
func (t *StagnationTracker) Reset() { t.stalled = 0 }

// BestFitness returns the current best the tracker has observed.
func (t *StagnationTracker) BestFitness() float64 { return t.best }

// injectFreshBlood replaces the worst n non-elite individuals in pop with
// freshly built candidates.
func injectFreshBlood(rng *rand.Rand, pop Population, builder *discovery.Builder, eliteCount, n int) {
	if n <= 0 {
		return
	}
	sorted := SortByFitnessDescending(pop)
	worstStart := len(sorted) - n
	if worstStart < eliteCount {
		worstStart = eliteCount
	}
	replace := map[*Individual]bool{}
	for i := worstStart; i < len(sorted); i++ {
		replace[sorted[i]] = true
	}
	for i, ind := range pop {
		if !replace[ind] {
			continue
		}
		fresh, err := builder.Build(rng)
		if err != nil {
			continue
		}
		pop[i] = &Individual{Candidate: fresh}
	}
}

// Evolve advances an evaluated population (every individual must already
// carry its Fitness from internal/evaluator) to the next, unevaluated
// generation: dedup, elitism, tournament selection with crossover/mutation
// filling the rest, then a periodic fresh-blood pass. The
// returned population always has exactly len(pop) individuals (the "GA
// population invariant": |population| = population_size before and after
// each generation).
func Evolve(rng *rand.Rand, pop Population, builder *discovery.Builder, dcfg discovery.Config, cfg Config, generation int) Population {
	if cfg.DetectDuplicates {
		Dedupe(rng, pop, builder)
	}

	next := make(Population, 0, len(pop))
	next = append(next, Elites(pop, cfg.ElitismCount)...)

	for len(next) < len(pop) {
		p1 := TournamentSelect(rng, pop, cfg.TournamentSize)
		p2 := TournamentSelect(rng, pop, cfg.TournamentSize)

		var child1, child2 *discovery.Candidate
		if rng.Float64() < cfg.CrossoverRate {
			child1, child2 = CrossoverPair(rng, p1, p2, dcfg, cfg)
		} else {
			// Selected but unchanged.
			child1, child2 = p1.Candidate.Clone(), p2.Candidate.Clone()
		}

		child1 = Mutate(rng, child1, builder, dcfg, cfg)
		next = append(next, &Individual{Candidate: child1})
		if len(next) < len(pop) {
			child2 = Mutate(rng, child2, builder, dcfg, cfg)
			next = append(next, &Individual{Candidate: child2})
		}
	}

	if cfg.FreshBloodInterval > 0 && cfg.FreshBloodRate > 0 && generation > 0 && generation%cfg.FreshBloodInterval == 0 {
		n := int(cfg.FreshBloodRate * float64(len(next)))
		injectFreshBlood(rng, next, builder, cfg.ElitismCount, n)
	}

	return next
}
