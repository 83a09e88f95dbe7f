// Package genetic implements the selection, hybrid structural crossover,
// structural mutation, elitism, deduplication and stagnation tracking of the
// genetic algorithm core. It operates entirely on
// pkg/strategydef.StrategyDefinition values built and validated through
// internal/discovery's Builder and structural-rule engine; nothing here
// runs a backtest or assigns fitness, that is internal/evaluator's job.
package genetic

import "github.com/atlas-desktop/strategyforge/internal/discovery"

// Config is the genetic algorithm's tunable knobs, minus the
// islands/migration/SDS fields internal/islands owns.
type Config struct {
	PopulationSize int
	MaxGenerations int

	CrossoverRate  float64
	MutationRate   float64
	ElitismCount   int
	TournamentSize int

	FreshBloodInterval int     // generations between fresh-blood passes; 0 disables
	FreshBloodRate     float64 // fraction of the non-elite tail replaced

	DetectDuplicates bool

	// RestartOnStagnation and the window/epsilon below implement "Stagnation
	// & restart": if best fitness hasn't improved by >=
	// StagnationEpsilon over StagnationWindow generations, StagnationTracker
	// reports a restart trigger (if RestartOnStagnation) or just resets.
	RestartOnStagnation bool
	StagnationWindow    int
	StagnationEpsilon   float64

	// MinEntryConditions is the floor crossover/mutation enforce by borrowing
	// conditions from either parent rather than ever emitting an empty entry
	// rule.
	MinEntryConditions int

	// WeightedCrossoverGapThreshold is the relative fitness-gap cutoff
	// above which crossover switches from uniform
	// 50/50 inclusion to fitness-weighted inclusion.
	WeightedCrossoverGapThreshold float64
}

// DefaultConfig returns the genetic algorithm's default knob values.
func DefaultConfig() Config {
	return Config{
		PopulationSize:                50,
		MaxGenerations:                100,
		CrossoverRate:                 0.7,
		MutationRate:                  0.2,
		ElitismCount:                  2,
		TournamentSize:                4,
		FreshBloodInterval:            10,
		FreshBloodRate:                0.1,
		DetectDuplicates:              true,
		RestartOnStagnation:           false,
		StagnationWindow:              15,
		StagnationEpsilon:             0.001,
		MinEntryConditions:            1,
		WeightedCrossoverGapThreshold: 0.15,
	}
}

// Individual pairs a candidate with the fitness the evaluator assigned it.
// HasFitness distinguishes "evaluated to exactly zero" from "not yet
// evaluated this generation"; TournamentSelect and elitism both need that
// distinction.
type Individual struct {
	Candidate  *discovery.Candidate
	Fitness    float64
	HasFitness bool
}

// Clone deep-copies the individual's candidate; Fitness/HasFitness carry
// over unchanged (a clone still describes the same evaluated strategy until
// something mutates its candidate).
func (ind *Individual) Clone() *Individual {
	return &Individual{Candidate: ind.Candidate.Clone(), Fitness: ind.Fitness, HasFitness: ind.HasFitness}
}

// Population is one generation: population_size individuals, order
// otherwise unspecified.
type Population []*Individual

// NewPopulation builds an initial population of freshly built, unevaluated
// candidates by calling draw size
// times; draw is ordinarily builder.Build bound to a *rand.Rand.
func NewPopulation(size int, draw func() (*discovery.Candidate, error)) (Population, error) {
	pop := make(Population, 0, size)
	for i := 0; i < size; i++ {
		cand, err := draw()
		if err != nil {
			return nil, newError("NewPopulation", "building candidate %d: %v", i, err)
		}
		pop = append(pop, &Individual{Candidate: cand})
	}
	return pop, nil
}
