package genetic_test

import (
	"math/rand"
	"testing"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/genetic"
)

func seedPopulation(t *testing.T, rng *rand.Rand, builder *discovery.Builder, size int) genetic.Population {
	t.Helper()
	pop, err := genetic.NewPopulation(size, func() (*discovery.Candidate, error) { return builder.Build(rng) })
	if err != nil {
		t.Fatalf("NewPopulation: %v", err)
	}
	return pop
}

func scoreAll(pop genetic.Population, rng *rand.Rand) {
	for _, ind := range pop {
		ind.Fitness = rng.Float64()
		ind.HasFitness = true
	}
}

func TestTournamentSelectPrefersFitterIndividual(t *testing.T) {
	pop := genetic.Population{
		{Fitness: 0.1, HasFitness: true},
		{Fitness: 0.9, HasFitness: true},
	}
	rng := rand.New(rand.NewSource(1))
	wins := 0
	for i := 0; i < 100; i++ {
		if genetic.TournamentSelect(rng, pop, 2).Fitness == 0.9 {
			wins++
		}
	}
	// Two draws with replacement: the fitter individual wins unless both
	// draws pick the weaker one, i.e. 3/4 of the time.
	if wins < 70 {
		t.Fatalf("expected the fitter individual to win most tournaments, got %d/100", wins)
	}
}

func TestElitesCarryThroughUnchanged(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	builder := discovery.NewBuilder(discovery.DefaultConfig())
	pop := seedPopulation(t, rng, builder, 10)
	scoreAll(pop, rng)

	elites := genetic.Elites(pop, 3)
	if len(elites) != 3 {
		t.Fatalf("expected 3 elites, got %d", len(elites))
	}
	sorted := genetic.SortByFitnessDescending(pop)
	for i, e := range elites {
		if e.Fitness != sorted[i].Fitness {
			t.Fatalf("elite %d fitness %v does not match sorted population's %v", i, e.Fitness, sorted[i].Fitness)
		}
		if e.Candidate == sorted[i].Candidate {
			t.Fatalf("elite %d aliases the source population's candidate pointer", i)
		}
	}
}

func TestCrossoverPairProducesStructurallyValidChildren(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	dcfg := discovery.DefaultConfig()
	builder := discovery.NewBuilder(dcfg)
	cfg := genetic.DefaultConfig()

	pop := seedPopulation(t, rng, builder, 20)
	scoreAll(pop, rng)

	for i := 0; i < 30; i++ {
		p1 := genetic.TournamentSelect(rng, pop, cfg.TournamentSize)
		p2 := genetic.TournamentSelect(rng, pop, cfg.TournamentSize)
		c1, c2 := genetic.CrossoverPair(rng, p1, p2, dcfg, cfg)
		for _, c := range []*discovery.Candidate{c1, c2} {
			if c == nil || c.Definition == nil {
				t.Fatalf("crossover %d: nil child", i)
			}
			if err := discovery.ValidateDefinition(c.Definition, dcfg); err != nil {
				t.Fatalf("crossover %d: invalid child: %v", i, err)
			}
		}
	}
}

func TestMutateNeverProducesStructurallyInvalidCandidate(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	dcfg := discovery.DefaultConfig()
	builder := discovery.NewBuilder(dcfg)
	cfg := genetic.DefaultConfig()
	cfg.MutationRate = 1.0 // force every group to attempt mutation

	for i := 0; i < 40; i++ {
		cand, err := builder.Build(rng)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		mutated := genetic.Mutate(rng, cand, builder, dcfg, cfg)
		if err := discovery.ValidateDefinition(mutated.Definition, dcfg); err != nil {
			t.Fatalf("mutation %d produced invalid candidate: %v", i, err)
		}
	}
}

func TestEvolvePreservesPopulationSize(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	dcfg := discovery.DefaultConfig()
	builder := discovery.NewBuilder(dcfg)
	cfg := genetic.DefaultConfig()
	cfg.PopulationSize = 20

	pop := seedPopulation(t, rng, builder, cfg.PopulationSize)
	scoreAll(pop, rng)

	next := genetic.Evolve(rng, pop, builder, dcfg, cfg, 1)
	if len(next) != len(pop) {
		t.Fatalf("expected population size to stay %d, got %d", len(pop), len(next))
	}
}

func TestEvolveNoCrossoverNoMutationLeavesNonEliteUnchanged(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	dcfg := discovery.DefaultConfig()
	builder := discovery.NewBuilder(dcfg)
	cfg := genetic.DefaultConfig()
	cfg.PopulationSize = 20
	cfg.ElitismCount = 3
	cfg.CrossoverRate = 0
	cfg.MutationRate = 0
	cfg.DetectDuplicates = false
	cfg.FreshBloodInterval = 0

	pop := seedPopulation(t, rng, builder, cfg.PopulationSize)
	scoreAll(pop, rng)

	prior := map[string]bool{}
	for _, ind := range pop {
		prior[ind.Candidate.Signature] = true
	}

	next := genetic.Evolve(rng, pop, builder, dcfg, cfg, 1)
	if len(next) != cfg.PopulationSize {
		t.Fatalf("expected %d individuals, got %d", cfg.PopulationSize, len(next))
	}
	for i, ind := range next {
		if !prior[ind.Candidate.Signature] {
			t.Fatalf("individual %d (signature %q) was not present in the prior generation", i, ind.Candidate.Signature)
		}
	}
}

func TestDedupeCollapsesIdenticalSignatures(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	builder := discovery.NewBuilder(discovery.DefaultConfig())
	cand, err := builder.Build(rng)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pop := genetic.Population{
		{Candidate: cand.Clone(), Fitness: 0.5, HasFitness: true},
		{Candidate: cand.Clone(), Fitness: 0.9, HasFitness: true},
		{Candidate: cand.Clone(), Fitness: 0.2, HasFitness: true},
	}

	genetic.Dedupe(rng, pop, builder)

	survivors := 0
	for _, ind := range pop {
		if ind.Candidate.Signature == cand.Signature && ind.HasFitness {
			survivors++
		}
	}
	if survivors != 1 {
		t.Fatalf("expected exactly 1 individual to keep the duplicated signature, got %d", survivors)
	}
}

func TestStagnationTrackerTriggersAfterWindow(t *testing.T) {
	tracker := genetic.NewStagnationTracker(genetic.Config{StagnationWindow: 3, StagnationEpsilon: 0.01})

	if tracker.Observe(1.0) {
		t.Fatal("first observation must not trigger stagnation")
	}
	var triggered bool
	for i := 0; i < 3; i++ {
		triggered = tracker.Observe(1.0) // no improvement
	}
	if !triggered {
		t.Fatal("expected stagnation to trigger after the window elapsed without improvement")
	}
}

func TestStagnationTrackerResetsOnImprovement(t *testing.T) {
	tracker := genetic.NewStagnationTracker(genetic.Config{StagnationWindow: 2, StagnationEpsilon: 0.01})
	tracker.Observe(1.0)
	tracker.Observe(1.0) // stalled = 1
	if tracker.Observe(1.2) {
		t.Fatal("improvement should reset the stall counter, not trigger")
	}
	if tracker.Observe(1.2) {
		t.Fatal("expected one more stalled generation before the window re-elapses")
	}
}
