package islands_test

import (
	"math/rand"
	"testing"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/genetic"
	"github.com/atlas-desktop/strategyforge/internal/islands"
)

func newManager(t *testing.T, populationSize, islandsCount int) (*islands.Manager, *rand.Rand) {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	dcfg := discovery.DefaultConfig()
	builder := discovery.NewBuilder(dcfg)
	genCfg := genetic.DefaultConfig()
	genCfg.PopulationSize = populationSize

	icfg := islands.DefaultConfig()
	icfg.IslandsCount = islandsCount
	icfg.MigrationInterval = 2
	icfg.MigrationRate = 0.25

	m := islands.NewManager(icfg, genCfg, dcfg, builder)
	if err := m.Seed(rng); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return m, rng
}

func scoreIsland(pop genetic.Population, rng *rand.Rand) {
	for _, ind := range pop {
		ind.Fitness = rng.Float64()
		ind.HasFitness = true
	}
}

func TestSeedProducesConfiguredIslandsAndSizes(t *testing.T) {
	m, _ := newManager(t, 12, 3)
	islandsList := m.Islands()
	if len(islandsList) != 3 {
		t.Fatalf("expected 3 islands, got %d", len(islandsList))
	}
	for i, pop := range islandsList {
		if len(pop) != 12 {
			t.Fatalf("island %d: expected population size 12, got %d", i, len(pop))
		}
	}
}

func TestAdvancePreservesPerIslandPopulationSize(t *testing.T) {
	m, rng := newManager(t, 10, 3)
	for _, pop := range m.Islands() {
		scoreIsland(pop, rng)
	}
	m.Advance(rng, 1)
	for i, pop := range m.Islands() {
		if len(pop) != 10 {
			t.Fatalf("island %d: expected population size 10 after Advance, got %d", i, len(pop))
		}
	}
}

func TestMigrateCopiesTopIndividualsAroundTheRing(t *testing.T) {
	m, _ := newManager(t, 10, 3)
	islandsList := m.Islands()
	for i, pop := range islandsList {
		for _, ind := range pop {
			ind.Fitness = float64(i) // island i's individuals all score i; island 0 worst, island 2 best
			ind.HasFitness = true
		}
	}

	m.Migrate()

	// Island 1 should now contain some migrants from island 0 (fitness 0)
	// displacing island 1's own worst (fitness 1) individuals.
	island1 := m.Islands()[1]
	foundMigrant := false
	for _, ind := range island1 {
		if ind.Fitness == 0 {
			foundMigrant = true
		}
	}
	if !foundMigrant {
		t.Fatal("expected island 1 to receive a migrant from island 0")
	}
}

func TestSDSPassDisabledByDefaultIsNoOp(t *testing.T) {
	m, rng := newManager(t, 10, 2)
	for _, pop := range m.Islands() {
		scoreIsland(pop, rng)
	}
	before := make([]string, 0)
	for _, pop := range m.Islands() {
		for _, ind := range pop {
			before = append(before, ind.Candidate.Signature)
		}
	}

	err := m.SDSPass(rng,
		func(ind *genetic.Individual) float64 { return 1 },
		func(ind *genetic.Individual) (float64, error) { return 1, nil },
	)
	if err != nil {
		t.Fatalf("SDSPass: %v", err)
	}

	after := make([]string, 0)
	for _, pop := range m.Islands() {
		for _, ind := range pop {
			after = append(after, ind.Candidate.Signature)
		}
	}
	if len(before) != len(after) {
		t.Fatalf("population shrank/grew: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("disabled SDS pass changed signature at index %d", i)
		}
	}
}
