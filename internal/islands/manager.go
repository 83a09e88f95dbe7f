package islands

import (
	"math/rand"

	"github.com/atlas-desktop/strategyforge/internal/discovery"
	"github.com/atlas-desktop/strategyforge/internal/genetic"
)

// Manager owns Config.IslandsCount independent genetic.Population values and
// advances them through generations, applying ring-topology migration and
// (optionally) an SDS pass on the configured cadence.
type Manager struct {
	cfg     Config
	genCfg  genetic.Config
	dcfg    discovery.Config
	builder *discovery.Builder

	populations []genetic.Population
}

// NewManager builds a Manager. Call Seed before the first Advance.
func NewManager(cfg Config, genCfg genetic.Config, dcfg discovery.Config, builder *discovery.Builder) *Manager {
	return &Manager{cfg: cfg, genCfg: genCfg, dcfg: dcfg, builder: builder}
}

// Seed builds IslandsCount fresh populations of PopulationSize unevaluated
// candidates each.
func (m *Manager) Seed(rng *rand.Rand) error {
	n := m.cfg.IslandsCount
	if n < 1 {
		n = 1
	}
	m.populations = make([]genetic.Population, n)
	for i := 0; i < n; i++ {
		pop, err := genetic.NewPopulation(m.genCfg.PopulationSize, func() (*discovery.Candidate, error) { return m.builder.Build(rng) })
		if err != nil {
			return newError("Seed", "island %d: %v", i, err)
		}
		m.populations[i] = pop
	}
	return nil
}

// Builder returns the candidate builder the Manager seeds and mutates
// islands with, for a caller (the Driver's stagnation-restart path) that
// needs to draw fresh candidates using the same discovery.Config.
func (m *Manager) Builder() *discovery.Builder { return m.builder }

// Islands returns the current per-island populations. Every individual in
// every island must be evaluated (Fitness/HasFitness set) by the caller's
// evaluator before Advance is called for that generation.
func (m *Manager) Islands() []genetic.Population { return m.populations }

// SetIsland replaces one island's population, for a caller that evaluates
// islands out-of-process and writes the scored population back.
func (m *Manager) SetIsland(i int, pop genetic.Population) { m.populations[i] = pop }

// Advance evolves every island independently one generation, then applies
// migration on its configured cadence. The SDS pass is not run here; the
// Driver calls SDSPass itself.
func (m *Manager) Advance(rng *rand.Rand, generation int) {
	for i, pop := range m.populations {
		m.populations[i] = genetic.Evolve(rng, pop, m.builder, m.dcfg, m.genCfg, generation)
	}

	if m.cfg.MigrationInterval > 0 && generation > 0 && generation%m.cfg.MigrationInterval == 0 {
		m.Migrate()
	}
}

// Migrate copies a MigrationRate fraction of each island's top individuals
// to its neighbor in a ring, overwriting that neighbor's worst individuals
//"). Migration is computed from a snapshot of all
// islands' current top performers before any island is mutated, so a
// migration round is simultaneous rather than cascading around the ring.
func (m *Manager) Migrate() {
	n := len(m.populations)
	if n < 2 || m.cfg.MigrationRate <= 0 {
		return
	}

	migrantCount := func(size int) int {
		k := int(m.cfg.MigrationRate * float64(size))
		if k < 1 {
			k = 1
		}
		if k > size {
			k = size
		}
		return k
	}

	migrants := make([]genetic.Population, n)
	for i, pop := range m.populations {
		size := migrantCount(len(pop))
		sorted := genetic.SortByFitnessDescending(pop)
		top := make(genetic.Population, size)
		for j := 0; j < size; j++ {
			top[j] = sorted[j].Clone()
		}
		migrants[i] = top
	}

	for i := 0; i < n; i++ {
		neighbor := (i + 1) % n
		dest := m.populations[neighbor]
		sorted := genetic.SortByFitnessDescending(dest)
		incoming := migrants[i]
		cut := len(sorted) - len(incoming)
		if cut < 0 {
			cut = 0
			incoming = incoming[:len(sorted)]
		}
		next := append(genetic.Population{}, sorted[:cut]...)
		next = append(next, incoming...)
		m.populations[neighbor] = next
	}
}
