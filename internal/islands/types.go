// Package islands implements the multi-island evolution driver:
// islands_count independent sub-populations advanced through
// internal/genetic.Evolve, with periodic ring-topology migration and an
// optional Stochastic Diffusion Search hypothesis-sharing pass.
package islands

// Config is the islands/migration/SDS knobs layered on top of a genetic
// Config.
type Config struct {
	IslandsCount      int
	MigrationInterval int // generations between migration passes; 0 disables
	MigrationRate     float64

	EnableSDS        bool
	SDSTestThreshold float64 // partial-evaluation activation cutoff
}

// DefaultConfig returns the islands driver's default knob values.
func DefaultConfig() Config {
	return Config{
		IslandsCount:      4,
		MigrationInterval: 5,
		MigrationRate:     0.1,
		EnableSDS:         false,
		SDSTestThreshold:  0.5,
	}
}
