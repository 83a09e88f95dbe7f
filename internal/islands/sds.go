package islands

import (
	"math/rand"

	"github.com/atlas-desktop/strategyforge/internal/genetic"
)

// PartialScoreFunc computes a cheap activation test for one individual: a
// combination of sharpe, pf, win-rate, profit drawn from its
// already-evaluated backtest report, without running a fresh backtest. The
// scoring logic is supplied by the caller; Driver.partialScore uses the
// individual's already-computed overall fitness.
type PartialScoreFunc func(ind *genetic.Individual) float64

// ReevaluateFunc re-scores a candidate with a full evaluation, returning its
// fitness. Used to decide whether an adopted hypothesis actually improved.
type ReevaluateFunc func(ind *genetic.Individual) (float64, error)

// SDSPass runs one Stochastic Diffusion Search hypothesis-sharing round
// over every island: individuals whose
// partial score exceeds SDSTestThreshold are "active" and keep their own
// hypothesis; inactive individuals copy a random active agent's
// hypothesis; within each cluster of active agents sharing an identical
// structural signature, the best-fitness agent's hypothesis replaces the
// others'; finally, every hypothesis that changed is re-evaluated and kept
// only if it improved fitness.
func (m *Manager) SDSPass(rng *rand.Rand, score PartialScoreFunc, reevaluate ReevaluateFunc) error {
	if !m.cfg.EnableSDS {
		return nil
	}
	for _, pop := range m.populations {
		if err := sdsPassOnPopulation(rng, pop, m.cfg.SDSTestThreshold, score, reevaluate); err != nil {
			return err
		}
	}
	return nil
}

func sdsPassOnPopulation(rng *rand.Rand, pop genetic.Population, threshold float64, score PartialScoreFunc, reevaluate ReevaluateFunc) error {
	var active []int
	for i, ind := range pop {
		if score(ind) > threshold {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return nil
	}

	changed := map[int]*genetic.Individual{}

	for i, ind := range pop {
		if contains(active, i) {
			continue
		}
		src := pop[active[rng.Intn(len(active))]]
		before := ind.Candidate.Signature
		candidate := src.Candidate.Clone()
		if candidate.Signature == before {
			continue
		}
		changed[i] = &genetic.Individual{Candidate: candidate}
	}

	clusters := map[string][]int{}
	for _, i := range active {
		clusters[pop[i].Candidate.Signature] = append(clusters[pop[i].Candidate.Signature], i)
	}
	for _, idxs := range clusters {
		if len(idxs) < 2 {
			continue
		}
		best := idxs[0]
		for _, i := range idxs[1:] {
			if fitnessValue(pop[i]) > fitnessValue(pop[best]) {
				best = i
			}
		}
		for _, i := range idxs {
			if i == best {
				continue
			}
			changed[i] = &genetic.Individual{Candidate: pop[best].Candidate.Clone()}
		}
	}

	for i, replacement := range changed {
		fitness, err := reevaluate(replacement)
		if err != nil {
			return newError("SDSPass", "re-evaluating adopted hypothesis for agent %d: %v", i, err)
		}
		if fitness > fitnessValue(pop[i]) {
			replacement.Fitness = fitness
			replacement.HasFitness = true
			pop[i] = replacement
		}
	}
	return nil
}

func fitnessValue(ind *genetic.Individual) float64 {
	if !ind.HasFitness {
		return -1
	}
	return ind.Fitness
}

func contains(idxs []int, target int) bool {
	for _, i := range idxs {
		if i == target {
			return true
		}
	}
	return false
}
