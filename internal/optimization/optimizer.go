package optimization

import (
	"math/rand/v2"
	"time"
)

// ObjectiveFunction defines the loss to be minimised. Lower is better; a
// non-finite value is never selected as the best candidate.
type ObjectiveFunction func([]float64) (float64, error)

// GradientFunction returns the gradient of the loss at the given candidate.
type GradientFunction func([]float64) []float64

// GuessFunc draws an independent random initial candidate.
type GuessFunc func() []float64

// SampleFunc draws an independent candidate from the whole search space.
type SampleFunc func() []float64

// NeighbourFunc returns a random candidate close to the given one.
type NeighbourFunc func([]float64) []float64

// MutationFunc perturbs a child candidate after crossover.
type MutationFunc func([]float64) []float64

// TemperatureFunc is an annealing schedule indexed by iteration.
type TemperatureFunc func(iteration int) float64

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64
	Value      float64
}

// Algorithm names a search strategy.
type Algorithm string

const (
	GridSearch      Algorithm = "grid"
	HillClimbing    Algorithm = "hill"
	RandomSearch    Algorithm = "random"
	SimulatedAnneal Algorithm = "anneal"
	GeneticSearch   Algorithm = "genetic"
	GradientDescent Algorithm = "gradient"
	Bayesian        Algorithm = "bayes"
)

// Algorithms lists every supported strategy in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{
		GridSearch,
		HillClimbing,
		RandomSearch,
		SimulatedAnneal,
		GeneticSearch,
		GradientDescent,
		Bayesian,
	}
}

// Valid reports whether a names a known strategy.
func (a Algorithm) Valid() bool {
	for _, known := range Algorithms() {
		if a == known {
			return true
		}
	}
	return false
}

// NewSource returns a PCG source for the given seed. A zero seed is
// replaced by the current time so unseeded runs differ.
func NewSource(seed uint64) rand.Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
