// Package generators builds the candidate callbacks the optimisers take:
// samplers over a bounded box, Gaussian neighbourhoods and mutations, and
// annealing schedules.
package generators

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// Bounds holds [min, max] for each dimension.
type Bounds [][2]float64

// Validate checks that every range is finite and ordered.
func (b Bounds) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("bounds are required")
	}
	for i, r := range b {
		if math.IsNaN(r[0]) || math.IsNaN(r[1]) || math.IsInf(r[0], 0) || math.IsInf(r[1], 0) {
			return fmt.Errorf("bound %d is not finite: %v", i, r)
		}
		if r[0] > r[1] {
			return fmt.Errorf("bound %d has min %v above max %v", i, r[0], r[1])
		}
	}
	return nil
}

// Clamp limits x to the box in place and returns it.
func (b Bounds) Clamp(x []float64) []float64 {
	for i := range x {
		if i >= len(b) {
			break
		}
		x[i] = math.Max(b[i][0], math.Min(x[i], b[i][1]))
	}
	return x
}

// UniformGuess draws each coordinate uniformly from its range.
func UniformGuess(bounds Bounds, src rand.Source) optimization.GuessFunc {
	dists := make([]distuv.Uniform, len(bounds))
	for i, r := range bounds {
		dists[i] = distuv.Uniform{Min: r[0], Max: r[1], Src: src}
	}
	return func() []float64 {
		x := make([]float64, len(dists))
		for i, d := range dists {
			if d.Min == d.Max {
				x[i] = d.Min
				continue
			}
			x[i] = d.Rand()
		}
		return x
	}
}

// UniformSample is UniformGuess typed as a whole-space sampler.
func UniformSample(bounds Bounds, src rand.Source) optimization.SampleFunc {
	return optimization.SampleFunc(UniformGuess(bounds, src))
}

// LatinHypercube draws n points so that each dimension's range, cut into
// n equal strata, has exactly one point per stratum.
func LatinHypercube(bounds Bounds, n int, src rand.Source) [][]float64 {
	rng := rand.New(src)
	points := make([][]float64, n)
	for j := range points {
		points[j] = make([]float64, len(bounds))
	}
	strata := make([]int, n)
	for i, r := range bounds {
		for j := range strata {
			strata[j] = j
		}
		rng.Shuffle(n, func(a, b int) { strata[a], strata[b] = strata[b], strata[a] })
		for j, s := range strata {
			u := (float64(s) + rng.Float64()) / float64(n)
			points[j][i] = r[0] + u*(r[1]-r[0])
		}
	}
	return points
}

// GaussianNeighbour perturbs every coordinate with N(0, sigma^2) noise. A
// non-nil bounds keeps the neighbour inside the box.
func GaussianNeighbour(sigma float64, bounds Bounds, src rand.Source) optimization.NeighbourFunc {
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	return func(x []float64) []float64 {
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = v + noise.Rand()
		}
		if bounds != nil {
			bounds.Clamp(out)
		}
		return out
	}
}

// GaussianMutation perturbs each coordinate with probability rate by
// N(0, sigma^2) noise. It mutates and returns its argument.
func GaussianMutation(sigma, rate float64, bounds Bounds, src rand.Source) optimization.MutationFunc {
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	flip := distuv.Bernoulli{P: rate, Src: src}
	return func(x []float64) []float64 {
		for i := range x {
			if flip.Rand() == 1 {
				x[i] += noise.Rand()
			}
		}
		if bounds != nil {
			bounds.Clamp(x)
		}
		return x
	}
}
