// Package attractor simulates a chaotic three-dimensional attractor whose
// x coordinate is disturbed by tiny sensor noise. A corrector removes the
// noise step by step; how well it does shows up as the distance between
// the corrected and the undisturbed trajectory.
package attractor

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

const (
	// Channels is the number of noise sources added to x each step.
	Channels = 40
	// DropoutAfter is the first step at which non-positive noise readings
	// are lost and reported as NaN.
	DropoutAfter = 100

	dropoutFloor = 1e-48
	sizeSeed     = 2018
)

// Vec3 is a point (x, y, z).
type Vec3 [3]float64

// Start is the initial point of every Run.
var Start = Vec3{0.5, 0.25, -0.25}

// Corrector maps a disturbed x and that step's noise readings to a
// corrected x. Readings may be NaN.
type Corrector func(x float64, noise []float64) float64

// Simulator integrates the attractor with forward Euler steps.
type Simulator struct {
	DT      float64
	P, S, B float64
	// Sizes scales each noise channel.
	Sizes []float64
}

// NewSimulator returns the attractor with channel sizes
// exp(U(-18, 4)) * scale drawn from a fixed seed. The classic demo uses a
// scale of 1e-16.
func NewSimulator(scale float64) *Simulator {
	u := distuv.Uniform{Min: -18, Max: 4, Src: rand.NewPCG(sizeSeed, sizeSeed)}
	sizes := make([]float64, Channels)
	for i := range sizes {
		sizes[i] = math.Exp(u.Rand()) * scale
	}
	return &Simulator{DT: 0.01, P: 32, S: 8, B: 8.0 / 3.0, Sizes: sizes}
}

// Noise draws n rows of scaled Gaussian readings. From DropoutAfter on,
// readings below a tiny positive floor are replaced by NaN.
func (s *Simulator) Noise(n int, src rand.Source) *mat.Dense {
	noise := mat.NewDense(n, len(s.Sizes), nil)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	for i := 0; i < n; i++ {
		row := noise.RawRowView(i)
		for k, size := range s.Sizes {
			v := normal.Rand() * size
			if i >= DropoutAfter && v < dropoutFloor {
				v = math.NaN()
			}
			row[k] = v
		}
	}
	return noise
}

// Simulate takes n steps from init and returns the n×3 trajectory. With a
// nil corrector the noise is ignored; otherwise each step adds the finite
// readings of its noise row to x and then applies the corrector; noise
// must then have at least n rows.
func (s *Simulator) Simulate(n int, init Vec3, noise *mat.Dense, corrector Corrector) *mat.Dense {
	path := mat.NewDense(n, 3, nil)
	x, y, z := init[0], init[1], init[2]
	for i := 0; i < n; i++ {
		zn := z + s.DT*(x*y-s.B*z)
		yn := y + s.DT*(x*(s.P-z)-y)
		xn := x + s.DT*(s.S*(y-x))
		x, y, z = xn, yn, zn

		if corrector != nil {
			row := noise.RawRowView(i)
			x += nanSum(row)
			x = corrector(x, row)
		}
		path.Set(i, 0, x)
		path.Set(i, 1, y)
		path.Set(i, 2, z)
	}
	return path
}

// Run simulates n steps from Start twice: once undisturbed and once with
// noise drawn from src and removed by corrector.
func (s *Simulator) Run(n int, corrector Corrector, src rand.Source) (truth, approx *mat.Dense) {
	noise := s.Noise(n, src)
	return s.Simulate(n, Start, noise, nil), s.Simulate(n, Start, noise, corrector)
}

func nanSum(xs []float64) float64 {
	sum := 0.0
	for _, v := range xs {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}

// Divergence is the mean squared distance between two trajectories.
func Divergence(truth, approx *mat.Dense) float64 {
	n, _ := truth.Dims()
	if n == 0 {
		return math.Inf(1)
	}
	var diff mat.Dense
	diff.Sub(approx, truth)
	d := diff.RawMatrix().Data
	return floats.Dot(d, d) / float64(n)
}

// GainCorrector subtracts gain times the finite noise readings and adds
// offset*unit.
func GainCorrector(gain, offset, unit float64) Corrector {
	return func(x float64, noise []float64) float64 {
		return x - gain*nanSum(noise) + offset*unit
	}
}

// TuningConfig describes the run used to score corrector parameters.
type TuningConfig struct {
	Steps int
	// Scale is the noise scale; it is also the unit of the offset.
	Scale float64
	// Seed fixes the noise. Zero selects the default seed.
	Seed uint64
}

// DefaultTuning is ten simulated seconds with noise large enough that an
// uncorrected run leaves the true trajectory.
func DefaultTuning() TuningConfig {
	return TuningConfig{Steps: 1000, Scale: 1e-6, Seed: 2018}
}

// Objective returns a loss over [gain, offset]: the divergence between the
// undisturbed trajectory and one corrected by GainCorrector. [1, 0] undoes
// the noise. The noise and the true trajectory are drawn once, so the loss
// is a pure function of its argument.
func Objective(cfg TuningConfig) optimization.ObjectiveFunction {
	def := DefaultTuning()
	if cfg.Steps < 1 {
		cfg.Steps = def.Steps
	}
	if cfg.Scale <= 0 {
		cfg.Scale = def.Scale
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	sim := NewSimulator(cfg.Scale)
	noise := sim.Noise(cfg.Steps, optimization.NewSource(cfg.Seed))
	truth := sim.Simulate(cfg.Steps, Start, noise, nil)

	return func(theta []float64) (float64, error) {
		if len(theta) != 2 {
			return 0, fmt.Errorf("attractor: corrector needs [gain, offset], got %d values: %w", len(theta), optimization.ErrDimensionMismatch)
		}
		approx := sim.Simulate(cfg.Steps, Start, noise, GainCorrector(theta[0], theta[1], cfg.Scale))
		return Divergence(truth, approx), nil
	}
}
