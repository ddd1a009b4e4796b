package search

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/acquisition"
	"github.com/copyleftdev/blackbox/internal/optimization/bayesian"
	"github.com/copyleftdev/blackbox/internal/optimization/generators"
	"github.com/copyleftdev/blackbox/internal/optimization/kernels"
)

// Defaults for BayesConfig fields left at zero.
const (
	DefaultLengthScale = 0.2
	DefaultNoiseVar    = 1e-6
	DefaultXi          = 0.01
	DefaultRestarts    = 5
)

// BayesConfig configures BayesSearch.
type BayesConfig struct {
	Bounds generators.Bounds
	// Initial is the size of the Latin hypercube design evaluated before the
	// surrogate takes over.
	Initial int
	// Iterations is the number of surrogate-guided evaluations after it.
	Iterations int
	// Kernel works on coordinates scaled to the unit cube. Nil means
	// Matérn 5/2 with DefaultLengthScale.
	Kernel kernels.Kernel
	// Acquisition nil means expected improvement with DefaultXi.
	Acquisition acquisition.Function
	NoiseVar    float64
	// Restarts is the number of random Nelder-Mead starts, besides the
	// incumbent, used to maximise the acquisition.
	Restarts int
	// Source drives the design and the restarts. Nil means time-seeded.
	Source rand.Source
}

// BayesSearch evaluates a Latin hypercube design, then repeatedly fits a
// Gaussian process to every finite loss seen so far and evaluates the point
// that maximises the acquisition function. Non-finite losses are tracked
// but left out of the fit. When the surrogate cannot be fitted the step
// falls back to a uniform draw.
func BayesSearch(ctx context.Context, L optimization.ObjectiveFunction, cfg BayesConfig) (*optimization.Result, error) {
	const op = "BayesSearch"

	switch {
	case L == nil:
		return nil, invalid(op, "objective is required")
	case cfg.Initial < 1:
		return nil, invalid(op, "initial design must have at least one point, got %d", cfg.Initial)
	case cfg.Iterations < 0:
		return nil, invalid(op, "iterations must not be negative, got %d", cfg.Iterations)
	case cfg.Restarts < 0:
		return nil, invalid(op, "restarts must not be negative, got %d", cfg.Restarts)
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidConfig, "%v", err).
			WithComponent(component).WithOperation(op)
	}

	if cfg.Kernel == nil {
		k, err := kernels.NewMatern52(DefaultLengthScale, 1)
		if err != nil {
			return nil, err
		}
		cfg.Kernel = k
	}
	if cfg.Acquisition == nil {
		cfg.Acquisition = acquisition.NewExpectedImprovement(math.Inf(1), DefaultXi)
	}
	if cfg.NoiseVar == 0 {
		cfg.NoiseVar = DefaultNoiseVar
	}
	if cfg.Restarts == 0 {
		cfg.Restarts = DefaultRestarts
	}
	gp, err := bayesian.NewGP(cfg.Kernel, cfg.NoiseVar)
	if err != nil {
		return nil, err
	}

	src := sourceOrDefault(cfg.Source)
	space := unitSpace(cfg.Bounds)
	b := &bayesStep{gp: gp, acq: cfg.Acquisition, space: space, restarts: cfg.Restarts, rng: rand.New(src)}

	h := optimization.NewHistory()
	observe := func(u []float64) error {
		theta := space.toBounds(u)
		loss, err := evaluate(L, theta)
		if err != nil {
			return err
		}
		h.Track(theta, loss)
		if !math.IsNaN(loss) && !math.IsInf(loss, 0) {
			b.x = append(b.x, slices.Clone(u))
			b.y = append(b.y, loss)
		}
		return nil
	}

	for _, u := range generators.LatinHypercube(space.unit(), cfg.Initial, src) {
		if err := done(ctx); err != nil {
			return nil, err
		}
		if err := observe(u); err != nil {
			return nil, err
		}
	}

	for i := 0; i < cfg.Iterations; i++ {
		if err := done(ctx); err != nil {
			return nil, err
		}
		_, best := h.Best()
		if err := observe(b.next(best)); err != nil {
			return nil, err
		}
	}
	return h.Finalise(), nil
}

// unitSpace maps the search box to [0,1]^d so one kernel length scale suits
// every dimension. A degenerate range always maps to its single value.
type unitSpace generators.Bounds

func (s unitSpace) unit() generators.Bounds {
	b := make(generators.Bounds, len(s))
	for i := range b {
		b[i] = [2]float64{0, 1}
	}
	return b
}

func (s unitSpace) toBounds(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		x[i] = s[i][0] + math.Max(0, math.Min(v, 1))*(s[i][1]-s[i][0])
	}
	return x
}

// bayesStep holds the surrogate state between evaluations. x is in unit
// coordinates.
type bayesStep struct {
	gp       *bayesian.GP
	acq      acquisition.Function
	space    unitSpace
	restarts int
	rng      *rand.Rand

	x [][]float64
	y []float64
}

func (b *bayesStep) random() []float64 {
	u := make([]float64, len(b.space))
	for i := range u {
		u[i] = b.rng.Float64()
	}
	return u
}

// next proposes the unit-cube point to evaluate after best.
func (b *bayesStep) next(best float64) []float64 {
	if len(b.x) == 0 {
		return b.random()
	}
	X := mat.NewDense(len(b.x), len(b.space), nil)
	for i, row := range b.x {
		X.SetRow(i, row)
	}
	if err := b.gp.Fit(X, b.y); err != nil {
		return b.random()
	}
	b.acq.UpdateBest(best)

	negAcq := func(u []float64) float64 {
		c := clampUnit(u)
		mu, sigma, err := b.gp.Predict(c)
		if err != nil {
			return math.Inf(1)
		}
		return -b.acq.Compute(mu, sigma)
	}

	starts := make([][]float64, 0, b.restarts+1)
	starts = append(starts, b.incumbent())
	for len(starts) <= b.restarts {
		starts = append(starts, b.random())
	}

	problem := optimize.Problem{Func: negAcq}
	settings := &optimize.Settings{
		FuncEvaluations: 200 * len(b.space),
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 50,
		},
	}

	bestU := starts[len(starts)-1]
	bestVal := negAcq(bestU)
	for _, start := range starts {
		// Hitting the evaluation limit still reports the best point found.
		res, _ := optimize.Minimize(problem, start, settings, &optimize.NelderMead{SimplexSize: 0.1})
		if res == nil {
			continue
		}
		if res.F < bestVal {
			bestVal = res.F
			bestU = res.X
		}
	}
	return clampUnit(bestU)
}

// incumbent is the unit-cube point with the lowest observed loss.
func (b *bayesStep) incumbent() []float64 {
	i := 0
	for j, v := range b.y {
		if v < b.y[i] {
			i = j
		}
	}
	return slices.Clone(b.x[i])
}

func clampUnit(u []float64) []float64 {
	c := make([]float64, len(u))
	for i, v := range u {
		c[i] = math.Max(0, math.Min(v, 1))
	}
	return c
}
