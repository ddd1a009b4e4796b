// Package runner turns a declarative Request into the callbacks an optimiser
// needs, runs it, and reports a Summary.
package runner

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/blackbox/internal/metrics"
	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/acquisition"
	"github.com/copyleftdev/blackbox/internal/optimization/generators"
	"github.com/copyleftdev/blackbox/internal/optimization/kernels"
	"github.com/copyleftdev/blackbox/internal/optimization/objectives"
	"github.com/copyleftdev/blackbox/internal/optimization/search"
)

const component = "runner"

// MaxSurrogatePoints caps the evaluations of a bayes request; every step
// refits a Gaussian process on all of them.
const MaxSurrogatePoints = 500

// Limits bounds what a single request may ask for.
type Limits struct {
	// MaxEvaluations caps the evaluation budget of a request, and is the
	// step cap for gradient descent when the request sets none.
	MaxEvaluations int
	// MaxDim caps the dimensionality of variable-size objectives.
	MaxDim int
	// DefaultSeed is used when a request has no seed. Zero means
	// time-seeded.
	DefaultSeed uint64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxEvaluations: 1_000_000, MaxDim: 100}
}

// Runner executes requests. It is safe for concurrent use; each Run owns
// its own History.
type Runner struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	limits  Limits
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records every run on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLimits replaces DefaultLimits.
func WithLimits(l Limits) Option {
	return func(r *Runner) { r.limits = l }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{logger: zap.NewNop(), limits: DefaultLimits()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Progress receives the number of objective evaluations so far and the
// lowest loss seen. It is called synchronously from the run.
type Progress func(evaluations int, best float64)

// plan is a validated request bound to its objective.
type plan struct {
	req Request
	obj objectives.Objective
}

// Prepare validates req and resolves its defaults and objective without
// running it.
func (r *Runner) Prepare(req Request) (Request, error) {
	p, err := r.plan(req)
	if err != nil {
		return Request{}, err
	}
	return p.req, nil
}

func (r *Runner) plan(req Request) (*plan, error) {
	const op = "Prepare"

	if !req.Algorithm.Valid() {
		return nil, optimization.InvalidConfig(component, op, "unknown algorithm %q, want one of %v", req.Algorithm, optimization.Algorithms())
	}
	dim := req.Dim
	if dim == 0 && len(req.Bounds) > 0 {
		dim = len(req.Bounds)
	}
	if r.limits.MaxDim > 0 && dim > r.limits.MaxDim {
		return nil, optimization.InvalidConfig(component, op, "dimension %d exceeds the limit of %d", dim, r.limits.MaxDim)
	}
	obj, err := objectives.Lookup(req.Objective, dim)
	if err != nil {
		return nil, optimization.WrapErrorf(err, "resolve objective").WithComponent(component).WithOperation(op)
	}

	bounds := obj.Bounds
	if len(req.Bounds) > 0 {
		if len(req.Bounds) != len(obj.Bounds) {
			return nil, optimization.DimensionMismatch(component, op, len(req.Bounds), len(obj.Bounds))
		}
		bounds = generators.Bounds(req.Bounds)
	}
	if err := bounds.Validate(); err != nil {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidConfig, "%v", err).WithComponent(component).WithOperation(op)
	}
	req.Bounds = bounds

	if req.Seed == 0 {
		req.Seed = r.limits.DefaultSeed
	}
	req = req.withDefaults(r.limits.MaxEvaluations)

	switch {
	case req.Iterations < 0 || req.MaxIter < 0 || req.Divisions < 0 || req.Population < 0 || req.Initial < 0:
		return nil, optimization.InvalidConfig(component, op, "counts must not be negative")
	case req.Sigma < 0 || math.IsNaN(req.Sigma):
		return nil, optimization.InvalidConfig(component, op, "sigma must not be negative, got %v", req.Sigma)
	case req.MutationRate < 0 || req.MutationRate > 1:
		return nil, optimization.InvalidConfig(component, op, "mutation rate must be in [0, 1], got %v", req.MutationRate)
	case req.Algorithm == optimization.GradientDescent && obj.Gradient == nil:
		return nil, optimization.InvalidConfig(component, op, "objective %q has no gradient", obj.Name)
	case req.Algorithm == optimization.Bayesian && req.Budget() > MaxSurrogatePoints:
		return nil, optimization.InvalidConfig(component, op, "bayes request needs %d evaluations, limit is %d", req.Budget(), MaxSurrogatePoints)
	case req.Theta0 != nil && len(req.Theta0) != len(bounds):
		return nil, optimization.DimensionMismatch(component, op, len(req.Theta0), len(bounds))
	}
	if n := req.Budget(); n >= budgetCap {
		return nil, optimization.InvalidConfig(component, op, "request needs at least %d evaluations", n)
	}
	if lim := r.limits.MaxEvaluations; lim > 0 &&
		((req.Algorithm == optimization.GeneticSearch && req.Population > lim) ||
			(req.Algorithm == optimization.Bayesian && req.Initial > lim)) {
		return nil, optimization.InvalidConfig(component, op, "population and initial design must not exceed %d", lim)
	}
	if n := req.Budget(); r.limits.MaxEvaluations > 0 && n > r.limits.MaxEvaluations {
		return nil, optimization.InvalidConfig(component, op, "request needs %d evaluations, limit is %d", n, r.limits.MaxEvaluations)
	}
	if req.Algorithm == optimization.Bayesian {
		if _, err := kernels.New(req.Kernel, req.LengthScale, 1); err != nil {
			return nil, err
		}
		if _, err := acquisition.New(req.Acquisition, 0, req.Xi); err != nil {
			return nil, err
		}
	}
	return &plan{req: req, obj: obj}, nil
}

// Run validates and executes req. The returned error is a validation error,
// an objective error, or ctx.Err() on cancellation.
func (r *Runner) Run(ctx context.Context, req Request, progress Progress) (*Summary, error) {
	p, err := r.plan(req)
	if err != nil {
		return nil, err
	}
	req = p.req

	log := r.logger.With(
		zap.String("algorithm", string(req.Algorithm)),
		zap.String("objective", p.obj.Name),
		zap.Int("dim", len(req.Bounds)),
		zap.Uint64("seed", req.Seed),
	)
	log.Info("optimisation started", zap.Int("budget", req.Budget()))

	counter := &evalCounter{best: math.Inf(1), progress: progress}
	L := counter.wrap(p.obj.Func)

	done := r.metrics.Started()
	start := time.Now()
	res, err := dispatch(ctx, req, L, p.obj)
	elapsed := time.Since(start)
	done()

	evals, _ := counter.snapshot()
	if err != nil {
		status := metrics.StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = metrics.StatusCancelled
		}
		r.metrics.Observe(string(req.Algorithm), p.obj.Name, status, evals, 0, elapsed)
		log.Warn("optimisation stopped", zap.String("status", status), zap.Int("evaluations", evals), zap.Error(err))
		return nil, err
	}

	r.metrics.Observe(string(req.Algorithm), p.obj.Name, metrics.StatusCompleted, evals, res.Loss, elapsed)
	log.Info("optimisation finished",
		zap.Float64("loss", res.Loss),
		zap.Int("evaluations", evals),
		zap.Int("tracked", res.Evaluations()),
		zap.Int("checkpoints", len(res.BestLosses)),
		zap.Duration("elapsed", elapsed),
	)
	return newSummary(req, p.obj, res, elapsed), nil
}

func dispatch(ctx context.Context, req Request, L optimization.ObjectiveFunction, obj objectives.Objective) (*optimization.Result, error) {
	bounds := generators.Bounds(req.Bounds)
	src := optimization.NewSource(req.Seed)
	sigma := scaledSigma(req.Sigma, bounds)

	switch req.Algorithm {
	case optimization.GridSearch:
		return search.GridSearch(ctx, L, search.GridConfig{
			Ranges:    bounds,
			Divisions: req.Divisions,
			MaxIter:   req.MaxIter,
		})
	case optimization.HillClimbing:
		return search.HillClimb(ctx, L, search.HillClimbConfig{
			Guess:      generators.UniformGuess(bounds, src),
			Neighbour:  generators.GaussianNeighbour(sigma, bounds, src),
			Iterations: req.Iterations,
		})
	case optimization.RandomSearch:
		return search.RandomSearch(ctx, L, search.RandomConfig{
			Sample:     generators.UniformSample(bounds, src),
			Iterations: req.Iterations,
		})
	case optimization.SimulatedAnneal:
		temp, err := generators.NewSchedule(req.Schedule, req.T0, req.CoolingRate, req.Iterations)
		if err != nil {
			return nil, optimization.WrapErrorf(optimization.ErrInvalidConfig, "%v", err).WithComponent(component).WithOperation("Run")
		}
		return search.SimulatedAnneal(ctx, L, search.AnnealConfig{
			Guess:       generators.UniformGuess(bounds, src),
			Neighbour:   generators.GaussianNeighbour(sigma, bounds, src),
			Temperature: temp,
			Iterations:  req.Iterations,
			Source:      src,
		})
	case optimization.GeneticSearch:
		return search.GeneticSearch(ctx, L, search.GeneticConfig{
			Population: req.Population,
			Guess:      generators.UniformGuess(bounds, src),
			Mutation:   generators.GaussianMutation(sigma, req.MutationRate, bounds, src),
			Iterations: req.Iterations,
			Keep:       req.Keep,
			Source:     src,
		})
	case optimization.GradientDescent:
		theta0 := req.Theta0
		if theta0 == nil {
			theta0 = centre(bounds)
		}
		return search.GradientDescent(ctx, L, search.GradientConfig{
			Gradient:  obj.Gradient,
			Theta0:    theta0,
			Delta:     req.Delta,
			Tolerance: req.Tolerance,
			MaxIter:   req.MaxIter,
		})
	case optimization.Bayesian:
		kernel, err := kernels.New(req.Kernel, req.LengthScale, 1)
		if err != nil {
			return nil, err
		}
		acq, err := acquisition.New(req.Acquisition, math.Inf(1), req.Xi)
		if err != nil {
			return nil, err
		}
		return search.BayesSearch(ctx, L, search.BayesConfig{
			Bounds:      bounds,
			Initial:     req.Initial,
			Iterations:  req.Iterations,
			Kernel:      kernel,
			Acquisition: acq,
			Source:      src,
		})
	}
	return nil, optimization.InvalidConfig(component, "Run", "unknown algorithm %q", req.Algorithm)
}

// scaledSigma converts a relative width to an absolute one using the
// widest dimension.
func scaledSigma(rel float64, bounds generators.Bounds) float64 {
	width := 0.0
	for _, b := range bounds {
		width = math.Max(width, b[1]-b[0])
	}
	if width == 0 {
		return rel
	}
	return rel * width
}

func centre(bounds generators.Bounds) []float64 {
	c := make([]float64, len(bounds))
	for i, b := range bounds {
		c[i] = (b[0] + b[1]) / 2
	}
	return c
}

// evalCounter wraps an objective to count calls and report progress.
type evalCounter struct {
	mu       sync.Mutex
	n        int
	best     float64
	progress Progress
}

func (c *evalCounter) wrap(L optimization.ObjectiveFunction) optimization.ObjectiveFunction {
	return func(theta []float64) (float64, error) {
		loss, err := L(theta)
		if err != nil {
			return loss, err
		}
		c.mu.Lock()
		c.n++
		if loss < c.best {
			c.best = loss
		}
		n, best := c.n, c.best
		c.mu.Unlock()
		if c.progress != nil {
			c.progress(n, best)
		}
		return loss, nil
	}
}

func (c *evalCounter) snapshot() (int, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, c.best
}
