package search

import (
	"context"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// DefaultTolerance is the convergence threshold used when
// GradientConfig.Tolerance is zero.
const DefaultTolerance = 1e-4

// GradientConfig configures GradientDescent.
type GradientConfig struct {
	Gradient optimization.GradientFunction
	Theta0   []float64
	// Delta is the fixed step size.
	Delta     float64
	Tolerance float64
	// MaxIter caps the number of steps when positive.
	MaxIter int
}

// GradientDescent steps theta <- theta - Delta*dL(theta), tracking every
// step, until the best loss changes by no more than Tolerance between
// consecutive steps or MaxIter steps have run. Theta0 itself is not
// evaluated.
func GradientDescent(ctx context.Context, L optimization.ObjectiveFunction, cfg GradientConfig) (*optimization.Result, error) {
	const op = "GradientDescent"

	tol := cfg.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	switch {
	case L == nil:
		return nil, invalid(op, "objective is required")
	case cfg.Gradient == nil:
		return nil, invalid(op, "gradient function is required")
	case len(cfg.Theta0) == 0:
		return nil, invalid(op, "initial theta is required")
	case cfg.Delta <= 0:
		return nil, invalid(op, "step size must be positive, got %v", cfg.Delta)
	case tol < 0:
		return nil, invalid(op, "tolerance must not be negative, got %v", tol)
	case cfg.MaxIter < 0:
		return nil, invalid(op, "max iterations must not be negative, got %d", cfg.MaxIter)
	}

	theta := slices.Clone(cfg.Theta0)
	h := optimization.NewHistory()
	for h.LossChange() > tol {
		if err := done(ctx); err != nil {
			return nil, err
		}

		grad := cfg.Gradient(slices.Clone(theta))
		if err := checkDim(op, grad, len(theta)); err != nil {
			return nil, err
		}
		floats.AddScaled(theta, -cfg.Delta, grad)

		loss, err := evaluate(L, theta)
		if err != nil {
			return nil, err
		}
		h.Track(theta, loss)

		if cfg.MaxIter > 0 && h.Len() >= cfg.MaxIter {
			break
		}
	}
	return h.Finalise(), nil
}
