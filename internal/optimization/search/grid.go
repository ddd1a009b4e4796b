package search

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// GridConfig configures GridSearch.
type GridConfig struct {
	// Ranges holds [min, max] for each dimension.
	Ranges [][2]float64
	// Divisions is the number of points per dimension, endpoints included.
	Divisions int
	// MaxIter stops the search after that many evaluations when positive.
	MaxIter int
}

// GridSearch evaluates L on the Cartesian product of evenly spaced points
// in row-major order: the last range varies fastest. Ties keep the first
// point found.
func GridSearch(ctx context.Context, L optimization.ObjectiveFunction, cfg GridConfig) (*optimization.Result, error) {
	const op = "GridSearch"

	switch {
	case L == nil:
		return nil, invalid(op, "objective is required")
	case len(cfg.Ranges) == 0:
		return nil, invalid(op, "at least one range is required")
	case cfg.Divisions < 1:
		return nil, invalid(op, "divisions must be at least 1, got %d", cfg.Divisions)
	case cfg.MaxIter < 0:
		return nil, invalid(op, "max iterations must not be negative, got %d", cfg.MaxIter)
	}

	axes := make([][]float64, len(cfg.Ranges))
	for i, r := range cfg.Ranges {
		axes[i] = linspace(r[0], r[1], cfg.Divisions)
	}

	h := optimization.NewHistory()
	idx := make([]int, len(axes))
	theta := make([]float64, len(axes))
	for {
		if err := done(ctx); err != nil {
			return nil, err
		}
		for k, axis := range axes {
			theta[k] = axis[idx[k]]
		}
		loss, err := evaluate(L, theta)
		if err != nil {
			return nil, err
		}
		h.Track(theta, loss)

		if cfg.MaxIter > 0 && h.Len() >= cfg.MaxIter {
			break
		}
		if !nextIndex(idx, cfg.Divisions) {
			break
		}
	}
	return h.Finalise(), nil
}

// linspace returns n evenly spaced values over [lo, hi]. A single point is
// the lower bound.
func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// nextIndex advances idx like an odometer and reports false once every
// combination has been visited.
func nextIndex(idx []int, n int) bool {
	for k := len(idx) - 1; k >= 0; k-- {
		idx[k]++
		if idx[k] < n {
			return true
		}
		idx[k] = 0
	}
	return false
}
