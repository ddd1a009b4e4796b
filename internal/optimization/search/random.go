package search

import (
	"context"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// RandomConfig configures RandomSearch.
type RandomConfig struct {
	Sample     optimization.SampleFunc
	Iterations int
}

// RandomSearch tracks Iterations independent draws from Sample.
func RandomSearch(ctx context.Context, L optimization.ObjectiveFunction, cfg RandomConfig) (*optimization.Result, error) {
	const op = "RandomSearch"

	switch {
	case L == nil:
		return nil, invalid(op, "objective is required")
	case cfg.Sample == nil:
		return nil, invalid(op, "sample function is required")
	case cfg.Iterations < 0:
		return nil, invalid(op, "iterations must not be negative, got %d", cfg.Iterations)
	}

	h := optimization.NewHistory()
	dim := 0
	for i := 0; i < cfg.Iterations; i++ {
		if err := done(ctx); err != nil {
			return nil, err
		}

		theta := cfg.Sample()
		if i == 0 {
			dim = len(theta)
			if dim == 0 {
				return nil, invalid(op, "sample returned an empty candidate")
			}
		}
		if err := checkDim(op, theta, dim); err != nil {
			return nil, err
		}
		loss, err := evaluate(L, theta)
		if err != nil {
			return nil, err
		}
		h.Track(theta, loss)
	}
	return h.Finalise(), nil
}
