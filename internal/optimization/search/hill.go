package search

import (
	"context"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// HillClimbConfig configures HillClimb.
type HillClimbConfig struct {
	Guess      optimization.GuessFunc
	Neighbour  optimization.NeighbourFunc
	Iterations int
}

// HillClimb tracks an initial guess and then proposes Iterations neighbours
// of the best candidate found so far. Proposals that do not improve are
// still tracked but never become the centre of the next proposal.
func HillClimb(ctx context.Context, L optimization.ObjectiveFunction, cfg HillClimbConfig) (*optimization.Result, error) {
	const op = "HillClimb"

	switch {
	case L == nil:
		return nil, invalid(op, "objective is required")
	case cfg.Guess == nil || cfg.Neighbour == nil:
		return nil, invalid(op, "guess and neighbour functions are required")
	case cfg.Iterations < 0:
		return nil, invalid(op, "iterations must not be negative, got %d", cfg.Iterations)
	}

	theta0 := cfg.Guess()
	dim := len(theta0)
	if dim == 0 {
		return nil, invalid(op, "guess returned an empty candidate")
	}

	h := optimization.NewHistory()
	loss, err := evaluate(L, theta0)
	if err != nil {
		return nil, err
	}
	h.Track(theta0, loss)

	for i := 0; i < cfg.Iterations; i++ {
		if err := done(ctx); err != nil {
			return nil, err
		}

		centre, _ := h.Best()
		if centre == nil {
			// nothing finite yet; keep searching around the guess
			centre = append([]float64(nil), theta0...)
		}
		proposal := cfg.Neighbour(centre)
		if err := checkDim(op, proposal, dim); err != nil {
			return nil, err
		}
		loss, err := evaluate(L, proposal)
		if err != nil {
			return nil, err
		}
		h.Track(proposal, loss)
	}
	return h.Finalise(), nil
}
