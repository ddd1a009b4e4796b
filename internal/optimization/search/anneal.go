package search

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// AnnealConfig configures SimulatedAnneal.
type AnnealConfig struct {
	Guess       optimization.GuessFunc
	Neighbour   optimization.NeighbourFunc
	Temperature optimization.TemperatureFunc
	Iterations  int
	// Source drives the acceptance draws. Nil means time-seeded.
	Source rand.Source
}

// annealState is the walker's position, which may sit above the best loss
// recorded in the History.
type annealState struct {
	theta []float64
	loss  float64
}

// acceptance is the probability of taking a non-improving step. The
// temperature scales the probability directly instead of dividing the
// exponent: with a zero temperature the walk is greedy.
func acceptance(current, proposal, temperature float64) float64 {
	return math.Exp(-(proposal - current)) * temperature
}

// SimulatedAnneal walks from an initial guess, always moving to improving
// neighbours and moving to worse ones with probability
// exp(-(proposal-loss)) * Temperature(i). Every move is recorded as a
// checkpoint through History.Accept; rejected proposals are only traced.
func SimulatedAnneal(ctx context.Context, L optimization.ObjectiveFunction, cfg AnnealConfig) (*optimization.Result, error) {
	const op = "SimulatedAnneal"

	switch {
	case L == nil:
		return nil, invalid(op, "objective is required")
	case cfg.Guess == nil || cfg.Neighbour == nil:
		return nil, invalid(op, "guess and neighbour functions are required")
	case cfg.Temperature == nil:
		return nil, invalid(op, "temperature schedule is required")
	case cfg.Iterations < 0:
		return nil, invalid(op, "iterations must not be negative, got %d", cfg.Iterations)
	}

	uniform := distuv.Uniform{Min: 0, Max: 1, Src: sourceOrDefault(cfg.Source)}

	theta0 := cfg.Guess()
	dim := len(theta0)
	if dim == 0 {
		return nil, invalid(op, "guess returned an empty candidate")
	}
	loss0, err := evaluate(L, theta0)
	if err != nil {
		return nil, err
	}

	h := optimization.NewHistory()
	h.Track(theta0, loss0)
	state := annealState{theta: slices.Clone(theta0), loss: loss0}

	for i := 0; i < cfg.Iterations; i++ {
		if err := done(ctx); err != nil {
			return nil, err
		}

		proposal := cfg.Neighbour(slices.Clone(state.theta))
		if err := checkDim(op, proposal, dim); err != nil {
			return nil, err
		}
		loss, err := evaluate(L, proposal)
		if err != nil {
			return nil, err
		}

		if loss < state.loss || uniform.Rand() < acceptance(state.loss, loss, cfg.Temperature(i)) {
			h.Accept(proposal, loss)
			state = annealState{theta: slices.Clone(proposal), loss: loss}
			continue
		}
		h.Track(proposal, loss)
	}
	return h.Finalise(), nil
}
