package search

import (
	"context"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// DefaultKeep is the elite fraction used when GeneticConfig.Keep is zero.
const DefaultKeep = 0.25

// GeneticConfig configures GeneticSearch.
type GeneticConfig struct {
	Population int
	Guess      optimization.GuessFunc
	Mutation   optimization.MutationFunc
	Iterations int
	// Keep is the fraction of each generation carried over unchanged, in
	// (0, 1]. Zero means DefaultKeep.
	Keep float64
	// Source drives parent selection and crossover. Nil means time-seeded.
	Source rand.Source
}

// eliteSize is int(pop*keep), but never less than one parent.
func eliteSize(pop int, keep float64) int {
	top := int(float64(pop) * keep)
	if top < 1 {
		top = 1
	}
	return top
}

// GeneticSearch evolves a population for Iterations generations. Each
// generation is evaluated and sorted by loss; the elite keep their slots and
// every other slot is refilled by uniform crossover of two elite parents
// followed by Mutation. The rank-0 individual of each generation is tracked.
func GeneticSearch(ctx context.Context, L optimization.ObjectiveFunction, cfg GeneticConfig) (*optimization.Result, error) {
	const op = "GeneticSearch"

	keep := cfg.Keep
	if keep == 0 {
		keep = DefaultKeep
	}
	switch {
	case L == nil:
		return nil, invalid(op, "objective is required")
	case cfg.Guess == nil || cfg.Mutation == nil:
		return nil, invalid(op, "guess and mutation functions are required")
	case cfg.Population < 1:
		return nil, invalid(op, "population must be at least 1, got %d", cfg.Population)
	case cfg.Iterations < 0:
		return nil, invalid(op, "iterations must not be negative, got %d", cfg.Iterations)
	case keep < 0 || keep > 1:
		return nil, invalid(op, "keep must be in (0, 1], got %v", keep)
	}

	src := sourceOrDefault(cfg.Source)
	rng := rand.New(src)
	coin := distuv.Bernoulli{P: 0.5, Src: src}

	population := make([][]float64, cfg.Population)
	for j := range population {
		population[j] = slices.Clone(cfg.Guess())
	}
	// one extra draw, only to learn the dimensionality
	dim := len(cfg.Guess())
	if dim == 0 {
		return nil, invalid(op, "guess returned an empty candidate")
	}
	for _, p := range population {
		if err := checkDim(op, p, dim); err != nil {
			return nil, err
		}
	}

	top := eliteSize(cfg.Population, keep)
	losses := make([]float64, cfg.Population)
	order := make([]int, cfg.Population)
	h := optimization.NewHistory()

	for gen := 0; gen < cfg.Iterations; gen++ {
		if err := done(ctx); err != nil {
			return nil, err
		}

		for j, p := range population {
			l, err := evaluate(L, p)
			if err != nil {
				return nil, err
			}
			losses[j] = l
		}

		for j := range order {
			order[j] = j
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return lossLess(losses[a], losses[b])
		})
		population, losses = permute(population, order), permuteLoss(losses, order)

		for j := top; j < cfg.Population; j++ {
			mum := population[rng.IntN(top)]
			dad := population[rng.IntN(top)]
			child := make([]float64, dim)
			for k := range child {
				if coin.Rand() == 0 {
					child[k] = mum[k]
				} else {
					child[k] = dad[k]
				}
			}
			child = cfg.Mutation(child)
			if err := checkDim(op, child, dim); err != nil {
				return nil, err
			}
			population[j] = child
		}

		h.Track(population[0], losses[0])
	}
	return h.Finalise(), nil
}

func permute(pop [][]float64, order []int) [][]float64 {
	out := make([][]float64, len(order))
	for i, j := range order {
		out[i] = pop[j]
	}
	return out
}

func permuteLoss(losses []float64, order []int) []float64 {
	out := make([]float64, len(order))
	for i, j := range order {
		out[i] = losses[j]
	}
	return out
}
