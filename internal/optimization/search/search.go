// Package search implements the black-box optimisers. Each optimiser is a
// single synchronous call that owns one optimization.History and returns it
// finalised; the History is the only thing an optimiser writes to.
package search

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

const component = "search"

func invalid(op, format string, args ...interface{}) error {
	return optimization.InvalidConfig(component, op, format, args...)
}

func checkDim(op string, theta []float64, dim int) error {
	if len(theta) != dim {
		return optimization.DimensionMismatch(component, op, len(theta), dim)
	}
	return nil
}

// evaluate calls L on a private copy so the objective cannot alias the
// caller's search state. Errors are returned unmodified.
func evaluate(L optimization.ObjectiveFunction, theta []float64) (float64, error) {
	return L(slices.Clone(theta))
}

func sourceOrDefault(src rand.Source) rand.Source {
	if src == nil {
		return optimization.NewSource(0)
	}
	return src
}

// lossLess orders losses ascending with NaN after every number.
func lossLess(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return 1
	case math.IsNaN(b):
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func done(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
