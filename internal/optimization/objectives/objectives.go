// Package objectives is a catalogue of test functions for the optimisers,
// each with a default search box and, where one exists, an analytic
// gradient.
package objectives

import (
	"fmt"
	"math"
	"sort"

	"github.com/copyleftdev/blackbox/internal/attractor"
	"github.com/copyleftdev/blackbox/internal/drone"
	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/generators"
)

// Objective bundles a loss with what a runner needs to search it.
type Objective struct {
	Name        string
	Description string
	Func        optimization.ObjectiveFunction
	// Gradient is nil when the objective has no analytic gradient.
	Gradient optimization.GradientFunction
	Bounds   generators.Bounds
	// Minimum is the known global minimiser, or nil.
	Minimum []float64
}

type factory struct {
	description string
	// fixedDim is non-zero when the objective only exists in one
	// dimensionality.
	fixedDim   int
	defaultDim int
	build      func(dim int) Objective
}

var catalogue = map[string]factory{
	"attractor": {
		description: "divergence of a chaotic attractor corrected with [gain, offset], minimum at (1, 0)",
		fixedDim:    2,
		build:       func(int) Objective { return attractorCorrector(attractor.DefaultTuning()) },
	},
	"sphere": {
		description: "sum of squares, minimum 0 at the origin",
		defaultDim:  2,
		build:       sphere,
	},
	"rosenbrock": {
		description: "curved valley, minimum 0 at (1, ..., 1)",
		defaultDim:  2,
		build:       rosenbrock,
	},
	"rastrigin": {
		description: "highly multimodal, minimum 0 at the origin",
		defaultDim:  2,
		build:       rastrigin,
	},
	"himmelblau": {
		description: "four equal minima of 0",
		fixedDim:    2,
		build:       func(int) Objective { return himmelblau() },
	},
	"linefit": {
		description: "squared error of a line [gradient, offset] through noisy samples",
		fixedDim:    2,
		build:       func(int) Objective { return LineFit(DefaultLineData()) },
	},
	"drone-pid": {
		description: "tracking error of a simulated drone flown with PID gains [p, i, d]",
		fixedDim:    3,
		build:       func(int) Objective { return dronePID(drone.DefaultTuning()) },
	},
}

// Names lists the catalogue in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the one-line description of a catalogued objective.
func Describe(name string) (string, bool) {
	f, ok := catalogue[name]
	return f.description, ok
}

// Lookup builds the named objective. dim zero selects the default
// dimensionality; fixed-dimension objectives reject any other value.
func Lookup(name string, dim int) (Objective, error) {
	f, ok := catalogue[name]
	if !ok {
		return Objective{}, fmt.Errorf("unknown objective %q: %w", name, optimization.ErrInvalidConfig)
	}
	switch {
	case dim < 0:
		return Objective{}, fmt.Errorf("objective %q: dimension must not be negative, got %d: %w", name, dim, optimization.ErrInvalidConfig)
	case f.fixedDim != 0 && dim != 0 && dim != f.fixedDim:
		return Objective{}, fmt.Errorf("objective %q is %d-dimensional, got %d: %w",
			name, f.fixedDim, dim, optimization.ErrDimensionMismatch)
	case f.fixedDim != 0:
		dim = f.fixedDim
	case dim == 0:
		dim = f.defaultDim
	}
	obj := f.build(dim)
	obj.Name = name
	obj.Description = f.description
	return obj, nil
}

func box(dim int, lo, hi float64) generators.Bounds {
	b := make(generators.Bounds, dim)
	for i := range b {
		b[i] = [2]float64{lo, hi}
	}
	return b
}

// checked wraps f so a candidate of the wrong length is reported as an
// error instead of an index panic.
func checked(dim int, f func([]float64) float64) optimization.ObjectiveFunction {
	return func(x []float64) (float64, error) {
		if len(x) != dim {
			return 0, fmt.Errorf("candidate has %d dimensions, want %d: %w", len(x), dim, optimization.ErrDimensionMismatch)
		}
		return f(x), nil
	}
}

func sphere(dim int) Objective {
	return Objective{
		Func: checked(dim, func(x []float64) float64 {
			s := 0.0
			for _, v := range x {
				s += v * v
			}
			return s
		}),
		Gradient: func(x []float64) []float64 {
			g := make([]float64, len(x))
			for i, v := range x {
				g[i] = 2 * v
			}
			return g
		},
		Bounds:  box(dim, -5, 5),
		Minimum: make([]float64, dim),
	}
}

func rosenbrock(dim int) Objective {
	ones := make([]float64, dim)
	for i := range ones {
		ones[i] = 1
	}
	return Objective{
		Func: checked(dim, func(x []float64) float64 {
			s := 0.0
			for i := 0; i+1 < len(x); i++ {
				a := x[i+1] - x[i]*x[i]
				b := 1 - x[i]
				s += 100*a*a + b*b
			}
			return s
		}),
		Gradient: func(x []float64) []float64 {
			g := make([]float64, len(x))
			for i := 0; i+1 < len(x); i++ {
				a := x[i+1] - x[i]*x[i]
				g[i] += -400*x[i]*a - 2*(1-x[i])
				g[i+1] += 200 * a
			}
			return g
		},
		Bounds:  box(dim, -2, 2),
		Minimum: ones,
	}
}

func rastrigin(dim int) Objective {
	return Objective{
		Func: checked(dim, func(x []float64) float64 {
			s := 10 * float64(len(x))
			for _, v := range x {
				s += v*v - 10*math.Cos(2*math.Pi*v)
			}
			return s
		}),
		Gradient: func(x []float64) []float64 {
			g := make([]float64, len(x))
			for i, v := range x {
				g[i] = 2*v + 20*math.Pi*math.Sin(2*math.Pi*v)
			}
			return g
		},
		Bounds:  box(dim, -5.12, 5.12),
		Minimum: make([]float64, dim),
	}
}

func himmelblau() Objective {
	return Objective{
		Func: checked(2, func(x []float64) float64 {
			a := x[0]*x[0] + x[1] - 11
			b := x[0] + x[1]*x[1] - 7
			return a*a + b*b
		}),
		Gradient: func(x []float64) []float64 {
			a := x[0]*x[0] + x[1] - 11
			b := x[0] + x[1]*x[1] - 7
			return []float64{4*x[0]*a + 2*b, 2*a + 4*x[1]*b}
		},
		Bounds:  box(2, -5, 5),
		Minimum: []float64{3, 2},
	}
}

func dronePID(cfg drone.TuningConfig) Objective {
	return Objective{
		Func:   drone.Objective(cfg),
		Bounds: generators.Bounds{{0, 10}, {0, 0.1}, {0, 50}},
	}
}

func attractorCorrector(cfg attractor.TuningConfig) Objective {
	return Objective{
		Func:    attractor.Objective(cfg),
		Bounds:  generators.Bounds{{-1, 3}, {-5, 5}},
		Minimum: []float64{1, 0},
	}
}
