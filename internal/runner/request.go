package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/acquisition"
	"github.com/copyleftdev/blackbox/internal/optimization/generators"
	"github.com/copyleftdev/blackbox/internal/optimization/kernels"
	"github.com/copyleftdev/blackbox/internal/optimization/search"
)

// Request describes one optimisation run declaratively. Fields that do not
// apply to the chosen algorithm are ignored; zero values select defaults.
type Request struct {
	Algorithm optimization.Algorithm `json:"algorithm" yaml:"algorithm"`
	Objective string                 `json:"objective" yaml:"objective"`
	// Dim picks the dimensionality of variable-size objectives.
	Dim int `json:"dim,omitempty" yaml:"dim,omitempty"`
	// Bounds overrides the objective's default search box.
	Bounds [][2]float64 `json:"bounds,omitempty" yaml:"bounds,omitempty"`

	// Iterations is used by hill, random, anneal, genetic and bayes.
	Iterations int `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// grid
	Divisions int `json:"divisions,omitempty" yaml:"divisions,omitempty"`
	// MaxIter caps grid evaluations and gradient steps.
	MaxIter int `json:"max_iter,omitempty" yaml:"max_iter,omitempty"`

	// genetic
	Population   int     `json:"population,omitempty" yaml:"population,omitempty"`
	Keep         float64 `json:"keep,omitempty" yaml:"keep,omitempty"`
	MutationRate float64 `json:"mutation_rate,omitempty" yaml:"mutation_rate,omitempty"`

	// Sigma is the neighbourhood and mutation width, as a fraction of each
	// dimension's range.
	Sigma float64 `json:"sigma,omitempty" yaml:"sigma,omitempty"`

	// anneal
	Schedule    generators.Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	T0          float64             `json:"t0,omitempty" yaml:"t0,omitempty"`
	CoolingRate float64             `json:"cooling_rate,omitempty" yaml:"cooling_rate,omitempty"`

	// gradient
	Delta     float64   `json:"delta,omitempty" yaml:"delta,omitempty"`
	Tolerance float64   `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Theta0    []float64 `json:"theta0,omitempty" yaml:"theta0,omitempty"`

	// bayes
	Initial     int     `json:"initial,omitempty" yaml:"initial,omitempty"`
	Kernel      string  `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	LengthScale float64 `json:"length_scale,omitempty" yaml:"length_scale,omitempty"`
	Acquisition string  `json:"acquisition,omitempty" yaml:"acquisition,omitempty"`
	// Xi is the EI margin, or the LCB exploration weight.
	Xi float64 `json:"xi,omitempty" yaml:"xi,omitempty"`

	// Seed fixes every random draw of the run. Zero means time-seeded.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Defaults used when a Request leaves a field at zero.
const (
	DefaultIterations   = 1000
	DefaultDivisions    = 10
	DefaultPopulation   = 20
	DefaultMutationRate = 0.2
	DefaultSigma        = 0.05
	DefaultT0           = 1.0
	DefaultCoolingRate  = 0.995
	DefaultDelta        = 0.01

	DefaultBayesIterations = 50
	DefaultInitial         = 10
	DefaultXi              = 0.01
)

// withDefaults fills zero fields. MaxIter falls back to limit so gradient
// descent always terminates.
func (r Request) withDefaults(limit int) Request {
	if r.Iterations == 0 {
		r.Iterations = DefaultIterations
		if r.Algorithm == optimization.Bayesian {
			r.Iterations = DefaultBayesIterations
		}
	}
	if r.Divisions == 0 {
		r.Divisions = DefaultDivisions
	}
	if r.MaxIter == 0 && r.Algorithm == optimization.GradientDescent {
		r.MaxIter = limit
	}
	if r.Population == 0 {
		r.Population = DefaultPopulation
	}
	if r.MutationRate == 0 {
		r.MutationRate = DefaultMutationRate
	}
	if r.Sigma == 0 {
		r.Sigma = DefaultSigma
	}
	if r.Schedule == "" {
		r.Schedule = generators.Exponential
	}
	if r.T0 == 0 {
		r.T0 = DefaultT0
	}
	if r.CoolingRate == 0 {
		r.CoolingRate = DefaultCoolingRate
	}
	if r.Delta == 0 {
		r.Delta = DefaultDelta
	}
	if r.Algorithm == optimization.Bayesian {
		if r.Initial == 0 {
			r.Initial = DefaultInitial
		}
		if r.Kernel == "" {
			r.Kernel = kernels.Matern52Name
		}
		if r.LengthScale == 0 {
			r.LengthScale = search.DefaultLengthScale
		}
		if r.Acquisition == "" {
			r.Acquisition = acquisition.EIName
		}
		if r.Xi == 0 {
			r.Xi = DefaultXi
		}
	}
	return r
}

// budgetCap saturates Budget so oversized requests cannot overflow.
const budgetCap = 1 << 30

func satMul(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > budgetCap/b {
		return budgetCap
	}
	return a * b
}

func satAdd(a, b int) int {
	if a > budgetCap-b {
		return budgetCap
	}
	return a + b
}

// Budget is the number of objective evaluations the request asks for, or
// the step cap for gradient descent. It saturates at 1<<30.
func (r Request) Budget() int {
	switch r.Algorithm {
	case optimization.GridSearch:
		n := 1
		for range r.Bounds {
			n = satMul(n, r.Divisions)
		}
		if r.MaxIter > 0 && r.MaxIter < n {
			return r.MaxIter
		}
		return n
	case optimization.GeneticSearch:
		return satMul(r.Population, r.Iterations)
	case optimization.GradientDescent:
		return min(r.MaxIter, budgetCap)
	case optimization.Bayesian:
		return satAdd(min(r.Initial, budgetCap), min(r.Iterations, budgetCap))
	case optimization.HillClimbing, optimization.SimulatedAnneal:
		// The initial guess is evaluated too.
		return satAdd(min(r.Iterations, budgetCap), 1)
	default:
		return min(r.Iterations, budgetCap)
	}
}

// LoadRequest reads a request file. Files ending in .json are decoded as
// JSON, anything else as YAML.
func LoadRequest(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Request{}, fmt.Errorf("read request: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return DecodeRequest(bytes.NewReader(data), format)
}

// DecodeRequest decodes a request in the given format, "json" or "yaml".
// Unknown fields are rejected.
func DecodeRequest(r io.Reader, format string) (Request, error) {
	var req Request
	switch format {
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return Request{}, fmt.Errorf("decode json request: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&req); err != nil {
			return Request{}, fmt.Errorf("decode yaml request: %w", err)
		}
	default:
		return Request{}, fmt.Errorf("unsupported request format %q", format)
	}
	return req, nil
}
