// Package acquisition scores surrogate predictions for minimisation. Higher
// scores mark more promising candidates.
package acquisition

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// Function scores a predicted mean and standard deviation.
type Function interface {
	Compute(mu, sigma float64) float64
	// UpdateBest tells the function the lowest loss observed so far.
	UpdateBest(best float64)
}

// Acquisition names accepted by New.
const (
	EIName  = "ei"
	LCBName = "lcb"
)

// Names lists the acquisition functions New understands.
func Names() []string { return []string{EIName, LCBName} }

// New builds an acquisition function by name. An empty name selects
// expected improvement. param is xi for EI and kappa for LCB.
func New(name string, best, param float64) (Function, error) {
	if param < 0 {
		return nil, optimization.InvalidConfig("acquisition", "New", "parameter must not be negative, got %v", param)
	}
	switch name {
	case EIName, "":
		return NewExpectedImprovement(best, param), nil
	case LCBName:
		return NewLowerConfidenceBound(param), nil
	default:
		return nil, optimization.InvalidConfig("acquisition", "New", "unknown acquisition %q", name)
	}
}

// ExpectedImprovement is E[max(best - xi - f(x), 0)] under the surrogate.
type ExpectedImprovement struct {
	best float64
	xi   float64
}

// NewExpectedImprovement returns EI against the given best loss. xi trades
// exploitation for exploration.
func NewExpectedImprovement(best, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{best: best, xi: xi}
}

// Compute implements Function. The result is never negative.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	improvement := ei.best - mu - ei.xi
	if sigma <= 1e-12 {
		return max(improvement, 0)
	}
	z := improvement / sigma
	v := improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	return max(v, 0)
}

// UpdateBest implements Function.
func (ei *ExpectedImprovement) UpdateBest(best float64) { ei.best = best }

// Best returns the loss improvements are measured against.
func (ei *ExpectedImprovement) Best() float64 { return ei.best }

// LowerConfidenceBound scores -(mu - kappa*sigma).
type LowerConfidenceBound struct {
	kappa float64
}

// NewLowerConfidenceBound returns LCB with the given exploration weight.
func NewLowerConfidenceBound(kappa float64) *LowerConfidenceBound {
	return &LowerConfidenceBound{kappa: kappa}
}

// Compute implements Function.
func (l *LowerConfidenceBound) Compute(mu, sigma float64) float64 {
	return -(mu - l.kappa*sigma)
}

// UpdateBest implements Function; LCB ignores the incumbent.
func (l *LowerConfidenceBound) UpdateBest(float64) {}
