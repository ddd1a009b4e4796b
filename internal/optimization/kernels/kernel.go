// Package kernels holds the covariance functions used by the Gaussian
// process surrogate.
package kernels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// Kernel is a stationary covariance function.
type Kernel interface {
	// Eval returns the covariance between x1 and x2.
	Eval(x1, x2 []float64) float64
	// Variance is Eval(x, x) for any x.
	Variance() float64
}

// Kernel names accepted by New.
const (
	RBFName      = "rbf"
	Matern52Name = "matern52"
)

// Names lists the kernels New understands.
func Names() []string { return []string{RBFName, Matern52Name} }

// New builds a kernel by name. An empty name selects Matérn 5/2.
func New(name string, lengthScale, signalVar float64) (Kernel, error) {
	var (
		k   Kernel
		err error
	)
	switch name {
	case RBFName:
		k, err = NewRBF(lengthScale, signalVar)
	case Matern52Name, "":
		k, err = NewMatern52(lengthScale, signalVar)
	default:
		err = optimization.InvalidConfig("kernels", "New", "unknown kernel %q", name)
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

func checkParams(op string, lengthScale, signalVar float64) error {
	if !(lengthScale > 0) || math.IsInf(lengthScale, 0) {
		return optimization.InvalidConfig("kernels", op, "length scale must be positive, got %v", lengthScale)
	}
	if !(signalVar > 0) || math.IsInf(signalVar, 0) {
		return optimization.InvalidConfig("kernels", op, "signal variance must be positive, got %v", signalVar)
	}
	return nil
}

// RBF is the squared exponential kernel
// signalVar * exp(-|x1-x2|^2 / (2 lengthScale^2)).
type RBF struct {
	lengthScale float64
	signalVar   float64
}

// NewRBF returns an RBF kernel.
func NewRBF(lengthScale, signalVar float64) (*RBF, error) {
	if err := checkParams("NewRBF", lengthScale, signalVar); err != nil {
		return nil, err
	}
	return &RBF{lengthScale: lengthScale, signalVar: signalVar}, nil
}

// Eval implements Kernel.
func (k *RBF) Eval(x1, x2 []float64) float64 {
	d := floats.Distance(x1, x2, 2) / k.lengthScale
	return k.signalVar * math.Exp(-0.5*d*d)
}

// Variance implements Kernel.
func (k *RBF) Variance() float64 { return k.signalVar }

func (k *RBF) String() string {
	return fmt.Sprintf("rbf(l=%g, s2=%g)", k.lengthScale, k.signalVar)
}

// Matern52 is the Matérn kernel with smoothness 5/2.
type Matern52 struct {
	lengthScale float64
	signalVar   float64
}

// NewMatern52 returns a Matérn 5/2 kernel.
func NewMatern52(lengthScale, signalVar float64) (*Matern52, error) {
	if err := checkParams("NewMatern52", lengthScale, signalVar); err != nil {
		return nil, err
	}
	return &Matern52{lengthScale: lengthScale, signalVar: signalVar}, nil
}

// Eval implements Kernel.
func (k *Matern52) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(5) * floats.Distance(x1, x2, 2) / k.lengthScale
	return k.signalVar * (1 + r + r*r/3) * math.Exp(-r)
}

// Variance implements Kernel.
func (k *Matern52) Variance() float64 { return k.signalVar }

func (k *Matern52) String() string {
	return fmt.Sprintf("matern52(l=%g, s2=%g)", k.lengthScale, k.signalVar)
}
