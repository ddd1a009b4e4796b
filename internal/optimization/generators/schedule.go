package generators

import (
	"fmt"
	"math"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// Schedule names an annealing temperature schedule.
type Schedule string

const (
	Exponential Schedule = "exponential"
	Linear      Schedule = "linear"
	Constant    Schedule = "constant"
)

// ExponentialCooling returns t0 * rate^i.
func ExponentialCooling(t0, rate float64) optimization.TemperatureFunc {
	return func(i int) float64 {
		return t0 * math.Pow(rate, float64(i))
	}
}

// LinearCooling falls from t0 to zero over iters iterations and stays there.
func LinearCooling(t0 float64, iters int) optimization.TemperatureFunc {
	return func(i int) float64 {
		if iters <= 0 || i >= iters {
			return 0
		}
		return t0 * (1 - float64(i)/float64(iters))
	}
}

// ConstantTemperature always returns t.
func ConstantTemperature(t float64) optimization.TemperatureFunc {
	return func(int) float64 { return t }
}

// NewSchedule builds a named schedule. rate is only read by the exponential
// schedule and iters only by the linear one.
func NewSchedule(name Schedule, t0, rate float64, iters int) (optimization.TemperatureFunc, error) {
	if t0 < 0 || math.IsNaN(t0) {
		return nil, fmt.Errorf("initial temperature must not be negative, got %v", t0)
	}
	switch name {
	case Exponential, "":
		if rate <= 0 || rate > 1 {
			return nil, fmt.Errorf("cooling rate must be in (0, 1], got %v", rate)
		}
		return ExponentialCooling(t0, rate), nil
	case Linear:
		return LinearCooling(t0, iters), nil
	case Constant:
		return ConstantTemperature(t0), nil
	default:
		return nil, fmt.Errorf("unknown temperature schedule %q", name)
	}
}
