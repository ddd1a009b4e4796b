// Package drone is a deliberately crude linear quadcopter model used as an
// optimisation target: PID gains are tuned so that the simulated flight
// follows a reference path through wind and gusts.
package drone

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

const (
	// DefaultRate is the control rate in steps per second.
	DefaultRate = 50

	stateDim = 9 // position, velocity, acceleration

	dt              = 0.002
	thrustLimit     = 55.0
	gustSigma       = 15.0
	airResistance   = 0.99
	gravity         = 0.08
	controlGain     = 0.1
	disturbanceGain = 0.6
	groundLevel     = 0.05
	groundDrag      = 0.2
)

// Model holds the state-space matrices of the drone.
type Model struct {
	dynamics    *mat.Dense // 9x9
	control     *mat.Dense // 9x3
	disturbance *mat.Dense // 9x3
}

// NewModel builds the fixed linear model: positions integrate velocities,
// velocities integrate accelerations, thrust acts on velocity and wind acts
// on velocity with the axes rotated (z, x, y).
func NewModel() *Model {
	a := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		a.Set(i, i, 1)
		if i+3 < stateDim {
			a.Set(i, i+3, dt)
		}
	}

	b := mat.NewDense(stateDim, 3, nil)
	for k := 0; k < 3; k++ {
		b.Set(3+k, k, controlGain)
	}

	d := mat.NewDense(stateDim, 3, nil)
	d.Set(5, 0, disturbanceGain)
	d.Set(3, 1, disturbanceGain)
	d.Set(4, 2, disturbanceGain)

	return &Model{dynamics: a, control: b, disturbance: d}
}

// Wind is the slowly varying disturbance at time t seconds.
func Wind(t float64) Vec3 {
	return Vec3{
		math.Cos(t*0.035) - 0.1,
		math.Sin(t*0.02) + 4,
		math.Cos(t * 0.05),
	}
}

// Simulate flies the drone from rest at the origin, one step per reference
// row, and returns the n×3 flight path. Gusts are drawn from src; passing the
// same seed twice gives the same flight.
func (m *Model) Simulate(pid PID, reference *mat.Dense, rate float64, src rand.Source) *mat.Dense {
	n, _ := reference.Dims()
	path := mat.NewDense(n, 3, nil)
	gust := distuv.Normal{Mu: 0, Sigma: gustSigma, Src: src}

	x := mat.NewVecDense(stateDim, nil)
	next := mat.NewVecDense(stateDim, nil)
	tmp := mat.NewVecDense(stateDim, nil)
	u := mat.NewVecDense(3, nil)
	w := mat.NewVecDense(3, nil)
	var ctl PIDState

	for i := 0; i < n; i++ {
		pos := Vec3{x.AtVec(0), x.AtVec(1), x.AtVec(2)}
		ref := Vec3{reference.At(i, 0), reference.At(i, 1), reference.At(i, 2)}

		var out Vec3
		out, ctl = pid.Step(ctl, pos, ref)
		for k, v := range out {
			u.SetVec(k, math.Max(-thrustLimit, math.Min(v, thrustLimit)))
		}

		wind := Wind(float64(i) / rate)
		for k := range wind {
			w.SetVec(k, wind[k]+gust.Rand())
		}
		if x.AtVec(2) < groundLevel {
			w.Zero()
			x.SetVec(3, x.AtVec(3)*groundDrag)
			x.SetVec(4, x.AtVec(4)*groundDrag)
			x.SetVec(2, math.Max(x.AtVec(2), 0))
		}

		next.MulVec(m.dynamics, x)
		tmp.MulVec(m.control, u)
		next.AddVec(next, tmp)
		tmp.MulVec(m.disturbance, w)
		next.AddVec(next, tmp)

		for k := 3; k < 6; k++ {
			next.SetVec(k, next.AtVec(k)*airResistance)
		}
		next.SetVec(8, next.AtVec(8)-gravity)

		x, next = next, x
		path.Set(i, 0, x.AtVec(0))
		path.Set(i, 1, x.AtVec(1))
		path.Set(i, 2, x.AtVec(2))
	}
	return path
}

// Circuit is a reference path: climb to altitude over the first two
// seconds, then circle the take-off point.
func Circuit(n int, rate, radius, altitude float64) *mat.Dense {
	ref := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		t := float64(i) / rate
		climb := math.Min(t/2, 1)
		phase := 2 * math.Pi * t / 10
		ref.Set(i, 0, radius*(math.Cos(phase)-1))
		ref.Set(i, 1, radius*math.Sin(phase))
		ref.Set(i, 2, altitude*climb)
	}
	return ref
}

// TrackingLoss is the mean squared distance between path and reference.
func TrackingLoss(path, reference *mat.Dense) float64 {
	n, _ := path.Dims()
	if n == 0 {
		return math.Inf(1)
	}
	var diff mat.Dense
	diff.Sub(path, reference)
	d := diff.RawMatrix().Data
	return floats.Dot(d, d) / float64(n)
}

// TuningConfig describes the flight used to score a set of gains.
type TuningConfig struct {
	// Steps is the number of control steps flown.
	Steps int
	// Seed fixes the gusts so every candidate flies the same weather. Zero
	// selects the default seed.
	Seed uint64
}

// DefaultTuning flies twenty seconds at the default rate.
func DefaultTuning() TuningConfig {
	return TuningConfig{Steps: 20 * DefaultRate, Seed: 2018}
}

// Objective returns a loss over [p, i, d] gains: the tracking loss of a
// simulated circuit flight. Unstable gains give very large or non-finite
// losses, which the optimisers never select.
func Objective(cfg TuningConfig) optimization.ObjectiveFunction {
	if cfg.Steps < 1 {
		cfg.Steps = DefaultTuning().Steps
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultTuning().Seed
	}
	model := NewModel()
	ref := Circuit(cfg.Steps, DefaultRate, 3, 2)
	return func(theta []float64) (float64, error) {
		if len(theta) != 3 {
			return 0, fmt.Errorf("drone: gains need 3 values, got %d: %w", len(theta), optimization.ErrDimensionMismatch)
		}
		path := model.Simulate(PID{Gains: GainsFrom(theta)}, ref, DefaultRate, optimization.NewSource(cfg.Seed))
		return TrackingLoss(path, ref), nil
	}
}
