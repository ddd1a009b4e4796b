package drone

// Gains are the proportional, integral and derivative coefficients of a PID
// controller, applied identically on each axis.
type Gains struct {
	P float64 `json:"p" yaml:"p"`
	I float64 `json:"i" yaml:"i"`
	D float64 `json:"d" yaml:"d"`
}

// GainsFrom reads a candidate vector [p, i, d].
func GainsFrom(theta []float64) Gains {
	return Gains{P: theta[0], I: theta[1], D: theta[2]}
}

// PIDState is the controller memory carried between steps. The zero value
// is the state before the first step.
type PIDState struct {
	Integral  Vec3
	PrevError Vec3
}

// Vec3 is a point or direction in x, y, z.
type Vec3 [3]float64

// PID is a discrete controller with unit time step: the integral is a plain
// running sum and the derivative a plain difference of errors.
type PID struct {
	Gains Gains
}

// Step returns the control output for the observed position against the
// reference, and the state to pass to the next call.
func (c PID) Step(state PIDState, position, reference Vec3) (Vec3, PIDState) {
	var out Vec3
	next := state
	for k := range out {
		err := reference[k] - position[k]
		next.Integral[k] += err
		deriv := err - state.PrevError[k]
		next.PrevError[k] = err
		out[k] = c.Gains.P*err + c.Gains.I*next.Integral[k] + c.Gains.D*deriv
	}
	return out, next
}
