package runner

import (
	"math"
	"strconv"
	"time"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/objectives"
)

// Value is a loss that encodes non-finite numbers as JSON null.
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func values(xs []float64) []Value {
	out := make([]Value, len(xs))
	for i, x := range xs {
		out[i] = Value(x)
	}
	return out
}

// Checkpoint is one strict improvement, or forced acceptance, of a run.
type Checkpoint struct {
	// Iteration is the zero-based index of the evaluation that produced it.
	Iteration int       `json:"iteration"`
	Theta     []float64 `json:"theta"`
	Loss      Value     `json:"loss"`
}

// Summary is the outcome of a run in a form ready to print or serve.
type Summary struct {
	Algorithm   optimization.Algorithm `json:"algorithm"`
	Objective   string                 `json:"objective"`
	Theta       []float64              `json:"theta"`
	Loss        Value                  `json:"loss"`
	Evaluations int                    `json:"evaluations"`
	LossTrace   []Value                `json:"loss_trace"`
	Checkpoints []Checkpoint           `json:"checkpoints"`
	// Minimum is the objective's known minimiser, when it has one.
	Minimum  []float64     `json:"known_minimum,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Request  Request       `json:"request"`

	// Result is the full finalised history.
	Result *optimization.Result `json:"-"`
}

func newSummary(req Request, obj objectives.Objective, res *optimization.Result, elapsed time.Duration) *Summary {
	s := &Summary{
		Algorithm:   req.Algorithm,
		Objective:   obj.Name,
		Theta:       res.Theta,
		Loss:        Value(res.Loss),
		Evaluations: res.Evaluations(),
		LossTrace:   values(res.LossTrace),
		Checkpoints: make([]Checkpoint, len(res.BestLosses)),
		Minimum:     obj.Minimum,
		Duration:    elapsed,
		Request:     req,
		Result:      res,
	}
	for i := range res.BestLosses {
		s.Checkpoints[i] = Checkpoint{
			Iteration: res.BestIters[i],
			Theta:     res.Checkpoint(i),
			Loss:      Value(res.BestLosses[i]),
		}
	}
	return s
}
