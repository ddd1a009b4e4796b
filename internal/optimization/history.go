package optimization

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Outcome tags what a tracked evaluation did to the best-checkpoint record.
type Outcome int

const (
	// Rejected evaluations appear only in the full trace.
	Rejected Outcome = iota
	// Improved evaluations strictly beat every earlier loss.
	Improved
	// Accepted evaluations were forced into the checkpoint record (an
	// annealing jump) without beating the global best.
	Accepted
)

// Recorded reports whether the evaluation produced a checkpoint.
func (o Outcome) Recorded() bool {
	return o != Rejected
}

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Improved:
		return "improved"
	case Accepted:
		return "accepted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// History is the append-only record of one optimiser run. It is owned by a
// single run and is not safe for concurrent use.
type History struct {
	dim int

	allTheta [][]float64
	allLoss  []float64
	outcomes []Outcome

	bestThetas [][]float64
	bestLosses []float64
	bestIters  []int

	// lossTrace[i] is the lowest loss among the first i+1 evaluations.
	lossTrace []float64

	best      float64
	bestTheta []float64
}

// NewHistory returns an empty history whose running best is +Inf.
func NewHistory() *History {
	return &History{best: math.Inf(1)}
}

// Track appends an evaluation and records a checkpoint only when loss
// strictly improves the running best. NaN never improves.
func (h *History) Track(theta []float64, loss float64) Outcome {
	return h.track(theta, loss, false)
}

// Accept appends an evaluation and always records a checkpoint. The running
// best moves only if loss also beats it, so the best-loss trace stays the
// running minimum of all losses.
func (h *History) Accept(theta []float64, loss float64) Outcome {
	return h.track(theta, loss, true)
}

func (h *History) track(theta []float64, loss float64, force bool) Outcome {
	h.checkDim(theta)
	theta = slices.Clone(theta)
	iter := len(h.allLoss)

	h.allTheta = append(h.allTheta, theta)
	h.allLoss = append(h.allLoss, loss)

	outcome := Rejected
	if loss < h.best {
		h.best = loss
		h.bestTheta = theta
		outcome = Improved
	} else if force {
		outcome = Accepted
	}
	if outcome.Recorded() {
		h.bestThetas = append(h.bestThetas, theta)
		h.bestLosses = append(h.bestLosses, loss)
		h.bestIters = append(h.bestIters, iter)
	}

	h.lossTrace = append(h.lossTrace, h.best)
	h.outcomes = append(h.outcomes, outcome)
	return outcome
}

// checkDim panics when theta does not match the dimensionality fixed by the
// first tracked candidate.
func (h *History) checkDim(theta []float64) {
	if len(theta) == 0 {
		panic(fmt.Errorf("%w: empty candidate", ErrDimensionMismatch))
	}
	if h.dim == 0 {
		h.dim = len(theta)
		return
	}
	if len(theta) != h.dim {
		panic(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(theta), h.dim))
	}
}

// Best returns a copy of the best candidate so far and its loss. The
// candidate is nil before any finite loss has been tracked.
func (h *History) Best() ([]float64, float64) {
	return slices.Clone(h.bestTheta), h.best
}

// Len returns the number of tracked evaluations.
func (h *History) Len() int {
	return len(h.allLoss)
}

// Dim returns the candidate dimensionality, or 0 before the first Track.
func (h *History) Dim() int {
	return h.dim
}

// LossChange is |lossTrace[i] - lossTrace[i-1]| for the latest evaluation,
// or +Inf until two evaluations exist. Two consecutive infinite bests give
// NaN, which compares false against any tolerance.
func (h *History) LossChange() float64 {
	n := len(h.lossTrace)
	if n < 2 {
		return math.Inf(1)
	}
	return math.Abs(h.lossTrace[n-1] - h.lossTrace[n-2])
}

// Finalise freezes the recorded sequences into a Result. The History must
// not be tracked again afterwards.
func (h *History) Finalise() *Result {
	return &Result{
		AllTheta:   toDense(h.allTheta, h.dim),
		AllLoss:    slices.Clone(h.allLoss),
		Outcomes:   slices.Clone(h.outcomes),
		BestThetas: toDense(h.bestThetas, h.dim),
		BestLosses: slices.Clone(h.bestLosses),
		BestIters:  slices.Clone(h.bestIters),
		LossTrace:  slices.Clone(h.lossTrace),
		Theta:      slices.Clone(h.bestTheta),
		Loss:       h.best,
	}
}

func toDense(rows [][]float64, dim int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	data := make([]float64, 0, len(rows)*dim)
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), dim, data)
}

// Result is a finalised History. Candidate sequences are n×d matrices, one
// row per evaluation or checkpoint; they are nil when empty.
type Result struct {
	AllTheta *mat.Dense
	AllLoss  []float64
	Outcomes []Outcome

	BestThetas *mat.Dense
	BestLosses []float64
	// BestIters holds zero-based indices into AllLoss.
	BestIters []int

	LossTrace []float64

	// Theta and Loss are the best candidate and loss found. Theta is nil
	// and Loss is +Inf when no finite loss was ever tracked.
	Theta []float64
	Loss  float64
}

// Evaluations returns the number of tracked evaluations.
func (r *Result) Evaluations() int {
	return len(r.AllLoss)
}

// Best returns the best solution found.
func (r *Result) Best() Solution {
	return Solution{Parameters: slices.Clone(r.Theta), Value: r.Loss}
}

// Candidate returns a copy of the i-th evaluated candidate.
func (r *Result) Candidate(i int) []float64 {
	return rowCopy(r.AllTheta, i)
}

// Checkpoint returns a copy of the i-th best checkpoint candidate.
func (r *Result) Checkpoint(i int) []float64 {
	return rowCopy(r.BestThetas, i)
}

func rowCopy(m *mat.Dense, i int) []float64 {
	if m == nil {
		panic(mat.ErrRowAccess)
	}
	return mat.Row(nil, i, m)
}
