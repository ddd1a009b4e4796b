// Package optimizationtest holds assertions shared by optimiser tests.
package optimizationtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// Sphere is the quadratic bowl sum(x_i^2), minimum 0 at the origin.
func Sphere(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// AssertFloat64SlicesEqual checks if two float64 slices are approximately equal
func AssertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	require.Len(t, got, len(want), "length mismatch")
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertRows checks that m has exactly the given rows, in order.
func AssertRows(t *testing.T, m *mat.Dense, want [][]float64, tol float64) {
	t.Helper()

	require.NotNil(t, m)
	r, c := m.Dims()
	require.Equal(t, len(want), r, "row count mismatch")
	for i := range want {
		require.Equal(t, len(want[i]), c, "column count mismatch")
		AssertFloat64SlicesEqual(t, mat.Row(nil, i, m), want[i], tol)
	}
}

// AssertTraceInvariants checks the relations every finalised run must
// satisfy: the best-loss trace is the running minimum of all losses, the
// reported best matches the end of the trace, and checkpoint indices point
// at the losses they claim.
func AssertTraceInvariants(t *testing.T, res *optimization.Result) {
	t.Helper()

	require.NotNil(t, res)
	require.Len(t, res.LossTrace, len(res.AllLoss))
	require.Len(t, res.Outcomes, len(res.AllLoss))

	running := math.Inf(1)
	for i, l := range res.AllLoss {
		if l < running {
			running = l
		}
		require.Equal(t, running, res.LossTrace[i], "trace[%d] is not the running minimum", i)
		if i > 0 {
			require.LessOrEqual(t, res.LossTrace[i], res.LossTrace[i-1], "trace increases at %d", i)
		}
	}
	require.Equal(t, running, res.Loss)

	require.Len(t, res.BestIters, len(res.BestLosses))
	for k, idx := range res.BestIters {
		require.Equal(t, res.AllLoss[idx], res.BestLosses[k], "checkpoint %d", k)
		require.True(t, res.Outcomes[idx].Recorded(), "checkpoint %d not tagged", k)
	}
}
