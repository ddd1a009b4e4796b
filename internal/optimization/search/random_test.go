package search

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/optimizationtest"
)

func nan() float64 { return math.NaN() }

func TestRandomSearchTracksEveryDraw(t *testing.T) {
	draws := [][]float64{{3}, {-1}, {2}, {0.5}, {-4}}
	i := 0
	sample := func() []float64 {
		d := draws[i]
		i++
		return d
	}

	res, err := RandomSearch(context.Background(), optimizationtest.Sphere, RandomConfig{
		Sample:     sample,
		Iterations: len(draws),
	})
	require.NoError(t, err)

	optimizationtest.AssertRows(t, res.AllTheta, draws, 0)
	assert.Equal(t, []float64{9, 1, 4, 0.25, 16}, res.AllLoss)
	assert.Equal(t, []float64{9, 1, 1, 0.25, 0.25}, res.LossTrace)
	assert.Equal(t, []int{0, 1, 3}, res.BestIters)
	assert.Equal(t, []float64{0.5}, res.Theta)
	optimizationtest.AssertTraceInvariants(t, res)
}

func TestRandomSearchNaNStaysInTrace(t *testing.T) {
	losses := []float64{nan(), 2, nan(), 1}
	k := 0
	L := func(x []float64) (float64, error) {
		l := losses[k]
		k++
		return l, nil
	}

	res, err := RandomSearch(context.Background(), L, RandomConfig{
		Sample:     func() []float64 { return []float64{0} },
		Iterations: 4,
	})
	require.NoError(t, err)

	assert.Len(t, res.AllLoss, 4)
	assert.True(t, math.IsNaN(res.AllLoss[0]))
	assert.True(t, math.IsNaN(res.AllLoss[2]))
	assert.Equal(t, []float64{2, 1}, res.BestLosses)
	assert.Equal(t, 1.0, res.Loss)
	optimizationtest.AssertTraceInvariants(t, res)
}

func TestRandomSearchZeroIterations(t *testing.T) {
	res, err := RandomSearch(context.Background(), optimizationtest.Sphere, RandomConfig{
		Sample: func() []float64 { return []float64{1} },
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluations())
	assert.Nil(t, res.Theta)
	assert.True(t, math.IsInf(res.Loss, 1))
}

func TestRandomSearchDimensionMismatch(t *testing.T) {
	n := 0
	sample := func() []float64 {
		n++
		if n == 3 {
			return []float64{1, 2, 3}
		}
		return []float64{1, 2}
	}
	_, err := RandomSearch(context.Background(), optimizationtest.Sphere, RandomConfig{Sample: sample, Iterations: 5})
	assert.ErrorIs(t, err, optimization.ErrDimensionMismatch)
}
