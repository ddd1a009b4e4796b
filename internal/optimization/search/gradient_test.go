package search

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/optimizationtest"
)

func square(x []float64) (float64, error) { return x[0] * x[0], nil }

func squareGrad(x []float64) []float64 { return []float64{2 * x[0]} }

func TestGradientDescentSquare(t *testing.T) {
	theta0 := []float64{10}
	res, err := GradientDescent(context.Background(), square, GradientConfig{
		Gradient: squareGrad,
		Theta0:   theta0,
		Delta:    0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{10}, theta0, "initial theta must not be modified")
	assert.InDelta(t, 8.0, res.Candidate(0)[0], 1e-12)

	for i := 1; i < len(res.AllLoss); i++ {
		assert.Less(t, res.AllLoss[i], res.AllLoss[i-1], "loss not decreasing at %d", i)
	}

	n := len(res.LossTrace)
	require.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, math.Abs(res.LossTrace[n-1]-res.LossTrace[n-2]), DefaultTolerance)
	assert.Greater(t, math.Abs(res.LossTrace[n-2]-res.LossTrace[n-3]), DefaultTolerance,
		"run should stop at the first step below tolerance")
	assert.Less(t, math.Abs(res.Theta[0]), 0.05)
	optimizationtest.AssertTraceInvariants(t, res)
}

func TestGradientDescentMaxIter(t *testing.T) {
	res, err := GradientDescent(context.Background(), square, GradientConfig{
		Gradient: squareGrad,
		Theta0:   []float64{10},
		Delta:    0.01,
		MaxIter:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Evaluations())
}

func TestGradientDescentStopsWhenOvershooting(t *testing.T) {
	// a step of 1.5 on x^2 maps x to -2x, so the loss grows and the best
	// loss stops changing after the second step
	res, err := GradientDescent(context.Background(), square, GradientConfig{
		Gradient: squareGrad,
		Theta0:   []float64{10},
		Delta:    1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{400, 1600}, res.AllLoss)
	assert.Equal(t, []float64{-20}, res.Theta)
}

func TestGradientDescentNonFiniteObjectiveTerminates(t *testing.T) {
	tests := []struct {
		name string
		loss float64
	}{
		{"nan", math.NaN()},
		{"inf", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			L := func([]float64) (float64, error) {
				calls++
				return tt.loss, nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			res, err := GradientDescent(ctx, L, GradientConfig{
				Gradient: func([]float64) []float64 { return []float64{1} },
				Theta0:   []float64{1},
				Delta:    0.1,
			})
			require.NoError(t, err)
			assert.Equal(t, 2, calls)
			assert.Equal(t, 2, res.Evaluations())
			assert.True(t, math.IsInf(res.Loss, 1))
			assert.Nil(t, res.Theta)
		})
	}
}

func TestGradientDescentMultivariate(t *testing.T) {
	res, err := GradientDescent(context.Background(), optimizationtest.Sphere, GradientConfig{
		Gradient:  func(x []float64) []float64 { return []float64{2 * x[0], 2 * x[1]} },
		Theta0:    []float64{3, -4},
		Delta:     0.05,
		Tolerance: 1e-8,
	})
	require.NoError(t, err)
	optimizationtest.AssertFloat64SlicesEqual(t, res.Theta, []float64{0, 0}, 1e-3)
}

func TestGradientDescentGradientDimensionMismatch(t *testing.T) {
	_, err := GradientDescent(context.Background(), square, GradientConfig{
		Gradient: func(x []float64) []float64 { return []float64{1, 2} },
		Theta0:   []float64{1},
		Delta:    0.1,
	})
	assert.ErrorIs(t, err, optimization.ErrDimensionMismatch)
}

func TestGradientDescentValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GradientConfig
	}{
		{"missing gradient", GradientConfig{Theta0: []float64{1}, Delta: 0.1}},
		{"missing theta", GradientConfig{Gradient: squareGrad, Delta: 0.1}},
		{"zero step", GradientConfig{Gradient: squareGrad, Theta0: []float64{1}}},
		{"negative tolerance", GradientConfig{Gradient: squareGrad, Theta0: []float64{1}, Delta: 0.1, Tolerance: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GradientDescent(context.Background(), square, tt.cfg)
			assert.ErrorIs(t, err, optimization.ErrInvalidConfig)
		})
	}
}
