package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/optimizationtest"
)

func recordingObjective(seen *[][]float64, L optimization.ObjectiveFunction) optimization.ObjectiveFunction {
	return func(x []float64) (float64, error) {
		*seen = append(*seen, append([]float64(nil), x...))
		return L(x)
	}
}

func TestGridSearchSingleRange(t *testing.T) {
	var seen [][]float64
	res, err := GridSearch(context.Background(), recordingObjective(&seen, optimizationtest.Sphere), GridConfig{
		Ranges:    [][2]float64{{0, 1}},
		Divisions: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0}, {0.5}, {1}}, seen)
	optimizationtest.AssertRows(t, res.AllTheta, [][]float64{{0}, {0.5}, {1}}, 0)
	assert.Equal(t, []float64{0}, res.Theta)
	assert.Equal(t, 0.0, res.Loss)
	optimizationtest.AssertTraceInvariants(t, res)
}

func TestGridSearchRowMajor(t *testing.T) {
	res, err := GridSearch(context.Background(), optimizationtest.Sphere, GridConfig{
		Ranges:    [][2]float64{{0, 1}, {-1, 1}},
		Divisions: 3,
	})
	require.NoError(t, err)

	want := [][]float64{
		{0, -1}, {0, 0}, {0, 1},
		{0.5, -1}, {0.5, 0}, {0.5, 1},
		{1, -1}, {1, 0}, {1, 1},
	}
	assert.Equal(t, 9, res.Evaluations())
	optimizationtest.AssertRows(t, res.AllTheta, want, 1e-12)
	assert.Equal(t, []float64{0, 0}, res.Theta)
	optimizationtest.AssertTraceInvariants(t, res)
}

func TestGridSearchMaxIter(t *testing.T) {
	res, err := GridSearch(context.Background(), optimizationtest.Sphere, GridConfig{
		Ranges:    [][2]float64{{0, 1}, {0, 1}},
		Divisions: 4,
		MaxIter:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Evaluations())
	optimizationtest.AssertFloat64SlicesEqual(t, res.Candidate(1), []float64{0, 1.0 / 3}, 1e-12)
	optimizationtest.AssertFloat64SlicesEqual(t, res.Candidate(4), []float64{1.0 / 3, 0}, 1e-12)
}

func TestGridSearchFirstTieWins(t *testing.T) {
	flat := func(x []float64) (float64, error) { return 1, nil }
	res, err := GridSearch(context.Background(), flat, GridConfig{
		Ranges:    [][2]float64{{-1, 1}},
		Divisions: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1}, res.Theta)
	assert.Equal(t, []int{0}, res.BestIters)
}

func TestGridSearchSingleDivision(t *testing.T) {
	res, err := GridSearch(context.Background(), optimizationtest.Sphere, GridConfig{
		Ranges:    [][2]float64{{2, 5}, {3, 4}},
		Divisions: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluations())
	assert.Equal(t, []float64{2, 3}, res.Theta)
}

func TestGridSearchValidation(t *testing.T) {
	tests := []struct {
		name string
		L    optimization.ObjectiveFunction
		cfg  GridConfig
	}{
		{"nil objective", nil, GridConfig{Ranges: [][2]float64{{0, 1}}, Divisions: 2}},
		{"no ranges", optimizationtest.Sphere, GridConfig{Divisions: 2}},
		{"zero divisions", optimizationtest.Sphere, GridConfig{Ranges: [][2]float64{{0, 1}}}},
		{"negative max iter", optimizationtest.Sphere, GridConfig{Ranges: [][2]float64{{0, 1}}, Divisions: 2, MaxIter: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := GridSearch(context.Background(), tt.L, tt.cfg)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.True(t, errors.Is(err, optimization.ErrInvalidConfig))
			oe, ok := optimization.IsOptimizationError(err)
			require.True(t, ok)
			assert.Equal(t, "GridSearch", oe.Op)
		})
	}
}

func TestGridSearchObjectiveErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	L := func(x []float64) (float64, error) {
		calls++
		if calls == 2 {
			return 0, boom
		}
		return x[0], nil
	}

	res, err := GridSearch(context.Background(), L, GridConfig{Ranges: [][2]float64{{0, 1}}, Divisions: 5})
	assert.Nil(t, res)
	assert.Same(t, boom, err)
	assert.Equal(t, 2, calls)
}

func TestGridSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GridSearch(ctx, optimizationtest.Sphere, GridConfig{Ranges: [][2]float64{{0, 1}}, Divisions: 3})
	assert.ErrorIs(t, err, context.Canceled)
}
