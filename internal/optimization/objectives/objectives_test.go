package objectives

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"attractor", "drone-pid", "himmelblau", "linefit", "rastrigin", "rosenbrock", "sphere"}, Names())

	desc, ok := Describe("sphere")
	assert.True(t, ok)
	assert.NotEmpty(t, desc)
	_, ok = Describe("nope")
	assert.False(t, ok)
}

func TestLookupDimensions(t *testing.T) {
	tests := []struct {
		name    string
		dim     int
		wantDim int
		wantErr error
	}{
		{name: "sphere", dim: 0, wantDim: 2},
		{name: "sphere", dim: 5, wantDim: 5},
		{name: "rosenbrock", dim: 4, wantDim: 4},
		{name: "himmelblau", dim: 0, wantDim: 2},
		{name: "himmelblau", dim: 2, wantDim: 2},
		{name: "himmelblau", dim: 3, wantErr: optimization.ErrDimensionMismatch},
		{name: "drone-pid", dim: 0, wantDim: 3},
		{name: "linefit", dim: 0, wantDim: 2},
		{name: "attractor", dim: 0, wantDim: 2},
		{name: "attractor", dim: 3, wantErr: optimization.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Lookup(tt.name, tt.dim)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, obj.Name)
			assert.Len(t, obj.Bounds, tt.wantDim)
			require.NoError(t, obj.Bounds.Validate())
		})
	}

	_, err := Lookup("unknown", 0)
	assert.Error(t, err)
	_, err = Lookup("sphere", -1)
	assert.Error(t, err)
}

func TestMinimaAreZero(t *testing.T) {
	for _, name := range []string{"sphere", "rosenbrock", "rastrigin", "himmelblau", "attractor"} {
		t.Run(name, func(t *testing.T) {
			obj, err := Lookup(name, 0)
			require.NoError(t, err)
			v, err := obj.Func(obj.Minimum)
			require.NoError(t, err)
			assert.InDelta(t, 0.0, v, 1e-9)
		})
	}
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	points := [][]float64{{0.3, -1.2}, {1.5, 0.7}, {-2.1, 2.2}}
	for _, name := range []string{"sphere", "rosenbrock", "rastrigin", "himmelblau", "linefit"} {
		t.Run(name, func(t *testing.T) {
			obj, err := Lookup(name, 2)
			require.NoError(t, err)
			require.NotNil(t, obj.Gradient)

			f := func(x []float64) float64 {
				v, err := obj.Func(x)
				require.NoError(t, err)
				return v
			}
			for _, p := range points {
				want := fd.Gradient(nil, f, p, &fd.Settings{Formula: fd.Central})
				got := obj.Gradient(p)
				assert.InDeltaSlice(t, want, got, 1e-3*(1+maxAbs(want)))
			}
		})
	}
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

func TestLineFitRecoversLine(t *testing.T) {
	exact := LineFit(SyntheticLine(11, 2, 3, 0, 1))
	require.Len(t, exact.Minimum, 2)
	assert.InDelta(t, 2.0, exact.Minimum[0], 1e-9)
	assert.InDelta(t, 3.0, exact.Minimum[1], 1e-9)

	v, err := exact.Func([]float64{2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-18)

	// 11 points, every residual is 1
	v, err = exact.Func([]float64{2, 4})
	require.NoError(t, err)
	assert.InDelta(t, 11.0, v, 1e-9)

	noisy := LineFit(DefaultLineData())
	assert.InDelta(t, 2.5, noisy.Minimum[0], 0.5)
	assert.InDelta(t, -1.0, noisy.Minimum[1], 1.0)
}

func TestDimensionErrors(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			obj, err := Lookup(name, 0)
			require.NoError(t, err)
			_, err = obj.Func(make([]float64, len(obj.Bounds)+1))
			assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch), "got %v", err)
		})
	}
}
