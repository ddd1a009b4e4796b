package objectives

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/blackbox/internal/optimization"
)

// LineData is a set of (x, y) samples to fit a straight line to.
type LineData struct {
	X []float64
	Y []float64
}

// SyntheticLine samples n points of y = gradient*x + offset on [-5, 5] with
// Gaussian noise of the given standard deviation.
func SyntheticLine(n int, gradient, offset, noise float64, seed uint64) LineData {
	x := floats.Span(make([]float64, n), -5, 5)
	eps := distuv.Normal{Mu: 0, Sigma: noise, Src: rand.NewPCG(seed, seed)}
	y := make([]float64, n)
	for i, v := range x {
		y[i] = gradient*v + offset
		if noise > 0 {
			y[i] += eps.Rand()
		}
	}
	return LineData{X: x, Y: y}
}

// DefaultLineData is twenty noisy samples of y = 2.5x - 1.
func DefaultLineData() LineData {
	return SyntheticLine(20, 2.5, -1, 1, 2018)
}

// LineFit is the squared error sum((theta[0]*x + theta[1] - y)^2). Its
// Minimum is the least-squares solution.
func LineFit(data LineData) Objective {
	n := len(data.X)
	design := mat.NewDense(n, 2, nil)
	for i, v := range data.X {
		design.Set(i, 0, v)
		design.Set(i, 1, 1)
	}
	y := mat.NewVecDense(n, append([]float64(nil), data.Y...))

	residual := func(theta []float64) *mat.VecDense {
		r := mat.NewVecDense(n, nil)
		r.MulVec(design, mat.NewVecDense(2, append([]float64(nil), theta...)))
		r.SubVec(r, y)
		return r
	}

	var best mat.VecDense
	var minimum []float64
	if err := best.SolveVec(design, y); err == nil {
		minimum = []float64{best.AtVec(0), best.AtVec(1)}
	}

	return Objective{
		Func: func(theta []float64) (float64, error) {
			if len(theta) != 2 {
				return 0, fmt.Errorf("line needs [gradient, offset], got %d values: %w", len(theta), optimization.ErrDimensionMismatch)
			}
			r := residual(theta)
			return mat.Dot(r, r), nil
		},
		Gradient: func(theta []float64) []float64 {
			r := residual(theta)
			var g mat.VecDense
			g.MulVec(design.T(), r)
			g.ScaleVec(2, &g)
			return []float64{g.AtVec(0), g.AtVec(1)}
		},
		Bounds:  box(2, -5, 5),
		Minimum: minimum,
	}
}
