// Package bayesian fits the Gaussian process surrogate behind the bayes
// search strategy.
package bayesian

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/kernels"
)

const component = "gaussian_process"

// maxJitterTries bounds how often Fit inflates the diagonal before giving up
// on a factorisation.
const maxJitterTries = 6

// GP is a zero-mean Gaussian process on standardised targets.
type GP struct {
	kernel   kernels.Kernel
	noiseVar float64

	x     *mat.Dense
	alpha *mat.VecDense
	chol  mat.Cholesky

	// Targets are standardised before fitting; predictions are mapped back.
	yMean, yStd float64
}

// NewGP returns an unfitted GP. noiseVar is added to the kernel diagonal.
func NewGP(kernel kernels.Kernel, noiseVar float64) (*GP, error) {
	if kernel == nil {
		return nil, optimization.InvalidConfig(component, "NewGP", "kernel is required")
	}
	if noiseVar < 0 || math.IsNaN(noiseVar) {
		return nil, optimization.InvalidConfig(component, "NewGP", "noise variance must not be negative, got %v", noiseVar)
	}
	return &GP{kernel: kernel, noiseVar: noiseVar}, nil
}

// Fit conditions the GP on rows of X and their targets y. Non-finite
// targets must be filtered out by the caller.
func (gp *GP) Fit(X *mat.Dense, y []float64) error {
	const op = "Fit"

	if X == nil {
		return optimization.InvalidConfig(component, op, "training inputs are required")
	}
	n, _ := X.Dims()
	if n != len(y) {
		return optimization.WrapErrorf(optimization.ErrDimensionMismatch,
			"%d inputs but %d targets", n, len(y)).WithComponent(component).WithOperation(op)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return optimization.InvalidConfig(component, op, "target %d is not finite", i)
		}
	}

	gp.x, gp.alpha = nil, nil
	gp.yMean, gp.yStd = stat.MeanStdDev(y, nil)
	if n < 2 || !(gp.yStd > 0) {
		gp.yStd = 1
	}
	z := mat.NewVecDense(n, nil)
	for i, v := range y {
		z.SetVec(i, (v-gp.yMean)/gp.yStd)
	}

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		for j := i; j < n; j++ {
			K.SetSym(i, j, gp.kernel.Eval(xi, X.RawRowView(j)))
		}
	}

	jitter := gp.noiseVar
	if jitter == 0 {
		jitter = 1e-10
	}
	for try := 0; ; try++ {
		Kn := mat.NewSymDense(n, nil)
		Kn.CopySym(K)
		for i := 0; i < n; i++ {
			Kn.SetSym(i, i, Kn.At(i, i)+jitter)
		}
		if gp.chol.Factorize(Kn) {
			break
		}
		if try == maxJitterTries {
			return optimization.NewErrorf("kernel matrix is not positive definite").
				WithComponent(component).WithOperation(op)
		}
		jitter *= 100
	}

	var alpha mat.VecDense
	if err := gp.chol.SolveVecTo(&alpha, z); err != nil {
		return optimization.WrapErrorf(err, "solve for weights").WithComponent(component).WithOperation(op)
	}
	gp.x = mat.DenseCopyOf(X)
	gp.alpha = &alpha
	return nil
}

// Fitted reports whether Fit has succeeded at least once.
func (gp *GP) Fitted() bool { return gp.alpha != nil }

// Predict returns the posterior mean and standard deviation at x, in the
// units of the fitted targets.
func (gp *GP) Predict(x []float64) (mu, sigma float64, err error) {
	if !gp.Fitted() {
		return 0, 0, optimization.NewErrorf("model is not fitted").
			WithComponent(component).WithOperation("Predict")
	}
	n, d := gp.x.Dims()
	if len(x) != d {
		return 0, 0, optimization.DimensionMismatch(component, "Predict", len(x), d)
	}

	k := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetVec(i, gp.kernel.Eval(x, gp.x.RawRowView(i)))
	}
	mean := mat.Dot(k, gp.alpha)

	var v mat.VecDense
	if err := gp.chol.SolveVecTo(&v, k); err != nil {
		return 0, 0, optimization.WrapErrorf(err, "solve for variance").
			WithComponent(component).WithOperation("Predict")
	}
	variance := math.Max(gp.kernel.Variance()-mat.Dot(k, &v), 0)

	return gp.yMean + gp.yStd*mean, gp.yStd * math.Sqrt(variance), nil
}
