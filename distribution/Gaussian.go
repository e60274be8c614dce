// Package distribution implements multivariate Gaussian distributions
// parameterized by a mean and the lower triangular Cholesky factor of
// their covariance.
package distribution

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrNumericalInstability is reported when a covariance matrix is
// singular or contains non-finite values
var ErrNumericalInstability = errors.New("numerical instability")

// IsNumericalInstability returns whether err reports a numerical
// instability
func IsNumericalInstability(err error) bool {
	return errors.Is(err, ErrNumericalInstability)
}

// Gaussian is a multivariate normal distribution N(μ, AAᵀ) where A is a
// lower triangular matrix with a positive diagonal
type Gaussian struct {
	mean []float64
	chol *mat.TriDense
}

// NewGaussian returns a new Gaussian with the given mean and Cholesky
// factor of the covariance. An error wrapping ErrNumericalInstability
// is returned if the factor has a non-positive or non-finite diagonal
// entry.
func NewGaussian(mean []float64, chol *mat.TriDense) (*Gaussian, error) {
	if chol == nil {
		return nil, fmt.Errorf("newgaussian: nil cholesky factor")
	}
	n, kind := chol.Triangle()
	if kind != mat.Lower {
		return nil, fmt.Errorf("newgaussian: cholesky factor must be lower " +
			"triangular")
	}
	if n != len(mean) {
		return nil, fmt.Errorf("newgaussian: mean has dimension %v but "+
			"cholesky factor has dimension %v", len(mean), n)
	}
	if err := checkFactor(chol); err != nil {
		return nil, fmt.Errorf("newgaussian: %w", err)
	}
	for i, m := range mean {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("newgaussian: %w: mean[%d] = %v",
				ErrNumericalInstability, i, m)
		}
	}

	c := mat.NewTriDense(n, mat.Lower, nil)
	c.Copy(chol)
	return &Gaussian{mean: append([]float64(nil), mean...), chol: c}, nil
}

// NewDiagonal returns a new Gaussian with a diagonal covariance whose
// standard deviations are std
func NewDiagonal(mean, std []float64) (*Gaussian, error) {
	if len(mean) != len(std) {
		return nil, fmt.Errorf("newdiagonal: mean and std must have the "+
			"same length \n\twant(%v) \n\thave(%v)", len(mean), len(std))
	}
	chol := mat.NewTriDense(len(std), mat.Lower, nil)
	for i, s := range std {
		chol.SetTri(i, i, s)
	}
	return NewGaussian(mean, chol)
}

// Dim returns the dimension of the distribution
func (g *Gaussian) Dim() int {
	return len(g.mean)
}

// Mean returns a copy of the mean
func (g *Gaussian) Mean() []float64 {
	return append([]float64(nil), g.mean...)
}

// Chol returns the Cholesky factor of the covariance
func (g *Gaussian) Chol() mat.Triangular {
	return g.chol
}

// Cov returns the covariance matrix AAᵀ
func (g *Gaussian) Cov() *mat.SymDense {
	cov := mat.NewSymDense(g.Dim(), nil)
	cov.SymOuterK(1, g.chol)
	return cov
}

// Sample draws a sample μ + Az, z ~ N(0, I), using src as the source of
// randomness
func (g *Gaussian) Sample(src rand.Source) []float64 {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	z := mat.NewVecDense(g.Dim(), nil)
	for i := 0; i < g.Dim(); i++ {
		z.SetVec(i, normal.Rand())
	}

	x := mat.NewVecDense(g.Dim(), nil)
	x.MulVec(g.chol, z)
	floats.Add(x.RawVector().Data, g.mean)

	return x.RawVector().Data
}

// LogProb returns the log density of x
func (g *Gaussian) LogProb(x []float64) (float64, error) {
	if len(x) != g.Dim() {
		return 0, fmt.Errorf("logprob: x has dimension %v, want %v", len(x),
			g.Dim())
	}

	// Solve Az = x - μ, then log p = -½|z|² - log|A| - (d/2)log 2π
	diff := mat.NewVecDense(g.Dim(), nil)
	for i := range x {
		diff.SetVec(i, x[i]-g.mean[i])
	}
	var z mat.VecDense
	if err := z.SolveVec(g.chol, diff); err != nil {
		return 0, fmt.Errorf("logprob: %w: %v", ErrNumericalInstability, err)
	}

	logDet := 0.0
	for i := 0; i < g.Dim(); i++ {
		logDet += math.Log(g.chol.At(i, i))
	}

	d := float64(g.Dim())
	lp := -0.5*mat.Dot(&z, &z) - logDet - 0.5*d*math.Log(2*math.Pi)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return 0, fmt.Errorf("logprob: %w: log density %v",
			ErrNumericalInstability, lp)
	}
	return lp, nil
}

// checkFactor ensures that a Cholesky factor has a strictly positive,
// finite diagonal and finite entries, so that AAᵀ is positive definite
func checkFactor(chol mat.Triangular) error {
	n, _ := chol.Triangle()
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := chol.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: cholesky factor entry (%d, %d) = %v",
					ErrNumericalInstability, i, j, v)
			}
		}
		if chol.At(i, i) <= 0 {
			return fmt.Errorf("%w: cholesky factor diagonal entry %d = %v "+
				"is not positive", ErrNumericalInstability, i, chol.At(i, i))
		}
	}
	return nil
}
