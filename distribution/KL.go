package distribution

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// KLDecomposition decomposes the KL divergence between two Gaussians
// π = N(μ, Σ) and π_t = N(μ_t, Σ_t) into a mean term and a covariance
// term:
//
//	mean = ½ (μ - μ_t)ᵀ Σ⁻¹ (μ - μ_t)
//	cov  = ½ [tr(Σ⁻¹Σ_t) - d + log(|Σ| / |Σ_t|)]
//
// An error wrapping ErrNumericalInstability is returned if either
// covariance is singular or a non-finite value is produced.
func KLDecomposition(g, target *Gaussian) (mean, cov float64, err error) {
	if g.Dim() != target.Dim() {
		return 0, 0, fmt.Errorf("kldecomposition: dimension mismatch "+
			"\n\twant(%v) \n\thave(%v)", g.Dim(), target.Dim())
	}
	d := g.Dim()

	// Σ⁻¹ = A⁻ᵀA⁻¹
	var aInv mat.TriDense
	if err := aInv.InverseTri(g.chol); err != nil {
		return 0, 0, fmt.Errorf("kldecomposition: %w: %v",
			ErrNumericalInstability, err)
	}

	// tr(Σ⁻¹Σ_t) = |A⁻¹A_t|²_F
	var m mat.Dense
	m.Mul(&aInv, target.chol)
	trace := 0.0
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			v := m.At(i, j)
			trace += v * v
		}
	}

	// (μ - μ_t)ᵀ Σ⁻¹ (μ - μ_t) = |A⁻¹(μ - μ_t)|²
	diff := mat.NewVecDense(d, nil)
	for i := 0; i < d; i++ {
		diff.SetVec(i, g.mean[i]-target.mean[i])
	}
	var z mat.VecDense
	z.MulVec(&aInv, diff)
	mahalanobis := mat.Dot(&z, &z)

	// log |Σ| = 2 Σ log A_ii
	logDet := 0.0
	for i := 0; i < d; i++ {
		logDet += 2 * (math.Log(g.chol.At(i, i)) -
			math.Log(target.chol.At(i, i)))
	}

	mean = 0.5 * mahalanobis
	cov = 0.5 * (trace - float64(d) + logDet)
	if !finite(mean) || !finite(cov) {
		return 0, 0, fmt.Errorf("kldecomposition: %w: mean term %v, "+
			"covariance term %v", ErrNumericalInstability, mean, cov)
	}
	return mean, cov, nil
}

// MeanKLDecomposition returns the KL decomposition terms averaged over
// a batch of paired distributions
func MeanKLDecomposition(gs, targets []*Gaussian) (mean, cov float64,
	err error) {
	if len(gs) != len(targets) {
		return 0, 0, fmt.Errorf("meankldecomposition: have %v distributions"+
			" but %v targets", len(gs), len(targets))
	}
	if len(gs) == 0 {
		return 0, 0, fmt.Errorf("meankldecomposition: no distributions")
	}

	for i := range gs {
		m, c, err := KLDecomposition(gs[i], targets[i])
		if err != nil {
			return 0, 0, fmt.Errorf("meankldecomposition: index %d: %w", i, err)
		}
		mean += m
		cov += c
	}
	n := float64(len(gs))
	return mean / n, cov / n, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
