package mpo

import (
	"fmt"
	"math"

	"github.com/aunum/log"
	"github.com/samuelfneumann/gocontrol/distribution"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Dual is the convex dual of the non-parametric E-step of MPO. Given
// the target action values Q of M actions sampled in each of B states,
// the temperature η minimizes
//
//	g(η) = ηε + mean_b max_j Q_jb + η mean_b log mean_j exp((Q_jb - max_j Q_jb) / η)
//
// subject to η >= floor.
type Dual struct {
	q          *mat.Dense // M x B
	max        []float64  // Per-state maximum of q
	epsilon    float64
	floor      float64
	meanOfMaxQ float64
}

// NewDual returns the dual of the action values q, which has one row
// per sampled action and one column per state
func NewDual(q *mat.Dense, epsilon, floor float64) (*Dual, error) {
	if q == nil || q.IsEmpty() {
		return nil, fmt.Errorf("newdual: no action values")
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("newdual: constraint must be positive")
	}
	if floor <= 0 {
		return nil, fmt.Errorf("newdual: floor must be positive")
	}

	_, states := q.Dims()
	max := make([]float64, states)
	for b := range max {
		col := mat.Col(nil, b, q)
		if !allFinite(col) {
			return nil, fmt.Errorf("newdual: non-finite action value in "+
				"state %d: %w", b, distribution.ErrNumericalInstability)
		}
		max[b] = floats.Max(col)
	}

	return &Dual{
		q:          mat.DenseCopyOf(q),
		max:        max,
		epsilon:    epsilon,
		floor:      floor,
		meanOfMaxQ: floats.Sum(max) / float64(states),
	}, nil
}

// Value returns g(η)
func (d *Dual) Value(eta float64) float64 {
	actions, states := d.q.Dims()
	var logMeanExp float64
	for b := 0; b < states; b++ {
		var sum float64
		for j := 0; j < actions; j++ {
			sum += math.Exp((d.q.At(j, b) - d.max[b]) / eta)
		}
		logMeanExp += math.Log(sum / float64(actions))
	}
	return eta*d.epsilon + d.meanOfMaxQ + eta*logMeanExp/float64(states)
}

// Grad returns the derivative of g at η
func (d *Dual) Grad(eta float64) float64 {
	actions, states := d.q.Dims()
	var grad float64
	for b := 0; b < states; b++ {
		var sum, weighted float64
		for j := 0; j < actions; j++ {
			z := (d.q.At(j, b) - d.max[b]) / eta
			e := math.Exp(z)
			sum += e
			weighted += e * z
		}
		grad += math.Log(sum/float64(actions)) - weighted/sum
	}
	return d.epsilon + grad/float64(states)
}

// Minimize returns the η which minimizes the dual, starting the search
// at eta0. The search is done over x with η = floor + exp(x), so that
// the bound on η always holds. Minimization is best effort: if the
// optimizer fails, the best η found is returned, which is never worse
// than eta0.
func (d *Dual) Minimize(eta0 float64) float64 {
	if eta0 < d.floor || math.IsNaN(eta0) || math.IsInf(eta0, 0) {
		eta0 = d.floor
	}

	toEta := func(x float64) float64 {
		return d.floor + math.Exp(x)
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return d.Value(toEta(x[0]))
		},
		Grad: func(grad, x []float64) {
			grad[0] = d.Grad(toEta(x[0])) * math.Exp(x[0])
		},
	}

	x0 := math.Log(math.Max(eta0-d.floor, 1e-12))
	result, err := optimize.Minimize(problem, []float64{x0}, nil,
		&optimize.BFGS{})
	if result == nil {
		return eta0
	}
	if err != nil {
		log.Debugf("dual minimization stopped early: %v", err)
	}

	eta := toEta(result.X[0])
	if math.IsNaN(eta) || math.IsInf(eta, 0) ||
		!(d.Value(eta) <= d.Value(eta0)) {
		return eta0
	}
	return eta
}

// Weights returns the M x B matrix of normalized weights
//
//	w_jb = exp((Q_jb - max_j Q_jb) / η) / mean_j exp((Q_jb - max_j Q_jb) / η)
//
// which reweight the sampled actions into the non-parametric policy
func (d *Dual) Weights(eta float64) *mat.Dense {
	actions, states := d.q.Dims()
	w := mat.NewDense(actions, states, nil)
	for b := 0; b < states; b++ {
		var sum float64
		for j := 0; j < actions; j++ {
			e := math.Exp((d.q.At(j, b) - d.max[b]) / eta)
			w.Set(j, b, e)
			sum += e
		}
		mean := sum / float64(actions)
		for j := 0; j < actions; j++ {
			w.Set(j, b, w.At(j, b)/mean)
		}
	}
	return w
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
