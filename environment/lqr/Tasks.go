package lqr

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/environment"
	"gonum.org/v1/gonum/mat"
)

// Regulate implements the task of driving the state of an LQR system
// to the origin. The reward on each step is -(s'ᵀQs' + aᵀRa).
type Regulate struct {
	environment.Starter
	environment.Ender
	q, r *mat.SymDense
}

// NewRegulate returns a new Regulate task with state cost q and action
// cost r
func NewRegulate(s environment.Starter, e environment.Ender, q,
	r *mat.SymDense) (*Regulate, error) {
	if q == nil || r == nil {
		return nil, fmt.Errorf("newregulate: cost matrices cannot be nil")
	}
	return &Regulate{Starter: s, Ender: e, q: q, r: r}, nil
}

// NewIdentityRegulate returns a Regulate task with Q = I and R = rScale*I
func NewIdentityRegulate(s environment.Starter, e environment.Ender,
	stateDims, actionDims int, rScale float64) *Regulate {
	q := mat.NewSymDense(stateDims, nil)
	for i := 0; i < stateDims; i++ {
		q.SetSym(i, i, 1.0)
	}
	r := mat.NewSymDense(actionDims, nil)
	for i := 0; i < actionDims; i++ {
		r.SetSym(i, i, rScale)
	}
	return &Regulate{Starter: s, Ender: e, q: q, r: r}
}

// GetReward returns the negative quadratic cost of the transition
func (r *Regulate) GetReward(_, action, nextState mat.Vector) float64 {
	return -(mat.Inner(nextState, r.q, nextState) +
		mat.Inner(action, r.r, action))
}
