// Package lqr implements a linear dynamical system with quadratic cost,
// a small continuous-action environment useful for testing control
// algorithms.
package lqr

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/timestep"
	"gonum.org/v1/gonum/mat"
)

// LQR implements linear dynamics s' = As + Ba, where actions are
// clipped to [-ActionBound, ActionBound] in each dimension before being
// applied. Rewards are given by the Task.
type LQR struct {
	environment.Task
	a, b        *mat.Dense
	actionBound float64
	discount    float64
	lastStep    timestep.TimeStep
}

// New returns a new LQR environment with state transition matrix a,
// control matrix b, and symmetric action bound actionBound.
func New(t environment.Task, a, b *mat.Dense, actionBound,
	discount float64) (*LQR, error) {
	ar, ac := a.Dims()
	br, _ := b.Dims()
	if ar != ac {
		return nil, fmt.Errorf("new: state transition matrix must be "+
			"square, have(%v x %v)", ar, ac)
	}
	if br != ar {
		return nil, fmt.Errorf("new: control matrix must have %v rows, "+
			"have(%v)", ar, br)
	}
	if actionBound <= 0 {
		return nil, fmt.Errorf("new: action bound must be positive")
	}

	return &LQR{
		Task:        t,
		a:           mat.DenseCopyOf(a),
		b:           mat.DenseCopyOf(b),
		actionBound: actionBound,
		discount:    discount,
	}, nil
}

// NewIntegrator returns an LQR environment where each state dimension
// is an integrator of the corresponding action dimension with step
// size dt, that is s' = s + dt * a.
func NewIntegrator(t environment.Task, dims int, dt, actionBound,
	discount float64) (*LQR, error) {
	a := mat.NewDiagDense(dims, nil)
	b := mat.NewDiagDense(dims, nil)
	for i := 0; i < dims; i++ {
		a.SetDiag(i, 1.0)
		b.SetDiag(i, dt)
	}
	return New(t, mat.DenseCopyOf(a), mat.DenseCopyOf(b), actionBound,
		discount)
}

// Reset resets the environment to a starting state
func (l *LQR) Reset() (timestep.TimeStep, error) {
	state := l.Start()
	if rows, _ := l.a.Dims(); state.Len() != rows {
		return timestep.TimeStep{}, fmt.Errorf("reset: starting state "+
			"should have %v features, have(%v)", rows, state.Len())
	}
	l.lastStep = timestep.New(timestep.First, 0, l.discount, state, 0)
	return l.lastStep, nil
}

// Step applies the (clipped) action to the system
func (l *LQR) Step(action *mat.VecDense) (timestep.TimeStep, bool, error) {
	if l.lastStep.Observation == nil {
		return timestep.TimeStep{}, false, fmt.Errorf("step: environment " +
			"must be reset before stepping")
	}
	if _, cols := l.b.Dims(); action.Len() != cols {
		return timestep.TimeStep{}, false, fmt.Errorf("step: actions "+
			"should be %v-dimensional, have(%v)", cols, action.Len())
	}

	clipped := mat.NewVecDense(action.Len(), nil)
	for i := 0; i < action.Len(); i++ {
		v := action.AtVec(i)
		if v > l.actionBound {
			v = l.actionBound
		} else if v < -l.actionBound {
			v = -l.actionBound
		}
		clipped.SetVec(i, v)
	}

	rows, _ := l.a.Dims()
	next := mat.NewVecDense(rows, nil)
	next.MulVec(l.a, l.lastStep.Observation)
	control := mat.NewVecDense(rows, nil)
	control.MulVec(l.b, clipped)
	next.AddVec(next, control)

	reward := l.GetReward(l.lastStep.Observation, clipped, next)
	step := timestep.New(timestep.Mid, reward, l.discount, next,
		l.lastStep.Number+1)
	l.End(&step)

	l.lastStep = step
	return step, step.Last(), nil
}

// ObservationSpec returns the observation specification of the
// environment. Observations are unbounded.
func (l *LQR) ObservationSpec() environment.Spec {
	rows, _ := l.a.Dims()
	lower := mat.NewVecDense(rows, nil)
	upper := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		lower.SetVec(i, -1e300)
		upper.SetVec(i, 1e300)
	}
	return environment.NewSpec(mat.NewVecDense(rows, nil),
		environment.Observation, lower, upper, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (l *LQR) ActionSpec() environment.Spec {
	_, cols := l.b.Dims()
	lower := mat.NewVecDense(cols, nil)
	upper := mat.NewVecDense(cols, nil)
	for i := 0; i < cols; i++ {
		lower.SetVec(i, -l.actionBound)
		upper.SetVec(i, l.actionBound)
	}
	return environment.NewSpec(mat.NewVecDense(cols, nil),
		environment.Action, lower, upper, environment.Continuous)
}
