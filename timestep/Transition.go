package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition is a single (s, a, r, s') tuple of experience
type Transition struct {
	State     *mat.VecDense
	Action    *mat.VecDense
	Reward    float64
	NextState *mat.VecDense
}

// NewTransition returns a Transition built from the TimeStep in which
// an action was taken and the TimeStep that followed. The vectors are
// copied, so later changes to the TimeSteps' observations are not
// reflected in the Transition.
func NewTransition(step TimeStep, action mat.Vector,
	next TimeStep) Transition {
	return Transition{
		State:     copyVec(step.Observation),
		Action:    copyVec(action),
		Reward:    next.Reward,
		NextState: copyVec(next.Observation),
	}
}

// Dims returns the sizes of the state and action vectors
func (t Transition) Dims() (state, action int) {
	return t.State.Len(), t.Action.Len()
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | State: %v  |  Action: %v  |  "+
		"Reward: %.2f  |  Next State: %v", mat.Formatted(t.State.T()),
		mat.Formatted(t.Action.T()), t.Reward, mat.Formatted(t.NextState.T()))
}

func copyVec(v mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}
