// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"github.com/samuelfneumann/gocontrol/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Ender determines when an episode should end. If End returns true, it
// should also set the StepType of the argument TimeStep to
// timestep.Last.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
}

// Environment implements a simualted environment. Reset should be
// called before the first call to Step.
type Environment interface {
	// Reset resets the environment between episodes and returns the
	// first TimeStep of the new episode
	Reset() (timestep.TimeStep, error)

	// Step takes one environmental step with action and returns the
	// next TimeStep along with whether or not the episode has ended
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)

	ObservationSpec() Spec
	ActionSpec() Spec
}

// Renderer is an Environment that can render its current state
type Renderer interface {
	Render() error
}
