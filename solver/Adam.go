package solver

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize, -1)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int,
	clip float64) (*Solver, error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
		Clip:     clip,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Adam solver as described by the AdamConfig
func (a AdamConfig) Create() G.Solver {
	return &AdamSolver{config: a}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// Validate returns an error if the configuration is invalid
func (a AdamConfig) Validate() error {
	if a.StepSize <= 0 {
		return fmt.Errorf("adam: step size must be positive")
	}
	if a.Epsilon <= 0 {
		return fmt.Errorf("adam: epsilon must be positive")
	}
	if a.Beta1 < 0 || a.Beta1 >= 1 || a.Beta2 < 0 || a.Beta2 >= 1 {
		return fmt.Errorf("adam: betas must be in [0, 1)")
	}
	if a.Batch <= 0 {
		return fmt.Errorf("adam: batch size must be positive")
	}
	return nil
}

// AdamSolver implements the Adam algorithm as a Gorgonia Solver. Unlike
// Gorgonia's Adam solver, its moment estimates can be read and
// restored, so that training can be resumed from a checkpoint.
//
// After each step, the gradients of the model are zeroed.
type AdamSolver struct {
	config AdamConfig
	steps  int
	first  [][]float64
	second [][]float64
}

// Step takes a single gradient step on the model
func (a *AdamSolver) Step(model []G.ValueGrad) error {
	if a.first == nil {
		a.first = make([][]float64, len(model))
		a.second = make([][]float64, len(model))
	} else if len(a.first) != len(model) {
		return fmt.Errorf("step: solver has state for %v parameters but "+
			"model has %v", len(a.first), len(model))
	}

	a.steps++
	correction1 := 1 - math.Pow(a.config.Beta1, float64(a.steps))
	correction2 := 1 - math.Pow(a.config.Beta2, float64(a.steps))
	onePerBatch := 1 / float64(a.config.Batch)

	for i, n := range model {
		grad, err := n.Grad()
		if err != nil {
			return fmt.Errorf("step: could not get gradient: %v", err)
		}
		w, ok := n.Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("step: parameter %d is not float64", i)
		}
		g, ok := grad.Data().([]float64)
		if !ok {
			return fmt.Errorf("step: gradient %d is not float64", i)
		}

		if a.first[i] == nil {
			a.first[i] = make([]float64, len(w))
			a.second[i] = make([]float64, len(w))
		} else if len(a.first[i]) != len(w) {
			return fmt.Errorf("step: parameter %d has size %v but solver "+
				"state has size %v", i, len(w), len(a.first[i]))
		}
		m, v := a.first[i], a.second[i]

		for j := range w {
			gj := g[j] * onePerBatch
			if a.config.Clip > 0 {
				gj = math.Max(-a.config.Clip, math.Min(a.config.Clip, gj))
			}

			m[j] = a.config.Beta1*m[j] + (1-a.config.Beta1)*gj
			v[j] = a.config.Beta2*v[j] + (1-a.config.Beta2)*gj*gj

			mHat := m[j] / correction1
			vHat := v[j] / correction2
			w[j] -= a.config.StepSize * mHat / (math.Sqrt(vHat) +
				a.config.Epsilon)

			g[j] = 0
		}
	}
	return nil
}

// State returns a copy of the moment estimates of the solver
func (a *AdamSolver) State() State {
	return State{
		Steps:  a.steps,
		First:  copy2D(a.first),
		Second: copy2D(a.second),
	}
}

// SetState sets the moment estimates of the solver
func (a *AdamSolver) SetState(s State) error {
	if len(s.First) != len(s.Second) {
		return fmt.Errorf("setstate: first and second moments have "+
			"different lengths (%v, %v)", len(s.First), len(s.Second))
	}
	for i := range s.First {
		if len(s.First[i]) != len(s.Second[i]) {
			return fmt.Errorf("setstate: moment %d has mismatched sizes", i)
		}
	}
	if s.Steps < 0 {
		return fmt.Errorf("setstate: negative step count %v", s.Steps)
	}

	a.steps = s.Steps
	a.first = copy2D(s.First)
	a.second = copy2D(s.Second)
	return nil
}

func copy2D(in [][]float64) [][]float64 {
	if in == nil {
		return nil
	}
	out := make([][]float64, len(in))
	for i := range in {
		if in[i] != nil {
			out[i] = append([]float64(nil), in[i]...)
		}
	}
	return out
}
