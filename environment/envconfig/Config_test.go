package envconfig

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestCreate(t *testing.T) {
	tests := []struct {
		config     Config
		ok         bool
		features   int
		actionDims int
	}{
		{NewConfig(LQR, Regulate, 10, 0.99), true, 2, 2},
		{Config{Environment: "lqr", Task: "regulate", EpisodeCutoff: 5,
			Discount: 1, Dims: 3}, true, 3, 3},
		{NewConfig(Pendulum, SwingUp, 10, 0.99), true, 2, 1},
		{NewConfig(Pendulum, Regulate, 10, 0.99), false, 0, 0},
		{NewConfig(LQR, SwingUp, 10, 0.99), false, 0, 0},
		{NewConfig("Cartpole", SwingUp, 10, 0.99), false, 0, 0},
		{NewConfig(LQR, Regulate, 0, 0.99), false, 0, 0},
		{NewConfig(LQR, Regulate, 10, 1.5), false, 0, 0},
	}

	for _, test := range tests {
		e, err := test.config.Create(1)
		if (err == nil) != test.ok {
			t.Errorf("create(%+v): want ok(%v) have err(%v)", test.config,
				test.ok, err)
			continue
		}
		if !test.ok {
			continue
		}

		if have := e.ObservationSpec().Shape.Len(); have != test.features {
			t.Errorf("create(%+v): features \n\twant(%v) \n\thave(%v)",
				test.config, test.features, have)
		}
		if have := e.ActionSpec().Shape.Len(); have != test.actionDims {
			t.Errorf("create(%+v): action dims \n\twant(%v) \n\thave(%v)",
				test.config, test.actionDims, have)
		}

		step, err := e.Reset()
		if err != nil {
			t.Errorf("create(%+v): could not reset: %v", test.config, err)
		}
		if !step.First() {
			t.Errorf("create(%+v): first step has type %v", test.config,
				step.StepType)
		}
	}
}

func TestLQRStateLimit(t *testing.T) {
	e, err := CreateLQR(2, 500, 1, 0.99)
	if err != nil {
		t.Fatalf("could not create lqr: %v", err)
	}
	if _, err := e.Reset(); err != nil {
		t.Fatalf("could not reset: %v", err)
	}

	// Pushing away from the origin at full force leaves the state limit
	// well before the cutoff
	action := mat.NewVecDense(2, []float64{1, 1})
	for i := 0; i < 500; i++ {
		step, done, err := e.Step(action)
		if err != nil {
			t.Fatalf("could not step: %v", err)
		}
		if done {
			if step.Number >= 500 {
				t.Errorf("episode ended by cutoff, not state limit")
			}
			outside := false
			obs := step.Observation
			for j := 0; j < obs.Len(); j++ {
				if math.Abs(obs.AtVec(j)) > LQRStateLimit {
					outside = true
				}
			}
			if !outside {
				t.Errorf("episode ended at state %v inside limit %v",
					mat.Formatted(obs.T()), LQRStateLimit)
			}
			return
		}
	}
	t.Errorf("episode did not end")
}
