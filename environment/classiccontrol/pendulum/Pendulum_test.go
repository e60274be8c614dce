package pendulum

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gocontrol/environment"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

func newPendulum(th, thdot float64, steps int) *Pendulum {
	starter := environment.NewUniformStarter([]r1.Interval{
		{Min: th, Max: th + 1e-12},
		{Min: thdot, Max: thdot + 1e-12},
	}, 1)
	return New(NewSwingUp(starter, steps), 0.99)
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, math.Pi},
	}

	for _, test := range tests {
		have := normalizeAngle(test.in)
		if math.Abs(math.Abs(have)-math.Abs(test.want)) > 1e-9 {
			t.Errorf("normalizeAngle(%v): want(%v) have(%v)", test.in,
				test.want, have)
		}
	}
}

func TestStep(t *testing.T) {
	p := newPendulum(0, 0, 2)
	if _, _, err := p.Step(mat.NewVecDense(1, nil)); err == nil {
		t.Errorf("step before reset: want error have nil")
	}

	if _, err := p.Reset(); err != nil {
		t.Fatalf("could not reset: %v", err)
	}

	// Upright and at rest with no torque, the pendulum stays put
	step, done, err := p.Step(mat.NewVecDense(1, []float64{0}))
	if err != nil {
		t.Fatalf("could not step: %v", err)
	}
	if math.Abs(step.Observation.AtVec(0)) > 1e-9 {
		t.Errorf("angle: want(0) have(%v)", step.Observation.AtVec(0))
	}
	if math.Abs(step.Reward-1) > 1e-9 {
		t.Errorf("reward: want(1) have(%v)", step.Reward)
	}
	if done {
		t.Errorf("step 1: episode ended early")
	}

	// Torque is clipped to the torque bound
	step, done, _ = p.Step(mat.NewVecDense(1, []float64{100}))
	wantSpeed := 3.0 / (Mass * Length * Length) * TorqueBound * dt
	if have := step.Observation.AtVec(1); math.Abs(have-wantSpeed) > 1e-9 {
		t.Errorf("speed: want(%v) have(%v)", wantSpeed, have)
	}
	if !done || !step.Last() {
		t.Errorf("step 2: want last step have %v", step)
	}

	if _, _, err := p.Step(mat.NewVecDense(2, nil)); err == nil {
		t.Errorf("step with wrong action size: want error have nil")
	}
}

func TestSpeedClipped(t *testing.T) {
	p := newPendulum(math.Pi/2, SpeedBound-0.01, 100)
	p.Reset()

	for i := 0; i < 10; i++ {
		step, _, err := p.Step(mat.NewVecDense(1, []float64{TorqueBound}))
		if err != nil {
			t.Fatalf("could not step: %v", err)
		}
		if s := step.Observation.AtVec(1); math.Abs(s) > SpeedBound {
			t.Errorf("step %d: speed %v outside bound %v", i, s, SpeedBound)
		}
		if a := step.Observation.AtVec(0); math.Abs(a) > AngleBound {
			t.Errorf("step %d: angle %v outside bound %v", i, a, AngleBound)
		}
	}
}
