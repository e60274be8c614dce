package environment

import (
	"testing"

	"github.com/samuelfneumann/gocontrol/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

func midStep(number int, obs ...float64) timestep.TimeStep {
	return timestep.New(timestep.Mid, 0, 1, mat.NewVecDense(len(obs), obs),
		number)
}

func TestStepLimit(t *testing.T) {
	e := NewStepLimit(5)
	for _, test := range []struct {
		number int
		end    bool
	}{{0, false}, {4, false}, {5, true}, {9, true}} {
		step := midStep(test.number, 0)
		if have := e.End(&step); have != test.end || step.Last() != test.end {
			t.Errorf("step %d: want end(%v) have end(%v) type(%v)",
				test.number, test.end, have, step.StepType)
		}
	}
}

func TestIntervalLimit(t *testing.T) {
	if _, err := NewIntervalLimit([]r1.Interval{{Min: 0, Max: 1}},
		[]int{0, 1}); err == nil {
		t.Errorf("mismatched limits: want error have nil")
	}

	e, err := NewIntervalLimit([]r1.Interval{{Min: -1, Max: 1}}, []int{1})
	if err != nil {
		t.Fatalf("could not create interval limit: %v", err)
	}
	tests := []struct {
		obs []float64
		end bool
	}{
		{[]float64{5, 0}, false},
		{[]float64{0, 1}, false},
		{[]float64{0, 1.5}, true},
		{[]float64{0, -2}, true},
	}
	for _, test := range tests {
		step := midStep(1, test.obs...)
		if have := e.End(&step); have != test.end || step.Last() != test.end {
			t.Errorf("obs %v: want end(%v) have end(%v) type(%v)", test.obs,
				test.end, have, step.StepType)
		}
	}
}

func TestCompose(t *testing.T) {
	limit, err := NewIntervalLimit([]r1.Interval{{Min: -1, Max: 1}},
		[]int{0})
	if err != nil {
		t.Fatalf("could not create interval limit: %v", err)
	}
	e := Compose(NewStepLimit(3), limit)

	tests := []struct {
		step timestep.TimeStep
		end  bool
	}{
		{midStep(1, 0), false},
		{midStep(3, 0), true},
		{midStep(1, 2), true},
		{midStep(4, 2), true},
	}
	for i, test := range tests {
		if have := e.End(&test.step); have != test.end {
			t.Errorf("test %d: want end(%v) have end(%v)", i, test.end, have)
		}
	}
}
