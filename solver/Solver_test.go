package solver

import (
	"encoding/json"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// quadratic is a graph computing sum(w²) along with a machine that
// computes its gradient
type quadratic struct {
	w     *G.Node
	vm    G.VM
	model []G.ValueGrad
}

func newQuadratic(t *testing.T, init []float64) *quadratic {
	g := G.NewGraph()
	w := G.NewMatrix(g, tensor.Float64, G.WithShape(1, len(init)),
		G.WithName("w"), G.WithValue(tensor.New(
			tensor.WithShape(1, len(init)),
			tensor.WithBacking(append([]float64(nil), init...)),
		)))
	cost := G.Must(G.Sum(G.Must(G.Square(w))))
	if _, err := G.Grad(cost, w); err != nil {
		t.Fatalf("could not compute gradient: %v", err)
	}
	return &quadratic{
		w:     w,
		vm:    G.NewTapeMachine(g, G.BindDualValues(w)),
		model: G.NodesToValueGrads(G.Nodes{w}),
	}
}

func (q *quadratic) step(t *testing.T, s G.Solver) {
	if err := q.vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(q.model); err != nil {
		t.Fatal(err)
	}
	q.vm.Reset()
}

func (q *quadratic) weights() []float64 {
	return append([]float64(nil), q.w.Value().Data().([]float64)...)
}

func TestAdamMinimizes(t *testing.T) {
	s, err := NewDefaultAdam(0.05, 1)
	if err != nil {
		t.Fatal(err)
	}
	q := newQuadratic(t, []float64{1, -2})
	defer q.vm.Close()

	for i := 0; i < 500; i++ {
		q.step(t, s)
	}
	for i, w := range q.weights() {
		if math.Abs(w) > 1e-2 {
			t.Errorf("weight %d: want(≈0) have(%v)", i, w)
		}
	}
}

func TestAdamState(t *testing.T) {
	Convey("Given an Adam solver that has taken some steps", t, func() {
		s1, err := NewDefaultAdam(0.01, 1)
		So(err, ShouldBeNil)
		q1 := newQuadratic(t, []float64{1, 2, 3})
		defer q1.vm.Close()
		for i := 0; i < 10; i++ {
			q1.step(t, s1)
		}

		Convey("A solver restored from its state steps identically", func() {
			state := s1.State()
			So(state.Steps, ShouldEqual, 10)

			s2 := s1.Clone()
			So(s2.SetState(state), ShouldBeNil)
			q2 := newQuadratic(t, q1.weights())
			defer q2.vm.Close()

			for i := 0; i < 5; i++ {
				q1.step(t, s1)
				q2.step(t, s2)
			}
			So(q2.weights(), ShouldResemble, q1.weights())
		})

		Convey("The returned state is a copy", func() {
			state := s1.State()
			state.First[0][0] = 1e9
			So(s1.State().First[0][0], ShouldNotEqual, 1e9)
		})

		Convey("Mismatched moments are rejected", func() {
			bad := State{Steps: 1, First: [][]float64{{1}}}
			So(s1.SetState(bad), ShouldNotBeNil)
		})
	})
}

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		data string
		typ  Type
		ok   bool
	}{
		{`{"Type": "Adam", "Config": {"StepSize": 0.001, "Epsilon": 1e-8,
			"Beta1": 0.9, "Beta2": 0.999, "Batch": 1}}`, Adam, true},
		{`{"type": "adam", "config": {"stepsize": 0.001, "epsilon": 1e-8,
			"beta1": 0.9, "beta2": 0.999, "batch": 1}}`, Adam, true},
		{`{"Type": "Vanilla", "Config": {"StepSize": 0.1, "Batch": 1}}`,
			Vanilla, true},
		{`{"Type": "Vanilla", "Config": {"StepSize": 0.0, "Batch": 1}}`,
			Vanilla, false},
		{`{"Type": "RMSProp", "Config": {}}`, "", false},
	}

	for _, test := range tests {
		var s Solver
		err := json.Unmarshal([]byte(test.data), &s)
		if (err == nil) != test.ok {
			t.Errorf("unmarshal(%v): want ok(%v) have err(%v)", test.data,
				test.ok, err)
			continue
		}
		if test.ok && s.Type != test.typ {
			t.Errorf("type: want(%v) have(%v)", test.typ, s.Type)
		}
		if test.ok && s.Solver == nil {
			t.Errorf("unmarshal(%v): solver not created", test.data)
		}
	}
}
