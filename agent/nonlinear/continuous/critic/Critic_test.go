package critic

import (
	"testing"

	"github.com/samuelfneumann/gocontrol/initwfn"
	"github.com/samuelfneumann/gocontrol/solver"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/floats"
)

func TestConcatRows(t *testing.T) {
	tests := []struct {
		a, b         []float64
		aCols, bCols int
		want         []float64
		ok           bool
	}{
		{[]float64{1, 2, 3, 4}, []float64{5, 6}, 2, 1,
			[]float64{1, 2, 5, 3, 4, 6}, true},
		{[]float64{1}, []float64{2, 3}, 1, 2, []float64{1, 2, 3}, true},
		{[]float64{1, 2}, []float64{3, 4, 5}, 1, 1, nil, false},
		{[]float64{1, 2, 3}, []float64{3}, 2, 1, nil, false},
	}

	for _, test := range tests {
		have, err := ConcatRows(test.a, test.aCols, test.b, test.bCols)
		if (err == nil) != test.ok {
			t.Errorf("concatrows(%v, %v): want ok(%v) have err(%v)", test.a,
				test.b, test.ok, err)
			continue
		}
		if test.ok && !floats.Equal(have, test.want) {
			t.Errorf("concatrows(%v, %v): \n\twant(%v) \n\thave(%v)", test.a,
				test.b, test.want, have)
		}
	}
}

func TestTrainer(t *testing.T) {
	Convey("Given a critic trainer and fixed regression targets", t, func() {
		const batch = 8
		net, err := New("critic", 2, 1, batch, []int{16},
			initwfn.NewGlorotU(1.0).InitWFn(1))
		So(err, ShouldBeNil)

		s, err := solver.NewDefaultAdam(1e-2, 1)
		So(err, ShouldBeNil)
		trainer, err := NewTrainer(net, 1, s)
		So(err, ShouldBeNil)
		defer trainer.Close()

		states := make([]float64, batch*2)
		actions := make([]float64, batch)
		targets := make([]float64, batch)
		for i := 0; i < batch; i++ {
			states[2*i] = float64(i) / batch
			states[2*i+1] = -float64(i) / batch
			actions[i] = 0.5
			targets[i] = float64(i%2) - 0.5
		}

		Convey("Fit returns the mean squared error before the step", func() {
			clone, err := net.Clone()
			So(err, ShouldBeNil)
			So(clone.Set(net), ShouldBeNil)
			eval, err := NewEvaluator(clone, 1)
			So(err, ShouldBeNil)
			defer eval.Close()

			values, err := eval.Values(states, actions)
			So(err, ShouldBeNil)
			var want float64
			for i := range values {
				want += (values[i] - targets[i]) * (values[i] - targets[i])
			}
			want /= batch

			have, err := trainer.Fit(states, actions, targets)
			So(err, ShouldBeNil)
			So(have, ShouldAlmostEqual, want, 1e-9)
		})

		Convey("Fitting reduces the loss", func() {
			first, err := trainer.Fit(states, actions, targets)
			So(err, ShouldBeNil)

			var last float64
			for i := 0; i < 300; i++ {
				last, err = trainer.Fit(states, actions, targets)
				So(err, ShouldBeNil)
			}
			So(last, ShouldBeLessThan, first)
		})

		Convey("An evaluator of a clone computes the trained values", func() {
			for i := 0; i < 10; i++ {
				_, err := trainer.Fit(states, actions, targets)
				So(err, ShouldBeNil)
			}
			clone, err := net.Clone()
			So(err, ShouldBeNil)
			So(clone.Set(net), ShouldBeNil)

			eval, err := NewEvaluator(clone, 1)
			So(err, ShouldBeNil)
			defer eval.Close()

			values, err := eval.Values(states, actions)
			So(err, ShouldBeNil)
			So(len(values), ShouldEqual, batch)
		})

		Convey("Mismatched targets are rejected", func() {
			_, err := trainer.Fit(states, actions, targets[:3])
			So(err, ShouldNotBeNil)
		})
	})
}
