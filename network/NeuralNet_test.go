package network

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gocontrol/initwfn"
	. "github.com/smartystreets/goconvey/convey"
	G "gorgonia.org/gorgonia"
)

func newTestMLP(t *testing.T, seed uint64) NeuralNet {
	g := G.NewGraph()
	net, err := NewMultiHeadMLP("net", 3, 2, 2, g, []int{4, 4},
		[]bool{true, true}, initwfn.NewGlorotU(1.0).InitWFn(seed),
		Repeat(ReLU, 2))
	if err != nil {
		t.Fatalf("could not create network: %v", err)
	}
	return net
}

func flatParams(t *testing.T, net NeuralNet) []float64 {
	params, err := Params(net)
	if err != nil {
		t.Fatalf("could not get params: %v", err)
	}
	var out []float64
	for _, p := range params {
		out = append(out, p.Data...)
	}
	return out
}

func TestNewMultiHeadMLP(t *testing.T) {
	tests := []struct {
		hidden []int
		biases []bool
		acts   []*Activation
		ok     bool
	}{
		{[]int{4}, []bool{true}, Repeat(ReLU, 1), true},
		{[]int{}, []bool{}, []*Activation{}, true},
		{[]int{4}, []bool{true, false}, Repeat(ReLU, 1), false},
		{[]int{4}, []bool{true}, Repeat(ReLU, 2), false},
		{[]int{0}, []bool{true}, Repeat(ReLU, 1), false},
	}

	for _, test := range tests {
		g := G.NewGraph()
		_, err := NewMultiHeadMLP("net", 3, 1, 2, g, test.hidden,
			test.biases, G.Zeroes(), test.acts)
		if (err == nil) != test.ok {
			t.Errorf("newmultiheadmlp(%v): want ok(%v) have err(%v)",
				test.hidden, test.ok, err)
		}
	}
}

func TestForward(t *testing.T) {
	net := newTestMLP(t, 1)
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	if err := net.SetInput([]float64{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	out := net.Output()[0].Data().([]float64)
	if len(out) != net.BatchSize()*net.Outputs() {
		t.Errorf("output size: want(%v) have(%v)",
			net.BatchSize()*net.Outputs(), len(out))
	}

	if err := net.SetInput([]float64{1}); err == nil {
		t.Errorf("setinput: want error on wrong input size")
	}
}

func TestSetAndPolyak(t *testing.T) {
	Convey("Given two networks with different weights", t, func() {
		dst := newTestMLP(t, 1)
		src := newTestMLP(t, 2)
		before := flatParams(t, dst)
		srcParams := flatParams(t, src)
		So(before, ShouldNotResemble, srcParams)

		Convey("Polyak with tau = 0 leaves the destination unchanged", func() {
			So(dst.Polyak(src, 0), ShouldBeNil)
			So(flatParams(t, dst), ShouldResemble, before)
		})

		Convey("Polyak with tau = 1 copies the source", func() {
			So(dst.Polyak(src, 1), ShouldBeNil)
			So(flatParams(t, dst), ShouldResemble, srcParams)
		})

		Convey("Polyak with tau = 0.5 averages the weights", func() {
			So(dst.Polyak(src, 0.5), ShouldBeNil)
			after := flatParams(t, dst)
			for i := range after {
				want := 0.5*before[i] + 0.5*srcParams[i]
				So(math.Abs(after[i]-want), ShouldBeLessThan, 1e-12)
			}
		})

		Convey("Polyak with tau outside [0, 1] fails", func() {
			So(dst.Polyak(src, 1.5), ShouldNotBeNil)
		})

		Convey("Set copies without sharing storage", func() {
			So(dst.Set(src), ShouldBeNil)
			So(flatParams(t, dst), ShouldResemble, srcParams)

			// Changing the source afterwards must not change the
			// destination
			other := newTestMLP(t, 3)
			So(src.Set(other), ShouldBeNil)
			So(flatParams(t, dst), ShouldResemble, srcParams)
		})
	})
}

func TestSetParams(t *testing.T) {
	Convey("Given a network and its parameters", t, func() {
		net := newTestMLP(t, 1)
		params, err := Params(net)
		So(err, ShouldBeNil)
		before := flatParams(t, net)

		Convey("Loading parameters of the wrong shape fails atomically",
			func() {
				bad := make([]Param, len(params))
				copy(bad, params)
				for i := range bad {
					bad[i] = Param{
						Shape: params[i].Shape,
						Data:  make([]float64, len(params[i].Data)),
					}
				}
				last := len(bad) - 1
				bad[last] = Param{Shape: []int{1, 1}, Data: []float64{0}}

				err := SetParams(net, bad)
				_, ok := err.(*ShapeMismatchError)
				So(ok, ShouldBeTrue)
				So(flatParams(t, net), ShouldResemble, before)
			})

		Convey("Loading parameters into another network copies them", func() {
			other := newTestMLP(t, 7)
			So(SetParams(other, params), ShouldBeNil)
			So(flatParams(t, other), ShouldResemble, before)
		})
	})
}

func TestTreeMLP(t *testing.T) {
	g := G.NewGraph()
	net, err := NewTreeMLP("tree", 3, 2, 2, g, []int{5}, []bool{true},
		Repeat(ReLU, 1), [][]int{{4}, {}}, [][]bool{{true}, {}},
		[][]*Activation{Repeat(TanH, 1), {}},
		initwfn.NewHeU(1.0).InitWFn(3))
	if err != nil {
		t.Fatalf("newtreemlp: %v", err)
	}

	if len(net.Prediction()) != 2 {
		t.Errorf("heads: want(2) have(%v)", len(net.Prediction()))
	}

	// root: W, B; leaf 0: W, B, W, B; leaf 1: W, B
	if len(net.Learnables()) != 8 {
		t.Errorf("learnables: want(8) have(%v)", len(net.Learnables()))
	}

	clone, err := net.CloneWithBatch(1)
	if err != nil {
		t.Fatalf("clonewithbatch: %v", err)
	}
	if clone.BatchSize() != 1 {
		t.Errorf("batch: want(1) have(%v)", clone.BatchSize())
	}
	if err := clone.Set(net); err != nil {
		t.Errorf("set: %v", err)
	}

	vm := G.NewTapeMachine(clone.Graph())
	defer vm.Close()
	if err := clone.SetInput([]float64{0.1, 0.2, 0.3}); err != nil {
		t.Fatal(err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	for i, out := range clone.Output() {
		if n := len(out.Data().([]float64)); n != 2 {
			t.Errorf("head %d: want(2) outputs have(%v)", i, n)
		}
	}
}
