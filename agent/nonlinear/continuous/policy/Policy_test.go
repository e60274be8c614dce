package policy

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gocontrol/initwfn"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func TestDeterministicMLP(t *testing.T) {
	Convey("Given a deterministic policy with bound 2", t, func() {
		const bound = 2.0
		pol, err := NewDeterministicMLP("actor", 3, 2, 4, bound,
			[]int{8, 8}, initwfn.NewGlorotU(5.0).InitWFn(1))
		So(err, ShouldBeNil)
		defer pol.Close()

		states := make([]float64, 4*3)
		for i := range states {
			states[i] = float64(i) - 6
		}

		Convey("All actions lie within the bound", func() {
			actions, err := pol.Forward(states)
			So(err, ShouldBeNil)
			So(len(actions), ShouldEqual, 4*2)
			for _, a := range actions {
				So(math.Abs(a), ShouldBeLessThanOrEqualTo, bound)
			}
		})

		Convey("A batch 1 clone selects the same action", func() {
			actions, err := pol.Forward(states)
			So(err, ShouldBeNil)

			single, err := pol.CloneWithBatch(1)
			So(err, ShouldBeNil)
			defer single.Close()
			So(single.Network().Set(pol.Network()), ShouldBeNil)

			action, err := single.SelectAction(mat.NewVecDense(3,
				states[3:6]))
			So(err, ShouldBeNil)
			for i := 0; i < 2; i++ {
				So(action.AtVec(i), ShouldAlmostEqual, actions[2+i], 1e-12)
			}
		})

		Convey("A batch policy cannot select single actions", func() {
			_, err := pol.SelectAction(mat.NewVecDense(3, nil))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestGaussianMLP(t *testing.T) {
	Convey("Given a Gaussian policy", t, func() {
		const bound = 1.5
		pol, err := NewGaussianMLP("actor", 2, 3, 5, bound, []int{6},
			initwfn.NewHeU(1.0).InitWFn(2))
		So(err, ShouldBeNil)
		defer pol.Close()

		states := make([]float64, 5*2)
		for i := range states {
			states[i] = 0.1 * float64(i)
		}

		Convey("Means are bounded and standard deviations are offset", func() {
			means, stds, err := pol.Forward(states)
			So(err, ShouldBeNil)
			So(len(means), ShouldEqual, 15)
			So(len(stds), ShouldEqual, 15)
			for i := range means {
				So(math.Abs(means[i]), ShouldBeLessThanOrEqualTo, bound)
				So(stds[i], ShouldBeGreaterThan, stdOffset)
			}
		})

		Convey("One distribution is returned per state", func() {
			dists, err := pol.Distributions(states)
			So(err, ShouldBeNil)
			So(len(dists), ShouldEqual, 5)
			So(dists[0].Dim(), ShouldEqual, 3)
		})

		Convey("Each Cholesky factor is the diagonal of the stds", func() {
			_, stds, err := pol.Forward(states)
			So(err, ShouldBeNil)
			dists, err := pol.Distributions(states)
			So(err, ShouldBeNil)

			for k, dist := range dists {
				chol := dist.Chol()
				for i := 0; i < 3; i++ {
					for j := 0; j < 3; j++ {
						if i == j {
							So(chol.At(i, j), ShouldEqual, stds[k*3+i])
						} else {
							So(chol.At(i, j), ShouldEqual, 0)
						}
					}
				}
			}
		})

		Convey("A batch 1 clone returns the batch mean", func() {
			means, _, err := pol.Forward(states)
			So(err, ShouldBeNil)

			single, err := pol.CloneWithBatch(1)
			So(err, ShouldBeNil)
			defer single.Close()

			mean, err := single.Mean(mat.NewVecDense(2, states[:2]))
			So(err, ShouldBeNil)
			for i := 0; i < 3; i++ {
				So(mean.AtVec(i), ShouldAlmostEqual, means[i], 1e-12)
			}
		})
	})
}
