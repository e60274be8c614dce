package mpo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/gocontrol/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/gocontrol/distribution"
	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/environment/lqr"
	"github.com/samuelfneumann/gocontrol/experiment/tracker"
	"github.com/samuelfneumann/gocontrol/initwfn"
	"github.com/samuelfneumann/gocontrol/network"
	"github.com/samuelfneumann/gocontrol/solver"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

func newIntegrator(t *testing.T, seed uint64, length int) environment.Environment {
	starter := environment.NewUniformStarter([]r1.Interval{
		{Min: 0.75, Max: 0.85},
		{Min: 0.95, Max: 1.05},
	}, seed)
	task := lqr.NewIdentityRegulate(starter, environment.NewStepLimit(length),
		2, 2, 0.1)

	env, err := lqr.NewIntegrator(task, 2, 0.1, 1.0, 0.9)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}
	return env
}

func testConfig() Config {
	c := DefaultConfig()
	c.Gamma = 0.9
	c.LagrangeIterations = 2
	c.MinibatchSize = 16
	c.RerunMinibatch = 2
	c.AdditionalActions = 8
	c.ActorLayers = []int{16}
	c.CriticLayers = []int{16}
	c.LearningRate = 1e-3
	c.EvalEpisodes = 2
	c.Seed = 3
	c.Episodes = 2
	c.EpisodeLength = 40
	c.Save = false
	return c
}

func newTestAgent(t *testing.T, c Config) *MPO {
	m, err := New(newIntegrator(t, c.Seed, 25), c)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	return m
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"short trajectory", func(c *Config) { c.EpisodeLength = 8 }, false},
		{"more sample episodes", func(c *Config) {
			c.EpisodeLength = 8
			c.SampleEpisodes = 2
		}, true},
		{"zero actions", func(c *Config) { c.AdditionalActions = 0 }, false},
		{"zero floor", func(c *Config) { c.DualFloor = 0 }, false},
		{"zero lagrange", func(c *Config) { c.LagrangeIterations = 0 }, false},
		{"negative alpha", func(c *Config) { c.Alpha = -1 }, false},
	}

	for _, test := range tests {
		c := testConfig()
		test.modify(&c)
		m, err := New(newIntegrator(t, 1, 25), c)
		if (err == nil) != test.ok {
			t.Errorf("%v: want ok(%v) have err(%v)", test.name, test.ok, err)
		}
		if err == nil {
			lagrange := m.Multipliers()
			if lagrange.Eta < c.DualFloor || lagrange.EtaMu < 0 ||
				lagrange.EtaSigma < 0 {
				t.Errorf("%v: invalid initial multipliers %+v", test.name,
					lagrange)
			}
			m.Close()
		}
	}
}

// improverFixture returns an improver on a freshly initialized policy,
// a copy of the policy before any step is taken, a target policy, and
// an M-step batch for 3 states with 4 weighted actions each
func improverFixture(t *testing.T, swap bool) (*improver,
	*policy.GaussianMLP, *policy.GaussianMLP, mStepBatch, [][]float64) {
	const batch, dims, features, actions = 3, 2, 2, 4
	init := initwfn.NewGlorotU(1.0)

	actor, err := policy.NewGaussianMLP("actor", features, dims, batch, 1.0,
		[]int{8}, init.InitWFn(1))
	if err != nil {
		t.Fatal(err)
	}
	target, err := policy.NewGaussianMLP("actor", features, dims, batch, 1.0,
		[]int{8}, init.InitWFn(2))
	if err != nil {
		t.Fatal(err)
	}
	before, err := actor.CloneWithBatch(batch)
	if err != nil {
		t.Fatal(err)
	}

	s, err := solver.NewDefaultAdam(1e-3, 1)
	if err != nil {
		t.Fatal(err)
	}
	imp, err := newImprover(actor, 0.1, 1e-4, swap, s)
	if err != nil {
		t.Fatal(err)
	}

	states := []float64{0.1, 0.2, -0.5, 0.3, 0.9, -0.8}
	means, stds, err := target.Forward(states)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(5))
	weighted := make([][]float64, batch*actions)
	b := mStepBatch{
		states:     states,
		actionMean: make([]float64, batch*dims),
		actionSq:   make([]float64, batch*dims),
		targetMean: means,
		targetStd:  stds,
	}
	for j := 0; j < actions; j++ {
		for s := 0; s < batch; s++ {
			a := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
			weighted[j*batch+s] = a
			for i, v := range a {
				b.actionMean[s*dims+i] += v / actions
				b.actionSq[s*dims+i] += v * v / actions
			}
		}
	}
	return imp, before, target, b, weighted
}

func TestImprover(t *testing.T) {
	for _, swap := range []bool{false, true} {
		Convey(fmt.Sprintf("Given an M-step on a Gaussian policy (swap "+
			"%v)", swap), t, func() {
			imp, before, target, b, weighted := improverFixture(t, swap)

			dists, err := before.Distributions(b.states)
			So(err, ShouldBeNil)
			targets, err := target.Distributions(b.states)
			So(err, ShouldBeNil)
			meanTerm, covTerm, err := distribution.MeanKLDecomposition(dists,
				targets)
			So(err, ShouldBeNil)

			// Mean log likelihood over all states and actions
			var wantLogProb float64
			for i, a := range weighted {
				lp, err := dists[i%len(dists)].LogProb(a)
				So(err, ShouldBeNil)
				wantLogProb += lp
			}
			wantLogProb /= float64(len(weighted))

			Convey("The loss without penalties is the negative log "+
				"likelihood", func() {
				loss, cMu, cSigma, err := imp.step(b, 0, 0)
				So(err, ShouldBeNil)
				So(loss, ShouldAlmostEqual, -wantLogProb, 1e-9)

				Convey("And the KL terms match the closed form", func() {
					wantMu, wantSigma := meanTerm, covTerm
					if swap {
						wantMu, wantSigma = covTerm, meanTerm
					}
					So(cMu, ShouldAlmostEqual, wantMu, 1e-9)
					So(cSigma, ShouldAlmostEqual, wantSigma, 1e-9)
				})
			})

			Convey("The multipliers weight the constraint violations",
				func() {
					loss, cMu, cSigma, err := imp.step(b, 2, 3)
					So(err, ShouldBeNil)
					want := -(wantLogProb + 2*(0.1-cMu) + 3*(1e-4-cSigma))
					So(loss, ShouldAlmostEqual, want, 1e-9)
				})

			Convey("A step changes the policy", func() {
				_, _, _, err := imp.step(b, 1, 1)
				So(err, ShouldBeNil)
				have, err := network.Params(imp.actor.Network())
				So(err, ShouldBeNil)
				want, err := network.Params(before.Network())
				So(err, ShouldBeNil)
				So(have, ShouldNotResemble, want)
			})
		})
	}
}

func TestKLTermsOfIdenticalPolicies(t *testing.T) {
	imp, before, _, b, _ := improverFixture(t, false)
	means, stds, err := before.Forward(b.states)
	if err != nil {
		t.Fatal(err)
	}
	b.targetMean, b.targetStd = means, stds

	_, cMu, cSigma, err := imp.step(b, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(cMu) > 1e-12 || math.Abs(cSigma) > 1e-12 {
		t.Errorf("kl terms of identical policies: \n\twant(0, 0) "+
			"\n\thave(%v, %v)", cMu, cSigma)
	}
}

func TestTrain(t *testing.T) {
	Convey("Given an MPO agent on an LQR integrator", t, func() {
		c := testConfig()
		m := newTestAgent(t, c)
		defer m.Close()
		sink := tracker.NewScalars("")
		opts := c.TrainOptions()
		opts.Sink = sink

		Convey("Training logs once per episode", func() {
			So(m.Train(context.Background(), opts), ShouldBeNil)
			So(m.Episode(), ShouldEqual, c.Episodes)

			for _, name := range []string{"mean_reward", "mean_qloss",
				"mean_lagrangeloss", "eta", "eta_mu", "eta_sigma",
				"mean_rew_2_ep"} {
				points := sink.Get(name)
				So(len(points), ShouldEqual, c.Episodes)
				for i, p := range points {
					So(p.Step, ShouldEqual, i+1)
					So(math.IsNaN(p.Value) || math.IsInf(p.Value, 0),
						ShouldBeFalse)
				}
			}

			lagrange := m.Multipliers()
			So(lagrange.Eta, ShouldBeGreaterThanOrEqualTo, c.DualFloor)
			So(lagrange.EtaMu, ShouldBeGreaterThanOrEqualTo, 0)
			So(lagrange.EtaSigma, ShouldBeGreaterThanOrEqualTo, 0)
		})

		Convey("The targets equal the live networks after an episode",
			func() {
				opts.Episodes = 1
				So(m.Train(context.Background(), opts), ShouldBeNil)

				actor, err := network.Params(m.actor.Network())
				So(err, ShouldBeNil)
				target, err := network.Params(m.targetActor.Network())
				So(err, ShouldBeNil)
				So(target, ShouldResemble, actor)

				q, err := network.Params(m.critic.Network())
				So(err, ShouldBeNil)
				targetQ, err := network.Params(m.targetCritic.Network())
				So(err, ShouldBeNil)
				So(targetQ, ShouldResemble, q)
			})

		Convey("A cancelled context stops training", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(errors.Is(m.Train(ctx, opts), context.Canceled), ShouldBeTrue)
			So(m.Episode(), ShouldEqual, 0)
		})

		Convey("Trajectories too short for a minibatch are rejected", func() {
			opts.EpisodeLength = c.MinibatchSize - 1
			So(m.Train(context.Background(), opts), ShouldNotBeNil)
		})
	})
}

func TestEval(t *testing.T) {
	m := newTestAgent(t, testConfig())
	defer m.Close()

	reward, err := m.Eval(2, 30, false)
	if err != nil {
		t.Fatalf("could not evaluate: %v", err)
	}
	if reward > 0 || math.IsNaN(reward) {
		t.Errorf("eval: LQR rewards must be non-positive, have(%v)", reward)
	}

	if _, err := m.Eval(2, 0, false); err == nil {
		t.Errorf("eval with zero length: want error have nil")
	}

	action, err := m.SelectAction(mat.NewVecDense(2, []float64{50, -50}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < action.Len(); i++ {
		if math.Abs(action.AtVec(i)) > 1 {
			t.Errorf("selectaction: action %v outside bound", action.AtVec(i))
		}
	}
}

func TestSaveLoad(t *testing.T) {
	Convey("Given a trained MPO agent saved to disk", t, func() {
		c := testConfig()
		c.Episodes = 1
		c.EvalEpisodes = 0
		m := newTestAgent(t, c)
		defer m.Close()
		So(m.Train(context.Background(), c.TrainOptions()), ShouldBeNil)

		path := filepath.Join(t.TempDir(), "mpo.gob")
		So(m.Save(path), ShouldBeNil)

		Convey("Loading restores the networks, multipliers, and episode",
			func() {
				other := c
				other.Seed = 42
				loaded := newTestAgent(t, other)
				defer loaded.Close()
				So(loaded.Load(path), ShouldBeNil)

				So(loaded.Episode(), ShouldEqual, 1)
				So(loaded.Multipliers(), ShouldResemble, m.Multipliers())

				want, err := network.Params(m.targetActor.Network())
				So(err, ShouldBeNil)
				have, err := network.Params(loaded.samplerActor.Network())
				So(err, ShouldBeNil)
				So(have, ShouldResemble, want)

				obs := mat.NewVecDense(2, []float64{0.4, 0.1})
				a1, err := m.SelectAction(obs)
				So(err, ShouldBeNil)
				a2, err := loaded.SelectAction(obs)
				So(err, ShouldBeNil)
				So(mat.Equal(a1, a2), ShouldBeTrue)

				Convey("And training resumes from the loaded episode",
					func() {
						opts := other.TrainOptions()
						opts.Episodes = 2
						So(loaded.Train(context.Background(), opts),
							ShouldBeNil)
						So(loaded.Episode(), ShouldEqual, 2)
					})
			})

		Convey("A mismatched architecture is rejected", func() {
			other := c
			other.CriticLayers = []int{4}
			mismatched := newTestAgent(t, other)
			defer mismatched.Close()
			before := mismatched.Multipliers()

			err := mismatched.Load(path)
			var shapeErr *network.ShapeMismatchError
			So(errors.As(err, &shapeErr), ShouldBeTrue)
			So(mismatched.Multipliers(), ShouldResemble, before)
			So(mismatched.Episode(), ShouldEqual, 0)
		})
	})
}
