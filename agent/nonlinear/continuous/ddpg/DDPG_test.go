package ddpg

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/environment/lqr"
	"github.com/samuelfneumann/gocontrol/experiment/tracker"
	"github.com/samuelfneumann/gocontrol/network"
	"github.com/samuelfneumann/gocontrol/noise"
	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	testEpisodes      = 5
	testEpisodeLength = 50
)

// newIntegrator returns a 2-dimensional LQR integrator which starts
// near [0.8, 1.0] and ends episodes after testEpisodeLength steps
func newIntegrator(t *testing.T, seed uint64) environment.Environment {
	starter := environment.NewUniformStarter([]r1.Interval{
		{Min: 0.75, Max: 0.85},
		{Min: 0.95, Max: 1.05},
	}, seed)
	ender := environment.NewStepLimit(testEpisodeLength)
	task := lqr.NewIdentityRegulate(starter, ender, 2, 2, 0.1)

	env, err := lqr.NewIntegrator(task, 2, 0.1, 1.0, 0.9)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}
	return env
}

func testConfig() Config {
	c := DefaultConfig()
	c.BufferCapacity = 1000
	c.BatchSize = 16
	c.WarmupSteps = 16
	c.Gamma = 0.9
	c.Tau = 0.01
	c.LearningRate = 1e-2
	c.ActorLayers = []int{16}
	c.CriticLayers = []int{16}
	c.LogInterval = 25
	c.Seed = 7
	c.Episodes = testEpisodes
	c.EpisodeLength = testEpisodeLength
	c.Save = false
	c.SavePath = ""
	return c
}

func newTestAgent(t *testing.T, c Config) *DDPG {
	d, err := New(newIntegrator(t, c.Seed), c)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	return d
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, false},
		{"zero log interval", func(c *Config) { c.LogInterval = 0 }, false},
		{"tau", func(c *Config) { c.Tau = 1.5 }, false},
		{"gamma", func(c *Config) { c.Gamma = -0.1 }, false},
		{"layers", func(c *Config) { c.ActorLayers = []int{0} }, false},
		{"save without path", func(c *Config) { c.Save = true }, false},
		{"no warmup", func(c *Config) { c.WarmupSteps = 0 }, true},
	}

	for _, test := range tests {
		c := testConfig()
		test.modify(&c)
		d, err := New(newIntegrator(t, 1), c)
		if (err == nil) != test.ok {
			t.Errorf("%v: want ok(%v) have err(%v)", test.name, test.ok, err)
		}
		if err == nil {
			if have := d.buffer.Len(); have != c.WarmupSteps {
				t.Errorf("%v: buffer length \n\twant(%v) \n\thave(%v)",
					test.name, c.WarmupSteps, have)
			}
			d.Close()
		}
	}
}

func TestSelectAction(t *testing.T) {
	Convey("Given a DDPG agent on an environment bounded by 1", t, func() {
		d := newTestAgent(t, testConfig())
		defer d.Close()
		obs := mat.NewVecDense(2, []float64{100, -100})

		Convey("Training actions are within the bound", func() {
			for i := 0; i < 100; i++ {
				action, err := d.SelectAction(obs, true)
				So(err, ShouldBeNil)
				So(action.Len(), ShouldEqual, 2)
				for j := 0; j < action.Len(); j++ {
					So(math.Abs(action.AtVec(j)), ShouldBeLessThanOrEqualTo,
						1.0)
				}
			}
		})

		Convey("Evaluation actions are deterministic", func() {
			a1, err := d.SelectAction(obs, false)
			So(err, ShouldBeNil)
			a2, err := d.SelectAction(obs, false)
			So(err, ShouldBeNil)
			So(mat.Equal(a1, a2), ShouldBeTrue)
		})
	})
}

func TestNewWithNoise(t *testing.T) {
	Convey("Given a DDPG agent exploring with Gaussian noise", t, func() {
		c := testConfig()
		obs := mat.NewVecDense(2, []float64{0.5, -0.5})

		Convey("Without noise, training actions are the actor's", func() {
			n, err := noise.NewGaussian(2, 0, 1)
			So(err, ShouldBeNil)
			d, err := NewWithNoise(newIntegrator(t, 1), c, n)
			So(err, ShouldBeNil)
			defer d.Close()

			train, err := d.SelectAction(obs, true)
			So(err, ShouldBeNil)
			eval, err := d.SelectAction(obs, false)
			So(err, ShouldBeNil)
			So(mat.EqualApprox(train, eval, 1e-12), ShouldBeTrue)
		})

		Convey("Noise of the wrong dimension is an error", func() {
			n, err := noise.NewGaussian(3, 0.1, 1)
			So(err, ShouldBeNil)
			d, err := NewWithNoise(newIntegrator(t, 1), c, n)
			So(err, ShouldBeNil)
			defer d.Close()

			_, err = d.SelectAction(obs, true)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTrain(t *testing.T) {
	Convey("Given a DDPG agent on an LQR integrator", t, func() {
		c := testConfig()
		d := newTestAgent(t, c)
		defer d.Close()
		sink := tracker.NewScalars("")

		opts := c.TrainOptions()
		opts.Sink = sink

		Convey("Training runs every episode and logs every interval",
			func() {
				So(d.Train(context.Background(), opts), ShouldBeNil)
				So(d.Episode(), ShouldEqual, testEpisodes)
				So(d.iteration, ShouldEqual, testEpisodes*testEpisodeLength)

				want := testEpisodes * testEpisodeLength / c.LogInterval
				for _, name := range []string{"mean_reward", "mean_q",
					"mean_qloss", "mean_actorloss"} {
					points := sink.Get(name)
					So(len(points), ShouldEqual, want)
					for i, p := range points {
						So(p.Step, ShouldEqual, (i+1)*c.LogInterval)
						So(math.IsNaN(p.Value), ShouldBeFalse)
						So(math.IsInf(p.Value, 0), ShouldBeFalse)
					}
				}

				// LQR rewards are never positive
				for _, p := range sink.Get("mean_reward") {
					So(p.Value, ShouldBeLessThanOrEqualTo, 0)
				}
			})

		Convey("Training resumes from the episode counter", func() {
			opts.Episodes = 2
			So(d.Train(context.Background(), opts), ShouldBeNil)
			So(d.Episode(), ShouldEqual, 2)

			opts.Episodes = 3
			So(d.Train(context.Background(), opts), ShouldBeNil)
			So(d.Episode(), ShouldEqual, 3)
			So(d.iteration, ShouldEqual, 3*testEpisodeLength)
		})

		Convey("A cancelled context stops training", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := d.Train(ctx, opts)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(d.Episode(), ShouldEqual, 0)
		})

		Convey("The targets trail the live networks", func() {
			So(d.Train(context.Background(), opts), ShouldBeNil)

			actor := flatten(t, d.actor.Network())
			target := flatten(t, d.targetActor.Network())
			So(floats.Equal(actor, target), ShouldBeFalse)

			behaviour := flatten(t, d.behaviour.Network())
			So(floats.Equal(actor, behaviour), ShouldBeTrue)
		})
	})
}

// TestLearningSignal checks that over a short fixed-seed run the
// exponential moving average of the per-step reward is non-decreasing
// over the whole of at least 3 of the 5 episodes
func TestLearningSignal(t *testing.T) {
	const (
		alpha     = 0.1
		minPassed = 3
	)
	c := testConfig()
	c.LearningRate = 1e-3
	c.Tau = 0.005
	c.Seed = 1
	c.LogInterval = 1

	d := newTestAgent(t, c)
	defer d.Close()
	sink := tracker.NewScalars("")
	opts := c.TrainOptions()
	opts.Sink = sink
	if err := d.Train(context.Background(), opts); err != nil {
		t.Fatalf("could not train: %v", err)
	}

	rewards := sink.Get("mean_reward")
	if len(rewards) != testEpisodes*testEpisodeLength {
		t.Fatalf("rewards: \n\twant(%v) \n\thave(%v)",
			testEpisodes*testEpisodeLength, len(rewards))
	}

	passed := 0
	for ep := 0; ep < testEpisodes; ep++ {
		episode := rewards[ep*testEpisodeLength : (ep+1)*testEpisodeLength]
		ema := episode[0].Value
		nonDecreasing := true
		for _, p := range episode[1:] {
			next := (1-alpha)*ema + alpha*p.Value
			if next < ema {
				nonDecreasing = false
				break
			}
			ema = next
		}
		if nonDecreasing {
			passed++
		}
	}

	if passed < minPassed {
		t.Errorf("episodes with a non-decreasing reward average: "+
			"\n\twant(>= %v) \n\thave(%v)", minPassed, passed)
	}
}

func TestReproducible(t *testing.T) {
	c := testConfig()
	c.Episodes = 2
	run := func() []tracker.Point {
		d := newTestAgent(t, c)
		defer d.Close()
		sink := tracker.NewScalars("")
		opts := c.TrainOptions()
		opts.Sink = sink
		if err := d.Train(context.Background(), opts); err != nil {
			t.Fatalf("could not train: %v", err)
		}
		return sink.Get("mean_qloss")
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("runs logged different numbers of points: %v, %v",
			len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("point %d: \n\twant(%v) \n\thave(%v)", i, first[i],
				second[i])
		}
	}
}

func TestEval(t *testing.T) {
	d := newTestAgent(t, testConfig())
	defer d.Close()

	result, err := d.Eval(3, 20, false)
	if err != nil {
		t.Fatalf("could not evaluate: %v", err)
	}
	for _, episodes := range [][][]float64{result.Rewards, result.MeanRewards,
		result.MeanQ} {
		if len(episodes) != 3 {
			t.Fatalf("episodes: \n\twant(3) \n\thave(%v)", len(episodes))
		}
		for _, steps := range episodes {
			if len(steps) != 20 {
				t.Errorf("steps: \n\twant(20) \n\thave(%v)", len(steps))
			}
		}
	}

	for e, rewards := range result.Rewards {
		var sum float64
		for i, r := range rewards {
			sum += r
			if want := sum / float64(i+1); math.Abs(want-
				result.MeanRewards[e][i]) > 1e-12 {
				t.Errorf("running mean %d: \n\twant(%v) \n\thave(%v)", i,
					want, result.MeanRewards[e][i])
			}
		}
	}

	if _, err := d.Eval(0, 20, false); err == nil {
		t.Errorf("eval with zero episodes: want error have nil")
	}
}

func TestSaveLoad(t *testing.T) {
	Convey("Given a trained DDPG agent", t, func() {
		c := testConfig()
		c.Episodes = 2
		d := newTestAgent(t, c)
		defer d.Close()
		So(d.Train(context.Background(), c.TrainOptions()), ShouldBeNil)

		path := filepath.Join(t.TempDir(), "ddpg.gob")
		So(d.Save(path), ShouldBeNil)

		Convey("A new agent loads its weights and episode counter", func() {
			other := c
			other.Seed = 100
			loaded := newTestAgent(t, other)
			defer loaded.Close()
			So(loaded.Load(path), ShouldBeNil)

			So(loaded.Episode(), ShouldEqual, 2)
			So(flatten(t, loaded.actor.Network()), ShouldResemble,
				flatten(t, d.actor.Network()))
			So(flatten(t, loaded.targetCritic.Network()), ShouldResemble,
				flatten(t, d.targetCritic.Network()))
			So(loaded.actorSolver.State(), ShouldResemble,
				d.actorSolver.State())

			obs := mat.NewVecDense(2, []float64{0.3, -0.2})
			want, err := d.SelectAction(obs, false)
			So(err, ShouldBeNil)
			have, err := loaded.SelectAction(obs, false)
			So(err, ShouldBeNil)
			So(mat.Equal(want, have), ShouldBeTrue)
		})

		Convey("An agent with a different architecture is not changed",
			func() {
				other := c
				other.ActorLayers = []int{8}
				mismatched := newTestAgent(t, other)
				defer mismatched.Close()
				before := flatten(t, mismatched.critic.Network())

				err := mismatched.Load(path)
				So(err, ShouldNotBeNil)
				var shapeErr *network.ShapeMismatchError
				So(errors.As(err, &shapeErr), ShouldBeTrue)
				So(mismatched.Episode(), ShouldEqual, 0)
				So(flatten(t, mismatched.critic.Network()), ShouldResemble,
					before)
			})
	})
}

// flatten returns all weights of net in a single slice
func flatten(t *testing.T, net network.NeuralNet) []float64 {
	params, err := network.Params(net)
	if err != nil {
		t.Fatalf("could not get parameters: %v", err)
	}
	var out []float64
	for _, p := range params {
		out = append(out, p.Data...)
	}
	return out
}
