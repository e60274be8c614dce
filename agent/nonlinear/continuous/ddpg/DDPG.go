// Package ddpg implements the Deep Deterministic Policy Gradient
// algorithm
package ddpg

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aunum/log"
	"github.com/samuelfneumann/gocontrol/agent"
	"github.com/samuelfneumann/gocontrol/agent/nonlinear/continuous/critic"
	"github.com/samuelfneumann/gocontrol/agent/nonlinear/continuous/policy"
	"github.com/samuelfneumann/gocontrol/buffer/expreplay"
	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/experiment/checkpointer"
	"github.com/samuelfneumann/gocontrol/experiment/tracker"
	"github.com/samuelfneumann/gocontrol/network"
	"github.com/samuelfneumann/gocontrol/noise"
	"github.com/samuelfneumann/gocontrol/solver"
	ts "github.com/samuelfneumann/gocontrol/timestep"
	"github.com/samuelfneumann/gocontrol/utils/floatutils"
	"github.com/samuelfneumann/gocontrol/utils/progressbar"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// DDPG implements the Deep Deterministic Policy Gradient algorithm.
// A deterministic actor μ(s) and an action value critic Q(s, a) are
// learned off-policy from a replay buffer, each with a target network
// updated by Polyak averaging. Exploration is done by adding noise to
// the actions of the actor.
//
// The actor is trained on a batch of states by minimizing -Q(s, μ(s)).
// To do so, the actor's graph holds a copy of the critic whose input is
// the concatenation of the states and the actor's actions, and whose
// weights are set to the critic's before each actor update. Only the
// actor's weights are changed by this update.
type DDPG struct {
	env        environment.Environment
	config     Config
	bound      float64
	features   int
	actionDims int

	buffer  *expreplay.Ring
	noise   noise.Noise
	sampler *environment.ActionSampler

	// Actor
	behaviour    *policy.DeterministicMLP // Batch 1, follows actor
	actor        *policy.DeterministicMLP // Trained
	actorQ       network.NeuralNet        // Critic copy in the actor's graph
	actorVM      G.VM
	actorLossVal G.Value
	actorSolver  *solver.Solver
	targetActor  *policy.DeterministicMLP
	evalActor    *policy.DeterministicMLP // Batch 1, follows targetActor

	// Critic
	critic       *critic.Trainer
	criticSolver *solver.Solver
	targetCritic *critic.Evaluator
	probeCritic  *critic.Evaluator // Batch 1, follows critic

	episode   int
	iteration int
	obs       ts.TimeStep
}

// returnWindow is the number of episodes over which the mean return is
// logged
const returnWindow = 100

// New returns a new DDPG agent which explores with an
// Ornstein-Uhlenbeck process
func New(env environment.Environment, c Config) (*DDPG, error) {
	actionDims := env.ActionSpec().Shape.Len()
	n, err := noise.NewOrnsteinUhlenbeck(actionDims, c.Noise, c.Seed+1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create noise: %v", err)
	}
	return NewWithNoise(env, c, n)
}

// NewWithNoise returns a new DDPG agent which explores with the noise
// process n. The noise process should produce noise for actions in
// [-1, 1], it is scaled by the action bound of the environment.
func NewWithNoise(env environment.Environment, c Config,
	n noise.Noise) (*DDPG, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if n == nil {
		return nil, fmt.Errorf("new: nil noise process")
	}

	bound, err := environment.SymmetricBound(env.ActionSpec())
	if err != nil {
		return nil, fmt.Errorf("new: unsupported action space: %v", err)
	}
	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	d := &DDPG{
		env:        env,
		config:     c,
		bound:      bound,
		features:   features,
		actionDims: actionDims,
		noise:      n,
	}

	d.buffer, err = expreplay.New(c.BufferCapacity, features, actionDims,
		c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create replay buffer: %v", err)
	}
	d.sampler, err = environment.NewActionSampler(env.ActionSpec(),
		c.Seed+2)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	if err := d.buildActor(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := d.buildCritic(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	// Fill the buffer with random transitions so that it can be sampled
	// from on the first step
	if err := d.warmup(c.WarmupSteps); err != nil {
		return nil, fmt.Errorf("new: could not fill replay buffer: %v", err)
	}

	return d, nil
}

// initWFn returns the weight initializer of the networks
func (d *DDPG) initWFn() G.InitWFn {
	if d.config.InitWFn == nil {
		return DefaultConfig().InitWFn.InitWFn(d.config.Seed)
	}
	return d.config.InitWFn.InitWFn(d.config.Seed)
}

// buildActor creates the actor, its target, and the graph to train it.
// The critic clone in the actor's graph needs the critic's architecture
// only, its weights are overwritten before each update.
func (d *DDPG) buildActor() error {
	c := d.config
	init := d.initWFn()

	var err error
	d.actor, err = policy.NewDeterministicMLP("actor", d.features,
		d.actionDims, c.BatchSize, d.bound, c.ActorLayers, init)
	if err != nil {
		return fmt.Errorf("buildactor: %v", err)
	}

	// Target and behaviour networks are copies of the actor
	if d.targetActor, err = d.actor.CloneWithBatch(c.BatchSize); err != nil {
		return fmt.Errorf("buildactor: could not create target: %v", err)
	}
	if d.behaviour, err = d.actor.CloneWithBatch(1); err != nil {
		return fmt.Errorf("buildactor: could not create behaviour: %v", err)
	}
	if d.evalActor, err = d.targetActor.CloneWithBatch(1); err != nil {
		return fmt.Errorf("buildactor: could not create evaluation "+
			"policy: %v", err)
	}

	// Compute Q(s, μ(s)) in the actor's graph
	qNet, err := critic.New("critic", d.features, d.actionDims,
		c.BatchSize, c.CriticLayers, init)
	if err != nil {
		return fmt.Errorf("buildactor: %v", err)
	}
	actorNet := d.actor.Network()
	d.actorQ, err = network.CloneWithInput(qNet,
		[]*G.Node{actorNet.Input(), d.actor.Action()}, actorNet.Graph())
	if err != nil {
		return fmt.Errorf("buildactor: could not add critic to actor "+
			"graph: %v", err)
	}

	actorLoss := G.Must(G.Mean(d.actorQ.Prediction()[0]))
	actorLoss = G.Must(G.Neg(actorLoss))
	G.Read(actorLoss, &d.actorLossVal)

	if _, err := G.Grad(actorLoss, actorNet.Learnables()...); err != nil {
		return fmt.Errorf("buildactor: could not compute actor gradient: %v",
			err)
	}
	d.actorVM = G.NewTapeMachine(actorNet.Graph(),
		G.BindDualValues(actorNet.Learnables()...))

	d.actorSolver, err = solver.NewDefaultAdam(c.LearningRate, 1)
	if err != nil {
		return fmt.Errorf("buildactor: %v", err)
	}
	return nil
}

// buildCritic creates the critic, its target, and the probe used to
// log action values
func (d *DDPG) buildCritic() error {
	c := d.config

	net, err := critic.New("critic", d.features, d.actionDims, c.BatchSize,
		c.CriticLayers, d.initWFn())
	if err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}

	target, err := net.Clone()
	if err != nil {
		return fmt.Errorf("buildcritic: could not create target: %v", err)
	}
	if d.targetCritic, err = critic.NewEvaluator(target,
		d.actionDims); err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}

	probe, err := net.CloneWithBatch(1)
	if err != nil {
		return fmt.Errorf("buildcritic: could not create probe: %v", err)
	}
	if d.probeCritic, err = critic.NewEvaluator(probe,
		d.actionDims); err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}

	d.criticSolver, err = solver.NewDefaultAdam(c.LearningRate, 1)
	if err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}
	if d.critic, err = critic.NewTrainer(net, d.actionDims,
		d.criticSolver); err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}
	return nil
}

// warmup pushes steps transitions of uniformly random actions onto the
// replay buffer
func (d *DDPG) warmup(steps int) error {
	if steps == 0 {
		return nil
	}

	step, err := d.env.Reset()
	if err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		action := d.sampler.Sample()
		next, done, err := d.env.Step(action)
		if err != nil {
			return err
		}
		if err := d.buffer.Push(ts.NewTransition(step, action,
			next)); err != nil {
			return err
		}

		step = next
		if done {
			if step, err = d.env.Reset(); err != nil {
				return err
			}
		}
	}
	return nil
}

// SelectAction returns the action to take in the state obs. In training
// mode, the action of the actor plus exploration noise is returned. In
// evaluation mode, the action of the target actor is returned without
// noise. Actions are clipped to the action bound.
func (d *DDPG) SelectAction(obs mat.Vector, train bool) (*mat.VecDense,
	error) {
	var action *mat.VecDense
	var err error

	if train {
		action, err = d.behaviour.SelectAction(obs)
		if err != nil {
			return nil, fmt.Errorf("selectaction: %v", err)
		}
		eps := d.noise.Iteration()
		if len(eps) != d.actionDims {
			return nil, fmt.Errorf("selectaction: noise has dimension %v, "+
				"want %v", len(eps), d.actionDims)
		}
		for i, e := range eps {
			action.SetVec(i, action.AtVec(i)+d.bound*e)
		}
	} else {
		if err := d.evalActor.Network().Set(
			d.targetActor.Network()); err != nil {
			return nil, fmt.Errorf("selectaction: %v", err)
		}
		action, err = d.evalActor.SelectAction(obs)
		if err != nil {
			return nil, fmt.Errorf("selectaction: %v", err)
		}
	}

	floatutils.ClipSlice(action.RawVector().Data, -d.bound, d.bound)
	return action, nil
}

// Train trains the agent until opts.Episodes episodes have been
// completed. Training continues from the agent's episode counter, so
// that a loaded agent resumes training. If ctx is cancelled, training
// stops at the end of the current episode, a checkpoint is saved if
// opts.Save, and the context's error is returned.
func (d *DDPG) Train(ctx context.Context, opts agent.TrainOptions) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("train: %v", err)
	}
	sink := opts.MetricSink()
	interval := d.config.LogInterval

	var checkpoints checkpointer.Checkpointer
	if opts.Save {
		checkpoints = checkpointer.NewNEpisode(opts.CheckpointEvery, d,
			checkpointer.FilenameEnumerator(opts.SavePath))
	}

	var bar *progressbar.ProgressBar
	if opts.ProgressBar {
		bar = progressbar.NewProgressBar(os.Stderr, 50,
			opts.Episodes-d.episode, time.Second)
		bar.Display()
		defer bar.Close()
	}

	returns := tracker.NewWindow(returnWindow)
	var summed stepStats
	for d.episode < opts.Episodes {
		if err := ctx.Err(); err != nil {
			return d.stop(opts, err)
		}

		d.noise.Reset()
		var err error
		if d.obs, err = d.env.Reset(); err != nil {
			return fmt.Errorf("train: could not reset environment: %v", err)
		}

		var episodeReturn float64
		for t := 0; t < opts.EpisodeLength; t++ {
			if d.iteration%interval == 0 {
				summed = stepStats{}
			}

			stats, err := d.step(opts.Render)
			if err != nil {
				return fmt.Errorf("train: episode %d: %v", d.episode, err)
			}
			episodeReturn += stats.reward
			summed.add(stats)
			d.iteration++

			if d.iteration%interval == 0 {
				n := float64(interval)
				sink.Add("mean_reward", d.iteration, summed.reward/n)
				sink.Add("mean_q", d.iteration, summed.q/n)
				sink.Add("mean_qloss", d.iteration, summed.qLoss/n)
				sink.Add("mean_actorloss", d.iteration, summed.actorLoss/n)
				log.Debugf("iteration %d: mean reward %.4f, mean q %.4f, "+
					"mean q loss %.4f, mean actor loss %.4f", d.iteration,
					summed.reward/n, summed.q/n, summed.qLoss/n,
					summed.actorLoss/n)
			}
		}

		d.episode++
		returns.Add(episodeReturn)
		if opts.Log {
			log.Infof("episode %d of %d: return %.2f, mean return of last "+
				"%d episodes %.2f", d.episode, opts.Episodes, episodeReturn,
				returns.Len(), returns.Mean())
		}
		if bar != nil {
			bar.Increment()
			bar.Describe(fmt.Sprintf("episode %d of %d", d.episode,
				opts.Episodes))
		}
		if checkpoints != nil {
			if err := checkpoints.Checkpoint(d.episode); err != nil {
				return fmt.Errorf("train: could not checkpoint: %v", err)
			}
		}
	}

	if opts.Save {
		if err := d.Save(opts.SavePath); err != nil {
			return fmt.Errorf("train: %v", err)
		}
	}
	return nil
}

// stop saves the agent if needed when training is interrupted and
// returns the cause of the interruption
func (d *DDPG) stop(opts agent.TrainOptions, cause error) error {
	if opts.Save {
		if err := d.Save(opts.SavePath); err != nil {
			return fmt.Errorf("train: %v (interrupted: %w)", err, cause)
		}
	}
	return cause
}

// stepStats are the quantities logged for a training step
type stepStats struct {
	reward    float64
	q         float64 // Critic's value of the action taken
	qLoss     float64
	actorLoss float64
}

func (s *stepStats) add(o stepStats) {
	s.reward += o.reward
	s.q += o.q
	s.qLoss += o.qLoss
	s.actorLoss += o.actorLoss
}

// step takes a single environmental step and performs a single update
// of the critic, the actor, and both target networks
func (d *DDPG) step(render bool) (stepStats, error) {
	action, err := d.SelectAction(d.obs.Observation, true)
	if err != nil {
		return stepStats{}, err
	}
	next, done, err := d.env.Step(action)
	if err != nil {
		return stepStats{}, fmt.Errorf("step: could not step environment: "+
			"%v", err)
	}
	if render {
		if r, ok := d.env.(environment.Renderer); ok {
			if err := r.Render(); err != nil {
				return stepStats{}, fmt.Errorf("step: could not render: %v",
					err)
			}
		}
	}

	// Value of the action taken according to the current critic
	if err := d.probeCritic.Network().Set(d.critic.Network()); err != nil {
		return stepStats{}, fmt.Errorf("step: %v", err)
	}
	values, err := d.probeCritic.Values(rawVec(d.obs.Observation),
		action.RawVector().Data)
	if err != nil {
		return stepStats{}, fmt.Errorf("step: %v", err)
	}

	if err := d.buffer.Push(ts.NewTransition(d.obs, action, next)); err != nil {
		return stepStats{}, fmt.Errorf("step: %v", err)
	}

	// The step counter of the episode continues after the environment
	// is reset
	d.obs = next
	if done {
		if d.obs, err = d.env.Reset(); err != nil {
			return stepStats{}, fmt.Errorf("step: could not reset "+
				"environment: %v", err)
		}
	}

	qLoss, actorLoss, err := d.update()
	if err != nil {
		return stepStats{}, err
	}
	return stepStats{
		reward:    next.Reward,
		q:         values[0],
		qLoss:     qLoss,
		actorLoss: actorLoss,
	}, nil
}

// update performs a single update of the critic, actor, and target
// networks on a batch sampled from the replay buffer. The losses of the
// critic and actor before the update are returned.
func (d *DDPG) update() (qLoss, actorLoss float64, err error) {
	states, actions, rewards, nextStates, err := d.buffer.SampleBatches(
		d.config.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("update: could not sample: %v", err)
	}

	// Critic update towards r + γQ'(s', μ'(s'))
	nextActions, err := d.targetActor.Forward(nextStates)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	nextQ, err := d.targetCritic.Values(nextStates, nextActions)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	targets := make([]float64, len(rewards))
	for i := range targets {
		targets[i] = rewards[i] + d.config.Gamma*nextQ[i]
	}
	qLoss, err = d.critic.Fit(states, actions, targets)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}

	// Actor update minimizing -Q(s, μ(s))
	if err := d.actorQ.Set(d.critic.Network()); err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	if err := d.actor.Network().SetInput(states); err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	if err := d.actorVM.RunAll(); err != nil {
		d.actorVM.Reset()
		return 0, 0, fmt.Errorf("update: could not run actor vm: %v", err)
	}
	if err := d.actorSolver.Step(d.actor.Network().Model()); err != nil {
		d.actorVM.Reset()
		return 0, 0, fmt.Errorf("update: could not step actor solver: %v", err)
	}
	actorLoss = d.actorLossVal.Data().(float64)
	d.actorVM.Reset()

	// Soft target updates
	if err := d.targetActor.Network().Polyak(d.actor.Network(),
		d.config.Tau); err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	if err := d.targetCritic.Network().Polyak(d.critic.Network(),
		d.config.Tau); err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	if err := d.behaviour.Network().Set(d.actor.Network()); err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}

	return qLoss, actorLoss, nil
}

// EvalResult holds, for each evaluation episode, the reward of each
// step, the mean reward over all previous steps of the episode, and
// the target critic's value of each action taken
type EvalResult struct {
	Rewards     [][]float64
	MeanRewards [][]float64
	MeanQ       [][]float64
}

// Eval runs the target actor without exploration noise for episodes
// episodes of length steps each. If the environment ends an episode
// early, it is reset and the episode continues.
func (d *DDPG) Eval(episodes, length int, render bool) (EvalResult, error) {
	if episodes <= 0 || length <= 0 {
		return EvalResult{}, fmt.Errorf("eval: episodes (%v) and length "+
			"(%v) must be positive", episodes, length)
	}

	probe, err := d.targetCritic.Network().CloneWithBatch(1)
	if err != nil {
		return EvalResult{}, fmt.Errorf("eval: %v", err)
	}
	q, err := critic.NewEvaluator(probe, d.actionDims)
	if err != nil {
		return EvalResult{}, fmt.Errorf("eval: %v", err)
	}
	defer q.Close()

	result := EvalResult{
		Rewards:     make([][]float64, episodes),
		MeanRewards: make([][]float64, episodes),
		MeanQ:       make([][]float64, episodes),
	}
	for e := 0; e < episodes; e++ {
		step, err := d.env.Reset()
		if err != nil {
			return EvalResult{}, fmt.Errorf("eval: %v", err)
		}

		var summed float64
		for t := 0; t < length; t++ {
			action, err := d.SelectAction(step.Observation, false)
			if err != nil {
				return EvalResult{}, fmt.Errorf("eval: %v", err)
			}
			values, err := q.Values(rawVec(step.Observation),
				action.RawVector().Data)
			if err != nil {
				return EvalResult{}, fmt.Errorf("eval: %v", err)
			}

			next, done, err := d.env.Step(action)
			if err != nil {
				return EvalResult{}, fmt.Errorf("eval: %v", err)
			}
			if render {
				if r, ok := d.env.(environment.Renderer); ok {
					if err := r.Render(); err != nil {
						return EvalResult{}, fmt.Errorf("eval: %v", err)
					}
				}
			}

			summed += next.Reward
			result.Rewards[e] = append(result.Rewards[e], next.Reward)
			result.MeanRewards[e] = append(result.MeanRewards[e],
				summed/float64(t+1))
			result.MeanQ[e] = append(result.MeanQ[e], values[0])

			step = next
			if done {
				if step, err = d.env.Reset(); err != nil {
					return EvalResult{}, fmt.Errorf("eval: %v", err)
				}
			}
		}
	}
	return result, nil
}

// Episode returns the number of episodes completed
func (d *DDPG) Episode() int {
	return d.episode
}

// Save saves the live and target networks, the solver states, and the
// episode counter to path
func (d *DDPG) Save(path string) error {
	c := &checkpointer.Checkpoint{
		Episode:      d.episode,
		ActorSolver:  d.actorSolver.State(),
		CriticSolver: d.criticSolver.State(),
	}

	nets := []struct {
		net network.NeuralNet
		dst *[]network.Param
	}{
		{d.actor.Network(), &c.Actor},
		{d.targetActor.Network(), &c.TargetActor},
		{d.critic.Network(), &c.Critic},
		{d.targetCritic.Network(), &c.TargetCritic},
	}
	for _, n := range nets {
		params, err := network.Params(n.net)
		if err != nil {
			return fmt.Errorf("save: %v", err)
		}
		*n.dst = params
	}

	if err := checkpointer.Save(path, c); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	log.Debugf("saved checkpoint of episode %d to %v", d.episode, path)
	return nil
}

// Load loads the networks, solver states, and episode counter saved by
// Save from path. If any network in the checkpoint does not match the
// architecture of the agent, an error is returned and the agent is
// left unchanged.
func (d *DDPG) Load(path string) error {
	c, err := checkpointer.Load(path)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}

	nets := []struct {
		net    network.NeuralNet
		params []network.Param
	}{
		{d.actor.Network(), c.Actor},
		{d.targetActor.Network(), c.TargetActor},
		{d.critic.Network(), c.Critic},
		{d.targetCritic.Network(), c.TargetCritic},
	}
	for _, n := range nets {
		if err := network.CheckParams(n.net, n.params); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}

	actorSolver := d.actorSolver.Clone()
	if err := actorSolver.SetState(c.ActorSolver); err != nil {
		return fmt.Errorf("load: actor solver: %v", err)
	}
	criticSolver := d.criticSolver.Clone()
	if err := criticSolver.SetState(c.CriticSolver); err != nil {
		return fmt.Errorf("load: critic solver: %v", err)
	}

	for _, n := range nets {
		if err := network.SetParams(n.net, n.params); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}
	if err := d.actorSolver.SetState(c.ActorSolver); err != nil {
		return fmt.Errorf("load: actor solver: %v", err)
	}
	if err := d.criticSolver.SetState(c.CriticSolver); err != nil {
		return fmt.Errorf("load: critic solver: %v", err)
	}

	// Synchronize the copies of the loaded networks
	if err := d.behaviour.Network().Set(d.actor.Network()); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := d.evalActor.Network().Set(d.targetActor.Network()); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	if err := d.probeCritic.Network().Set(d.critic.Network()); err != nil {
		return fmt.Errorf("load: %v", err)
	}

	d.episode = c.Episode
	return nil
}

// Close releases the resources of the agent's VMs
func (d *DDPG) Close() error {
	closers := []interface{ Close() error }{
		d.behaviour, d.actor, d.targetActor, d.evalActor, d.actorVM,
		d.critic, d.targetCritic, d.probeCritic,
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close: %v", err)
		}
	}
	return nil
}

func rawVec(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
