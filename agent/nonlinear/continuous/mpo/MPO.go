// Package mpo implements the Maximum a Posteriori Policy Optimization
// algorithm for continuous action environments
package mpo

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
	"github.com/samuelfneumann/gocontrol/distribution"
	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/experiment/checkpointer"
	"github.com/samuelfneumann/gocontrol/network"
	"github.com/samuelfneumann/gocontrol/solver"
	ts "github.com/samuelfneumann/gocontrol/timestep"
	"github.com/samuelfneumann/gocontrol/utils/floatutils"
	"github.com/samuelfneumann/gocontrol/utils/progressbar"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// MPO implements Maximum a Posteriori Policy Optimization with a
// diagonal Gaussian policy. Each episode, a trajectory is sampled with
// the mean action of the target policy. The trajectory is then split
// into minibatches several times over. For each minibatch:
//
//  1. The critic is regressed towards r + γ mean_j Q'(s', a_j), where
//     a_j are M actions sampled from the target policy.
//  2. E-step: the temperature η of the non-parametric policy is found
//     by minimizing its convex dual, and the sampled actions are
//     reweighted by exp(Q'(s, a_j) / η).
//  3. M-step: the policy is fit to the reweighted actions subject to
//     constraints on the mean and covariance terms of its KL divergence
//     to the target policy, enforced with Lagrange multipliers.
//
// After each episode, the target networks are set to the live networks.
type MPO struct {
	env        environment.Environment
	config     Config
	bound      float64
	features   int
	actionDims int
	rng        *rand.Rand
	src        rand.Source

	// Actor
	actor        *policy.GaussianMLP // Trained by the improver
	improver     *improver
	actorSolver  *solver.Solver
	probeActor   *policy.GaussianMLP // Follows actor, used for the KL
	targetActor  *policy.GaussianMLP
	samplerActor *policy.GaussianMLP // Batch 1, follows targetActor

	// Critic
	critic       *critic.Trainer
	criticSolver *solver.Solver
	targetCritic *critic.Evaluator // Batch M * B

	lagrange multipliers

	episode int
}

// New returns a new MPO agent
func New(env environment.Environment, c Config) (*MPO, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	bound, err := environment.SymmetricBound(env.ActionSpec())
	if err != nil {
		return nil, fmt.Errorf("new: unsupported action space: %v", err)
	}

	src := rand.NewSource(c.Seed)
	m := &MPO{
		env:        env,
		config:     c,
		bound:      bound,
		features:   env.ObservationSpec().Shape.Len(),
		actionDims: env.ActionSpec().Shape.Len(),
		rng:        rand.New(src),
		src:        rand.NewSource(c.Seed + 1),
	}

	m.lagrange = newMultipliers(m.rng, c.DualFloor)

	if err := m.buildActor(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := m.buildCritic(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return m, nil
}

func (m *MPO) buildActor() error {
	c := m.config
	init := c.InitWFn
	if init == nil {
		init = DefaultConfig().InitWFn
	}

	var err error
	m.actor, err = policy.NewGaussianMLP("actor", m.features, m.actionDims,
		c.MinibatchSize, m.bound, c.ActorLayers, init.InitWFn(c.Seed))
	if err != nil {
		return fmt.Errorf("buildactor: %v", err)
	}

	if m.probeActor, err = m.actor.CloneWithBatch(c.MinibatchSize); err != nil {
		return fmt.Errorf("buildactor: could not create probe: %v", err)
	}
	if m.targetActor, err = m.actor.CloneWithBatch(
		c.MinibatchSize); err != nil {
		return fmt.Errorf("buildactor: could not create target: %v", err)
	}
	if m.samplerActor, err = m.actor.CloneWithBatch(1); err != nil {
		return fmt.Errorf("buildactor: could not create sampler: %v", err)
	}

	if m.actorSolver, err = solver.NewDefaultAdam(c.LearningRate,
		1); err != nil {
		return fmt.Errorf("buildactor: %v", err)
	}
	m.improver, err = newImprover(m.actor, c.MeanConstraint,
		c.VarConstraint, c.SwapKLTerms, m.actorSolver)
	if err != nil {
		return fmt.Errorf("buildactor: %v", err)
	}
	return nil
}

func (m *MPO) buildCritic() error {
	c := m.config
	init := c.InitWFn
	if init == nil {
		init = DefaultConfig().InitWFn
	}

	net, err := critic.New("critic", m.features, m.actionDims,
		c.MinibatchSize, c.CriticLayers, init.InitWFn(c.Seed+2))
	if err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}

	target, err := net.CloneWithBatch(c.AdditionalActions * c.MinibatchSize)
	if err != nil {
		return fmt.Errorf("buildcritic: could not create target: %v", err)
	}
	if m.targetCritic, err = critic.NewEvaluator(target,
		m.actionDims); err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}

	if m.criticSolver, err = solver.NewDefaultAdam(c.LearningRate,
		1); err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}
	if m.critic, err = critic.NewTrainer(net, m.actionDims,
		m.criticSolver); err != nil {
		return fmt.Errorf("buildcritic: %v", err)
	}
	return nil
}

// SelectAction returns the mean action of the target policy in the
// state obs
func (m *MPO) SelectAction(obs mat.Vector) (*mat.VecDense, error) {
	action, err := m.samplerActor.Mean(obs)
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	floatutils.ClipSlice(action.RawVector().Data, -m.bound, m.bound)
	return action, nil
}

// sampleTrajectory fills buf with episodes episodes of length steps
// each, taken with the mean action of the target policy. If the
// environment ends an episode early, it is reset and the episode
// continues. The summed reward of all steps is returned.
func (m *MPO) sampleTrajectory(buf *expreplay.Ring, episodes, length int,
	render bool) (float64, error) {
	var summed float64
	for e := 0; e < episodes; e++ {
		step, err := m.env.Reset()
		if err != nil {
			return 0, fmt.Errorf("sampletrajectory: %v", err)
		}

		for t := 0; t < length; t++ {
			action, err := m.SelectAction(step.Observation)
			if err != nil {
				return 0, fmt.Errorf("sampletrajectory: %v", err)
			}
			next, done, err := m.env.Step(action)
			if err != nil {
				return 0, fmt.Errorf("sampletrajectory: %v", err)
			}
			if err := m.render(render); err != nil {
				return 0, fmt.Errorf("sampletrajectory: %v", err)
			}

			summed += next.Reward
			if err := buf.Push(ts.NewTransition(step, action,
				next)); err != nil {
				return 0, fmt.Errorf("sampletrajectory: %v", err)
			}

			step = next
			if done {
				if step, err = m.env.Reset(); err != nil {
					return 0, fmt.Errorf("sampletrajectory: %v", err)
				}
			}
		}
	}
	return summed, nil
}

func (m *MPO) render(render bool) error {
	if !render {
		return nil
	}
	if r, ok := m.env.(environment.Renderer); ok {
		return r.Render()
	}
	return nil
}

// Train trains the agent until opts.Episodes episodes have been
// completed. Training continues from the agent's episode counter, so
// that a loaded agent resumes training. If ctx is cancelled, training
// stops at the end of the current episode and the context's error is
// returned.
func (m *MPO) Train(ctx context.Context, opts agent.TrainOptions) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("train: %v", err)
	}
	if err := m.config.validateTrajectory(opts); err != nil {
		return fmt.Errorf("train: %v", err)
	}
	sink := opts.MetricSink()

	steps := m.config.SampleEpisodes * opts.EpisodeLength
	trajectory, err := expreplay.New(steps, m.features, m.actionDims,
		m.config.Seed)
	if err != nil {
		return fmt.Errorf("train: %v", err)
	}

	var checkpoints checkpointer.Checkpointer
	if opts.Save {
		checkpoints = checkpointer.NewNEpisode(opts.CheckpointEvery, m,
			checkpointer.FilenameEnumerator(opts.SavePath))
	}

	var bar *progressbar.ProgressBar
	if opts.ProgressBar {
		bar = progressbar.NewProgressBar(os.Stderr, 50,
			opts.Episodes-m.episode, time.Second)
		bar.Display()
		defer bar.Close()
	}

	for m.episode < opts.Episodes {
		if err := ctx.Err(); err != nil {
			return err
		}

		summed, err := m.sampleTrajectory(trajectory,
			m.config.SampleEpisodes, opts.EpisodeLength, opts.Render)
		if err != nil {
			return fmt.Errorf("train: episode %d: %v", m.episode, err)
		}

		var qLoss, lagrangeLoss float64
		var updates int
		for r := 0; r < m.config.RerunMinibatch; r++ {
			perm := m.rng.Perm(trajectory.Len())
			for start := 0; start+m.config.MinibatchSize <= len(perm); start += m.config.MinibatchSize {
				indices := perm[start : start+m.config.MinibatchSize]
				q, l, err := m.update(trajectory, indices, &m.lagrange)
				if err != nil {
					return fmt.Errorf("train: episode %d: %v", m.episode, err)
				}
				qLoss += q
				lagrangeLoss += l
				updates++
			}
		}

		if err := m.updateTargets(); err != nil {
			return fmt.Errorf("train: %v", err)
		}
		m.episode++

		meanReward := summed / float64(steps)
		qLoss /= float64(updates)
		lagrangeLoss /= float64(updates * m.config.LagrangeIterations)
		if opts.Log {
			log.Infof("episode %d of %d: mean reward %.4f, mean q loss %.4f, "+
				"mean lagrange loss %.4f, η %.4g, η_μ %.4g, η_Σ %.4g",
				m.episode, opts.Episodes, meanReward, qLoss, lagrangeLoss,
				m.lagrange.eta, m.lagrange.etaMu, m.lagrange.etaSigma)

			sink.Add("mean_reward", m.episode, meanReward)
			sink.Add("mean_qloss", m.episode, qLoss)
			sink.Add("mean_lagrangeloss", m.episode, lagrangeLoss)
			sink.Add("eta", m.episode, m.lagrange.eta)
			sink.Add("eta_mu", m.episode, m.lagrange.etaMu)
			sink.Add("eta_sigma", m.episode, m.lagrange.etaSigma)

			if m.config.EvalEpisodes > 0 {
				evalReward, err := m.Eval(m.config.EvalEpisodes,
					opts.EpisodeLength, false)
				if err != nil {
					return fmt.Errorf("train: %v", err)
				}
				sink.Add(fmt.Sprintf("mean_rew_%d_ep", m.config.EvalEpisodes),
					m.episode, evalReward)
			}
		}

		if bar != nil {
			bar.Increment()
			bar.Describe(fmt.Sprintf("episode %d of %d", m.episode,
				opts.Episodes))
		}
		if opts.Save {
			if err := m.Save(opts.SavePath); err != nil {
				return fmt.Errorf("train: %v", err)
			}
			if err := checkpoints.Checkpoint(m.episode); err != nil {
				return fmt.Errorf("train: could not checkpoint: %v", err)
			}
		}
	}
	return nil
}

// update performs the critic update, E-step, and M-step on the
// transitions of trajectory at indices, updating lagrange in place. The
// critic loss and the summed M-step loss are returned.
func (m *MPO) update(trajectory *expreplay.Ring, indices []int,
	lagrange *multipliers) (float64, float64, error) {
	states, actions, rewards, nextStates, err := trajectory.BatchesFromSample(
		indices)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}

	// Sample M actions from the target policy in each state
	targets, err := m.targetActor.Distributions(states)
	if err != nil {
		return 0, 0, fmt.Errorf("update: target policy: %w", err)
	}
	sampled := m.sampleActions(targets)

	// Critic update towards r + γ mean_j Q'(s', a_j)
	nextQ, err := m.targetCritic.Values(m.tile(nextStates), sampled)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	y := make([]float64, len(rewards))
	for b := range y {
		y[b] = rewards[b] + m.config.Gamma*m.meanOverActions(nextQ, b)
	}
	qLoss, err := m.critic.Fit(states, actions, y)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}

	// E-step
	q, err := m.targetCritic.Values(m.tile(states), sampled)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	batch := m.config.MinibatchSize
	dual, err := NewDual(mat.NewDense(m.config.AdditionalActions, batch, q),
		m.config.DualConstraint, m.config.DualFloor)
	if err != nil {
		return 0, 0, fmt.Errorf("update: %v", err)
	}
	lagrange.eta = dual.Minimize(lagrange.eta)
	mStep := m.weightedMoments(sampled, dual.Weights(lagrange.eta))
	mStep.states = states
	for _, t := range targets {
		mStep.targetMean = append(mStep.targetMean, t.Mean()...)
		for i := 0; i < m.actionDims; i++ {
			mStep.targetStd = append(mStep.targetStd, t.Chol().At(i, i))
		}
	}

	// M-step
	var lagrangeLoss float64
	for i := 0; i < m.config.LagrangeIterations; i++ {
		if err := m.updateMultipliers(states, targets, lagrange); err != nil {
			return 0, 0, fmt.Errorf("update: %w", err)
		}
		loss, _, _, err := m.improver.step(mStep, lagrange.etaMu,
			lagrange.etaSigma)
		if err != nil {
			return 0, 0, fmt.Errorf("update: %v", err)
		}
		lagrangeLoss += loss
	}
	return qLoss, lagrangeLoss, nil
}

// updateMultipliers takes a single step on the Lagrange multipliers of
// the M-step, based on the KL divergence between the current policy
// and the target policy in states
func (m *MPO) updateMultipliers(states []float64,
	targets []*distribution.Gaussian, lagrange *multipliers) error {
	if err := m.probeActor.Network().Set(m.actor.Network()); err != nil {
		return fmt.Errorf("updatemultipliers: %v", err)
	}
	dists, err := m.probeActor.Distributions(states)
	if err != nil {
		return fmt.Errorf("updatemultipliers: %w", err)
	}
	cMu, cSigma, err := distribution.MeanKLDecomposition(dists, targets)
	if err != nil {
		return fmt.Errorf("updatemultipliers: %w", err)
	}
	if m.config.SwapKLTerms {
		cMu, cSigma = cSigma, cMu
	}

	lagrange.stepKL(m.config.Alpha, m.config.MeanConstraint,
		m.config.VarConstraint, cMu, cSigma)
	return nil
}

// sampleActions samples AdditionalActions actions from each of dists.
// Action j of distribution b is at row j*len(dists) + b of the
// returned row-major matrix.
func (m *MPO) sampleActions(dists []*distribution.Gaussian) []float64 {
	actions := make([]float64, 0, m.config.AdditionalActions*len(dists)*
		m.actionDims)
	for j := 0; j < m.config.AdditionalActions; j++ {
		for _, d := range dists {
			actions = append(actions, d.Sample(m.src)...)
		}
	}
	return actions
}

// tile repeats the row-major batch of states AdditionalActions times
func (m *MPO) tile(states []float64) []float64 {
	out := make([]float64, 0, m.config.AdditionalActions*len(states))
	for j := 0; j < m.config.AdditionalActions; j++ {
		out = append(out, states...)
	}
	return out
}

// meanOverActions returns the mean over sampled actions of the values
// v, laid out as returned by sampleActions, in state b
func (m *MPO) meanOverActions(v []float64, b int) float64 {
	batch := m.config.MinibatchSize
	var sum float64
	for j := 0; j < m.config.AdditionalActions; j++ {
		sum += v[j*batch+b]
	}
	return sum / float64(m.config.AdditionalActions)
}

// weightedMoments reweights the sampled actions by w, clips them to
// the action bound, and returns their per-state first and second
// moments
func (m *MPO) weightedMoments(sampled []float64, w *mat.Dense) mStepBatch {
	batch, dims := m.config.MinibatchSize, m.actionDims
	n := float64(m.config.AdditionalActions)

	moments := mStepBatch{
		actionMean: make([]float64, batch*dims),
		actionSq:   make([]float64, batch*dims),
	}
	for j := 0; j < m.config.AdditionalActions; j++ {
		for b := 0; b < batch; b++ {
			row := (j*batch + b) * dims
			for i := 0; i < dims; i++ {
				a := floatutils.Clip(sampled[row+i]*w.At(j, b), -m.bound,
					m.bound)
				moments.actionMean[b*dims+i] += a / n
				moments.actionSq[b*dims+i] += a * a / n
			}
		}
	}
	return moments
}

// updateTargets sets the target networks to the live networks
func (m *MPO) updateTargets() error {
	if err := m.targetActor.Network().Set(m.actor.Network()); err != nil {
		return fmt.Errorf("updatetargets: %v", err)
	}
	if err := m.targetCritic.Network().Set(m.critic.Network()); err != nil {
		return fmt.Errorf("updatetargets: %v", err)
	}
	return m.syncTargets()
}

// syncTargets sets the copies of the target and live networks used for
// acting and computing the KL divergence
func (m *MPO) syncTargets() error {
	if err := m.samplerActor.Network().Set(
		m.targetActor.Network()); err != nil {
		return fmt.Errorf("synctargets: %v", err)
	}
	if err := m.probeActor.Network().Set(m.actor.Network()); err != nil {
		return fmt.Errorf("synctargets: %v", err)
	}
	return nil
}

// Eval returns the mean summed reward of the target policy over
// episodes episodes of length steps each. If the environment ends an
// episode early, it is reset and the episode continues.
func (m *MPO) Eval(episodes, length int, render bool) (float64, error) {
	if episodes <= 0 || length <= 0 {
		return 0, fmt.Errorf("eval: episodes (%v) and length (%v) must be "+
			"positive", episodes, length)
	}

	var summed float64
	for e := 0; e < episodes; e++ {
		step, err := m.env.Reset()
		if err != nil {
			return 0, fmt.Errorf("eval: %v", err)
		}
		for t := 0; t < length; t++ {
			action, err := m.SelectAction(step.Observation)
			if err != nil {
				return 0, fmt.Errorf("eval: %v", err)
			}
			next, done, err := m.env.Step(action)
			if err != nil {
				return 0, fmt.Errorf("eval: %v", err)
			}
			if err := m.render(render); err != nil {
				return 0, fmt.Errorf("eval: %v", err)
			}

			summed += next.Reward
			step = next
			if done {
				if step, err = m.env.Reset(); err != nil {
					return 0, fmt.Errorf("eval: %v", err)
				}
			}
		}
	}
	return summed / float64(episodes), nil
}

// Episode returns the number of episodes completed
func (m *MPO) Episode() int {
	return m.episode
}

// Multipliers returns the current Lagrange multipliers η, η_μ, and η_Σ
func (m *MPO) Multipliers() checkpointer.Lagrange {
	return m.lagrange.lagrange()
}

// Save saves the live and target networks, the solver states, the
// Lagrange multipliers, and the episode counter to path
func (m *MPO) Save(path string) error {
	lagrange := m.Multipliers()
	c := &checkpointer.Checkpoint{
		Episode:      m.episode,
		ActorSolver:  m.actorSolver.State(),
		CriticSolver: m.criticSolver.State(),
		Lagrange:     &lagrange,
	}

	var err error
	if c.Actor, err = network.Params(m.actor.Network()); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if c.TargetActor, err = network.Params(
		m.targetActor.Network()); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if c.Critic, err = network.Params(m.critic.Network()); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if c.TargetCritic, err = network.Params(
		m.targetCritic.Network()); err != nil {
		return fmt.Errorf("save: %v", err)
	}

	if err := checkpointer.Save(path, c); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	log.Debugf("saved checkpoint of episode %d to %v", m.episode, path)
	return nil
}

// Load loads a checkpoint saved by Save from path. If any network in
// the checkpoint does not match the architecture of the agent, an
// error is returned and the agent is left unchanged. Checkpoints
// without Lagrange multipliers keep the current multipliers.
func (m *MPO) Load(path string) error {
	c, err := checkpointer.Load(path)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}

	nets := []struct {
		net    network.NeuralNet
		params []network.Param
	}{
		{m.actor.Network(), c.Actor},
		{m.targetActor.Network(), c.TargetActor},
		{m.critic.Network(), c.Critic},
		{m.targetCritic.Network(), c.TargetCritic},
	}
	for _, n := range nets {
		if err := network.CheckParams(n.net, n.params); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}
	if err := m.actorSolver.Clone().SetState(c.ActorSolver); err != nil {
		return fmt.Errorf("load: actor solver: %v", err)
	}
	if err := m.criticSolver.Clone().SetState(c.CriticSolver); err != nil {
		return fmt.Errorf("load: critic solver: %v", err)
	}

	for _, n := range nets {
		if err := network.SetParams(n.net, n.params); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}
	if err := m.actorSolver.SetState(c.ActorSolver); err != nil {
		return fmt.Errorf("load: actor solver: %v", err)
	}
	if err := m.criticSolver.SetState(c.CriticSolver); err != nil {
		return fmt.Errorf("load: critic solver: %v", err)
	}
	if err := m.syncTargets(); err != nil {
		return fmt.Errorf("load: %v", err)
	}

	if c.Lagrange != nil {
		m.lagrange = multipliersFrom(*c.Lagrange, m.config.DualFloor)
	}
	m.episode = c.Episode
	return nil
}

// Close releases the resources of the agent's VMs
func (m *MPO) Close() error {
	closers := []interface{ Close() error }{
		m.improver, m.actor, m.probeActor, m.targetActor, m.samplerActor,
		m.critic, m.targetCritic,
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close: %v", err)
		}
	}
	return nil
}
