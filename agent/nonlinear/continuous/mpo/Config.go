package mpo

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/agent"
	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/initwfn"
)

func init() {
	agent.Register(agent.MPO, func() agent.Config { return DefaultConfig() })
}

// Config implements a configuration of the MPO agent
type Config struct {
	// Hard constraint on the KL divergence of the non-parametric policy
	// in the E-step
	DualConstraint float64 `json:"dual_constraint" yaml:"dual_constraint" mapstructure:"dual_constraint"`

	// Hard constraints on the mean and covariance terms of the KL
	// divergence between the live and target policies in the M-step
	MeanConstraint float64 `json:"mean_constraint" yaml:"mean_constraint" mapstructure:"mean_constraint"`
	VarConstraint  float64 `json:"var_constraint" yaml:"var_constraint" mapstructure:"var_constraint"`

	Gamma float64 `json:"gamma" yaml:"gamma" mapstructure:"gamma"`

	// Alpha is the step size of the Lagrange multipliers of the M-step
	Alpha float64 `json:"alpha" yaml:"alpha" mapstructure:"alpha"`

	LagrangeIterations int `json:"lagrange_iterations" yaml:"lagrange_iterations" mapstructure:"lagrange_iterations"`
	MinibatchSize      int `json:"minibatch_size" yaml:"minibatch_size" mapstructure:"minibatch_size"`
	RerunMinibatch     int `json:"rerun_minibatch" yaml:"rerun_minibatch" mapstructure:"rerun_minibatch"`
	SampleEpisodes     int `json:"sample_episodes" yaml:"sample_episodes" mapstructure:"sample_episodes"`

	// AdditionalActions is the number of actions sampled from the target
	// policy in each state of a minibatch
	AdditionalActions int `json:"additional_actions" yaml:"additional_actions" mapstructure:"additional_actions"`

	ActorLayers  []int   `json:"actor_layers" yaml:"actor_layers" mapstructure:"actor_layers"`
	CriticLayers []int   `json:"critic_layers" yaml:"critic_layers" mapstructure:"critic_layers"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" mapstructure:"learning_rate"`

	// DualFloor is the smallest value of the temperature η
	DualFloor float64 `json:"dual_floor" yaml:"dual_floor" mapstructure:"dual_floor"`

	// SwapKLTerms pairs the mean constraint with the covariance term of
	// the KL divergence and the covariance constraint with the mean term
	SwapKLTerms bool `json:"swap_kl_terms" yaml:"swap_kl_terms" mapstructure:"swap_kl_terms"`

	// EvalEpisodes target policy episodes are run after each training
	// episode when logging
	EvalEpisodes int              `json:"eval_episodes" yaml:"eval_episodes" mapstructure:"eval_episodes"`
	InitWFn      *initwfn.InitWFn `json:"init_wfn" yaml:"init_wfn" mapstructure:"init_wfn"`
	Seed         uint64           `json:"seed" yaml:"seed" mapstructure:"seed"`

	Episodes        int    `json:"episodes" yaml:"episodes" mapstructure:"episodes"`
	EpisodeLength   int    `json:"episode_length" yaml:"episode_length" mapstructure:"episode_length"`
	Render          bool   `json:"render" yaml:"render" mapstructure:"render"`
	Log             bool   `json:"log" yaml:"log" mapstructure:"log"`
	Save            bool   `json:"save" yaml:"save" mapstructure:"save"`
	SavePath        string `json:"save_path" yaml:"save_path" mapstructure:"save_path"`
	CheckpointEvery int    `json:"checkpoint_every" yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
}

// DefaultConfig returns the default MPO configuration
func DefaultConfig() Config {
	return Config{
		DualConstraint:     0.1,
		MeanConstraint:     0.1,
		VarConstraint:      1e-4,
		Gamma:              0.99,
		Alpha:              10,
		LagrangeIterations: 5,
		MinibatchSize:      64,
		RerunMinibatch:     5,
		SampleEpisodes:     1,
		AdditionalActions:  64,
		ActorLayers:        []int{100, 100},
		CriticLayers:       []int{100, 100},
		LearningRate:       3e-4,
		DualFloor:          1e-6,
		SwapKLTerms:        false,
		EvalEpisodes:       10,
		InitWFn:            initwfn.NewGlorotU(1.0),
		Seed:               0,

		Episodes:      200,
		EpisodeLength: 3000,
		Render:        false,
		Log:           true,
		Save:          true,
		SavePath:      "mpo_model.gob",
	}
}

// Create creates a new MPO agent from the Config
func (c Config) Create(env environment.Environment) (agent.Trainer, error) {
	return New(env, c)
}

// Type returns the type of agent described by the Config
func (c Config) Type() agent.Type {
	return agent.MPO
}

// TrainOptions returns the options of Train described by the Config
func (c Config) TrainOptions() agent.TrainOptions {
	return agent.TrainOptions{
		Episodes:        c.Episodes,
		EpisodeLength:   c.EpisodeLength,
		Render:          c.Render,
		Save:            c.Save,
		SavePath:        c.SavePath,
		CheckpointEvery: c.CheckpointEvery,
		Log:             c.Log,
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.DualConstraint <= 0 {
		return fmt.Errorf("validate: dual constraint must be positive")
	}
	if c.MeanConstraint < 0 || c.VarConstraint < 0 {
		return fmt.Errorf("validate: KL constraints must be non-negative")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1]")
	}
	if c.Alpha < 0 {
		return fmt.Errorf("validate: alpha must be non-negative")
	}
	if c.LagrangeIterations <= 0 {
		return fmt.Errorf("validate: lagrange iterations must be positive")
	}
	if c.MinibatchSize <= 0 {
		return fmt.Errorf("validate: minibatch size must be positive")
	}
	if c.RerunMinibatch <= 0 {
		return fmt.Errorf("validate: minibatch reruns must be positive")
	}
	if c.SampleEpisodes <= 0 {
		return fmt.Errorf("validate: sample episodes must be positive")
	}
	if c.AdditionalActions <= 0 {
		return fmt.Errorf("validate: additional actions must be positive")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("validate: learning rate must be positive")
	}
	if c.DualFloor <= 0 {
		return fmt.Errorf("validate: dual floor must be positive")
	}
	if c.EvalEpisodes < 0 {
		return fmt.Errorf("validate: eval episodes must be non-negative")
	}
	for _, layers := range [][]int{c.ActorLayers, c.CriticLayers} {
		for _, size := range layers {
			if size <= 0 {
				return fmt.Errorf("validate: layer sizes must be positive")
			}
		}
	}
	if err := c.TrainOptions().Validate(); err != nil {
		return err
	}
	return c.validateTrajectory(c.TrainOptions())
}

// validateTrajectory returns an error if a trajectory sampled with
// opts cannot fill a single minibatch
func (c Config) validateTrajectory(opts agent.TrainOptions) error {
	if steps := c.SampleEpisodes * opts.EpisodeLength; steps < c.MinibatchSize {
		return fmt.Errorf("validate: trajectory of %v steps cannot fill a "+
			"minibatch of size %v", steps, c.MinibatchSize)
	}
	return nil
}
