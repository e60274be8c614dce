package ddpg

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/agent"
	"github.com/samuelfneumann/gocontrol/buffer/expreplay"
	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/initwfn"
	"github.com/samuelfneumann/gocontrol/noise"
)

func init() {
	agent.Register(agent.DDPG, func() agent.Config { return DefaultConfig() })
}

// Config implements a configuration of the DDPG agent
type Config struct {
	BufferCapacity int     `json:"buffer_capacity" yaml:"buffer_capacity" mapstructure:"buffer_capacity"`
	BatchSize      int     `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	Gamma          float64 `json:"gamma" yaml:"gamma" mapstructure:"gamma"`
	Tau            float64 `json:"tau" yaml:"tau" mapstructure:"tau"` // Polyak averaging constant
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate" mapstructure:"learning_rate"`

	ActorLayers  []int `json:"actor_layers" yaml:"actor_layers" mapstructure:"actor_layers"`
	CriticLayers []int `json:"critic_layers" yaml:"critic_layers" mapstructure:"critic_layers"`

	// WarmupSteps uniformly random transitions are added to the replay
	// buffer before training
	WarmupSteps int `json:"warmup_steps" yaml:"warmup_steps" mapstructure:"warmup_steps"`

	Noise       noise.OUConfig   `json:"noise" yaml:"noise" mapstructure:"noise"`
	LogInterval int              `json:"log_interval" yaml:"log_interval" mapstructure:"log_interval"`
	InitWFn     *initwfn.InitWFn `json:"init_wfn" yaml:"init_wfn" mapstructure:"init_wfn"`
	Seed        uint64           `json:"seed" yaml:"seed" mapstructure:"seed"`

	Episodes        int    `json:"episodes" yaml:"episodes" mapstructure:"episodes"`
	EpisodeLength   int    `json:"episode_length" yaml:"episode_length" mapstructure:"episode_length"`
	Render          bool   `json:"render" yaml:"render" mapstructure:"render"`
	Log             bool   `json:"log" yaml:"log" mapstructure:"log"`
	Save            bool   `json:"save" yaml:"save" mapstructure:"save"`
	SavePath        string `json:"save_path" yaml:"save_path" mapstructure:"save_path"`
	CheckpointEvery int    `json:"checkpoint_every" yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
}

// DefaultConfig returns the default DDPG configuration
func DefaultConfig() Config {
	return Config{
		BufferCapacity: expreplay.DefaultCapacity,
		BatchSize:      64,
		Gamma:          0.99,
		Tau:            0.001,
		LearningRate:   1e-3,
		ActorLayers:    []int{400, 300},
		CriticLayers:   []int{400, 300},
		WarmupSteps:    64,
		Noise:          noise.DefaultOUConfig(),
		LogInterval:    3000,
		InitWFn:        initwfn.NewGlorotU(1.0),
		Seed:           0,

		Episodes:      10_000,
		EpisodeLength: 3000,
		Render:        false,
		Log:           true,
		Save:          true,
		SavePath:      "ddpg_model.gob",
	}
}

// Create creates a new DDPG agent from the Config
func (c Config) Create(env environment.Environment) (agent.Trainer, error) {
	return New(env, c)
}

// Type returns the type of agent described by the Config
func (c Config) Type() agent.Type {
	return agent.DDPG
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
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("validate: buffer capacity must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be positive")
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1]")
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in [0, 1]")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("validate: learning rate must be positive")
	}
	if c.WarmupSteps < 0 {
		return fmt.Errorf("validate: warmup steps must be non-negative")
	}
	if c.LogInterval <= 0 {
		return fmt.Errorf("validate: log interval must be positive")
	}
	if err := c.Noise.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	for _, layers := range [][]int{c.ActorLayers, c.CriticLayers} {
		for _, size := range layers {
			if size <= 0 {
				return fmt.Errorf("validate: layer sizes must be positive")
			}
		}
	}
	return c.TrainOptions().Validate()
}
