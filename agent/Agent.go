// Package agent defines the interfaces of trainable agents and their
// configurations
package agent

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/gocontrol/experiment/tracker"
)

// Trainer is an agent that learns by interacting with its environment
// over a number of episodes. The episode counter of a Trainer is saved
// and loaded along with its weights, so that training can be resumed.
type Trainer interface {
	// Train trains the agent until opts.Episodes episodes have been
	// completed or ctx is cancelled
	Train(ctx context.Context, opts TrainOptions) error

	Save(path string) error
	Load(path string) error

	// Episode returns the number of episodes that have been completed
	Episode() int
}

// TrainOptions are the options of a single call to Train. They are
// resolved once from an agent's Config, and may then be overridden by
// the caller.
type TrainOptions struct {
	Episodes      int    `json:"episodes" yaml:"episodes" mapstructure:"episodes"`
	EpisodeLength int    `json:"episode_length" yaml:"episode_length" mapstructure:"episode_length"`
	Render        bool   `json:"render" yaml:"render" mapstructure:"render"`
	Save          bool   `json:"save" yaml:"save" mapstructure:"save"`
	SavePath      string `json:"save_path" yaml:"save_path" mapstructure:"save_path"`

	// CheckpointEvery saves a checkpoint keyed by episode every
	// CheckpointEvery episodes, if Save is true and CheckpointEvery > 0
	CheckpointEvery int  `json:"checkpoint_every" yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	Log             bool `json:"log" yaml:"log" mapstructure:"log"`
	ProgressBar     bool `json:"progress_bar" yaml:"progress_bar" mapstructure:"progress_bar"`

	// Sink receives training metrics when Log is true. If nil,
	// metrics are discarded.
	Sink tracker.Sink `json:"-" yaml:"-" mapstructure:"-"`
}

// Validate returns an error if the options are invalid
func (t TrainOptions) Validate() error {
	if t.Episodes < 0 {
		return fmt.Errorf("validate: episodes must be non-negative")
	}
	if t.EpisodeLength <= 0 {
		return fmt.Errorf("validate: episode length must be positive")
	}
	if t.Save && t.SavePath == "" {
		return fmt.Errorf("validate: save path required when saving")
	}
	if t.CheckpointEvery < 0 {
		return fmt.Errorf("validate: checkpoint interval must be " +
			"non-negative")
	}
	return nil
}

// MetricSink returns the Sink that metrics should be written to
func (t TrainOptions) MetricSink() tracker.Sink {
	if !t.Log || t.Sink == nil {
		return tracker.Discard
	}
	return t.Sink
}
