package experiment

import (
	"context"
	"fmt"

	"github.com/aunum/log"
	"github.com/samuelfneumann/gocontrol/agent"
	"github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/experiment/tracker"
)

// Online is an experiment that trains a single agent online in its
// environment and records the agent's training metrics
type Online struct {
	env     environment.Environment
	trainer agent.Trainer
	opts    agent.TrainOptions
	scalars *tracker.Scalars
}

// NewOnline creates the environment and agent described by c. The
// agent is trained with opts, and its metrics are saved to metricsPath
// after training. If metricsPath is empty, metrics are not saved.
func NewOnline(c Config, opts agent.TrainOptions,
	metricsPath string) (*Online, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newonline: %v", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("newonline: %v", err)
	}

	env, err := c.Environment.Create(c.Seed)
	if err != nil {
		return nil, fmt.Errorf("newonline: %v", err)
	}
	trainer, err := c.Agent.Create(env)
	if err != nil {
		return nil, fmt.Errorf("newonline: could not create %v agent: %v",
			c.Agent.Type, err)
	}

	o := &Online{env: env, trainer: trainer, opts: opts}
	if metricsPath != "" {
		o.scalars = tracker.NewScalars(metricsPath)
		if opts.Sink == nil {
			o.opts.Sink = o.scalars
		}
	}
	return o, nil
}

// Load resumes the experiment from the checkpoint at path
func (o *Online) Load(path string) error {
	if err := o.trainer.Load(path); err != nil {
		return fmt.Errorf("load: %v", err)
	}
	log.Infof("resuming from episode %d of checkpoint %v",
		o.trainer.Episode(), path)
	return nil
}

// Run trains the agent and then saves its metrics. Metrics recorded
// before an error or cancellation are still saved.
func (o *Online) Run(ctx context.Context) error {
	trainErr := o.trainer.Train(ctx, o.opts)

	if o.scalars != nil {
		if err := o.scalars.Save(); err != nil {
			if trainErr != nil {
				return fmt.Errorf("run: %w (could not save metrics: %v)",
					trainErr, err)
			}
			return fmt.Errorf("run: could not save metrics: %v", err)
		}
	}
	if trainErr != nil {
		return fmt.Errorf("run: %w", trainErr)
	}

	log.Successf("trained for %d episodes", o.trainer.Episode())
	return nil
}

// Trainer returns the agent of the experiment
func (o *Online) Trainer() agent.Trainer {
	return o.trainer
}

// Environment returns the environment of the experiment
func (o *Online) Environment() environment.Environment {
	return o.env
}
