// Package envconfig provides configuration structs for configuring
// environments with default physical parameters and tasks. Environment
// configurations in this package are JSON and YAML serializable.
package envconfig

import (
	"fmt"
	"strings"

	env "github.com/samuelfneumann/gocontrol/environment"
	"github.com/samuelfneumann/gocontrol/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/gocontrol/environment/lqr"
	"gonum.org/v1/gonum/spatial/r1"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	LQR      EnvName = "LQR"
	Pendulum EnvName = "Pendulum"
)

// TaskName stores the tasks that can be configured with this package.
// Not all tasks can be used with all environments. The tasks that can
// be used with each environment are as follows:
//
//	Environment			Task
//	LQR					Regulate
//	Pendulum			SwingUp
type TaskName string

// Tasks available for configuration
const (
	Regulate TaskName = "Regulate"
	SwingUp  TaskName = "SwingUp"
)

// Config implements a specific configuration of a specific environment
// and specific task. Not all environments can have all tasks.
type Config struct {
	Environment   EnvName  `json:"environment" yaml:"environment" mapstructure:"environment"`
	Task          TaskName `json:"task" yaml:"task" mapstructure:"task"`
	EpisodeCutoff int      `json:"episode_cutoff" yaml:"episode_cutoff" mapstructure:"episode_cutoff"`
	Discount      float64  `json:"discount" yaml:"discount" mapstructure:"discount"`

	// Dims is the state and action dimension of LQR environments
	Dims int `json:"dims" yaml:"dims" mapstructure:"dims"`
}

// NewConfig returns a new environment Config
func NewConfig(envName EnvName, taskName TaskName, episodeCutoff int,
	discount float64) Config {
	return Config{
		Environment:   envName,
		Task:          taskName,
		EpisodeCutoff: episodeCutoff,
		Discount:      discount,
		Dims:          2,
	}
}

// Validate returns an error if the Config cannot create an environment
func (c Config) Validate() error {
	if c.EpisodeCutoff <= 0 {
		return fmt.Errorf("validate: episode cutoff must be positive")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1]")
	}

	switch {
	case strings.EqualFold(string(c.Environment), string(LQR)):
		if !strings.EqualFold(string(c.Task), string(Regulate)) {
			return fmt.Errorf("validate: LQR environment has no task %v",
				c.Task)
		}
		if c.Dims <= 0 {
			return fmt.Errorf("validate: LQR dimension must be positive")
		}

	case strings.EqualFold(string(c.Environment), string(Pendulum)):
		if !strings.EqualFold(string(c.Task), string(SwingUp)) {
			return fmt.Errorf("validate: Pendulum environment has no task %v",
				c.Task)
		}

	default:
		return fmt.Errorf("validate: no such environment %v", c.Environment)
	}
	return nil
}

// Create returns the environment described by the Config. The
// starting states of the environment are sampled with seed.
func (c Config) Create(seed uint64) (env.Environment, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}

	if strings.EqualFold(string(c.Environment), string(LQR)) {
		return CreateLQR(c.Dims, c.EpisodeCutoff, seed, c.Discount)
	}
	return CreatePendulum(c.EpisodeCutoff, seed, c.Discount), nil
}

// LQRStateLimit bounds each state feature of LQR environments created
// by CreateLQR. Episodes end once the state leaves the bound.
const LQRStateLimit = 10.0

// CreateLQR is a factory for creating a dims-dimensional LQR integrator
// with actions in [-1, 1] which starts near 1 in each state dimension
func CreateLQR(dims, cutoff int, seed uint64,
	discount float64) (env.Environment, error) {
	bounds := make([]r1.Interval, dims)
	limits := make([]r1.Interval, dims)
	indices := make([]int, dims)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: 0.75, Max: 1.0}
		limits[i] = r1.Interval{Min: -LQRStateLimit, Max: LQRStateLimit}
		indices[i] = i
	}
	limit, err := env.NewIntervalLimit(limits, indices)
	if err != nil {
		return nil, fmt.Errorf("createlqr: %v", err)
	}

	s := env.NewUniformStarter(bounds, seed)
	task := lqr.NewIdentityRegulate(s, env.Compose(env.NewStepLimit(cutoff),
		limit), dims, dims, 0.1)

	return lqr.NewIntegrator(task, dims, 0.1, 1.0, discount)
}

// CreatePendulum is a factory for creating the Pendulum environment
// with default physical parameters and default task parameters.
func CreatePendulum(cutoff int, seed uint64,
	discount float64) env.Environment {
	angle := r1.Interval{Min: -pendulum.AngleBound, Max: pendulum.AngleBound}
	speed := r1.Interval{Min: -1.0, Max: 1.0}

	s := env.NewUniformStarter([]r1.Interval{angle, speed}, seed)
	task := pendulum.NewSwingUp(s, cutoff)

	return pendulum.New(task, discount)
}
