package noise

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// OUConfig configures an Ornstein-Uhlenbeck process
type OUConfig struct {
	Theta float64 `json:"theta" yaml:"theta" mapstructure:"theta"`
	Sigma float64 `json:"sigma" yaml:"sigma" mapstructure:"sigma"`
	Mu    float64 `json:"mu" yaml:"mu" mapstructure:"mu"`
	Dt    float64 `json:"dt" yaml:"dt" mapstructure:"dt"`

	// X0 is the initial value of the process. If nil, the process
	// starts at Mu.
	X0 *float64 `json:"x0,omitempty" yaml:"x0,omitempty" mapstructure:"x0"`
}

// DefaultOUConfig returns the default configuration θ = 0.15, σ = 0.2,
// μ = 0, dt = 1e-2, x0 = μ
func DefaultOUConfig() OUConfig {
	return OUConfig{
		Theta: 0.15,
		Sigma: 0.2,
		Mu:    0.0,
		Dt:    1e-2,
	}
}

// Validate returns an error if the configuration is invalid
func (c OUConfig) Validate() error {
	if c.Theta < 0 {
		return fmt.Errorf("validate: theta must be non-negative")
	}
	if c.Sigma < 0 {
		return fmt.Errorf("validate: sigma must be non-negative")
	}
	if c.Dt <= 0 {
		return fmt.Errorf("validate: dt must be positive")
	}
	return nil
}

// OrnsteinUhlenbeck implements the discretized Ornstein-Uhlenbeck
// process, a mean-reverting process generating temporally correlated
// noise. Each dimension evolves independently as
//
//	x ← x + θ(μ - x)dt + σ√dt N(0, 1)
type OrnsteinUhlenbeck struct {
	OUConfig
	x0     float64
	x      []float64
	normal distuv.Normal
}

// NewOrnsteinUhlenbeck returns a new dims-dimensional
// Ornstein-Uhlenbeck process
func NewOrnsteinUhlenbeck(dims int, c OUConfig,
	seed uint64) (*OrnsteinUhlenbeck, error) {
	if dims < 1 {
		return nil, fmt.Errorf("newornsteinuhlenbeck: dims must be >= 1")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newornsteinuhlenbeck: %v", err)
	}

	x0 := c.Mu
	if c.X0 != nil {
		x0 = *c.X0
	}

	ou := &OrnsteinUhlenbeck{
		OUConfig: c,
		x0:       x0,
		x:        make([]float64, dims),
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewSource(seed),
		},
	}
	ou.Reset()

	return ou, nil
}

// Iteration advances the process by one step and returns a copy of
// its new value
func (o *OrnsteinUhlenbeck) Iteration() []float64 {
	sqrtDt := math.Sqrt(o.Dt)
	for i := range o.x {
		o.x[i] += o.Theta*(o.Mu-o.x[i])*o.Dt + o.Sigma*sqrtDt*o.normal.Rand()
	}

	out := make([]float64, len(o.x))
	copy(out, o.x)
	return out
}

// Reset sets the process back to its initial value
func (o *OrnsteinUhlenbeck) Reset() {
	for i := range o.x {
		o.x[i] = o.x0
	}
}

// Dims returns the dimensionality of the process
func (o *OrnsteinUhlenbeck) Dims() int {
	return len(o.x)
}
