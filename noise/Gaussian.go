package noise

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian is an uncorrelated noise process which returns independent
// samples from N(0, σ²) on each iteration
type Gaussian struct {
	dims   int
	normal distuv.Normal
}

// NewGaussian returns a new dims-dimensional Gaussian noise process
func NewGaussian(dims int, sigma float64, seed uint64) (*Gaussian, error) {
	if dims < 1 {
		return nil, fmt.Errorf("newgaussian: dims must be >= 1")
	}
	if sigma < 0 {
		return nil, fmt.Errorf("newgaussian: sigma must be non-negative")
	}
	return &Gaussian{
		dims: dims,
		normal: distuv.Normal{
			Mu:    0,
			Sigma: sigma,
			Src:   rand.NewSource(seed),
		},
	}, nil
}

// Iteration returns a new independent noise sample
func (g *Gaussian) Iteration() []float64 {
	out := make([]float64, g.dims)
	for i := range out {
		out[i] = g.normal.Rand()
	}
	return out
}

// Reset is a no-op since the process is stateless
func (g *Gaussian) Reset() {}
