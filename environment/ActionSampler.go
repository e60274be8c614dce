package environment

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// ActionSampler samples actions uniformly from within the bounds of a
// continuous action Spec
type ActionSampler struct {
	dims int
	dist *distmv.Uniform
}

// NewActionSampler returns an ActionSampler for the action Spec s
func NewActionSampler(s Spec, seed uint64) (*ActionSampler, error) {
	if s.Cardinality != Continuous {
		return nil, fmt.Errorf("newactionsampler: cannot sample from " +
			"non-continuous spec")
	}

	bounds := make([]r1.Interval, s.LowerBound.Len())
	for i := range bounds {
		bounds[i] = r1.Interval{
			Min: s.LowerBound.AtVec(i),
			Max: s.UpperBound.AtVec(i),
		}
		if bounds[i].Min > bounds[i].Max {
			return nil, fmt.Errorf("newactionsampler: lower bound %v > "+
				"upper bound %v at index %d", bounds[i].Min, bounds[i].Max, i)
		}
	}

	source := rand.NewSource(seed)
	return &ActionSampler{
		dims: len(bounds),
		dist: distmv.NewUniform(bounds, source),
	}, nil
}

// Sample returns a uniformly random action
func (a *ActionSampler) Sample() *mat.VecDense {
	return mat.NewVecDense(a.dims, a.dist.Rand(nil))
}
