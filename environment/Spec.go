package environment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion, an observation, a discount, or a reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match upper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// SymmetricBound returns the bound b of a continuous Spec whose values
// all lie in [-b, b]. Every dimension must share the same bound, and
// the bound must be finite and positive.
func SymmetricBound(s Spec) (float64, error) {
	if s.Cardinality != Continuous {
		return 0, fmt.Errorf("symmetricbound: spec must be continuous")
	}
	if s.UpperBound.Len() == 0 {
		return 0, fmt.Errorf("symmetricbound: spec has no dimensions")
	}

	bound := s.UpperBound.AtVec(0)
	if bound <= 0 || math.IsInf(bound, 0) || math.IsNaN(bound) {
		return 0, fmt.Errorf("symmetricbound: illegal bound %v", bound)
	}

	for i := 0; i < s.UpperBound.Len(); i++ {
		if s.UpperBound.AtVec(i) != bound || s.LowerBound.AtVec(i) != -bound {
			return 0, fmt.Errorf("symmetricbound: dimension %d has bounds "+
				"[%v, %v], want [%v, %v]", i, s.LowerBound.AtVec(i),
				s.UpperBound.AtVec(i), -bound, bound)
		}
	}
	return bound, nil
}
