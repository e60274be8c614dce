package environment

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/timestep"
	"gonum.org/v1/gonum/spatial/r1"
)

// IntervalLimit implements the Ender interface to end episodes
// whenever a single feature in a feature vector leaves some interval
type IntervalLimit struct {
	intervals []r1.Interval
	indices   []int
}

// NewIntervalLimit creates and returns a new inteval limit, where
// feature obsIndices[i] must stay within limits[i].
func NewIntervalLimit(limits []r1.Interval, obsIndices []int) (Ender,
	error) {
	if len(limits) != len(obsIndices) {
		return nil, fmt.Errorf("newintervallimit: limits should have same "+
			"length as observation indices \n\twant(%v) \n\thave(%v)",
			len(obsIndices), len(limits))
	}

	return &IntervalLimit{limits, obsIndices}, nil
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode temrination. If the episode
// should be ended End() will modify the timestep so that its StepType
// field is timestep.Last.
func (i *IntervalLimit) End(t *timestep.TimeStep) bool {
	for index := range i.indices {
		featureIndex := i.indices[index]
		interval := i.intervals[index]

		if t.Observation.AtVec(featureIndex) > interval.Max ||
			t.Observation.AtVec(featureIndex) < interval.Min {
			t.StepType = timestep.Last
			return true
		}
	}
	return false
}

// Compose returns an Ender that ends an episode when any of enders do
func Compose(enders ...Ender) Ender {
	return anyEnder(enders)
}

type anyEnder []Ender

func (a anyEnder) End(t *timestep.TimeStep) bool {
	ended := false
	for _, e := range a {
		// Every ender is consulted so each may update the TimeStep
		ended = e.End(t) || ended
	}
	return ended
}
