// Package noise implements exploration noise processes that are added
// to the actions of deterministic policies.
package noise

// Noise is a stateful noise process. Each call to Iteration advances
// the process one step and returns its new value.
type Noise interface {
	Iteration() []float64

	// Reset returns the process to its initial state. It should be
	// called at the start of each episode.
	Reset()
}
