// Package expreplay implements a fixed-capacity experience replay
// buffer with uniform sampling.
package expreplay

import (
	"fmt"
	"sync"

	"github.com/samuelfneumann/gocontrol/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// DefaultCapacity is the default maximum number of transitions stored
const DefaultCapacity int = 1_000_000

// Ring is a fixed capacity experience replay buffer. Once full, each
// new transition overwrites the oldest stored transition. Transitions
// are stored in row-major flat caches. Ring is safe for concurrent use.
type Ring struct {
	mu sync.Mutex

	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	nextStateCache []float64

	// next is the index at which the next transition will be stored
	next int
	size int

	capacity    int
	featureSize int
	actionSize  int

	rng *rand.Rand
}

// New returns a new Ring buffer that holds up to capacity transitions
// with featureSize-dimensional states and actionSize-dimensional
// actions.
func New(capacity, featureSize, actionSize int, seed uint64) (*Ring,
	error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be >= 1")
	}
	if featureSize < 1 || actionSize < 1 {
		return nil, fmt.Errorf("new: feature (%v) and action (%v) sizes "+
			"must be >= 1", featureSize, actionSize)
	}

	// Caches grow with the buffer so that large capacities do not
	// allocate up front
	initial := capacity
	if initial > 1024 {
		initial = 1024
	}

	return &Ring{
		stateCache:     make([]float64, 0, initial*featureSize),
		actionCache:    make([]float64, 0, initial*actionSize),
		rewardCache:    make([]float64, 0, initial),
		nextStateCache: make([]float64, 0, initial*featureSize),
		capacity:       capacity,
		featureSize:    featureSize,
		actionSize:     actionSize,
		rng:            rand.New(rand.NewSource(seed)),
	}, nil
}

// Push adds a transition to the buffer, evicting the oldest transition
// if the buffer is full.
func (r *Ring) Push(t timestep.Transition) error {
	if t.State == nil || t.Action == nil || t.NextState == nil {
		return &ExpReplayError{Op: "push", Err: fmt.Errorf("%w: nil vector",
			ErrDimensionMismatch)}
	}
	if t.State.Len() != r.featureSize || t.NextState.Len() != r.featureSize ||
		t.Action.Len() != r.actionSize {
		err := fmt.Errorf("%w: want state(%v) action(%v), have state(%v) "+
			"action(%v) next state(%v)", ErrDimensionMismatch, r.featureSize,
			r.actionSize, t.State.Len(), t.Action.Len(), t.NextState.Len())
		return &ExpReplayError{Op: "push", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < r.capacity {
		r.stateCache = appendVec(r.stateCache, t.State)
		r.actionCache = appendVec(r.actionCache, t.Action)
		r.rewardCache = append(r.rewardCache, t.Reward)
		r.nextStateCache = appendVec(r.nextStateCache, t.NextState)
		r.size++
	} else {
		copyVecTo(r.stateCache[r.next*r.featureSize:], t.State)
		copyVecTo(r.actionCache[r.next*r.actionSize:], t.Action)
		r.rewardCache[r.next] = t.Reward
		copyVecTo(r.nextStateCache[r.next*r.featureSize:], t.NextState)
	}
	r.next = (r.next + 1) % r.capacity

	return nil
}

// Sample returns n indices drawn uniformly at random, with replacement,
// from the transitions currently stored in the buffer.
func (r *Ring) Sample(n int) ([]int, error) {
	if n < 0 {
		return nil, fmt.Errorf("sample: cannot sample %v transitions", n)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: ErrInsufficientData}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = r.rng.Intn(r.size)
	}
	return indices, nil
}

// BatchesFromSample returns the states, actions, rewards, and next
// states stored at indices. States, actions, and next states are
// returned in row-major order, one row per index.
func (r *Ring) BatchesFromSample(indices []int) (states, actions, rewards,
	nextStates []float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	states = make([]float64, 0, len(indices)*r.featureSize)
	actions = make([]float64, 0, len(indices)*r.actionSize)
	rewards = make([]float64, 0, len(indices))
	nextStates = make([]float64, 0, len(indices)*r.featureSize)

	for _, i := range indices {
		if i < 0 || i >= r.size {
			return nil, nil, nil, nil, fmt.Errorf("batchesfromsample: "+
				"index %v out of range [0, %v)", i, r.size)
		}
		states = append(states, r.row(r.stateCache, i, r.featureSize)...)
		actions = append(actions, r.row(r.actionCache, i, r.actionSize)...)
		rewards = append(rewards, r.rewardCache[i])
		nextStates = append(nextStates,
			r.row(r.nextStateCache, i, r.featureSize)...)
	}
	return states, actions, rewards, nextStates, nil
}

// SampleBatches samples n transitions and returns them as batches,
// equivalent to calling BatchesFromSample on the result of Sample.
func (r *Ring) SampleBatches(n int) (states, actions, rewards,
	nextStates []float64, err error) {
	indices, err := r.Sample(n)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return r.BatchesFromSample(indices)
}

// At returns the i-th oldest transition stored in the buffer
func (r *Ring) At(i int) (timestep.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= r.size {
		return timestep.Transition{}, fmt.Errorf("at: index %v out of "+
			"range [0, %v)", i, r.size)
	}

	// Before the buffer wraps, the oldest transition is at index 0
	oldest := 0
	if r.size == r.capacity {
		oldest = r.next
	}
	index := (oldest + i) % r.capacity

	return timestep.Transition{
		State: mat.NewVecDense(r.featureSize,
			cloneFloats(r.row(r.stateCache, index, r.featureSize))),
		Action: mat.NewVecDense(r.actionSize,
			cloneFloats(r.row(r.actionCache, index, r.actionSize))),
		Reward: r.rewardCache[index],
		NextState: mat.NewVecDense(r.featureSize,
			cloneFloats(r.row(r.nextStateCache, index, r.featureSize))),
	}, nil
}

// Len returns the number of transitions currently stored
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of transitions that can be stored
func (r *Ring) Capacity() int {
	return r.capacity
}

// FeatureSize returns the size of state vectors stored in the buffer
func (r *Ring) FeatureSize() int {
	return r.featureSize
}

// ActionSize returns the size of action vectors stored in the buffer
func (r *Ring) ActionSize() int {
	return r.actionSize
}

func (r *Ring) row(cache []float64, i, size int) []float64 {
	return cache[i*size : (i+1)*size]
}

func appendVec(dst []float64, v *mat.VecDense) []float64 {
	for i := 0; i < v.Len(); i++ {
		dst = append(dst, v.AtVec(i))
	}
	return dst
}

func copyVecTo(dst []float64, v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		dst[i] = v.AtVec(i)
	}
}

func cloneFloats(f []float64) []float64 {
	out := make([]float64, len(f))
	copy(out, f)
	return out
}
