package policy

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// DeterministicMLP implements a deterministic policy for bounded
// continuous actions, parameterized by an MLP. Given a state s, the
// policy selects the action bound * tanh(MLP(s)).
//
// The policy's computational graph can be extended, for example with
// a loss function. The VM used to compute actions is only created the
// first time actions are computed, so a policy that is only ever
// trained should never call Forward or SelectAction.
type DeterministicMLP struct {
	net   network.NeuralNet
	bound float64

	action    *G.Node
	actionVal G.Value

	vm G.VM
}

// NewDeterministicMLP returns a new DeterministicMLP on a new graph.
// Hidden layer i has hiddenSizes[i] units, a bias, and a ReLU
// activation. All network nodes are prefixed with name.
func NewDeterministicMLP(name string, features, actionDims, batch int,
	bound float64, hiddenSizes []int,
	init G.InitWFn) (*DeterministicMLP, error) {
	biases, acts := hiddenLayers(hiddenSizes)
	net, err := network.NewMultiHeadMLP(name, features, batch, actionDims,
		G.NewGraph(), hiddenSizes, biases, init, acts)
	if err != nil {
		return nil, fmt.Errorf("newdeterministicmlp: %v", err)
	}

	return newDeterministic(net, bound)
}

func newDeterministic(net network.NeuralNet,
	bound float64) (*DeterministicMLP, error) {
	action, err := BoundedAction(net.Prediction()[0], bound)
	if err != nil {
		return nil, fmt.Errorf("newdeterministic: %v", err)
	}

	pol := &DeterministicMLP{
		net:    net,
		bound:  bound,
		action: action,
	}
	G.Read(pol.action, &pol.actionVal)

	return pol, nil
}

// Network returns the network of the policy
func (d *DeterministicMLP) Network() network.NeuralNet {
	return d.net
}

// Action returns the node holding the actions of the policy when its
// graph is run
func (d *DeterministicMLP) Action() *G.Node {
	return d.action
}

// Bound returns the action bound of the policy
func (d *DeterministicMLP) Bound() float64 {
	return d.bound
}

// BatchSize returns the number of states the policy acts in at once
func (d *DeterministicMLP) BatchSize() int {
	return d.net.BatchSize()
}

// Forward returns the actions of the policy in each of states, which
// must hold BatchSize() states in row-major order. The returned
// actions are in row-major order.
func (d *DeterministicMLP) Forward(states []float64) ([]float64, error) {
	if d.vm == nil {
		d.vm = G.NewTapeMachine(d.net.Graph())
	}
	if err := forward(d.net, d.vm, states); err != nil {
		return nil, err
	}
	return append([]float64(nil), d.actionVal.Data().([]float64)...), nil
}

// SelectAction returns the action of the policy in the state obs. The
// policy must have a batch size of 1.
func (d *DeterministicMLP) SelectAction(obs mat.Vector) (*mat.VecDense,
	error) {
	if size := d.BatchSize(); size != 1 {
		return nil, fmt.Errorf("selectaction: action selection can only be "+
			"done with a policy with batch size 1 \n\twant(1) \n\thave(%v)",
			size)
	}

	action, err := d.Forward(rawVec(obs))
	if err != nil {
		return nil, fmt.Errorf("selectaction: %v", err)
	}
	return mat.NewVecDense(len(action), action), nil
}

// CloneWithBatch returns a copy of the policy on a new graph with a new
// batch size
func (d *DeterministicMLP) CloneWithBatch(batch int) (*DeterministicMLP,
	error) {
	net, err := d.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	return newDeterministic(net, d.bound)
}

// Close releases the resources of the policy's VM
func (d *DeterministicMLP) Close() error {
	if d.vm == nil {
		return nil
	}
	return d.vm.Close()
}

// rawVec returns the elements of v in a new slice
func rawVec(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
