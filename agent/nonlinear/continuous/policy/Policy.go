// Package policy implements neural network policies for continuous
// action environments
package policy

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/network"
	G "gorgonia.org/gorgonia"
)

// For stability, the standard deviation of the Gaussian distribution
// should be offset from 0.
const stdOffset float64 = 1e-3

// BoundedAction adds nodes to the graph of pred which squash pred into
// (-bound, bound) by computing bound * tanh(pred)
func BoundedAction(pred *G.Node, bound float64) (*G.Node, error) {
	if bound <= 0 {
		return nil, fmt.Errorf("boundedaction: bound must be positive")
	}
	squashed, err := G.Tanh(pred)
	if err != nil {
		return nil, fmt.Errorf("boundedaction: %v", err)
	}
	return G.Mul(squashed, G.NewConstant(bound))
}

// GaussianHeads returns the mean and standard deviation nodes of a
// two-headed network. The mean is bound * tanh of the first head and
// the standard deviation is exp of the second head, offset from 0 for
// numerical stability.
func GaussianHeads(net network.NeuralNet, bound float64) (mean,
	std *G.Node, err error) {
	if heads := len(net.Prediction()); heads != 2 {
		return nil, nil, fmt.Errorf("gaussianheads: network must have 2 "+
			"heads, have(%v)", heads)
	}

	mean, err = BoundedAction(net.Prediction()[0], bound)
	if err != nil {
		return nil, nil, fmt.Errorf("gaussianheads: %v", err)
	}

	std = G.Must(G.Exp(net.Prediction()[1]))
	std = G.Must(G.Add(std, G.NewConstant(stdOffset)))

	return mean, std, nil
}

// hiddenLayers returns biases and ReLU activations for len(hiddenSizes)
// hidden layers
func hiddenLayers(hiddenSizes []int) ([]bool, []*network.Activation) {
	biases := make([]bool, len(hiddenSizes))
	for i := range biases {
		biases[i] = true
	}
	return biases, network.Repeat(network.ReLU, len(hiddenSizes))
}

// forward sets the input of net to states, runs vm, and resets it
func forward(net network.NeuralNet, vm G.VM, states []float64) error {
	if err := net.SetInput(states); err != nil {
		return fmt.Errorf("forward: could not set input: %v", err)
	}
	defer vm.Reset()
	if err := vm.RunAll(); err != nil {
		return fmt.Errorf("forward: could not run policy vm: %v", err)
	}
	return nil
}
