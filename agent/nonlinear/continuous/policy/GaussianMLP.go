package policy

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/distribution"
	"github.com/samuelfneumann/gocontrol/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// GaussianMLP implements a diagonal Gaussian policy parameterized by a
// tree MLP. The MLP has a single root network which breaks off into two
// linear leaf networks. One predicts the mean, and the other the log
// standard deviation. See network.NewTreeMLP for more details.
//
// The mean of the policy is squashed into (-bound, bound) with
// bound * tanh, and the standard deviation is exp(log std) offset
// from 0.
type GaussianMLP struct {
	net        network.NeuralNet
	bound      float64
	actionDims int

	mean    *G.Node
	std     *G.Node
	meanVal G.Value
	stdVal  G.Value

	vm G.VM
}

// NewGaussianMLP returns a new GaussianMLP on a new graph. The root
// network has hidden layer i with hiddenSizes[i] units, a bias, and a
// ReLU activation. All network nodes are prefixed with name.
func NewGaussianMLP(name string, features, actionDims, batch int,
	bound float64, hiddenSizes []int, init G.InitWFn) (*GaussianMLP, error) {
	biases, acts := hiddenLayers(hiddenSizes)
	net, err := network.NewTreeMLP(
		name,
		features,
		batch,
		actionDims,
		G.NewGraph(),
		hiddenSizes,
		biases,
		acts,
		[][]int{{}, {}},
		[][]bool{{}, {}},
		[][]*network.Activation{{}, {}},
		init,
	)
	if err != nil {
		return nil, fmt.Errorf("newgaussianmlp: %v", err)
	}

	return newGaussian(net, bound)
}

func newGaussian(net network.NeuralNet, bound float64) (*GaussianMLP,
	error) {
	mean, std, err := GaussianHeads(net, bound)
	if err != nil {
		return nil, fmt.Errorf("newgaussian: %v", err)
	}

	pol := &GaussianMLP{
		net:        net,
		bound:      bound,
		actionDims: net.Outputs(),
		mean:       mean,
		std:        std,
	}

	// Record values of Gorgonia nodes
	G.Read(pol.mean, &pol.meanVal)
	G.Read(pol.std, &pol.stdVal)

	return pol, nil
}

// Network returns the network of the policy
func (g *GaussianMLP) Network() network.NeuralNet {
	return g.net
}

// MeanNode returns the node holding the mean of the policy
func (g *GaussianMLP) MeanNode() *G.Node {
	return g.mean
}

// StdNode returns the node holding the standard deviation of the policy
func (g *GaussianMLP) StdNode() *G.Node {
	return g.std
}

// BatchSize returns the number of states the policy acts in at once
func (g *GaussianMLP) BatchSize() int {
	return g.net.BatchSize()
}

// ActionDims returns the dimension of the action space
func (g *GaussianMLP) ActionDims() int {
	return g.actionDims
}

// Bound returns the action bound of the policy
func (g *GaussianMLP) Bound() float64 {
	return g.bound
}

// Forward returns the mean and standard deviation of the policy in
// each of states, which must hold BatchSize() states in row-major
// order. Both returned slices are in row-major order.
func (g *GaussianMLP) Forward(states []float64) (means, stds []float64,
	err error) {
	if g.vm == nil {
		g.vm = G.NewTapeMachine(g.net.Graph())
	}
	if err := forward(g.net, g.vm, states); err != nil {
		return nil, nil, err
	}

	means = append([]float64(nil), g.meanVal.Data().([]float64)...)
	stds = append([]float64(nil), g.stdVal.Data().([]float64)...)
	return means, stds, nil
}

// Distributions returns the Gaussian policy in each of states. The
// Cholesky factor of each covariance is diagonal, holding the standard
// deviations.
func (g *GaussianMLP) Distributions(states []float64) (
	[]*distribution.Gaussian, error) {
	means, stds, err := g.Forward(states)
	if err != nil {
		return nil, fmt.Errorf("distributions: %v", err)
	}

	d := g.actionDims
	dists := make([]*distribution.Gaussian, g.BatchSize())
	for i := range dists {
		dists[i], err = distribution.NewDiagonal(means[i*d:(i+1)*d],
			stds[i*d:(i+1)*d])
		if err != nil {
			return nil, fmt.Errorf("distributions: state %d: %w", i, err)
		}
	}
	return dists, nil
}

// Mean returns the mean action of the policy in the state obs. The
// policy must have a batch size of 1.
func (g *GaussianMLP) Mean(obs mat.Vector) (*mat.VecDense, error) {
	if size := g.BatchSize(); size != 1 {
		return nil, fmt.Errorf("mean: policy must have batch size 1 "+
			"\n\twant(1) \n\thave(%v)", size)
	}
	means, _, err := g.Forward(rawVec(obs))
	if err != nil {
		return nil, fmt.Errorf("mean: %v", err)
	}
	return mat.NewVecDense(g.actionDims, means), nil
}

// CloneWithBatch returns a copy of the policy on a new graph with a new
// batch size
func (g *GaussianMLP) CloneWithBatch(batch int) (*GaussianMLP, error) {
	net, err := g.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}
	return newGaussian(net, g.bound)
}

// Close releases the resources of the policy's VM
func (g *GaussianMLP) Close() error {
	if g.vm == nil {
		return nil
	}
	return g.vm.Close()
}
