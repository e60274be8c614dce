package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Layer is a single layer of a feed forward network
type Layer interface {
	fwd(x *G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer
	Weights() *G.Node
	Bias() *G.Node
	Activation() *Activation
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x = G.Must(G.Mul(x, f.weights))
	if f.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.bias, nil, []byte{0}))
	}
	if f.act == nil || f.act.IsNil() {
		return x, nil
	}
	return f.act.fwd(x)
}

// CloneTo clones an fcLayer to a new computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newBias *G.Node
	if f.bias != nil {
		newBias = f.bias.CloneTo(g)
	}

	return &fcLayer{
		weights: f.weights.CloneTo(g),
		bias:    newBias,
		act:     f.act,
	}
}

// Activation returns the activation of the layer
func (f *fcLayer) Activation() *Activation {
	return f.act
}

// Bias returns the bias node of the layer or nil if it has no bias
func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

// Weights returns the weight node of the layer
func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// addfcLayers adds len(hiddenSizes) fully connected layers to g. Layer
// i has hiddenSizes[i] units, a bias if biases[i], and activation
// activations[i]. Weight nodes are named after name so that multiple
// networks can share one graph.
func addfcLayers(g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, features int,
	name string) []Layer {
	layers := make([]Layer, 0, len(hiddenSizes))

	in := features
	for i, out := range hiddenSizes {
		weights := G.NewMatrix(
			g,
			G.Float64,
			G.WithShape(in, out),
			G.WithName(fmt.Sprintf("%vW%d", name, i)),
			G.WithInit(init),
		)

		var bias *G.Node
		if biases[i] {
			bias = G.NewMatrix(
				g,
				G.Float64,
				G.WithShape(1, out),
				G.WithName(fmt.Sprintf("%vB%d", name, i)),
				G.WithInit(G.Zeroes()),
			)
		}

		layers = append(layers, &fcLayer{
			weights: weights,
			bias:    bias,
			act:     activations[i],
		})
		in = out
	}
	return layers
}
