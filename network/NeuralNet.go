// Package network implements feed forward neural networks built on
// Gorgonia computational graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network whose forward pass is part of a
// Gorgonia computational graph. Running the graph (with a VM) fills
// the values returned by Output.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int

	// Input returns the node that the network takes as input
	Input() *G.Node
	SetInput([]float64) error

	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the values of each output head, one per node
	// returned by Prediction
	Output() []G.Value
	Prediction() []*G.Node
}

// inputCloner is a NeuralNet that can clone itself onto a graph with
// its input set to an arbitrary node of that graph
type inputCloner interface {
	cloneWithInputTo(axis int, inputs []*G.Node,
		graph *G.ExprGraph) (NeuralNet, error)
}

// CloneWithInput clones net into graph such that its input is the
// concatenation of inputs along axis 1. The clone's weights are copies
// of net's and are not tied to net. This is how a network can be
// composed with the output of another network in the same graph.
func CloneWithInput(net NeuralNet, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	cloner, ok := net.(inputCloner)
	if !ok {
		return nil, fmt.Errorf("clonewithinput: cannot clone %T with "+
			"input", net)
	}
	return cloner.cloneWithInputTo(1, inputs, graph)
}

// newInput returns a new zero-valued batch x features input matrix
func newInput(g *G.ExprGraph, name string, batch, features int) *G.Node {
	return G.NewMatrix(g, G.Float64, G.WithShape(batch, features),
		G.WithName(name), G.WithInit(G.Zeroes()))
}
