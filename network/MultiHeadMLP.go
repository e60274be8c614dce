package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// multiHeadMLP implements a multi-layered perceptron with multiple
// output nodes, one for each value that should be predicted.
type multiHeadMLP struct {
	g          *G.ExprGraph
	name       string
	layers     []Layer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// validateMLP ensures one bias and activation is given per layer
func validateMLP(hiddenSizes []int, biases []bool,
	activations []*Activation) error {
	if len(hiddenSizes) != len(activations) {
		msg := "invalid number of activations\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "invalid number of biases\n\twant(%d)\n\thave(%d)"
		return fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}
	for i, size := range hiddenSizes {
		if size <= 0 {
			return fmt.Errorf("layer %d must have a positive number of units",
				i)
		}
	}
	return nil
}

// newMultiHeadMLPFromInput returns a new multi-head output MLP that
// has a specific node as its input node. If multiple input nodes are
// given, they are first concatenated along the feature (column)
// dimension.
func newMultiHeadMLPFromInput(inputs []*G.Node, outputs int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, name string,
	addFinalLayer bool) (*multiHeadMLP, error) {
	if err := validateMLP(hiddenSizes, biases, activations); err != nil {
		return nil, fmt.Errorf("newmultiheadmlpfrominput: %v", err)
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		input = G.Must(G.Concat(1, inputs...))
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("newmultiheadmlpfrominput: input must be a " +
			"matrix")
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	// Copy so that appending the final layer never writes to the
	// caller's slices
	sizes := append([]int(nil), hiddenSizes...)
	bs := append([]bool(nil), biases...)
	acts := append([]*Activation(nil), activations...)

	// If required, add a final linear layer with no activation to ensure
	// outputs heads are predicted by the network
	if addFinalLayer {
		sizes = append(sizes, outputs)
		bs = append(bs, true)
		acts = append(acts, Identity())
	} else if len(sizes) == 0 || outputs != sizes[len(sizes)-1] {
		msg := "newmultiheadmlpfrominput: claimed output is of size %v " +
			"but final network layer is of size %v"
		return nil, fmt.Errorf(msg, outputs, sizes)
	}

	layers := addfcLayers(g, sizes, bs, acts, init, features, name)

	// Create the network and run the forward pass on the input node
	network := &multiHeadMLP{
		g:          g,
		name:       name,
		layers:     layers,
		input:      input,
		numOutputs: outputs,
		numInputs:  features,
		batchSize:  batch,
	}
	if _, err := network.fwd(input); err != nil {
		msg := "newmultiheadmlpfrominput: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return network, nil
}

// NewMultiHeadMLP creates and returns a new multi-layered perceptron
// that has multiple output nodes, The number of outputs nodes is equal
// to outputs. The graph parameter g is populated with the MLP and all
// nodes of the MLP are named with name as a prefix.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// layer is always added such that given any input, the output will
// be outputs. The final layer also contains a bias unit, and bias units
// for each additional hidden layer is specified by biases. The final
// layer will contain no activations, and the activations of additional
// hidden layers is specified by activations. The parameter init
// determines the weight initialization scheme.
//
// The function works such that for index i, hiddenSizes[i] is the
// number of nodes in hidden layer i; biases[i] is true if the
// hidden layer will contain a bias unit and false otherwise; and
// activations[i] is the activation function for hidden layer i.
func NewMultiHeadMLP(name string, features, batch, outputs int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	if features <= 0 || batch <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newmultiheadmlp: features (%v), batch (%v),"+
			" and outputs (%v) must be positive", features, batch, outputs)
	}

	input := newInput(g, name+"input", batch, features)

	return newMultiHeadMLPFromInput([]*G.Node{input}, outputs, g,
		hiddenSizes, biases, init, activations, name, true)
}

// NewSingleHeadMLP returns an MLP with a single output node. This
// function is a convenience function for calling NewMultiHeadMLP with
// an output size of 1.
func NewSingleHeadMLP(name string, features, batch int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation) (NeuralNet, error) {
	return NewMultiHeadMLP(name, features, batch, 1, g, hiddenSizes,
		biases, init, activations)
}

// Graph returns the computational graph of the multiHeadMLP.
func (e *multiHeadMLP) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones a multiHeadMLP
func (e *multiHeadMLP) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// cloneWithInputTo clones a NeuralNet to a specific computational graph
// with a specified input node. If multiple input nodes are given, then
// they are first concatenated along the specified axis.
func (e *multiHeadMLP) cloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	return e.cloneTo(axis, inputs, graph)
}

func (e *multiHeadMLP) cloneTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (*multiHeadMLP, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("clonewithinputto: no inputs")
	}
	for _, input := range inputs {
		if input.Graph() != graph {
			return nil, fmt.Errorf("clonewithinputto: not all inputs " +
				"have the same graph")
		}
	}

	// Concatenate inputs if necessary
	var input *G.Node
	if len(inputs) > 1 {
		input = G.Must(G.Concat(axis, inputs...))
	} else {
		input = inputs[0]
	}

	if !input.IsMatrix() {
		return nil, fmt.Errorf("clonewithinputto: input must be a matrix node")
	}
	if input.Shape()[1] != e.numInputs {
		return nil, fmt.Errorf("clonewithinputto: input has %v features, "+
			"want %v", input.Shape()[1], e.numInputs)
	}

	// Copy fully connected layers
	l := make([]Layer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	network := &multiHeadMLP{
		g:          graph,
		name:       e.name,
		layers:     l,
		input:      input,
		numOutputs: e.numOutputs,
		numInputs:  e.numInputs,
		batchSize:  input.Shape()[0],
	}
	if _, err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithinputto: could not clone: %v", err)
	}

	return network, nil
}

// CloneWithBatch clones a multiHeadMLP with a new input batch
// size.
func (e *multiHeadMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("clonewithbatch: batch size must be positive")
	}
	graph := G.NewGraph()
	input := newInput(graph, e.name+"input", batchSize, e.numInputs)

	return e.cloneWithInputTo(-1, []*G.Node{input}, graph)
}

// BatchSize returns the batch size of inputs to the network
func (e *multiHeadMLP) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *multiHeadMLP) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *multiHeadMLP) Outputs() int {
	return e.numOutputs
}

// Input returns the input node of the network
func (e *multiHeadMLP) Input() *G.Node {
	return e.input
}

// SetInput sets the value of the input node before running the forward
// pass.
func (e *multiHeadMLP) SetInput(input []float64) error {
	return setInput(e.input, input)
}

// setInput binds the row-major data in input to the node n
func setInput(n *G.Node, input []float64) error {
	if n.Op() != nil {
		return fmt.Errorf("setinput: input is not an input node; it is " +
			"computed by the graph")
	}
	if len(input) != n.Shape().TotalSize() {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", n.Shape().TotalSize(), len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(n.Shape()...),
	)
	return G.Let(n, inputTensor)
}

// Set sets the weights of a multiHeadMLP to be equal to the
// weights of another NeuralNet
func (dest *multiHeadMLP) Set(source NeuralNet) error {
	return Set(dest, source)
}

// Polyak sets the weights of a multiHeadMLP to be a polyak
// average between its existing weights and the weights of another
// NeuralNet
func (dest *multiHeadMLP) Polyak(source NeuralNet, tau float64) error {
	return Polyak(dest, source, tau)
}

// Learnables returns the learnable nodes in a multiHeadMLP
func (m *multiHeadMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		m.learnables = layerLearnables(m.layers)
	}
	return m.learnables
}

// Model returns the learnables nodes with their gradients.
func (m *multiHeadMLP) Model() []G.ValueGrad {
	if m.model == nil {
		m.model = G.NodesToValueGrads(m.Learnables())
	}
	return m.model
}

// fwd performs the forward pass of the multiHeadMLP on the input
// node
func (e *multiHeadMLP) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Output returns the output of the multiHeadMLP.
func (e *multiHeadMLP) Output() []G.Value {
	return []G.Value{e.predVal}
}

// Prediction returns the node of the computational graph the stores
// the output of the multiHeadMLP
func (e *multiHeadMLP) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}

// layerLearnables returns the weights and biases of layers in order
func layerLearnables(layers []Layer) G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(layers))

	for i := range layers {
		learnables = append(learnables, layers[i].Weights())
		if bias := layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}
