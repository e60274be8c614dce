package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// treeMLP is an MLP with a shared root network whose output is fed into
// a number of leaf networks. Each leaf network predicts one output head.
//
// The root network has no final linear layer, its last hidden layer is
// the input to each leaf. Each leaf has a final linear layer producing
// the leaf's outputs.
type treeMLP struct {
	g         *G.ExprGraph
	name      string
	root      *multiHeadMLP
	leaves    []*multiHeadMLP
	numInputs int
	batchSize int

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewTreeMLP returns a new tree MLP. The root network is described by
// rootHiddenSizes, rootBiases, and rootActivations which have the same
// semantics as for NewMultiHeadMLP, except that no final layer is
// added to the root. For leaf i, leafHiddenSizes[i], leafBiases[i], and
// leafActivations[i] describe the hidden layers of the leaf, to which a
// final linear layer with outputs units is added.
//
// The number of output heads of the network is len(leafHiddenSizes),
// each having outputs units.
func NewTreeMLP(name string, features, batch, outputs int,
	g *G.ExprGraph, rootHiddenSizes []int, rootBiases []bool,
	rootActivations []*Activation, leafHiddenSizes [][]int,
	leafBiases [][]bool, leafActivations [][]*Activation,
	init G.InitWFn) (NeuralNet, error) {
	if len(rootHiddenSizes) == 0 {
		return nil, fmt.Errorf("newtreemlp: root network must have at " +
			"least one hidden layer")
	}
	if len(leafHiddenSizes) == 0 {
		return nil, fmt.Errorf("newtreemlp: at least one leaf required")
	}
	if len(leafHiddenSizes) != len(leafBiases) ||
		len(leafHiddenSizes) != len(leafActivations) {
		return nil, fmt.Errorf("newtreemlp: leaf hidden sizes, biases, " +
			"and activations must have the same length")
	}
	if features <= 0 || batch <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newtreemlp: features (%v), batch (%v), and "+
			"outputs (%v) must be positive", features, batch, outputs)
	}

	input := newInput(g, name+"input", batch, features)
	rootOuts := rootHiddenSizes[len(rootHiddenSizes)-1]
	root, err := newMultiHeadMLPFromInput([]*G.Node{input}, rootOuts, g,
		rootHiddenSizes, rootBiases, init, rootActivations, name+"root",
		false)
	if err != nil {
		return nil, fmt.Errorf("newtreemlp: could not create root: %v", err)
	}

	leaves := make([]*multiHeadMLP, len(leafHiddenSizes))
	for i := range leafHiddenSizes {
		leaves[i], err = newMultiHeadMLPFromInput(root.Prediction(), outputs,
			g, leafHiddenSizes[i], leafBiases[i], init, leafActivations[i],
			fmt.Sprintf("%vleaf%d", name, i), true)
		if err != nil {
			return nil, fmt.Errorf("newtreemlp: could not create leaf %d: %v",
				i, err)
		}
	}

	return &treeMLP{
		g:         g,
		name:      name,
		root:      root,
		leaves:    leaves,
		numInputs: features,
		batchSize: batch,
	}, nil
}

// Graph returns the computational graph of the network
func (t *treeMLP) Graph() *G.ExprGraph {
	return t.g
}

// Clone clones the network
func (t *treeMLP) Clone() (NeuralNet, error) {
	return t.CloneWithBatch(t.batchSize)
}

// CloneWithBatch clones the network into a new graph with a new batch
// size
func (t *treeMLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("clonewithbatch: batch size must be positive")
	}
	graph := G.NewGraph()
	input := newInput(graph, t.name+"input", batchSize, t.numInputs)

	return t.cloneWithInputTo(-1, []*G.Node{input}, graph)
}

func (t *treeMLP) cloneWithInputTo(axis int, inputs []*G.Node,
	graph *G.ExprGraph) (NeuralNet, error) {
	root, err := t.root.cloneTo(axis, inputs, graph)
	if err != nil {
		return nil, fmt.Errorf("clonewithinputto: could not clone root: %v",
			err)
	}

	leaves := make([]*multiHeadMLP, len(t.leaves))
	for i := range t.leaves {
		leaves[i], err = t.leaves[i].cloneTo(-1, root.Prediction(), graph)
		if err != nil {
			return nil, fmt.Errorf("clonewithinputto: could not clone "+
				"leaf %d: %v", i, err)
		}
	}

	return &treeMLP{
		g:         graph,
		name:      t.name,
		root:      root,
		leaves:    leaves,
		numInputs: t.numInputs,
		batchSize: root.BatchSize(),
	}, nil
}

// BatchSize returns the batch size of inputs to the network
func (t *treeMLP) BatchSize() int {
	return t.batchSize
}

// Features returns the number of input features
func (t *treeMLP) Features() int {
	return t.numInputs
}

// Outputs returns the number of outputs of each head
func (t *treeMLP) Outputs() int {
	return t.leaves[0].Outputs()
}

// Input returns the input node of the network
func (t *treeMLP) Input() *G.Node {
	return t.root.Input()
}

// SetInput sets the value of the input node
func (t *treeMLP) SetInput(input []float64) error {
	return t.root.SetInput(input)
}

// Set sets the weights of the network to those of source
func (t *treeMLP) Set(source NeuralNet) error {
	return Set(t, source)
}

// Polyak sets the weights of the network to a Polyak average of its
// current weights and those of source
func (t *treeMLP) Polyak(source NeuralNet, tau float64) error {
	return Polyak(t, source, tau)
}

// Learnables returns the learnable nodes of the root followed by those
// of each leaf, in order
func (t *treeMLP) Learnables() G.Nodes {
	if t.learnables == nil {
		learnables := append(G.Nodes{}, t.root.Learnables()...)
		for _, leaf := range t.leaves {
			learnables = append(learnables, leaf.Learnables()...)
		}
		t.learnables = learnables
	}
	return t.learnables
}

// Model returns the learnables nodes with their gradients
func (t *treeMLP) Model() []G.ValueGrad {
	if t.model == nil {
		t.model = G.NodesToValueGrads(t.Learnables())
	}
	return t.model
}

// Output returns the value of each leaf's output
func (t *treeMLP) Output() []G.Value {
	out := make([]G.Value, len(t.leaves))
	for i, leaf := range t.leaves {
		out[i] = leaf.Output()[0]
	}
	return out
}

// Prediction returns the output node of each leaf
func (t *treeMLP) Prediction() []*G.Node {
	pred := make([]*G.Node, len(t.leaves))
	for i, leaf := range t.leaves {
		pred[i] = leaf.Prediction()[0]
	}
	return pred
}
