// Package critic implements action value functions Q(s, a) for
// continuous action environments, along with the machinery to evaluate
// and train them.
package critic

import (
	"fmt"

	"github.com/samuelfneumann/gocontrol/network"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// New returns a new action value network on a new graph. The network
// takes as input the concatenation [s, a] of states with features
// features and actions with actionDims dimensions. Hidden layer i has
// hiddenSizes[i] units, a bias, and a ReLU activation.
func New(name string, features, actionDims, batch int, hiddenSizes []int,
	init G.InitWFn) (network.NeuralNet, error) {
	if features <= 0 || actionDims <= 0 {
		return nil, fmt.Errorf("new: features (%v) and action dimensions "+
			"(%v) must be positive", features, actionDims)
	}

	biases := make([]bool, len(hiddenSizes))
	for i := range biases {
		biases[i] = true
	}
	net, err := network.NewSingleHeadMLP(name, features+actionDims, batch,
		G.NewGraph(), hiddenSizes, biases, init,
		network.Repeat(network.ReLU, len(hiddenSizes)))
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return net, nil
}

// ConcatRows returns the row-wise concatenation of the row-major
// matrices a, with aCols columns, and b, with bCols columns
func ConcatRows(a []float64, aCols int, b []float64,
	bCols int) ([]float64, error) {
	if aCols <= 0 || bCols <= 0 {
		return nil, fmt.Errorf("concatrows: columns must be positive")
	}
	if len(a)%aCols != 0 || len(b)%bCols != 0 {
		return nil, fmt.Errorf("concatrows: data does not fill columns")
	}
	rows := len(a) / aCols
	if len(b)/bCols != rows {
		return nil, fmt.Errorf("concatrows: row mismatch\n\twant(%v)"+
			"\n\thave(%v)", rows, len(b)/bCols)
	}

	out := make([]float64, 0, len(a)+len(b))
	for i := 0; i < rows; i++ {
		out = append(out, a[i*aCols:(i+1)*aCols]...)
		out = append(out, b[i*bCols:(i+1)*bCols]...)
	}
	return out, nil
}

// Evaluator computes the action values of a batch of state-action
// pairs with a forward pass of an action value network
type Evaluator struct {
	net        network.NeuralNet
	vm         G.VM
	actionDims int
}

// NewEvaluator returns a new Evaluator of net, which takes as input
// actions with actionDims dimensions. No nodes should be added to the
// graph of net after the Evaluator is created.
func NewEvaluator(net network.NeuralNet, actionDims int) (*Evaluator,
	error) {
	if actionDims <= 0 || actionDims >= net.Features() {
		return nil, fmt.Errorf("newevaluator: invalid action dimensions %v "+
			"for network with %v features", actionDims, net.Features())
	}
	return &Evaluator{
		net:        net,
		vm:         G.NewTapeMachine(net.Graph()),
		actionDims: actionDims,
	}, nil
}

// Values returns Q(s, a) for each row-major state and action in states
// and actions
func (e *Evaluator) Values(states, actions []float64) ([]float64, error) {
	input, err := ConcatRows(states, e.net.Features()-e.actionDims,
		actions, e.actionDims)
	if err != nil {
		return nil, fmt.Errorf("values: %v", err)
	}
	if err := e.net.SetInput(input); err != nil {
		return nil, fmt.Errorf("values: could not set input: %v", err)
	}
	defer e.vm.Reset()
	if err := e.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("values: could not run vm: %v", err)
	}
	return append([]float64(nil), e.net.Output()[0].Data().([]float64)...),
		nil
}

// Network returns the network of the Evaluator
func (e *Evaluator) Network() network.NeuralNet {
	return e.net
}

// Close releases the resources of the Evaluator's VM
func (e *Evaluator) Close() error {
	return e.vm.Close()
}

// Trainer regresses an action value network towards targets with the
// mean squared error
type Trainer struct {
	net        network.NeuralNet
	actionDims int

	targets *G.Node
	loss    *G.Node
	lossVal G.Value

	vm     G.VM
	solver G.Solver
}

// NewTrainer returns a new Trainer of net, which is updated using
// solver. The network takes as input actions with actionDims
// dimensions.
func NewTrainer(net network.NeuralNet, actionDims int,
	solver G.Solver) (*Trainer, error) {
	if actionDims <= 0 || actionDims >= net.Features() {
		return nil, fmt.Errorf("newtrainer: invalid action dimensions %v "+
			"for network with %v features", actionDims, net.Features())
	}
	if net.Outputs() != 1 {
		return nil, fmt.Errorf("newtrainer: action value network must have "+
			"a single output, have(%v)", net.Outputs())
	}

	targets := G.NewMatrix(
		net.Graph(),
		tensor.Float64,
		G.WithShape(net.Prediction()[0].Shape()...),
		G.WithName("QUpdateTargets"),
		G.WithInit(G.Zeroes()),
	)
	loss := G.Must(G.Sub(net.Prediction()[0], targets))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))

	if _, err := G.Grad(loss, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newtrainer: could not compute gradient: %v",
			err)
	}

	t := &Trainer{
		net:        net,
		actionDims: actionDims,
		targets:    targets,
		loss:       loss,
		solver:     solver,
	}

	// The loss must be read before the graph is compiled into the VM,
	// otherwise the read is never executed
	G.Read(t.loss, &t.lossVal)
	t.vm = G.NewTapeMachine(net.Graph(), G.BindDualValues(net.Learnables()...))

	return t, nil
}

// Fit takes one solver step on the mean squared error between
// Q(s, a) and targets for each row-major state and action in states
// and actions. The loss before the step is returned.
func (t *Trainer) Fit(states, actions, targets []float64) (float64, error) {
	input, err := ConcatRows(states, t.net.Features()-t.actionDims,
		actions, t.actionDims)
	if err != nil {
		return 0, fmt.Errorf("fit: %v", err)
	}
	if err := t.net.SetInput(input); err != nil {
		return 0, fmt.Errorf("fit: could not set input: %v", err)
	}

	if len(targets) != t.targets.Shape().TotalSize() {
		return 0, fmt.Errorf("fit: invalid number of targets\n\twant(%v)"+
			"\n\thave(%v)", t.targets.Shape().TotalSize(), len(targets))
	}
	targetsTensor := tensor.New(
		tensor.WithShape(t.targets.Shape()...),
		tensor.WithBacking(targets),
	)
	if err := G.Let(t.targets, targetsTensor); err != nil {
		return 0, fmt.Errorf("fit: could not set targets: %v", err)
	}

	defer t.vm.Reset()
	if err := t.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("fit: could not run vm: %v", err)
	}
	if err := t.solver.Step(t.net.Model()); err != nil {
		return 0, fmt.Errorf("fit: could not step solver: %v", err)
	}

	return t.lossVal.Data().(float64), nil
}

// Network returns the network being trained
func (t *Trainer) Network() network.NeuralNet {
	return t.net
}

// Close releases the resources of the Trainer's VM
func (t *Trainer) Close() error {
	return t.vm.Close()
}
