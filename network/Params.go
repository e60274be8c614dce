package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ShapeMismatchError is returned when the parameters of a network do
// not match the shape of the parameters being loaded into it
type ShapeMismatchError struct {
	Index int
	Want  []int
	Have  []int
}

func (s *ShapeMismatchError) Error() string {
	return fmt.Sprintf("parameter %d has incompatible shape\n\twant(%v)"+
		"\n\thave(%v)", s.Index, s.Want, s.Have)
}

// Param is a serializable copy of a single learnable node
type Param struct {
	Shape []int
	Data  []float64
}

// Params returns copies of the learnable parameters of net, in the
// order given by net.Learnables()
func Params(net NeuralNet) ([]Param, error) {
	learnables := net.Learnables()
	params := make([]Param, len(learnables))

	for i, node := range learnables {
		data, ok := node.Value().Data().([]float64)
		if !ok {
			return nil, fmt.Errorf("params: node %v does not hold float64 "+
				"data", node.Name())
		}
		params[i] = Param{
			Shape: append([]int(nil), node.Shape()...),
			Data:  append([]float64(nil), data...),
		}
	}
	return params, nil
}

// CheckParams returns an error if params cannot be loaded into net
// because their number or shapes differ from the learnables of net
func CheckParams(net NeuralNet, params []Param) error {
	learnables := net.Learnables()
	if len(learnables) != len(params) {
		return fmt.Errorf("checkparams: invalid number of parameters"+
			"\n\twant(%v)\n\thave(%v)", len(learnables), len(params))
	}

	for i, node := range learnables {
		shape := tensor.Shape(params[i].Shape)
		if !node.Shape().Eq(shape) ||
			shape.TotalSize() != len(params[i].Data) {
			return &ShapeMismatchError{
				Index: i,
				Want:  node.Shape().Clone(),
				Have:  append([]int(nil), params[i].Shape...),
			}
		}
	}
	return nil
}

// SetParams loads params into the learnable nodes of net. The shapes of
// all parameters are checked before any are loaded, so that on error
// net is unchanged.
func SetParams(net NeuralNet, params []Param) error {
	if err := CheckParams(net, params); err != nil {
		return err
	}

	for i, node := range net.Learnables() {
		t := tensor.New(
			tensor.WithShape(params[i].Shape...),
			tensor.WithBacking(append([]float64(nil), params[i].Data...)),
		)
		if err := G.Let(node, t); err != nil {
			return fmt.Errorf("setparams: could not set parameter %d: %v",
				i, err)
		}
	}
	return nil
}
