package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Set sets the weights of dst to be equal to the weights of src. The
// values are copied, so the two networks do not share storage.
func Set(dst, src NeuralNet) error {
	srcNodes := src.Learnables()
	dstNodes := dst.Learnables()

	if err := compatible(dstNodes, srcNodes); err != nil {
		return fmt.Errorf("set: %v", err)
	}

	for i := range dstNodes {
		weights, err := G.CloneValue(srcNodes[i].Value())
		if err != nil {
			return fmt.Errorf("set: could not copy weights: %v", err)
		}
		if err := G.Let(dstNodes[i], weights); err != nil {
			return fmt.Errorf("set: could not set weights: %v", err)
		}
	}

	return nil
}

// Polyak sets the weights of dst to a Polyak average of its own weights
// and those of src:
//
//	dst ← tau * src + (1 - tau) * dst
//
// tau must be in [0, 1]. With tau = 1 this is equivalent to Set.
func Polyak(dst, src NeuralNet, tau float64) error {
	if tau < 0 || tau > 1 {
		return fmt.Errorf("polyak: tau must be in [0, 1] but got %v", tau)
	}
	srcNodes := src.Learnables()
	dstNodes := dst.Learnables()

	if err := compatible(dstNodes, srcNodes); err != nil {
		return fmt.Errorf("polyak: %v", err)
	}

	for i := range dstNodes {
		srcWeights, ok := srcNodes[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("polyak: source weights %v are not dense",
				srcNodes[i].Name())
		}
		weights, ok := dstNodes[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("polyak: destination weights %v are not "+
				"dense", dstNodes[i].Name())
		}

		// Both scalings return new tensors, leaving the weights of
		// either network untouched until Let
		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return fmt.Errorf("polyak: could not scale destination "+
				"weights: %v", err)
		}
		srcWeights, err = srcWeights.MulScalar(tau, true)
		if err != nil {
			return fmt.Errorf("polyak: could not scale source weights: %v",
				err)
		}
		newWeights, err := weights.Add(srcWeights)
		if err != nil {
			return fmt.Errorf("polyak: could not add weights: %v", err)
		}

		if err := G.Let(dstNodes[i], newWeights); err != nil {
			return fmt.Errorf("polyak: could not set weights: %v", err)
		}
	}
	return nil
}

// compatible returns an error if the two sets of learnables differ in
// length or in the shape of any node
func compatible(dst, src G.Nodes) error {
	if len(dst) != len(src) {
		return fmt.Errorf("networks have different numbers of learnables "+
			"\n\twant(%v)\n\thave(%v)", len(dst), len(src))
	}
	for i := range dst {
		if !dst[i].Shape().Eq(src[i].Shape()) {
			return &ShapeMismatchError{
				Index: i,
				Want:  dst[i].Shape().Clone(),
				Have:  src[i].Shape().Clone(),
			}
		}
	}
	return nil
}
