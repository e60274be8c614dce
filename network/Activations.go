package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

type activationType string

const (
	relu     activationType = "relu"
	identity activationType = "identity"
	tanh     activationType = "tanh"
	nil_     activationType = "nil"
)

// Activation represents an activation function type
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

// Fwd performs the forward pass of an Activation
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// IsNil returns whether an activation is nil
func (a *Activation) IsNil() bool {
	return a.activationType == nil_
}

// MarshalText implements encoding.TextMarshaler
func (a *Activation) MarshalText() ([]byte, error) {
	return []byte(a.activationType), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Activation) UnmarshalText(text []byte) error {
	act, err := ActivationFromString(string(text))
	if err != nil {
		return fmt.Errorf("unmarshaltext: %v", err)
	}
	*a = *act
	return nil
}

// ActivationFromString returns the Activation named s
func ActivationFromString(s string) (*Activation, error) {
	switch activationType(s) {
	case relu:
		return ReLU(), nil
	case identity:
		return Identity(), nil
	case tanh:
		return TanH(), nil
	case nil_, "":
		return Nil(), nil
	default:
		return nil, fmt.Errorf("illegal Activation type %q", s)
	}
}

// Nil returns a nil *Activation
func Nil() *Activation {
	return &Activation{
		activationType: nil_,
		f:              nil,
	}
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f:              G.Rectify,
	}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{
		activationType: tanh,
		f:              G.Tanh,
	}
}

// Repeat returns n copies of the Activation a
func Repeat(a func() *Activation, n int) []*Activation {
	acts := make([]*Activation, n)
	for i := range acts {
		acts[i] = a()
	}
	return acts
}
