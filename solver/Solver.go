// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON serialized into configuraiton files, and so
// that the internal state of stateful solvers can be checkpointed.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

var registered = map[string]reflect.Type{
	string(Vanilla): reflect.TypeOf(VanillaConfig{}),
	string(Adam):    reflect.TypeOf(AdamConfig{}),
}

// Solver wraps Gorgonia Solvers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newSolver: %v", err)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Clone returns a new Solver with the same configuration but fresh
// internal state
func (s *Solver) Clone() *Solver {
	return &Solver{Solver: s.Config.Create(), Type: s.Type, Config: s.Config}
}

// State returns a copy of the internal state of the solver. Solvers
// with no internal state return the zero State.
func (s *Solver) State() State {
	if st, ok := s.Solver.(stateful); ok {
		return st.State()
	}
	return State{}
}

// SetState restores the internal state of the solver
func (s *Solver) SetState(state State) error {
	st, ok := s.Solver.(stateful)
	if !ok {
		if state.Steps != 0 {
			return fmt.Errorf("setstate: %v solver has no state", s.Type)
		}
		return nil
	}
	return st.SetState(state)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config")
	if err != nil {
		return fmt.Errorf("unmarshaljson: %v", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("unmarshaljson: %v", err)
	}

	s.Type = typeName
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned. Field
// names are matched case insensitively.
func unmarshalConfig(data []byte, typeJsonField,
	valueJsonField string) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := lookup(m, typeJsonField).(string)
	if !ok {
		return nil, "", fmt.Errorf("missing %v field", typeJsonField)
	}
	var ty reflect.Type
	for name, t := range registered {
		if strings.EqualFold(name, typeName) {
			ty, typeName = t, name
		}
	}
	if ty == nil {
		return nil, "", fmt.Errorf("unknown solver type %v", typeName)
	}
	value := reflect.New(ty).Interface()

	valueBytes, err := json.Marshal(lookup(m, valueJsonField))
	if err != nil {
		return nil, "", err
	}
	if err = json.Unmarshal(valueBytes, value); err != nil {
		return nil, "", err
	}

	return reflect.ValueOf(value).Elem().Interface().(Config),
		Type(typeName), nil
}

func lookup(m map[string]interface{}, key string) interface{} {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool

	Validate() error
}

// State is the internal state of a solver, used for checkpointing
type State struct {
	Steps  int
	First  [][]float64
	Second [][]float64
}

type stateful interface {
	State() State
	SetState(State) error
}
