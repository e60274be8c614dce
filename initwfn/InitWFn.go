// Package initwfn implements seeded weight initialization functions
// for Gorgonia networks that can be JSON serialized into configuration
// files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	HeU     Type = "HeU"
	HeN     Type = "HeN"
	Uniform Type = "Uniform"
	Zeroes  Type = "Zeroes"
)

var registered = map[string]reflect.Type{
	string(GlorotU): reflect.TypeOf(GlorotUConfig{}),
	string(GlorotN): reflect.TypeOf(GlorotNConfig{}),
	string(HeU):     reflect.TypeOf(HeUConfig{}),
	string(HeN):     reflect.TypeOf(HeNConfig{}),
	string(Uniform): reflect.TypeOf(UniformConfig{}),
	string(Zeroes):  reflect.TypeOf(ZeroesConfig{}),
}

// InitWFn wraps a weight initializer Config so that it can be JSON
// marshalled and unmarshalled.
type InitWFn struct {
	Type
	Config
}

// New returns a new InitWFn for the Config
func New(c Config) *InitWFn {
	return &InitWFn{Type: c.Type(), Config: c}
}

// InitWFn returns the Gorgonia InitWFn described by the Config, which
// draws its random numbers from a source seeded with seed.
func (w *InitWFn) InitWFn(seed uint64) G.InitWFn {
	return w.Config.Create(rand.NewSource(seed))
}

// String implements the fmt.Stringer interface
func (w *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", w.Type, w.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (w *InitWFn) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config")
	if err != nil {
		return fmt.Errorf("unmarshaljson: %v", err)
	}

	w.Type = typeName
	w.Config = config
	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned. Field
// names are matched case insensitively, since configuration loaders
// commonly lowercase keys.
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
	ty, found := registered[typeName]
	if !found {
		return nil, "", fmt.Errorf("unknown InitWFn type %v", typeName)
	}
	value := reflect.New(ty).Interface()

	valueBytes, err := json.Marshal(lookup(m, valueJsonField))
	if err != nil {
		return nil, "", err
	}
	if err = json.Unmarshal(valueBytes, value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
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

// Config implements a weight initializer configuration and can be used
// to create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes,
	// drawing random numbers from src
	Create(src rand.Source) G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type
}
