package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/samuelfneumann/gocontrol/environment"
)

// Type represents a type of an agent, for example DDPG or MPO
type Type string

const (
	DDPG Type = "DDPG"
	MPO  Type = "MPO"
)

// Config represents a configuration for creating an agent
type Config interface {
	// Create creates the agent that the config describes
	Create(env environment.Environment) (Trainer, error)

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error

	// TrainOptions returns the default options of Train for agents
	// created with the Config
	TrainOptions() TrainOptions

	Type() Type
}

// Registered types with the package. Once a Type has been registered
// with this map, a TypedConfig with that type can be deserialized.
//
// No Type's are registered wtih this package upon initialization.
// Each separate package is in charge of registering its Type with
// the package separately to avoid circular imports.
var registeredTypes = make(map[Type]func() Config)

// Register registers an agent's Type with a function returning its
// default Config, so that upon deserialization of a TypedConfig,
// configs of type agentType are deserialized into the concrete type of
// the default Config. Fields missing from the serialized config keep
// their default values.
func Register(agentType Type, defaults func() Config) {
	registeredTypes[agentType] = defaults
}

// Registered returns whether agentType has been registered
func Registered(agentType Type) bool {
	_, ok := registeredTypes[agentType]
	return ok
}

// TypedConfig implements functionality for typing a Config. In this
// way, a Config can explicitly have its type stored so that when
// deserializing the Config, we can deserialize it into its concrete
// type without knowing beforehand or declaring beforehand a variable
// of its concrete type.
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig types the argument Config and returns it as a
// TypedConfig which explicitly holds its Type.
func NewTypedConfig(c Config) TypedConfig {
	return TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config")
	if err != nil {
		return fmt.Errorf("unmarshaljson: %v", err)
	}

	t.Type = typeName
	t.Config = config
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

	name, ok := lookup(m, typeJsonField).(string)
	if !ok {
		return nil, "", fmt.Errorf("missing %v field", typeJsonField)
	}
	var typeName Type
	var defaults func() Config
	for t, d := range registeredTypes {
		if strings.EqualFold(string(t), name) {
			typeName, defaults = t, d
		}
	}
	if defaults == nil {
		return nil, "", fmt.Errorf("unregistered agent type %v", name)
	}

	// Decode into a pointer to a copy of the default config
	def := defaults()
	value := reflect.New(reflect.TypeOf(def))
	value.Elem().Set(reflect.ValueOf(def))

	if v := lookup(m, valueJsonField); v != nil {
		valueBytes, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		if err = json.Unmarshal(valueBytes, value.Interface()); err != nil {
			return nil, "", err
		}
	}

	return value.Elem().Interface().(Config), typeName, nil
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
