// Package experiment implements functionality for configuring and
// running training experiments
package experiment

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/samuelfneumann/gocontrol/agent"
	"github.com/samuelfneumann/gocontrol/environment/envconfig"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents a configuration of an experiment: the environment
// to train in and the agent to train. The agent configuration is typed
// so that it can be decoded into the Config of any registered agent.
type Config struct {
	Environment envconfig.Config  `json:"environment" yaml:"environment"`
	Agent       agent.TypedConfig `json:"agent" yaml:"agent"`

	// Seed seeds the starting states of the environment. Agents are
	// seeded by their own configurations.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// outerConfig is a Config with the agent configuration left undecoded
// until its type is known
type outerConfig struct {
	Environment envconfig.Config       `mapstructure:"environment"`
	Agent       map[string]interface{} `mapstructure:"agent"`
	Seed        uint64                 `mapstructure:"seed"`
}

// FromFile reads a Config from a YAML or JSON file, chosen by the
// extension of path
func FromFile(path string) (Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		vp.SetConfigType("json")
	default:
		vp.SetConfigType("yaml")
	}

	if err := vp.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("fromfile: could not read config: %v", err)
	}
	c, err := FromViper(vp)
	if err != nil {
		return Config{}, fmt.Errorf("fromfile: %v", err)
	}
	return c, nil
}

// FromViper decodes the Config held by vp
func FromViper(vp *viper.Viper) (Config, error) {
	outer := outerConfig{}
	if err := vp.Unmarshal(&outer); err != nil {
		return Config{}, fmt.Errorf("fromviper: could not decode config: %v",
			err)
	}
	if outer.Agent == nil {
		return Config{}, fmt.Errorf("fromviper: missing agent config")
	}

	// Agents are registered with JSON decoders
	spec, err := json.Marshal(outer.Agent)
	if err != nil {
		return Config{}, fmt.Errorf("fromviper: %v", err)
	}
	var typed agent.TypedConfig
	if err := json.Unmarshal(spec, &typed); err != nil {
		return Config{}, fmt.Errorf("fromviper: could not decode agent "+
			"config: %v", err)
	}

	c := Config{
		Environment: outer.Environment,
		Agent:       typed,
		Seed:        outer.Seed,
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("fromviper: %v", err)
	}
	return c, nil
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return fmt.Errorf("validate: environment: %v", err)
	}
	if c.Agent.Config == nil {
		return fmt.Errorf("validate: missing agent config")
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("validate: agent: %v", err)
	}
	return nil
}

// WriteYAML writes the resolved Config to w as YAML
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("writeyaml: %v", err)
	}
	return enc.Close()
}
