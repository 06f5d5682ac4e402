package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Validator interface {
	Validate() error
}

// Load reads a YAML file into target after expanding ${VAR} references, then
// validates target when it implements Validator.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", filename, err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), target); err != nil {
		return fmt.Errorf("parse config file %s: %w", filename, err)
	}

	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// LoadFile loads a Config from filename over the defaults.
func LoadFile(filename string) (*Config, error) {
	cfg := NewDefault()
	if err := Load(filename, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
