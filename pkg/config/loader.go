package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads an AuditConfig from a YAML file at path, expands environment
// variables, layers in defaults, and validates the result.
func Load(path string) (*AuditConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	expanded := ExpandEnv(raw)

	cfg := &AuditConfig{}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidYAML, err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidationFailed, err)
	}
	return cfg, nil
}
