// Package config provides configuration loading and access for the
// simulation. Physics constants embed in the binary as defaults and can
// be overlaid by an optional user YAML file, the same layering pattern
// the CLI uses for the map file: an explicit path beats the built-in
// default.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds the simulation's tunable constants.
type Config struct {
	Physics   PhysicsConfig   `yaml:"physics"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Step      StepConfig      `yaml:"step"`
}

// PhysicsConfig holds the integrator and force-law constants. The
// reference implementation also has a `density` constant, but only to
// derive a world size when no map is supplied; rankswarm always runs
// against an explicit map file, so that field has no live use here and
// is deliberately not carried over.
type PhysicsConfig struct {
	DT            float64 `yaml:"dt"`
	Cutoff        float64 `yaml:"cutoff"`
	MinR          float64 `yaml:"min_r"`
	Mass          float64 `yaml:"mass"`
	VelocityClamp float64 `yaml:"velocity_clamp"`
	Precision     int     `yaml:"precision"`
}

// ExchangeConfig holds the ghost-zone publication padding.
type ExchangeConfig struct {
	GhostPad float64 `yaml:"ghost_pad"`
}

// BootstrapConfig holds rejection-sampling limits for initial placement.
type BootstrapConfig struct {
	RetryCap int `yaml:"retry_cap"`
}

// StepConfig holds the default step-loop bound.
type StepConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// Load loads configuration from a YAML file, merging it over the
// embedded defaults. If path is empty, only the embedded defaults are
// used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// WriteYAML saves the configuration to path, for reproducing a run.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
