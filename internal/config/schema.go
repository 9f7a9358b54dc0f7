// Package config loads the robobrain YAML configuration: environment
// expansion, defaults for the brain section, and validation of every
// section at once.
package config

import (
	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only supported config format version.
const CurrentVersion = "1"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version.
	Version string `yaml:"version"`

	// Brain tunes the conversation pipeline. Omitted keys keep
	// brain.DefaultConfig values.
	Brain brain.Config `yaml:"brain"`

	Telemetry telemetry.Config `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration. Only listed
	// modules are loaded (e.g. "gateway.http", "provider.ollama").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// Default returns a configuration with every section at its default and
// no modules.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Brain:   brain.DefaultConfig(),
	}
}
