package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/robobrain/internal/core"
)

// Validate checks a Config and reports every problem at once: version,
// brain and telemetry settings, unknown module IDs, and conflicting
// module choices.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Version {
	case "":
		errs = append(errs, errors.New("config: version field is required"))
	case CurrentVersion:
	default:
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: %q)", cfg.Version, CurrentVersion))
	}

	if err := cfg.Brain.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}
	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	// Memory backends all publish the same service.
	if mem := ModulesIn(cfg, "memory"); len(mem) > 1 {
		errs = append(errs, fmt.Errorf("config: only one memory module may be configured, got %v", mem))
	}

	return errors.Join(errs...)
}
