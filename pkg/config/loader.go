package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// coordinatorYAML is the expected configuration file name inside configDir.
const coordinatorYAML = "coordinator.yaml"

// coordinatorYAMLConfig represents the complete coordinator.yaml file structure.
type coordinatorYAMLConfig struct {
	Coordination *CoordinationConfig `yaml:"coordination"`
	Conflict     *ConflictConfig     `yaml:"conflict"`
	Persistence  *PersistenceConfig  `yaml:"persistence"`
	Transport    *TransportConfig    `yaml:"transport"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load coordinator.yaml from configDir (missing file = all defaults)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined values over built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"persistence_backend", cfg.Persistence.Backend,
		"listen_addr", cfg.Transport.ListenAddr,
		"max_concurrent_agents", cfg.Coordination.MaxConcurrentAgents)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	userCfg, err := loadCoordinatorYAML(configDir)
	if err != nil {
		return nil, NewLoadError(coordinatorYAML, err)
	}

	cfg := &Config{
		configDir:    configDir,
		Coordination: DefaultCoordinationConfig(),
		Conflict:     DefaultConflictConfig(),
		Persistence:  DefaultPersistenceConfig(),
		Transport:    DefaultTransportConfig(),
	}

	// Merge user-provided sections into defaults (non-zero values override).
	if userCfg.Coordination != nil {
		if err := mergo.Merge(cfg.Coordination, userCfg.Coordination, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge coordination config: %w", err)
		}
	}
	if userCfg.Conflict != nil {
		if err := mergo.Merge(cfg.Conflict, userCfg.Conflict, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge conflict config: %w", err)
		}
	}
	if userCfg.Persistence != nil {
		if err := mergo.Merge(cfg.Persistence, userCfg.Persistence, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge persistence config: %w", err)
		}
	}
	if userCfg.Transport != nil {
		if err := mergo.Merge(cfg.Transport, userCfg.Transport, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge transport config: %w", err)
		}
	}

	return cfg, nil
}

// loadCoordinatorYAML reads and parses coordinator.yaml with environment
// variable expansion. A missing file is not an error — every section then
// runs on built-in defaults.
func loadCoordinatorYAML(configDir string) (*coordinatorYAMLConfig, error) {
	path := filepath.Join(configDir, coordinatorYAML)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("No configuration file found, using built-in defaults", "path", path)
		return &coordinatorYAMLConfig{}, nil
	}
	if err != nil {
		return nil, err
	}

	expanded := ExpandEnv(data)

	var cfg coordinatorYAMLConfig
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}
