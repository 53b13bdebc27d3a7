package config

import (
	"fmt"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// Validator validates configuration comprehensively with clear error messages
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *Validator) ValidateAll() error {
	if err := v.validateCoordination(); err != nil {
		return fmt.Errorf("coordination validation failed: %w", err)
	}
	if err := v.validateConflict(); err != nil {
		return fmt.Errorf("conflict validation failed: %w", err)
	}
	if err := v.validatePersistence(); err != nil {
		return fmt.Errorf("persistence validation failed: %w", err)
	}
	if err := v.validateTransport(); err != nil {
		return fmt.Errorf("transport validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateCoordination() error {
	c := v.cfg.Coordination
	if c == nil {
		return fmt.Errorf("coordination configuration is nil")
	}
	if c.MaxConcurrentAgents < 1 {
		return fmt.Errorf("max_concurrent_agents must be at least 1, got %d", c.MaxConcurrentAgents)
	}
	if c.MaxBlockTime <= 0 {
		return fmt.Errorf("max_block_time must be positive, got %v", c.MaxBlockTime)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.MessageHistoryCapacity < 1000 {
		return fmt.Errorf("message_history_capacity must be at least 1000, got %d", c.MessageHistoryCapacity)
	}
	if c.PerAgentQueueCapacity < 1 {
		return fmt.Errorf("per_agent_queue_capacity must be at least 1, got %d", c.PerAgentQueueCapacity)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %v", c.SessionTimeout)
	}
	return nil
}

var knownStrategies = map[models.ResolutionStrategy]bool{
	models.StrategyLatestCompatible: true,
	models.StrategyPinnedVersion:    true,
	models.StrategyManualResolution: true,
	models.StrategySmartSelection:   true,
	models.StrategyConservative:     true,
	models.StrategyAggressive:       true,
	models.StrategyHybrid:           true,
	models.StrategyHistoryTracking:  true,
	models.StrategyAutomatic:        true,
}

func (v *Validator) validateConflict() error {
	c := v.cfg.Conflict
	if c == nil {
		return fmt.Errorf("conflict configuration is nil")
	}
	if !knownStrategies[c.PrimaryStrategy] {
		return NewValidationError("conflict", "primary_strategy",
			fmt.Errorf("%w: unknown strategy %q", ErrInvalidValue, c.PrimaryStrategy))
	}
	for _, s := range c.FallbackStrategies {
		if !knownStrategies[s] {
			return NewValidationError("conflict", "fallback_strategies",
				fmt.Errorf("%w: unknown strategy %q", ErrInvalidValue, s))
		}
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.CompatibilityThreshold < 0 || c.CompatibilityThreshold > 1 {
		return fmt.Errorf("compatibility_threshold must be in [0,1], got %v", c.CompatibilityThreshold)
	}
	if c.ParallelResolution && c.MaxParallelThreads < 1 {
		return fmt.Errorf("max_parallel_threads must be at least 1 when parallel_resolution is enabled, got %d", c.MaxParallelThreads)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be at least 1, got %d", c.TimeoutSeconds)
	}
	return nil
}

func (v *Validator) validatePersistence() error {
	p := v.cfg.Persistence
	if p == nil {
		return fmt.Errorf("persistence configuration is nil")
	}
	switch p.Backend {
	case models.BackendMemory:
		// nothing to check
	case models.BackendFile:
		if p.Dir == "" {
			return NewValidationError("persistence", "dir",
				fmt.Errorf("%w: file backend requires a storage directory", ErrInvalidValue))
		}
	case models.BackendKV:
		if p.RedisAddr == "" {
			return NewValidationError("persistence", "redis_addr",
				fmt.Errorf("%w: kv backend requires a Redis address", ErrInvalidValue))
		}
	case models.BackendDB:
		if p.DBHost == "" || p.DBName == "" || p.DBUser == "" {
			return NewValidationError("persistence", "db_host",
				fmt.Errorf("%w: db backend requires db_host, db_name, and db_user", ErrInvalidValue))
		}
		if p.DBPort < 1 || p.DBPort > 65535 {
			return fmt.Errorf("db_port must be a valid port, got %d", p.DBPort)
		}
	default:
		return NewValidationError("persistence", "backend",
			fmt.Errorf("%w: unknown backend %q", ErrInvalidValue, p.Backend))
	}
	if p.Retention < 0 {
		return fmt.Errorf("retention must be non-negative, got %v", p.Retention)
	}
	if p.BackupCount < 0 {
		return fmt.Errorf("backup_count must be non-negative, got %d", p.BackupCount)
	}
	return nil
}

func (v *Validator) validateTransport() error {
	t := v.cfg.Transport
	if t == nil {
		return fmt.Errorf("transport configuration is nil")
	}
	if t.ListenAddr == "" {
		return NewValidationError("transport", "listen_addr",
			fmt.Errorf("%w: listen address is required", ErrInvalidValue))
	}
	if t.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", t.WriteTimeout)
	}
	return nil
}
