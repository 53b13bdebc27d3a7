// Package config loads, merges, and validates the coordinator's YAML
// configuration: coordination tunables, conflict-resolution policy,
// persistence backend selection, and the transport bind settings.
package config

import (
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	configDir string

	Coordination *CoordinationConfig
	Conflict     *ConflictConfig
	Persistence  *PersistenceConfig
	Transport    *TransportConfig
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// CoordinationConfig contains the coordination engine's tunables.
type CoordinationConfig struct {
	// MaxConcurrentAgents bounds the total number of registered agents.
	MaxConcurrentAgents int `yaml:"max_concurrent_agents"`

	// MaxBlockTime is how long an agent may stay Blocked before the
	// registry promotes it back to Idle.
	MaxBlockTime time.Duration `yaml:"max_block_time"`

	// HeartbeatInterval is the expected cadence of agent heartbeats; the
	// background reapers tick at this interval.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// MessageHistoryCapacity is the size of the router's bounded history
	// ring (drop-oldest on append).
	MessageHistoryCapacity int `yaml:"message_history_capacity"`

	// PerAgentQueueCapacity is the per-subscription channel capacity;
	// deliveries into a full queue fail fast.
	PerAgentQueueCapacity int `yaml:"per_agent_queue_capacity"`

	// SessionTimeout is how long a session may go without activity before
	// it transitions to Failed.
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// DefaultCoordinationConfig returns the built-in coordination defaults.
func DefaultCoordinationConfig() *CoordinationConfig {
	return &CoordinationConfig{
		MaxConcurrentAgents:    100,
		MaxBlockTime:           5 * time.Minute,
		HeartbeatInterval:      10 * time.Second,
		MessageHistoryCapacity: 1000,
		PerAgentQueueCapacity:  256,
		SessionTimeout:         30 * time.Minute,
	}
}

// ConflictConfig contains the conflict engine's resolution policy.
type ConflictConfig struct {
	PrimaryStrategy    models.ResolutionStrategy   `yaml:"primary_strategy"`
	FallbackStrategies []models.ResolutionStrategy `yaml:"fallback_strategies"`

	EnableAutoDetection bool `yaml:"enable_auto_detection"`
	TrackHistory        bool `yaml:"track_history"`
	MaxAttempts         int  `yaml:"max_attempts"`
	AllowUserPrompts    bool `yaml:"allow_user_prompts"`
	PreferStable        bool `yaml:"prefer_stable"`
	StrictPinning       bool `yaml:"strict_pinning"`

	// CompatibilityThreshold is the minimum score in [0,1] a candidate must
	// reach under SmartSelection.
	CompatibilityThreshold float64 `yaml:"compatibility_threshold"`

	ParallelResolution bool `yaml:"parallel_resolution"`
	MaxParallelThreads int  `yaml:"max_parallel_threads"`
	TimeoutSeconds     int  `yaml:"timeout_seconds"`
}

// DefaultConflictConfig returns the built-in conflict-resolution defaults.
func DefaultConflictConfig() *ConflictConfig {
	return &ConflictConfig{
		PrimaryStrategy:        models.StrategyLatestCompatible,
		FallbackStrategies:     []models.ResolutionStrategy{models.StrategyPinnedVersion, models.StrategyConservative},
		EnableAutoDetection:    true,
		TrackHistory:           true,
		MaxAttempts:            3,
		AllowUserPrompts:       false,
		PreferStable:           true,
		StrictPinning:          false,
		CompatibilityThreshold: 0.8,
		ParallelResolution:     true,
		MaxParallelThreads:     4,
		TimeoutSeconds:         60,
	}
}

// PersistenceConfig selects and configures the PersistenceGateway backend.
type PersistenceConfig struct {
	Backend models.PersistenceBackend `yaml:"backend"`

	// Dir is the storage directory for the file backend.
	Dir string `yaml:"dir"`

	// Redis settings for the kv backend.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// PostgreSQL settings for the db backend.
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_ssl_mode"`

	// Retention, CleanupInterval and BackupCount are loaded and validated
	// (Retention and BackupCount must be non-negative), but no persistence
	// backend reads them: persisted entries are never expired and Snapshot
	// exports are not rotated.
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	BackupCount     int           `yaml:"backup_count"`
}

// DefaultPersistenceConfig returns the built-in persistence defaults.
func DefaultPersistenceConfig() *PersistenceConfig {
	return &PersistenceConfig{
		Backend:         models.BackendMemory,
		Dir:             "./data",
		DBPort:          5432,
		DBSSLMode:       "disable",
		CleanupInterval: time.Hour,
		BackupCount:     3,
	}
}

// TransportConfig contains the HTTP/WebSocket transport settings.
type TransportConfig struct {
	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedWSOrigins is the WebSocket origin allowlist; empty accepts
	// same-origin only.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`

	// WriteTimeout bounds each WebSocket send.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultTransportConfig returns the built-in transport defaults.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		ListenAddr:   ":8080",
		WriteTimeout: 10 * time.Second,
	}
}
