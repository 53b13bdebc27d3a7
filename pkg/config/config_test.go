package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, coordinatorYAML), []byte(content), 0o644))
	return dir
}

func TestInitializeDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Coordination.MaxConcurrentAgents)
	assert.Equal(t, 1000, cfg.Coordination.MessageHistoryCapacity)
	assert.Equal(t, models.StrategyLatestCompatible, cfg.Conflict.PrimaryStrategy)
	assert.Equal(t, models.BackendMemory, cfg.Persistence.Backend)
	assert.Equal(t, ":8080", cfg.Transport.ListenAddr)
}

func TestInitializeMergesUserOverDefaults(t *testing.T) {
	dir := writeConfig(t, `
coordination:
  max_concurrent_agents: 7
conflict:
  primary_strategy: conservative
transport:
  listen_addr: ":9999"
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Coordination.MaxConcurrentAgents)
	// Unset fields keep their defaults.
	assert.Equal(t, 256, cfg.Coordination.PerAgentQueueCapacity)
	assert.Equal(t, models.StrategyConservative, cfg.Conflict.PrimaryStrategy)
	assert.Equal(t, ":9999", cfg.Transport.ListenAddr)
}

func TestInitializeExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6379")
	dir := writeConfig(t, `
persistence:
  backend: kv
  redis_addr: ${TEST_REDIS_ADDR}
`)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Persistence.RedisAddr)
}

func TestInitializeRejectsUnknownStrategy(t *testing.T) {
	dir := writeConfig(t, `
conflict:
  primary_strategy: coin_flip
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitializeRejectsKVWithoutAddr(t *testing.T) {
	dir := writeConfig(t, `
persistence:
  backend: kv
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "coordination: [not a map")
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestValidatorBoundsCompatibilityThreshold(t *testing.T) {
	cfg := &Config{
		Coordination: DefaultCoordinationConfig(),
		Conflict:     DefaultConflictConfig(),
		Persistence:  DefaultPersistenceConfig(),
		Transport:    DefaultTransportConfig(),
	}
	cfg.Conflict.CompatibilityThreshold = 1.5
	require.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidatorEnforcesHistoryFloor(t *testing.T) {
	cfg := &Config{
		Coordination: DefaultCoordinationConfig(),
		Conflict:     DefaultConflictConfig(),
		Persistence:  DefaultPersistenceConfig(),
		Transport:    DefaultTransportConfig(),
	}
	cfg.Coordination.MessageHistoryCapacity = 10
	require.Error(t, NewValidator(cfg).ValidateAll())
}
