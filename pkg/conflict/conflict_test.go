package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func TestDetectRequiresAtLeastTwoParties(t *testing.T) {
	e := New(DefaultConfig())
	_, err := e.Detect("R", []string{"A1"}, models.ConflictCapacity, "contention")
	require.Error(t, err)
}

func TestPinWinsViaFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrimaryStrategy = models.StrategyLatestCompatible
	cfg.FallbackStrategies = []models.ResolutionStrategy{models.StrategyPinnedVersion}
	e := New(cfg)

	specs := []models.DependencySpec{
		{Path: "D", VersionConstraint: "1.2.3", DepType: models.DepRequired, ScopePath: "scope-a"},
		{Path: "D", VersionConstraint: "^1.2", DepType: models.DepRequired, ScopePath: "scope-b"},
	}
	result, err := e.ResolveDependencies(context.Background(), specs)
	require.NoError(t, err)

	locked, ok := result.ResolvedDependencies["D"]
	require.True(t, ok)
	assert.Equal(t, "1.2.3", locked.Version)
	assert.Equal(t, 1, result.Stats.AutoResolved)
	require.Len(t, result.DetectedConflicts, 1)
	assert.Equal(t, models.StrategyPinnedVersion, result.DetectedConflicts[0].Strategy)
}

func TestUnresolvedGoesManualRequiredWhenNoPromptsAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrimaryStrategy = models.StrategyPinnedVersion
	cfg.FallbackStrategies = nil
	cfg.AllowUserPrompts = false
	e := New(cfg)

	specs := []models.DependencySpec{
		{Path: "D", VersionConstraint: "1.0.0", ScopePath: "a"},
		{Path: "D", VersionConstraint: "2.0.0", ScopePath: "b"},
	}
	result, err := e.ResolveDependencies(context.Background(), specs)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.ManualRequired)
	assert.Empty(t, result.ResolvedDependencies)
}

func TestTieBreakOrder(t *testing.T) {
	specs := []models.DependencySpec{
		{Path: "b", Priority: 1, DepType: models.DepOptional, ScopePath: "long/scope"},
		{Path: "a", Priority: 1, DepType: models.DepRequired, ScopePath: "short"},
	}
	winner := tieBreak(specs)
	assert.Equal(t, "a", winner.Path) // Required beats Optional at equal priority
}

func TestSingleCandidateNoConflict(t *testing.T) {
	e := New(DefaultConfig())
	specs := []models.DependencySpec{{Path: "solo", VersionConstraint: "1.0.0"}}
	result, err := e.ResolveDependencies(context.Background(), specs)
	require.NoError(t, err)
	assert.Empty(t, result.DetectedConflicts)
	assert.Equal(t, "1.0.0", result.ResolvedDependencies["solo"].Version)
}

func TestHybridStrategyConservativeForRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrimaryStrategy = models.StrategyHybrid
	cfg.FallbackStrategies = nil
	e := New(cfg)
	specs := []models.DependencySpec{
		{Path: "D", VersionConstraint: "1.0.0", DepType: models.DepRequired},
		{Path: "D", VersionConstraint: "2.0.0", DepType: models.DepRequired},
	}
	result, err := e.ResolveDependencies(context.Background(), specs)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", result.ResolvedDependencies["D"].Version) // conservative = lowest
}
