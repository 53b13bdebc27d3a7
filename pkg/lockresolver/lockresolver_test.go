package lockresolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/conflict"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func TestGenerateProducesChecksumAndScopes(t *testing.T) {
	engine := conflict.New(conflict.DefaultConfig())
	r := New(engine, models.ValidationStrict)

	specs := []models.DependencySpec{
		{Path: "alpha", VersionConstraint: "1.0.0", ScopePath: "app", DepType: models.DepRequired},
		{Path: "beta", VersionConstraint: "2.0.0", ScopePath: "app", DepType: models.DepRequired},
	}
	res, err := r.Generate(context.Background(), specs, "test-generator")
	require.NoError(t, err)
	require.NotNil(t, res.LockFile)
	assert.Equal(t, 1, res.LockFile.Metadata.TotalScopes)
	assert.Equal(t, 2, res.LockFile.Metadata.TotalDependencies)
	assert.NotEmpty(t, res.LockFile.Checksum)
}

func TestChecksumStability(t *testing.T) {
	engine := conflict.New(conflict.DefaultConfig())
	r := New(engine, models.ValidationStrict)
	specs := []models.DependencySpec{
		{Path: "alpha", VersionConstraint: "1.0.0", ScopePath: "app"},
	}
	res1, err := r.Generate(context.Background(), specs, "gen")
	require.NoError(t, err)
	res2, err := r.Generate(context.Background(), specs, "gen")
	require.NoError(t, err)
	assert.Equal(t, res1.LockFile.Checksum, res2.LockFile.Checksum)
}

func TestCycleDetectionStrictAborts(t *testing.T) {
	engine := conflict.New(conflict.DefaultConfig())
	r := New(engine, models.ValidationStrict)
	specs := []models.DependencySpec{
		{Path: "a", VersionConstraint: "1.0.0", ScopePath: "app", Alternatives: []string{"b"}},
		{Path: "b", VersionConstraint: "1.0.0", ScopePath: "app", Alternatives: []string{"a"}},
	}
	_, err := r.Generate(context.Background(), specs, "gen")
	require.Error(t, err)
}

func TestCycleDetectionLenientRecordsError(t *testing.T) {
	engine := conflict.New(conflict.DefaultConfig())
	r := New(engine, models.ValidationLenient)
	specs := []models.DependencySpec{
		{Path: "a", VersionConstraint: "1.0.0", ScopePath: "app", Alternatives: []string{"b"}},
		{Path: "b", VersionConstraint: "1.0.0", ScopePath: "app", Alternatives: []string{"a"}},
	}
	res, err := r.Generate(context.Background(), specs, "gen")
	require.NoError(t, err)
	require.NotEmpty(t, res.Errors)
	assert.True(t, res.LockFile.Scopes["app"].HasCircularDependencies)
	assert.Equal(t, 1, res.LockFile.Metadata.CircularDependencies)
}

func TestDiffSymmetry(t *testing.T) {
	a := &models.LockFile{Scopes: map[string]models.ScopeLock{
		"app": {Dependencies: map[string]models.LockedDependency{
			"alpha": {Version: "1.0.0"},
		}},
	}}
	b := &models.LockFile{Scopes: map[string]models.ScopeLock{
		"app": {Dependencies: map[string]models.LockedDependency{
			"alpha": {Version: "2.0.0"},
			"beta":  {Version: "1.0.0"},
		}},
	}}

	diffAB := Diff(a, b)
	diffBA := Diff(b, a)
	assert.Equal(t, diffAB.Added, diffBA.Removed)
	assert.Equal(t, diffAB.Removed, diffBA.Added)
}

func TestFreshness(t *testing.T) {
	lf := &models.LockFile{GeneratedAt: time.Now().Add(-time.Hour)}
	assert.False(t, Fresh(lf, 30*time.Minute, time.Now()))
	assert.True(t, Fresh(lf, 2*time.Hour, time.Now()))
}
