package lockresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func lockWith(versions map[string]string) *models.LockFile {
	deps := make(map[string]models.LockedDependency, len(versions))
	for name, v := range versions {
		deps[name] = models.LockedDependency{Version: v}
	}
	return &models.LockFile{Scopes: map[string]models.ScopeLock{
		"app": {Dependencies: deps},
	}}
}

func TestCheckConsistencyExactByDefault(t *testing.T) {
	ref := lockWith(map[string]string{"alpha": "1.2.3"})
	cand := lockWith(map[string]string{"alpha": "1.2.4"})

	result := CheckConsistency(ref, cand, ConsistencyOptions{})
	assert.False(t, result.Consistent)
	assert.Len(t, result.Violations, 1)
}

func TestCheckConsistencySemverWidening(t *testing.T) {
	ref := lockWith(map[string]string{"alpha": "1.2.3"})

	// Minor bump within the same major is forgiven.
	result := CheckConsistency(ref, lockWith(map[string]string{"alpha": "1.3.0"}),
		ConsistencyOptions{AllowSemverDiffs: true})
	assert.True(t, result.Consistent)

	// Major bump is not.
	result = CheckConsistency(ref, lockWith(map[string]string{"alpha": "2.0.0"}),
		ConsistencyOptions{AllowSemverDiffs: true})
	assert.False(t, result.Consistent)

	// Downgrade is not, even within the major.
	result = CheckConsistency(ref, lockWith(map[string]string{"alpha": "1.1.0"}),
		ConsistencyOptions{AllowSemverDiffs: true})
	assert.False(t, result.Consistent)
}

func TestCheckConsistencyDriftCaps(t *testing.T) {
	ref := lockWith(map[string]string{"alpha": "1.2.3"})
	drift := &VersionDrift{Major: 0, Minor: 1, Patch: -1}

	result := CheckConsistency(ref, lockWith(map[string]string{"alpha": "1.3.9"}),
		ConsistencyOptions{MaxVersionDrift: drift})
	assert.True(t, result.Consistent, "one minor and unlimited patch is within drift")

	result = CheckConsistency(ref, lockWith(map[string]string{"alpha": "1.4.0"}),
		ConsistencyOptions{MaxVersionDrift: drift})
	assert.False(t, result.Consistent, "two minors exceeds the cap")

	result = CheckConsistency(ref, lockWith(map[string]string{"alpha": "2.2.3"}),
		ConsistencyOptions{MaxVersionDrift: drift})
	assert.False(t, result.Consistent, "any major move exceeds the cap")
}

func TestCheckConsistencyPresenceChangesAlwaysViolate(t *testing.T) {
	ref := lockWith(map[string]string{"alpha": "1.2.3"})
	cand := lockWith(map[string]string{"alpha": "1.2.3", "beta": "1.0.0"})

	result := CheckConsistency(ref, cand, ConsistencyOptions{AllowSemverDiffs: true})
	assert.False(t, result.Consistent)
	assert.Contains(t, result.Violations[0], "added")
}
