package lockresolver

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema-coordinator/pkg/conflict"
	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

func generatedLock(t *testing.T) *models.LockFile {
	t.Helper()
	engine := conflict.New(conflict.DefaultConfig())
	r := New(engine, models.ValidationStrict)
	res, err := r.Generate(context.Background(), []models.DependencySpec{
		{Path: "alpha", VersionConstraint: "1.0.0", ScopePath: "app", DepType: models.DepRequired},
	}, "test-generator")
	require.NoError(t, err)
	return res.LockFile
}

func TestWriteReadVerifyRoundTrip(t *testing.T) {
	lf := generatedLock(t)
	path := filepath.Join(t.TempDir(), "coordinator.lock.yaml")

	require.NoError(t, WriteFile(path, lf))
	loaded, err := ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, Verify(loaded))
	assert.Equal(t, lf.Checksum, loaded.Checksum)
}

func TestVerifyDetectsTampering(t *testing.T) {
	lf := generatedLock(t)
	scope := lf.Scopes["app"]
	scope.Dependencies["alpha"] = models.LockedDependency{Version: "9.9.9"}
	lf.Scopes["app"] = scope

	err := Verify(lf)
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinationerr.ErrIntegrityFailure)
}

func TestRenderFormats(t *testing.T) {
	report := &Report{
		Command:    "validate",
		Success:    false,
		Errors:     []string{"checksum mismatch"},
		Violations: []string{"app/alpha: version changed 1.0.0 -> 2.0.0"},
	}

	text, err := Render(report, FormatText)
	require.NoError(t, err)
	assert.Contains(t, text, "validate: FAILED")
	assert.Contains(t, text, "checksum mismatch")

	jsonOut, err := Render(report, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, jsonOut, `"command": "validate"`)

	yamlOut, err := Render(report, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, yamlOut, "command: validate")

	junit, err := Render(report, FormatJUnit)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(junit, "<?xml"))
	assert.Contains(t, junit, `failures="2"`)

	_, err = Render(report, ReportFormat("csv"))
	require.Error(t, err)
}

func TestRenderTextDiff(t *testing.T) {
	d := Diff(
		lockWith(map[string]string{"alpha": "1.0.0"}),
		lockWith(map[string]string{"alpha": "1.1.0", "beta": "0.1.0"}),
	)
	report := &Report{Command: "diff", Success: true, Diff: &d}
	text, err := Render(report, FormatText)
	require.NoError(t, err)
	assert.Contains(t, text, "+ app/beta 0.1.0")
	assert.Contains(t, text, "~ app/alpha 1.0.0 -> 1.1.0")
}
