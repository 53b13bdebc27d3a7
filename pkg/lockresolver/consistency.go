package lockresolver

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// VersionDrift caps the permitted component-wise version delta between a
// reference lock and a candidate. A negative component means unlimited.
type VersionDrift struct {
	Major int `yaml:"major"`
	Minor int `yaml:"minor"`
	Patch int `yaml:"patch"`
}

// ConsistencyOptions tunes CheckConsistency. With the zero value, any
// difference between reference and candidate is a violation.
type ConsistencyOptions struct {
	// AllowSemverDiffs widens version equality: a changed dependency is
	// consistent when the newer version is a compatible upgrade of the
	// older (same major, no downgrade).
	AllowSemverDiffs bool

	// MaxVersionDrift, when set, permits version changes within the given
	// component-wise delta even if they are not semver-compatible.
	MaxVersionDrift *VersionDrift
}

// ConsistencyResult is the outcome of comparing a candidate lock against a
// reference.
type ConsistencyResult struct {
	Diff       models.LockDiffResult `json:"diff" yaml:"diff"`
	Violations []string              `json:"violations,omitempty" yaml:"violations,omitempty"`
	Consistent bool                  `json:"consistent" yaml:"consistent"`
}

// CheckConsistency diffs candidate against reference and applies the
// configured widening/drift rules to decide consistency. Added and removed
// dependencies are always violations; changed versions may be forgiven by
// AllowSemverDiffs or MaxVersionDrift.
func CheckConsistency(reference, candidate *models.LockFile, opts ConsistencyOptions) ConsistencyResult {
	result := ConsistencyResult{Diff: Diff(reference, candidate)}

	for _, scope := range result.Diff.Scopes {
		for _, d := range scope.Dependencies {
			switch {
			case d.Added:
				result.Violations = append(result.Violations,
					fmt.Sprintf("%s/%s: dependency added", scope.Scope, d.Name))
			case d.Removed:
				result.Violations = append(result.Violations,
					fmt.Sprintf("%s/%s: dependency removed", scope.Scope, d.Name))
			case d.Changed:
				if opts.AllowSemverDiffs && semverCompatible(d.FromVersion, d.ToVersion) {
					continue
				}
				if opts.MaxVersionDrift != nil && driftViolation(d, scope.Scope, *opts.MaxVersionDrift) == "" {
					continue
				}
				if opts.MaxVersionDrift != nil {
					result.Violations = append(result.Violations, driftViolation(d, scope.Scope, *opts.MaxVersionDrift))
				} else {
					result.Violations = append(result.Violations,
						fmt.Sprintf("%s/%s: version changed %s -> %s", scope.Scope, d.Name, d.FromVersion, d.ToVersion))
				}
			}
		}
	}

	result.Consistent = len(result.Violations) == 0
	return result
}

// semverCompatible reports whether to is a compatible upgrade of from:
// same major version and not a downgrade.
func semverCompatible(from, to string) bool {
	vFrom, err := semver.NewVersion(from)
	if err != nil {
		return false
	}
	vTo, err := semver.NewVersion(to)
	if err != nil {
		return false
	}
	return vFrom.Major() == vTo.Major() && !vTo.LessThan(vFrom)
}

// driftViolation returns a violation message when the from->to delta
// exceeds drift in any component, or "" when within bounds.
func driftViolation(d models.DependencyDiff, scope string, drift VersionDrift) string {
	vFrom, err := semver.NewVersion(d.FromVersion)
	if err != nil {
		return fmt.Sprintf("%s/%s: unparseable version %q", scope, d.Name, d.FromVersion)
	}
	vTo, err := semver.NewVersion(d.ToVersion)
	if err != nil {
		return fmt.Sprintf("%s/%s: unparseable version %q", scope, d.Name, d.ToVersion)
	}

	exceeds := func(from, to uint64, cap int) bool {
		if cap < 0 {
			return false
		}
		delta := int64(to) - int64(from)
		if delta < 0 {
			delta = -delta
		}
		return delta > int64(cap)
	}

	switch {
	case exceeds(vFrom.Major(), vTo.Major(), drift.Major):
		return fmt.Sprintf("%s/%s: major drift %s -> %s exceeds %d", scope, d.Name, d.FromVersion, d.ToVersion, drift.Major)
	case vFrom.Major() == vTo.Major() && exceeds(vFrom.Minor(), vTo.Minor(), drift.Minor):
		return fmt.Sprintf("%s/%s: minor drift %s -> %s exceeds %d", scope, d.Name, d.FromVersion, d.ToVersion, drift.Minor)
	case vFrom.Major() == vTo.Major() && vFrom.Minor() == vTo.Minor() && exceeds(vFrom.Patch(), vTo.Patch(), drift.Patch):
		return fmt.Sprintf("%s/%s: patch drift %s -> %s exceeds %d", scope, d.Name, d.FromVersion, d.ToVersion, drift.Patch)
	}
	return ""
}
