package conflict

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// constraintVersion extracts a concrete version from a constraint string. A
// bare version ("1.2.3") is returned as-is; a range constraint ("^1.2",
// "~1.2.0", ">=1.0,<2.0") has no single "the" version, so callers that need
// one (LatestCompatible/Conservative/Aggressive comparing across distinct
// specs) use the constraint's lower bound as a stand-in candidate version.
func constraintVersion(constraint string) string {
	if v, err := semver.NewVersion(constraint); err == nil {
		return v.String()
	}
	return strings.TrimLeft(constraint, "^~=><! ")
}

// compareVersions returns -1, 0, or 1 following semver.Version.Compare,
// falling back to a lexical comparison for non-semver strings
// (DependencySpec.VersionConstraint is caller-supplied and not guaranteed
// to be valid semver at the boundary).
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	switch {
	case a == b:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

// satisfiesConstraint reports whether version satisfies constraint, using
// Masterminds/semver's constraint grammar (^, ~, >=, ranges, ...). Invalid
// input is treated as non-satisfying rather than panicking.
func satisfiesConstraint(version, constraint string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		// A bare exact-pin constraint ("1.2.3") is valid semver but not a
		// valid semver.Constraint on some inputs; fall back to equality.
		return version == constraint
	}
	return c.Check(v)
}

// isStable reports whether version has no pre-release component.
func isStable(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return v.Prerelease() == ""
}
