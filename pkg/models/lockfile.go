package models

import "time"

// DependencySpec is one candidate dependency requirement contributed by a
// scope, before resolution picks a single LockedDependency for it.
type DependencySpec struct {
	Path                string            `json:"path" yaml:"path"`
	VersionConstraint   string            `json:"version_constraint" yaml:"version_constraint"`
	DepType             DependencyType    `json:"dep_type" yaml:"dep_type"`
	IsTransitive        bool              `json:"is_transitive" yaml:"is_transitive"`
	OriginalConstraint  string            `json:"original_constraint,omitempty" yaml:"original_constraint,omitempty"`
	ScopePath           string            `json:"scope_path" yaml:"scope_path"`
	Priority            int               `json:"priority" yaml:"priority"`
	Optional            bool              `json:"optional" yaml:"optional"`
	Alternatives        []string          `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// LockedDependency is the resolved, version-pinned dependency written into
// a LockFile's scope.
type LockedDependency struct {
	Version            string            `json:"version" yaml:"version"`
	DependencyType     DependencyType    `json:"dependency_type" yaml:"dependency_type"`
	IsTransitive       bool              `json:"is_transitive" yaml:"is_transitive"`
	OriginalConstraint string            `json:"original_constraint,omitempty" yaml:"original_constraint,omitempty"`
	Checksum           string            `json:"checksum" yaml:"checksum"`
	Metadata           map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ScopeLock is one scope's resolved dependency set within a LockFile.
type ScopeLock struct {
	Version                string                       `json:"version" yaml:"version"`
	Dependencies           map[string]LockedDependency  `json:"dependencies" yaml:"dependencies"`
	HasCircularDependencies bool                        `json:"has_circular_dependencies" yaml:"has_circular_dependencies"`
}

// PerformanceMetrics records how long lock-file generation took and how
// much work it did, for the "performance_metrics" field carried in both
// LockFileMetadata and the ConflictEngine's Result.
type PerformanceMetrics struct {
	Duration           time.Duration `json:"duration" yaml:"duration"`
	DependenciesWalked int           `json:"dependencies_walked" yaml:"dependencies_walked"`
	ConflictsDetected  int           `json:"conflicts_detected" yaml:"conflicts_detected"`
}

// LockFileMetadata is the LockFile's "metadata" block.
type LockFileMetadata struct {
	TotalScopes          int                `json:"total_scopes" yaml:"total_scopes"`
	TotalDependencies    int                `json:"total_dependencies" yaml:"total_dependencies"`
	CircularDependencies int                `json:"circular_dependencies" yaml:"circular_dependencies"`
	ValidationStatus     string             `json:"validation_status" yaml:"validation_status"`
	ResolutionStrategy   ResolutionStrategy `json:"resolution_strategy" yaml:"resolution_strategy"`
	ConflictResolution   string             `json:"conflict_resolution,omitempty" yaml:"conflict_resolution,omitempty"`
	PerformanceMetrics   PerformanceMetrics `json:"performance_metrics" yaml:"performance_metrics"`
}

// LockFile is the full resolved output of lockresolver's Resolver.Generate:
// a checksum computed over the canonical serialization of {version, scopes,
// metadata (excluding performance metrics)} for integrity verification; the
// checksum, generated_at and generated_by fields are not part of it.
type LockFile struct {
	Version     int                  `json:"version" yaml:"version"`
	GeneratedAt time.Time            `json:"generated_at" yaml:"generated_at"`
	Generator   string               `json:"generated_by" yaml:"generated_by"`
	Checksum    string               `json:"checksum" yaml:"checksum"`
	Scopes      map[string]ScopeLock `json:"scopes" yaml:"scopes"`
	Metadata    LockFileMetadata     `json:"metadata" yaml:"metadata"`
}

// DependencyDiff describes how one named dependency changed between two
// ScopeLock snapshots of the same scope.
type DependencyDiff struct {
	Name        string `json:"name" yaml:"name"`
	FromVersion string `json:"from_version,omitempty" yaml:"from_version,omitempty"`
	ToVersion   string `json:"to_version,omitempty" yaml:"to_version,omitempty"`
	Added       bool   `json:"added" yaml:"added"`
	Removed     bool   `json:"removed" yaml:"removed"`
	Changed     bool   `json:"changed" yaml:"changed"`
}

// ScopeDiff is the set of DependencyDiff entries for one scope.
type ScopeDiff struct {
	Scope        string           `json:"scope" yaml:"scope"`
	Dependencies []DependencyDiff `json:"dependencies" yaml:"dependencies"`
}

// LockDiffResult is the full comparison of two LockFile generations,
// returned by LockResolver.Diff. Added/Removed/Updated group dependencies
// across all scopes for a caller that doesn't care about scope boundaries.
type LockDiffResult struct {
	Scopes  []ScopeDiff `json:"scopes" yaml:"scopes"`
	Added   []string    `json:"added" yaml:"added"`
	Removed []string    `json:"removed" yaml:"removed"`
	Updated []string    `json:"updated" yaml:"updated"`
	Changed bool        `json:"changed" yaml:"changed"`
}
