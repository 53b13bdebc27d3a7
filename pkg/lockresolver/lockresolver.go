// Package lockresolver implements the LockResolver component: it consumes
// a set of DependencySpec entries contributed by scope configurations, detects circular dependencies, delegates conflicting
// candidates to the ConflictEngine, and produces a checksum-stamped
// LockFile.
package lockresolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fugue-ai/rhema-coordinator/pkg/conflict"
	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

const component = "lockresolver"

// lockFileVersion is the LockFile schema version this resolver emits.
const lockFileVersion = 1

// DependencyResolver is the subset of *conflict.Engine the resolver needs;
// narrowed to an interface so tests can stub it.
type DependencyResolver interface {
	ResolveDependencies(ctx context.Context, specs []models.DependencySpec) (*conflict.Result, error)
}

// Resolver is the LockResolver.
type Resolver struct {
	engine DependencyResolver
	mode   models.ValidationMode
}

// New constructs a Resolver that delegates version conflicts to engine.
func New(engine DependencyResolver, mode models.ValidationMode) *Resolver {
	return &Resolver{engine: engine, mode: mode}
}

// GenerateResult is the outcome of Generate: the LockFile (possibly partial,
// under Lenient validation) plus any errors encountered.
type GenerateResult struct {
	LockFile *models.LockFile
	Errors   []error
	Warnings []string
}

// Generate builds a LockFile from specs, grouped by ScopePath then by Path
// within each scope.
func (r *Resolver) Generate(ctx context.Context, specs []models.DependencySpec, generatedBy string) (*GenerateResult, error) {
	start := time.Now()
	res := &GenerateResult{}

	scopeGroups := groupByScope(specs)
	scopes := make(map[string]models.ScopeLock, len(scopeGroups))

	cycles := 0
	totalDeps := 0
	var conflictStrategy models.ResolutionStrategy

	for _, scopePath := range sortedScopeKeys(scopeGroups) {
		scopeSpecs := scopeGroups[scopePath]

		graph := buildGraph(scopeSpecs)
		scopeCycles := detectCycles(graph)
		hasCycles := len(scopeCycles) > 0
		if hasCycles {
			cycles++
			err := fmt.Errorf("circular dependency detected in scope %q: %v", scopePath, scopeCycles[0])
			if r.mode == models.ValidationStrict {
				return nil, coordinationerr.Newf(component, "Generate", coordinationerr.KindInvalidArgument, scopePath, err)
			}
			res.Errors = append(res.Errors, err)
		}

		result, err := r.engine.ResolveDependencies(ctx, scopeSpecs)
		if err != nil {
			if r.mode == models.ValidationStrict {
				return nil, err
			}
			res.Errors = append(res.Errors, err)
			continue
		}
		if result.Stats.ManualRequired > 0 || result.Stats.Unresolved > 0 {
			msg := fmt.Sprintf("scope %q: %d manual, %d unresolved dependency conflicts",
				scopePath, result.Stats.ManualRequired, result.Stats.Unresolved)
			if r.mode == models.ValidationStrict {
				return nil, coordinationerr.Newf(component, "Generate", coordinationerr.KindConflictUnresolved, scopePath, errors.New(msg))
			}
			res.Warnings = append(res.Warnings, msg)
		}
		res.Warnings = append(res.Warnings, result.Warnings...)

		for _, c := range result.DetectedConflicts {
			if c.Resolved {
				conflictStrategy = c.Strategy
			}
		}

		totalDeps += len(result.ResolvedDependencies)
		scopes[scopePath] = models.ScopeLock{
			Version:                 "1",
			Dependencies:            result.ResolvedDependencies,
			HasCircularDependencies: hasCycles,
		}
	}

	validationStatus := "valid"
	if len(res.Errors) > 0 {
		validationStatus = "invalid"
	} else if len(res.Warnings) > 0 {
		validationStatus = "valid_with_warnings"
	}

	lf := &models.LockFile{
		Version:     lockFileVersion,
		GeneratedAt: time.Now(),
		Generator:   generatedBy,
		Scopes:      scopes,
		Metadata: models.LockFileMetadata{
			TotalScopes:          len(scopes),
			TotalDependencies:    totalDeps,
			CircularDependencies: cycles,
			ValidationStatus:     validationStatus,
			ResolutionStrategy:   conflictStrategy,
			PerformanceMetrics: models.PerformanceMetrics{
				Duration:           time.Since(start),
				DependenciesWalked: len(specs),
			},
		},
	}
	lf.Checksum = Checksum(lf)
	res.LockFile = lf
	return res, nil
}

func groupByScope(specs []models.DependencySpec) map[string][]models.DependencySpec {
	out := make(map[string][]models.DependencySpec)
	for _, s := range specs {
		out[s.ScopePath] = append(out[s.ScopePath], s)
	}
	return out
}

func sortedScopeKeys(groups map[string][]models.DependencySpec) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dependencyGraph maps a dependency Path to the Paths it depends on. Edge
// data is taken from DependencySpec.Alternatives, which in this scope's
// context names the dependency paths this spec's resolution also pulls in
// (see DESIGN.md for this Open Question's resolution).
type dependencyGraph map[string][]string

func buildGraph(specs []models.DependencySpec) dependencyGraph {
	g := make(dependencyGraph)
	for _, s := range specs {
		if _, ok := g[s.Path]; !ok {
			g[s.Path] = nil
		}
		g[s.Path] = append(g[s.Path], s.Alternatives...)
	}
	return g
}

// detectCycles runs DFS with an explicit recursion stack over g, returning
// every distinct cycle found as an ordered path of node names.
func detectCycles(g dependencyGraph) [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g))
	var cycles [][]string
	var stack []string

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)
		for _, next := range g[node] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Found a back-edge into the current recursion stack;
				// extract the cycle starting at next's position.
				for i, n := range stack {
					if n == next {
						cycle := append([]string(nil), stack[i:]...)
						cycle = append(cycle, next)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
	}

	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// canonicalForm is the exact byte shape Checksum hashes: LockFile's
// Version, Scopes and Metadata (Checksum, GeneratedAt and Generator are
// left out), serialized via encoding/json (which sorts map keys) so the
// hash is stable across runs regardless of map iteration order.
type canonicalForm struct {
	Version  int                         `json:"version"`
	Scopes   map[string]models.ScopeLock `json:"scopes"`
	Metadata models.LockFileMetadata     `json:"metadata"`
}

// Checksum computes a stable hex-encoded SHA-256 digest over lf's canonical
// serialization (see canonicalForm), with Metadata.PerformanceMetrics
// zeroed so timing does not affect the digest.
func Checksum(lf *models.LockFile) string {
	canon := canonicalForm{Version: lf.Version, Scopes: lf.Scopes, Metadata: lf.Metadata}
	canon.Metadata.PerformanceMetrics = models.PerformanceMetrics{} // exclude timing noise from the digest
	b, err := json.Marshal(canon)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Diff computes {added, removed, updated} between two LockFile generations,
// per scope and per dependency.
func Diff(from, to *models.LockFile) models.LockDiffResult {
	result := models.LockDiffResult{}
	scopePaths := unionScopeKeys(from, to)

	for _, scopePath := range scopePaths {
		fromScope := from.Scopes[scopePath]
		toScope := to.Scopes[scopePath]

		var depDiffs []models.DependencyDiff
		names := unionDepNames(fromScope, toScope)
		for _, name := range names {
			fromDep, inFrom := fromScope.Dependencies[name]
			toDep, inTo := toScope.Dependencies[name]
			switch {
			case !inFrom && inTo:
				depDiffs = append(depDiffs, models.DependencyDiff{Name: name, ToVersion: toDep.Version, Added: true})
				result.Added = append(result.Added, scopePath+"/"+name)
			case inFrom && !inTo:
				depDiffs = append(depDiffs, models.DependencyDiff{Name: name, FromVersion: fromDep.Version, Removed: true})
				result.Removed = append(result.Removed, scopePath+"/"+name)
			case fromDep.Version != toDep.Version:
				depDiffs = append(depDiffs, models.DependencyDiff{
					Name: name, FromVersion: fromDep.Version, ToVersion: toDep.Version, Changed: true,
				})
				result.Updated = append(result.Updated, scopePath+"/"+name)
			}
		}
		if len(depDiffs) > 0 {
			result.Scopes = append(result.Scopes, models.ScopeDiff{Scope: scopePath, Dependencies: depDiffs})
			result.Changed = true
		}
	}
	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Updated)
	return result
}

func unionScopeKeys(from, to *models.LockFile) []string {
	set := map[string]bool{}
	for k := range from.Scopes {
		set[k] = true
	}
	for k := range to.Scopes {
		set[k] = true
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unionDepNames(a, b models.ScopeLock) []string {
	set := map[string]bool{}
	for k := range a.Dependencies {
		set[k] = true
	}
	for k := range b.Dependencies {
		set[k] = true
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Fresh reports whether lf was generated within maxAge of now.
func Fresh(lf *models.LockFile, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(lf.GeneratedAt) <= maxAge
}
