// Package conflict implements the ConflictEngine component:
// detection of resource/message/assignment conflicts, a strategy-driven
// resolution algorithm with ordered fallbacks, and dependency-version
// conflict resolution consumed by pkg/lockresolver.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

const component = "conflict"

// Config holds the conflict engine's tunables.
type Config struct {
	PrimaryStrategy        models.ResolutionStrategy
	FallbackStrategies     []models.ResolutionStrategy
	EnableAutoDetection    bool
	TrackHistory           bool
	MaxAttempts            int
	AllowUserPrompts       bool
	PreferStable           bool
	StrictPinning          bool
	CompatibilityThreshold float64
	ParallelResolution     bool
	MaxParallelThreads     int
	TimeoutSeconds         int
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		PrimaryStrategy:        models.StrategyLatestCompatible,
		FallbackStrategies:     []models.ResolutionStrategy{models.StrategyPinnedVersion, models.StrategyConservative},
		EnableAutoDetection:    true,
		TrackHistory:           true,
		MaxAttempts:            3,
		AllowUserPrompts:       false,
		PreferStable:           true,
		StrictPinning:          true,
		CompatibilityThreshold: 0.7,
		ParallelResolution:     true,
		MaxParallelThreads:     4,
		TimeoutSeconds:         30,
	}
}

// ResolutionEntry is one historical resolution, persisted (if
// TrackHistory) for future HistoryTracking lookups.
type ResolutionEntry struct {
	DependencyPath string
	Strategy       models.ResolutionStrategy
	Version        string
	Timestamp      time.Time
}

// Stats summarizes how a ResolveDependencies call's conflicts were handled.
type Stats struct {
	AutoResolved   int
	ManualRequired int
	Unresolved     int
}

// Result is ConflictEngine's structured dependency-resolution output.
type Result struct {
	ResolvedDependencies map[string]models.LockedDependency
	DetectedConflicts    []models.Conflict
	Stats                Stats
	Warnings             []string
	Recommendations      []string
	PerformanceMetrics   models.PerformanceMetrics
}

// Engine is the ConflictEngine.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	conflicts map[string]*models.Conflict

	historyMu sync.Mutex
	history   map[string][]ResolutionEntry // keyed by dependency path
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		conflicts: make(map[string]*models.Conflict),
		history:   make(map[string][]ResolutionEntry),
	}
}

// --- Live conflict detection/tracking ---

// Detect records a new Conflict from one of the three detection sources
// (resource contention/timeout/deadlock, router ConflictNotification, or
// the periodic overlap scanner — the caller identifies the source via typ).
func (e *Engine) Detect(resourceID string, agents []string, typ models.ConflictType, description string) (*models.Conflict, error) {
	if len(agents) < 2 {
		return nil, coordinationerr.New(component, "Detect", coordinationerr.KindInvalidArgument)
	}
	c := &models.Conflict{
		ID:          uuid.NewString(),
		Type:        typ,
		Severity:    classifySeverity(typ, len(agents)),
		Description: description,
		Parties:     append([]string(nil), agents...),
		ResourceID:  resourceID,
		DetectedAt:  time.Now(),
	}
	e.mu.Lock()
	e.conflicts[c.ID] = c
	e.mu.Unlock()
	return c, nil
}

// classifySeverity derives a ConflictSeverity from type and breadth:
// deadlocks are always critical; breadth (number of contending agents)
// escalates otherwise-low-severity types.
func classifySeverity(typ models.ConflictType, parties int) models.ConflictSeverity {
	switch typ {
	case models.ConflictDeadlock:
		return models.SeverityCritical
	case models.ConflictTimeout:
		if parties > 2 {
			return models.SeverityHigh
		}
		return models.SeverityMedium
	case models.ConflictVersion, models.ConflictCapacity:
		if parties > 3 {
			return models.SeverityHigh
		}
		return models.SeverityMedium
	default:
		if parties > 3 {
			return models.SeverityMedium
		}
		return models.SeverityLow
	}
}

// Resolve applies strategy with resolutionData to conflictID, recording the
// resolution and marking it resolved.
func (e *Engine) Resolve(conflictID string, strategy models.ResolutionStrategy, resolutionData string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conflicts[conflictID]
	if !ok {
		return coordinationerr.NotFound(component, "Resolve", conflictID)
	}
	c.Strategy = strategy
	c.Resolution = resolutionData
	c.Resolved = true
	c.ResolvedAt = time.Now()
	return nil
}

// List returns conflicts optionally filtered by resourceID and/or agentID.
func (e *Engine) List(resourceID, agentID string) []models.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Conflict, 0, len(e.conflicts))
	for _, c := range e.conflicts {
		if resourceID != "" && c.ResourceID != resourceID {
			continue
		}
		if agentID != "" && !containsStr(c.Parties, agentID) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out
}

func containsStr(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// --- Dependency-version conflict resolution ---

// ResolveDependencies groups specs by Path and resolves each group's
// candidates to a single LockedDependency, running independent groups
// concurrently when ParallelResolution is enabled, bounded by
// MaxParallelThreads and TimeoutSeconds.
func (e *Engine) ResolveDependencies(ctx context.Context, specs []models.DependencySpec) (*Result, error) {
	start := time.Now()
	groups := groupByPath(specs)

	result := &Result{
		ResolvedDependencies: make(map[string]models.LockedDependency, len(groups)),
	}

	type groupOutcome struct {
		path     string
		locked   *models.LockedDependency
		conflict *models.Conflict
		strategy models.ResolutionStrategy
		manual   bool
	}
	outcomes := make([]groupOutcome, len(groups))
	paths := sortedKeys(groups)

	resolveOne := func(i int) error {
		path := paths[i]
		group := groups[path]
		locked, conflict, strategy, manual := e.resolveGroup(path, group)
		outcomes[i] = groupOutcome{path: path, locked: locked, conflict: conflict, strategy: strategy, manual: manual}
		return nil
	}

	if e.cfg.ParallelResolution && len(paths) > 1 {
		runCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.TimeoutSeconds > 0 {
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutSeconds)*time.Second)
			defer cancel()
		}
		g, gctx := errgroup.WithContext(runCtx)
		g.SetLimit(maxInt(1, e.cfg.MaxParallelThreads))
		for i := range paths {
			i := i
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				return resolveOne(i)
			})
		}
		if err := g.Wait(); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("parallel resolution aborted: %v", err))
		}
	} else {
		for i := range paths {
			_ = resolveOne(i)
		}
	}

	for _, o := range outcomes {
		if o.conflict != nil {
			result.DetectedConflicts = append(result.DetectedConflicts, *o.conflict)
		}
		switch {
		case o.locked != nil:
			result.ResolvedDependencies[o.path] = *o.locked
			result.Stats.AutoResolved++
			if e.cfg.TrackHistory {
				e.recordHistory(o.path, o.strategy, o.locked.Version)
			}
		case o.manual:
			result.Stats.ManualRequired++
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s requires manual resolution", o.path))
		default:
			result.Stats.Unresolved++
		}
	}

	if result.Stats.ManualRequired > 0 {
		result.Recommendations = append(result.Recommendations,
			"run `resolve-conflicts` with an explicit pin for dependencies marked manual")
	}

	result.PerformanceMetrics = models.PerformanceMetrics{
		Duration:           time.Since(start),
		DependenciesWalked: len(specs),
		ConflictsDetected:  len(result.DetectedConflicts),
	}
	return result, nil
}

func groupByPath(specs []models.DependencySpec) map[string][]models.DependencySpec {
	groups := make(map[string][]models.DependencySpec)
	for _, s := range specs {
		groups[s.Path] = append(groups[s.Path], s)
	}
	return groups
}

func sortedKeys(groups map[string][]models.DependencySpec) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// resolveGroup applies the primary strategy, then iterates fallbacks in
// order, until one resolves the group or all are exhausted. It returns
// (locked, conflict, strategyUsed, manualRequired).
func (e *Engine) resolveGroup(path string, group []models.DependencySpec) (*models.LockedDependency, *models.Conflict, models.ResolutionStrategy, bool) {
	if len(group) == 1 {
		return lockFrom(group[0], group[0].VersionConstraint), nil, models.StrategyLatestCompatible, false
	}

	conflict := &models.Conflict{
		ID:          uuid.NewString(),
		Type:        models.ConflictVersion,
		Severity:    classifySeverity(models.ConflictVersion, len(group)),
		Description: fmt.Sprintf("%d conflicting constraints for %s", len(group), path),
		Parties:     specScopes(group),
		DetectedAt:  time.Now(),
	}
	e.mu.Lock()
	e.conflicts[conflict.ID] = conflict
	e.mu.Unlock()

	strategies := append([]models.ResolutionStrategy{e.cfg.PrimaryStrategy}, e.cfg.FallbackStrategies...)
	for _, strat := range strategies {
		if winner, ok := e.applyStrategy(strat, group); ok {
			conflict.Resolved = true
			conflict.ResolvedAt = time.Now()
			conflict.Strategy = strat
			conflict.Resolution = winner.Version
			return winner, conflict, strat, false
		}
	}

	if !e.cfg.AllowUserPrompts {
		conflict.Strategy = models.StrategyManualResolution
		return nil, conflict, models.StrategyManualResolution, true
	}
	return nil, conflict, "", true
}

func specScopes(group []models.DependencySpec) []string {
	out := make([]string, 0, len(group))
	for _, s := range group {
		out = append(out, s.ScopePath)
	}
	return out
}

// applyStrategy evaluates one strategy over group, returning the winning
// LockedDependency and true on success, or (nil, false) when the strategy
// cannot resolve this group (e.g. StrictPinning sees conflicting pins).
func (e *Engine) applyStrategy(strat models.ResolutionStrategy, group []models.DependencySpec) (*models.LockedDependency, bool) {
	switch strat {
	case models.StrategyPinnedVersion:
		return e.resolvePinned(group)
	case models.StrategyLatestCompatible:
		return e.resolveLatestCompatible(group)
	case models.StrategySmartSelection:
		return e.resolveSmartSelection(group)
	case models.StrategyConservative:
		return e.resolveConservative(group)
	case models.StrategyAggressive:
		return e.resolveAggressive(group)
	case models.StrategyHybrid:
		return e.resolveHybrid(group)
	case models.StrategyHistoryTracking:
		return e.resolveHistoryTracking(group)
	case models.StrategyAutomatic:
		return e.resolveAutomatic(group)
	case models.StrategyManualResolution:
		return nil, false
	default:
		return nil, false
	}
}

func lockFrom(spec models.DependencySpec, version string) *models.LockedDependency {
	return &models.LockedDependency{
		Version:            version,
		DependencyType:     spec.DepType,
		IsTransitive:       spec.IsTransitive,
		OriginalConstraint: spec.OriginalConstraint,
		Metadata:           spec.Metadata,
	}
}

// resolvePinned honours a declared pin (a spec whose VersionConstraint has
// no range operators) and rejects the group if more than one distinct pin
// is present (StrictPinning) or no pin exists at all.
func (e *Engine) resolvePinned(group []models.DependencySpec) (*models.LockedDependency, bool) {
	pins := map[string]models.DependencySpec{}
	for _, s := range group {
		if isExactPin(s.VersionConstraint) {
			pins[s.VersionConstraint] = s
		}
	}
	if len(pins) == 0 {
		return nil, false
	}
	if len(pins) > 1 && e.cfg.StrictPinning {
		return nil, false
	}
	winner := tieBreak(pinnedSpecs(pins))
	return lockFrom(winner, winner.VersionConstraint), true
}

func pinnedSpecs(pins map[string]models.DependencySpec) []models.DependencySpec {
	out := make([]models.DependencySpec, 0, len(pins))
	for _, s := range pins {
		out = append(out, s)
	}
	return out
}

func isExactPin(constraint string) bool {
	for _, r := range constraint {
		switch r {
		case '^', '~', '>', '<', '*', 'x', 'X':
			return false
		}
	}
	return constraint != ""
}

// resolveLatestCompatible picks the newest version satisfying every
// constraint in the group. Candidates are compared via their parsed semver
// lower bounds; non-semver strings fall back to lexical comparison. Under
// StrictPinning a group containing an exact pin is left unresolved here so
// that PinnedVersion decides it.
func (e *Engine) resolveLatestCompatible(group []models.DependencySpec) (*models.LockedDependency, bool) {
	if e.cfg.StrictPinning {
		for _, s := range group {
			if isExactPin(s.VersionConstraint) {
				return nil, false
			}
		}
	}
	best := group[0]
	for _, s := range group[1:] {
		if compareVersions(constraintVersion(s.VersionConstraint), constraintVersion(best.VersionConstraint)) > 0 {
			best = s
		}
	}
	for _, s := range group {
		if !satisfiesConstraint(constraintVersion(best.VersionConstraint), s.VersionConstraint) {
			return nil, false
		}
	}
	return lockFrom(best, constraintVersion(best.VersionConstraint)), true
}

// resolveSmartSelection scores each candidate by compatibility-with-group
// (fraction of other constraints it satisfies) plus a stability bonus, and
// accepts the top scorer if it clears CompatibilityThreshold.
func (e *Engine) resolveSmartSelection(group []models.DependencySpec) (*models.LockedDependency, bool) {
	type scored struct {
		spec  models.DependencySpec
		score float64
	}
	var best scored
	for _, candidate := range group {
		v := constraintVersion(candidate.VersionConstraint)
		satisfied := 0
		for _, other := range group {
			if satisfiesConstraint(v, other.VersionConstraint) {
				satisfied++
			}
		}
		score := float64(satisfied) / float64(len(group))
		if e.cfg.PreferStable && isStable(v) {
			score += 0.1
		}
		if score > best.score {
			best = scored{spec: candidate, score: score}
		}
	}
	if best.score < e.cfg.CompatibilityThreshold {
		return nil, false
	}
	v := constraintVersion(best.spec.VersionConstraint)
	return lockFrom(best.spec, v), true
}

// resolveConservative prefers the lowest (already-deployed-looking) version
// among candidates, minimizing change.
func (e *Engine) resolveConservative(group []models.DependencySpec) (*models.LockedDependency, bool) {
	best := group[0]
	for _, s := range group[1:] {
		if compareVersions(constraintVersion(s.VersionConstraint), constraintVersion(best.VersionConstraint)) < 0 {
			best = s
		}
	}
	return lockFrom(best, constraintVersion(best.VersionConstraint)), true
}

// resolveAggressive always upgrades to the newest version present.
func (e *Engine) resolveAggressive(group []models.DependencySpec) (*models.LockedDependency, bool) {
	best := group[0]
	for _, s := range group[1:] {
		if compareVersions(constraintVersion(s.VersionConstraint), constraintVersion(best.VersionConstraint)) > 0 {
			best = s
		}
	}
	return lockFrom(best, constraintVersion(best.VersionConstraint)), true
}

// resolveHybrid applies Conservative when any spec in the group is
// Required, LatestCompatible otherwise.
func (e *Engine) resolveHybrid(group []models.DependencySpec) (*models.LockedDependency, bool) {
	for _, s := range group {
		if s.DepType == models.DepRequired {
			return e.resolveConservative(group)
		}
	}
	return e.resolveLatestCompatible(group)
}

// resolveHistoryTracking consults prior resolutions for this dependency
// path and re-applies the same version if it still satisfies every
// constraint in the current group, for consistency across runs.
func (e *Engine) resolveHistoryTracking(group []models.DependencySpec) (*models.LockedDependency, bool) {
	e.historyMu.Lock()
	entries := e.history[group[0].Path]
	e.historyMu.Unlock()
	if len(entries) == 0 {
		return nil, false
	}
	last := entries[len(entries)-1]
	for _, s := range group {
		if !satisfiesConstraint(last.Version, s.VersionConstraint) {
			return nil, false
		}
	}
	return lockFrom(group[0], last.Version), true
}

// resolveAutomatic picks among the other strategies per conflict class:
// prefer a pin if one exists and is unambiguous, else latest-compatible,
// else smart selection.
func (e *Engine) resolveAutomatic(group []models.DependencySpec) (*models.LockedDependency, bool) {
	if d, ok := e.resolvePinned(group); ok {
		return d, ok
	}
	if d, ok := e.resolveLatestCompatible(group); ok {
		return d, ok
	}
	return e.resolveSmartSelection(group)
}

func (e *Engine) recordHistory(path string, strategy models.ResolutionStrategy, version string) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.history[path] = append(e.history[path], ResolutionEntry{
		DependencyPath: path,
		Strategy:       strategy,
		Version:        version,
		Timestamp:      time.Now(),
	})
}

// tieBreak applies the tie-break order: (1) higher Priority,
// (2) DependencyType rank (Required > Peer > Optional > Development >
// Build), (3) shorter ScopePath, (4) lexicographic Path.
func tieBreak(specs []models.DependencySpec) models.DependencySpec {
	best := specs[0]
	for _, s := range specs[1:] {
		if isBetterTieBreak(s, best) {
			best = s
		}
	}
	return best
}

func isBetterTieBreak(a, b models.DependencySpec) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if ra, rb := a.DepType.Rank(), b.DepType.Rank(); ra != rb {
		return ra < rb
	}
	if len(a.ScopePath) != len(b.ScopePath) {
		return len(a.ScopePath) < len(b.ScopePath)
	}
	return a.Path < b.Path
}
