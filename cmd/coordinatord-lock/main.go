// coordinatord-lock generates, validates, and compares dependency lock
// files using the coordinator's conflict-resolution engine.
//
// Subcommands:
//
//	generate           build a lock file from a dependency spec file
//	validate           verify a lock file's checksum and structure
//	update             regenerate a lock file and report what changed
//	status             print a lock file's metadata and freshness
//	diff               compare two lock files
//	resolve-conflicts  run conflict resolution over a spec file and report
//	ci-validate        validate, defaulting to junit output and strict exits
//	ci-generate        generate under strict validation
//	ci-consistency     check a candidate lock against a reference
//	ci-update          update, failing when anything changed
//	ci-health          fail when the lock file is older than -max-age
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fugue-ai/rhema-coordinator/pkg/conflict"
	"github.com/fugue-ai/rhema-coordinator/pkg/lockresolver"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
	"github.com/fugue-ai/rhema-coordinator/pkg/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	specsPath := fs.String("specs", "dependencies.yaml", "Path to the dependency spec file")
	lockPath := fs.String("lock", "coordinator.lock.yaml", "Path to the lock file")
	refPath := fs.String("reference", "", "Path to the reference lock file (diff/consistency)")
	format := fs.String("format", "", "Report format: text, json, yaml, junit (CI commands default to junit)")
	mode := fs.String("mode", "lenient", "Validation mode: strict or lenient")
	failOnWarnings := fs.Bool("fail-on-warnings", false, "Treat warnings as failures")
	failExitCode := fs.Int("fail-exit-code", 1, "Exit code used for failures")
	allowSemverDiffs := fs.Bool("allow-semver-diffs", false, "Widen consistency equality to semver-compatible upgrades")
	driftMajor := fs.Int("max-drift-major", -1, "Max permitted major version drift (-1 = unlimited)")
	driftMinor := fs.Int("max-drift-minor", -1, "Max permitted minor version drift (-1 = unlimited)")
	driftPatch := fs.Int("max-drift-patch", -1, "Max permitted patch version drift (-1 = unlimited)")
	maxAge := fs.Duration("max-age", 0, "Max lock-file age for ci-health (0 = no limit)")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	opts := cliOptions{
		specsPath:      *specsPath,
		lockPath:       *lockPath,
		refPath:        *refPath,
		format:         lockresolver.ReportFormat(*format),
		mode:           models.ValidationMode(*mode),
		failOnWarnings: *failOnWarnings,
		maxAge:         *maxAge,
		consistency: lockresolver.ConsistencyOptions{
			AllowSemverDiffs: *allowSemverDiffs,
		},
	}
	if *driftMajor >= 0 || *driftMinor >= 0 || *driftPatch >= 0 {
		opts.consistency.MaxVersionDrift = &lockresolver.VersionDrift{
			Major: *driftMajor, Minor: *driftMinor, Patch: *driftPatch,
		}
	}

	report, err := run(cmd, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(*failExitCode)
	}

	out, err := lockresolver.Render(report, opts.format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(*failExitCode)
	}
	fmt.Print(out)

	failed := !report.Success || len(report.Errors) > 0 || len(report.Violations) > 0
	if opts.failOnWarnings && len(report.Warnings) > 0 {
		failed = true
	}
	if failed {
		os.Exit(*failExitCode)
	}
}

type cliOptions struct {
	specsPath      string
	lockPath       string
	refPath        string
	format         lockresolver.ReportFormat
	mode           models.ValidationMode
	failOnWarnings bool
	maxAge         time.Duration
	consistency    lockresolver.ConsistencyOptions
}

func run(cmd string, opts cliOptions) (*lockresolver.Report, error) {
	switch cmd {
	case "generate":
		return generate(opts, opts.mode, true)
	case "validate":
		return validate(opts)
	case "update":
		return update(opts, false)
	case "status":
		return status(opts)
	case "diff":
		return diff(opts)
	case "resolve-conflicts":
		return resolveConflicts(opts)
	case "ci-validate":
		opts.failOnWarnings = true
		ensureCIFormat(&opts)
		return validate(opts)
	case "ci-generate":
		ensureCIFormat(&opts)
		return generate(opts, models.ValidationStrict, true)
	case "ci-consistency":
		ensureCIFormat(&opts)
		return consistency(opts)
	case "ci-update":
		ensureCIFormat(&opts)
		return update(opts, true)
	case "ci-health":
		ensureCIFormat(&opts)
		return health(opts)
	default:
		usage()
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// ensureCIFormat defaults CI commands to junit unless the operator chose
// an explicit format.
func ensureCIFormat(opts *cliOptions) {
	if opts.format == "" {
		opts.format = lockresolver.FormatJUnit
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s lock tool

Usage: coordinatord-lock <command> [flags]

Commands:
  generate | validate | update | status | diff | resolve-conflicts
  ci-validate | ci-generate | ci-consistency | ci-update | ci-health

Run "coordinatord-lock <command> -h" for flags.
`, version.Full())
}

// specFile is the on-disk shape of the dependency spec input.
type specFile struct {
	Dependencies []models.DependencySpec `yaml:"dependencies"`
}

func loadSpecs(path string) ([]models.DependencySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read specs: %w", err)
	}
	var sf specFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse specs: %w", err)
	}
	if len(sf.Dependencies) == 0 {
		return nil, fmt.Errorf("spec file %s lists no dependencies", path)
	}
	return sf.Dependencies, nil
}

func newResolver(mode models.ValidationMode) *lockresolver.Resolver {
	engine := conflict.New(conflict.DefaultConfig())
	return lockresolver.New(engine, mode)
}

func generate(opts cliOptions, mode models.ValidationMode, write bool) (*lockresolver.Report, error) {
	specs, err := loadSpecs(opts.specsPath)
	if err != nil {
		return nil, err
	}

	result, err := newResolver(mode).Generate(context.Background(), specs, version.Full())
	if err != nil {
		return nil, err
	}

	report := &lockresolver.Report{
		Command:  "generate",
		Success:  len(result.Errors) == 0,
		Warnings: result.Warnings,
		LockFile: result.LockFile,
	}
	for _, e := range result.Errors {
		report.Errors = append(report.Errors, e.Error())
	}
	if write && result.LockFile != nil {
		if err := lockresolver.WriteFile(opts.lockPath, result.LockFile); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func validate(opts cliOptions) (*lockresolver.Report, error) {
	lf, err := lockresolver.ReadFile(opts.lockPath)
	if err != nil {
		return nil, err
	}

	report := &lockresolver.Report{Command: "validate", Success: true, LockFile: lf}
	if err := lockresolver.Verify(lf); err != nil {
		report.Success = false
		report.Errors = append(report.Errors, err.Error())
	}
	if lf.Metadata.ValidationStatus == "invalid" {
		report.Success = false
		report.Errors = append(report.Errors, "lock file was generated with validation errors")
	}
	if lf.Metadata.CircularDependencies > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d scope(s) carry circular dependencies", lf.Metadata.CircularDependencies))
	}
	return report, nil
}

func update(opts cliOptions, failOnChange bool) (*lockresolver.Report, error) {
	previous, err := lockresolver.ReadFile(opts.lockPath)
	if err != nil {
		return nil, err
	}

	report, err := generate(opts, opts.mode, true)
	if err != nil {
		return nil, err
	}
	report.Command = "update"

	d := lockresolver.Diff(previous, report.LockFile)
	report.Diff = &d
	if failOnChange && d.Changed {
		report.Success = false
		report.Violations = append(report.Violations, "lock file is out of date with the dependency specs")
	}
	return report, nil
}

func status(opts cliOptions) (*lockresolver.Report, error) {
	lf, err := lockresolver.ReadFile(opts.lockPath)
	if err != nil {
		return nil, err
	}
	report := &lockresolver.Report{Command: "status", Success: true, LockFile: lf}
	if !lockresolver.Fresh(lf, opts.maxAge, time.Now()) {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("lock file generated at %s exceeds max age %s", lf.GeneratedAt.Format(time.RFC3339), opts.maxAge))
	}
	return report, nil
}

func diff(opts cliOptions) (*lockresolver.Report, error) {
	if opts.refPath == "" {
		return nil, fmt.Errorf("diff requires -reference")
	}
	from, err := lockresolver.ReadFile(opts.refPath)
	if err != nil {
		return nil, err
	}
	to, err := lockresolver.ReadFile(opts.lockPath)
	if err != nil {
		return nil, err
	}
	d := lockresolver.Diff(from, to)
	return &lockresolver.Report{Command: "diff", Success: true, Diff: &d}, nil
}

func consistency(opts cliOptions) (*lockresolver.Report, error) {
	if opts.refPath == "" {
		return nil, fmt.Errorf("ci-consistency requires -reference")
	}
	reference, err := lockresolver.ReadFile(opts.refPath)
	if err != nil {
		return nil, err
	}
	candidate, err := lockresolver.ReadFile(opts.lockPath)
	if err != nil {
		return nil, err
	}

	result := lockresolver.CheckConsistency(reference, candidate, opts.consistency)
	return &lockresolver.Report{
		Command:    "consistency",
		Success:    result.Consistent,
		Violations: result.Violations,
		Diff:       &result.Diff,
	}, nil
}

func health(opts cliOptions) (*lockresolver.Report, error) {
	lf, err := lockresolver.ReadFile(opts.lockPath)
	if err != nil {
		return nil, err
	}
	report := &lockresolver.Report{Command: "health", Success: true, LockFile: lf}
	if err := lockresolver.Verify(lf); err != nil {
		report.Success = false
		report.Errors = append(report.Errors, err.Error())
	}
	if !lockresolver.Fresh(lf, opts.maxAge, time.Now()) {
		report.Success = false
		report.Errors = append(report.Errors,
			fmt.Sprintf("lock file generated at %s exceeds max age %s", lf.GeneratedAt.Format(time.RFC3339), opts.maxAge))
	}
	return report, nil
}

func resolveConflicts(opts cliOptions) (*lockresolver.Report, error) {
	specs, err := loadSpecs(opts.specsPath)
	if err != nil {
		return nil, err
	}

	engine := conflict.New(conflict.DefaultConfig())
	result, err := engine.ResolveDependencies(context.Background(), specs)
	if err != nil {
		return nil, err
	}

	report := &lockresolver.Report{
		Command:  "resolve-conflicts",
		Success:  result.Stats.Unresolved == 0,
		Warnings: result.Warnings,
	}
	for _, c := range result.DetectedConflicts {
		line := fmt.Sprintf("%s: %s", c.ResourceID, c.Description)
		if c.Resolved {
			line += fmt.Sprintf(" (resolved via %s)", c.Strategy)
			report.Warnings = append(report.Warnings, line)
		} else {
			report.Violations = append(report.Violations, line)
		}
	}
	if result.Stats.ManualRequired > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d conflict(s) require manual resolution", result.Stats.ManualRequired))
	}
	return report, nil
}
