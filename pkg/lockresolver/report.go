package lockresolver

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// ReportFormat selects the output shape of a Report.
type ReportFormat string

const (
	FormatText  ReportFormat = "text"
	FormatJSON  ReportFormat = "json"
	FormatYAML  ReportFormat = "yaml"
	FormatJUnit ReportFormat = "junit" // CI-only
)

// Report is the format-independent result of a lock CLI operation.
type Report struct {
	Command    string   `json:"command" yaml:"command"`
	Success    bool     `json:"success" yaml:"success"`
	Errors     []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Violations []string `json:"violations,omitempty" yaml:"violations,omitempty"`

	LockFile *models.LockFile       `json:"lock_file,omitempty" yaml:"lock_file,omitempty"`
	Diff     *models.LockDiffResult `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Render serializes r in the requested format.
func Render(r *Report, format ReportFormat) (string, error) {
	switch format {
	case FormatText, "":
		return renderText(r), nil
	case FormatJSON:
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b) + "\n", nil
	case FormatYAML:
		b, err := yaml.Marshal(r)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case FormatJUnit:
		return renderJUnit(r)
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

func renderText(r *Report) string {
	var b strings.Builder
	status := "OK"
	if !r.Success {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "%s: %s\n", r.Command, status)

	if r.LockFile != nil {
		m := r.LockFile.Metadata
		fmt.Fprintf(&b, "  scopes: %d  dependencies: %d  circular: %d  status: %s\n",
			m.TotalScopes, m.TotalDependencies, m.CircularDependencies, m.ValidationStatus)
		fmt.Fprintf(&b, "  checksum: %s\n", r.LockFile.Checksum)
	}
	if r.Diff != nil {
		fmt.Fprintf(&b, "  added: %d  removed: %d  updated: %d\n",
			len(r.Diff.Added), len(r.Diff.Removed), len(r.Diff.Updated))
		for _, s := range r.Diff.Scopes {
			for _, d := range s.Dependencies {
				switch {
				case d.Added:
					fmt.Fprintf(&b, "  + %s/%s %s\n", s.Scope, d.Name, d.ToVersion)
				case d.Removed:
					fmt.Fprintf(&b, "  - %s/%s %s\n", s.Scope, d.Name, d.FromVersion)
				default:
					fmt.Fprintf(&b, "  ~ %s/%s %s -> %s\n", s.Scope, d.Name, d.FromVersion, d.ToVersion)
				}
			}
		}
	}
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "  violation: %s\n", v)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  error: %s\n", e)
	}
	return b.String()
}

// junitTestSuite is the minimal JUnit XML shape CI systems ingest.
type junitTestSuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string        `xml:"name,attr"`
	Failure *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
}

func renderJUnit(r *Report) (string, error) {
	suite := junitTestSuite{Name: "lock-" + r.Command}

	addCase := func(name, failure string) {
		tc := junitTestCase{Name: name}
		if failure != "" {
			tc.Failure = &junitFailure{Message: failure}
			suite.Failures++
		}
		suite.Cases = append(suite.Cases, tc)
		suite.Tests++
	}

	if len(r.Errors) == 0 && len(r.Violations) == 0 {
		addCase(r.Command, "")
	}
	for i, e := range r.Errors {
		addCase(fmt.Sprintf("%s.error.%d", r.Command, i), e)
	}
	for i, v := range r.Violations {
		addCase(fmt.Sprintf("%s.violation.%d", r.Command, i), v)
	}

	b, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(b) + "\n", nil
}
