package policy

import (
	"fmt"
	"time"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for settings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for settings that break packaging or distribution.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a severity name.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Rank orders severities from info (0) to critical (3). Unknown values rank
// below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// Policy represents a policy rule with its Rego code. The module must define
// a deny set; each element is either a message string or an object with
// message, and optionally severity and key.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single finding against one target.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Target is the target whose settings violated the policy.
	Target string `json:"target"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Key is the build setting the violation is about, when the policy names one.
	Key string `json:"key,omitempty"`
}

func (v Violation) String() string {
	if v.Key != "" {
		return fmt.Sprintf("[%s] %s: %s (%s, %s)", v.Severity, v.Target, v.Message, v.Policy, v.Key)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", v.Severity, v.Target, v.Message, v.Policy)
}

// Result represents the result of policy evaluation over one or more targets.
type Result struct {
	// Passed is false when any violation reaches the fail-on severity.
	Passed bool `json:"passed"`

	// FailOn is the threshold Passed was computed against.
	FailOn Severity `json:"fail_on"`

	// Violations lists all violations in target then policy order.
	Violations []Violation `json:"violations,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Targets is the number of targets evaluated.
	Targets int `json:"targets"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Count returns the number of violations at exactly severity s.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// Input is the document policies see as input.
type Input struct {
	Target        string            `json:"target"`
	Action        string            `json:"action"`
	Scheme        string            `json:"scheme"`
	Configuration string            `json:"configuration"`
	Project       string            `json:"project"`
	Settings      map[string]string `json:"settings"`
}

// NewInput builds the policy input for one target's settings.
func NewInput(settings *buildsettings.BuildSettings) Input {
	return Input{
		Target:        settings.Target,
		Action:        settings.Action.String(),
		Scheme:        settings.Arguments.Scheme,
		Configuration: settings.Arguments.Configuration,
		Project:       settings.Arguments.Project.Path,
		Settings:      settings.Settings(),
	}
}
