package policy

import (
	"time"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that make the graph unusable.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity reject the graph.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its package must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the engine.
	Builtin bool `json:"builtin,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the key of the offending declaration, e.g. Exec[apt-get update].
	Resource string `json:"resource,omitempty"`

	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Details contains additional violation details.
	Details map[string]interface{} `json:"details,omitempty"`

	// Remediation provides a suggested fix.
	Remediation string `json:"remediation,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed is false when any violation has a blocking severity.
	Allowed bool `json:"allowed"`

	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedAt       time.Time     `json:"evaluated_at"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`

	Context *PolicyContext `json:"context,omitempty"`
}

// Summary aggregates the result by severity.
func (r *PolicyResult) Summary() *PolicySummary {
	s := &PolicySummary{
		TotalPolicies:        len(r.EvaluatedPolicies),
		TotalViolations:      len(r.Violations),
		ViolationsBySeverity: make(map[Severity]int),
		TotalWarnings:        len(r.Warnings),
		EvaluationDuration:   r.Duration,
	}
	for i := range r.Violations {
		s.ViolationsBySeverity[r.Violations[i].Severity]++
	}
	return s
}

// PolicyInput is the document handed to Rego as input.
type PolicyInput struct {
	Declarations []InputDeclaration `json:"declarations"`
	Edges        []InputEdge        `json:"edges"`

	// Anchors lists caller-owned keys such as the post-install hook.
	Anchors []string `json:"anchors"`

	Context *PolicyContext `json:"context"`
}

// InputDeclaration is a declaration flattened for Rego.
type InputDeclaration struct {
	// ID is the printed key, e.g. Package[mongodb-org].
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Attributes engine.Attributes `json:"attributes"`
}

// InputEdge is an edge with both endpoints resolved through aliases.
type InputEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// RunID links the evaluation to a recipe run.
	RunID string `json:"run_id,omitempty"`

	Strategy string `json:"strategy,omitempty"`
	Version  string `json:"version,omitempty"`
	Distro   string `json:"distro,omitempty"`
	Release  string `json:"release,omitempty"`

	// Operation is the caller, e.g. "validate" or "watch".
	Operation string `json:"operation,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Policies    []Policy  `json:"policies"`
	CreatedAt   time.Time `json:"created_at"`
}

// PolicySummary provides aggregate statistics for policy evaluation.
type PolicySummary struct {
	TotalPolicies        int              `json:"total_policies"`
	TotalViolations      int              `json:"total_violations"`
	ViolationsBySeverity map[Severity]int `json:"violations_by_severity"`
	TotalWarnings        int              `json:"total_warnings"`
	EvaluationDuration   time.Duration    `json:"evaluation_duration"`
}
