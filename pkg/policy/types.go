package policy

import (
	"time"

	"github.com/portside/portside/pkg/desired"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do
	// not block a run.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block a run before any remote
	// write happens.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must never be overridden.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a finding of this severity aborts the run.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations; a deny entry
	// may carry its own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that produced the violation.
	Policy string `json:"policy"`

	// Subject is what the violation is about, typically a mapping kind
	// or a blueprint identifier.
	Subject string `json:"subject,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result represents the result of evaluating all enabled policies
// against one input document.
type Result struct {
	// Allowed is false when any violation carries a blocking severity.
	Allowed bool `json:"allowed"`

	// Violations lists all deny entries produced, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies whose evaluation itself failed.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Blocking returns the violations that abort a run.
func (r *Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity.Blocks() {
			out = append(out, v)
		}
	}
	return out
}

// Advisory returns the violations that are logged but do not block.
func (r *Result) Advisory() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if !v.Severity.Blocks() {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document policies evaluate against. It is built once
// per run, before any remote call.
type Input struct {
	// Desired summarizes the local desired state.
	Desired *DesiredSummary `json:"desired,omitempty"`

	// Context carries the run options relevant to policy decisions.
	Context *Context `json:"context"`
}

// DesiredSummary is the policy-facing view of the desired state:
// mapping kinds, entity expressions, and blueprint identifiers.
type DesiredSummary struct {
	// Kinds are the mapping kinds in document order, duplicates
	// included so policies can detect them.
	Kinds []string `json:"kinds"`

	// Mappings summarizes each resource mapping.
	Mappings []MappingSummary `json:"mappings"`

	// Blueprints are the identifiers declared in blueprints.json.
	Blueprints []string `json:"blueprints"`
}

// MappingSummary is one resource mapping as policies see it. The
// expression payloads stay untyped; absent expressions are omitted so
// Rego can test for them with `not`.
type MappingSummary struct {
	Kind       string      `json:"kind"`
	Identifier interface{} `json:"identifier,omitempty"`
	Title      interface{} `json:"title,omitempty"`
	Blueprint  interface{} `json:"blueprint,omitempty"`
}

// Context provides run context for policy evaluation.
type Context struct {
	// Operation is the verb being performed, e.g. "install",
	// "validate", "drift".
	Operation string `json:"operation,omitempty"`

	// ForceRecreate indicates the run may delete and recreate the
	// live integration.
	ForceRecreate bool `json:"force_recreate"`

	// DryRun indicates no remote writes will happen.
	DryRun bool `json:"dry_run"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// Summarize builds the policy-facing view of a loaded desired state.
func Summarize(st *desired.State) *DesiredSummary {
	summary := &DesiredSummary{
		Kinds:      []string{},
		Mappings:   []MappingSummary{},
		Blueprints: []string{},
	}
	if st == nil {
		return summary
	}

	summary.Kinds = st.Config.Kinds()
	for _, r := range st.Config.Resources {
		summary.Mappings = append(summary.Mappings, MappingSummary{
			Kind:       r.Kind,
			Identifier: r.Entity.Identifier,
			Title:      r.Entity.Title,
			Blueprint:  r.Entity.Blueprint,
		})
	}
	for _, bp := range st.Blueprints {
		if id, ok := bp["identifier"].(string); ok {
			summary.Blueprints = append(summary.Blueprints, id)
		}
	}
	return summary
}
