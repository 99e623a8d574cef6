package policy

import (
	"time"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are logged but do not block.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block role creation.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never reach IAM.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity reject the documents.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a guardrail with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The module must define a
	// "deny" set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata such as the source file.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was loaded.
	CreatedAt time.Time `json:"created_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Rule identifies the failing rule within the policy.
	Rule string `json:"rule,omitempty"`

	// Document is "trust" or "access".
	Document string `json:"document,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the outcome of checking one document set.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the documents were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document passed to Rego as input.
type Input struct {
	ApplicationID string                `json:"application_id"`
	RoleName      string                `json:"role_name"`
	PolicyName    string                `json:"policy_name"`
	StreamARN     string                `json:"stream_arn"`
	Trust         engine.PolicyDocument `json:"trust"`
	Access        engine.PolicyDocument `json:"access"`
}

// NewInput converts a document check into policy input.
func NewInput(check engine.DocumentCheck) *Input {
	return &Input{
		ApplicationID: check.ApplicationID,
		RoleName:      check.RoleName,
		PolicyName:    check.PolicyName,
		StreamARN:     check.StreamARN,
		Trust:         check.Trust,
		Access:        check.Access,
	}
}
