package policy

import (
	"time"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the request.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never pass.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego" yaml:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity" yaml:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Field names the request field the violation was found in, if any.
	Field string `json:"field,omitempty"`
}

// Result represents the outcome of screening a task request.
type Result struct {
	// Allowed indicates if the request may proceed to planning.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations found.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the request.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the screening happened.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the document handed to Rego evaluation.
type Input struct {
	// Request is the task request being screened.
	Request *engine.TaskRequest `json:"request"`

	// Context provides additional evaluation context.
	Context *EvalContext `json:"context"`
}

// EvalContext provides context information for policy evaluation.
type EvalContext struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is always "plan" for pre-flight screening.
	Operation string `json:"operation,omitempty"`
}
