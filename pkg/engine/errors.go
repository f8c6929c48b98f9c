// Package engine provides the core types and pipeline of the orchestration
// control plane: plan validation, phased planning, dependency-aware dispatch,
// and bounded retry supervision.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an orchestration error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassPolicy indicates a request blocked by the pre-flight safety
	// filter. Never retried; no artifacts are written.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassValidation indicates a structural, referential, cyclic, or
	// size-bound failure in a candidate plan. The plan is never archived.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassConflict indicates an already-existing durable artifact
	// (archived plan, queue file). Recovered locally by treating the
	// existing artifact as authoritative.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassTransient indicates a temporary failure of an external
	// collaborator (registry unavailable, timeout). Retried on the next
	// poll tick.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassExecution indicates the downstream execution signal reported
	// failure. Handled by the supervisor's bounded retry policy.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassPermanent indicates a non-recoverable error.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error is a classified orchestration error with context.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// PlanID is the plan the error relates to, if applicable.
	PlanID string `json:"planId,omitempty"`

	// SubtaskID is the subtask the error relates to, if applicable.
	SubtaskID string `json:"subtaskId,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	scope := ""
	if e.PlanID != "" {
		scope = fmt.Sprintf(" (plan=%s", e.PlanID)
		if e.SubtaskID != "" {
			scope += fmt.Sprintf(", subtask=%s", e.SubtaskID)
		}
		scope += ")"
	} else if e.SubtaskID != "" {
		scope = fmt.Sprintf(" (subtask=%s)", e.SubtaskID)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s%s: %s", e.Class, e.Message, scope, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, scope)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewPolicyError creates a new policy-rejection error.
func NewPolicyError(message string, err error) *Error {
	return &Error{Class: ErrorClassPolicy, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewExecutionError creates a new execution-failure error.
func NewExecutionError(message string, err error) *Error {
	return &Error{Class: ErrorClassExecution, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithCode adds an error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithPlan adds plan context.
func (e *Error) WithPlan(planID string) *Error {
	e.PlanID = planID
	return e
}

// WithSubtask adds subtask context.
func (e *Error) WithSubtask(subtaskID string) *Error {
	e.SubtaskID = subtaskID
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsPolicy returns true if the error is a policy rejection.
func IsPolicy(err error) bool { return hasClass(err, ErrorClassPolicy) }

// IsValidation returns true if the error is a validation failure.
func IsValidation(err error) bool { return hasClass(err, ErrorClassValidation) }

// IsConflict returns true if the error is a conflict.
func IsConflict(err error) bool { return hasClass(err, ErrorClassConflict) }

// IsTransient returns true if the error is transient.
func IsTransient(err error) bool { return hasClass(err, ErrorClassTransient) }

// IsExecution returns true if the error is a downstream execution failure.
func IsExecution(err error) bool { return hasClass(err, ErrorClassExecution) }

// IsPermanent returns true if the error is permanent.
func IsPermanent(err error) bool { return hasClass(err, ErrorClassPermanent) }

// IsRetryable returns true if the error self-heals on a later tick.
// Transient and execution errors are retryable; conflicts resolve by
// treating the existing artifact as authoritative.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsExecution(err) || IsConflict(err)
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodePolicy        = "POLICY_VIOLATION"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeCycle         = "DEPENDENCY_CYCLE"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodePlanner       = "PLANNER_ERROR"
	ErrCodeRetryBudget   = "RETRY_BUDGET_EXHAUSTED"
	ErrCodeAbandoned     = "PLAN_ABANDONED"
)
