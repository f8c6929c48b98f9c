package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		check     func(error) bool
		retryable bool
	}{
		{"policy", NewPolicyError("blocked", nil), IsPolicy, false},
		{"validation", NewValidationError("bad plan", nil), IsValidation, false},
		{"conflict", NewConflictError("exists", nil), IsConflict, true},
		{"transient", NewTransientError("registry down", nil), IsTransient, true},
		{"execution", NewExecutionError("agent failed", nil), IsExecution, true},
		{"permanent", NewPermanentError("corrupt", nil), IsPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("class predicate rejected its own error: %v", tt.err)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestErrorClassSurvivesWrapping(t *testing.T) {
	inner := NewConflictError("queue item already exists", nil).WithCode(ErrCodeAlreadyExists)
	wrapped := fmt.Errorf("dispatch pass: %w", inner)

	if !IsConflict(wrapped) {
		t.Error("IsConflict() lost the class through wrapping")
	}
	var e *Error
	if !errors.As(wrapped, &e) || e.Code != ErrCodeAlreadyExists {
		t.Errorf("unwrapped code = %v, want %s", e, ErrCodeAlreadyExists)
	}
}

func TestErrorMessageIncludesScope(t *testing.T) {
	err := NewTransientError("read failed", errors.New("eof")).
		WithPlan("p1").
		WithSubtask("S2")

	msg := err.Error()
	for _, want := range []string{"[transient]", "plan=p1", "subtask=S2", "eof"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestClassPredicatesRejectPlainErrors(t *testing.T) {
	plain := errors.New("plain")
	if IsPolicy(plain) || IsValidation(plain) || IsConflict(plain) ||
		IsTransient(plain) || IsExecution(plain) || IsPermanent(plain) || IsRetryable(plain) {
		t.Error("class predicate matched an unclassified error")
	}
}
