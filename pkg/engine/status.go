package engine

import "fmt"

// SubtaskStatus tracks a subtask through the dispatch lifecycle.
//
// Transitions:
//
//	pending -> queued            (dispatched)
//	queued  -> complete          (registry reports success)
//	queued  -> pending           (retry-eligible failure, attempts < max)
//	queued  -> failed            (failure with retry budget exhausted)
//
// complete and failed are terminal.
type SubtaskStatus string

const (
	// StatusPending means the subtask has not been handed to the queue, or
	// has been returned to the pool after a retry-eligible failure.
	StatusPending SubtaskStatus = "pending"

	// StatusQueued means a queue item exists and the subtask is awaiting
	// or undergoing execution.
	StatusQueued SubtaskStatus = "queued"

	// StatusComplete means the execution registry reported success.
	StatusComplete SubtaskStatus = "complete"

	// StatusFailed means the subtask failed with no retry budget left.
	StatusFailed SubtaskStatus = "failed"
)

// Validate checks the status is a known value.
func (s SubtaskStatus) Validate() error {
	switch s {
	case StatusPending, StatusQueued, StatusComplete, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid subtask status: %s", s)
	}
}

// IsTerminal returns true once the subtask can never be dispatched again.
func (s SubtaskStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransitionTo reports whether moving to next is a legal state change.
func (s SubtaskStatus) CanTransitionTo(next SubtaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusQueued
	case StatusQueued:
		return next == StatusComplete || next == StatusFailed || next == StatusPending
	default:
		return false
	}
}

// PlanStatus summarizes the whole plan from its subtask states.
type PlanStatus string

const (
	// PlanStatusPending means no subtask has been dispatched yet.
	PlanStatusPending PlanStatus = "pending"

	// PlanStatusRunning means at least one subtask is queued or has made
	// progress and the plan is not yet settled.
	PlanStatusRunning PlanStatus = "running"

	// PlanStatusComplete means every subtask completed.
	PlanStatusComplete PlanStatus = "complete"

	// PlanStatusFailed means at least one subtask is terminally failed.
	PlanStatusFailed PlanStatus = "failed"

	// PlanStatusAbandoned means the plan was abandoned by an operator.
	PlanStatusAbandoned PlanStatus = "abandoned"
)

// IsTerminal returns true if the plan needs no further dispatch or
// supervision work.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusComplete || s == PlanStatusFailed || s == PlanStatusAbandoned
}
