package engine

// SubtaskState is the dispatch record for one subtask.
type SubtaskState struct {
	// Status is the current lifecycle state.
	Status SubtaskStatus `json:"status"`

	// Attempts counts execution attempts that have failed so far.
	Attempts int `json:"attempts"`

	// MaxAttempts bounds retries. At or over this count the subtask goes
	// terminally failed.
	MaxAttempts int `json:"maxAttempts"`

	// QueuedTaskID is the queue item id of the latest dispatch.
	QueuedTaskID string `json:"queuedTaskId,omitempty"`

	// QueuedAt is the latest dispatch time in epoch milliseconds.
	QueuedAt int64 `json:"queuedAt,omitempty"`

	// CompletedAt is the completion time in epoch milliseconds.
	CompletedAt int64 `json:"completedAt,omitempty"`

	// LastFailure is the most recent failure summary, carried into the
	// rerun directive on the next dispatch.
	LastFailure string `json:"lastFailure,omitempty"`
}

// DispatchState is the single mutable record of a plan's execution
// progress. Archived plan content never changes; only this document
// evolves, and only through Dispatcher and supervisor decisions.
type DispatchState struct {
	// PlanID names the plan this state belongs to.
	PlanID string `json:"planId"`

	// Version increments on every persisted write.
	Version int `json:"version"`

	// Abandoned marks the plan terminal by operator action.
	Abandoned bool `json:"abandoned"`

	// UpdatedAt is the last write time in epoch milliseconds.
	UpdatedAt int64 `json:"updatedAt"`

	// Subtasks maps subtask id to its dispatch record.
	Subtasks map[string]*SubtaskState `json:"subtasks"`
}

// NewDispatchState initializes the record for a freshly archived plan:
// every subtask pending, zero attempts.
func NewDispatchState(plan *Plan, maxAttempts int) *DispatchState {
	state := &DispatchState{
		PlanID:   plan.PlanID,
		Subtasks: make(map[string]*SubtaskState, len(plan.Subtasks)),
	}
	for _, st := range plan.Subtasks {
		state.Subtasks[st.ID] = &SubtaskState{
			Status:      StatusPending,
			MaxAttempts: maxAttempts,
		}
	}
	return state
}

// AllTerminal returns true once every subtask is complete or failed.
func (s *DispatchState) AllTerminal() bool {
	for _, st := range s.Subtasks {
		if !st.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// PlanStatus derives the plan-level status from the subtask records.
func (s *DispatchState) PlanStatus() PlanStatus {
	if s.Abandoned {
		return PlanStatusAbandoned
	}
	anyFailed := false
	allComplete := true
	anyProgress := false
	for _, st := range s.Subtasks {
		switch st.Status {
		case StatusFailed:
			anyFailed = true
			allComplete = false
		case StatusComplete:
			anyProgress = true
		case StatusQueued:
			anyProgress = true
			allComplete = false
		default:
			allComplete = false
			if st.Attempts > 0 {
				anyProgress = true
			}
		}
	}
	switch {
	case anyFailed:
		return PlanStatusFailed
	case allComplete && len(s.Subtasks) > 0:
		return PlanStatusComplete
	case anyProgress:
		return PlanStatusRunning
	default:
		return PlanStatusPending
	}
}

// StateAccess persists DispatchState documents. Implementations must make
// every Save atomic so concurrent readers never see a partial record.
type StateAccess interface {
	Load(planID string) (*DispatchState, error)
	Save(state *DispatchState) error
}
