package engine

import "context"

// PolicyFilter screens a task request before any planning work happens.
// A rejection means no plan is produced and no artifacts are written.
type PolicyFilter interface {
	// Check returns a policy-class error if the request is blocked.
	Check(ctx context.Context, req *TaskRequest) error
}

// Classification is the planner's read of a task request.
type Classification struct {
	// DocsOnly means the request touches documentation surfaces only.
	DocsOnly bool

	// AnalysisOnly means the request asks for investigation, not changes.
	AnalysisOnly bool
}

// Classifier can override the builtin request classification. Implementations
// return ok=false to defer to the builtin heuristics.
type Classifier interface {
	Classify(ctx context.Context, req *TaskRequest) (c Classification, ok bool, err error)
}

// PlanArchive persists validated plans and owns them afterwards.
type PlanArchive interface {
	// Archive writes the plan, its subtask records, and a fresh dispatch
	// state. Archiving an existing planId is a conflict.
	Archive(ctx context.Context, plan *Plan) error

	// Load returns an archived plan by id.
	Load(ctx context.Context, planID string) (*Plan, error)
}

// OutcomeSignal is one execution observation for a dispatched subtask.
type OutcomeSignal struct {
	// SubtaskID is the subtask the signal belongs to.
	SubtaskID string

	// Success is true when the downstream execution finished cleanly.
	Success bool

	// Failed is true when the downstream execution failed. A signal with
	// neither flag set means execution is still pending.
	Failed bool

	// Summary carries the failure note, if any.
	Summary string

	// PRURL links to the change the execution produced, when known.
	PRURL string
}

// OutcomeSource reads execution outcomes from the external collaborator.
type OutcomeSource interface {
	// Outcomes returns the signals currently visible for a plan, keyed by
	// subtask id. Missing subtasks mean no signal yet.
	Outcomes(ctx context.Context, planID string) (map[string]OutcomeSignal, error)
}

// QueueWriter hands finished queue items to the execution surface.
type QueueWriter interface {
	// Enqueue writes the item exactly once. Returns a conflict error if an
	// item with the same id already exists on the queue surface.
	Enqueue(ctx context.Context, item *QueueItem) error
}

// EventRecorder appends advisory audit events. Failures are logged and
// ignored by callers; correctness never depends on the event log.
type EventRecorder interface {
	RecordEvent(ctx context.Context, planID, subtaskID, kind, detail string) error
}

// Event kinds recorded by the pipeline.
const (
	EventPlanArchived     = "plan_archived"
	EventSubtaskQueued    = "subtask_queued"
	EventSubtaskComplete  = "subtask_complete"
	EventSubtaskRetry     = "subtask_retry"
	EventSubtaskFailed    = "subtask_failed"
	EventPlanAbandoned    = "plan_abandoned"
	EventPolicyViolation  = "policy_violation"
	EventValidationFailed = "validation_failed"
)
