package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/telemetry"
)

// Dispatcher walks archived plans and hands dependency-ready subtasks to the
// queue surface. Dispatch is idempotent: a queue item that already exists is
// reconciled into local state and never written twice.
type Dispatcher struct {
	archive PlanArchive
	states  StateAccess
	queue   QueueWriter
	events  EventRecorder
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher over the given plan archive, dispatch
// state store, and queue surface.
func NewDispatcher(archive PlanArchive, states StateAccess, queue QueueWriter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		archive: archive,
		states:  states,
		queue:   queue,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		now:     time.Now,
	}
}

// WithEvents attaches an audit event recorder. Event failures are logged
// and never fail a dispatch pass.
func (d *Dispatcher) WithEvents(rec EventRecorder) *Dispatcher {
	d.events = rec
	return d
}

// WithMetrics attaches a metrics collector.
func (d *Dispatcher) WithMetrics(m *telemetry.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// DispatchReady performs one dispatch pass over the plan: every pending
// subtask whose dependencies are all complete is written to the queue and
// marked queued. It returns the ids of subtasks queued by THIS pass;
// reconciled conflicts are not counted.
func (d *Dispatcher) DispatchReady(ctx context.Context, planID string) ([]string, error) {
	if d.metrics != nil {
		timer := telemetry.NewTimer(d.metrics.DispatchDuration, "pass")
		defer timer.ObserveDuration()
	}

	plan, err := d.archive.Load(ctx, planID)
	if err != nil {
		return nil, err
	}
	state, err := d.states.Load(planID)
	if err != nil {
		return nil, err
	}
	if state.Abandoned {
		d.logger.Info().Str("plan_id", planID).Msg("plan abandoned, nothing to dispatch")
		return nil, nil
	}

	ordered, err := TopologicalOrder(plan)
	if err != nil {
		return nil, err
	}

	plannedBy := planProvenance(plan)
	logger := d.logger.With().Str("plan_id", planID).Logger()

	var queued []string
	dirty := false
	for i := range ordered {
		sub := &ordered[i]
		st := state.Subtasks[sub.ID]
		if st == nil {
			logger.Warn().Str("subtask_id", sub.ID).Msg("subtask missing from dispatch state, skipping")
			continue
		}
		if st.Status != StatusPending || !d.depsComplete(state, sub) {
			continue
		}

		item := d.buildQueueItem(plan, sub, st, plannedBy)
		err := d.queue.Enqueue(ctx, item)
		switch {
		case err == nil:
			st.Status = StatusQueued
			st.QueuedTaskID = item.ID
			st.QueuedAt = d.now().UnixMilli()
			dirty = true
			queued = append(queued, sub.ID)
			logger.Info().
				Str("subtask_id", sub.ID).
				Str("queue_item", item.ID).
				Int("attempt", st.Attempts+1).
				Msg("subtask queued")
			d.recordEvent(ctx, planID, sub.ID, EventSubtaskQueued, item.ID)
			if d.metrics != nil {
				d.metrics.SubtasksQueued.WithLabelValues(string(sub.Agent)).Inc()
			}
		case IsConflict(err):
			// The queue file already exists from a previous pass. The
			// existing item is authoritative; fold it into local state.
			st.Status = StatusQueued
			if st.QueuedTaskID == "" {
				st.QueuedTaskID = item.ID
			}
			if st.QueuedAt == 0 {
				st.QueuedAt = d.now().UnixMilli()
			}
			dirty = true
			logger.Debug().
				Str("subtask_id", sub.ID).
				Str("queue_item", item.ID).
				Msg("queue item already exists, reconciled state")
		default:
			if dirty {
				if saveErr := d.states.Save(state); saveErr != nil {
					logger.Error().Err(saveErr).Msg("failed to save dispatch state after enqueue error")
				}
			}
			return queued, err
		}
	}

	if dirty {
		if err := d.states.Save(state); err != nil {
			return queued, err
		}
	}
	return queued, nil
}

// Watch repeatedly dispatches until the plan reaches a terminal state. A
// non-positive maxWait means no deadline; a non-positive interval uses a
// 5 second default.
func (d *Dispatcher) Watch(ctx context.Context, planID string, interval, maxWait time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var deadline <-chan time.Time
	if maxWait > 0 {
		t := time.NewTimer(maxWait)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchReady(ctx, planID); err != nil && !IsRetryable(err) {
			return err
		}

		state, err := d.states.Load(planID)
		if err != nil {
			if !IsRetryable(err) {
				return err
			}
		} else if state.Abandoned || state.AllTerminal() {
			d.logger.Info().
				Str("plan_id", planID).
				Str("status", string(state.PlanStatus())).
				Msg("watch finished")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return NewTransientError(
				fmt.Sprintf("plan did not reach a terminal state within %s", maxWait),
				nil,
			).WithCode(ErrCodeTimeout).WithPlan(planID)
		case <-ticker.C:
		}
	}
}

// depsComplete reports whether every dependency of the subtask is complete.
func (d *Dispatcher) depsComplete(state *DispatchState, sub *Subtask) bool {
	for _, dep := range sub.DependsOn {
		st := state.Subtasks[dep]
		if st == nil || st.Status != StatusComplete {
			return false
		}
	}
	return true
}

// buildQueueItem assembles the self-contained work document for a subtask.
// Retried subtasks get a rerun directive appended to the prompt carrying the
// previous failure summary.
func (d *Dispatcher) buildQueueItem(plan *Plan, sub *Subtask, st *SubtaskState, plannedBy string) *QueueItem {
	prompt := sub.Prompt
	if st.Attempts > 0 {
		prompt = AppendRerunDirective(prompt, st.Attempts, st.LastFailure)
	}

	return &QueueItem{
		ID:          QueueItemID(plan.PlanID, sub.ID),
		Repo:        plan.Repo,
		Title:       sub.Title,
		Description: sub.Description,
		Agent:       sub.Agent,
		Model:       sub.Model,
		Effort:      sub.Effort,
		Prompt:      prompt,
		RequestedBy: plan.RequestedBy,
		RequestedAt: plan.RequestedAt,
		Metadata: QueueMetadata{
			PlanID:           plan.PlanID,
			SubtaskID:        sub.ID,
			DependsOn:        sub.DependsOn,
			WorktreeStrategy: sub.WorktreeStrategy,
			FilesHint:        sub.FilesHint,
			PlannedBy:        plannedBy,
			DefinitionOfDone: sub.DefinitionOfDone,
			PlanVersion:      plan.Version,
			Objective:        plan.Objective,
			Constraints:      plan.Constraints,
			Context:          plan.Context,
		},
	}
}

func (d *Dispatcher) recordEvent(ctx context.Context, planID, subtaskID, kind, detail string) {
	if d.events == nil {
		return
	}
	if err := d.events.RecordEvent(ctx, planID, subtaskID, kind, detail); err != nil {
		d.logger.Warn().Err(err).Str("kind", kind).Msg("failed to record event")
	}
}

// planProvenance derives the plannedBy marker from the plan's recorded
// planner context.
func planProvenance(plan *Plan) string {
	if planner, ok := plan.Context["planner"].(map[string]interface{}); ok {
		if strategy, ok := planner["strategy"].(string); ok && strategy == PlannerStrategy {
			return PlannedByEngine
		}
	}
	return PlannedByFallback
}
