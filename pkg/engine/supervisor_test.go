package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memOutcomes struct {
	signals map[string]OutcomeSignal
	err     error
}

func (o *memOutcomes) Outcomes(_ context.Context, _ string) (map[string]OutcomeSignal, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.signals, nil
}

// queueOutcomes reports success for every subtask whose item is on the queue,
// so a supervise loop with an attached dispatcher runs plans to completion.
type queueOutcomes struct {
	queue *memQueue
}

func (o *queueOutcomes) Outcomes(_ context.Context, planID string) (map[string]OutcomeSignal, error) {
	signals := make(map[string]OutcomeSignal)
	for _, item := range o.queue.items {
		if item.Metadata.PlanID != planID {
			continue
		}
		signals[item.Metadata.SubtaskID] = OutcomeSignal{
			SubtaskID: item.Metadata.SubtaskID,
			Success:   true,
			PRURL:     "https://example.test/pr/1",
		}
	}
	return signals, nil
}

func queuedState(plan *Plan, maxAttempts int, ids ...string) *DispatchState {
	state := NewDispatchState(plan, maxAttempts)
	for _, id := range ids {
		state.Subtasks[id].Status = StatusQueued
		state.Subtasks[id].QueuedTaskID = QueueItemID(plan.PlanID, id)
		state.Subtasks[id].QueuedAt = time.Now().UnixMilli()
	}
	return state
}

func TestTickMarksSuccessComplete(t *testing.T) {
	plan := chainPlan()
	state := queuedState(plan, 3, "S1")
	outcomes := &memOutcomes{signals: map[string]OutcomeSignal{
		"S1": {SubtaskID: "S1", Success: true, PRURL: "https://example.test/pr/7"},
	}}
	events := &memEvents{}
	s := NewSupervisor(newMemArchive(plan), newMemStates(state), outcomes, zerolog.Nop()).WithEvents(events)

	status, err := s.Tick(context.Background(), plan.PlanID)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if status != PlanStatusRunning {
		t.Errorf("Tick() status = %v, want %v (siblings still pending)", status, PlanStatusRunning)
	}
	st := state.Subtasks["S1"]
	if st.Status != StatusComplete {
		t.Errorf("S1 status = %v, want %v", st.Status, StatusComplete)
	}
	if st.CompletedAt == 0 {
		t.Error("S1 CompletedAt not set")
	}
	if got := events.kinds(); len(got) != 1 || got[0] != EventSubtaskComplete {
		t.Errorf("events = %v, want [%s]", got, EventSubtaskComplete)
	}
}

func TestTickRetriesUnderBudget(t *testing.T) {
	plan := chainPlan()
	state := queuedState(plan, 3, "S1")
	outcomes := &memOutcomes{signals: map[string]OutcomeSignal{
		"S1": {SubtaskID: "S1", Failed: true, Summary: "ci red"},
	}}
	events := &memEvents{}
	s := NewSupervisor(newMemArchive(plan), newMemStates(state), outcomes, zerolog.Nop()).WithEvents(events)

	if _, err := s.Tick(context.Background(), plan.PlanID); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	st := state.Subtasks["S1"]
	if st.Status != StatusPending {
		t.Errorf("S1 status = %v, want %v for retry", st.Status, StatusPending)
	}
	if st.Attempts != 1 {
		t.Errorf("S1 attempts = %d, want 1", st.Attempts)
	}
	if st.LastFailure != "ci red" {
		t.Errorf("S1 lastFailure = %q, want %q", st.LastFailure, "ci red")
	}
	if st.QueuedTaskID != "" || st.QueuedAt != 0 {
		t.Error("queue reference not cleared for retry")
	}
	if got := events.kinds(); len(got) != 1 || got[0] != EventSubtaskRetry {
		t.Errorf("events = %v, want [%s]", got, EventSubtaskRetry)
	}
}

func TestTickFailsAtRetryBudget(t *testing.T) {
	plan := chainPlan()
	state := queuedState(plan, 3, "S1")
	state.Subtasks["S1"].Attempts = 2
	outcomes := &memOutcomes{signals: map[string]OutcomeSignal{
		"S1": {SubtaskID: "S1", Failed: true, Summary: "still broken"},
	}}
	events := &memEvents{}
	s := NewSupervisor(newMemArchive(plan), newMemStates(state), outcomes, zerolog.Nop()).WithEvents(events)

	status, err := s.Tick(context.Background(), plan.PlanID)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if status != PlanStatusFailed {
		t.Errorf("Tick() status = %v, want %v", status, PlanStatusFailed)
	}
	st := state.Subtasks["S1"]
	if st.Status != StatusFailed {
		t.Errorf("S1 status = %v, want %v", st.Status, StatusFailed)
	}
	if st.Attempts != 3 {
		t.Errorf("S1 attempts = %d, want 3", st.Attempts)
	}
	if got := events.kinds(); len(got) != 1 || got[0] != EventSubtaskFailed {
		t.Errorf("events = %v, want [%s]", got, EventSubtaskFailed)
	}
}

func TestTickLeavesSubtasksWithoutSignalsQueued(t *testing.T) {
	plan := chainPlan()
	state := queuedState(plan, 3, "S1")
	outcomes := &memOutcomes{signals: map[string]OutcomeSignal{
		// A pending signal: the worker has the item but is not done.
		"S1": {SubtaskID: "S1"},
	}}
	states := newMemStates(state)
	s := NewSupervisor(newMemArchive(plan), states, outcomes, zerolog.Nop())

	if _, err := s.Tick(context.Background(), plan.PlanID); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if got := state.Subtasks["S1"].Status; got != StatusQueued {
		t.Errorf("S1 status = %v, want %v", got, StatusQueued)
	}
	if states.saves != 0 {
		t.Errorf("state saved %d times with nothing to record", states.saves)
	}
}

func TestTickPropagatesTransientOutcomeErrors(t *testing.T) {
	plan := chainPlan()
	state := queuedState(plan, 3, "S1")
	outcomes := &memOutcomes{err: NewTransientError("registry unavailable", nil)}
	s := NewSupervisor(newMemArchive(plan), newMemStates(state), outcomes, zerolog.Nop())

	_, err := s.Tick(context.Background(), plan.PlanID)
	if !IsRetryable(err) {
		t.Errorf("Tick() error = %v, want retryable", err)
	}
	if got := state.Subtasks["S1"].Status; got != StatusQueued {
		t.Errorf("S1 status = %v, want unchanged %v", got, StatusQueued)
	}
}

func TestFailedSubtaskDoesNotStopSiblings(t *testing.T) {
	plan := chainPlan()
	// Give S3 its own root so it is independent of the failing branch.
	plan.Subtasks[2].DependsOn = nil
	state := queuedState(plan, 1, "S1", "S3")
	outcomes := &memOutcomes{signals: map[string]OutcomeSignal{
		"S1": {SubtaskID: "S1", Failed: true, Summary: "budget gone"},
	}}
	s := NewSupervisor(newMemArchive(plan), newMemStates(state), outcomes, zerolog.Nop())

	status, err := s.Tick(context.Background(), plan.PlanID)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if status != PlanStatusFailed {
		t.Errorf("plan status = %v, want %v", status, PlanStatusFailed)
	}
	if state.AllTerminal() {
		t.Error("AllTerminal() = true while S3 is still queued")
	}

	// The independent sibling still completes on a later tick.
	outcomes.signals["S3"] = OutcomeSignal{SubtaskID: "S3", Success: true}
	if _, err := s.Tick(context.Background(), plan.PlanID); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if got := state.Subtasks["S3"].Status; got != StatusComplete {
		t.Errorf("S3 status = %v, want %v", got, StatusComplete)
	}
}

func TestSuperviseRunsPlanToCompletion(t *testing.T) {
	plan := chainPlan()
	states := newMemStates(NewDispatchState(plan, 3))
	queue := newMemQueue()
	archive := newMemArchive(plan)
	dispatcher := NewDispatcher(archive, states, queue, zerolog.Nop())
	s := NewSupervisor(archive, states, &queueOutcomes{queue: queue}, zerolog.Nop()).
		WithDispatcher(dispatcher)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := s.Supervise(ctx, plan.PlanID, time.Millisecond)
	if err != nil {
		t.Fatalf("Supervise() error = %v", err)
	}
	if status != PlanStatusComplete {
		t.Fatalf("Supervise() status = %v, want %v", status, PlanStatusComplete)
	}
	state := states.states[plan.PlanID]
	for id, st := range state.Subtasks {
		if st.Status != StatusComplete {
			t.Errorf("%s status = %v, want %v", id, st.Status, StatusComplete)
		}
	}
	if len(queue.items) != len(plan.Subtasks) {
		t.Errorf("queue holds %d items, want %d", len(queue.items), len(plan.Subtasks))
	}
}

func TestAbandonIsIdempotent(t *testing.T) {
	plan := chainPlan()
	states := newMemStates(NewDispatchState(plan, 3))
	events := &memEvents{}
	s := NewSupervisor(newMemArchive(plan), states, &memOutcomes{}, zerolog.Nop()).WithEvents(events)

	if err := s.Abandon(context.Background(), plan.PlanID, "operator request"); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	state := states.states[plan.PlanID]
	if !state.Abandoned {
		t.Fatal("plan not marked abandoned")
	}
	if state.PlanStatus() != PlanStatusAbandoned {
		t.Errorf("status = %v, want %v", state.PlanStatus(), PlanStatusAbandoned)
	}
	savesAfterFirst := states.saves

	if err := s.Abandon(context.Background(), plan.PlanID, "again"); err != nil {
		t.Fatalf("second Abandon() error = %v", err)
	}
	if states.saves != savesAfterFirst {
		t.Error("second Abandon() rewrote the state")
	}
	if got := events.kinds(); len(got) != 1 || got[0] != EventPlanAbandoned {
		t.Errorf("events = %v, want [%s]", got, EventPlanAbandoned)
	}
}
