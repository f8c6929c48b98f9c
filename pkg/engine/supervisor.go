package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/telemetry"
)

// Supervisor closes the execution loop: it polls the outcome source for
// dispatched subtasks, marks successes complete, and re-arms failures for
// another dispatch until the retry budget runs out.
type Supervisor struct {
	archive    PlanArchive
	states     StateAccess
	outcomes   OutcomeSource
	dispatcher *Dispatcher
	events     EventRecorder
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// NewSupervisor creates a supervisor over the given archive, state store,
// and outcome source.
func NewSupervisor(archive PlanArchive, states StateAccess, outcomes OutcomeSource, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		archive:  archive,
		states:   states,
		outcomes: outcomes,
		logger:   logger.With().Str("component", "supervisor").Logger(),
		now:      time.Now,
	}
}

// WithDispatcher lets the supervise loop re-dispatch subtasks it has reset
// to pending, so retries flow without a separate dispatch process.
func (s *Supervisor) WithDispatcher(d *Dispatcher) *Supervisor {
	s.dispatcher = d
	return s
}

// WithEvents attaches an audit event recorder.
func (s *Supervisor) WithEvents(rec EventRecorder) *Supervisor {
	s.events = rec
	return s
}

// WithMetrics attaches a metrics collector.
func (s *Supervisor) WithMetrics(m *telemetry.Metrics) *Supervisor {
	s.metrics = m
	return s
}

// Tick performs one supervision pass: read the outcome signals visible for
// the plan and fold them into dispatch state. Successes become complete.
// Failures increment the attempt counter and go back to pending while the
// budget lasts; at the budget they become terminally failed. Subtasks with
// no signal yet are left queued. Returns the derived plan status.
func (s *Supervisor) Tick(ctx context.Context, planID string) (PlanStatus, error) {
	state, err := s.states.Load(planID)
	if err != nil {
		return "", err
	}
	status := state.PlanStatus()
	if state.Abandoned || state.AllTerminal() {
		return status, nil
	}

	if s.metrics != nil {
		timer := telemetry.NewTimer(s.metrics.TickDuration, string(status))
		defer timer.ObserveDuration()
	}

	signals, err := s.outcomes.Outcomes(ctx, planID)
	if err != nil {
		// Transient outcome-source failures resolve on a later tick.
		return status, err
	}

	plan, err := s.archive.Load(ctx, planID)
	if err != nil {
		return status, err
	}

	logger := s.logger.With().Str("plan_id", planID).Logger()
	dirty := false
	for id, st := range state.Subtasks {
		if st.Status != StatusQueued {
			continue
		}
		sig, ok := signals[id]
		if !ok || (!sig.Success && !sig.Failed) {
			continue
		}

		agent := ""
		if sub := plan.SubtaskByID(id); sub != nil {
			agent = string(sub.Agent)
		}

		if sig.Success {
			st.Status = StatusComplete
			st.CompletedAt = s.now().UnixMilli()
			dirty = true
			logger.Info().
				Str("subtask_id", id).
				Str("pr_url", sig.PRURL).
				Msg("subtask complete")
			s.recordEvent(ctx, planID, id, EventSubtaskComplete, sig.PRURL)
			if s.metrics != nil {
				s.metrics.SubtasksComplete.WithLabelValues(agent).Inc()
			}
			continue
		}

		st.Attempts++
		st.LastFailure = sig.Summary
		dirty = true
		if st.Attempts >= st.MaxAttempts {
			st.Status = StatusFailed
			logger.Warn().
				Str("subtask_id", id).
				Int("attempts", st.Attempts).
				Str("failure", sig.Summary).
				Msg("retry budget exhausted, subtask failed")
			s.recordEvent(ctx, planID, id, EventSubtaskFailed, sig.Summary)
			if s.metrics != nil {
				s.metrics.SubtaskFailures.WithLabelValues(agent).Inc()
			}
			continue
		}

		// Back to pending so the next dispatch pass re-queues it with a
		// rerun directive.
		st.Status = StatusPending
		st.QueuedTaskID = ""
		st.QueuedAt = 0
		logger.Info().
			Str("subtask_id", id).
			Int("attempt", st.Attempts).
			Int("max_attempts", st.MaxAttempts).
			Str("failure", sig.Summary).
			Msg("subtask failed, scheduling retry")
		s.recordEvent(ctx, planID, id, EventSubtaskRetry, sig.Summary)
		if s.metrics != nil {
			s.metrics.SubtaskRetries.WithLabelValues(agent).Inc()
		}
	}

	if dirty {
		if err := s.states.Save(state); err != nil {
			return state.PlanStatus(), err
		}
	}
	return state.PlanStatus(), nil
}

// Supervise runs the tick loop until the plan reaches a terminal state or
// the context is cancelled. When a dispatcher is attached, each tick is
// followed by a dispatch pass so retried subtasks go back on the queue.
// A non-positive interval uses a 30 second default.
func (s *Supervisor) Supervise(ctx context.Context, planID string, interval time.Duration) (PlanStatus, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := s.Tick(ctx, planID)
		if err != nil && !IsRetryable(err) {
			return status, err
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("plan_id", planID).Msg("tick failed, will retry")
		}

		if s.dispatcher != nil {
			if _, err := s.dispatcher.DispatchReady(ctx, planID); err != nil && !IsRetryable(err) {
				return status, err
			}
		}

		// A failed subtask does not stop its independent siblings, so keep
		// supervising until every subtask is terminal.
		if state, err := s.states.Load(planID); err == nil {
			if state.Abandoned || state.AllTerminal() {
				status = state.PlanStatus()
				s.logger.Info().
					Str("plan_id", planID).
					Str("status", string(status)).
					Msg("supervision finished")
				return status, nil
			}
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Abandon marks the plan terminal by operator action. Already-dispatched
// queue items are left for the execution layer; no further dispatch or
// retry happens for this plan.
func (s *Supervisor) Abandon(ctx context.Context, planID, reason string) error {
	state, err := s.states.Load(planID)
	if err != nil {
		return err
	}
	if state.Abandoned {
		return nil
	}
	state.Abandoned = true
	if err := s.states.Save(state); err != nil {
		return err
	}
	s.logger.Info().Str("plan_id", planID).Str("reason", reason).Msg("plan abandoned")
	s.recordEvent(ctx, planID, "", EventPlanAbandoned, reason)
	return nil
}

func (s *Supervisor) recordEvent(ctx context.Context, planID, subtaskID, kind, detail string) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordEvent(ctx, planID, subtaskID, kind, detail); err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("failed to record event")
	}
}
