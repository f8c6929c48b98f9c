package stores

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

// PlanSummary is the listing view of one archived plan.
type PlanSummary struct {
	PlanID      string            `json:"planId"`
	Repo        string            `json:"repo"`
	Title       string            `json:"title"`
	RequestedBy string            `json:"requestedBy"`
	RequestedAt int64             `json:"requestedAt"`
	Subtasks    int               `json:"subtasks"`
	Status      engine.PlanStatus `json:"status"`
}

// PlanStore is the durable archive of validated plans. Archival is
// append-only: a plan, once written, is never modified; only its paired
// dispatch state evolves.
type PlanStore struct {
	layout      Layout
	states      *StateStore
	maxAttempts int
	logger      zerolog.Logger
}

// NewPlanStore creates a plan archive rooted at the base dir. maxAttempts
// seeds the retry budget of every subtask in new dispatch states.
func NewPlanStore(baseDir string, maxAttempts int, logger zerolog.Logger) *PlanStore {
	return &PlanStore{
		layout:      Layout{BaseDir: baseDir},
		states:      NewStateStore(baseDir),
		maxAttempts: maxAttempts,
		logger:      logger.With().Str("component", "plan_store").Logger(),
	}
}

// States exposes the paired dispatch-state store.
func (ps *PlanStore) States() *StateStore {
	return ps.states
}

// Archive writes the plan document, one record per subtask, and a fresh
// dispatch state with every subtask pending. Re-archiving an existing
// planId is rejected: subtasks may already be dispatched from it.
func (ps *PlanStore) Archive(_ context.Context, plan *engine.Plan) error {
	dir := ps.layout.PlanDir(plan.PlanID)
	if _, err := os.Stat(ps.layout.PlanFile(plan.PlanID)); err == nil {
		return engine.NewConflictError("plan is already archived", nil).
			WithCode(engine.ErrCodeAlreadyExists).
			WithPlan(plan.PlanID)
	}
	if err := os.MkdirAll(filepath.Join(dir, "subtasks"), 0o755); err != nil {
		return engine.NewTransientError("creating plan directory", err).WithPlan(plan.PlanID)
	}

	for _, st := range plan.Subtasks {
		record := struct {
			engine.Subtask
			PlanID string `json:"planId"`
		}{Subtask: st, PlanID: plan.PlanID}
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return engine.NewPermanentError("encoding subtask record", err).
				WithPlan(plan.PlanID).
				WithSubtask(st.ID)
		}
		if err := writeFileAtomic(ps.layout.SubtaskFile(plan.PlanID, st.ID), data); err != nil {
			return err
		}
	}

	if err := ps.states.Save(engine.NewDispatchState(plan, ps.maxAttempts)); err != nil {
		return err
	}

	// The plan document goes last: its presence marks the archive complete
	// and guards the conflict check above.
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return engine.NewPermanentError("encoding plan document", err).WithPlan(plan.PlanID)
	}
	if err := writeFileAtomic(ps.layout.PlanFile(plan.PlanID), data); err != nil {
		return err
	}

	ps.logger.Info().
		Str("plan_id", plan.PlanID).
		Int("subtasks", len(plan.Subtasks)).
		Msg("plan archived")
	return nil
}

// Load reads an archived plan by id.
func (ps *PlanStore) Load(_ context.Context, planID string) (*engine.Plan, error) {
	data, err := os.ReadFile(ps.layout.PlanFile(planID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewValidationError("plan not found", err).
				WithCode(engine.ErrCodeNotFound).
				WithPlan(planID)
		}
		return nil, engine.NewTransientError("reading plan document", err).WithPlan(planID)
	}
	var plan engine.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, engine.NewPermanentError("plan document is corrupt", err).WithPlan(planID)
	}
	return &plan, nil
}

// List returns summaries of archived plans, most recent first. limit <= 0
// means no limit.
func (ps *PlanStore) List(ctx context.Context, limit int) ([]PlanSummary, error) {
	entries, err := os.ReadDir(ps.layout.TasksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engine.NewTransientError("reading plan archive", err)
	}

	summaries := make([]PlanSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		plan, err := ps.Load(ctx, entry.Name())
		if err != nil {
			ps.logger.Warn().Str("plan_id", entry.Name()).Err(err).Msg("skipping unreadable plan")
			continue
		}
		summary := PlanSummary{
			PlanID:      plan.PlanID,
			Repo:        plan.Repo,
			Title:       plan.Title,
			RequestedBy: plan.RequestedBy,
			RequestedAt: plan.RequestedAt,
			Subtasks:    len(plan.Subtasks),
			Status:      engine.PlanStatusPending,
		}
		if state, err := ps.states.Load(plan.PlanID); err == nil {
			summary.Status = state.PlanStatus()
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].RequestedAt > summaries[j].RequestedAt
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
