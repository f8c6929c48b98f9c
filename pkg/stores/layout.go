package stores

import "path/filepath"

// Layout resolves every durable path from the orchestrator base directory.
// The base directory is typically ~/ai-devops, overridable via config.
type Layout struct {
	BaseDir string
}

// TasksDir is the root of the plan archive.
func (l Layout) TasksDir() string {
	return filepath.Join(l.BaseDir, "tasks")
}

// PlanDir is the archive directory for one plan.
func (l Layout) PlanDir(planID string) string {
	return filepath.Join(l.TasksDir(), planID)
}

// PlanFile is the archived plan document.
func (l Layout) PlanFile(planID string) string {
	return filepath.Join(l.PlanDir(planID), "plan.json")
}

// SubtaskFile is the archived record for one subtask.
func (l Layout) SubtaskFile(planID, subtaskID string) string {
	return filepath.Join(l.PlanDir(planID), "subtasks", subtaskID+".json")
}

// DispatchStateFile is the mutable per-plan dispatch record.
func (l Layout) DispatchStateFile(planID string) string {
	return filepath.Join(l.PlanDir(planID), "dispatch-state.json")
}

// QueueDir is the surface the execution daemon consumes queue items from.
func (l Layout) QueueDir() string {
	return filepath.Join(l.BaseDir, "orchestrator", "queue")
}

// QueueFile is the queue item path for one plan/subtask pair.
func (l Layout) QueueFile(itemID string) string {
	return filepath.Join(l.QueueDir(), itemID+".json")
}

// RegistryFile is the execution registry owned by the external collaborator.
func (l Layout) RegistryFile() string {
	return filepath.Join(l.BaseDir, ".registry", "active-tasks.json")
}

// EventsDBFile is the advisory event log database.
func (l Layout) EventsDBFile() string {
	return filepath.Join(l.BaseDir, "orchestrator", "events.db")
}
