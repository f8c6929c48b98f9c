package stores

import (
	"context"
	"encoding/json"
	"os"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

// FileQueue writes queue items to the shared queue directory. The external
// execution daemon consumes and deletes them; the orchestrator never reads
// an item back.
type FileQueue struct {
	layout Layout
}

// NewFileQueue creates a queue writer rooted at the base dir.
func NewFileQueue(baseDir string) *FileQueue {
	return &FileQueue{layout: Layout{BaseDir: baseDir}}
}

// Enqueue writes the item with exclusive-create semantics. An existing file
// for the same item id means the subtask was already dispatched, possibly
// by a concurrent invocation; the caller reconciles that as a conflict and
// never overwrites.
func (q *FileQueue) Enqueue(_ context.Context, item *engine.QueueItem) error {
	if err := os.MkdirAll(q.layout.QueueDir(), 0o755); err != nil {
		return engine.NewTransientError("creating queue directory", err).
			WithPlan(item.Metadata.PlanID).
			WithSubtask(item.Metadata.SubtaskID)
	}

	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return engine.NewPermanentError("encoding queue item", err).
			WithPlan(item.Metadata.PlanID).
			WithSubtask(item.Metadata.SubtaskID)
	}

	f, err := os.OpenFile(q.layout.QueueFile(item.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return engine.NewConflictError("queue item already exists", err).
				WithCode(engine.ErrCodeAlreadyExists).
				WithPlan(item.Metadata.PlanID).
				WithSubtask(item.Metadata.SubtaskID)
		}
		return engine.NewTransientError("creating queue item", err).
			WithPlan(item.Metadata.PlanID).
			WithSubtask(item.Metadata.SubtaskID)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return engine.NewTransientError("writing queue item", err).
			WithPlan(item.Metadata.PlanID).
			WithSubtask(item.Metadata.SubtaskID)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return engine.NewTransientError("syncing queue item", err).
			WithPlan(item.Metadata.PlanID).
			WithSubtask(item.Metadata.SubtaskID)
	}
	return f.Close()
}

// Depth counts the queue items currently waiting on the queue surface.
func (q *FileQueue) Depth() (int, error) {
	entries, err := os.ReadDir(q.layout.QueueDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, engine.NewTransientError("reading queue directory", err)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count, nil
}
