package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

// StateStore persists DispatchState documents. Every write goes through a
// temporary file in the same directory, fsync, then rename, so concurrent
// readers see either the old or the new record, never a partial one.
type StateStore struct {
	layout Layout
}

// NewStateStore creates a dispatch-state store rooted at the base dir.
func NewStateStore(baseDir string) *StateStore {
	return &StateStore{layout: Layout{BaseDir: baseDir}}
}

// Load reads the current dispatch state for a plan.
func (s *StateStore) Load(planID string) (*engine.DispatchState, error) {
	data, err := os.ReadFile(s.layout.DispatchStateFile(planID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewValidationError("dispatch state not found", err).
				WithCode(engine.ErrCodeNotFound).
				WithPlan(planID)
		}
		return nil, engine.NewTransientError("reading dispatch state", err).WithPlan(planID)
	}
	var state engine.DispatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, engine.NewPermanentError("dispatch state is corrupt", err).WithPlan(planID)
	}
	return &state, nil
}

// Save persists the state atomically, bumping its version.
func (s *StateStore) Save(state *engine.DispatchState) error {
	state.Version++
	state.UpdatedAt = time.Now().UnixMilli()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return engine.NewPermanentError("encoding dispatch state", err).WithPlan(state.PlanID)
	}

	target := s.layout.DispatchStateFile(state.PlanID)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return engine.NewTransientError("creating plan directory", err).WithPlan(state.PlanID)
	}
	return writeFileAtomic(target, data)
}

// writeFileAtomic writes data to a sibling temp file, fsyncs it, and
// renames it over the target path.
func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return engine.NewTransientError("creating temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return engine.NewTransientError("writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return engine.NewTransientError("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return engine.NewTransientError("closing temp file", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return engine.NewTransientError("replacing state file", err)
	}
	return nil
}

var _ engine.StateAccess = (*StateStore)(nil)
