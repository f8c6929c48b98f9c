// Package registry reads the execution registry maintained by the external
// worker daemon. The registry is the orchestrator's only view of execution
// outcomes; it is read-only here and owned entirely by the collaborator.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

// Task statuses the collaborator writes. "ready" is the success signal;
// the failure statuses all mean the attempt is over and retriable.
const (
	StatusReady       = "ready"
	StatusBlocked     = "blocked"
	StatusAgentFailed = "agent_failed"
	StatusCIFailed    = "ci_failed"
)

// TaskRecord is one entry in the active-tasks registry.
type TaskRecord struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Branch   string `json:"branch,omitempty"`
	PRURL    string `json:"prUrl,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Note     string `json:"note,omitempty"`
	Metadata struct {
		PlanID    string `json:"planId"`
		SubtaskID string `json:"subtaskId"`
	} `json:"metadata"`
}

// Reader polls the registry file. Reads are bounded by a timeout; a slow or
// missing collaborator is a transient condition, retried on the next tick.
type Reader struct {
	path    string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewReader creates a registry reader for the given file path.
func NewReader(path string, timeout time.Duration, logger zerolog.Logger) *Reader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reader{
		path:    path,
		timeout: timeout,
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Outcomes implements engine.OutcomeSource. A registry that does not exist
// yet simply yields no signals.
func (r *Reader) Outcomes(ctx context.Context, planID string) (map[string]engine.OutcomeSignal, error) {
	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	signals := make(map[string]engine.OutcomeSignal)
	for _, rec := range records {
		if rec.Metadata.PlanID != planID || rec.Metadata.SubtaskID == "" {
			continue
		}
		signal := engine.OutcomeSignal{
			SubtaskID: rec.Metadata.SubtaskID,
			Summary:   rec.Note,
			PRURL:     rec.PRURL,
		}
		switch rec.Status {
		case StatusReady:
			signal.Success = true
		case StatusBlocked, StatusAgentFailed, StatusCIFailed:
			signal.Failed = true
		default:
			// Still executing. Report the pending signal so callers can
			// distinguish "running" from "never dispatched".
		}
		signals[rec.Metadata.SubtaskID] = signal
	}
	return signals, nil
}

// load reads and decodes the registry file under the reader's timeout.
func (r *Reader) load(ctx context.Context) ([]TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		records []TaskRecord
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(r.path)
		if err != nil {
			if os.IsNotExist(err) {
				ch <- result{}
				return
			}
			ch <- result{err: engine.NewTransientError("reading execution registry", err)}
			return
		}
		var records []TaskRecord
		if err := json.Unmarshal(data, &records); err != nil {
			ch <- result{err: engine.NewTransientError("execution registry is not valid JSON", err)}
			return
		}
		ch <- result{records: records}
	}()

	select {
	case <-ctx.Done():
		return nil, engine.NewTransientError("execution registry read timed out", ctx.Err()).
			WithCode(engine.ErrCodeTimeout)
	case res := <-ch:
		return res.records, res.err
	}
}

var _ engine.OutcomeSource = (*Reader)(nil)
