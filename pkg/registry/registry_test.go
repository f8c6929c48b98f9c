package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "active-tasks.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOutcomesMapsStatuses(t *testing.T) {
	path := writeRegistry(t, `[
		{"id":"q1","status":"ready","prUrl":"https://example.test/pr/1","metadata":{"planId":"plan-a","subtaskId":"S1"}},
		{"id":"q2","status":"blocked","note":"merge conflict","metadata":{"planId":"plan-a","subtaskId":"S2"}},
		{"id":"q3","status":"agent_failed","note":"agent crashed","metadata":{"planId":"plan-a","subtaskId":"S3"}},
		{"id":"q4","status":"ci_failed","note":"tests red","metadata":{"planId":"plan-a","subtaskId":"S4"}},
		{"id":"q5","status":"running","metadata":{"planId":"plan-a","subtaskId":"S5"}},
		{"id":"q6","status":"ready","metadata":{"planId":"plan-other","subtaskId":"S1"}}
	]`)
	reader := NewReader(path, time.Second, zerolog.Nop())

	signals, err := reader.Outcomes(context.Background(), "plan-a")
	if err != nil {
		t.Fatalf("Outcomes() error = %v", err)
	}
	if len(signals) != 5 {
		t.Fatalf("Outcomes() = %d signals, want 5 for plan-a only", len(signals))
	}

	tests := []struct {
		subtask string
		success bool
		failed  bool
		summary string
	}{
		{"S1", true, false, ""},
		{"S2", false, true, "merge conflict"},
		{"S3", false, true, "agent crashed"},
		{"S4", false, true, "tests red"},
		{"S5", false, false, ""},
	}
	for _, tt := range tests {
		sig, ok := signals[tt.subtask]
		if !ok {
			t.Errorf("signal for %s missing", tt.subtask)
			continue
		}
		if sig.Success != tt.success || sig.Failed != tt.failed {
			t.Errorf("%s = success=%v failed=%v, want success=%v failed=%v",
				tt.subtask, sig.Success, sig.Failed, tt.success, tt.failed)
		}
		if sig.Summary != tt.summary {
			t.Errorf("%s summary = %q, want %q", tt.subtask, sig.Summary, tt.summary)
		}
	}
	if signals["S1"].PRURL != "https://example.test/pr/1" {
		t.Errorf("S1 prUrl = %q, want carried through", signals["S1"].PRURL)
	}
}

func TestOutcomesMissingRegistry(t *testing.T) {
	reader := NewReader(filepath.Join(t.TempDir(), "absent.json"), time.Second, zerolog.Nop())

	signals, err := reader.Outcomes(context.Background(), "plan-a")
	if err != nil {
		t.Fatalf("Outcomes() error = %v, want no signals for a missing registry", err)
	}
	if len(signals) != 0 {
		t.Errorf("Outcomes() = %v, want empty", signals)
	}
}

func TestOutcomesInvalidJSON(t *testing.T) {
	path := writeRegistry(t, "{not json")
	reader := NewReader(path, time.Second, zerolog.Nop())

	_, err := reader.Outcomes(context.Background(), "plan-a")
	if !engine.IsTransient(err) {
		t.Errorf("Outcomes() error = %v, want transient", err)
	}
}

func TestOutcomesSkipsRecordsWithoutSubtask(t *testing.T) {
	path := writeRegistry(t, `[
		{"id":"q1","status":"ready","metadata":{"planId":"plan-a","subtaskId":""}}
	]`)
	reader := NewReader(path, time.Second, zerolog.Nop())

	signals, err := reader.Outcomes(context.Background(), "plan-a")
	if err != nil {
		t.Fatalf("Outcomes() error = %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("Outcomes() = %v, want records without subtask ids skipped", signals)
	}
}
