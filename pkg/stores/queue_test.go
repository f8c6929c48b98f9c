package stores

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

func testQueueItem() *engine.QueueItem {
	return &engine.QueueItem{
		ID:          "1700000000000-demo-add-endpoint-S1",
		Repo:        "demo",
		Title:       "implement",
		Description: "add the handler",
		Agent:       engine.AgentCodex,
		Model:       "gpt-5.3-codex",
		Effort:      engine.EffortMedium,
		Prompt:      "implement the endpoint",
		RequestedBy: "tester",
		RequestedAt: 1700000000000,
		Metadata: engine.QueueMetadata{
			PlanID:    "1700000000000-demo-add-endpoint",
			SubtaskID: "S1",
			PlannedBy: engine.PlannedByEngine,
		},
	}
}

func TestEnqueueWritesItem(t *testing.T) {
	baseDir := t.TempDir()
	queue := NewFileQueue(baseDir)
	item := testQueueItem()

	if err := queue.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	data, err := os.ReadFile(Layout{BaseDir: baseDir}.QueueFile(item.ID))
	if err != nil {
		t.Fatalf("queue file missing: %v", err)
	}
	var decoded engine.QueueItem
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("queue file is not valid JSON: %v", err)
	}
	if decoded.ID != item.ID || decoded.Prompt != item.Prompt {
		t.Errorf("decoded item = %+v, want written item", decoded)
	}
	if decoded.Metadata.SubtaskID != "S1" {
		t.Errorf("metadata subtaskId = %q, want S1", decoded.Metadata.SubtaskID)
	}
}

func TestEnqueueDuplicateKeepsOriginal(t *testing.T) {
	baseDir := t.TempDir()
	queue := NewFileQueue(baseDir)
	item := testQueueItem()

	if err := queue.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	second := testQueueItem()
	second.Prompt = "changed"
	if err := queue.Enqueue(context.Background(), second); !engine.IsConflict(err) {
		t.Fatalf("duplicate Enqueue() error = %v, want conflict", err)
	}

	data, err := os.ReadFile(Layout{BaseDir: baseDir}.QueueFile(item.ID))
	if err != nil {
		t.Fatal(err)
	}
	var decoded engine.QueueItem
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Prompt != "implement the endpoint" {
		t.Errorf("original item overwritten: prompt = %q", decoded.Prompt)
	}
}

func TestQueueDepth(t *testing.T) {
	baseDir := t.TempDir()
	queue := NewFileQueue(baseDir)

	depth, err := queue.Depth()
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 0 {
		t.Errorf("Depth() = %d, want 0 before any enqueue", depth)
	}

	for _, id := range []string{"a", "b", "c"} {
		item := testQueueItem()
		item.ID = item.ID + "-" + id
		if err := queue.Enqueue(context.Background(), item); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	depth, err = queue.Depth()
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 3 {
		t.Errorf("Depth() = %d, want 3", depth)
	}
}
