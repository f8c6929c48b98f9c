package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewEventStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewEventStore() error = %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreRecordAndList(t *testing.T) {
	store := newTestEventStore(t)
	ctx := context.Background()

	if err := store.RecordEvent(ctx, "plan-a", "S1", engine.EventSubtaskQueued, "item-1"); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := store.RecordEvent(ctx, "plan-a", "S1", engine.EventSubtaskComplete, ""); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if err := store.RecordEvent(ctx, "plan-b", "", engine.EventPlanAbandoned, "operator"); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	events, err := store.ListEvents(ctx, "plan-a", 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListEvents(plan-a) = %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].Kind != engine.EventSubtaskComplete {
		t.Errorf("first event = %s, want %s", events[0].Kind, engine.EventSubtaskComplete)
	}
	if events[1].Detail != "item-1" {
		t.Errorf("queued event detail = %q, want item-1", events[1].Detail)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("event timestamp not parsed")
	}

	all, err := store.ListEvents(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListEvents(all) = %d events, want 3", len(all))
	}
}

func TestEventStoreLimit(t *testing.T) {
	store := newTestEventStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.RecordEvent(ctx, "plan-a", "S1", engine.EventSubtaskRetry, "again"); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	events, err := store.ListEvents(ctx, "plan-a", 3)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Errorf("ListEvents() = %d events, want limit of 3", len(events))
	}
}

func TestEventStoreRequiresInit(t *testing.T) {
	store, err := NewEventStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewEventStore() error = %v", err)
	}
	if err := store.RecordEvent(context.Background(), "p", "s", "k", ""); err == nil {
		t.Error("RecordEvent() before Init() did not fail")
	}
	if _, err := store.ListEvents(context.Background(), "", 0); err == nil {
		t.Error("ListEvents() before Init() did not fail")
	}
}

func TestEventStoreHealthCheck(t *testing.T) {
	store := newTestEventStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
