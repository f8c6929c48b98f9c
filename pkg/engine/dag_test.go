package engine

import (
	"errors"
	"testing"
)

func diamondPlan() *Plan {
	plan := validPlan()
	plan.Subtasks = []Subtask{
		{ID: "root", Title: "root", Description: "analyze", Prompt: "p", WorktreeStrategy: WorktreeIsolated},
		{ID: "left", Title: "left", Description: "analyze", Prompt: "p", WorktreeStrategy: WorktreeIsolated, DependsOn: []string{"root"}},
		{ID: "right", Title: "right", Description: "analyze", Prompt: "p", WorktreeStrategy: WorktreeIsolated, DependsOn: []string{"root"}},
		{ID: "join", Title: "join", Description: "analyze", Prompt: "p", WorktreeStrategy: WorktreeIsolated, DependsOn: []string{"left", "right"}},
	}
	return plan
}

func TestTopologicalOrder(t *testing.T) {
	plan := diamondPlan()
	ordered, err := TopologicalOrder(plan)
	if err != nil {
		t.Fatalf("TopologicalOrder() error = %v", err)
	}

	position := make(map[string]int, len(ordered))
	for i, st := range ordered {
		position[st.ID] = i
	}
	for _, st := range plan.Subtasks {
		for _, dep := range st.DependsOn {
			if position[dep] >= position[st.ID] {
				t.Errorf("%s ordered before its dependency %s", st.ID, dep)
			}
		}
	}
	// Ties break by declaration order, so the result is stable.
	if position["left"] >= position["right"] {
		t.Errorf("left at %d, right at %d, want declaration order", position["left"], position["right"])
	}
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	plan := diamondPlan()
	first, err := TopologicalOrder(plan)
	if err != nil {
		t.Fatalf("TopologicalOrder() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := TopologicalOrder(plan)
		if err != nil {
			t.Fatalf("TopologicalOrder() error = %v", err)
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("run %d position %d = %s, want %s", i, j, again[j].ID, first[j].ID)
			}
		}
	}
}

func TestTopologicalOrderRejectsCycles(t *testing.T) {
	plan := diamondPlan()
	plan.Subtasks[0].DependsOn = []string{"join"}

	_, err := TopologicalOrder(plan)
	if err == nil {
		t.Fatal("TopologicalOrder() = nil, want cycle error")
	}
	if !IsValidation(err) {
		t.Errorf("error class = %v, want validation", err)
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if e.Code != ErrCodeCycle {
		t.Errorf("error code = %q, want %q", e.Code, ErrCodeCycle)
	}
	members, _ := e.Details["cycleMembers"].([]string)
	if len(members) != 4 {
		t.Errorf("cycleMembers = %v, want all four subtasks", members)
	}
}

func TestCycleMembersIgnoresAcyclicGraph(t *testing.T) {
	g := buildDependencyGraph(diamondPlan().Subtasks)
	if members := g.cycleMembers(); members != nil {
		t.Errorf("cycleMembers() = %v, want nil for acyclic graph", members)
	}
}
