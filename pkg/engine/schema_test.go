package engine

import (
	"strings"
	"testing"
)

func validPlan() *Plan {
	return &Plan{
		PlanID:      "1700000000000-demo-add-endpoint",
		Repo:        "demo",
		Title:       "add endpoint",
		RequestedBy: "tester",
		RequestedAt: 1700000000000,
		Objective:   "add the health endpoint",
		Constraints: map[string]interface{}{},
		Context:     map[string]interface{}{},
		Routing: Routing{
			Agent:  AgentCodex,
			Model:  "gpt-5.3-codex",
			Effort: EffortMedium,
		},
		Subtasks: []Subtask{
			{
				ID:               "S1",
				Title:            "implement endpoint",
				Description:      "add the handler",
				WorktreeStrategy: WorktreeIsolated,
				FilesHint:        []string{"src/server.go"},
				Prompt:           "implement the endpoint",
			},
			{
				ID:               "S2",
				Title:            "test endpoint",
				Description:      "cover the handler",
				WorktreeStrategy: WorktreeIsolated,
				DependsOn:        []string{"S1"},
				FilesHint:        []string{"src/server_test.go"},
				Prompt:           "test the endpoint",
			},
		},
		Version: PlanVersion,
	}
}

func hasIssue(issues []ValidationIssue, kind IssueKind, subtaskID string) bool {
	for _, issue := range issues {
		if issue.Kind == kind && issue.SubtaskID == subtaskID {
			return true
		}
	}
	return false
}

func TestValidatePlanResolvesRoutingInheritance(t *testing.T) {
	schema := NewSchema()
	candidate := validPlan()
	candidate.Subtasks[1].Agent = AgentClaude
	candidate.Subtasks[1].Effort = EffortHigh

	plan, err := schema.ValidatePlan(candidate)
	if err != nil {
		t.Fatalf("ValidatePlan() error = %v", err)
	}

	// Unset fields inherit the plan defaults.
	if got := plan.Subtasks[0].Agent; got != AgentCodex {
		t.Errorf("S1 agent = %v, want inherited %v", got, AgentCodex)
	}
	if got := plan.Subtasks[0].Model; got != "gpt-5.3-codex" {
		t.Errorf("S1 model = %q, want inherited default", got)
	}
	// Explicit routing survives.
	if got := plan.Subtasks[1].Agent; got != AgentClaude {
		t.Errorf("S2 agent = %v, want explicit %v", got, AgentClaude)
	}
	if got := plan.Subtasks[1].Effort; got != EffortHigh {
		t.Errorf("S2 effort = %v, want explicit %v", got, EffortHigh)
	}
	// The caller's plan is untouched.
	if candidate.Subtasks[0].Agent != "" {
		t.Error("ValidatePlan() mutated the candidate plan")
	}
}

func TestValidatePlanCollectsAllIssues(t *testing.T) {
	schema := NewSchema()
	candidate := validPlan()
	candidate.Subtasks[0].Title = ""
	candidate.Subtasks[1].DependsOn = []string{"S9"}

	_, err := schema.ValidatePlan(candidate)
	if err == nil {
		t.Fatal("ValidatePlan() = nil, want error")
	}
	if !IsValidation(err) {
		t.Fatalf("error class = %v, want validation", err)
	}

	issues := IssuesFrom(err)
	if len(issues) < 2 {
		t.Fatalf("issues = %v, want both findings reported", issues)
	}
	if !hasIssue(issues, IssueMissing, "S1") {
		t.Errorf("missing-title issue for S1 not reported: %v", issues)
	}
	if !hasIssue(issues, IssueUnknownReference, "S2") {
		t.Errorf("unknown-reference issue for S2 not reported: %v", issues)
	}
}

func TestValidatePlanReportsCycleMembers(t *testing.T) {
	schema := NewSchema()
	candidate := validPlan()
	candidate.Subtasks[0].DependsOn = []string{"S2"}

	_, err := schema.ValidatePlan(candidate)
	if err == nil {
		t.Fatal("ValidatePlan() = nil, want cycle error")
	}
	issues := IssuesFrom(err)
	if !hasIssue(issues, IssueCycle, "S1") || !hasIssue(issues, IssueCycle, "S2") {
		t.Errorf("cycle issues = %v, want members S1 and S2", issues)
	}
}

func TestValidatePlanRejectsDuplicateSubtaskIDs(t *testing.T) {
	schema := NewSchema()
	candidate := validPlan()
	candidate.Subtasks[1].ID = "S1"
	candidate.Subtasks[1].DependsOn = nil

	_, err := schema.ValidatePlan(candidate)
	if err == nil {
		t.Fatal("ValidatePlan() = nil, want duplicate-id error")
	}
	if !hasIssue(IssuesFrom(err), IssueDuplicate, "S1") {
		t.Errorf("issues = %v, want duplicate finding for S1", IssuesFrom(err))
	}
}

func TestValidatePlanRejectsOversizePrompt(t *testing.T) {
	schema := NewSchema()
	candidate := validPlan()
	candidate.Subtasks[0].Prompt = strings.Repeat("x", PromptMaxChars+1)

	_, err := schema.ValidatePlan(candidate)
	if err == nil {
		t.Fatal("ValidatePlan() = nil, want oversize-prompt error")
	}
	if !hasIssue(IssuesFrom(err), IssueTooLong, "S1") {
		t.Errorf("issues = %v, want too_long finding for S1", IssuesFrom(err))
	}
}

func TestValidatePlanRejectsInvalidIdentifiers(t *testing.T) {
	schema := NewSchema()
	candidate := validPlan()
	candidate.Subtasks[0].ID = "has spaces"
	candidate.Subtasks[1].DependsOn = []string{"has spaces"}

	_, err := schema.ValidatePlan(candidate)
	if err == nil {
		t.Fatal("ValidatePlan() = nil, want identifier error")
	}
	if !hasIssue(IssuesFrom(err), IssueInvalidIdentifier, "has spaces") {
		t.Errorf("issues = %v, want invalid_identifier finding", IssuesFrom(err))
	}
}

func TestValidatePlanFilesHintRequirement(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		desc    string
		wantErr bool
	}{
		{
			name:    "code subtask without hints",
			title:   "implement parser",
			desc:    "change the tokenizer",
			wantErr: true,
		},
		{
			name:    "analysis subtask without hints",
			title:   "review progress",
			desc:    "analyze the current state and report",
			wantErr: false,
		},
		{
			name:    "docs subtask without hints",
			title:   "update readme",
			desc:    "document the new flags",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := NewSchema()
			candidate := validPlan()
			candidate.Subtasks = candidate.Subtasks[:1]
			candidate.Subtasks[0].Title = tt.title
			candidate.Subtasks[0].Description = tt.desc
			candidate.Subtasks[0].FilesHint = nil

			_, err := schema.ValidatePlan(candidate)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePlan() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePlanRejectsEmptySubtaskList(t *testing.T) {
	schema := NewSchema()
	candidate := validPlan()
	candidate.Subtasks = nil

	if _, err := schema.ValidatePlan(candidate); err == nil {
		t.Fatal("ValidatePlan() = nil, want error for empty plan")
	}
}

func TestParsePlan(t *testing.T) {
	schema := NewSchema()

	if _, err := schema.ParsePlan([]byte("{not json")); err == nil {
		t.Error("ParsePlan() accepted malformed JSON")
	} else if !IsValidation(err) {
		t.Errorf("ParsePlan() error class = %v, want validation", err)
	}

	plan, err := schema.ParsePlan([]byte(`{"planId":"p1","subtasks":[{"id":"S1"}]}`))
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	if plan.PlanID != "p1" || len(plan.Subtasks) != 1 {
		t.Errorf("ParsePlan() = %+v, want decoded document", plan)
	}
}

func TestIssuesFromNonValidationError(t *testing.T) {
	if got := IssuesFrom(NewTransientError("boom", nil)); got != nil {
		t.Errorf("IssuesFrom() = %v, want nil for non-validation error", got)
	}
}
