package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IssueKind categorizes a single validation finding.
type IssueKind string

const (
	IssueMissing           IssueKind = "missing"
	IssueInvalidValue      IssueKind = "invalid_value"
	IssueInvalidIdentifier IssueKind = "invalid_identifier"
	IssueTooLong           IssueKind = "too_long"
	IssueDuplicate         IssueKind = "duplicate"
	IssueUnknownReference  IssueKind = "unknown_reference"
	IssueCycle             IssueKind = "cycle"
)

// ValidationIssue is one structured finding from plan validation. A failed
// validation carries every issue found, not just the first.
type ValidationIssue struct {
	// Field is the JSON path of the offending field.
	Field string `json:"field"`

	// Kind categorizes the finding.
	Kind IssueKind `json:"kind"`

	// Value is the offending value, when it helps diagnosis.
	Value interface{} `json:"value,omitempty"`

	// SubtaskID names the subtask the issue belongs to, if any.
	SubtaskID string `json:"subtaskId,omitempty"`

	// Message is the human-readable explanation.
	Message string `json:"message"`
}

// Schema validates candidate plans. Validation is a pure function of its
// input: no filesystem or network access, and the caller's plan is never
// mutated. A successful validation returns the canonical plan with routing
// inheritance fully resolved.
type Schema struct {
	validate *validator.Validate
}

// NewSchema creates a plan validator.
func NewSchema() *Schema {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return ValidIdentifier(fl.Field().String())
	})
	return &Schema{validate: v}
}

// ParsePlan decodes a serialized plan document. Decoding failures are
// validation errors.
func (s *Schema) ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, NewValidationError("plan document is not valid JSON", err).
			WithCode(ErrCodeValidation)
	}
	return &plan, nil
}

// ValidatePlan checks a candidate plan in four passes: structural fields,
// referential integrity of dependsOn, acyclicity, and size/content bounds.
// All findings are collected before failing. On success the returned plan
// is a canonical copy with plan-level routing defaults resolved into every
// subtask.
func (s *Schema) ValidatePlan(candidate *Plan) (*Plan, error) {
	if candidate == nil {
		return nil, NewValidationError("plan is nil", nil).WithCode(ErrCodeValidation)
	}

	plan := s.resolveRouting(candidate)

	var issues []ValidationIssue
	issues = append(issues, s.structuralIssues(plan)...)
	issues = append(issues, s.referentialIssues(plan)...)

	// Cycle detection needs a well-formed reference graph.
	if len(issues) == 0 {
		if members := buildDependencyGraph(plan.Subtasks).cycleMembers(); members != nil {
			for _, id := range members {
				issues = append(issues, ValidationIssue{
					Field:     "subtasks",
					Kind:      IssueCycle,
					SubtaskID: id,
					Message:   fmt.Sprintf("subtask %s participates in a dependency cycle", id),
				})
			}
		}
	}

	issues = append(issues, s.boundsIssues(plan)...)

	if len(issues) > 0 {
		return nil, validationFailure(plan.PlanID, issues)
	}
	return plan, nil
}

// resolveRouting returns a copy of the plan with empty subtask routing
// fields filled from the plan-level defaults.
func (s *Schema) resolveRouting(candidate *Plan) *Plan {
	plan := *candidate
	plan.Subtasks = make([]Subtask, len(candidate.Subtasks))
	copy(plan.Subtasks, candidate.Subtasks)

	for i := range plan.Subtasks {
		st := &plan.Subtasks[i]
		if st.Agent == "" {
			st.Agent = plan.Routing.Agent
		}
		if st.Model == "" {
			st.Model = plan.Routing.Model
		}
		if st.Effort == "" {
			st.Effort = plan.Routing.Effort
		}
	}
	return &plan
}

func (s *Schema) structuralIssues(plan *Plan) []ValidationIssue {
	err := s.validate.Struct(plan)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationIssue{{
			Field:   "plan",
			Kind:    IssueInvalidValue,
			Message: err.Error(),
		}}
	}

	issues := make([]ValidationIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Plan.")
		issue := ValidationIssue{
			Field:     field,
			Kind:      issueKindForTag(fe.Tag()),
			SubtaskID: s.subtaskIDForField(plan, field),
		}
		switch issue.Kind {
		case IssueMissing:
			issue.Message = fmt.Sprintf("missing required field %s", field)
		case IssueTooLong:
			issue.Message = fmt.Sprintf("%s exceeds the maximum length of %s characters", field, fe.Param())
		default:
			issue.Value = fe.Value()
			issue.Message = fmt.Sprintf("invalid value for %s", field)
		}
		issues = append(issues, issue)
	}
	return issues
}

func (s *Schema) referentialIssues(plan *Plan) []ValidationIssue {
	var issues []ValidationIssue

	seen := make(map[string]bool, len(plan.Subtasks))
	for i, st := range plan.Subtasks {
		if st.ID == "" {
			continue
		}
		if seen[st.ID] {
			issues = append(issues, ValidationIssue{
				Field:     fmt.Sprintf("subtasks[%d].id", i),
				Kind:      IssueDuplicate,
				Value:     st.ID,
				SubtaskID: st.ID,
				Message:   fmt.Sprintf("subtask id %s is not unique within the plan", st.ID),
			})
		}
		seen[st.ID] = true
	}

	for i, st := range plan.Subtasks {
		for _, dep := range st.DependsOn {
			if !seen[dep] {
				issues = append(issues, ValidationIssue{
					Field:     fmt.Sprintf("subtasks[%d].dependsOn", i),
					Kind:      IssueUnknownReference,
					Value:     dep,
					SubtaskID: st.ID,
					Message:   fmt.Sprintf("subtask %s depends on unknown subtask %s", st.ID, dep),
				})
			}
		}
	}
	return issues
}

func (s *Schema) boundsIssues(plan *Plan) []ValidationIssue {
	var issues []ValidationIssue
	for i, st := range plan.Subtasks {
		if len(st.FilesHint) == 0 && !isNonCodeSubtask(st) {
			issues = append(issues, ValidationIssue{
				Field:     fmt.Sprintf("subtasks[%d].filesHint", i),
				Kind:      IssueMissing,
				SubtaskID: st.ID,
				Message:   fmt.Sprintf("subtask %s changes code but carries no filesHint", st.ID),
			})
		}
	}
	return issues
}

// nonCodeMarkers flags subtasks that inspect or describe rather than
// modify code. These may omit filesHint.
var nonCodeMarkers = []string{
	"document", "docs", "handoff", "readme", "changelog",
	"analyze", "analysis", "investigate", "review", "audit",
}

func isNonCodeSubtask(st Subtask) bool {
	text := strings.ToLower(st.Title + " " + st.Description)
	for _, marker := range nonCodeMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func issueKindForTag(tag string) IssueKind {
	switch tag {
	case "required", "min":
		return IssueMissing
	case "max":
		return IssueTooLong
	case "identifier":
		return IssueInvalidIdentifier
	default:
		return IssueInvalidValue
	}
}

// subtaskIDForField extracts the subtask id from a field path like
// "subtasks[2].prompt".
func (s *Schema) subtaskIDForField(plan *Plan, field string) string {
	open := strings.Index(field, "[")
	end := strings.Index(field, "]")
	if !strings.HasPrefix(field, "subtasks[") || open < 0 || end < open {
		return ""
	}
	idx, err := strconv.Atoi(field[open+1 : end])
	if err != nil || idx < 0 || idx >= len(plan.Subtasks) {
		return ""
	}
	return plan.Subtasks[idx].ID
}

func validationFailure(planID string, issues []ValidationIssue) *Error {
	return NewValidationError(
		fmt.Sprintf("plan failed validation with %d issue(s)", len(issues)), nil).
		WithCode(ErrCodeValidation).
		WithPlan(planID).
		WithDetail("issues", issues)
}

// IssuesFrom extracts the structured findings from a validation error.
// Returns nil if err is not a validation failure produced by ValidatePlan.
func IssuesFrom(err error) []ValidationIssue {
	var e *Error
	if !errors.As(err, &e) || e.Class != ErrorClassValidation {
		return nil
	}
	issues, _ := e.Details["issues"].([]ValidationIssue)
	return issues
}
