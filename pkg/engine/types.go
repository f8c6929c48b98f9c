package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// PlanVersion is the schema version emitted for every generated plan.
const PlanVersion = "1.0"

// PromptMaxChars is the hard upper bound on a subtask prompt. Plans carrying
// a longer prompt are rejected at validation time.
const PromptMaxChars = 20000

// DescriptionMaxChars bounds subtask descriptions so queue items stay
// reviewable by downstream workers.
const DescriptionMaxChars = 4000

// MaxTitleSlugLen caps the sanitized title component of a generated plan id.
const MaxTitleSlugLen = 48

// Agent identifies a downstream coding agent a subtask is routed to.
type Agent string

const (
	// AgentCodex routes the subtask to the codex worker pool.
	AgentCodex Agent = "codex"

	// AgentClaude routes the subtask to the claude worker pool.
	AgentClaude Agent = "claude"
)

// Valid returns true if the agent is a supported routing target.
func (a Agent) Valid() bool {
	return a == AgentCodex || a == AgentClaude
}

// Effort is the execution effort tier requested for a subtask.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Valid returns true if the effort is a supported tier.
func (e Effort) Valid() bool {
	return e == EffortLow || e == EffortMedium || e == EffortHigh
}

// WorktreeStrategy controls how a downstream worker checks out the repo.
type WorktreeStrategy string

const (
	// WorktreeShared lets the subtask run in the shared checkout.
	WorktreeShared WorktreeStrategy = "shared"

	// WorktreeIsolated gives the subtask its own worktree.
	WorktreeIsolated WorktreeStrategy = "isolated"
)

// Valid returns true if the strategy is supported.
func (w WorktreeStrategy) Valid() bool {
	return w == WorktreeShared || w == WorktreeIsolated
}

// identifierRe matches ids safe for file names and queue keys.
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidIdentifier reports whether value is non-empty and contains only
// letters, digits, underscores, and hyphens.
func ValidIdentifier(value string) bool {
	return identifierRe.MatchString(value)
}

var (
	sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	collapseRe = regexp.MustCompile(`-{2,}`)
)

// SanitizeIdentifier converts an arbitrary string into a safe identifier:
// disallowed runs become single hyphens, repeats collapse, leading and
// trailing separators are trimmed. An empty result falls back to "task".
func SanitizeIdentifier(value string) string {
	s := sanitizeRe.ReplaceAllString(strings.TrimSpace(value), "-")
	s = collapseRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_")
	if s == "" {
		return "task"
	}
	return s
}

// NewPlanID derives the deterministic plan id for a task request:
// "<requestedAtMs>-<sanitized repo>-<sanitized title slug>". The title slug
// is truncated to MaxTitleSlugLen characters.
func NewPlanID(requestedAt int64, repo, title string) string {
	slug := SanitizeIdentifier(title)
	if len(slug) > MaxTitleSlugLen {
		slug = strings.Trim(slug[:MaxTitleSlugLen], "-_")
		if slug == "" {
			slug = "task"
		}
	}
	return fmt.Sprintf("%d-%s-%s", requestedAt, SanitizeIdentifier(repo), slug)
}

// Routing carries plan-level routing defaults that subtasks inherit when
// they do not set agent, model, or effort themselves.
type Routing struct {
	// Agent is the default agent for subtasks in this plan.
	Agent Agent `json:"agent,omitempty"`

	// Model is the default model identifier.
	Model string `json:"model,omitempty"`

	// Effort is the default effort tier.
	Effort Effort `json:"effort,omitempty"`
}

// TaskRequest is the intake document that planning starts from.
type TaskRequest struct {
	// Repo is the target repository name.
	Repo string `json:"repo"`

	// Title is the short human-readable task title.
	Title string `json:"title"`

	// Objective is the full statement of what the task should achieve.
	Objective string `json:"objective"`

	// RequestedBy identifies the requesting principal.
	RequestedBy string `json:"requestedBy"`

	// RequestedAt is the request time in milliseconds since the epoch.
	// Zero means "now".
	RequestedAt int64 `json:"requestedAt,omitempty"`

	// Constraints holds free-form guardrails passed through to workers.
	Constraints map[string]interface{} `json:"constraints,omitempty"`

	// Context holds free-form background passed through to workers.
	Context map[string]interface{} `json:"context,omitempty"`

	// Routing sets the plan-level routing defaults.
	Routing Routing `json:"routing,omitempty"`

	// FilesHint lists files the requester already knows are relevant.
	FilesHint []string `json:"filesHint,omitempty"`
}

// Subtask is a single unit of work inside a plan. All routing fields are
// fully resolved; inheritance from plan routing happens during validation.
type Subtask struct {
	// ID is the subtask identifier, unique within the plan.
	ID string `json:"id" validate:"required,identifier"`

	// Title is the short subtask title.
	Title string `json:"title" validate:"required"`

	// Description explains the work in reviewer-facing terms.
	Description string `json:"description" validate:"required,max=4000"`

	// Agent is the resolved downstream agent.
	Agent Agent `json:"agent" validate:"required,oneof=codex claude"`

	// Model is the resolved model identifier.
	Model string `json:"model" validate:"required"`

	// Effort is the resolved effort tier.
	Effort Effort `json:"effort" validate:"required,oneof=low medium high"`

	// WorktreeStrategy controls checkout isolation for this subtask.
	WorktreeStrategy WorktreeStrategy `json:"worktreeStrategy" validate:"required,oneof=shared isolated"`

	// DependsOn lists subtask ids that must complete first.
	DependsOn []string `json:"dependsOn"`

	// FilesHint lists files the subtask is expected to touch.
	FilesHint []string `json:"filesHint"`

	// Prompt is the full worker prompt, bounded by PromptMaxChars.
	Prompt string `json:"prompt" validate:"required,max=20000"`

	// DefinitionOfDone lists acceptance criteria.
	DefinitionOfDone []string `json:"definitionOfDone"`
}

// Plan is a validated, immutable decomposition of a task request.
type Plan struct {
	// PlanID is the unique plan identifier.
	PlanID string `json:"planId" validate:"required,identifier"`

	// Repo is the target repository.
	Repo string `json:"repo" validate:"required"`

	// Title is the task title.
	Title string `json:"title" validate:"required"`

	// RequestedBy identifies the requesting principal.
	RequestedBy string `json:"requestedBy" validate:"required"`

	// RequestedAt is the request time in milliseconds since the epoch.
	RequestedAt int64 `json:"requestedAt" validate:"required,gt=0"`

	// Objective is the full task statement.
	Objective string `json:"objective" validate:"required"`

	// Constraints are guardrails carried through to every queue item.
	Constraints map[string]interface{} `json:"constraints"`

	// Context is background carried through to every queue item. Generated
	// plans record planner provenance under context["planner"].
	Context map[string]interface{} `json:"context"`

	// Routing holds the plan-level routing defaults.
	Routing Routing `json:"routing,omitempty"`

	// Subtasks is the ordered, non-empty list of work units.
	Subtasks []Subtask `json:"subtasks" validate:"required,min=1,dive"`

	// Version is the plan schema version.
	Version string `json:"version" validate:"required"`
}

// SubtaskByID returns the subtask with the given id, or nil.
func (p *Plan) SubtaskByID(id string) *Subtask {
	for i := range p.Subtasks {
		if p.Subtasks[i].ID == id {
			return &p.Subtasks[i]
		}
	}
	return nil
}

// QueueMetadata is the provenance block attached to every queue item so
// downstream workers and the supervisor can correlate it back to the plan.
type QueueMetadata struct {
	PlanID           string                 `json:"planId"`
	SubtaskID        string                 `json:"subtaskId"`
	DependsOn        []string               `json:"dependsOn"`
	WorktreeStrategy WorktreeStrategy       `json:"worktreeStrategy"`
	FilesHint        []string               `json:"filesHint"`
	PlannedBy        string                 `json:"plannedBy"`
	DefinitionOfDone []string               `json:"definitionOfDone"`
	PlanVersion      string                 `json:"planVersion"`
	Objective        string                 `json:"objective"`
	Constraints      map[string]interface{} `json:"constraints"`
	Context          map[string]interface{} `json:"context"`
}

// Values for QueueMetadata.PlannedBy.
const (
	// PlannedByEngine marks plans produced by the phased planner.
	PlannedByEngine = "engine"

	// PlannedByFallback marks plans produced by the single-subtask fallback.
	PlannedByFallback = "fallback"
)

// QueueItem is the self-contained work document handed to the execution
// layer. One file per dispatched subtask.
type QueueItem struct {
	// ID is "<planId>-<subtaskId>", sanitized for use as a file name.
	ID string `json:"id"`

	// Repo is the target repository.
	Repo string `json:"repo"`

	// Title is the subtask title.
	Title string `json:"title"`

	// Description is the subtask description.
	Description string `json:"description"`

	// Agent, Model, and Effort are the resolved routing for the work.
	Agent  Agent  `json:"agent"`
	Model  string `json:"model"`
	Effort Effort `json:"effort"`

	// Prompt is the full prompt the worker executes. Retried subtasks get
	// a rerun directive appended with the previous failure context.
	Prompt string `json:"prompt"`

	// RequestedBy and RequestedAt mirror the plan header.
	RequestedBy string `json:"requestedBy"`
	RequestedAt int64  `json:"requestedAt"`

	// Metadata carries plan provenance for correlation.
	Metadata QueueMetadata `json:"metadata"`
}

// QueueItemID builds the canonical queue item id for a plan/subtask pair.
func QueueItemID(planID, subtaskID string) string {
	return SanitizeIdentifier(planID) + "-" + SanitizeIdentifier(subtaskID)
}
