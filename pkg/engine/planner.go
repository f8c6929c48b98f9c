package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PlannerStrategy is recorded under context["planner"].strategy on every
// generated plan.
const PlannerStrategy = "phased-v1"

// FallbackStrategy marks single-subtask plans produced when phase emission
// cannot decompose the request.
const FallbackStrategy = "fallback-v1"

// Canonical phase titles. Phase emission always draws from this chain, in
// this order, collapsing phases the request does not need.
const (
	phasePrepare   = "Prepare the implementation surface"
	phaseImplement = "Land the primary implementation"
	phaseValidate  = "Add validation and regression coverage"
	phaseDocument  = "Update documentation and handoff notes"
	phaseAnalyze   = "Analyze the current state"
)

// PlannerOptions tunes the decomposition heuristics. Zero values fall back
// to the defaults below.
type PlannerOptions struct {
	// DefaultAgent, DefaultModel, and DefaultEffort route subtasks when the
	// request carries no routing hint.
	DefaultAgent  Agent
	DefaultModel  string
	DefaultEffort Effort

	// ComplexWordThreshold is the objective word count at which a code task
	// gets the full phase chain instead of the two-phase collapse.
	ComplexWordThreshold int

	// ComplexClauseThreshold is the number of clause separators at which a
	// code task gets the full phase chain instead of the two-phase collapse.
	ComplexClauseThreshold int

	// BaseDir is the orchestrator home. Repo file discovery looks under
	// <BaseDir>/repos/<repo> when the request has no filesHint.
	BaseDir string

	// DiscoveryLimit caps the number of files repo discovery collects.
	DiscoveryLimit int
}

func (o *PlannerOptions) applyDefaults() {
	if o.DefaultAgent == "" {
		o.DefaultAgent = AgentCodex
	}
	if o.DefaultModel == "" {
		o.DefaultModel = "gpt-5.3-codex"
	}
	if o.DefaultEffort == "" {
		o.DefaultEffort = EffortMedium
	}
	if o.ComplexWordThreshold == 0 {
		o.ComplexWordThreshold = 18
	}
	if o.ComplexClauseThreshold == 0 {
		o.ComplexClauseThreshold = 1
	}
	if o.DiscoveryLimit == 0 {
		o.DiscoveryLimit = 20
	}
}

// Planner decomposes task requests into validated plans. Decomposition is
// deterministic: identical input yields an identical plan shape.
type Planner struct {
	schema     *Schema
	policy     PolicyFilter
	classifier Classifier
	opts       PlannerOptions
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPlanner creates a planner. policy and classifier may be nil.
func NewPlanner(schema *Schema, policy PolicyFilter, classifier Classifier, opts PlannerOptions, logger zerolog.Logger) *Planner {
	opts.applyDefaults()
	return &Planner{
		schema:     schema,
		policy:     policy,
		classifier: classifier,
		opts:       opts,
		logger:     logger.With().Str("component", "planner").Logger(),
		now:        time.Now,
	}
}

// Plan runs the full planning pipeline: policy filter, classification,
// phase emission, and self-validation. The returned plan is canonical and
// ready for archival; nothing is persisted here.
func (p *Planner) Plan(ctx context.Context, req *TaskRequest) (*Plan, error) {
	norm, err := p.normalize(req)
	if err != nil {
		return nil, err
	}

	if p.policy != nil {
		if err := p.policy.Check(ctx, norm); err != nil {
			p.logger.Warn().
				Str("repo", norm.Repo).
				Str("title", norm.Title).
				Err(err).
				Msg("request blocked by policy")
			return nil, err
		}
	}

	class := p.classify(ctx, norm)
	hints := p.resolveFilesHint(norm, class)
	subtasks, strategy := p.emitPhases(norm, class, hints)

	planID := NewPlanID(norm.RequestedAt, norm.Repo, strings.ToLower(norm.Title))
	plan := &Plan{
		PlanID:      planID,
		Repo:        norm.Repo,
		Title:       norm.Title,
		RequestedBy: norm.RequestedBy,
		RequestedAt: norm.RequestedAt,
		Objective:   norm.Objective,
		Constraints: norm.Constraints,
		Context:     norm.Context,
		Routing:     norm.Routing,
		Subtasks:    subtasks,
		Version:     PlanVersion,
	}
	plan.Context["planner"] = map[string]interface{}{
		"strategy":     strategy,
		"subtaskCount": len(subtasks),
		"docsOnly":     class.DocsOnly,
		"analysisOnly": class.AnalysisOnly,
	}

	validated, err := p.schema.ValidatePlan(plan)
	if err != nil {
		// The planner producing an invalid plan is an engine defect, not a
		// caller mistake.
		return nil, NewPermanentError("planner produced an invalid plan", err).
			WithCode(ErrCodePlanner).
			WithPlan(planID)
	}

	p.logger.Info().
		Str("plan_id", validated.PlanID).
		Int("subtasks", len(validated.Subtasks)).
		Str("strategy", strategy).
		Msg("plan generated")
	return validated, nil
}

// normalize fills defaults and rejects requests missing required fields.
// The caller's request is not mutated.
func (p *Planner) normalize(req *TaskRequest) (*TaskRequest, error) {
	if req == nil {
		return nil, NewValidationError("task request is nil", nil).WithCode(ErrCodeValidation)
	}
	norm := *req
	norm.Repo = strings.TrimSpace(norm.Repo)
	norm.Title = strings.TrimSpace(norm.Title)
	norm.Objective = strings.TrimSpace(norm.Objective)
	norm.RequestedBy = strings.TrimSpace(norm.RequestedBy)

	if norm.Repo == "" || norm.Title == "" || norm.Objective == "" {
		return nil, NewValidationError("task request must include repo, title, and objective", nil).
			WithCode(ErrCodeValidation)
	}
	if norm.RequestedBy == "" {
		norm.RequestedBy = "unknown"
	}
	if norm.RequestedAt <= 0 {
		norm.RequestedAt = p.now().UnixMilli()
	}
	if norm.Routing.Agent == "" {
		norm.Routing.Agent = p.opts.DefaultAgent
	}
	if norm.Routing.Model == "" {
		norm.Routing.Model = p.opts.DefaultModel
	}
	if norm.Routing.Effort == "" {
		norm.Routing.Effort = p.opts.DefaultEffort
	}

	constraints := make(map[string]interface{}, len(norm.Constraints)+1)
	for k, v := range norm.Constraints {
		constraints[k] = v
	}
	if _, ok := constraints["systemPolicy"]; !ok {
		constraints["systemPolicy"] = map[string]interface{}{
			"secretsAccess":     "forbidden",
			"dangerousCommands": "forbidden",
			"networkUsage":      "explicitly justify before use",
		}
	}
	norm.Constraints = constraints

	contextMap := make(map[string]interface{}, len(norm.Context)+1)
	for k, v := range norm.Context {
		contextMap[k] = v
	}
	norm.Context = contextMap
	return &norm, nil
}

// Classification heuristics. Markers cover the intake languages the
// orchestrator has seen in production requests.
var (
	codeMarkers = []string{
		"fix", "implement", "refactor", "add ", "build", "create", "wire",
		"migrate", "upgrade", "bug", "error", "fail", "broken",
		"修复", "实现", "重构", "修改", "构建",
	}
	analysisMarkers = []string{
		"analyze", "analysis", "investigate", "review", "audit", "inspect",
		"understand", "confirm", "progress", "summarize",
		"检查", "阅读", "确认", "进度", "评估", "分析",
	}
	docsMarkers = []string{
		"document", "documentation", "docs", "readme", "changelog",
		"handoff", "guide", "文档", "指南",
	}
)

// classify determines whether the request changes code, documents, or only
// analyzes. Analysis signals outrank documentation signals: a request that
// reads code and docs to report progress is analysis, not a docs change.
func (p *Planner) classify(ctx context.Context, req *TaskRequest) Classification {
	if p.classifier != nil {
		if c, ok, err := p.classifier.Classify(ctx, req); err != nil {
			p.logger.Warn().Err(err).Msg("classifier override failed, using builtin heuristics")
		} else if ok {
			return c
		}
	}

	text := strings.ToLower(req.Title + " " + req.Objective)
	if containsAny(text, codeMarkers) {
		return Classification{}
	}
	if containsAny(text, analysisMarkers) {
		return Classification{AnalysisOnly: true}
	}
	if containsAny(text, docsMarkers) {
		return Classification{DocsOnly: true}
	}
	return Classification{}
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// filesHintPartition splits a hint list into implementation, test, and
// documentation surfaces, preserving the original order inside each bucket.
type filesHintPartition struct {
	impl  []string
	tests []string
	docs  []string
}

func partitionFilesHint(hints []string) filesHintPartition {
	var part filesHintPartition
	for _, h := range hints {
		switch {
		case isDocsPath(h):
			part.docs = append(part.docs, h)
		case isTestPath(h):
			part.tests = append(part.tests, h)
		default:
			part.impl = append(part.impl, h)
		}
	}
	return part
}

func isDocsPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".rst") ||
		strings.HasPrefix(lower, "docs/") ||
		strings.Contains(lower, "/docs/")
}

func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	base := filepath.Base(lower)
	return strings.HasPrefix(lower, "tests/") ||
		strings.Contains(lower, "/tests/") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, "_test.") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}

// resolveFilesHint picks the working file set: explicit request hints win,
// then context["filesHint"], then repo discovery, then a conservative
// default so the worker knows where to start.
func (p *Planner) resolveFilesHint(req *TaskRequest, class Classification) []string {
	if len(req.FilesHint) > 0 {
		return req.FilesHint
	}
	if raw, ok := req.Context["filesHint"].([]interface{}); ok {
		hints := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				hints = append(hints, strings.TrimSpace(s))
			}
		}
		if len(hints) > 0 {
			return hints
		}
	}
	if hints := p.discoverRepoFiles(req.Repo); len(hints) > 0 {
		return hints
	}
	return []string{"README.md", "package.json", "src"}
}

// discoveryRoots are the repo subtrees discovery walks, in priority order.
var discoveryRoots = []string{"src", "lib", "scripts", "tests", "test"}

// discoveryManifests are root-level files always worth reading first.
var discoveryManifests = []string{
	"README.md", "package.json", "go.mod", "pyproject.toml",
	"Cargo.toml", "setup.py", "Makefile",
}

// discoverRepoFiles collects entry files from the local checkout under
// <BaseDir>/repos/<repo>. Returns nil when the checkout does not exist.
func (p *Planner) discoverRepoFiles(repo string) []string {
	if p.opts.BaseDir == "" {
		return nil
	}
	root := filepath.Join(p.opts.BaseDir, "repos", repo)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil
	}

	var found []string
	for _, name := range discoveryManifests {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			found = append(found, name)
		}
	}

	for _, sub := range discoveryRoots {
		dir := filepath.Join(root, sub)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		var files []string
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		sort.Strings(files)
		found = append(found, files...)
		if len(found) >= p.opts.DiscoveryLimit {
			found = found[:p.opts.DiscoveryLimit]
			break
		}
	}
	return found
}

// phase is one emitted decomposition step.
type phase struct {
	title       string
	description string
	filesHint   []string
}

// emitPhases turns the classified request into an ordered subtask chain.
// Code tasks get two to four phases. Analysis and documentation requests
// stay a single subtask so the plan never invents implementation work.
func (p *Planner) emitPhases(req *TaskRequest, class Classification, hints []string) ([]Subtask, string) {
	part := partitionFilesHint(hints)

	var phases []phase
	switch {
	case class.AnalysisOnly:
		// Analysis reads everything except dedicated documentation trees.
		var analysisHints []string
		for _, h := range hints {
			lower := strings.ToLower(h)
			if strings.HasPrefix(lower, "docs/") || strings.Contains(lower, "/docs/") {
				continue
			}
			analysisHints = append(analysisHints, h)
		}
		if len(analysisHints) == 0 {
			analysisHints = hints
		}
		phases = []phase{{
			title: phaseAnalyze,
			description: fmt.Sprintf(
				"Read the relevant code and records, then report findings for: %s", req.Objective),
			filesHint: analysisHints,
		}}
	case class.DocsOnly:
		docsHints := part.docs
		if len(docsHints) == 0 {
			docsHints = hints
		}
		phases = []phase{{
			title: phaseDocument,
			description: fmt.Sprintf(
				"Update the documentation surfaces to satisfy: %s", req.Objective),
			filesHint: docsHints,
		}}
	default:
		phases = p.codePhases(req, part)
	}

	strategy := PlannerStrategy
	if len(phases) == 0 {
		// Single subtask carrying the whole objective when no phase applies.
		strategy = FallbackStrategy
		phases = []phase{{
			title:       req.Title,
			description: req.Objective,
			filesHint:   hints,
		}}
	}

	dod := defaultDefinitionOfDone(req.Constraints)
	subtasks := make([]Subtask, len(phases))
	for i, ph := range phases {
		id := fmt.Sprintf("S%d", i+1)
		var deps []string
		if i > 0 {
			deps = []string{fmt.Sprintf("S%d", i)}
		}
		subtasks[i] = Subtask{
			ID:               id,
			Title:            ph.title,
			Description:      ph.description,
			Agent:            req.Routing.Agent,
			Model:            req.Routing.Model,
			Effort:           req.Routing.Effort,
			WorktreeStrategy: WorktreeIsolated,
			DependsOn:        deps,
			FilesHint:        ph.filesHint,
			Prompt: compilePrompt(promptInput{
				Repo:             req.Repo,
				Title:            req.Title,
				PhaseTitle:       ph.title,
				Objective:        req.Objective,
				HasConstraints:   len(req.Constraints) > 0,
				DefinitionOfDone: dod,
				FilesHint:        ph.filesHint,
			}),
			DefinitionOfDone: dod,
		}
	}
	return subtasks, strategy
}

// codePhases emits the phase chain for a code-change request. The full
// chain is prepare, implement, validate, document. Simple requests collapse
// to implement plus validate; the prepare phase appears only for complex
// requests, and the documentation phase additionally needs documentation
// signals.
func (p *Planner) codePhases(req *TaskRequest, part filesHintPartition) []phase {
	complex := p.isComplex(req)
	includeDocs := complex &&
		(len(part.docs) > 0 || containsAny(strings.ToLower(req.Objective), docsMarkers))

	implHints := part.impl
	if len(implHints) == 0 {
		implHints = part.tests
	}
	validateHints := append(append([]string{}, part.tests...), part.impl...)
	if len(validateHints) == 0 {
		validateHints = implHints
	}

	var phases []phase
	if complex {
		phases = append(phases, phase{
			title: phasePrepare,
			description: fmt.Sprintf(
				"Survey the affected modules and stage the groundwork for: %s", req.Objective),
			filesHint: implHints,
		})
	}
	phases = append(phases, phase{
		title: phaseImplement,
		description: fmt.Sprintf(
			"Make the primary change for: %s", req.Objective),
		// Rotate the implementation hints so sibling phases lead with
		// different files.
		filesHint: rotateHints(implHints, len(phases)),
	})
	phases = append(phases, phase{
		title: phaseValidate,
		description: fmt.Sprintf(
			"Add or update tests proving the change for: %s", req.Objective),
		filesHint: validateHints,
	})
	if includeDocs {
		docsHints := part.docs
		if len(docsHints) == 0 {
			docsHints = []string{"README.md"}
		}
		phases = append(phases, phase{
			title: phaseDocument,
			description: fmt.Sprintf(
				"Record the change and operator guidance for: %s", req.Objective),
			filesHint: docsHints,
		})
	}
	return phases
}

// isComplex decides whether a code request carries enough scope to warrant
// the full phase chain. A single clause separator already signals compound
// work. Thresholds are tunables, not hard laws.
func (p *Planner) isComplex(req *TaskRequest) bool {
	words := len(strings.Fields(req.Objective))
	if words >= p.opts.ComplexWordThreshold {
		return true
	}
	separators := strings.Count(req.Objective, ",") +
		strings.Count(req.Objective, ";") +
		strings.Count(req.Objective, "，") +
		strings.Count(req.Objective, "、") +
		strings.Count(strings.ToLower(req.Objective), " and ")
	return separators >= p.opts.ComplexClauseThreshold
}

// rotateHints shifts the hint list by n positions so sibling phases do not
// claim identical leading paths.
func rotateHints(hints []string, n int) []string {
	if len(hints) < 2 || n == 0 {
		return hints
	}
	n = n % len(hints)
	rotated := make([]string, 0, len(hints))
	rotated = append(rotated, hints[n:]...)
	rotated = append(rotated, hints[:n]...)
	return rotated
}
