package engine

import (
	"fmt"
	"strings"
)

// promptInput collects everything the prompt compiler needs for one subtask.
type promptInput struct {
	Repo             string
	Title            string
	PhaseTitle       string
	Objective        string
	HasConstraints   bool
	DefinitionOfDone []string
	FilesHint        []string
}

// compilePrompt renders the worker prompt for a subtask. The layout is
// stable so downstream agents can rely on the section order.
func compilePrompt(in promptInput) string {
	var b strings.Builder
	b.WriteString("You are the assigned coding agent for this repository.\n\n")
	fmt.Fprintf(&b, "REPOSITORY: %s\n", in.Repo)
	fmt.Fprintf(&b, "TASK TITLE: %s\n", in.Title)
	if in.PhaseTitle != "" {
		fmt.Fprintf(&b, "PHASE: %s\n", in.PhaseTitle)
	}
	b.WriteString("\nOBJECTIVE:\n")
	b.WriteString(in.Objective)
	b.WriteString("\n\nDEFINITION OF DONE:\n")
	for _, item := range in.DefinitionOfDone {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\nBOUNDARIES:\n")
	b.WriteString("- Do not access or print secrets, environment variables, or credentials.\n")
	b.WriteString("- Do not make unrelated refactors.\n")
	b.WriteString("- Prefer minimal, reversible changes.\n")
	if in.HasConstraints {
		b.WriteString("- Respect the explicit constraints attached to this task.\n")
	}
	if len(in.FilesHint) > 0 {
		b.WriteString("\nFILES TO CHECK FIRST:\n")
		for _, item := range in.FilesHint {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	b.WriteString("\nFIRST STEP:\n")
	b.WriteString("- Inspect the relevant files, write a short plan, then execute it.")
	return b.String()
}

// AppendRerunDirective extends a subtask prompt with failure feedback for a
// retry attempt. attempt is 1-based. The base prompt is preserved verbatim
// so the worker keeps the full original context.
func AppendRerunDirective(basePrompt string, attempt int, failureSummary string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	fmt.Fprintf(&b, "\n\nRERUN DIRECTIVE (Retry #%d):\n", attempt)
	b.WriteString("The previous attempt failed. Your ONLY priority is to resolve the failure.\n")
	if failureSummary != "" {
		fmt.Fprintf(&b, "Failure summary: %s\n", failureSummary)
	}
	b.WriteString("\nInstructions:\n")
	b.WriteString("- Read the failure context and identify the root cause.\n")
	b.WriteString("- Apply a minimal fix.\n")
	b.WriteString("- Run the closest local validation before finishing.\n")
	b.WriteString("- Push commits to the SAME branch and update the existing PR.\n")
	return b.String()
}

// defaultDefinitionOfDone returns the baseline acceptance criteria, extended
// with any explicit entries under constraints["definitionOfDone"].
func defaultDefinitionOfDone(constraints map[string]interface{}) []string {
	dod := []string{
		"Implement the requested change or investigation end-to-end.",
		"Preserve unrelated behavior and formatting.",
		"Run the most relevant local validation available before finishing.",
	}
	if constraints == nil {
		return dod
	}
	explicit, ok := constraints["definitionOfDone"].([]interface{})
	if !ok {
		return dod
	}
	for _, item := range explicit {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			dod = append(dod, strings.TrimSpace(s))
		}
	}
	return dod
}
