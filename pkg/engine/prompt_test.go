package engine

import (
	"strings"
	"testing"
)

func TestCompilePromptLayout(t *testing.T) {
	prompt := compilePrompt(promptInput{
		Repo:             "demo",
		Title:            "add endpoint",
		PhaseTitle:       phaseImplement,
		Objective:        "add the health endpoint",
		HasConstraints:   true,
		DefinitionOfDone: []string{"handler responds 200"},
		FilesHint:        []string{"src/server.go"},
	})

	sections := []string{
		"REPOSITORY: demo",
		"TASK TITLE: add endpoint",
		"PHASE: " + phaseImplement,
		"OBJECTIVE:",
		"add the health endpoint",
		"DEFINITION OF DONE:",
		"- handler responds 200",
		"BOUNDARIES:",
		"Respect the explicit constraints",
		"FILES TO CHECK FIRST:",
		"- src/server.go",
		"FIRST STEP:",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(prompt, section)
		if idx < 0 {
			t.Errorf("prompt missing section %q", section)
			continue
		}
		if idx < last {
			t.Errorf("section %q out of order", section)
		}
		last = idx
	}
}

func TestCompilePromptOmitsOptionalSections(t *testing.T) {
	prompt := compilePrompt(promptInput{
		Repo:      "demo",
		Title:     "investigate",
		Objective: "report status",
	})
	if strings.Contains(prompt, "FILES TO CHECK FIRST") {
		t.Error("prompt lists files with no hints given")
	}
	if strings.Contains(prompt, "PHASE:") {
		t.Error("prompt names a phase with none given")
	}
	if strings.Contains(prompt, "explicit constraints") {
		t.Error("prompt mentions constraints with none given")
	}
}

func TestAppendRerunDirective(t *testing.T) {
	base := "do the work"
	prompt := AppendRerunDirective(base, 2, "lint failed")

	if !strings.HasPrefix(prompt, base) {
		t.Error("base prompt not preserved verbatim")
	}
	if !strings.Contains(prompt, "RERUN DIRECTIVE (Retry #2)") {
		t.Error("retry attempt number missing")
	}
	if !strings.Contains(prompt, "Failure summary: lint failed") {
		t.Error("failure summary missing")
	}
	if !strings.Contains(prompt, "SAME branch") {
		t.Error("branch continuity instruction missing")
	}
}

func TestAppendRerunDirectiveWithoutSummary(t *testing.T) {
	prompt := AppendRerunDirective("base", 1, "")
	if strings.Contains(prompt, "Failure summary:") {
		t.Error("empty failure summary rendered")
	}
}

func TestDefaultDefinitionOfDone(t *testing.T) {
	base := defaultDefinitionOfDone(nil)
	if len(base) != 3 {
		t.Fatalf("baseline criteria = %d, want 3", len(base))
	}

	extended := defaultDefinitionOfDone(map[string]interface{}{
		"definitionOfDone": []interface{}{"PR must pass CI", "  ", 42},
	})
	if len(extended) != 4 {
		t.Fatalf("extended criteria = %d, want baseline plus one", len(extended))
	}
	if extended[3] != "PR must pass CI" {
		t.Errorf("explicit criterion = %q, want %q", extended[3], "PR must pass CI")
	}
}
