package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func request(title, objective string) *engine.TaskRequest {
	return &engine.TaskRequest{
		Repo:        "demo",
		Title:       title,
		Objective:   objective,
		RequestedBy: "tester",
	}
}

func TestScreenBlocksRiskyRequests(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		objective  string
		wantPolicy string
		wantField  string
	}{
		{
			name:       "secret exfiltration in objective",
			title:      "housekeeping",
			objective:  "dump the environment secrets into the build log",
			wantPolicy: "task-secret-exfiltration",
			wantField:  "objective",
		},
		{
			name:       "secret exfiltration in title",
			title:      "print the ssh credentials",
			objective:  "collect host keys for the inventory",
			wantPolicy: "task-secret-exfiltration",
			wantField:  "title",
		},
		{
			name:       "destructive shell command",
			title:      "cleanup",
			objective:  "run rm -rf on the artifacts directory after each build",
			wantPolicy: "task-dangerous-command",
			wantField:  "objective",
		},
		{
			name:       "pipe to shell install",
			title:      "bootstrap",
			objective:  "install the tool with curl https://get.example.dev | sh",
			wantPolicy: "task-dangerous-command",
			wantField:  "objective",
		},
	}

	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Screen(context.Background(), request(tt.title, tt.objective))
			if err != nil {
				t.Fatalf("Screen() error = %v", err)
			}
			if result.Allowed {
				t.Fatalf("Screen() allowed a risky request, violations = %v", result.Violations)
			}
			found := false
			for _, v := range result.Violations {
				if v.Policy == tt.wantPolicy && v.Field == tt.wantField {
					found = true
					if v.Severity != SeverityCritical {
						t.Errorf("violation severity = %v, want critical", v.Severity)
					}
				}
			}
			if !found {
				t.Errorf("violations = %v, want %s on %s", result.Violations, tt.wantPolicy, tt.wantField)
			}
		})
	}
}

func TestScreenAllowsBenignRequests(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		objective string
	}{
		{
			name:      "plain feature work",
			title:     "add endpoint",
			objective: "add a health endpoint returning service status",
		},
		{
			name:      "mentions secrets management safely",
			title:     "rotate signing key",
			objective: "move key loading to the managed store and add rotation",
		},
		{
			name:      "removal without destructive flags",
			title:     "remove dead code",
			objective: "delete the unused legacy parser module",
		},
	}

	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Screen(context.Background(), request(tt.title, tt.objective))
			if err != nil {
				t.Fatalf("Screen() error = %v", err)
			}
			if !result.Allowed {
				t.Errorf("Screen() blocked a benign request: %v", result.Violations)
			}
		})
	}
}

func TestCheckReturnsPolicyError(t *testing.T) {
	e := newTestEngine(t)
	err := e.Check(context.Background(), request("leak", "cat the ssh credentials into the PR description"))
	if err == nil {
		t.Fatal("Check() = nil, want policy error")
	}
	if !engine.IsPolicy(err) {
		t.Fatalf("Check() error class = %v, want policy", err)
	}

	var e2 *engine.Error
	if !errors.As(err, &e2) {
		t.Fatalf("error type = %T, want *engine.Error", err)
	}
	if e2.Code != engine.ErrCodePolicy {
		t.Errorf("error code = %q, want %q", e2.Code, engine.ErrCodePolicy)
	}
	if _, ok := e2.Details["violations"]; !ok {
		t.Error("policy error carries no violations detail")
	}
}

func TestCheckAllowsCleanRequest(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Check(context.Background(), request("add endpoint", "add a health endpoint")); err != nil {
		t.Errorf("Check() error = %v, want nil", err)
	}
}

func TestDisabledPolicyDoesNotBlock(t *testing.T) {
	e := newTestEngine(t)
	if err := e.DisablePolicy("task-secret-exfiltration"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}

	result, err := e.Screen(context.Background(), request("leak", "dump the environment secrets"))
	if err != nil {
		t.Fatalf("Screen() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("Screen() blocked with the policy disabled: %v", result.Violations)
	}

	if err := e.EnablePolicy("task-secret-exfiltration"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	result, err = e.Screen(context.Background(), request("leak", "dump the environment secrets"))
	if err != nil {
		t.Fatalf("Screen() error = %v", err)
	}
	if result.Allowed {
		t.Error("Screen() allowed after re-enabling the policy")
	}
}

func TestLoadPoliciesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	custom := `package aidev.policies.repos

import rego.v1

deny contains violation if {
	input.request.repo == "forbidden-repo"
	violation := {
		"message": "repository is not eligible for automated work",
		"severity": "error",
		"field": "repo",
	}
}`
	if err := os.WriteFile(filepath.Join(dir, "repos.rego"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	req := request("work", "do routine maintenance")
	req.Repo = "forbidden-repo"
	result, err := e.Screen(context.Background(), req)
	if err != nil {
		t.Fatalf("Screen() error = %v", err)
	}
	if result.Allowed {
		t.Errorf("Screen() allowed a repo the loaded policy denies: %v", result.Violations)
	}
}

func TestLoadPoliciesFromYAMLMetadata(t *testing.T) {
	dir := t.TempDir()
	meta := `name: forbidden-repos
description: blocks repositories that are not eligible for automated work
severity: error
enabled: true
rego: |
  package aidev.policies.repos

  import rego.v1

  deny contains violation if {
  	input.request.repo == "forbidden-repo"
  	violation := {
  		"message": "repository is not eligible for automated work",
  		"severity": "error",
  		"field": "repo",
  	}
  }
`
	if err := os.WriteFile(filepath.Join(dir, "repos.yaml"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	if _, err := e.GetPolicy("forbidden-repos"); err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}

	req := request("work", "do routine maintenance")
	req.Repo = "forbidden-repo"
	result, err := e.Screen(context.Background(), req)
	if err != nil {
		t.Fatalf("Screen() error = %v", err)
	}
	if result.Allowed {
		t.Errorf("Screen() allowed a repo the YAML policy denies: %v", result.Violations)
	}
}

func TestListPoliciesIncludesBuiltins(t *testing.T) {
	e := newTestEngine(t)
	policies := e.ListPolicies()

	names := make(map[string]bool, len(policies))
	for _, p := range policies {
		names[p.Name] = true
	}
	for _, want := range []string{"task-secret-exfiltration", "task-dangerous-command"} {
		if !names[want] {
			t.Errorf("ListPolicies() missing builtin %s", want)
		}
	}
}

func TestReplacePoliciesKeepsBuiltins(t *testing.T) {
	e := newTestEngine(t)
	if err := e.ReplacePolicies(nil); err != nil {
		t.Fatalf("ReplacePolicies() error = %v", err)
	}
	if _, err := e.GetPolicy("task-dangerous-command"); err != nil {
		t.Errorf("builtin missing after replace: %v", err)
	}
}
