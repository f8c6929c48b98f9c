package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		secretExfiltrationPolicy(),
		dangerousCommandPolicy(),
	}
}

// secretExfiltrationPolicy blocks requests whose text asks an agent to reveal
// secrets, tokens, or credentials.
func secretExfiltrationPolicy() Policy {
	return Policy{
		Name:        "task-secret-exfiltration",
		Description: "Blocks task requests that ask an agent to reveal secrets, tokens, or credentials",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "secrets"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package aidev.policies.secrets

import rego.v1

risk_pattern := "(?i)(exfiltrate|dump|print|show|cat).{0,40}(secret|token|env|environment|ssh|credential)"

screened_fields := ["title", "objective"]

deny contains violation if {
	input.request
	some field in screened_fields
	text := input.request[field]
	regex.match(risk_pattern, text)
	violation := {
		"message": sprintf("request %s matches a secret-exfiltration pattern", [field]),
		"severity": "critical",
		"field": field,
	}
}`,
	}
}

// dangerousCommandPolicy blocks requests whose text embeds destructive shell
// commands or pipe-to-shell installs.
func dangerousCommandPolicy() Policy {
	return Policy{
		Name:        "task-dangerous-command",
		Description: "Blocks task requests that embed destructive shell commands or pipe-to-shell installs",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "commands"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package aidev.policies.commands

import rego.v1

risk_pattern := `+"`"+`(?i)(rm\s+-rf|chmod\s+777|curl.+\|\s*sh|wget.+\|\s*sh)`+"`"+`

screened_fields := ["title", "objective"]

deny contains violation if {
	input.request
	some field in screened_fields
	text := input.request[field]
	regex.match(risk_pattern, text)
	violation := {
		"message": sprintf("request %s matches a dangerous-command pattern", [field]),
		"severity": "critical",
		"field": field,
	}
}`,
	}
}
