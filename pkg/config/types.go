package config

import (
	"time"

	"github.com/gordon8018/ai-devops/pkg/telemetry"
)

// Config is the full orchestrator configuration. Values come from defaults,
// then CUE configuration files, then environment overrides, in that order.
type Config struct {
	// BaseDir is the orchestrator home. All durable artifacts (task archive,
	// queue, registry, event log) live underneath it.
	BaseDir string `json:"baseDir" validate:"required"`

	// Planner configures request decomposition.
	Planner PlannerConfig `json:"planner"`

	// Dispatch configures the dispatch and supervision loops.
	Dispatch DispatchConfig `json:"dispatch"`

	// Registry configures the execution registry reader.
	Registry RegistryConfig `json:"registry"`

	// Policy configures the pre-flight safety filter.
	Policy PolicyConfig `json:"policy"`

	// Telemetry configures logging, tracing, and metrics.
	Telemetry telemetry.Config `json:"telemetry"`
}

// PlannerConfig holds planner tunables.
type PlannerConfig struct {
	// DefaultAgent routes subtasks when the request does not say.
	DefaultAgent string `json:"defaultAgent" validate:"required,oneof=codex claude"`

	// DefaultModel is the model identifier used when the request does not say.
	DefaultModel string `json:"defaultModel" validate:"required"`

	// DefaultEffort is the effort tier used when the request does not say.
	DefaultEffort string `json:"defaultEffort" validate:"required,oneof=low medium high"`

	// MaxDiscoveredFiles caps repository file discovery for hint generation.
	MaxDiscoveredFiles int `json:"maxDiscoveredFiles" validate:"min=1,max=100"`

	// ComplexWordThreshold is the objective word count at which a code task
	// gets the full phase chain instead of the two-phase collapse.
	ComplexWordThreshold int `json:"complexWordThreshold" validate:"min=1"`

	// ComplexClauseThreshold is the number of clause separators at which a
	// code task gets the full phase chain instead of the two-phase collapse.
	ComplexClauseThreshold int `json:"complexClauseThreshold" validate:"min=1"`

	// ClassifierScript is an optional Starlark script that overrides the
	// builtin request classification.
	ClassifierScript string `json:"classifierScript,omitempty"`

	// ClassifierTimeout bounds classifier script execution.
	ClassifierTimeout time.Duration `json:"classifierTimeout"`
}

// DispatchConfig holds dispatch and supervision loop tunables.
type DispatchConfig struct {
	// MaxAttempts bounds execution retries per subtask.
	MaxAttempts int `json:"maxAttempts" validate:"required,min=1,max=10"`

	// Interval is the delay between dispatch passes in watch mode.
	Interval time.Duration `json:"interval" validate:"required"`

	// SuperviseInterval is the delay between supervisor ticks.
	SuperviseInterval time.Duration `json:"superviseInterval" validate:"required"`

	// MaxWait bounds watch mode. Zero means no deadline.
	MaxWait time.Duration `json:"maxWait"`
}

// RegistryConfig holds execution registry reader tunables.
type RegistryConfig struct {
	// Path overrides the registry file location. Empty means the default
	// location under BaseDir.
	Path string `json:"path,omitempty"`

	// Timeout bounds a single registry read.
	Timeout time.Duration `json:"timeout" validate:"required"`
}

// PolicyConfig configures the pre-flight safety filter.
type PolicyConfig struct {
	// Enabled turns screening on. Built-in policies always load when on.
	Enabled bool `json:"enabled"`

	// Paths lists extra .rego or .json policy files or directories.
	Paths []string `json:"paths,omitempty"`

	// Watch reloads policies when files under Paths change.
	Watch bool `json:"watch"`
}

// ValidationError represents a configuration error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error.
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
