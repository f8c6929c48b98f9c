// Package config loads and validates orchestrator configuration. Config
// files are CUE; procedural classification hooks are Starlark.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gordon8018/ai-devops/pkg/telemetry"
)

// EnvHome overrides the orchestrator base directory.
const EnvHome = "AI_DEVOPS_HOME"

// EnvConfig points at an extra CUE config file loaded after the defaults.
const EnvConfig = "AI_DEVOPS_CONFIG"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	base := os.Getenv(EnvHome)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".ai-devops")
	}

	return &Config{
		BaseDir: base,
		Planner: PlannerConfig{
			DefaultAgent:           "codex",
			DefaultModel:           "gpt-5.3-codex",
			DefaultEffort:          "medium",
			MaxDiscoveredFiles:     20,
			ComplexWordThreshold:   18,
			ComplexClauseThreshold: 1,
			ClassifierTimeout:      10 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:       3,
			Interval:          5 * time.Second,
			SuperviseInterval: 30 * time.Second,
		},
		Registry: RegistryConfig{
			Timeout: 10 * time.Second,
		},
		Policy: PolicyConfig{
			Enabled: true,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load builds the effective configuration: defaults, then the given CUE
// sources, then the AI_DEVOPS_CONFIG file if set, then environment
// overrides. The result is validated before returning.
func Load(sources ...string) (*Config, error) {
	cfg := DefaultConfig()

	if extra := os.Getenv(EnvConfig); extra != "" {
		sources = append(sources, extra)
	}

	if len(sources) > 0 {
		parser := NewCUEParser()
		if err := parser.ParseInto(cfg, sources); err != nil {
			return nil, err
		}
	}

	// The environment wins over config files for the base directory.
	if base := os.Getenv(EnvHome); base != "" {
		cfg.BaseDir = base
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}
