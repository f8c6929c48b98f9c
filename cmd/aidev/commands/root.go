// Package commands implements the aidev CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aidev",
		Short: "aidev - AI task orchestration control plane",
		Long: `aidev decomposes development task requests into dependency-ordered
subtask plans and drives them through downstream coding agents.

The pipeline:
  - Pre-flight policy screening of every request (OPA Rego)
  - Phased decomposition into an archived, immutable plan
  - Dependency-aware dispatch onto a file queue, exactly once per subtask
  - Bounded retry supervision fed by the execution registry`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "CUE config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newPlanAndDispatchCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDispatchCommand())
	rootCmd.AddCommand(newSuperviseCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newPlansCommand())
	rootCmd.AddCommand(newAbandonCommand())
	rootCmd.AddCommand(newEventsCommand())

	return rootCmd
}
