package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan.json>",
		Short: "Validate a plan document without archiving it",
		Long: `Validate a plan document against the plan schema: structural fields,
referential integrity of dependsOn, acyclicity, and size bounds. All
issues are reported in one pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read plan file: %w", err)
			}

			schema := engine.NewSchema()
			candidate, err := schema.ParsePlan(data)
			if err != nil {
				return err
			}

			plan, err := schema.ValidatePlan(candidate)
			if err != nil {
				issues := engine.IssuesFrom(err)
				if jsonOutput {
					return printJSON(map[string]interface{}{
						"valid":  false,
						"issues": issues,
					})
				}
				fmt.Printf("plan is invalid (%d issues)\n", len(issues))
				for _, issue := range issues {
					scope := issue.Field
					if issue.SubtaskID != "" {
						scope = issue.SubtaskID + "." + issue.Field
					}
					fmt.Printf("  [%s] %s: %s\n", issue.Kind, scope, issue.Message)
				}
				os.Exit(1)
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"valid":    true,
					"planId":   plan.PlanID,
					"subtasks": len(plan.Subtasks),
				})
			}
			fmt.Printf("plan %s is valid (%d subtasks)\n", plan.PlanID, len(plan.Subtasks))
			return nil
		},
	}

	return cmd
}
