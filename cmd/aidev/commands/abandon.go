package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAbandonCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abandon <plan-id>",
		Short: "Abandon a plan, stopping all further dispatch and retries",
		Long: `Mark a plan terminally abandoned. Already-queued subtasks are left for
the execution layer to drain; no new dispatches or retries happen.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			planID := args[0]
			if err := a.supervisor.Abandon(ctx, planID, reason); err != nil {
				return err
			}
			fmt.Printf("plan %s abandoned\n", planID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the plan is being abandoned")

	return cmd
}
