package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <plan-id>",
		Short: "Show a plan's dispatch state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			planID := args[0]
			plan, err := a.plans.Load(ctx, planID)
			if err != nil {
				return err
			}
			state, err := a.plans.States().Load(planID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"planId":  planID,
					"status":  state.PlanStatus(),
					"version": state.Version,
					"state":   state.Subtasks,
				})
			}

			fmt.Printf("plan %s: %s (state v%d, updated %s)\n",
				planID, state.PlanStatus(), state.Version,
				time.UnixMilli(state.UpdatedAt).Format(time.RFC3339))

			ids := make([]string, 0, len(state.Subtasks))
			for id := range state.Subtasks {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range ids {
				st := state.Subtasks[id]
				title := ""
				if sub := plan.SubtaskByID(id); sub != nil {
					title = sub.Title
				}
				fmt.Printf("  %-4s %-10s attempts=%d/%d %s\n",
					id, st.Status, st.Attempts, st.MaxAttempts, title)
				if st.Status == engine.StatusFailed && st.LastFailure != "" {
					fmt.Printf("       last failure: %s\n", st.LastFailure)
				}
			}
			return nil
		},
	}

	return cmd
}
