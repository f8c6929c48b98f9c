package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPlansCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List archived plans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			summaries, err := a.plans.List(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(summaries)
			}

			if len(summaries) == 0 {
				fmt.Println("no archived plans")
				return nil
			}
			for _, s := range summaries {
				fmt.Printf("%-48s %-10s %2d subtasks  %s  %s\n",
					s.PlanID, s.Status, s.Subtasks,
					time.UnixMilli(s.RequestedAt).Format("2006-01-02 15:04"),
					s.Title)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of plans to list")

	return cmd
}
