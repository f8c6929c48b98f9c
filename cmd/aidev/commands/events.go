package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEventsCommand() *cobra.Command {
	var (
		planID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the audit event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			events, err := a.events.ListEvents(ctx, planID, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(events)
			}

			if len(events) == 0 {
				fmt.Println("no events")
				return nil
			}
			for _, e := range events {
				subtask := e.SubtaskID
				if subtask == "" {
					subtask = "-"
				}
				fmt.Printf("%s  %-20s %-48s %-4s %s\n",
					e.Timestamp, e.Kind, e.PlanID, subtask, e.Detail)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&planID, "plan", "p", "", "filter by plan id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of events")

	return cmd
}
