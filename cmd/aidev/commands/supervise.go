package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSuperviseCommand() *cobra.Command {
	var (
		once     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "supervise <plan-id>",
		Short: "Supervise a plan's execution, retrying failed subtasks",
		Long: `Poll the execution registry for outcome signals and fold them into the
plan's dispatch state. Successful subtasks become complete; failed
subtasks are retried with a rerun directive until the attempt budget
runs out, then marked terminally failed. Independent subtasks keep
running after one fails.

With --once a single tick runs and the derived plan status is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			planID := args[0]
			if once {
				status, err := a.supervisor.Tick(ctx, planID)
				if err != nil {
					return err
				}
				fmt.Printf("plan %s: %s\n", planID, status)
				return nil
			}

			if interval <= 0 {
				interval = a.cfg.Dispatch.SuperviseInterval
			}
			a.serveMetrics(ctx)
			status, err := a.supervisor.Supervise(ctx, planID, interval)
			if err != nil {
				return err
			}
			fmt.Printf("plan %s finished: %s\n", planID, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single supervision tick")
	cmd.Flags().DurationVar(&interval, "interval", 0, "supervision interval")

	return cmd
}
