package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newDispatchCommand() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
		maxWait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dispatch <plan-id>",
		Short: "Dispatch dependency-ready subtasks onto the queue",
		Long: `Dispatch every pending subtask whose dependencies are complete. Each
subtask is written to the queue exactly once; re-running dispatch never
duplicates work.

With --watch the command keeps dispatching as dependencies complete,
until the plan reaches a terminal state.`,
		Example: `  # One dispatch pass
  aidev dispatch 1756200000000-billing-rate-limiter

  # Keep dispatching until the plan is terminal
  aidev dispatch 1756200000000-billing-rate-limiter --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			planID := args[0]
			if watch {
				if interval <= 0 {
					interval = a.cfg.Dispatch.Interval
				}
				if maxWait <= 0 {
					maxWait = a.cfg.Dispatch.MaxWait
				}
				a.serveMetrics(ctx)
				return a.dispatcher.Watch(ctx, planID, interval, maxWait)
			}

			queued, err := a.dispatcher.DispatchReady(ctx, planID)
			if err != nil {
				return err
			}
			if len(queued) == 0 {
				fmt.Println("no subtasks ready to dispatch")
				return nil
			}
			fmt.Printf("queued %d subtask(s): %s\n", len(queued), strings.Join(queued, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep dispatching until the plan is terminal")
	cmd.Flags().DurationVar(&interval, "interval", 0, "dispatch interval in watch mode")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "watch deadline (0 for none)")

	return cmd
}
