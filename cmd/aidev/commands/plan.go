package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gordon8018/ai-devops/pkg/engine"
	"github.com/gordon8018/ai-devops/pkg/telemetry"
)

func newPlanCommand() *cobra.Command {
	var (
		requestFile string
		repo        string
		title       string
		objective   string
		requestedBy string
		agent       string
		model       string
		effort      string
		filesHint   []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Decompose a task request into an archived plan",
		Long: `Decompose a task request into a validated, dependency-ordered subtask
plan and archive it.

The request passes the pre-flight policy filter first; a blocked request
produces no artifacts. The resulting plan is immutable once archived.`,
		Example: `  # Plan from a request file
  aidev plan --file request.json

  # Plan from flags
  aidev plan --repo billing --title "Rate limiter" \
    --objective "Implement a rate limiter for the public API"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			req, err := loadRequest(a, requestFile, &engine.TaskRequest{
				Repo:        repo,
				Title:       title,
				Objective:   objective,
				RequestedBy: requestedBy,
				Routing: engine.Routing{
					Agent:  engine.Agent(agent),
					Model:  model,
					Effort: engine.Effort(effort),
				},
				FilesHint: filesHint,
			})
			if err != nil {
				return err
			}

			plan, err := runPlan(ctx, a, req)
			if err != nil {
				return err
			}

			return printPlan(plan)
		},
	}

	cmd.Flags().StringVarP(&requestFile, "file", "f", "", "task request JSON file")
	cmd.Flags().StringVar(&repo, "repo", "", "target repository name")
	cmd.Flags().StringVar(&title, "title", "", "short task title")
	cmd.Flags().StringVar(&objective, "objective", "", "full task objective")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "requesting principal")
	cmd.Flags().StringVar(&agent, "agent", "", "downstream agent (codex, claude)")
	cmd.Flags().StringVar(&model, "model", "", "model identifier")
	cmd.Flags().StringVar(&effort, "effort", "", "effort tier (low, medium, high)")
	cmd.Flags().StringSliceVar(&filesHint, "files-hint", nil, "files the task is expected to touch")

	return cmd
}

func newPlanAndDispatchCommand() *cobra.Command {
	var (
		requestFile string
		watch       bool
		interval    time.Duration
		maxWait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "plan-and-dispatch",
		Short: "Plan a task request and immediately dispatch ready subtasks",
		Example: `  # Plan and dispatch, then keep dispatching as dependencies complete
  aidev plan-and-dispatch --file request.json --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			req, err := loadRequest(a, requestFile, nil)
			if err != nil {
				return err
			}

			plan, err := runPlan(ctx, a, req)
			if err != nil {
				return err
			}

			queued, err := a.dispatcher.DispatchReady(ctx, plan.PlanID)
			if err != nil {
				return err
			}
			fmt.Printf("plan %s archived, %d subtask(s) queued: %s\n",
				plan.PlanID, len(queued), strings.Join(queued, ", "))

			if watch {
				if interval <= 0 {
					interval = a.cfg.Dispatch.Interval
				}
				if maxWait <= 0 {
					maxWait = a.cfg.Dispatch.MaxWait
				}
				a.serveMetrics(ctx)
				return a.dispatcher.Watch(ctx, plan.PlanID, interval, maxWait)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestFile, "file", "f", "", "task request JSON file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep dispatching until the plan is terminal")
	cmd.Flags().DurationVar(&interval, "interval", 0, "dispatch interval in watch mode")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "watch deadline (0 for none)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// loadRequest reads the request from a file when given, falling back to the
// flag-built request. File requests are checked against the intake schema
// before planning.
func loadRequest(a *app, requestFile string, fromFlags *engine.TaskRequest) (*engine.TaskRequest, error) {
	if requestFile == "" {
		if fromFlags == nil || fromFlags.Repo == "" {
			return nil, fmt.Errorf("either --file or --repo/--title/--objective is required")
		}
		return fromFlags, nil
	}

	data, err := os.ReadFile(requestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("request file is not valid JSON: %w", err)
	}
	if err := a.parser.ValidateWithSchema(raw, "taskRequest"); err != nil {
		return nil, fmt.Errorf("request file failed schema validation: %w", err)
	}

	var req engine.TaskRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// runPlan executes the planning pipeline and archives the result.
func runPlan(ctx context.Context, a *app, req *engine.TaskRequest) (*engine.Plan, error) {
	spanCtx, span := a.tel.Tracer.StartPlanSpan(ctx, req.Repo, "")
	defer span.End()

	timer := telemetry.NewTimer(a.tel.Metrics.PlanDuration, engine.PlannerStrategy)

	plan, err := a.planner.Plan(spanCtx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		reportPlanError(a, err)
		return nil, err
	}
	timer.ObserveDuration()

	if err := a.plans.Archive(spanCtx, plan); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	a.tel.Metrics.PlansGenerated.WithLabelValues(planStrategy(plan)).Inc()
	telemetry.RecordSuccess(span)
	return plan, nil
}

// reportPlanError records the advisory event for blocked or invalid
// requests and prints validation issues.
func reportPlanError(a *app, err error) {
	switch {
	case engine.IsPolicy(err):
		_ = a.events.RecordEvent(context.Background(), "", "", engine.EventPolicyViolation, err.Error())
	case engine.IsValidation(err):
		_ = a.events.RecordEvent(context.Background(), "", "", engine.EventValidationFailed, err.Error())
		for _, issue := range engine.IssuesFrom(err) {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", issue.Field, issue.Message)
		}
	}
}

func planStrategy(plan *engine.Plan) string {
	if planner, ok := plan.Context["planner"].(map[string]interface{}); ok {
		if strategy, ok := planner["strategy"].(string); ok {
			return strategy
		}
	}
	return engine.FallbackStrategy
}

func printPlan(plan *engine.Plan) error {
	if jsonOutput {
		return printJSON(plan)
	}

	fmt.Printf("plan %s archived (%d subtasks)\n", plan.PlanID, len(plan.Subtasks))
	for i := range plan.Subtasks {
		st := &plan.Subtasks[i]
		deps := "-"
		if len(st.DependsOn) > 0 {
			deps = strings.Join(st.DependsOn, ",")
		}
		fmt.Printf("  %-4s %-45s agent=%-6s deps=%s\n", st.ID, st.Title, st.Agent, deps)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
