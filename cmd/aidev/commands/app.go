package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/config"
	"github.com/gordon8018/ai-devops/pkg/engine"
	"github.com/gordon8018/ai-devops/pkg/policy"
	"github.com/gordon8018/ai-devops/pkg/registry"
	"github.com/gordon8018/ai-devops/pkg/stores"
	"github.com/gordon8018/ai-devops/pkg/telemetry"
)

// app wires the orchestrator components for one command invocation.
type app struct {
	cfg        *config.Config
	tel        *telemetry.Telemetry
	logger     zerolog.Logger
	layout     stores.Layout
	plans      *stores.PlanStore
	queue      *stores.FileQueue
	events     *stores.EventStore
	outcomes   *registry.Reader
	policy     *policy.Engine
	planner    *engine.Planner
	dispatcher *engine.Dispatcher
	supervisor *engine.Supervisor
	parser     *config.CUEParser
}

// newApp builds the component graph from configuration.
func newApp(ctx context.Context) (*app, error) {
	var sources []string
	if configPath != "" {
		sources = append(sources, configPath)
	}
	cfg, err := config.Load(sources...)
	if err != nil {
		return nil, err
	}

	telCfg := cfg.Telemetry
	if verbose {
		telCfg.Logging.Level = "debug"
	}
	tel, err := telemetry.NewTelemetry(&telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.Zerolog()

	a := &app{
		cfg:    cfg,
		tel:    tel,
		logger: logger,
		layout: stores.Layout{BaseDir: cfg.BaseDir},
		parser: config.NewCUEParser(),
	}

	a.plans = stores.NewPlanStore(cfg.BaseDir, cfg.Dispatch.MaxAttempts, logger)
	a.queue = stores.NewFileQueue(cfg.BaseDir)

	a.events, err = stores.NewEventStore(a.layout.EventsDBFile())
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	if err := a.events.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize event store: %w", err)
	}

	registryPath := cfg.Registry.Path
	if registryPath == "" {
		registryPath = a.layout.RegistryFile()
	}
	a.outcomes = registry.NewReader(registryPath, cfg.Registry.Timeout, logger)

	var filter engine.PolicyFilter
	if cfg.Policy.Enabled {
		a.policy, err = policy.NewEngine(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
		}
		a.policy.WithMetrics(tel.Metrics)
		if len(cfg.Policy.Paths) > 0 {
			if err := a.policy.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
				return nil, err
			}
			if cfg.Policy.Watch {
				loader := policy.NewLoader(logger)
				if err := loader.Watch(ctx, cfg.Policy.Paths, a.policy.ReplacePolicies); err != nil {
					logger.Warn().Err(err).Msg("policy watch unavailable")
				}
			}
		}
		filter = a.policy
	}

	var classifier engine.Classifier
	if cfg.Planner.ClassifierScript != "" {
		classifier, err = config.NewStarlarkClassifier(
			cfg.Planner.ClassifierScript,
			cfg.Planner.ClassifierTimeout,
			logger,
		)
		if err != nil {
			return nil, err
		}
	}

	a.planner = engine.NewPlanner(engine.NewSchema(), filter, classifier, engine.PlannerOptions{
		DefaultAgent:           engine.Agent(cfg.Planner.DefaultAgent),
		DefaultModel:           cfg.Planner.DefaultModel,
		DefaultEffort:          engine.Effort(cfg.Planner.DefaultEffort),
		ComplexWordThreshold:   cfg.Planner.ComplexWordThreshold,
		ComplexClauseThreshold: cfg.Planner.ComplexClauseThreshold,
		BaseDir:                cfg.BaseDir,
		DiscoveryLimit:         cfg.Planner.MaxDiscoveredFiles,
	}, logger)

	a.dispatcher = engine.NewDispatcher(a.plans, a.plans.States(), a.queue, logger).
		WithEvents(a.events).
		WithMetrics(tel.Metrics)

	a.supervisor = engine.NewSupervisor(a.plans, a.plans.States(), a.outcomes, logger).
		WithDispatcher(a.dispatcher).
		WithEvents(a.events).
		WithMetrics(tel.Metrics)

	return a, nil
}

// serveMetrics exposes the prometheus endpoint for long-running modes.
// A no-op when metrics are disabled in configuration.
func (a *app) serveMetrics(ctx context.Context) {
	if !a.cfg.Telemetry.Metrics.Enabled {
		return
	}
	go func() {
		if err := a.tel.Metrics.StartMetricsServer(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
}

// Close releases the app's resources.
func (a *app) Close(ctx context.Context) {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close event store")
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("failed to shut down telemetry")
		}
	}
}
