package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the orchestrator.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	// Planner metrics
	PlansGenerated     *prometheus.CounterVec
	PlanDuration       *prometheus.HistogramVec
	ValidationFailures *prometheus.CounterVec
	PolicyBlocks       *prometheus.CounterVec

	// Dispatch metrics
	SubtasksQueued   *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	QueueDepth       prometheus.Gauge

	// Supervision metrics
	SubtaskRetries   *prometheus.CounterVec
	SubtaskFailures  *prometheus.CounterVec
	SubtasksComplete *prometheus.CounterVec
	TickDuration     *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	registry := prometheus.NewRegistry()
	ns := cfg.Namespace
	if ns == "" {
		ns = "aidev"
	}

	m := &Metrics{
		config:   cfg,
		registry: registry,

		PlansGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "plans_generated_total",
				Help:      "Total number of plans generated by strategy",
			},
			[]string{"strategy"},
		),
		PlanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "plan_duration_seconds",
				Help:      "Time taken to decompose a request into a plan",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "validation_failures_total",
				Help:      "Total number of plan validation failures by issue kind",
			},
			[]string{"kind"},
		),
		PolicyBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "policy_blocks_total",
				Help:      "Total number of task requests blocked by policy",
			},
			[]string{"policy"},
		),

		SubtasksQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "subtasks_queued_total",
				Help:      "Total number of subtasks dispatched to the queue by agent",
			},
			[]string{"agent"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "dispatch_duration_seconds",
				Help:      "Time taken by a single dispatch pass",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "queue_depth",
				Help:      "Current number of pending queue files",
			},
		),

		SubtaskRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "subtask_retries_total",
				Help:      "Total number of subtask retries by agent",
			},
			[]string{"agent"},
		),
		SubtaskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "subtask_failures_total",
				Help:      "Total number of subtasks that exhausted their retry budget",
			},
			[]string{"agent"},
		),
		SubtasksComplete: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "subtasks_complete_total",
				Help:      "Total number of subtasks that completed successfully",
			},
			[]string{"agent"},
		),
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "tick_duration_seconds",
				Help:      "Time taken by a single supervisor tick",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"plan_status"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "errors_total",
				Help:      "Total number of classified errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.PlansGenerated,
		m.PlanDuration,
		m.ValidationFailures,
		m.PolicyBlocks,
		m.SubtasksQueued,
		m.DispatchDuration,
		m.QueueDepth,
		m.SubtaskRetries,
		m.SubtaskFailures,
		m.SubtasksComplete,
		m.TickDuration,
		m.ErrorsTotal,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// It blocks until the context is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Timer measures the duration of an operation against a histogram.
type Timer struct {
	start     time.Time
	histogram *prometheus.HistogramVec
	labels    []string
}

// NewTimer starts a timer for the given histogram and labels.
func NewTimer(histogram *prometheus.HistogramVec, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: histogram,
		labels:    labels,
	}
}

// ObserveDuration records the elapsed time.
func (t *Timer) ObserveDuration() {
	if t.histogram != nil {
		t.histogram.WithLabelValues(t.labels...).Observe(time.Since(t.start).Seconds())
	}
}
