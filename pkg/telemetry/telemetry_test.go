package telemetry

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(_ *Config) {}, false},
		{"production passes", func(c *Config) { *c = *ProductionConfig() }, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter when enabled", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, true},
		{"bad exporter ignored when disabled", func(c *Config) {
			c.Tracing.Exporter = "jaeger"
		}, false},
		{"sampling rate out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"metrics address required", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aidev.log")
	logger, err := NewLogger(LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.WithPlanID("plan-a").Info("plan archived")
	logger.Debug("suppressed at info level")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1 (debug suppressed)", len(lines))
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["plan_id"] != "plan-a" {
		t.Errorf("plan_id = %v, want plan-a", entry["plan_id"])
	}
	if entry["message"] != "plan archived" {
		t.Errorf("message = %v, want plan archived", entry["message"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Namespace: "aidev"})
	m.PlansGenerated.WithLabelValues("phased-v1").Inc()
	m.SubtasksQueued.WithLabelValues("codex").Add(2)
	m.QueueDepth.Set(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`aidev_plans_generated_total{strategy="phased-v1"} 1`,
		`aidev_subtasks_queued_total{agent="codex"} 2`,
		`aidev_queue_depth 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestTimerObservesHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Namespace: "aidev"})
	timer := NewTimer(m.DispatchDuration, "pass")
	timer.ObserveDuration()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `aidev_dispatch_duration_seconds_count{mode="pass"} 1`) {
		t.Error("timer observation not recorded")
	}
}

func TestTimerNilHistogram(t *testing.T) {
	timer := NewTimer(nil)
	// Must not panic.
	timer.ObserveDuration()
}
