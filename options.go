package goap

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/goap/pattern"
)

// PlannerOption configures a Planner.
type PlannerOption func(*plannerConfig)

// plannerConfig holds optional collaborators for a Planner instance.
type plannerConfig struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	library *pattern.Library
	sink    OutcomeSink
}

// WithLogger sets a custom logger for the planner.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) PlannerOption {
	return func(c *plannerConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for distributed tracing.
// Each planning request becomes one span with pattern/search
// attributes attached.
func WithTracer(tracer trace.Tracer) PlannerOption {
	return func(c *plannerConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter. The planner registers
// counters for plan requests by origin and a histogram of planning
// latency.
func WithMeter(meter metric.Meter) PlannerOption {
	return func(c *plannerConfig) {
		c.meter = meter
	}
}

// WithLibrary sets the pattern library used for reuse and learning.
// Without a library the planner always searches, regardless of the
// enable_pattern_learning flag.
func WithLibrary(lib *pattern.Library) PlannerOption {
	return func(c *plannerConfig) {
		c.library = lib
	}
}

// WithOutcomeSink sets the append-only sink receiving every tracked
// execution outcome.
func WithOutcomeSink(sink OutcomeSink) PlannerOption {
	return func(c *plannerConfig) {
		c.sink = sink
	}
}
