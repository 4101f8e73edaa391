package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/toil/ext"
	"github.com/xraph/toil/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/xraph/toil/observability"

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobEnqueued  = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobPostponed = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via OpenTelemetry.
// Register it as an extension to automatically track enqueue rates, start
// counts, completions, terminal failures, retries, and postponements, each
// broken down by job type.
type MetricsExtension struct {
	enqueued  metric.Int64Counter
	started   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	postponed metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If no MeterProvider is configured, noop instruments are
// used and the extension records nothing.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. This variant allows injecting a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	e := &MetricsExtension{}

	// On error, the OTel API returns noop instruments, so the extension
	// degrades gracefully rather than failing construction.
	e.enqueued, _ = meter.Int64Counter(
		"toil.job.enqueued",
		metric.WithDescription("Total number of jobs enqueued"),
		metric.WithUnit("{job}"),
	)
	e.started, _ = meter.Int64Counter(
		"toil.job.started",
		metric.WithDescription("Total number of job executions started"),
		metric.WithUnit("{job}"),
	)
	e.completed, _ = meter.Int64Counter(
		"toil.job.completed",
		metric.WithDescription("Total number of jobs completed successfully"),
		metric.WithUnit("{job}"),
	)
	e.failed, _ = meter.Int64Counter(
		"toil.job.failed",
		metric.WithDescription("Total number of jobs failed terminally"),
		metric.WithUnit("{job}"),
	)
	e.retried, _ = meter.Int64Counter(
		"toil.job.retried",
		metric.WithDescription("Total number of retries scheduled"),
		metric.WithUnit("{retry}"),
	)
	e.postponed, _ = meter.Int64Counter(
		"toil.job.postponed",
		metric.WithDescription("Total number of postponements"),
		metric.WithUnit("{postponement}"),
	)

	return e
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(r *job.Record) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", r.Type))
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, r *job.Record) error {
	m.enqueued.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, r *job.Record) error {
	m.started.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, r *job.Record, _ time.Duration) error {
	m.completed.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, r *job.Record, _ error) error {
	m.failed.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, r *job.Record, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobPostponed implements ext.JobPostponed.
func (m *MetricsExtension) OnJobPostponed(ctx context.Context, r *job.Record, _ time.Duration, _ string) error {
	m.postponed.Add(ctx, 1, typeAttr(r))
	return nil
}
