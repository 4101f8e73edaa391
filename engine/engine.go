// Package engine wires all Toil subsystems together. It creates the
// extension registry, job registry, middleware chain, executor, and
// scheduler, and provides Register/Enqueue/PerformNow operations.
//
// This package exists to break the import cycle: the root toil package
// defines Entity (imported by job, scheduler, etc.) and so cannot import
// those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/toil"
	"github.com/xraph/toil/backoff"
	"github.com/xraph/toil/ext"
	"github.com/xraph/toil/id"
	"github.com/xraph/toil/job"
	"github.com/xraph/toil/limit"
	mw "github.com/xraph/toil/middleware"
	"github.com/xraph/toil/observability"
	"github.com/xraph/toil/scheduler"
)

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d          *toil.Dispatcher
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	bo         backoff.Strategy
	sched      *scheduler.Scheduler
	mws        []mw.Middleware
	logger     *slog.Logger

	// Per-type limits (optional).
	typeLimits []limit.Config
	limits     *limit.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for the engine.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTypeLimit registers per-type rate limiting and concurrency
// configurations. Job types not listed have no limits.
func WithTypeLimit(configs ...limit.Config) Option {
	return func(eng *Engine) {
		eng.typeLimits = append(eng.typeLimits, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher.
// The Dispatcher's store must implement job.Store.
func Build(d *toil.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()

	if store == nil {
		return nil, toil.ErrNoStore
	}

	// Type-assert the store to get the job.Store interface.
	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("toil: store does not implement job.Store")
	}

	eng := &Engine{
		d:          d,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		jobStore:   js,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Default backoff strategy if none provided.
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/xraph/toil")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/toil")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/toil/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Build default middleware stack: recover → tracing → metrics → logging.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and scheduler.
	config := d.Config()
	executor := scheduler.NewExecutor(eng.registry, eng.extensions, eng.jobStore, eng.bo, logger, allMws...)

	schedOpts := []scheduler.Option{
		scheduler.WithMaxConcurrent(config.MaxConcurrent),
		scheduler.WithPollInterval(config.PollInterval),
		scheduler.WithCleanupInterval(config.CleanupInterval),
		scheduler.WithRetention(config.Retention),
	}

	// Create the per-type limit manager if limits were provided.
	if len(eng.typeLimits) > 0 {
		eng.limits = limit.NewManager(eng.typeLimits...)
		schedOpts = append(schedOpts, scheduler.WithTypeLimiter(eng.limits))
	}

	eng.sched = scheduler.New(
		eng.jobStore,
		executor,
		eng.extensions,
		logger,
		schedOpts...,
	)

	// Wire back into the Dispatcher.
	d.SetScheduler(eng.sched)
	d.SetExtensions(eng.extensions)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue creates and enqueues a job.
//
// If the job's dedupe key (explicit option or derived by the definition)
// is already held by an active job, no new job is created: the returned
// record describes the existing job and has Deduplicated set.
func Enqueue[T any](ctx context.Context, eng *Engine, name string, payload T, opts ...job.Option) (*job.Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}

	return eng.EnqueueRaw(ctx, name, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload.
func (eng *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Record, error) {
	r, err := eng.insertNew(ctx, name, payload, job.StatusPending, opts)
	if err != nil {
		return nil, err
	}
	if r.Deduplicated {
		return r, nil
	}

	eng.extensions.EmitJobEnqueued(ctx, r)
	return r, nil
}

// PerformNow runs a job immediately on the caller's goroutine, bypassing
// the poll loop. The record is persisted first so the execution leaves the
// same trail as a queued job, then handed straight to the scheduler. The
// returned record reflects the final state; the error is the handler's,
// nil on success or postponement.
func PerformNow[T any](ctx context.Context, eng *Engine, name string, payload T, opts ...job.Option) (*job.Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}

	return eng.PerformNowRaw(ctx, name, data, opts...)
}

// PerformNowRaw runs a job with a pre-serialized payload immediately.
func (eng *Engine) PerformNowRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Record, error) {
	r, err := eng.insertNew(ctx, name, payload, job.StatusRunning, opts)
	if err != nil {
		return nil, err
	}
	if r.Deduplicated {
		return r, nil
	}

	eng.extensions.EmitJobEnqueued(ctx, r)
	return r, eng.sched.ExecuteNow(ctx, r)
}

// insertNew resolves options and the dedupe key, then persists a fresh
// record in the given initial status. When the dedupe key is already held
// by an active job, the existing job is returned as a non-persisted
// placeholder with Deduplicated set.
//
// The dedupe check runs before the insert, and the store's uniqueness
// guarantee catches enqueues that race past it.
func (eng *Engine) insertNew(ctx context.Context, name string, payload []byte, status job.Status, opts []job.Option) (*job.Record, error) {
	// Per-type defaults from the registration, then per-call overrides.
	jobOpts := job.DefaultOptions()
	reg, registered := eng.registry.Get(name)
	if registered {
		jobOpts = reg.Opts
	}
	for _, opt := range opts {
		opt(&jobOpts)
	}

	// Resolve the dedupe key: an explicit option wins, otherwise the
	// registration derives one from the payload.
	dedupeKey := jobOpts.DedupeKey
	if dedupeKey == "" && registered && reg.DedupeKey != nil {
		key, err := reg.DedupeKey(payload)
		if err != nil {
			return nil, fmt.Errorf("derive dedupe key for job %q: %w", name, err)
		}
		dedupeKey = key
	}

	if dedupeKey != "" {
		existing, err := eng.jobStore.FindActiveByDedupeKey(ctx, dedupeKey)
		if err == nil {
			return placeholderFor(existing), nil
		}
		if !errors.Is(err, toil.ErrJobNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	r := &job.Record{
		Entity:    toil.NewEntity(),
		ID:        id.NewJobID(),
		Type:      name,
		UserID:    jobOpts.UserID,
		TargetID:  jobOpts.TargetID,
		Payload:   payload,
		Status:    status,
		Priority:  jobOpts.Priority,
		QueuedAt:  now,
		DedupeKey: dedupeKey,
		Timeout:   jobOpts.Timeout,
	}
	if status == job.StatusRunning {
		r.StartedAt = &now
	}
	if !jobOpts.ScheduledAt.IsZero() {
		at := jobOpts.ScheduledAt.UTC()
		r.ScheduledAt = &at
	}

	if err := eng.jobStore.InsertJob(ctx, r); err != nil {
		// Another enqueue with the same key won the race between the
		// check and the insert. Surface the winner instead.
		if errors.Is(err, toil.ErrDuplicateJob) && dedupeKey != "" {
			if existing, findErr := eng.jobStore.FindActiveByDedupeKey(ctx, dedupeKey); findErr == nil {
				return placeholderFor(existing), nil
			}
		}
		return nil, err
	}

	return r, nil
}

// placeholderFor builds the non-persisted record returned when an enqueue
// is deduplicated against an existing active job.
func placeholderFor(existing *job.Record) *job.Record {
	cp := *existing
	cp.Deduplicated = true
	return &cp
}

// Start begins job processing.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.d.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.d.Stop(ctx)
}

// CancelJob signals a running job's context to cancel. It reports whether
// a running job with that id was found. See scheduler.Scheduler.CancelJob
// for the cooperative-cancellation contract.
func (eng *Engine) CancelJob(jobID id.JobID) bool {
	return eng.sched.CancelJob(jobID)
}

// PostponeJob asks a running job to be rescheduled delay into the future.
// See scheduler.Scheduler.PostponeJob for the delivery contract.
func (eng *Engine) PostponeJob(jobID id.JobID, delay time.Duration, reason string) error {
	return eng.sched.PostponeJob(jobID, delay, reason)
}

// GetJob retrieves a job by ID.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	return eng.jobStore.GetJob(ctx, jobID)
}

// DeleteJob removes a job by ID.
func (eng *Engine) DeleteJob(ctx context.Context, jobID id.JobID) error {
	return eng.jobStore.DeleteJob(ctx, jobID)
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (eng *Engine) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	return eng.jobStore.ListJobsByStatus(ctx, status, opts)
}

// Status returns a snapshot of the scheduler's execution state.
func (eng *Engine) Status() scheduler.Status {
	return eng.sched.Status()
}

// Stats returns job counts by status from the store.
func (eng *Engine) Stats(ctx context.Context) (job.Stats, error) {
	return eng.sched.Stats(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *toil.Dispatcher { return eng.d }

// Scheduler returns the job scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.sched }

// Limits returns the per-type limit manager, or nil if no limits were
// configured.
func (eng *Engine) Limits() *limit.Manager { return eng.limits }
