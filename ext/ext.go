// Package ext defines the extension system for Toil.
// Extensions are notified of lifecycle events (job enqueued, completed,
// failed, etc.) and can react to them for metrics, auditing, or alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/toil/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, r *job.Record) error
}

// JobStarted is called when the scheduler begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, r *job.Record) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, r *job.Record, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, r *job.Record, attempt int, nextRetryAt time.Time) error
}

// JobPostponed is called when a job postpones itself or is postponed by a
// caller. Postponement is not a failure.
type JobPostponed interface {
	OnJobPostponed(ctx context.Context, r *job.Record, delay time.Duration, reason string) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
