package job

import (
	"time"

	"github.com/xraph/toil/backoff"
)

// Options configures per-job behavior. One vocabulary serves two call
// sites: NewDefinition sets per-type defaults (retry policy, priority,
// timeout), and the enqueue path layers per-call overrides on top
// (scheduling, correlation, dedupe key).
//
// MaxRetries, Backoff, and RetryIf are read from the registration when the
// job runs; setting them at enqueue time has no effect.
type Options struct {
	// MaxRetries is the number of retry attempts after the first failure.
	MaxRetries int

	// Priority determines claim ordering. Higher values are claimed first.
	Priority int

	// Timeout is the maximum duration a job may run before its context is
	// cancelled. Zero means no limit.
	Timeout time.Duration

	// Backoff computes the delay before each retry. Nil means the
	// scheduler's default strategy.
	Backoff backoff.Strategy

	// RetryIf, when set, filters which errors are retried. Errors it
	// rejects fail the job immediately regardless of the retry budget.
	RetryIf func(error) bool

	// UserID is an opaque correlation identifier recorded on the job.
	UserID string

	// TargetID is an opaque correlation identifier recorded on the job.
	TargetID string

	// ScheduledAt delays the first run until the given time.
	// Zero means the job is eligible immediately.
	ScheduledAt time.Time

	// DedupeKey sets an explicit deduplication key for this enqueue,
	// overriding the definition's derivation.
	DedupeKey string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		Priority:   0,
		Timeout:    0,
	}
}

// Option is a functional option for configuring a job definition or an
// individual enqueue.
type Option func(*Options)

// WithMaxRetries sets the number of retry attempts after the first failure.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithPriority sets the job priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithBackoff sets the retry backoff strategy for the job type.
func WithBackoff(b backoff.Strategy) Option {
	return func(o *Options) {
		o.Backoff = b
	}
}

// WithRetryIf sets a predicate that decides whether an error is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryIf = fn
	}
}

// WithUserID records a user correlation identifier on the job.
func WithUserID(userID string) Option {
	return func(o *Options) {
		o.UserID = userID
	}
}

// WithTargetID records a target correlation identifier on the job.
func WithTargetID(targetID string) Option {
	return func(o *Options) {
		o.TargetID = targetID
	}
}

// WithScheduledAt delays the job's first run until the given time.
func WithScheduledAt(t time.Time) Option {
	return func(o *Options) {
		o.ScheduledAt = t
	}
}

// WithDedupeKey sets an explicit deduplication key for this enqueue.
func WithDedupeKey(key string) Option {
	return func(o *Options) {
		o.DedupeKey = key
	}
}
