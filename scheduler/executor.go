package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/toil"
	"github.com/xraph/toil/backoff"
	"github.com/xraph/toil/ext"
	"github.com/xraph/toil/job"
	"github.com/xraph/toil/middleware"
)

// AbortedMessage is recorded as the error of a job that was cancelled or
// hit its timeout. Aborted jobs are terminal and never retried.
const AbortedMessage = "Job was cancelled or timed out"

// maxErrorLen caps stored error and reason text.
const maxErrorLen = 500

// errAborted is the cancellation cause used by CancelJob, Stop, and the
// timeout timer.
var errAborted = errors.New(AbortedMessage)

// postponeCause is the cancellation cause used by PostponeJob. The
// executor translates it into a postponed record instead of a failure.
type postponeCause struct {
	delay  time.Duration
	reason string
}

func (p *postponeCause) Error() string {
	return fmt.Sprintf("postponed for %s: %s", p.delay, p.reason)
}

// Executor runs a single job through middleware and the registered
// handler, then translates the outcome into a record update: completion,
// postponement, a retry with backoff, or a terminal failure.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies. The
// backoff strategy is the fallback for job types that don't configure
// their own; nil means the package default.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a claimed job and writes the resulting state back to the
// store. The record is mutated in place, so callers see the final state
// after Execute returns.
//
// Outcome classification, in order:
//   - unregistered type: terminal failure, never retried
//   - handler returned a postponed outcome: postponed (delay must be positive)
//   - handler returned normally: completed with its result
//   - context cancelled with a postponement cause: postponed
//   - context cancelled otherwise (CancelJob, timeout, or shutdown):
//     terminal failure recorded as AbortedMessage, never retried
//   - any other error: retried per the type's retry policy, terminal
//     failure once the budget is spent or the RetryIf filter rejects it
func (e *Executor) Execute(ctx context.Context, r *job.Record) error {
	// Writebacks use a context that survives cancellation of the
	// execution context, so aborted jobs still get recorded.
	updateCtx := context.WithoutCancel(ctx)

	now := time.Now().UTC()

	reg, ok := e.registry.Get(r.Type)
	if !ok {
		err := fmt.Errorf("no handler registered for job %q (registered: %s)",
			r.Type, strings.Join(e.registry.Names(), ", "))
		r.UpdatedAt = now
		return e.failTerminal(updateCtx, r, err, now)
	}

	start := time.Now()

	// The terminal handler that calls the registered job handler. The
	// record rides along in the context so handlers can read their own
	// metadata.
	terminal := func(ctx context.Context) (job.Outcome, error) {
		return reg.Perform(ctx, r.Payload)
	}

	out, err := e.mw(job.NewContext(ctx, r), r, terminal)
	elapsed := time.Since(start)

	now = time.Now().UTC()
	r.UpdatedAt = now

	if err == nil {
		if out.Postponed() {
			if out.Delay() <= 0 {
				return e.handleFailure(updateCtx, r, reg, toil.ErrInvalidPostponeDelay, now)
			}
			return e.handlePostpone(updateCtx, r, out.Delay(), out.Reason(), now)
		}
		result, mErr := out.Result()
		if mErr != nil {
			return e.handleFailure(updateCtx, r, reg, mErr, now)
		}
		return e.handleSuccess(updateCtx, r, result, now, elapsed)
	}

	// A cancelled execution context is either a postponement request or
	// an abort. Handler errors with a live context go to retry policy.
	if ctx.Err() != nil {
		var pc *postponeCause
		if errors.As(context.Cause(ctx), &pc) {
			return e.handlePostpone(updateCtx, r, pc.delay, pc.reason, now)
		}
		return e.failTerminal(updateCtx, r, errAborted, now)
	}

	return e.handleFailure(updateCtx, r, reg, err, now)
}

// handleSuccess marks the job completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, r *job.Record, result []byte, now time.Time, elapsed time.Duration) error {
	r.Status = job.StatusCompleted
	r.CompletedAt = &now
	r.Result = result

	if updateErr := e.store.UpdateJob(ctx, r); updateErr != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobCompleted(ctx, r, elapsed)
	return nil
}

// handlePostpone moves the job to postponed with a future retry time.
// The retry count is left untouched: postponement is not a failure.
func (e *Executor) handlePostpone(ctx context.Context, r *job.Record, delay time.Duration, reason string, now time.Time) error {
	next := now.Add(delay)
	r.Status = job.StatusPostponed
	r.NextRetryAt = &next
	r.LastError = truncateError(reason)

	if updateErr := e.store.UpdateJob(ctx, r); updateErr != nil {
		e.logger.Error("failed to update postponed job",
			slog.String("job_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobPostponed(ctx, r, delay, reason)

	e.logger.Info("job postponed",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", r.Type),
		slog.Duration("delay", delay),
		slog.String("reason", reason),
	)

	return nil
}

// handleFailure consults the type's retry policy and either schedules a
// retry or fails the job terminally.
func (e *Executor) handleFailure(ctx context.Context, r *job.Record, reg *job.Registration, handlerErr error, now time.Time) error {
	shouldRetry := r.RetryCount < reg.Opts.MaxRetries &&
		(reg.Opts.RetryIf == nil || reg.Opts.RetryIf(handlerErr))

	if shouldRetry {
		return e.scheduleRetry(ctx, r, reg, handlerErr, now)
	}
	return e.failTerminal(ctx, r, handlerErr, now)
}

// scheduleRetry moves the job to retrying with a backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, r *job.Record, reg *job.Registration, handlerErr error, now time.Time) error {
	r.RetryCount++
	r.LastError = truncateError(handlerErr.Error())

	strategy := reg.Opts.Backoff
	if strategy == nil {
		strategy = e.backoff
	}
	delay := strategy.Delay(r.RetryCount)
	next := now.Add(delay)
	r.NextRetryAt = &next
	r.Status = job.StatusRetrying

	if updateErr := e.store.UpdateJob(ctx, r); updateErr != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobRetrying(ctx, r, r.RetryCount, next)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", r.Type),
		slog.Int("attempt", r.RetryCount),
		slog.Int("max_retries", reg.Opts.MaxRetries),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s retry %d/%d: %w", r.Type, r.RetryCount, reg.Opts.MaxRetries, handlerErr)
}

// failTerminal marks the job failed with no further retries.
func (e *Executor) failTerminal(ctx context.Context, r *job.Record, handlerErr error, now time.Time) error {
	r.Status = job.StatusFailed
	r.LastError = truncateError(handlerErr.Error())
	r.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, r); updateErr != nil {
		e.logger.Error("failed to update job as failed",
			slog.String("job_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobFailed(ctx, r, handlerErr)

	e.logger.Warn("job failed terminally",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", r.Type),
		slog.Int("retry_count", r.RetryCount),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}

// truncateError caps error/reason text stored on the record.
func truncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}
