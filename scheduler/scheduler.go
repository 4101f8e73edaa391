// Package scheduler provides the job processing engine: a polling
// Scheduler that claims due jobs from the store and runs them
// concurrently up to a configurable limit, and an Executor that invokes
// registered handlers through middleware and translates each outcome
// into a record update.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/toil"
	"github.com/xraph/toil/ext"
	"github.com/xraph/toil/id"
	"github.com/xraph/toil/job"
)

// TypeLimiter controls per-type rate limiting and concurrency. The
// scheduler calls Acquire before executing a claimed job and Release
// after execution completes.
type TypeLimiter interface {
	// Acquire checks rate limits and concurrency for the job type.
	// Returns true if the job is allowed to proceed.
	Acquire(jobType string) bool
	// Release decrements the active count for the job type.
	Release(jobType string)
}

// Scheduler polls the store for due jobs and executes them concurrently.
type Scheduler struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	logger     *slog.Logger

	maxConcurrent   int
	pollInterval    time.Duration
	cleanupInterval time.Duration
	retention       time.Duration

	// Type limiter (optional).
	limiter TypeLimiter

	// stopCh is created by Start and closed by Stop, so a stopped
	// scheduler can be started again.
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	active *runningSet

	// lastCleanup is touched only by the poll loop goroutine.
	lastCleanup time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent sets the maximum number of concurrently running jobs.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) { s.maxConcurrent = n }
}

// WithPollInterval sets how often the scheduler polls for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithCleanupInterval sets how often terminal jobs are purged. A zero
// value disables cleanup.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.cleanupInterval = d }
}

// WithRetention sets how long terminal jobs are kept before cleanup
// deletes them.
func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) { s.retention = d }
}

// WithTypeLimiter sets the limiter consulted before each claimed job is
// started.
func WithTypeLimiter(l TypeLimiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// New creates a Scheduler.
func New(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		store:           store,
		executor:        executor,
		extensions:      extensions,
		logger:          logger,
		maxConcurrent:   10,
		pollInterval:    100 * time.Millisecond,
		cleanupInterval: 10 * time.Minute,
		retention:       7 * 24 * time.Hour,
		active:          newRunningSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the poll loop. It returns immediately and is a no-op if
// the scheduler is already running.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.lastCleanup = time.Now()

	s.logger.Info("scheduler starting",
		slog.Int("max_concurrent", s.maxConcurrent),
		slog.Duration("poll_interval", s.pollInterval),
	)

	s.wg.Add(1)
	go s.pollLoop(s.stopCh)

	return nil
}

// Stop signals the poll loop to stop and waits for in-flight jobs to
// finish. If the context has a deadline, remaining jobs are cancelled
// when time runs out. Stop is a no-op if the scheduler is not running.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.Info("scheduler stopping")

	close(stopCh)

	// Wait for completion or context deadline.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out, cancelling running jobs")
		s.active.cancelAll(errAborted)
		s.wg.Wait()
	}

	return nil
}

// pollLoop drives the repeating tick until Stop is called.
func (s *Scheduler) pollLoop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		s.tick()
		s.sleep(stopCh)
	}
}

// tick runs one scheduling pass. Only the poll loop goroutine calls it,
// so two ticks never overlap.
func (s *Scheduler) tick() {
	running := s.active.size()
	if running >= s.maxConcurrent {
		// At capacity: skip the tick entirely, no store queries.
		return
	}

	s.maybeCleanup()

	slots := s.maxConcurrent - running
	records, err := s.store.ClaimDueJobs(context.Background(), slots)
	if err != nil {
		s.logger.Error("claim due jobs error", slog.String("error", err.Error()))
		return
	}

	for _, r := range records {
		s.launch(r)
	}
}

// launch registers a claimed record in the running set and starts it on
// its own goroutine. Registration happens before the goroutine is
// spawned so the next tick's capacity check already counts the job. One
// job's failure never affects the others.
func (s *Scheduler) launch(r *job.Record) {
	if s.limiter != nil && !s.limiter.Acquire(r.Type) {
		s.pushBack(r)
		return
	}

	runCtx, cancel := context.WithCancelCause(context.Background())
	if !s.active.add(r, cancel) {
		// Already in flight, double-claim guard.
		cancel(nil)
		if s.limiter != nil {
			s.limiter.Release(r.Type)
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.limiter != nil {
			defer s.limiter.Release(r.Type)
		}

		if err := s.run(runCtx, cancel, r); err != nil {
			s.logger.Debug("job execution failed",
				slog.String("job_id", r.ID.String()),
				slog.String("job_type", r.Type),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// run executes a registered record with timeout arming and running-set
// cleanup. Both the poll loop and ExecuteNow route through here so
// CancelJob and PostponeJob can reach every in-flight job. The
// running-set entry is removed as the final step.
func (s *Scheduler) run(ctx context.Context, cancel context.CancelCauseFunc, r *job.Record) error {
	defer s.active.remove(r.ID.String())
	defer cancel(nil)

	if r.Timeout > 0 {
		timer := time.AfterFunc(r.Timeout, func() {
			cancel(errAborted)
		})
		defer timer.Stop()
	}

	s.extensions.EmitJobStarted(ctx, r)

	return s.executor.Execute(ctx, r)
}

// pushBack returns a rate-limited claim to pending with a small delay so
// a later tick retries it.
func (s *Scheduler) pushBack(r *job.Record) {
	now := time.Now().UTC()
	runAt := now.Add(s.pollInterval)
	r.Status = job.StatusPending
	r.ScheduledAt = &runAt
	r.StartedAt = nil
	r.UpdatedAt = now

	if err := s.store.UpdateJob(context.Background(), r); err != nil {
		s.logger.Error("failed to re-enqueue rate-limited job",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// maybeCleanup purges old terminal jobs at most once per cleanup
// interval. Purge failures are logged, never fatal to the tick.
func (s *Scheduler) maybeCleanup() {
	if s.cleanupInterval <= 0 {
		return
	}

	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	cutoff := now.UTC().Add(-s.retention)
	deleted, err := s.store.PurgeTerminalJobs(context.Background(), cutoff)
	if err != nil {
		s.logger.Error("cleanup error", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		s.logger.Info("cleaned up old jobs",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
}

// ExecuteNow runs an already-inserted record synchronously, bypassing the
// poll loop and the per-type limiter. The record still gets a
// cancellation controller and a running-set entry, so CancelJob and
// PostponeJob work on it while it runs.
func (s *Scheduler) ExecuteNow(ctx context.Context, r *job.Record) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	if !s.active.add(r, cancel) {
		// Already in flight, double-claim guard.
		cancel(nil)
		return nil
	}
	return s.run(runCtx, cancel, r)
}

// CancelJob signals the cancellation controller of a running job. It
// reports whether a running job with that id was found. Cancellation is
// cooperative: a handler that never observes its context runs to
// completion regardless, and the record is only written back once it
// returns.
func (s *Scheduler) CancelJob(jobID id.JobID) bool {
	return s.active.cancel(jobID.String(), errAborted)
}

// PostponeJob asks a running job to be rescheduled delay into the future
// instead of finishing this attempt. The delay must be positive. Returns
// toil.ErrJobNotRunning if no job with that id is currently executing.
//
// The request is delivered through the job's cancellation controller; a
// handler that completes before observing it wins, and the completion
// stands.
func (s *Scheduler) PostponeJob(jobID id.JobID, delay time.Duration, reason string) error {
	if delay <= 0 {
		return toil.ErrInvalidPostponeDelay
	}
	if !s.active.cancel(jobID.String(), &postponeCause{delay: delay, reason: reason}) {
		return toil.ErrJobNotRunning
	}
	return nil
}

// RunningJob describes one in-flight job in a Status snapshot.
type RunningJob struct {
	ID        id.JobID      `json:"id"`
	Type      string        `json:"type"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Status is a point-in-time snapshot of the scheduler's execution state.
type Status struct {
	Running        bool         `json:"running"`
	MaxConcurrent  int          `json:"max_concurrent"`
	ActiveCount    int          `json:"active_count"`
	AvailableSlots int          `json:"available_slots"`
	Jobs           []RunningJob `json:"jobs"`
}

// Status returns a snapshot of the currently running jobs and the
// concurrency numbers.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	jobs := s.active.snapshot()
	st := Status{
		Running:        running,
		MaxConcurrent:  s.maxConcurrent,
		ActiveCount:    len(jobs),
		AvailableSlots: s.maxConcurrent - len(jobs),
		Jobs:           jobs,
	}
	if st.AvailableSlots < 0 {
		st.AvailableSlots = 0
	}
	return st
}

// Stats returns job counts by status from the store.
func (s *Scheduler) Stats(ctx context.Context) (job.Stats, error) {
	return s.store.CountJobsByStatus(ctx)
}

func (s *Scheduler) sleep(stopCh <-chan struct{}) {
	select {
	case <-time.After(s.pollInterval):
	case <-stopCh:
	}
}
