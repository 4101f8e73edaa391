package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/toil"
	"github.com/xraph/toil/id"
	"github.com/xraph/toil/job"
	"github.com/xraph/toil/store"
)

// Ensure Store satisfies the persistence contracts at compile time.
var (
	_ job.Store   = (*Store)(nil)
	_ store.Store = (*Store)(nil)
)

// Store is a fully in-memory job store. Safe for concurrent access.
// Intended for unit testing and development.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Record
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Record),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// InsertJob persists a new job. Dedupe keys are enforced the same way the
// SQL stores do: if an active job already holds the key, the insert is
// rejected with toil.ErrDuplicateJob.
func (m *Store) InsertJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.jobs[key]; exists {
		return toil.ErrJobAlreadyExists
	}

	if r.DedupeKey != "" {
		for _, existing := range m.jobs {
			if existing.DedupeKey == r.DedupeKey && !existing.Status.Terminal() {
				return toil.ErrDuplicateJob
			}
		}
	}

	cp := *r
	m.jobs[key] = &cp
	return nil
}

// ClaimDueJobs atomically claims up to limit due jobs, sets them to
// running with StartedAt stamped, and returns them.
func (m *Store) ClaimDueJobs(_ context.Context, limit int) ([]*job.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	// Collect candidates.
	candidates := make([]*job.Record, 0, len(m.jobs))
	for _, r := range m.jobs {
		if r.Due(now) {
			candidates = append(candidates, r)
		}
	}

	// Sort: priority DESC, QueuedAt ASC, NextRetryAt ASC with nulls last.
	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.QueuedAt.Equal(b.QueuedAt) {
			return a.QueuedAt.Before(b.QueuedAt)
		}
		switch {
		case a.NextRetryAt == nil:
			return false
		case b.NextRetryAt == nil:
			return true
		default:
			return a.NextRetryAt.Before(*b.NextRetryAt)
		}
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Record, len(candidates))
	for i, r := range candidates {
		r.Status = job.StatusRunning
		n := now
		r.StartedAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *r
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, toil.ErrJobNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return toil.ErrJobNotFound
	}
	cp := *r
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return toil.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Record, 0, len(m.jobs))
	for _, r := range m.jobs {
		if r.Status != status {
			continue
		}
		if opts.Type != "" && r.Type != opts.Type {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	// Newest first.
	sort.Slice(result, func(i, k int) bool {
		return result[i].QueuedAt.After(result[k].QueuedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// FindActiveByDedupeKey returns the job holding the given dedupe key in an
// active status, or toil.ErrJobNotFound.
func (m *Store) FindActiveByDedupeKey(_ context.Context, key string) (*job.Record, error) {
	if key == "" {
		return nil, toil.ErrJobNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.jobs {
		if r.DedupeKey == key && !r.Status.Terminal() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, toil.ErrJobNotFound
}

// PurgeTerminalJobs deletes completed and failed jobs whose CompletedAt is
// at or before the cutoff.
func (m *Store) PurgeTerminalJobs(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key, r := range m.jobs {
		if !r.Status.Terminal() {
			continue
		}
		if r.CompletedAt == nil || r.CompletedAt.After(cutoff) {
			continue
		}
		delete(m.jobs, key)
		deleted++
	}
	return deleted, nil
}

// CountJobsByStatus returns job counts grouped by status.
func (m *Store) CountJobsByStatus(_ context.Context) (job.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats job.Stats
	for _, r := range m.jobs {
		switch r.Status {
		case job.StatusPending:
			stats.Pending++
		case job.StatusRunning:
			stats.Running++
		case job.StatusRetrying:
			stats.Retrying++
		case job.StatusPostponed:
			stats.Postponed++
		case job.StatusCompleted:
			stats.Completed++
		case job.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
