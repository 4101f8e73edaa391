package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/toil/job"
)

// runningEntry tracks one in-flight job: its record, its cancellation
// controller, and when execution began.
type runningEntry struct {
	record    *job.Record
	cancel    context.CancelCauseFunc
	startedAt time.Time
}

// runningSet is the transient set of in-flight jobs. It prevents
// double-claiming and routes CancelJob/PostponeJob signals to the right
// controller. The store remains the only authoritative state.
type runningSet struct {
	mu      sync.Mutex
	entries map[string]*runningEntry
}

func newRunningSet() *runningSet {
	return &runningSet{entries: make(map[string]*runningEntry)}
}

// add registers a record. Returns false if the id is already present.
func (rs *runningSet) add(r *job.Record, cancel context.CancelCauseFunc) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	key := r.ID.String()
	if _, ok := rs.entries[key]; ok {
		return false
	}
	rs.entries[key] = &runningEntry{
		record:    r,
		cancel:    cancel,
		startedAt: time.Now(),
	}
	return true
}

func (rs *runningSet) remove(jobID string) {
	rs.mu.Lock()
	delete(rs.entries, jobID)
	rs.mu.Unlock()
}

func (rs *runningSet) size() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries)
}

// cancel signals the entry's controller with the given cause. It reports
// whether an entry with that id was found.
func (rs *runningSet) cancel(jobID string, cause error) bool {
	rs.mu.Lock()
	entry, ok := rs.entries[jobID]
	rs.mu.Unlock()

	if !ok {
		return false
	}
	entry.cancel(cause)
	return true
}

// cancelAll signals every entry's controller with the given cause.
func (rs *runningSet) cancelAll(cause error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, entry := range rs.entries {
		entry.cancel(cause)
	}
}

// snapshot returns a point-in-time view of the in-flight jobs.
func (rs *runningSet) snapshot() []RunningJob {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := time.Now()
	jobs := make([]RunningJob, 0, len(rs.entries))
	for _, entry := range rs.entries {
		jobs = append(jobs, RunningJob{
			ID:        entry.record.ID,
			Type:      entry.record.Type,
			StartedAt: entry.startedAt,
			Elapsed:   now.Sub(entry.startedAt),
		})
	}
	return jobs
}
