package job

import (
	"context"
	"time"

	"github.com/xraph/toil/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Type filters by job type name. Empty means all types.
	Type string
}

// Stats is a snapshot of job counts by status.
type Stats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Retrying  int64 `json:"retrying"`
	Postponed int64 `json:"postponed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Store defines the persistence contract for jobs.
type Store interface {
	// InsertJob persists a new job. The enqueue path inserts in pending
	// status; PerformNow inserts directly in running status.
	// Returns toil.ErrDuplicateJob if the job's dedupe key is already held
	// by an active job and the backend enforces uniqueness.
	InsertJob(ctx context.Context, r *Record) error

	// ClaimDueJobs atomically claims up to limit due jobs, sets them to
	// running with StartedAt stamped, and returns them. Due means pending
	// with ScheduledAt unset or passed, or retrying/postponed with
	// NextRetryAt passed. Jobs are ordered by priority (descending), then
	// QueuedAt (ascending), then NextRetryAt (ascending, nulls last).
	// A non-positive limit claims nothing.
	ClaimDueJobs(ctx context.Context, limit int) ([]*Record, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Record, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, r *Record) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByStatus returns jobs matching the given status, newest first.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Record, error)

	// FindActiveByDedupeKey returns the job holding the given dedupe key in
	// an active (non-terminal) status, or toil.ErrJobNotFound.
	FindActiveByDedupeKey(ctx context.Context, key string) (*Record, error)

	// PurgeTerminalJobs deletes completed and failed jobs whose CompletedAt
	// is at or before the cutoff. Returns the number of rows deleted.
	PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int64, error)

	// CountJobsByStatus returns job counts grouped by status.
	CountJobsByStatus(ctx context.Context) (Stats, error)
}
