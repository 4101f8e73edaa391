package job

import (
	"time"

	"github.com/xraph/toil"
	"github.com/xraph/toil/id"
)

// Status represents the lifecycle status of a job.
type Status string

const (
	// StatusPending means the job is waiting to be picked up by the scheduler.
	StatusPending Status = "pending"
	// StatusRunning means the scheduler is currently executing the job.
	StatusRunning Status = "running"
	// StatusRetrying means the job failed and is scheduled for another attempt.
	StatusRetrying Status = "retrying"
	// StatusPostponed means the job asked to run again later. Postponement is
	// not a failure and does not consume the retry budget.
	StatusPostponed Status = "postponed"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed permanently and will not run again.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is final. Terminal jobs are never
// claimed again and become eligible for cleanup.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ActiveStatuses are the non-terminal statuses. A dedupe key is considered
// taken while any job holding it is in one of these statuses.
var ActiveStatuses = []Status{StatusPending, StatusRunning, StatusRetrying, StatusPostponed}

// Record represents one unit of background work.
type Record struct {
	toil.Entity

	ID          id.JobID      `json:"id"`
	Type        string        `json:"type"`
	UserID      string        `json:"user_id,omitempty"`
	TargetID    string        `json:"target_id,omitempty"`
	Payload     []byte        `json:"payload,omitempty"`
	Status      Status        `json:"status"`
	Priority    int           `json:"priority"`
	QueuedAt    time.Time     `json:"queued_at"`
	ScheduledAt *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	RetryCount  int           `json:"retry_count"`
	NextRetryAt *time.Time    `json:"next_retry_at,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Result      []byte        `json:"result,omitempty"`
	DedupeKey   string        `json:"dedupe_key,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`

	// Deduplicated marks a placeholder record returned by the enqueue path
	// when an equivalent active job already holds the dedupe key. It is
	// never persisted; the placeholder carries the existing job's ID.
	Deduplicated bool `json:"-"`
}

// Due reports whether the record is eligible to be claimed at the given
// instant: pending jobs gated by ScheduledAt, retrying and postponed jobs
// gated by NextRetryAt.
func (r *Record) Due(now time.Time) bool {
	switch r.Status {
	case StatusPending:
		return r.ScheduledAt == nil || !r.ScheduledAt.After(now)
	case StatusRetrying, StatusPostponed:
		return r.NextRetryAt != nil && !r.NextRetryAt.After(now)
	default:
		return false
	}
}
