package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/toil"
	"github.com/xraph/toil/id"
	"github.com/xraph/toil/job"
)

// jobModel mirrors the toil_jobs table. The dedupe key is a pointer so
// an unkeyed job stores NULL and stays out of the partial unique index.
type jobModel struct {
	bun.BaseModel `bun:"table:toil_jobs"`

	ID          string     `bun:"id,pk"`
	Type        string     `bun:"type,notnull"`
	UserID      string     `bun:"user_id"`
	TargetID    string     `bun:"target_id"`
	Payload     []byte     `bun:"payload,type:bytea"`
	Status      string     `bun:"status,notnull,default:'pending'"`
	Priority    int        `bun:"priority,notnull,default:0"`
	QueuedAt    time.Time  `bun:"queued_at,notnull,default:current_timestamp"`
	ScheduledAt *time.Time `bun:"scheduled_at"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	RetryCount  int        `bun:"retry_count,notnull,default:0"`
	NextRetryAt *time.Time `bun:"next_retry_at"`
	LastError   string     `bun:"last_error"`
	Result      []byte     `bun:"result,type:bytea"`
	DedupeKey   *string    `bun:"dedupe_key"`
	Timeout     int64      `bun:"timeout,notnull,default:0"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(r *job.Record) *jobModel {
	m := &jobModel{
		ID:          r.ID.String(),
		Type:        r.Type,
		UserID:      r.UserID,
		TargetID:    r.TargetID,
		Payload:     r.Payload,
		Status:      string(r.Status),
		Priority:    r.Priority,
		QueuedAt:    r.QueuedAt,
		ScheduledAt: r.ScheduledAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		RetryCount:  r.RetryCount,
		NextRetryAt: r.NextRetryAt,
		LastError:   r.LastError,
		Result:      r.Result,
		Timeout:     r.Timeout.Nanoseconds(),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DedupeKey != "" {
		key := r.DedupeKey
		m.DedupeKey = &key
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Record, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("toil/bun: parse job id %q: %w", m.ID, err)
	}

	r := &job.Record{
		Entity: toil.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Type:        m.Type,
		UserID:      m.UserID,
		TargetID:    m.TargetID,
		Payload:     m.Payload,
		Status:      job.Status(m.Status),
		Priority:    m.Priority,
		QueuedAt:    m.QueuedAt,
		ScheduledAt: m.ScheduledAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		RetryCount:  m.RetryCount,
		NextRetryAt: m.NextRetryAt,
		LastError:   m.LastError,
		Result:      m.Result,
		Timeout:     time.Duration(m.Timeout),
	}
	if m.DedupeKey != nil {
		r.DedupeKey = *m.DedupeKey
	}

	return r, nil
}

func fromJobModels(models []jobModel) ([]*job.Record, error) {
	records := make([]*job.Record, 0, len(models))
	for i := range models {
		r, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
