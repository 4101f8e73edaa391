package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/toil"
	"github.com/xraph/toil/id"
	"github.com/xraph/toil/job"
)

// jobColumns is the canonical column list shared by every job query.
const jobColumns = `
	id, type, user_id, target_id, payload, status, priority,
	queued_at, scheduled_at, started_at, completed_at,
	retry_count, next_retry_at, last_error, result, dedupe_key,
	timeout, created_at, updated_at`

// InsertJob persists a new job. The dedupe key is stored as NULL when
// empty so the partial unique index only constrains keyed jobs.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO toil_jobs (
			id, type, user_id, target_id, payload, status, priority,
			queued_at, scheduled_at, started_at, completed_at,
			retry_count, next_retry_at, last_error, result, dedupe_key,
			timeout, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, NULLIF($16, ''),
			$17, $18, $19
		)`,
		r.ID.String(), r.Type, r.UserID, r.TargetID, r.Payload, string(r.Status), r.Priority,
		r.QueuedAt, r.ScheduledAt, r.StartedAt, r.CompletedAt,
		r.RetryCount, r.NextRetryAt, r.LastError, r.Result, r.DedupeKey,
		r.Timeout.Nanoseconds(), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDedupeViolation(err) {
			return toil.ErrDuplicateJob
		}
		if isDuplicateKey(err) {
			return toil.ErrJobAlreadyExists
		}
		return fmt.Errorf("toil/postgres: insert job: %w", err)
	}
	return nil
}

// ClaimDueJobs atomically claims up to limit due jobs, sets them to
// running, and returns them. Uses FOR UPDATE SKIP LOCKED so concurrent
// claimers never block or double-claim.
func (s *Store) ClaimDueJobs(ctx context.Context, limit int) ([]*job.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE toil_jobs
			SET status = 'running', started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM toil_jobs
				WHERE (status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= NOW()))
				   OR (status IN ('retrying', 'postponed') AND next_retry_at <= NOW())
				ORDER BY priority DESC, queued_at ASC, next_retry_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $1
			)
			RETURNING`+jobColumns+`
		)
		SELECT * FROM claimed ORDER BY priority DESC, queued_at ASC, next_retry_at ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("toil/postgres: claim due jobs: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+jobColumns+` FROM toil_jobs WHERE id = $1`,
		jobID.String(),
	)

	r, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, toil.ErrJobNotFound
		}
		return nil, fmt.Errorf("toil/postgres: get job: %w", err)
	}
	return r, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE toil_jobs SET
			type = $2, user_id = $3, target_id = $4, payload = $5,
			status = $6, priority = $7, queued_at = $8, scheduled_at = $9,
			started_at = $10, completed_at = $11, retry_count = $12,
			next_retry_at = $13, last_error = $14, result = $15,
			dedupe_key = NULLIF($16, ''), timeout = $17,
			updated_at = NOW()
		WHERE id = $1`,
		r.ID.String(), r.Type, r.UserID, r.TargetID, r.Payload,
		string(r.Status), r.Priority, r.QueuedAt, r.ScheduledAt,
		r.StartedAt, r.CompletedAt, r.RetryCount,
		r.NextRetryAt, r.LastError, r.Result,
		r.DedupeKey, r.Timeout.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("toil/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return toil.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM toil_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("toil/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return toil.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	query := `SELECT` + jobColumns + ` FROM toil_jobs WHERE status = $1`
	args := []interface{}{string(status)}
	argIdx := 2

	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}

	query += " ORDER BY queued_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("toil/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// FindActiveByDedupeKey returns the job holding the given dedupe key in
// an active status, or toil.ErrJobNotFound.
func (s *Store) FindActiveByDedupeKey(ctx context.Context, key string) (*job.Record, error) {
	if key == "" {
		return nil, toil.ErrJobNotFound
	}

	row := s.pool.QueryRow(ctx, `
		SELECT`+jobColumns+`
		FROM toil_jobs
		WHERE dedupe_key = $1
		  AND status IN ('pending', 'running', 'retrying', 'postponed')
		LIMIT 1`,
		key,
	)

	r, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, toil.ErrJobNotFound
		}
		return nil, fmt.Errorf("toil/postgres: find active by dedupe key: %w", err)
	}
	return r, nil
}

// PurgeTerminalJobs deletes completed and failed jobs whose CompletedAt
// is at or before the cutoff. Returns the number of rows deleted.
func (s *Store) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM toil_jobs
		WHERE status IN ('completed', 'failed')
		  AND completed_at IS NOT NULL
		  AND completed_at <= $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("toil/postgres: purge terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountJobsByStatus returns job counts grouped by status.
func (s *Store) CountJobsByStatus(ctx context.Context) (job.Stats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM toil_jobs GROUP BY status`,
	)
	if err != nil {
		return job.Stats{}, fmt.Errorf("toil/postgres: count jobs by status: %w", err)
	}
	defer rows.Close()

	var stats job.Stats
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return job.Stats{}, fmt.Errorf("toil/postgres: scan status count: %w", err)
		}
		switch job.Status(status) {
		case job.StatusPending:
			stats.Pending = count
		case job.StatusRunning:
			stats.Running = count
		case job.StatusRetrying:
			stats.Retrying = count
		case job.StatusPostponed:
			stats.Postponed = count
		case job.StatusCompleted:
			stats.Completed = count
		case job.StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return job.Stats{}, fmt.Errorf("toil/postgres: count jobs by status: %w", err)
	}
	return stats, nil
}

// scanRecord scans a single job row.
func scanRecord(row pgx.Row) (*job.Record, error) {
	var (
		r         job.Record
		idStr     string
		statusStr string
		dedupe    *string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &r.Type, &r.UserID, &r.TargetID, &r.Payload, &statusStr, &r.Priority,
		&r.QueuedAt, &r.ScheduledAt, &r.StartedAt, &r.CompletedAt,
		&r.RetryCount, &r.NextRetryAt, &r.LastError, &r.Result, &dedupe,
		&timeoutNs, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = job.Status(statusStr)
	r.Timeout = time.Duration(timeoutNs)
	if dedupe != nil {
		r.DedupeKey = *dedupe
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("toil/postgres: parse job id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	return &r, nil
}

// collectRecords collects all job records from query rows.
func collectRecords(rows pgx.Rows) ([]*job.Record, error) {
	var records []*job.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("toil/postgres: scan job row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("toil/postgres: iterate job rows: %w", err)
	}
	return records, nil
}
