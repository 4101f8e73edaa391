package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/toil"
	"github.com/xraph/toil/id"
	"github.com/xraph/toil/job"
)

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	m := toJobModel(r)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDedupeViolation(err) {
			return toil.ErrDuplicateJob
		}
		if isDuplicateKey(err) {
			return toil.ErrJobAlreadyExists
		}
		return fmt.Errorf("toil/bun: insert job: %w", err)
	}
	return nil
}

// ClaimDueJobs atomically claims up to limit due jobs, sets them to
// running, and returns them. The claim itself is raw SQL because bun's
// query builder cannot express UPDATE ... FROM a locked subselect.
func (s *Store) ClaimDueJobs(ctx context.Context, limit int) ([]*job.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	var models []jobModel
	_, err := s.db.NewRaw(`
		WITH claimed AS (
			UPDATE toil_jobs
			SET status = 'running', started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM toil_jobs
				WHERE (status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= NOW()))
				   OR (status IN ('retrying', 'postponed') AND next_retry_at <= NOW())
				ORDER BY priority DESC, queued_at ASC, next_retry_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?0
			)
			RETURNING *
		)
		SELECT * FROM claimed ORDER BY priority DESC, queued_at ASC, next_retry_at ASC`,
		limit,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("toil/bun: claim due jobs: %w", err)
	}

	return fromJobModels(models)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, toil.ErrJobNotFound
		}
		return nil, fmt.Errorf("toil/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, r *job.Record) error {
	m := toJobModel(r)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("toil/bun: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return toil.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewDelete().
		TableExpr("toil_jobs").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("toil/bun: delete job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return toil.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Record, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(status))

	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}

	q = q.Order("queued_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("toil/bun: list jobs by status: %w", err)
	}

	return fromJobModels(models)
}

// FindActiveByDedupeKey returns the job holding the given dedupe key in
// an active status, or toil.ErrJobNotFound.
func (s *Store) FindActiveByDedupeKey(ctx context.Context, key string) (*job.Record, error) {
	if key == "" {
		return nil, toil.ErrJobNotFound
	}

	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("dedupe_key = ?", key).
		Where("status IN ('pending', 'running', 'retrying', 'postponed')").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, toil.ErrJobNotFound
		}
		return nil, fmt.Errorf("toil/bun: find active by dedupe key: %w", err)
	}
	return fromJobModel(m)
}

// PurgeTerminalJobs deletes completed and failed jobs whose CompletedAt
// is at or before the cutoff. Returns the number of rows deleted.
func (s *Store) PurgeTerminalJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("toil_jobs").
		Where("status IN ('completed', 'failed')").
		Where("completed_at IS NOT NULL").
		Where("completed_at <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("toil/bun: purge terminal jobs: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountJobsByStatus returns job counts grouped by status.
func (s *Store) CountJobsByStatus(ctx context.Context) (job.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM toil_jobs GROUP BY status`,
	)
	if err != nil {
		return job.Stats{}, fmt.Errorf("toil/bun: count jobs by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var stats job.Stats
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return job.Stats{}, fmt.Errorf("toil/bun: scan status count: %w", err)
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
		return job.Stats{}, fmt.Errorf("toil/bun: count jobs by status: %w", err)
	}
	return stats, nil
}
