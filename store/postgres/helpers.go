package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// dedupeIndexName is the partial unique index enforcing one active job
// per dedupe key. Must match the name in the migration.
const dedupeIndexName = "toil_jobs_dedupe_key_active_idx"

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isDedupeViolation checks if a unique_violation came from the dedupe
// index rather than the primary key.
func isDedupeViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == dedupeIndexName
	}
	return false
}
