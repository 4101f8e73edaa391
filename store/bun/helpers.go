package bunstore

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
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
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

// isDedupeViolation checks if a unique_violation came from the dedupe
// index rather than the primary key. Field 'n' carries the constraint name.
func isDedupeViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505" && pgErr.Field('n') == dedupeIndexName
	}
	return false
}
