// Package postgres implements the job store using pgx/v5 with raw SQL.
// Features: FOR UPDATE SKIP LOCKED claims, a partial unique index for
// dedupe keys, and embedded SQL migrations.
package postgres
