package store

import (
	"context"

	"github.com/xraph/toil/job"
)

// Store is the aggregate persistence interface. A backend implements
// job.Store for the queue itself plus migration and connectivity
// management.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
