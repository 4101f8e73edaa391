package toil

import "time"

// Config holds configuration for the Dispatcher.
type Config struct {
	// MaxConcurrent is the maximum number of jobs executed concurrently.
	MaxConcurrent int

	// PollInterval is how often to poll the store for due jobs.
	PollInterval time.Duration

	// CleanupInterval is how often old terminal jobs are purged.
	CleanupInterval time.Duration

	// Retention is how long completed and failed jobs are kept before
	// cleanup deletes them.
	Retention time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   10,
		PollInterval:    100 * time.Millisecond,
		CleanupInterval: 10 * time.Minute,
		Retention:       7 * 24 * time.Hour,
		ShutdownTimeout: 30 * time.Second,
	}
}
