// Package toil provides a database-backed background job scheduler for Go.
// It offers durable job queueing, priority-ordered polling, bounded
// concurrency, retries with pluggable backoff, deduplication, postponement,
// and cooperative cancellation.
//
// Toil is designed as a library, not a service. Import it, configure a
// store, and register job types as ordinary Go functions.
//
// # Quick Start
//
//	d, err := toil.New(
//	    toil.WithStore(pgStore),
//	    toil.WithMaxConcurrent(20),
//	)
//
// # Architecture
//
// The root package defines Entity, Config, and the Dispatcher facade. The
// job package defines the record, typed definitions, and store interface.
// The scheduler package polls the store, claims due work, and executes it
// through a middleware chain. The engine package sits above both and wires
// everything together, providing Register, Enqueue, and PerformNow.
//
// All job IDs use TypeID, a type-prefixed, K-sortable identifier format.
package toil
