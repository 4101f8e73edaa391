package toil

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("toil: no store configured")
	ErrStoreClosed = errors.New("toil: store closed")

	// Not found errors.
	ErrJobNotFound = errors.New("toil: job not found")

	// Conflict errors.
	ErrDuplicateJob     = errors.New("toil: duplicate job for dedupe key")
	ErrJobAlreadyExists = errors.New("toil: job already exists")

	// State errors.
	ErrJobNotRunning        = errors.New("toil: job is not running")
	ErrInvalidPostponeDelay = errors.New("toil: postpone delay must be a positive number of seconds")

	// Lifecycle errors.
	ErrNotBuilt = errors.New("toil: dispatcher not built; call engine.Build first")
)
