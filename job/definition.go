package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this job type.
	Name string

	// Handler is the function that performs the work. It returns an
	// Outcome (Complete or Postpone) or an error subject to retry policy.
	Handler func(ctx context.Context, payload T) (Outcome, error)

	// DedupeKey, if set, derives a deduplication key from the payload.
	// Enqueues whose key matches an active job are rejected.
	DedupeKey func(payload T) string

	// Opts configures retries, priority, and timeout for this job type.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) (Outcome, error), opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// WithDedupeKey sets the dedupe-key derivation for this definition and
// returns the definition for chaining.
func (d *Definition[T]) WithDedupeKey(fn func(payload T) string) *Definition[T] {
	d.DedupeKey = fn
	return d
}
