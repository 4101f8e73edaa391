package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// PerformFunc is a type-erased job handler that accepts a raw JSON payload.
// The typed Definition[T] is converted to a PerformFunc at registration
// time by closing over JSON unmarshal + the typed handler.
type PerformFunc func(ctx context.Context, payload []byte) (Outcome, error)

// DedupeFunc derives a deduplication key from a raw JSON payload.
type DedupeFunc func(payload []byte) (string, error)

// Registration is a type-erased job type registration: the handler, the
// optional dedupe-key derivation, and the per-type options the executor
// consults for retry policy.
type Registration struct {
	Name      string
	Perform   PerformFunc
	DedupeKey DedupeFunc
	Opts      Options
}

// Registry maps job type names to registrations.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Registration
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Registration),
	}
}

// Register adds a registration, overwriting any previous one with the
// same name.
func (r *Registry) Register(reg *Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[reg.Name] = reg
}

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler; the typed dedupe-key function, if present, is
// wrapped the same way.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	perform := func(ctx context.Context, payload []byte) (Outcome, error) {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return Outcome{}, fmt.Errorf("unmarshal payload for job %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, t)
	}

	reg := &Registration{
		Name:    def.Name,
		Perform: perform,
		Opts:    def.Opts,
	}

	if def.DedupeKey != nil {
		dedupe := def.DedupeKey
		reg.DedupeKey = func(payload []byte) (string, error) {
			var t T
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &t); err != nil {
					return "", fmt.Errorf("unmarshal payload for job %q: %w", def.Name, err)
				}
			}
			return dedupe(t), nil
		}
	}

	r.Register(reg)
}

// Get returns the registration for the given job type.
// Returns false if nothing is registered under that name.
func (r *Registry) Get(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Names returns all registered job type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
