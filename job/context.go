package job

import "context"

type ctxKey struct{}

// NewContext returns a context carrying the record under execution.
// The scheduler attaches the record before invoking the handler chain.
func NewContext(ctx context.Context, r *Record) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the record under execution, if any. Handlers can use
// it to read their own ID, retry count, or correlation fields.
func FromContext(ctx context.Context) (*Record, bool) {
	r, ok := ctx.Value(ctxKey{}).(*Record)
	return r, ok
}
