package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/toil/job"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) (out job.Outcome, retErr error) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := string(debug.Stack())
				logger.Error("job handler panicked",
					slog.String("job_type", r.Type),
					slog.String("job_id", r.ID.String()),
					slog.Any("panic", rec),
					slog.String("stack", stack),
				)
				out = job.Outcome{}
				retErr = fmt.Errorf("panic in job %s: %v", r.Type, rec)
			}
		}()
		return next(ctx)
	}
}
