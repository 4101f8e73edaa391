package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/toil/job"
)

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) (job.Outcome, error) {
		logger.Info("job started",
			slog.String("job_type", r.Type),
			slog.String("job_id", r.ID.String()),
			slog.Int("retry_count", r.RetryCount),
		)

		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			logger.Error("job failed",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		case out.Postponed():
			logger.Info("job postponed",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.Duration("delay", out.Delay()),
				slog.String("reason", out.Reason()),
			)
		default:
			logger.Info("job completed",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
