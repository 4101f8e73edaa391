package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/toil/job"
)

// tracerName is the instrumentation scope name for toil tracing.
const tracerName = "github.com/xraph/toil"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: toil.job.id, toil.job.type, toil.retry_count,
// toil.user_id, toil.target_id. A postponement is recorded as a span event;
// on error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) (job.Outcome, error) {
		ctx, span := tracer.Start(ctx, "toil.job.execute",
			trace.WithAttributes(
				attribute.String("toil.job.id", r.ID.String()),
				attribute.String("toil.job.type", r.Type),
				attribute.Int("toil.retry_count", r.RetryCount),
				attribute.String("toil.user_id", r.UserID),
				attribute.String("toil.target_id", r.TargetID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case out.Postponed():
			span.AddEvent("toil.job.postponed",
				trace.WithAttributes(attribute.String("reason", out.Reason())),
			)
			span.SetStatus(codes.Ok, "")
		default:
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
