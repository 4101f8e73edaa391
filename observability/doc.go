// Package observability provides an OpenTelemetry-based metrics extension
// for Toil. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for job enqueue, start, completion, failure, retry,
// and postponement events, broken down by job type.
//
// For per-execution tracing and duration histograms, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
