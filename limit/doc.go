// Package limit provides per-type rate limiting and concurrency caps
// for job execution.
//
// Every job carries a type that determines which handler runs it. Some
// types talk to external services that tolerate only so much traffic
// (provider APIs, mail servers), so the scheduler consults a [Manager]
// before starting each claimed job.
//
// # Per-Type Configuration
//
// Use [Config] to cap a single job type:
//
//	limit.Config{
//	    Type:          "sync-inbox",
//	    MaxConcurrent: 2,      // at most 2 inbox syncs at once
//	    RateLimit:     0.5,    // at most one started every 2s
//	    RateBurst:     2,      // allow short bursts of 2
//	}
//
// Pass configs when building the engine:
//
//	engine.Build(d,
//	    engine.WithTypeLimit(
//	        limit.Config{Type: "sync-inbox", MaxConcurrent: 2},
//	        limit.Config{Type: "generate-title", RateLimit: 5, RateBurst: 10},
//	    ),
//	)
//
// # Manager
//
// [Manager] enforces the limits at claim time. It uses a token-bucket
// rate limiter (golang.org/x/time/rate) and an active-count gate for
// concurrency limits.
//
//	m := limit.NewManager(configs...)
//	if m.Acquire(jobType) {
//	    defer m.Release(jobType)
//	    // run the job
//	}
//
// Types without a [Config] have no limits beyond the scheduler-wide
// concurrency cap. A denied Acquire is not an error: the scheduler puts
// the job back to pending and retries it on a later poll tick.
package limit
