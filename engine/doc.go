// Package engine wires all Toil subsystems together and provides the
// primary application-level API for registering and enqueuing work.
//
// The engine package exists to break a fundamental import cycle: the root
// toil package defines Entity (imported by job, scheduler, etc.) and
// therefore cannot import those packages back. Engine sits above all
// subsystem packages and below the application layer.
//
// # Building an Engine
//
//	d, err := toil.New(
//	    toil.WithStore(pgStore),
//	    toil.WithMaxConcurrent(10),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	    engine.WithBackoff(backoff.NewQuadratic(time.Second, time.Hour)),
//	    engine.WithTypeLimit(limit.Config{
//	        Type:          "sync-inbox",
//	        MaxConcurrent: 2,
//	    }),
//	)
//
// # Registering Work
//
//	engine.Register(eng, job.NewDefinition("send-email", sendEmail))
//
// # Enqueuing Jobs
//
//	engine.Enqueue(ctx, eng, "send-email", EmailInput{To: "user@example.com"})
//
//	// With options
//	engine.Enqueue(ctx, eng, "send-email", input, job.WithScheduledAt(time.Now().Add(5*time.Minute)))
//	engine.Enqueue(ctx, eng, "send-email", input, job.WithPriority(10))
//
//	// Run on the caller's goroutine, skipping the queue
//	engine.PerformNow(ctx, eng, "send-email", input)
//
// # Options
//
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds a middleware to the execution chain
//   - [WithBackoff] sets the retry backoff strategy
//   - [WithTypeLimit] configures per-type rate limits and concurrency
//   - [WithTracerProvider] sets the OpenTelemetry tracer provider
//   - [WithMeterProvider] sets the OpenTelemetry meter provider
package engine
