// Package job defines the job record, status machine, typed definitions,
// and store interface.
//
// # Record
//
// A [Record] represents a unit of work. It embeds [toil.Entity] for
// timestamps, carries a typed payload (JSON), and progresses through a
// status machine:
//
//	pending → running → completed
//	pending → running → retrying → running → ...
//	pending → running → postponed → running → ...
//	pending → running → failed
//
// Fields of note:
//   - Priority: higher values are claimed first
//   - ScheduledAt: earliest time a pending job may be claimed
//   - NextRetryAt: earliest time a retrying or postponed job may be reclaimed
//   - RetryCount: grows only on genuine failures, never on postponement
//   - Timeout: per-job execution deadline (zero = unlimited)
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// at enqueue time and deserialized before the handler runs. Handlers
// return an [Outcome]: [Complete] with an optional result value, or
// [Postpone] to run again later without consuming the retry budget:
//
//	var SyncInbox = job.NewDefinition("sync_inbox",
//	    func(ctx context.Context, input SyncInput) (job.Outcome, error) {
//	        n, err := imap.Fetch(ctx, input.Account)
//	        if err != nil {
//	            return job.Outcome{}, err
//	        }
//	        if n == 0 {
//	            return job.Postpone(5*time.Minute, "mailbox empty"), nil
//	        }
//	        return job.Complete(SyncResult{Fetched: n}), nil
//	    },
//	    job.WithMaxRetries(5),
//	).WithDedupeKey(func(input SyncInput) string { return input.Account })
//
// # Registry
//
// [Registry] maps job type names to type-erased [Registration] values.
// Register definitions at startup via [RegisterDefinition]:
//
//	job.RegisterDefinition(registry, SyncInbox)
//	job.RegisterDefinition(registry, GenerateDigest)
//
// The engine package provides higher-level engine.Register and
// engine.Enqueue wrappers.
package job
