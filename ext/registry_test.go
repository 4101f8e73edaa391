package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/toil/ext"
	"github.com/xraph/toil/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobEnqueued(_ context.Context, _ *job.Record) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Record) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ *job.Record, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Record, _ error) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *allHooksExt) OnJobRetrying(_ context.Context, _ *job.Record, _ int, _ time.Time) error {
	e.calls = append(e.calls, "OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobPostponed(_ context.Context, _ *job.Record, _ time.Duration, _ string) error {
	e.calls = append(e.calls, "OnJobPostponed")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// enqueueOnlyExt only implements the enqueue and completion hooks.
type enqueueOnlyExt struct {
	calls []string
}

func (e *enqueueOnlyExt) Name() string { return "enqueue-only" }

func (e *enqueueOnlyExt) OnJobEnqueued(_ context.Context, _ *job.Record) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *enqueueOnlyExt) OnJobCompleted(_ context.Context, _ *job.Record, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobEnqueued(_ context.Context, _ *job.Record) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	eo := &enqueueOnlyExt{}
	r.Register(all)
	r.Register(eo)

	ctx := context.Background()
	rec := &job.Record{Type: "test-job"}

	// Both implement OnJobEnqueued → both called.
	r.EmitJobEnqueued(ctx, rec)
	if len(all.calls) != 1 || all.calls[0] != "OnJobEnqueued" {
		t.Fatalf("all: expected [OnJobEnqueued], got %v", all.calls)
	}
	if len(eo.calls) != 1 || eo.calls[0] != "OnJobEnqueued" {
		t.Fatalf("eo: expected [OnJobEnqueued], got %v", eo.calls)
	}

	// Only all implements OnJobStarted → eo not called.
	r.EmitJobStarted(ctx, rec)
	if len(all.calls) != 2 || all.calls[1] != "OnJobStarted" {
		t.Fatalf("all: expected OnJobStarted as 2nd, got %v", all.calls)
	}
	if len(eo.calls) != 1 {
		t.Fatalf("eo: should still have 1 call, got %v", eo.calls)
	}
}

func TestRegistry_AllJobHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	rec := &job.Record{Type: "test-job"}

	r.EmitJobEnqueued(ctx, rec)
	r.EmitJobStarted(ctx, rec)
	r.EmitJobCompleted(ctx, rec, time.Second)
	r.EmitJobFailed(ctx, rec, errors.New("fail"))
	r.EmitJobRetrying(ctx, rec, 1, time.Now())
	r.EmitJobPostponed(ctx, rec, time.Minute, "later")

	expected := []string{
		"OnJobEnqueued", "OnJobStarted", "OnJobCompleted",
		"OnJobFailed", "OnJobRetrying", "OnJobPostponed",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_ShutdownHookFires(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	r.EmitShutdown(context.Background())

	if len(all.calls) != 1 {
		t.Fatalf("expected 1 call, got %d: %v", len(all.calls), all.calls)
	}
	if all.calls[0] != "OnShutdown" {
		t.Errorf("call[0] = %q, want OnShutdown", all.calls[0])
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	failing := &failingExt{}
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(failing)
	r.Register(all)

	ctx := context.Background()
	rec := &job.Record{Type: "test-job"}

	// No panic, no error propagation. allHooksExt should still fire.
	r.EmitJobEnqueued(ctx, rec)

	if len(all.calls) != 1 || all.calls[0] != "OnJobEnqueued" {
		t.Fatalf("all: expected [OnJobEnqueued] despite failing ext, got %v", all.calls)
	}

	// Shutdown errors also swallowed.
	r.EmitShutdown(ctx)
	if all.calls[len(all.calls)-1] != "OnShutdown" {
		t.Fatalf("expected OnShutdown to fire after failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryIsSafe(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ctx := context.Background()
	rec := &job.Record{Type: "test-job"}

	// No extensions registered; emits are no-ops.
	r.EmitJobEnqueued(ctx, rec)
	r.EmitJobStarted(ctx, rec)
	r.EmitJobCompleted(ctx, rec, time.Second)
	r.EmitJobFailed(ctx, rec, errors.New("fail"))
	r.EmitJobRetrying(ctx, rec, 1, time.Now())
	r.EmitJobPostponed(ctx, rec, time.Minute, "later")
	r.EmitShutdown(ctx)

	if got := len(r.Extensions()); got != 0 {
		t.Fatalf("expected 0 extensions, got %d", got)
	}
}
