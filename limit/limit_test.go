package limit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	if !m.Acquire("anything") {
		t.Fatal("empty manager should allow any Acquire")
	}
	m.Release("anything")
}

func TestNewManager_WithConfig(t *testing.T) {
	m := NewManager(Config{
		Type:          "sync-inbox",
		MaxConcurrent: 1,
	})
	if !m.Acquire("sync-inbox") {
		t.Fatal("first Acquire should succeed")
	}
	if m.Acquire("sync-inbox") {
		t.Fatal("second Acquire should fail at max concurrency 1")
	}
	m.Release("sync-inbox")
}

// ---------------------------------------------------------------------------
// Concurrency caps
// ---------------------------------------------------------------------------

func TestManager_MaxConcurrent(t *testing.T) {
	m := NewManager(Config{
		Type:          "render",
		MaxConcurrent: 2,
	})

	if !m.Acquire("render") {
		t.Fatal("Acquire 1 should succeed")
	}
	if !m.Acquire("render") {
		t.Fatal("Acquire 2 should succeed")
	}
	if m.Acquire("render") {
		t.Fatal("Acquire 3 should fail (max 2)")
	}

	m.Release("render")
	if !m.Acquire("render") {
		t.Fatal("Acquire should succeed again after Release")
	}

	m.Release("render")
	m.Release("render")
}

func TestManager_AcquireRelease_ActiveCount(t *testing.T) {
	m := NewManager(Config{Type: "work", MaxConcurrent: 10})

	m.Acquire("work")
	m.Acquire("work")
	m.Acquire("work")

	if got := m.ActiveCount("work"); got != 3 {
		t.Fatalf("expected active 3, got %d", got)
	}

	m.Release("work")
	if got := m.ActiveCount("work"); got != 2 {
		t.Fatalf("expected active 2, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Config{
		Type:      "limited",
		RateLimit: 1.0, // 1 job/s
		RateBurst: 1,
	})

	// First acquire consumes the only token.
	if !m.Acquire("limited") {
		t.Fatal("first Acquire should succeed")
	}
	m.Release("limited")

	// Immediately after, token bucket is empty.
	if m.Acquire("limited") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	// Wait for token refill.
	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited")
}

func TestManager_RateLimit_BurstAllows(t *testing.T) {
	m := NewManager(Config{
		Type:      "bursty",
		RateLimit: 10.0,
		RateBurst: 3,
	})

	// Three immediate acquires should succeed (burst = 3).
	for i := range 3 {
		if !m.Acquire("bursty") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release("bursty")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetTypeConfig(t *testing.T) {
	m := NewManager(Config{
		Type:          "dyn",
		MaxConcurrent: 1,
	})

	m.Acquire("dyn")
	if m.Acquire("dyn") {
		t.Fatal("should be blocked at concurrency 1")
	}

	// Raise the limit dynamically.
	m.SetTypeConfig(Config{
		Type:          "dyn",
		MaxConcurrent: 3,
	})

	// Now should succeed.
	if !m.Acquire("dyn") {
		t.Fatal("should succeed after raising concurrency")
	}
	m.Release("dyn")
	m.Release("dyn")
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Config{
		Type:          "concurrent",
		MaxConcurrent: 50,
	})

	var acquired atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("concurrent") {
				acquired.Add(1)
				// Simulate work.
				time.Sleep(time.Millisecond)
				m.Release("concurrent")
			}
		}()
	}

	wg.Wait()

	// At least some should have succeeded.
	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}

	// Active should be back to 0.
	if m.ActiveCount("concurrent") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", m.ActiveCount("concurrent"))
	}
}

func TestManager_UnconfiguredType_AlwaysSucceeds(t *testing.T) {
	m := NewManager(Config{
		Type:          "configured",
		MaxConcurrent: 1,
	})

	// "other" type has no config, so no limits.
	for range 10 {
		if !m.Acquire("other") {
			t.Fatal("unconfigured type should always allow Acquire")
		}
	}
	for range 10 {
		m.Release("other")
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{
		Type:          "q",
		MaxConcurrent: 5,
	})

	// Release without Acquire should not go negative.
	m.Release("q")
	if m.ActiveCount("q") != 0 {
		t.Fatal("active count should not go below 0")
	}
}
