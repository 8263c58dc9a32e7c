package resilience

import (
	"testing"
	"time"

	"github.com/zen-systems/geogate/pkg/schema"
)

func testBreaker(threshold int, hold time.Duration) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: threshold,
		HoldMin:          hold,
		HoldMax:          hold,
	})
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	b.rand = func() float64 { return 0 }
	return b, &clock
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := testBreaker(3, 30*time.Second)
	key := "openai/gpt-5.2-instant"

	for i := 0; i < 3; i++ {
		if err := b.Allow(key); err != nil {
			t.Fatalf("allow before threshold: %v", err)
		}
		b.RecordFailure(key)
	}

	err := b.Allow(key)
	if !schema.IsReason(err, schema.ReasonCircuitOpen) {
		t.Fatalf("expected CIRCUIT_OPEN, got %v", err)
	}
	if got := b.State(key); got != StateOpen {
		t.Fatalf("expected open state, got %q", got)
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, clock := testBreaker(2, 30*time.Second)
	key := "google/gemini-3-pro"

	b.RecordFailure(key)
	b.RecordFailure(key)
	if err := b.Allow(key); err == nil {
		t.Fatal("expected open circuit to reject")
	}

	*clock = clock.Add(31 * time.Second)
	if err := b.Allow(key); err != nil {
		t.Fatalf("expected one probe after hold, got %v", err)
	}
	if err := b.Allow(key); err == nil {
		t.Fatal("expected second concurrent probe to be rejected")
	}
}

func TestBreakerReleaseProbeReturnsSlot(t *testing.T) {
	b, clock := testBreaker(1, 30*time.Second)
	key := "openai/gpt-5.2-instant"

	b.RecordFailure(key)
	*clock = clock.Add(31 * time.Second)
	if err := b.Allow(key); err != nil {
		t.Fatalf("expected probe after hold, got %v", err)
	}

	// The probe attempt ended without a countable outcome; the slot must
	// come back so the target cannot wedge in half-open.
	b.ReleaseProbe(key)
	if err := b.Allow(key); err != nil {
		t.Fatalf("expected released slot to permit a new probe, got %v", err)
	}
	b.RecordSuccess(key)
	if got := b.State(key); got != StateClosed {
		t.Fatalf("state = %q, want closed", got)
	}
}

func TestBreakerReleaseProbeOnClosedTargetIsNoop(t *testing.T) {
	b, _ := testBreaker(3, 30*time.Second)
	key := "google/gemini-3-pro"

	b.ReleaseProbe(key)
	b.ReleaseProbe("never/seen")
	if err := b.Allow(key); err != nil {
		t.Fatalf("closed target must still allow: %v", err)
	}
	if got := b.State(key); got != StateClosed {
		t.Fatalf("state = %q, want closed", got)
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b, clock := testBreaker(2, 30*time.Second)
	key := "openai/gpt-5.2-instant"

	b.RecordFailure(key)
	b.RecordFailure(key)
	*clock = clock.Add(time.Minute)
	if err := b.Allow(key); err != nil {
		t.Fatalf("probe: %v", err)
	}
	b.RecordSuccess(key)

	if got := b.State(key); got != StateClosed {
		t.Fatalf("expected closed after probe success, got %q", got)
	}
	for i := 0; i < 5; i++ {
		if err := b.Allow(key); err != nil {
			t.Fatalf("closed circuit must allow calls: %v", err)
		}
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, clock := testBreaker(2, 30*time.Second)
	key := "openai/gpt-5.2-instant"

	b.RecordFailure(key)
	b.RecordFailure(key)
	*clock = clock.Add(time.Minute)
	if err := b.Allow(key); err != nil {
		t.Fatalf("probe: %v", err)
	}
	b.RecordFailure(key)

	if err := b.Allow(key); !schema.IsReason(err, schema.ReasonCircuitOpen) {
		t.Fatalf("expected re-opened circuit, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := testBreaker(3, 30*time.Second)
	key := "anthropic/claude-sonnet-4-20250514"

	b.RecordFailure(key)
	b.RecordFailure(key)
	b.RecordSuccess(key)
	b.RecordFailure(key)
	b.RecordFailure(key)

	if err := b.Allow(key); err != nil {
		t.Fatalf("expected closed circuit after interleaved success: %v", err)
	}
}

func TestBreakerKeysAreIndependent(t *testing.T) {
	b, _ := testBreaker(1, 30*time.Second)
	b.RecordFailure("openai/gpt-5.2-instant")

	if err := b.Allow("openai/gpt-5.2-thinking"); err != nil {
		t.Fatalf("sibling model must not share breaker state: %v", err)
	}
}
