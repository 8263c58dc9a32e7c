// Package resilience holds the per-target runtime state machines guarding
// outbound calls: circuit breaker, token-budget rate limiter, retry policy,
// and the tool-variant negotiator. State is keyed and mutex-guarded per
// component; there is no global lock across vendors or models.
package resilience

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/zen-systems/geogate/pkg/schema"
)

// Breaker states as reported to telemetry.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive server-class failures open the circuit.
	FailureThreshold int
	// Hold duration is drawn uniformly from [HoldMin, HoldMax] so concurrent
	// callers do not re-probe in lockstep.
	HoldMin time.Duration
	HoldMax time.Duration
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.HoldMin <= 0 {
		c.HoldMin = 30 * time.Second
	}
	if c.HoldMax < c.HoldMin {
		c.HoldMax = c.HoldMin + 30*time.Second
	}
}

type targetBreaker struct {
	state         string
	failures      int
	openedAt      time.Time
	hold          time.Duration
	probeInFlight bool
}

// CircuitBreaker tracks per-(vendor,model) failure state. Keys are
// "vendor/model" strings. Targets are created lazily and live for the
// process lifetime.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu      sync.Mutex
	targets map[string]*targetBreaker

	now  func() time.Time
	rand func() float64
}

// NewCircuitBreaker creates a breaker with the given config.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{
		cfg:     cfg,
		targets: make(map[string]*targetBreaker),
		now:     time.Now,
		rand:    rand.Float64,
	}
}

// Allow reports whether a call to the target may proceed. While open it
// fails fast with CIRCUIT_OPEN without contacting the backend; once the hold
// elapses exactly one probe call is let through.
func (b *CircuitBreaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.target(key)
	switch t.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(t.openedAt) < t.hold {
			return b.openError(key, t)
		}
		t.state = StateHalfOpen
		t.probeInFlight = true
		return nil
	case StateHalfOpen:
		if t.probeInFlight {
			return b.openError(key, t)
		}
		t.probeInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess resets the target to closed with zero failures.
func (b *CircuitBreaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.target(key)
	t.state = StateClosed
	t.failures = 0
	t.probeInFlight = false
}

// ReleaseProbe returns an unused half-open probe slot. Callers invoke it
// when an attempt ends without reaching a countable outcome, such as a
// budget-wait cancellation or a caller input rejection; the next Allow may
// grant the probe again. On a closed target it is a no-op.
func (b *CircuitBreaker) ReleaseProbe(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[key]
	if !ok {
		return
	}
	t.probeInFlight = false
}

// RecordFailure counts a server-class failure. Caller input errors must
// never be recorded here.
func (b *CircuitBreaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.target(key)
	if t.state == StateHalfOpen {
		b.openLocked(t)
		return
	}
	t.failures++
	if t.failures >= b.cfg.FailureThreshold {
		b.openLocked(t)
	}
}

// State returns the target's current state for telemetry.
func (b *CircuitBreaker) State(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[key]
	if !ok {
		return StateClosed
	}
	if t.state == StateOpen && b.now().Sub(t.openedAt) >= t.hold {
		return StateHalfOpen
	}
	return t.state
}

func (b *CircuitBreaker) target(key string) *targetBreaker {
	t, ok := b.targets[key]
	if !ok {
		t = &targetBreaker{state: StateClosed}
		b.targets[key] = t
	}
	return t
}

func (b *CircuitBreaker) openLocked(t *targetBreaker) {
	t.state = StateOpen
	t.openedAt = b.now()
	t.probeInFlight = false
	spread := b.cfg.HoldMax - b.cfg.HoldMin
	t.hold = b.cfg.HoldMin + time.Duration(b.rand()*float64(spread))
}

func (b *CircuitBreaker) openError(key string, t *targetBreaker) error {
	return &schema.GatewayError{
		Code: schema.ReasonCircuitOpen,
		Err:  fmt.Errorf("service unavailable upstream: circuit open for %s (%d consecutive failures)", key, t.failures),
	}
}
