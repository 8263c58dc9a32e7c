package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/zen-systems/geogate/pkg/schema"
)

// RateLimitConfig is a per-vendor token budget.
type RateLimitConfig struct {
	// BudgetPerWindow is the token budget per window.
	BudgetPerWindow int
	// Headroom is the fraction of the budget held back as safety margin.
	Headroom float64
	// GroundedOverhead multiplies estimates for grounded calls, which burn
	// extra budget on tool use.
	GroundedOverhead float64
	// Window is the budget interval.
	Window time.Duration
	// WakeJitter bounds the random addition to wake times so blocked callers
	// do not stampede the next window.
	WakeJitter time.Duration
}

func (c *RateLimitConfig) applyDefaults() {
	if c.BudgetPerWindow <= 0 {
		c.BudgetPerWindow = 30000
	}
	if c.Headroom <= 0 || c.Headroom >= 1 {
		c.Headroom = 0.15
	}
	if c.GroundedOverhead < 1 {
		c.GroundedOverhead = 1.15
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.WakeJitter <= 0 {
		c.WakeJitter = 250 * time.Millisecond
	}
}

type tokenWindow struct {
	start time.Time
	used  int
	debt  int
}

// RateLimiter enforces a sliding one-window-per-vendor token budget with
// pre-call reservation and post-call reconciliation. Underestimated calls
// carry their excess into the next window as debt, never discarded.
type RateLimiter struct {
	defaults RateLimitConfig
	perVend  map[string]RateLimitConfig

	mu      sync.Mutex
	windows map[string]*tokenWindow

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewRateLimiter creates a limiter with a default config and optional
// per-vendor overrides.
func NewRateLimiter(defaults RateLimitConfig, perVendor map[string]RateLimitConfig) *RateLimiter {
	defaults.applyDefaults()
	cfgs := make(map[string]RateLimitConfig, len(perVendor))
	for vendor, cfg := range perVendor {
		cfg.applyDefaults()
		cfgs[vendor] = cfg
	}
	return &RateLimiter{
		defaults: defaults,
		perVend:  cfgs,
		windows:  make(map[string]*tokenWindow),
		now:      time.Now,
		sleep:    SleepWithContext,
		rand:     rand.Float64,
	}
}

// EstimateTokens computes the pre-call token estimate: a character-count
// heuristic for the input plus the requested output budget, with the
// grounded overhead multiplier applied when tools are attached.
func (l *RateLimiter) EstimateTokens(vendor string, messages []schema.Message, maxOutput int, grounded bool) int {
	cfg := l.config(vendor)
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	if maxOutput <= 0 {
		maxOutput = 1024
	}
	estimate := chars/4 + maxOutput
	if grounded {
		estimate = int(float64(estimate) * cfg.GroundedOverhead)
	}
	return estimate
}

// Reservation is an in-flight token reservation. Exactly one of Reconcile or
// Release must be called once the attempt settles; a timed-out or cancelled
// attempt releases rather than leaving the reservation held.
type Reservation struct {
	limiter     *RateLimiter
	vendor      string
	estimate    int
	windowStart time.Time
	settled     bool
}

// Reserve blocks until the vendor's window can absorb the estimate, then
// reserves it. Blocked callers wake at the next window boundary plus a small
// random jitter. Reserve never blocks callers against other vendors.
func (l *RateLimiter) Reserve(ctx context.Context, vendor string, estimate int) (*Reservation, error) {
	cfg := l.config(vendor)
	effective := int(float64(cfg.BudgetPerWindow) * (1 - cfg.Headroom))

	for {
		l.mu.Lock()
		w := l.rollLocked(vendor, cfg)
		// An estimate that alone exceeds the headroomed budget is admitted
		// into a fresh window; it could never run otherwise.
		fresh := w.used == w.debt
		if w.used+estimate <= effective || (fresh && estimate > effective) {
			w.used += estimate
			res := &Reservation{limiter: l, vendor: vendor, estimate: estimate, windowStart: w.start}
			l.mu.Unlock()
			return res, nil
		}
		wait := w.start.Add(cfg.Window).Sub(l.now())
		l.mu.Unlock()

		if wait < 0 {
			wait = 0
		}
		wait += time.Duration(l.rand() * float64(cfg.WakeJitter))
		if err := l.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// Reconcile settles a reservation against actual usage. Excess over the
// estimate becomes debt for the next window; unused margin is refunded to
// the current window when it is still open.
func (r *Reservation) Reconcile(actualTokens int) {
	if r == nil || r.settled {
		return
	}
	r.settled = true

	l := r.limiter
	cfg := l.config(r.vendor)
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.rollLocked(r.vendor, cfg)

	if actualTokens > r.estimate {
		w.debt += actualTokens - r.estimate
		return
	}
	if w.start.Equal(r.windowStart) {
		w.used -= r.estimate - actualTokens
		if w.used < 0 {
			w.used = 0
		}
	}
}

// Release returns the full estimate to the window; used when the attempt
// never consumed tokens (fail-fast, cancellation before dispatch).
func (r *Reservation) Release() {
	if r == nil || r.settled {
		return
	}
	r.settled = true

	l := r.limiter
	cfg := l.config(r.vendor)
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.rollLocked(r.vendor, cfg)
	if w.start.Equal(r.windowStart) {
		w.used -= r.estimate
		if w.used < 0 {
			w.used = 0
		}
	}
}

func (l *RateLimiter) config(vendor string) RateLimitConfig {
	if cfg, ok := l.perVend[vendor]; ok {
		return cfg
	}
	return l.defaults
}

// rollLocked advances the vendor's window if its interval has elapsed.
// Carried debt seeds the new window's consumption.
func (l *RateLimiter) rollLocked(vendor string, cfg RateLimitConfig) *tokenWindow {
	now := l.now()
	w, ok := l.windows[vendor]
	if !ok {
		w = &tokenWindow{start: now}
		l.windows[vendor] = w
		return w
	}
	if now.Sub(w.start) >= cfg.Window {
		w.start = now
		w.used = w.debt
		w.debt = 0
	}
	return w
}
