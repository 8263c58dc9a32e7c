package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy controls backoff for transient upstream failures. It applies
// only to retryable classes; caller input errors and policy failures are
// never retried.
type RetryPolicy struct {
	// MaxAttempts is the total attempt count including the first call.
	MaxAttempts int
	// BaseBackoff doubles each attempt up to MaxBackoff, with up to 50%
	// random jitter added.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// MaxRateLimitAttempts bounds consecutive rate-limited attempts before
	// the call fails with QUOTA_EXHAUSTED instead of retrying indefinitely.
	MaxRateLimitAttempts int

	rand func() float64
}

func (p *RetryPolicy) applyDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 200 * time.Millisecond
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = 8 * time.Second
	}
	if p.MaxRateLimitAttempts <= 0 {
		p.MaxRateLimitAttempts = 3
	}
	if p.rand == nil {
		p.rand = rand.Float64
	}
}

// NewRetryPolicy returns a policy with defaults applied.
func NewRetryPolicy(maxAttempts int, base, max time.Duration, maxRateLimit int) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:          maxAttempts,
		BaseBackoff:          base,
		MaxBackoff:           max,
		MaxRateLimitAttempts: maxRateLimit,
	}
	p.applyDefaults()
	return p
}

// Backoff computes the delay before retry attempt `attempt` (0-based count
// of failures so far). An explicit retry-after hint from the backend takes
// precedence over the computed backoff.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	p.applyDefaults()
	if retryAfter > 0 {
		return retryAfter
	}
	d := p.BaseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	return d + time.Duration(p.rand()*0.5*float64(d))
}

// SleepWithContext waits for d or until the context is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
