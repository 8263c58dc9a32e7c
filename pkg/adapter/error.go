package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Status    int
	Temporary bool
	// RetryAfter carries an explicit backend hint, when present.
	RetryAfter time.Duration
	// ToolUnsupported marks a structured "unsupported tool" rejection,
	// which the negotiator handles rather than the retry loop.
	ToolUnsupported bool
	Err             error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("adapter error (status=%d)", e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.ToolUnsupported {
			return false
		}
		if adapterErr.Temporary {
			return true
		}
		if adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}

// IsRateLimited reports whether an error is a reactive 429-equivalent.
// Rate-limited failures retry on a separate, shorter leash than other
// transient classes.
func IsRateLimited(err error) bool {
	var adapterErr *AdapterError
	return errors.As(err, &adapterErr) && adapterErr.Status == 429
}

// IsToolUnsupported reports whether an error is a structured "unsupported
// tool" rejection.
func IsToolUnsupported(err error) bool {
	var adapterErr *AdapterError
	return errors.As(err, &adapterErr) && adapterErr.ToolUnsupported
}

// IsServerClass reports whether a failure should count against the circuit
// breaker: server-class errors and network failures only, never caller
// input errors.
func IsServerClass(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Status >= 500 && adapterErr.Status <= 599
	}
	return false
}

// RetryAfterHint extracts a backend retry-after hint from an error chain.
func RetryAfterHint(err error) time.Duration {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.RetryAfter
	}
	return 0
}

// looksLikeToolUnsupported classifies a vendor 4xx message as an
// unsupported-tool rejection. Vendors phrase this differently; the match is
// deliberately loose over known phrasings.
func looksLikeToolUnsupported(status int, message string) bool {
	if status != 400 && status != 404 {
		return false
	}
	msg := strings.ToLower(message)
	if !strings.Contains(msg, "tool") && !strings.Contains(msg, "search") {
		return false
	}
	for _, marker := range []string{"not supported", "unsupported", "not available", "not enabled", "invalid"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
