package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"server error", &AdapterError{Status: 503}, true},
		{"rate limited", &AdapterError{Status: 429}, true},
		{"bad request", &AdapterError{Status: 400}, false},
		{"temporary flag", &AdapterError{Temporary: true}, true},
		{"tool unsupported", &AdapterError{Status: 400, ToolUnsupported: true}, false},
		{"wrapped", fmt.Errorf("call failed: %w", &AdapterError{Status: 500}), true},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsServerClass(t *testing.T) {
	if IsServerClass(&AdapterError{Status: 429}) {
		t.Fatal("429 must not count against the circuit breaker")
	}
	if IsServerClass(&AdapterError{Status: 400}) {
		t.Fatal("caller input errors must not count against the breaker")
	}
	if !IsServerClass(&AdapterError{Status: 502}) {
		t.Fatal("5xx must count against the breaker")
	}
	if !IsServerClass(context.DeadlineExceeded) {
		t.Fatal("timeouts must count against the breaker")
	}
}

func TestIsRateLimitedAndHint(t *testing.T) {
	err := fmt.Errorf("upstream: %w", &AdapterError{Status: 429, RetryAfter: 3 * time.Second})
	if !IsRateLimited(err) {
		t.Fatal("expected rate-limited classification")
	}
	if got := RetryAfterHint(err); got != 3*time.Second {
		t.Fatalf("expected retry-after hint, got %v", got)
	}
	if RetryAfterHint(errors.New("plain")) != 0 {
		t.Fatal("plain errors carry no hint")
	}
}

func TestLooksLikeToolUnsupported(t *testing.T) {
	if !looksLikeToolUnsupported(400, "the web_search tool is not supported with this model") {
		t.Fatal("expected unsupported-tool classification")
	}
	if looksLikeToolUnsupported(500, "tool not supported") {
		t.Fatal("5xx is never an unsupported-tool rejection")
	}
	if looksLikeToolUnsupported(400, "missing required field") {
		t.Fatal("unrelated 400s must not classify as unsupported tool")
	}
}
