package adapter

import (
	"context"
	"fmt"
	"sync"
)

// MockCall scripts one Complete invocation of a MockAdapter.
type MockCall struct {
	Result *Result
	Err    error
}

// MockAdapter returns scripted responses for tests. It records every
// received CallSpec so tests can assert on message ordering, tool variants,
// and retry behavior.
type MockAdapter struct {
	name     string
	variants []string

	mu     sync.Mutex
	script []MockCall
	calls  []CallSpec
}

// NewMockAdapter creates a mock adapter named "mock" with two tool variants.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		name:     "mock",
		variants: []string{"mock_search", "mock_search_alt"},
	}
}

// NewNamedMockAdapter creates a mock adapter masquerading as a vendor.
func NewNamedMockAdapter(name string, variants ...string) *MockAdapter {
	if len(variants) == 0 {
		variants = []string{"mock_search"}
	}
	return &MockAdapter{name: name, variants: variants}
}

// Enqueue appends scripted calls; they are consumed in order.
func (a *MockAdapter) Enqueue(calls ...MockCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = append(a.script, calls...)
}

// Calls returns a copy of the received call specs.
func (a *MockAdapter) Calls() []CallSpec {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]CallSpec(nil), a.calls...)
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return a.name
}

// ToolVariants returns the scripted tool identifiers.
func (a *MockAdapter) ToolVariants() []string {
	return append([]string(nil), a.variants...)
}

// Complete records the spec and pops the next scripted call. With an empty
// script it returns a deterministic echo result.
func (a *MockAdapter) Complete(_ context.Context, spec CallSpec) (*Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, spec)
	var next *MockCall
	if len(a.script) > 0 {
		next = &a.script[0]
		a.script = a.script[1:]
	}
	a.mu.Unlock()

	if next != nil {
		if next.Err != nil {
			return nil, next.Err
		}
		out := *next.Result
		return &out, nil
	}

	var prompt string
	for _, m := range spec.Messages {
		prompt = m.Content
	}
	return &Result{
		Content:      fmt.Sprintf("mock response:\n%s", prompt),
		Usage:        Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		FinishReason: "stop",
	}, nil
}
