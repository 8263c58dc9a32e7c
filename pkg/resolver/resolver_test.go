package resolver

import (
	"testing"

	"github.com/zen-systems/geogate/pkg/schema"
)

func testResolver() *Resolver {
	return New(
		map[string]string{
			"fast":     "gpt-5.2-instant",
			"research": "gemini-3-pro",
		},
		map[string][]string{
			VendorOpenAI:    {"gpt-5.2-instant", "gpt-5.2-thinking"},
			VendorGoogle:    {"gemini-3-pro"},
			VendorAnthropic: {"claude-sonnet-4-20250514"},
		},
	)
}

func TestResolveAliasBeforeInference(t *testing.T) {
	r := testResolver()

	target, err := r.Resolve("", "fast")
	if err != nil {
		t.Fatalf("resolve alias: %v", err)
	}
	if target.Vendor != VendorOpenAI || target.Model != "gpt-5.2-instant" {
		t.Fatalf("unexpected target %+v", target)
	}

	target, err = r.Resolve("", "research")
	if err != nil {
		t.Fatalf("resolve alias: %v", err)
	}
	if target.Vendor != VendorGoogle {
		t.Fatalf("expected google vendor, got %q", target.Vendor)
	}
}

func TestResolveExplicitVendor(t *testing.T) {
	r := testResolver()
	target, err := r.Resolve("anthropic", "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Key() != "anthropic/claude-sonnet-4-20250514" {
		t.Fatalf("unexpected key %q", target.Key())
	}
}

func TestResolveDisallowedModelCarriesAllowedSet(t *testing.T) {
	r := testResolver()
	_, err := r.Resolve("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for disallowed model")
	}
	if !schema.IsReason(err, schema.ReasonModelNotAllowed) {
		t.Fatalf("expected MODEL_NOT_ALLOWED, got %v", err)
	}
	ge := err.(*schema.GatewayError)
	if len(ge.Allowed) != 2 || ge.Allowed[0] != "gpt-5.2-instant" {
		t.Fatalf("expected sorted allowed set, got %v", ge.Allowed)
	}
}

func TestResolveNeverSubstitutes(t *testing.T) {
	r := testResolver()
	// A model in another vendor's allowlist must not resolve under the
	// explicitly requested vendor.
	_, err := r.Resolve("openai", "gemini-3-pro")
	if !schema.IsReason(err, schema.ReasonModelNotAllowed) {
		t.Fatalf("expected MODEL_NOT_ALLOWED, got %v", err)
	}
}

func TestResolveUnknownVendorPrefix(t *testing.T) {
	r := testResolver()
	_, err := r.Resolve("", "mistral-large")
	if !schema.IsReason(err, schema.ReasonModelNotAllowed) {
		t.Fatalf("expected MODEL_NOT_ALLOWED, got %v", err)
	}
}
