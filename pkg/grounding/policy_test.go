package grounding

import (
	"testing"

	"github.com/zen-systems/geogate/pkg/citations"
	"github.com/zen-systems/geogate/pkg/schema"
)

func anchored(n int) []citations.Citation {
	out := make([]citations.Citation, n)
	for i := range out {
		out[i] = citations.Citation{SourceType: citations.SourceAnchored, Count: 1}
	}
	return out
}

func unlinked(n int) []citations.Citation {
	out := make([]citations.Citation, n)
	for i := range out {
		out[i] = citations.Citation{SourceType: citations.SourceUnlinked, Count: 1}
	}
	return out
}

func TestEvaluateNone(t *testing.T) {
	a, err := Evaluate(schema.GroundingNone, "openai", 0, nil, Config{})
	if err != nil {
		t.Fatalf("NONE never fails: %v", err)
	}
	if a.GroundedEffective || a.WhyNotGrounded != "" {
		t.Fatalf("unexpected assessment %+v", a)
	}
}

func TestEvaluateAutoWithoutToolUse(t *testing.T) {
	a, err := Evaluate(schema.GroundingAuto, "openai", 0, nil, Config{})
	if err != nil {
		t.Fatalf("AUTO with zero invocations is a valid outcome: %v", err)
	}
	if a.GroundedEffective {
		t.Fatal("zero invocations must not be effective grounding")
	}
	if a.WhyNotGrounded != WhyToolNotInvoked {
		t.Fatalf("expected %q, got %q", WhyToolNotInvoked, a.WhyNotGrounded)
	}
}

func TestEvaluateAutoWithToolUse(t *testing.T) {
	a, err := Evaluate(schema.GroundingAuto, "openai", 2, anchored(1), Config{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !a.GroundedEffective {
		t.Fatal("expected effective grounding")
	}
}

func TestEvaluateRequiredPasses(t *testing.T) {
	a, err := Evaluate(schema.GroundingRequired, "openai", 1, anchored(1), Config{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !a.GroundedEffective || a.AnchoredCount != 1 {
		t.Fatalf("unexpected assessment %+v", a)
	}
}

func TestEvaluateRequiredFailsClosedWithoutToolUse(t *testing.T) {
	a, err := Evaluate(schema.GroundingRequired, "openai", 0, anchored(3), Config{})
	if !schema.IsReason(err, schema.ReasonRequiredGroundingMissing) {
		t.Fatalf("expected REQUIRED_GROUNDING_MISSING, got %v", err)
	}
	if a.GroundedEffective {
		t.Fatal("failed gate must not report effective grounding")
	}
	if a.WhyNotGrounded != WhyToolNotInvoked {
		t.Fatalf("expected %q, got %q", WhyToolNotInvoked, a.WhyNotGrounded)
	}
}

func TestEvaluateRequiredFailsClosedWithoutQualifyingCitations(t *testing.T) {
	a, err := Evaluate(schema.GroundingRequired, "openai", 1, unlinked(2), Config{})
	if !schema.IsReason(err, schema.ReasonRequiredGroundingMissing) {
		t.Fatalf("expected REQUIRED_GROUNDING_MISSING, got %v", err)
	}
	if a.WhyNotGrounded != WhyNoQualifyingCitations {
		t.Fatalf("expected %q, got %q", WhyNoQualifyingCitations, a.WhyNotGrounded)
	}
}

func TestEvaluateRequiredRelaxationAdmitsUnlinked(t *testing.T) {
	cfg := Config{RelaxUnlinked: map[string]bool{"google": true}}

	if _, err := Evaluate(schema.GroundingRequired, "google", 1, unlinked(2), cfg); err != nil {
		t.Fatalf("relaxed vendor should accept unlinked evidence: %v", err)
	}
	// The relaxation is per-vendor, never global.
	if _, err := Evaluate(schema.GroundingRequired, "openai", 1, unlinked(2), cfg); err == nil {
		t.Fatal("unrelaxed vendor must still require anchored citations")
	}
}
