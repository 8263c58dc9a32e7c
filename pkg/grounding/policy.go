// Package grounding decides whether a response satisfies the caller's
// evidence contract. REQUIRED mode fails closed: an unsatisfied contract is
// a typed error, never a silent downgrade to AUTO behavior.
package grounding

import (
	"fmt"

	"github.com/zen-systems/geogate/pkg/citations"
	"github.com/zen-systems/geogate/pkg/schema"
)

// Reasons recorded in telemetry when a response is not effectively grounded.
const (
	WhyToolNotInvoked        = "tool_not_invoked"
	WhyNoQualifyingCitations = "no_qualifying_citations"
	WhyNotSupported          = "grounding_not_supported"
)

// Config tunes the REQUIRED gate.
type Config struct {
	// RelaxUnlinked lists vendors whose unlinked evidence may satisfy
	// REQUIRED. Chat-style vendors qualify on anchored citations only; the
	// search-grounded vendor commonly returns chunk evidence without
	// supports, which this relaxation admits.
	RelaxUnlinked map[string]bool
}

// Assessment is the gate's verdict for one response.
type Assessment struct {
	GroundedEffective bool
	ToolCalls         int
	AnchoredCount     int
	UnlinkedCount     int
	WhyNotGrounded    string
}

// Evaluate applies the grounding gate. For REQUIRED it returns a
// REQUIRED_GROUNDING_MISSING error unless the response carries at least one
// tool invocation and at least one qualifying citation.
func Evaluate(mode schema.GroundingMode, vendor string, toolCalls int, cits []citations.Citation, cfg Config) (Assessment, error) {
	a := Assessment{ToolCalls: toolCalls}
	for _, c := range cits {
		switch c.SourceType {
		case citations.SourceAnchored:
			a.AnchoredCount++
		case citations.SourceUnlinked:
			a.UnlinkedCount++
		}
	}

	switch mode {
	case schema.GroundingNone, "":
		return a, nil

	case schema.GroundingAuto:
		if toolCalls == 0 {
			a.WhyNotGrounded = WhyToolNotInvoked
			return a, nil
		}
		a.GroundedEffective = true
		return a, nil

	case schema.GroundingRequired:
		qualifying := a.AnchoredCount
		if cfg.RelaxUnlinked[vendor] {
			qualifying += a.UnlinkedCount
		}
		if toolCalls == 0 {
			a.WhyNotGrounded = WhyToolNotInvoked
			return a, requiredMissing(vendor, "no tool invocations in response")
		}
		if qualifying == 0 {
			a.WhyNotGrounded = WhyNoQualifyingCitations
			return a, requiredMissing(vendor, "no qualifying citations in response")
		}
		a.GroundedEffective = true
		return a, nil
	}
	return a, nil
}

func requiredMissing(vendor, detail string) error {
	return &schema.GatewayError{
		Code:   schema.ReasonRequiredGroundingMissing,
		Vendor: vendor,
		Err:    fmt.Errorf("grounding REQUIRED not satisfied: %s", detail),
	}
}
