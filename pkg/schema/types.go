package schema

import (
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GroundingMode controls the evidence contract for a request.
type GroundingMode string

const (
	// GroundingNone attaches no search capability; evidence fields stay empty.
	GroundingNone GroundingMode = "NONE"
	// GroundingAuto attaches search capability; the backend may or may not use it.
	GroundingAuto GroundingMode = "AUTO"
	// GroundingRequired attaches search capability and fails closed unless the
	// response carries at least one tool invocation and one qualifying citation.
	GroundingRequired GroundingMode = "REQUIRED"
)

// VantagePolicy selects the geographic vantage applied to a request.
type VantagePolicy string

const (
	VantageNone         VantagePolicy = "NONE"
	VantageALSOnly      VantagePolicy = "ALS_ONLY"
	VantageProxyOnly    VantagePolicy = "PROXY_ONLY"
	VantageALSPlusProxy VantagePolicy = "ALS_PLUS_PROXY"
)

// WantsALS reports whether the policy requires ambient-context injection.
func (p VantagePolicy) WantsALS() bool {
	return p == VantageALSOnly || p == VantageALSPlusProxy
}

// WantsProxy reports whether the policy requires proxied egress.
func (p VantagePolicy) WantsProxy() bool {
	return p == VantageProxyOnly || p == VantageALSPlusProxy
}

// Message is a single entry in a request's conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ALS marks a message inserted by the gateway's ambient-context builder.
	// Caller-supplied messages never set it.
	ALS bool `json:"als,omitempty"`
}

// Request is the caller-supplied unit of work. Once accepted it is immutable:
// enrichment always produces a new message list, never an in-place edit.
type Request struct {
	ID              string         `json:"id,omitempty"`
	Vendor          string         `json:"vendor,omitempty"`
	Model           string         `json:"model"`
	Messages        []Message      `json:"messages"`
	Grounded        bool           `json:"grounded"`
	GroundingMode   GroundingMode  `json:"grounding_mode,omitempty"`
	Vantage         VantagePolicy  `json:"vantage,omitempty"`
	Country         string         `json:"country,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	StrictJSON      bool           `json:"strict_json,omitempty"`
	OutputSchema    map[string]any `json:"output_schema,omitempty"`
	Options         map[string]any `json:"options,omitempty"`
}

// EffectiveMode resolves the grounding flag and mode into a single mode.
// An ungrounded request is always NONE; a grounded request with no explicit
// mode defaults to AUTO.
func (r *Request) EffectiveMode() GroundingMode {
	if !r.Grounded {
		return GroundingNone
	}
	if r.GroundingMode == "" || r.GroundingMode == GroundingNone {
		return GroundingAuto
	}
	return r.GroundingMode
}

// Validate checks the request before it enters the pipeline.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &GatewayError{Code: ReasonInvalidRequest, Err: fmt.Errorf("model is required")}
	}
	if len(r.Messages) == 0 {
		return &GatewayError{Code: ReasonInvalidRequest, Err: fmt.Errorf("at least one message is required")}
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return &GatewayError{Code: ReasonInvalidRequest, Err: fmt.Errorf("message %d: unknown role %q", i, m.Role)}
		}
		if m.ALS {
			return &GatewayError{Code: ReasonInvalidRequest, Err: fmt.Errorf("message %d: als flag is reserved for gateway insertion", i)}
		}
	}
	switch r.GroundingMode {
	case "", GroundingNone, GroundingAuto, GroundingRequired:
	default:
		return &GatewayError{Code: ReasonInvalidRequest, Err: fmt.Errorf("unknown grounding mode %q", r.GroundingMode)}
	}
	switch r.Vantage {
	case "", VantageNone, VantageALSOnly, VantageProxyOnly, VantageALSPlusProxy:
	default:
		return &GatewayError{Code: ReasonInvalidRequest, Err: fmt.Errorf("unknown vantage policy %q", r.Vantage)}
	}
	if r.Vantage.WantsALS() || r.Vantage.WantsProxy() {
		if strings.TrimSpace(r.Country) == "" {
			return &GatewayError{Code: ReasonInvalidRequest, Err: fmt.Errorf("vantage policy %s requires a country code", r.Vantage)}
		}
	}
	return nil
}
