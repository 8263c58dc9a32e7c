package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/geogate/pkg/schema"
)

// Vendor identifiers recognized by the gateway.
const (
	VendorOpenAI    = "openai"
	VendorGoogle    = "google"
	VendorAnthropic = "anthropic"
)

// Target is a fully resolved (vendor, model) pair.
type Target struct {
	Vendor string
	Model  string
}

// Key returns the map key used by per-target resilience state.
func (t Target) Key() string {
	return t.Vendor + "/" + t.Model
}

// Resolver normalizes requested model strings, infers the vendor, and
// validates the result against per-vendor allowlists. It has no side effects.
type Resolver struct {
	aliases map[string]string
	allowed map[string][]string
}

// New creates a resolver from an alias table and per-vendor allowlists.
func New(aliases map[string]string, allowed map[string][]string) *Resolver {
	if aliases == nil {
		aliases = make(map[string]string)
	}
	if allowed == nil {
		allowed = make(map[string][]string)
	}
	return &Resolver{aliases: aliases, allowed: allowed}
}

// Normalize maps a model alias to its canonical id. Unknown strings pass
// through unchanged.
func (r *Resolver) Normalize(model string) string {
	model = strings.TrimSpace(model)
	if canonical, ok := r.aliases[model]; ok {
		return canonical
	}
	return model
}

// InferVendor guesses the vendor from a canonical model id. Inference must
// run on the normalized id; aliases carry no vendor signal of their own.
func InferVendor(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "chatgpt-"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return VendorOpenAI
	case strings.HasPrefix(model, "gemini-"):
		return VendorGoogle
	case strings.HasPrefix(model, "claude-"):
		return VendorAnthropic
	default:
		return ""
	}
}

// Resolve normalizes the requested model, infers the vendor when none is
// given, and validates against the vendor's allowlist. A disallowed model is
// a hard MODEL_NOT_ALLOWED failure carrying the allowed set; the resolver
// never substitutes a different model.
func (r *Resolver) Resolve(vendor, model string) (Target, error) {
	canonical := r.Normalize(model)
	if canonical == "" {
		return Target{}, &schema.GatewayError{
			Code: schema.ReasonInvalidRequest,
			Err:  fmt.Errorf("model is required"),
		}
	}

	vendor = strings.ToLower(strings.TrimSpace(vendor))
	if vendor == "" {
		vendor = InferVendor(canonical)
	}
	if vendor == "" {
		return Target{}, &schema.GatewayError{
			Code:  schema.ReasonModelNotAllowed,
			Model: canonical,
			Err:   fmt.Errorf("cannot infer vendor for model %q", canonical),
		}
	}

	allowed, ok := r.allowed[vendor]
	if !ok {
		return Target{}, &schema.GatewayError{
			Code:   schema.ReasonModelNotAllowed,
			Vendor: vendor,
			Model:  canonical,
			Err:    fmt.Errorf("unknown vendor %q", vendor),
		}
	}
	for _, m := range allowed {
		if m == canonical {
			return Target{Vendor: vendor, Model: canonical}, nil
		}
	}

	sorted := append([]string(nil), allowed...)
	sort.Strings(sorted)
	return Target{}, &schema.GatewayError{
		Code:    schema.ReasonModelNotAllowed,
		Vendor:  vendor,
		Model:   canonical,
		Allowed: sorted,
		Err:     fmt.Errorf("model %q not in %s allowlist", canonical, vendor),
	}
}

// AllowedModels returns a copy of a vendor's allowlist.
func (r *Resolver) AllowedModels(vendor string) []string {
	return append([]string(nil), r.allowed[vendor]...)
}

// Vendors returns the sorted vendor names known to the resolver.
func (r *Resolver) Vendors() []string {
	vendors := make([]string, 0, len(r.allowed))
	for v := range r.allowed {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors
}
