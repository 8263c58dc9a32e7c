// Package telemetry assembles and emits the per-call run record. A record
// is built in memory over the life of one request and emitted exactly once,
// atomically, whether the request succeeded or failed.
package telemetry

import (
	"time"

	"github.com/zen-systems/geogate/pkg/als"
	"github.com/zen-systems/geogate/pkg/citations"
)

// Record is the flat per-call telemetry record.
type Record struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Vendor    string    `json:"vendor"`
	Model     string    `json:"model"`

	Success    bool   `json:"success"`
	ErrorClass string `json:"error_class,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	RetryCount int    `json:"retry_count"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	ALSPresent    bool   `json:"als_present"`
	ALSBlockSHA   string `json:"als_block_sha256,omitempty"`
	ALSVariantID  string `json:"als_variant_id,omitempty"`
	ALSCountry    string `json:"als_country,omitempty"`
	SeedKeyID     string `json:"seed_key_id,omitempty"`
	VantagePolicy string `json:"vantage_policy,omitempty"`
	// ProxyDowngraded records an automatic PROXY_ONLY/ALS_PLUS_PROXY →
	// ALS_ONLY downgrade; downgrades are never silent.
	ProxyDowngraded bool   `json:"proxy_downgraded,omitempty"`
	DowngradeReason string `json:"downgrade_reason,omitempty"`

	GroundingModeRequested string `json:"grounding_mode_requested"`
	GroundedEffective      bool   `json:"grounded_effective"`
	ToolCallCount          int    `json:"tool_call_count"`
	ToolVariant            string `json:"tool_variant,omitempty"`
	WhyNotGrounded         string `json:"why_not_grounded,omitempty"`

	AnchoredCitationsCount int     `json:"anchored_citations_count"`
	UnlinkedSourcesCount   int     `json:"unlinked_sources_count"`
	RedirectOnlyCount      int     `json:"redirect_only_count"`
	AuthorityScore         int     `json:"authority_score"`
	AuthorityTier1Share    float64 `json:"authority_tier1_share,omitempty"`
	AuthorityPremiumShare  float64 `json:"authority_premium_share,omitempty"`
	AuthorityPenaltyShare  float64 `json:"authority_penalty_share,omitempty"`

	CircuitState string `json:"circuit_state,omitempty"`

	// Two-phase protocol attestation fields, present only when the
	// ground-then-reshape protocol ran.
	TwoPhaseRan        bool   `json:"two_phase_ran,omitempty"`
	Phase1SHA256       string `json:"phase1_sha256,omitempty"`
	Phase2ToolsInvoked *bool  `json:"phase2_tools_invoked,omitempty"`
}

// SetALS fills the ALS provenance fields. The raw block text is never
// recorded.
func (r *Record) SetALS(p als.Provenance) {
	r.ALSPresent = true
	r.ALSBlockSHA = p.SHA256
	r.ALSVariantID = p.VariantID
	r.ALSCountry = p.Country
	r.SeedKeyID = p.SeedKeyID
}

// SetCitations fills the citation counters and authority aggregates.
func (r *Record) SetCitations(cits []citations.Citation, score citations.Score) {
	r.AnchoredCitationsCount = 0
	r.UnlinkedSourcesCount = 0
	r.RedirectOnlyCount = 0
	for _, c := range cits {
		switch c.SourceType {
		case citations.SourceAnchored:
			r.AnchoredCitationsCount++
		case citations.SourceUnlinked:
			r.UnlinkedSourcesCount++
		case citations.SourceRedirectOnly:
			r.RedirectOnlyCount++
		}
	}
	r.AuthorityScore = score.Value
	r.AuthorityTier1Share = score.Tier1Share
	r.AuthorityPremiumShare = score.PremiumShare
	r.AuthorityPenaltyShare = score.PenaltyShare
}

// Emitter receives completed records. Implementations must treat each
// record as final; the orchestrator never emits twice for one request.
type Emitter interface {
	Emit(record *Record) error
}

// NopEmitter discards records.
type NopEmitter struct{}

// Emit discards the record.
func (NopEmitter) Emit(*Record) error { return nil }

// MultiEmitter fans a record out to several emitters, returning the first
// error after all have been attempted.
type MultiEmitter []Emitter

// Emit sends the record to every wrapped emitter.
func (m MultiEmitter) Emit(record *Record) error {
	var firstErr error
	for _, e := range m {
		if err := e.Emit(record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
