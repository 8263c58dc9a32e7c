package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// GatewayConfig holds the gateway behavior configuration: model routing,
// rate budgets, breaker and retry tuning, grounding policy knobs, proxy
// endpoints, and the authority tier table. Durations are expressed in
// plain units (seconds, milliseconds) so the file stays editable by hand.
type GatewayConfig struct {
	Models     ModelsConfig         `yaml:"models"`
	RateLimits map[string]RateLimit `yaml:"rate_limits,omitempty"`
	Breaker    BreakerSettings      `yaml:"breaker,omitempty"`
	Retry      RetrySettings        `yaml:"retry,omitempty"`
	Negotiator NegotiatorSettings   `yaml:"negotiator,omitempty"`
	Grounding  GroundingSettings    `yaml:"grounding,omitempty"`
	Timeouts   TimeoutSettings      `yaml:"timeouts,omitempty"`
	Proxy      ProxySettings        `yaml:"proxy,omitempty"`
	Authority  AuthoritySettings    `yaml:"authority,omitempty"`
	Telemetry  TelemetrySettings    `yaml:"telemetry,omitempty"`
}

// ModelsConfig maps aliases to canonical model names and lists the models
// each vendor may serve. A model outside a vendor's list is rejected, never
// substituted.
type ModelsConfig struct {
	Aliases map[string]string   `yaml:"aliases,omitempty"`
	Allowed map[string][]string `yaml:"allowed"`
}

// RateLimit tunes the per-vendor token budget window.
type RateLimit struct {
	BudgetPerWindow  int     `yaml:"budget_per_window,omitempty"`
	Headroom         float64 `yaml:"headroom,omitempty"`
	GroundedOverhead float64 `yaml:"grounded_overhead,omitempty"`
	WindowSeconds    int     `yaml:"window_seconds,omitempty"`
}

// BreakerSettings tunes the per-target circuit breaker. The hold window is
// randomized between min and max so recovering upstreams do not absorb a
// synchronized probe burst.
type BreakerSettings struct {
	FailureThreshold int `yaml:"failure_threshold,omitempty"`
	HoldMinSeconds   int `yaml:"hold_min_seconds,omitempty"`
	HoldMaxSeconds   int `yaml:"hold_max_seconds,omitempty"`
}

// RetrySettings defines retry and backoff behavior.
type RetrySettings struct {
	MaxAttempts          int `yaml:"max_attempts,omitempty"`
	BaseBackoffMs        int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs         int `yaml:"max_backoff_ms,omitempty"`
	MaxRateLimitAttempts int `yaml:"max_rate_limit_attempts,omitempty"`
}

// NegotiatorSettings tunes the tool-variant unsupported cache.
type NegotiatorSettings struct {
	TTLMinutes int `yaml:"ttl_minutes,omitempty"`
}

// GroundingSettings lists vendors whose unlinked sources count toward the
// REQUIRED-grounding citation gate.
type GroundingSettings struct {
	RelaxUnlinked []string `yaml:"relax_unlinked,omitempty"`
}

// TimeoutSettings holds per-attempt deadlines. Grounded calls run a web
// search upstream and get a longer budget.
type TimeoutSettings struct {
	GroundedSeconds   int `yaml:"grounded_seconds,omitempty"`
	UngroundedSeconds int `yaml:"ungrounded_seconds,omitempty"`
}

// ProxySettings maps countries to egress proxy endpoints.
type ProxySettings struct {
	Endpoints            map[string]string `yaml:"endpoints,omitempty"`
	FailureThreshold     int               `yaml:"failure_threshold,omitempty"`
	FailureWindowSeconds int               `yaml:"failure_window_seconds,omitempty"`
}

// AuthoritySettings maps domain suffixes to authority tiers (1 best,
// 4 penalized). Unlisted domains get the default tier.
type AuthoritySettings struct {
	Tiers       map[string]int `yaml:"tiers,omitempty"`
	DefaultTier int            `yaml:"default_tier,omitempty"`
}

// TelemetrySettings controls the run-record sink.
type TelemetrySettings struct {
	Dir string `yaml:"dir,omitempty"`
}

// LoadGatewayConfig reads gateway configuration from a YAML file.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyGatewayDefaults(&cfg)
	return &cfg, nil
}

// DefaultGatewayConfig returns the default gateway configuration.
func DefaultGatewayConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		Models: ModelsConfig{
			Aliases: map[string]string{
				"fast":     "gpt-5.2-instant",
				"chat":     "gpt-5.2-thinking",
				"research": "gemini-3-pro",
				"writer":   "claude-sonnet-4-20250514",
			},
			Allowed: map[string][]string{
				"openai":    {"gpt-5.2-instant", "gpt-5.2-thinking"},
				"google":    {"gemini-3-pro", "gemini-3-flash"},
				"anthropic": {"claude-sonnet-4-20250514"},
			},
		},
		Grounding: GroundingSettings{
			RelaxUnlinked: []string{"google"},
		},
	}
	applyGatewayDefaults(cfg)
	return cfg
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.Models.Aliases == nil {
		cfg.Models.Aliases = make(map[string]string)
	}
	if cfg.Models.Allowed == nil {
		cfg.Models.Allowed = make(map[string][]string)
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = make(map[string]RateLimit)
	}
	for vendor, rl := range cfg.RateLimits {
		if rl.BudgetPerWindow <= 0 {
			rl.BudgetPerWindow = 30000
		}
		if rl.Headroom <= 0 {
			rl.Headroom = 0.15
		}
		if rl.GroundedOverhead <= 0 {
			rl.GroundedOverhead = 1.15
		}
		if rl.WindowSeconds <= 0 {
			rl.WindowSeconds = 60
		}
		cfg.RateLimits[vendor] = rl
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.HoldMinSeconds <= 0 {
		cfg.Breaker.HoldMinSeconds = 30
	}
	if cfg.Breaker.HoldMaxSeconds <= cfg.Breaker.HoldMinSeconds {
		cfg.Breaker.HoldMaxSeconds = cfg.Breaker.HoldMinSeconds + 30
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseBackoffMs <= 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs <= 0 {
		cfg.Retry.MaxBackoffMs = 8000
	}
	if cfg.Retry.MaxRateLimitAttempts <= 0 {
		cfg.Retry.MaxRateLimitAttempts = 3
	}
	if cfg.Negotiator.TTLMinutes <= 0 {
		cfg.Negotiator.TTLMinutes = 15
	}
	if cfg.Timeouts.GroundedSeconds <= 0 {
		cfg.Timeouts.GroundedSeconds = 120
	}
	if cfg.Timeouts.UngroundedSeconds <= 0 {
		cfg.Timeouts.UngroundedSeconds = 60
	}
	if cfg.Proxy.FailureThreshold <= 0 {
		cfg.Proxy.FailureThreshold = 3
	}
	if cfg.Proxy.FailureWindowSeconds <= 0 {
		cfg.Proxy.FailureWindowSeconds = 60
	}
	if cfg.Authority.DefaultTier <= 0 {
		cfg.Authority.DefaultTier = 3
	}
}

// RelaxesUnlinked reports whether unlinked sources qualify for the given
// vendor's REQUIRED-grounding gate.
func (g *GroundingSettings) RelaxesUnlinked(vendor string) bool {
	for _, v := range g.RelaxUnlinked {
		if v == vendor {
			return true
		}
	}
	return false
}

// ResolveAlias returns the canonical model name for an alias. If the input
// is not an alias, it returns the input unchanged.
func (m *ModelsConfig) ResolveAlias(modelOrAlias string) string {
	if m == nil || m.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := m.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}
