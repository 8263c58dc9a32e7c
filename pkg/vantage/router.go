// Package vantage resolves abstract vantage policies into concrete egress
// behavior: direct or country-proxied connections, with or without
// ambient-context injection.
package vantage

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zen-systems/geogate/pkg/schema"
)

// countryAliases maps common country-code spellings to ISO-3166 alpha-2.
var countryAliases = map[string]string{
	"UK":  "GB",
	"USA": "US",
	"GBR": "GB",
	"DEU": "DE",
	"FRA": "FR",
	"CHE": "CH",
	"ITA": "IT",
	"ARE": "AE",
	"UAE": "AE",
	"SGP": "SG",
}

// NormalizeCountry canonicalizes a country code to its two-letter ISO form.
func NormalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if iso, ok := countryAliases[code]; ok {
		return iso
	}
	return code
}

// Plan is the concrete egress decision for one request.
type Plan struct {
	Requested schema.VantagePolicy
	Effective schema.VantagePolicy
	Country   string
	UseALS    bool
	// HTTPClient is nil for direct egress.
	HTTPClient      *http.Client
	Downgraded      bool
	DowngradeReason string
}

// Config configures the router.
type Config struct {
	// Endpoints maps ISO country codes to proxy URLs.
	Endpoints map[string]string
	// FailureThreshold proxy failures within FailureWindow force a downgrade
	// of proxied policies to ALS_ONLY.
	FailureThreshold int
	FailureWindow    time.Duration
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = time.Minute
	}
}

// Router maps vantage policies to egress parameters and tracks proxy health.
type Router struct {
	cfg Config

	mu       sync.Mutex
	clients  map[string]*http.Client
	failures map[string][]time.Time

	now func() time.Time
}

// NewRouter creates a vantage router.
func NewRouter(cfg Config) *Router {
	cfg.applyDefaults()
	return &Router{
		cfg:      cfg,
		clients:  make(map[string]*http.Client),
		failures: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Plan resolves a policy and country into an egress plan. A tripped proxy
// breaker downgrades PROXY_ONLY and ALS_PLUS_PROXY to ALS_ONLY; the
// downgrade is recorded on the plan, never silent.
func (r *Router) Plan(policy schema.VantagePolicy, country string) (*Plan, error) {
	if policy == "" {
		policy = schema.VantageNone
	}
	country = NormalizeCountry(country)

	plan := &Plan{
		Requested: policy,
		Effective: policy,
		Country:   country,
		UseALS:    policy.WantsALS(),
	}
	if !policy.WantsProxy() {
		return plan, nil
	}

	if r.proxyDegraded(country) {
		plan.Effective = schema.VantageALSOnly
		plan.UseALS = true
		plan.Downgraded = true
		plan.DowngradeReason = "proxy_circuit_open"
		return plan, nil
	}

	endpoint, ok := r.cfg.Endpoints[country]
	if !ok {
		return nil, &schema.GatewayError{
			Code: schema.ReasonProxyUnavailable,
			Err:  fmt.Errorf("no proxy endpoint configured for country %q", country),
		}
	}
	client, err := r.clientFor(country, endpoint)
	if err != nil {
		return nil, &schema.GatewayError{Code: schema.ReasonProxyUnavailable, Err: err}
	}
	plan.HTTPClient = client
	return plan, nil
}

// RecordProxyFailure notes a failed proxied call for the country's window.
func (r *Router) RecordProxyFailure(country string) {
	country = NormalizeCountry(country)
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[country] = append(r.pruneLocked(country, now), now)
}

// RecordProxySuccess clears the country's failure window.
func (r *Router) RecordProxySuccess(country string) {
	country = NormalizeCountry(country)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, country)
}

func (r *Router) proxyDegraded(country string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	recent := r.pruneLocked(country, now)
	r.failures[country] = recent
	return len(recent) >= r.cfg.FailureThreshold
}

func (r *Router) pruneLocked(country string, now time.Time) []time.Time {
	cutoff := now.Add(-r.cfg.FailureWindow)
	var kept []time.Time
	for _, ts := range r.failures[country] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (r *Router) clientFor(country, endpoint string) (*http.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[country]; ok {
		return client, nil
	}
	proxyURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy endpoint for %s: %w", country, err)
	}
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	r.clients[country] = client
	return client, nil
}
