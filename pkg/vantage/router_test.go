package vantage

import (
	"testing"
	"time"

	"github.com/zen-systems/geogate/pkg/schema"
)

func TestNormalizeCountry(t *testing.T) {
	cases := map[string]string{
		"uk":  "GB",
		"UK":  "GB",
		"usa": "US",
		"de":  "DE",
		"UAE": "AE",
		" fr": "FR",
	}
	for in, want := range cases {
		if got := NormalizeCountry(in); got != want {
			t.Fatalf("NormalizeCountry(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlanPolicies(t *testing.T) {
	r := NewRouter(Config{Endpoints: map[string]string{"DE": "http://proxy.example:8080"}})

	plan, err := r.Plan(schema.VantageNone, "")
	if err != nil {
		t.Fatalf("plan NONE: %v", err)
	}
	if plan.UseALS || plan.HTTPClient != nil {
		t.Fatal("NONE must mean direct egress without ALS")
	}

	plan, err = r.Plan(schema.VantageALSOnly, "DE")
	if err != nil {
		t.Fatalf("plan ALS_ONLY: %v", err)
	}
	if !plan.UseALS || plan.HTTPClient != nil {
		t.Fatal("ALS_ONLY must mean direct egress with ALS")
	}

	plan, err = r.Plan(schema.VantageProxyOnly, "DE")
	if err != nil {
		t.Fatalf("plan PROXY_ONLY: %v", err)
	}
	if plan.UseALS || plan.HTTPClient == nil {
		t.Fatal("PROXY_ONLY must mean proxied egress without ALS")
	}

	plan, err = r.Plan(schema.VantageALSPlusProxy, "DE")
	if err != nil {
		t.Fatalf("plan ALS_PLUS_PROXY: %v", err)
	}
	if !plan.UseALS || plan.HTTPClient == nil {
		t.Fatal("ALS_PLUS_PROXY must mean proxied egress with ALS")
	}
}

func TestPlanMissingEndpoint(t *testing.T) {
	r := NewRouter(Config{})
	_, err := r.Plan(schema.VantageProxyOnly, "DE")
	if !schema.IsReason(err, schema.ReasonProxyUnavailable) {
		t.Fatalf("expected PROXY_UNAVAILABLE, got %v", err)
	}
}

func TestPlanDowngradeAfterRepeatedFailures(t *testing.T) {
	r := NewRouter(Config{
		Endpoints:        map[string]string{"DE": "http://proxy.example:8080"},
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
	})
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		r.RecordProxyFailure("DE")
	}

	plan, err := r.Plan(schema.VantageProxyOnly, "DE")
	if err != nil {
		t.Fatalf("plan after failures: %v", err)
	}
	if !plan.Downgraded || plan.Effective != schema.VantageALSOnly {
		t.Fatalf("expected downgrade to ALS_ONLY, got %+v", plan)
	}
	if plan.DowngradeReason == "" {
		t.Fatal("downgrade must carry a reason")
	}
	if !plan.UseALS || plan.HTTPClient != nil {
		t.Fatal("downgraded plan must be direct with ALS")
	}

	// Failures age out of the window.
	clock = clock.Add(2 * time.Minute)
	plan, err = r.Plan(schema.VantageProxyOnly, "DE")
	if err != nil {
		t.Fatalf("plan after window: %v", err)
	}
	if plan.Downgraded {
		t.Fatal("expected downgrade to clear after the failure window")
	}
}

func TestProxySuccessClearsWindow(t *testing.T) {
	r := NewRouter(Config{
		Endpoints:        map[string]string{"DE": "http://proxy.example:8080"},
		FailureThreshold: 2,
	})
	r.RecordProxyFailure("DE")
	r.RecordProxyFailure("DE")
	r.RecordProxySuccess("DE")

	plan, err := r.Plan(schema.VantageALSPlusProxy, "DE")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Downgraded {
		t.Fatal("success must clear the failure window")
	}
}
