package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestConfigUsesFileAPIKeys(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, ".geogate")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	data := []byte("api_keys:\n  anthropic: file-ant\n  openai: file-openai\n  google: file-google\nals:\n  seed_key: file-seed\n")
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEOGATE_ALS_SEED_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "file-ant" || cfg.OpenAIAPIKey != "file-openai" || cfg.GoogleAPIKey != "file-google" {
		t.Fatalf("expected file API keys to be used, got %+v", cfg)
	}
	if cfg.ALSSeedKey != "file-seed" {
		t.Fatalf("expected file seed key, got %q", cfg.ALSSeedKey)
	}
}

func TestConfigEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, ".geogate")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  anthropic: file-ant\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "env-ant")
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("GOOGLE_API_KEY", "env-google")
	t.Setenv("GEOGATE_ALS_SEED_KEY", "env-seed")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "env-ant" || cfg.OpenAIAPIKey != "env-openai" || cfg.GoogleAPIKey != "env-google" {
		t.Fatalf("expected env API keys to win over file keys")
	}
	if cfg.ALSSeedKey != "env-seed" {
		t.Fatalf("expected env seed key, got %q", cfg.ALSSeedKey)
	}
}

func TestLoadFallsBackToDefaultGateway(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway == nil {
		t.Fatal("expected default gateway config")
	}
	if len(cfg.Gateway.Models.Allowed["openai"]) == 0 {
		t.Fatal("default gateway config must carry an openai allowlist")
	}
	if cfg.Gateway.Breaker.FailureThreshold != 5 {
		t.Fatalf("breaker threshold = %d, want 5", cfg.Gateway.Breaker.FailureThreshold)
	}
}

func TestLoadGatewayConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	data := []byte(`models:
  aliases:
    quick: gpt-5.2-instant
  allowed:
    openai: [gpt-5.2-instant]
rate_limits:
  openai:
    budget_per_window: 50000
breaker:
  failure_threshold: 2
grounding:
  relax_unlinked: [google]
proxy:
  endpoints:
    DE: http://proxy-de.internal:3128
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write gateway config: %v", err)
	}

	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load gateway: %v", err)
	}
	if cfg.Models.ResolveAlias("quick") != "gpt-5.2-instant" {
		t.Fatalf("alias not resolved")
	}
	rl := cfg.RateLimits["openai"]
	if rl.BudgetPerWindow != 50000 {
		t.Fatalf("budget = %d, want 50000", rl.BudgetPerWindow)
	}
	if rl.Headroom != 0.15 || rl.GroundedOverhead != 1.15 || rl.WindowSeconds != 60 {
		t.Fatalf("rate-limit defaults not applied: %+v", rl)
	}
	if cfg.Breaker.FailureThreshold != 2 {
		t.Fatalf("explicit breaker threshold lost: %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.HoldMinSeconds != 30 || cfg.Breaker.HoldMaxSeconds != 60 {
		t.Fatalf("breaker hold defaults not applied: %+v", cfg.Breaker)
	}
	if !cfg.Grounding.RelaxesUnlinked("google") || cfg.Grounding.RelaxesUnlinked("openai") {
		t.Fatal("relax_unlinked mis-parsed")
	}
	if cfg.Proxy.Endpoints["DE"] != "http://proxy-de.internal:3128" {
		t.Fatalf("proxy endpoint lost: %+v", cfg.Proxy.Endpoints)
	}
	if cfg.Timeouts.GroundedSeconds != 120 || cfg.Timeouts.UngroundedSeconds != 60 {
		t.Fatalf("timeout defaults not applied: %+v", cfg.Timeouts)
	}
}

func TestHasVendor(t *testing.T) {
	cfg := &Config{OpenAIAPIKey: "k"}
	if !cfg.HasVendor("openai") {
		t.Fatal("openai should be configured")
	}
	if cfg.HasVendor("google") || cfg.HasVendor("unknown") {
		t.Fatal("unconfigured vendors must report false")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
