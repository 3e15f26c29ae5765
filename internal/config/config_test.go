package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[llm]
model = "gemini-2.5-flash"
max_tokens = 8192

[profiles.router]
model = "gpt-4o-mini"

[servers.ga4]
command = "python3"
args = ["-m", "ga4_server"]
platform = "google-analytics"

[servers.ga4.env_mapping]
refresh_token = "GOOGLE_ANALYTICS_REFRESH_TOKEN"
property_id = "GOOGLE_ANALYTICS_PROPERTY_ID"

[session]
ttl = "15m"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Router.MaxAttempts != 5 {
		t.Errorf("expected default max_attempts 5, got %d", cfg.Router.MaxAttempts)
	}
	ttl, err := cfg.SessionTTL()
	if err != nil {
		t.Fatalf("SessionTTL() error = %v", err)
	}
	if ttl != 15*time.Minute {
		t.Errorf("ttl = %v", ttl)
	}

	srv := cfg.Servers["ga4"]
	if srv.EnvMapping["refresh_token"] != "GOOGLE_ANALYTICS_REFRESH_TOKEN" {
		t.Errorf("env_mapping = %v", srv.EnvMapping)
	}
}

func TestValidateRejectsUnknownPlatform(t *testing.T) {
	path := writeConfig(t, `
[servers.bad]
command = "run"
platform = "tiktok"
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestValidateRejectsMissingCommand(t *testing.T) {
	path := writeConfig(t, `
[servers.bad]
platform = "facebook"
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestServerForPlatform(t *testing.T) {
	cfg := New()
	cfg.Servers = map[string]ServerConfig{
		"meta": {Command: "uv", Platform: "facebook"},
	}

	name, _, ok := cfg.ServerForPlatform("facebook")
	if !ok || name != "meta" {
		t.Errorf("ServerForPlatform(facebook) = %q, %v", name, ok)
	}
	if _, _, ok := cfg.ServerForPlatform("google-ads"); ok {
		t.Error("expected no server for google-ads")
	}
}

func TestGetProfileFallback(t *testing.T) {
	cfg := New()
	cfg.LLM = LLMConfig{Provider: "google", Model: "gemini-2.5-flash", MaxTokens: 4096}
	cfg.Profiles = map[string]Profile{
		"synthesis": {Model: "gemini-2.5-pro"},
	}

	p := cfg.GetProfile("synthesis")
	if p.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q", p.Model)
	}
	if p.Provider != "google" {
		t.Errorf("expected provider fallback, got %q", p.Provider)
	}
	if p.MaxTokens != 4096 {
		t.Errorf("expected max_tokens fallback, got %d", p.MaxTokens)
	}

	// Unknown profile falls back to the default LLM config entirely.
	if p := cfg.GetProfile("nope"); p.Model != "gemini-2.5-flash" {
		t.Errorf("unknown profile model = %q", p.Model)
	}
}
