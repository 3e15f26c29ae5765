// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the engine configuration.
type Config struct {
	LLM        LLMConfig               `toml:"llm"`      // Default LLM settings
	Profiles   map[string]Profile      `toml:"profiles"` // Role profiles (router, specialist, synthesis)
	Servers    map[string]ServerConfig `toml:"servers"`  // Tool servers, keyed by server name
	Delegation DelegationConfig        `toml:"delegation"`
	Session    SessionConfig           `toml:"session"`
	Router     RouterConfig            `toml:"router"`
	Database   DatabaseConfig          `toml:"database"`
	Trace      TraceConfig             `toml:"trace"`
	Telemetry  TelemetryConfig         `toml:"telemetry"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama)
	MaxRetries   int    `toml:"max_retries"`   // Max transport retry attempts
	RetryBackoff string `toml:"retry_backoff"` // Max backoff duration (default "60s")
}

// Profile maps an engine role to a specific LLM configuration.
type Profile struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"`
}

// ServerConfig configures a tool-server process.
//
// EnvMapping maps credential bundle field names to the environment
// variable names the server expects, e.g. refresh_token ->
// GOOGLE_ANALYTICS_REFRESH_TOKEN.
type ServerConfig struct {
	Command     string            `toml:"command"`
	Args        []string          `toml:"args,omitempty"`
	Platform    string            `toml:"platform"` // facebook, google-analytics, google-ads
	EnvMapping  map[string]string `toml:"env_mapping,omitempty"`
	DeniedTools []string          `toml:"denied_tools,omitempty"` // Tools to exclude from LLM
}

// DelegationConfig bounds worker-to-worker hand-offs.
type DelegationConfig struct {
	AllowedWorkers []string `toml:"allowed_workers"`
	MaxDepth       int      `toml:"max_depth"`
}

// SessionConfig controls the conversation thread store.
type SessionConfig struct {
	TTL           string `toml:"ttl"`            // Thread idle lifetime (default "30m")
	SweepInterval string `toml:"sweep_interval"` // Eviction sweep period (default "5m")
	HistoryCap    int    `toml:"history_cap"`    // Max retained messages per thread
}

// RouterConfig controls the intent router.
type RouterConfig struct {
	MaxAttempts int    `toml:"max_attempts"` // Structured-output parse attempts (default 5)
	PromptFile  string `toml:"prompt_file"`  // Optional system prompt override, hot-reloaded
}

// DatabaseConfig contains the tenant database settings.
type DatabaseConfig struct {
	URL    string `toml:"url"`     // Postgres DSN; empty disables the store
	URLEnv string `toml:"url_env"` // Env var holding the DSN (preferred over url)
}

// TraceConfig contains execution trace sink settings.
type TraceConfig struct {
	Enabled       bool   `toml:"enabled"`
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"` // Default "trace"
	Buffer        int    `toml:"buffer"`         // Record buffer before drop (default 256)
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default) or http
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Delegation: DelegationConfig{
			AllowedWorkers: []string{"single_analytics_agent"},
			MaxDepth:       3,
		},
		Session: SessionConfig{
			TTL:           "30m",
			SweepInterval: "5m",
			HistoryCap:    60,
		},
		Router: RouterConfig{
			MaxAttempts: 5,
		},
		Trace: TraceConfig{
			SubjectPrefix: "trace",
			Buffer:        256,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// LoadFile loads configuration from a TOML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from engine.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "engine.toml"))
}

// Validate rejects configurations that would fail at dispatch time.
func (c *Config) Validate() error {
	for name, srv := range c.Servers {
		if srv.Command == "" {
			return fmt.Errorf("server %q: command is required", name)
		}
		switch srv.Platform {
		case "facebook", "google-analytics", "google-ads":
		default:
			return fmt.Errorf("server %q: unknown platform %q", name, srv.Platform)
		}
	}
	if c.Router.MaxAttempts < 1 {
		return fmt.Errorf("router.max_attempts must be at least 1")
	}
	if _, err := c.SessionTTL(); err != nil {
		return err
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	return nil
}

// ServerForPlatform returns the configured tool server for a platform.
func (c *Config) ServerForPlatform(platform string) (string, ServerConfig, bool) {
	for name, srv := range c.Servers {
		if srv.Platform == platform {
			return name, srv, true
		}
	}
	return "", ServerConfig{}, false
}

// GetProfile returns the LLM config for an engine role, falling back to
// the default LLM config for unset fields.
func (c *Config) GetProfile(name string) LLMConfig {
	if name == "" {
		return c.LLM
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return c.LLM
	}
	result := LLMConfig{
		Provider:  profile.Provider,
		Model:     profile.Model,
		APIKeyEnv: profile.APIKeyEnv,
		MaxTokens: profile.MaxTokens,
		BaseURL:   profile.BaseURL,
	}
	if result.Provider == "" {
		result.Provider = c.LLM.Provider
	}
	if result.Model == "" {
		result.Model = c.LLM.Model
	}
	if result.APIKeyEnv == "" {
		result.APIKeyEnv = c.LLM.APIKeyEnv
	}
	if result.MaxTokens == 0 {
		result.MaxTokens = c.LLM.MaxTokens
	}
	if result.BaseURL == "" {
		result.BaseURL = c.LLM.BaseURL
	}
	return result
}

// GetProfileAPIKey returns the API key for a profile from its configured
// environment variable, falling back to the provider's default env var.
func (c *Config) GetProfileAPIKey(profileName string) string {
	llmCfg := c.GetProfile(profileName)
	envVar := llmCfg.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(llmCfg.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// DatabaseURL returns the Postgres DSN, preferring the env indirection.
func (c *Config) DatabaseURL() string {
	if c.Database.URLEnv != "" {
		if v := os.Getenv(c.Database.URLEnv); v != "" {
			return v
		}
	}
	return c.Database.URL
}

// SessionTTL parses the thread idle lifetime.
func (c *Config) SessionTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Session.TTL)
	if err != nil {
		return 0, fmt.Errorf("session.ttl: %w", err)
	}
	return d, nil
}

// SweepInterval parses the thread store sweep period.
func (c *Config) SweepInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Session.SweepInterval)
	if err != nil {
		return 0, fmt.Errorf("session.sweep_interval: %w", err)
	}
	return d, nil
}
