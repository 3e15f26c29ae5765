package main

import (
	"fmt"
	"time"

	"github.com/campaigner-ai/engine/internal/config"
	"github.com/vinayprograms/agentkit/llm"
)

// buildProvider creates an LLM provider for one engine role, falling
// back to the default [llm] block for anything the profile omits.
func buildProvider(cfg *config.Config, role string) (llm.Provider, error) {
	pc := cfg.GetProfile(role)

	providerName := pc.Provider
	if providerName == "" {
		providerName = llm.InferProviderFromModel(pc.Model)
	}
	if providerName == "" && pc.Model == "" {
		return nil, fmt.Errorf("LLM model not configured for role %q", role)
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:    providerName,
		Model:       pc.Model,
		APIKey:      cfg.GetProfileAPIKey(role),
		MaxTokens:   pc.MaxTokens,
		BaseURL:     pc.BaseURL,
		RetryConfig: parseRetryConfig(cfg.LLM.MaxRetries, cfg.LLM.RetryBackoff),
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", role, err)
	}
	return provider, nil
}

func parseRetryConfig(maxRetries int, backoffStr string) llm.RetryConfig {
	rc := llm.RetryConfig{
		MaxRetries: maxRetries,
	}
	if backoffStr != "" {
		if d, err := time.ParseDuration(backoffStr); err == nil {
			rc.MaxBackoff = d
		}
	}
	return rc
}
