package client

import (
	"context"
	"fmt"

	"taskflow/internal/config"
	"taskflow/internal/logging"
	"taskflow/internal/security"
)

// NewClient creates a client for the configured provider.
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	logging.Debug("creating client",
		"provider", cfg.API.Provider,
		"model", cfg.Model.Name)

	switch cfg.API.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg)
	case ProviderOllama:
		return newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.API.Provider)
	}
}

// newOllamaClient creates an Ollama client for local LLM inference.
func newOllamaClient(cfg *config.Config) (Client, error) {
	loadedKey := security.GetOllamaKey(cfg.API.OllamaKey)
	if loadedKey.IsSet() {
		logging.Debug("loaded Ollama API key",
			"source", loadedKey.Source,
			"model", cfg.Model.Name)
	}

	return NewOllamaClient(OllamaConfig{
		BaseURL:     cfg.API.OllamaBaseURL,
		APIKey:      loadedKey.Value,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxOutputTokens,
		HTTPTimeout: cfg.API.Retry.HTTPTimeout,
		Retry: RetryConfig{
			MaxRetries: cfg.API.Retry.MaxRetries,
			RetryDelay: cfg.API.Retry.RetryDelay,
		},
	})
}
