// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enhance

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pdiddy/eventparse/pkg/types"
)

// ErrNoAPIKey is returned when a hosted provider is configured without a key.
var ErrNoAPIKey = errors.New("no API key configured")

// NewBackend builds the backend named by cfg.Provider. It returns nil and
// no error when enhancement is disabled.
func NewBackend(cfg types.EnhancementConfig, client *http.Client) (Backend, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Provider {
	case types.ProviderNone:
		return nil, nil
	case types.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: %w", ErrNoAPIKey)
		}
		return &AnthropicBackend{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			BaseURL:   cfg.BaseURL,
			Client:    client,
		}, nil
	case types.ProviderOpenAI:
		// Self-hosted OpenAI-compatible servers often run without a key.
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
		}
		return &OpenAIBackend{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			BaseURL:   cfg.BaseURL,
			Client:    client,
		}, nil
	default:
		return nil, fmt.Errorf("unknown enhancement provider %q", cfg.Provider)
	}
}
