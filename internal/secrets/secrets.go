// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads model-provider credentials from a directory of
// plain-text files. The filename is the key name and the trimmed contents
// are the value, e.g. .secrets/anthropic-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/eventparse/pkg/types"
)

// DefaultDir is where the CLI looks for key files.
const DefaultDir = ".secrets/"

// Key file names per provider.
const (
	AnthropicKey = "anthropic-api-key"
	OpenAIKey    = "openai-api-key"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory is
// not an error. Unreadable files are logged and skipped.
func Load(dir string, log *zap.Logger) (Secrets, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("skipping unreadable secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			s[name] = value
		}
	}
	return s, nil
}

// APIKey returns the key for a provider, or "" when none is stored.
func (s Secrets) APIKey(p types.LLMProvider) string {
	switch p {
	case types.ProviderAnthropic:
		return s[AnthropicKey]
	case types.ProviderOpenAI:
		return s[OpenAIKey]
	default:
		return ""
	}
}

// Apply fills cfg.APIKey from the stored key when the configuration does
// not already carry one.
func (s Secrets) Apply(cfg *types.EnhancementConfig) {
	if cfg.APIKey == "" {
		cfg.APIKey = s.APIKey(cfg.Provider)
	}
}
