// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	assert.Equal(t, 0.8, cfg.Pipeline.EssentialThreshold)
	assert.Equal(t, 0.5, cfg.Pipeline.OptionalThreshold)
	assert.Equal(t, 0.6, cfg.Pipeline.BackupAccept)
	assert.Equal(t, 0.6, cfg.Pipeline.ConfirmThreshold)
	assert.Equal(t, time.Hour, cfg.Pipeline.DefaultDuration)
	assert.Equal(t, 0.75, cfg.Enhancement.MaxConfidence)
	assert.Equal(t, 4*time.Second, cfg.Enhancement.Timeout)
	assert.False(t, cfg.Enhancement.Enabled())
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Pipeline:    PipelineConfig{EssentialThreshold: 0.9, DefaultDuration: 30 * time.Minute},
		Enhancement: EnhancementConfig{AIConfig: AIConfig{Provider: ProviderOpenAI}, MaxConfidence: 1.5},
		Cache:       CacheConfig{Backend: CacheNone},
	}.WithDefaults()

	assert.Equal(t, 0.9, cfg.Pipeline.EssentialThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.DefaultDuration)
	assert.True(t, cfg.Enhancement.Enabled())
	assert.Equal(t, 0.75, cfg.Enhancement.MaxConfidence, "out-of-range cap falls back")
	assert.Equal(t, CacheNone, cfg.Cache.Backend)
}

func TestThreshold(t *testing.T) {
	c := PipelineConfig{}.WithDefaults()
	assert.Equal(t, 0.8, c.Threshold(FieldStart))
	assert.Equal(t, 0.5, c.Threshold(FieldRecurrence))
}
