// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/eventparse/pkg/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, types.Config{}.WithDefaults(), cfg)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("EVENTPARSE_CACHE_BACKEND", "sqlite")
	t.Setenv("EVENTPARSE_PIPELINE_DEFAULT_DURATION", "30m")
	t.Setenv("EVENTPARSE_ENHANCEMENT_PROVIDER", "openai")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("EVENTPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, types.CacheSQLite, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.DefaultDuration)
	assert.Equal(t, types.ProviderOpenAI, cfg.Enhancement.Provider)
}

func TestLoadConfig_File(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
pipeline:
  essential_threshold: 0.85
enhancement:
  provider: anthropic
  api_key: ak_test
  timeout: 2s
`)))

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.Pipeline.EssentialThreshold)
	assert.Equal(t, types.ProviderAnthropic, cfg.Enhancement.Provider)
	assert.Equal(t, "ak_test", cfg.Enhancement.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Enhancement.Timeout)
}

func TestReadText(t *testing.T) {
	got, err := readText([]string{"lunch", "tomorrow"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "lunch tomorrow", got)

	got, err = readText(nil, strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", got)
}

func TestRequestFromFlags(t *testing.T) {
	require.NoError(t, parseCmd.Flags().Set("now", "2025-01-01T10:00:00Z"))
	require.NoError(t, parseCmd.Flags().Set("tz", "Europe/Paris"))
	require.NoError(t, parseCmd.Flags().Set("fields", "title,start"))
	t.Cleanup(func() {
		parseCmd.Flags().Set("now", "")
		parseCmd.Flags().Set("fields", "")
	})

	req, err := requestFromFlags(parseCmd, "lunch")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), req.ReferenceTime)
	assert.Equal(t, "Europe/Paris", req.Timezone)
	assert.Equal(t, types.FieldSet{types.FieldTitle, types.FieldStart}, req.Fields)

	require.NoError(t, parseCmd.Flags().Set("now", "yesterday"))
	_, err = requestFromFlags(parseCmd, "lunch")
	assert.Error(t, err)
}

func TestWriteResult(t *testing.T) {
	title := "Standup"
	start := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	res := &types.Result{
		Event: &types.NormalizedEvent{
			Status:          types.StatusOK,
			Title:           &title,
			StartDatetime:   &start,
			EndDatetime:     &end,
			ConfidenceScore: 0.9,
			Warnings:        []string{},
		},
		Metadata: types.Metadata{RequestID: "req-1"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, res, "json", start))
	var j map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &j))
	assert.Equal(t, "Standup", j["title"])
	assert.Equal(t, "req-1", j["metadata"].(map[string]any)["request_id"])

	buf.Reset()
	require.NoError(t, writeResult(&buf, res, "yaml", start))
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &y))
	assert.Equal(t, "Standup", y["title"])
	assert.Contains(t, y, "metadata")

	buf.Reset()
	require.NoError(t, writeResult(&buf, res, "ics", start))
	assert.Contains(t, buf.String(), "SUMMARY:Standup")

	assert.Error(t, writeResult(&buf, res, "pdf", start))
}

func TestSchedulePurge(t *testing.T) {
	_, err := schedulePurge(t.Context(), nil, "@hourly", nil)
	assert.NoError(t, err)

	_, err = schedulePurge(t.Context(), nil, "not a schedule", nil)
	assert.Error(t, err)
}
