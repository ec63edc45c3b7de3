// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/eventparse/pkg/types"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(types.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Named("router").Info("routed", zap.String("path", "pattern"))
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "routed", entry["msg"])
	assert.Equal(t, "router", entry["logger"])
	assert.Equal(t, "pattern", entry["path"])
	assert.Contains(t, entry, "ts")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(types.LogConfig{Level: "debug", Format: "console"}, &buf)
	require.NoError(t, err)
	log.Debug("visible")
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "visible")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(types.LogConfig{Level: "loud"}, nil)
	assert.Error(t, err)
	_, err = New(types.LogConfig{Format: "xml"}, nil)
	assert.Error(t, err)
}
