// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.CacheLookup("hit")
	m.CacheLookup("hit")
	m.CacheLookup("miss")
	m.Enhancement("unavailable")
	m.Parse("ok")
	m.ObserveStage("pattern", 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enhancements.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parses.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageLatency))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.Parse("not_found")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.parses.WithLabelValues("not_found")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup("hit")
		m.Enhancement("ok")
		m.Parse("ok")
		m.ObserveStage("llm", time.Second)
	})
}
