// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package telemetry exports pipeline metrics to Prometheus. A nil *Metrics
// is valid and records nothing.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventparse"

// Metrics holds the pipeline's collectors.
type Metrics struct {
	stageLatency *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	enhancements *prometheus.CounterVec
	parses       *prometheus.CounterVec
}

// New registers the pipeline collectors with reg, or with the default
// registerer when reg is nil. Registering twice reuses the existing
// collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result (hit, miss, bypass, error).",
		}, []string{"result"}),
		enhancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancement_calls_total",
			Help:      "Language-model enhancement outcomes.",
		}, []string{"outcome"}),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Parse requests by result status.",
		}, []string{"status"}),
	}

	var err error
	if m.stageLatency, err = register(reg, m.stageLatency); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = register(reg, m.cacheLookups); err != nil {
		return nil, err
	}
	if m.enhancements, err = register(reg, m.enhancements); err != nil {
		return nil, err
	}
	if m.parses, err = register(reg, m.parses); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("registering metric: %w", err)
	}
	return c, nil
}

// ObserveStage records the latency of one stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// CacheLookup counts a cache lookup result.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Enhancement counts an enhancement outcome.
func (m *Metrics) Enhancement(outcome string) {
	if m == nil {
		return
	}
	m.enhancements.WithLabelValues(outcome).Inc()
}

// Parse counts a finished request.
func (m *Metrics) Parse(status string) {
	if m == nil {
		return
	}
	m.parses.WithLabelValues(status).Inc()
}
