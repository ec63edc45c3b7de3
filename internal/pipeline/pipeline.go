// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline is the Parse operation: it validates a request, serves
// it from the cache when it can and otherwise routes it through the
// extraction tiers and the merger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/eventparse/internal/backup"
	"github.com/pdiddy/eventparse/internal/cache"
	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/internal/enhance"
	"github.com/pdiddy/eventparse/internal/merge"
	"github.com/pdiddy/eventparse/internal/normalize"
	"github.com/pdiddy/eventparse/internal/pattern"
	"github.com/pdiddy/eventparse/internal/router"
	"github.com/pdiddy/eventparse/internal/telemetry"
	"github.com/pdiddy/eventparse/pkg/types"
)

// Options configures a Service. Zero values disable the optional parts.
type Options struct {
	Config types.PipelineConfig

	// Table is the pattern rule table; nil uses pattern.DefaultTable.
	Table pattern.Table
	Model confidence.Model

	// Enhancer is the language-model tier; nil disables it.
	Enhancer *enhance.Adapter

	// DisableBackup skips the deterministic backup tier.
	DisableBackup bool

	// Cache stores finalized events; nil disables caching.
	Cache cache.Store

	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// Service runs the pipeline. It is safe for concurrent use; the cache is
// its only state shared across requests.
type Service struct {
	router   *router.Router
	merger   *merge.Merger
	cache    cache.Store
	enhancer *enhance.Adapter
	metrics  *telemetry.Metrics
	log      *zap.Logger
	inflight singleflight.Group
}

// New wires the tiers from opts.
func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := opts.Config.WithDefaults()

	var b router.BackupTier
	if !opts.DisableBackup {
		b = backup.New(opts.Model, cfg.DefaultDuration)
	}
	var e router.Enhancer
	if opts.Enhancer != nil {
		e = opts.Enhancer
	}
	var w merge.Writer
	if opts.Cache != nil {
		w = opts.Cache
	}

	return &Service{
		router:   router.New(cfg, pattern.New(opts.Table, opts.Model, cfg.DefaultDuration), b, e, log),
		merger:   merge.New(cfg, w, log),
		cache:    opts.Cache,
		enhancer: opts.Enhancer,
		metrics:  opts.Metrics,
		log:      log,
	}
}

// computed is the shared outcome of one pipeline run.
type computed struct {
	event   *types.NormalizedEvent
	latency map[string]time.Duration
}

// Parse runs one request. Invalid input (types.ErrEmptyText,
// types.ErrInvalidTimezone, types.ErrUnknownField) and
// *types.MissingContextError are returned as errors; every other problem
// becomes a warning on the returned event or a not_found result.
func (s *Service) Parse(ctx context.Context, req types.Request) (*types.Result, error) {
	began := time.Now()
	id := uuid.NewString()
	log := s.log.With(zap.String("request_id", id))

	in, loc, err := validate(req)
	if err != nil {
		return nil, err
	}
	key := normalize.Fingerprint(in.Text, req.ReferenceTime, loc, in.Fields)
	useCache := s.cache != nil && !req.NoCache

	latency := map[string]time.Duration{}
	if useCache {
		t := time.Now()
		ev, ok, err := s.cache.Get(ctx, key)
		latency[types.StageCache] = time.Since(t)
		switch {
		case err != nil:
			s.metrics.CacheLookup("error")
			log.Warn("cache read failed", zap.Error(err))
		case ok:
			s.metrics.CacheLookup("hit")
			ev.CacheHit = true
			ev.ParsingPath = []string{types.StageCache}
			return s.finish(log, id, ev, req.Mode, latency, began), nil
		default:
			s.metrics.CacheLookup("miss")
		}
	} else {
		s.metrics.CacheLookup("bypass")
	}

	var c *computed
	if useCache {
		// Identical concurrent misses share one run. The run outlives any
		// single caller's cancellation.
		v, err, _ := s.inflight.Do(key, func() (any, error) {
			return s.compute(context.WithoutCancel(ctx), in, key)
		})
		if err != nil {
			return nil, err
		}
		c = v.(*computed)
	} else {
		c, err = s.compute(ctx, in, "")
		if err != nil {
			return nil, err
		}
	}
	for k, d := range c.latency {
		latency[k] += d
	}
	return s.finish(log, id, c.event, req.Mode, latency, began), nil
}

func (s *Service) compute(ctx context.Context, in router.Input, key string) (*computed, error) {
	routed, err := s.router.Route(ctx, in)
	if err != nil {
		return nil, err
	}
	if routed.Enhancement != router.EnhancementSkipped {
		s.metrics.Enhancement(string(routed.Enhancement))
	}
	ev := s.merger.Finalize(ctx, key, routed)
	return &computed{event: ev, latency: routed.Latency}, nil
}

func (s *Service) finish(log *zap.Logger, id string, ev *types.NormalizedEvent, mode types.Mode, latency map[string]time.Duration, began time.Time) *types.Result {
	latency[types.StageTotal] = time.Since(began)

	ms := make(map[string]float64, 5)
	for _, stage := range []string{types.StagePattern, types.StageBackup, types.StageLLM, types.StageCache, types.StageTotal} {
		d := latency[stage]
		ms[stage] = float64(d.Microseconds()) / 1000
		if d > 0 {
			s.metrics.ObserveStage(stage, d)
		}
	}
	s.metrics.Parse(string(ev.Status))

	log.Info("parsed",
		zap.String("status", string(ev.Status)),
		zap.Float64("confidence", ev.ConfidenceScore),
		zap.Bool("cache_hit", ev.CacheHit),
		zap.Strings("path", ev.ParsingPath),
		zap.Duration("total", latency[types.StageTotal]))

	return &types.Result{
		Event:    ev.View(mode),
		Metadata: types.Metadata{RequestID: id, StageLatencyMS: ms},
	}
}

// validate checks the request and builds the router input.
func validate(req types.Request) (router.Input, *time.Location, error) {
	if strings.TrimSpace(req.Text) == "" {
		return router.Input{}, nil, types.ErrEmptyText
	}
	var loc *time.Location
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil || strings.EqualFold(req.Timezone, "local") {
			return router.Input{}, nil, fmt.Errorf("%w: %q", types.ErrInvalidTimezone, req.Timezone)
		}
		loc = l
	}
	names := make([]string, len(req.Fields))
	for i, f := range req.Fields {
		names[i] = string(f)
	}
	fields, err := types.ParseFieldSet(strings.Join(names, ","))
	if err != nil {
		return router.Input{}, nil, err
	}
	switch req.Mode {
	case types.ModeDefault, types.ModeAudit:
	default:
		return router.Input{}, nil, fmt.Errorf("%w: unknown mode %q", types.ErrInvalidInput, req.Mode)
	}

	ref := pattern.Reference{Now: req.ReferenceTime, Loc: loc}
	if loc != nil && !ref.Now.IsZero() {
		ref.Now = ref.Now.In(loc)
	}
	return router.Input{Text: normalize.New(req.Text), Ref: ref, Fields: fields}, loc, nil
}

// IsInvalidInput reports whether err rejects the request itself.
func IsInvalidInput(err error) bool {
	return errors.Is(err, types.ErrEmptyText) ||
		errors.Is(err, types.ErrInvalidTimezone) ||
		errors.Is(err, types.ErrUnknownField) ||
		errors.Is(err, types.ErrInvalidInput)
}

// Health status values.
const (
	StatusAvailable = "available"
	StatusDegraded  = "degraded"
)

// Health is the liveness report.
type Health struct {
	Status string `json:"status" yaml:"status"`

	// LLM is disabled, reachable or unreachable.
	LLM   string `json:"llm" yaml:"llm"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Health probes the language-model backend without running the pipeline.
// The pipeline still works when it reports degraded.
func (s *Service) Health(ctx context.Context) Health {
	if s.enhancer == nil {
		return Health{Status: StatusAvailable, LLM: "disabled"}
	}
	if err := s.enhancer.Ping(ctx); err != nil {
		return Health{Status: StatusDegraded, LLM: "unreachable", Error: err.Error()}
	}
	return Health{Status: StatusAvailable, LLM: "reachable"}
}

// Purge removes expired cache entries.
func (s *Service) Purge(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Purge(ctx)
}

// Close releases the cache.
func (s *Service) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}
