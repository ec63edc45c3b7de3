// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package merge turns the router's field ledger into one NormalizedEvent.
// It derives an end when none was found, refuses to invent a start, scores
// the event as a whole and writes the finished event through to the cache.
package merge

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/eventparse/internal/router"
	"github.com/pdiddy/eventparse/pkg/types"
)

// Field weights for the aggregate score. Essential fields carry 0.8 of the
// total; each optional field that was found adds 0.05.
var weights = map[types.FieldName]float64{
	types.FieldTitle:        0.30,
	types.FieldStart:        0.35,
	types.FieldEnd:          0.15,
	types.FieldRecurrence:   0.05,
	types.FieldLocation:     0.05,
	types.FieldDescription:  0.05,
	types.FieldParticipants: 0.05,
}

const warnMissingField = "no %s found"

// Writer receives finalized events. cache.Store satisfies it.
type Writer interface {
	Put(ctx context.Context, key string, ev *types.NormalizedEvent) error
}

// Merger builds events. It holds no per-request state.
type Merger struct {
	cfg   types.PipelineConfig
	cache Writer
	log   *zap.Logger
}

// New creates a Merger. A nil writer disables write-through.
func New(cfg types.PipelineConfig, w Writer, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{cfg: cfg.WithDefaults(), cache: w, log: log.Named("merge")}
}

// Finalize builds the event for r and, when key is non-empty, stores it.
// The returned event carries every audit field; callers shape it with
// NormalizedEvent.View.
func (m *Merger) Finalize(ctx context.Context, key string, r *router.Routed) *types.NormalizedEvent {
	results := make(map[types.FieldName]types.FieldResult, len(r.Fields))
	for _, f := range r.Fields {
		if s := r.Slots[f]; s.Found {
			results[f] = s.Result
		}
	}
	requested := make(map[types.FieldName]bool, len(r.Fields))
	for _, f := range r.Fields {
		requested[f] = true
	}

	start, hasStart := timestamp(results, types.FieldStart)
	if !hasStart {
		delete(results, types.FieldStart)
		if requested[types.FieldStart] {
			delete(results, types.FieldEnd)
		}
	} else if requested[types.FieldEnd] {
		m.deriveEnd(results, start, r)
	}

	var ev *types.NormalizedEvent
	if m.notFound(r, requested, results, hasStart) {
		ev = m.negative(r, results)
	} else {
		ev = m.positive(r, requested, results)
	}

	m.store(ctx, key, r, ev)
	return ev
}

// deriveEnd fills in end from start when it is missing or precedes start.
// A derived end has no span and inherits the start's confidence.
func (m *Merger) deriveEnd(results map[types.FieldName]types.FieldResult, start time.Time, r *router.Routed) {
	if end, ok := timestamp(results, types.FieldEnd); ok {
		if !end.Before(start) {
			return
		}
		m.log.Info("validation conflict",
			zap.String("field", string(types.FieldEnd)),
			zap.String("kept", start.Format(time.RFC3339)),
			zap.String("discarded", end.Format(time.RFC3339)),
			zap.String("reason", "end precedes start"))
	}

	var d time.Duration
	switch {
	case r.AllDay:
		d = 24 * time.Hour
	case r.Duration > 0:
		d = r.Duration
	default:
		d = m.cfg.DefaultDuration
	}
	s := results[types.FieldStart]
	results[types.FieldEnd] = types.FieldResult{
		Value:      start.Add(d).Format(time.RFC3339),
		Source:     s.Source,
		Confidence: s.Confidence,
	}
}

// notFound applies the no-fabrication rule. With start requested, an event
// needs a start or at least an all-day or duration signal. Without it, an
// event needs any requested field.
func (m *Merger) notFound(r *router.Routed, requested map[types.FieldName]bool, results map[types.FieldName]types.FieldResult, hasStart bool) bool {
	if requested[types.FieldStart] {
		return !hasStart && !r.AllDay && r.Duration == 0
	}
	return len(results) == 0
}

func (m *Merger) negative(r *router.Routed, results map[types.FieldName]types.FieldResult) *types.NormalizedEvent {
	ev := &types.NormalizedEvent{
		Status:              types.StatusNotFound,
		NeedsConfirmation:   true,
		Warnings:            append(append([]string{}, r.Warnings...), types.ErrNoEventFound.Error()),
		ParsingPath:         append([]string(nil), r.Path...),
		FieldResults:        make(map[types.FieldName]types.FieldResult),
		ConfidenceBreakdown: make(map[types.FieldName]float64),
		Alternates:          r.Alternates,
	}
	// Whatever the tiers did resolve still reaches the caller; only the
	// temporal fields are withheld.
	for f, res := range results {
		if f.Temporal() || res.Confidence < m.cfg.Threshold(f) {
			continue
		}
		if setValue(ev, f, res.Value) {
			ev.FieldResults[f] = res
			ev.ConfidenceBreakdown[f] = res.Confidence
		}
	}
	m.log.Debug("no event found", zap.Strings("path", r.Path))
	return ev
}

func (m *Merger) positive(r *router.Routed, requested map[types.FieldName]bool, results map[types.FieldName]types.FieldResult) *types.NormalizedEvent {
	ev := &types.NormalizedEvent{
		Status:              types.StatusOK,
		Warnings:            append([]string{}, r.Warnings...),
		ParsingPath:         append([]string(nil), r.Path...),
		FieldResults:        make(map[types.FieldName]types.FieldResult),
		ConfidenceBreakdown: make(map[types.FieldName]float64),
		Alternates:          r.Alternates,
	}

	var sum, total float64
	minEssential, haveEssential := 1.0, false
	for _, f := range types.AllFields {
		if !requested[f] {
			continue
		}
		res, ok := results[f]
		if ok && !f.Essential() && res.Confidence < m.cfg.OptionalThreshold {
			ok = false
		}
		if ok && !setValue(ev, f, res.Value) {
			m.log.Warn("dropping value of unexpected type",
				zap.String("field", string(f)), zap.String("type", fmt.Sprintf("%T", res.Value)))
			ok = false
		}

		switch {
		case ok:
			ev.FieldResults[f] = res
			ev.ConfidenceBreakdown[f] = res.Confidence
		case f.Essential():
			ev.Warnings = append(ev.Warnings, fmt.Sprintf(warnMissingField, f))
			ev.ConfidenceBreakdown[f] = 0
		default:
			continue
		}

		c := ev.ConfidenceBreakdown[f]
		sum += weights[f] * c
		total += weights[f]
		if f.Essential() {
			haveEssential = true
			minEssential = math.Min(minEssential, c)
		}
	}

	if total > 0 {
		score := sum / total
		if haveEssential {
			score = math.Min(score, minEssential)
		}
		ev.ConfidenceScore = math.Round(score*1e4) / 1e4
	}
	ev.AllDay = r.AllDay && ev.StartDatetime != nil
	ev.NeedsConfirmation = ev.ConfidenceScore < m.cfg.ConfirmThreshold
	return ev
}

func (m *Merger) store(ctx context.Context, key string, r *router.Routed, ev *types.NormalizedEvent) {
	if m.cache == nil || key == "" {
		return
	}
	// A degraded result would pin the outage for a whole TTL window.
	if r.Enhancement == router.EnhancementUnavailable {
		m.log.Debug("not caching degraded result", zap.String("key", key))
		return
	}
	if err := m.cache.Put(ctx, key, ev); err != nil {
		m.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// timestamp reads an RFC 3339 field value.
func timestamp(results map[types.FieldName]types.FieldResult, f types.FieldName) (time.Time, bool) {
	res, ok := results[f]
	if !ok {
		return time.Time{}, false
	}
	s, ok := res.Value.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// setValue copies a typed field value onto the event. It reports false
// when the value does not have the field's type.
func setValue(ev *types.NormalizedEvent, f types.FieldName, v any) bool {
	switch f {
	case types.FieldTitle, types.FieldLocation, types.FieldDescription:
		s, ok := v.(string)
		if !ok {
			return false
		}
		switch f {
		case types.FieldTitle:
			ev.Title = &s
		case types.FieldLocation:
			ev.Location = &s
		default:
			ev.Description = &s
		}
	case types.FieldStart, types.FieldEnd:
		s, ok := v.(string)
		if !ok {
			return false
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return false
		}
		if f == types.FieldStart {
			ev.StartDatetime = &t
		} else {
			ev.EndDatetime = &t
		}
	case types.FieldRecurrence:
		switch rec := v.(type) {
		case types.Recurrence:
			ev.Recurrence = &rec
		case *types.Recurrence:
			if rec == nil {
				return false
			}
			c := *rec
			ev.Recurrence = &c
		default:
			return false
		}
	case types.FieldParticipants:
		names, ok := v.([]string)
		if !ok || len(names) == 0 {
			return false
		}
		ev.Participants = append([]string(nil), names...)
	default:
		return false
	}
	return true
}
