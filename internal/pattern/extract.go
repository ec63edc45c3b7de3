// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pattern implements the first extraction tier: a stateless table
// of field-specific matchers run concurrently over normalized text, then
// assembled into at most one candidate per field.
package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/internal/normalize"
	"github.com/pdiddy/eventparse/pkg/types"
)

// MissingZoneWarning is attached when absolute times were read without a
// caller timezone.
const MissingZoneWarning = "no timezone supplied; times are interpreted as UTC"

// indicativeTitleRules name an event outright.
var indicativeTitleRules = map[string]bool{
	"labelled_title":       true,
	"leading_event_phrase": true,
	"event_noun_phrase":    true,
}

// alternatePenalty scales the confidence of a reading that was not chosen.
const alternatePenalty = 0.8

// maxOvernight is the longest span an explicit end before its start may
// describe by rolling over midnight ("10pm until 2am").
const maxOvernight = 12 * time.Hour

// DefaultTable returns the built-in rule table. Callers may extend or
// reorder it and pass it to New.
func DefaultTable() Table {
	var t Table
	t = append(t, dateRules()...)
	t = append(t, timeRules()...)
	t = append(t, rangeRules()...)
	t = append(t, endTimeRules()...)
	t = append(t, durationRules()...)
	t = append(t, recurrenceRules()...)
	t = append(t, titleRules()...)
	t = append(t, locationRules()...)
	t = append(t, participantRules()...)
	t = append(t, descriptionRules()...)
	return t
}

// Extractor runs a rule table. It holds no per-request state and is safe
// for concurrent use.
type Extractor struct {
	table           Table
	model           confidence.Model
	defaultDuration time.Duration
}

// New creates an Extractor. A nil table uses DefaultTable; a zero
// defaultDuration uses one hour.
func New(table Table, model confidence.Model, defaultDuration time.Duration) *Extractor {
	if table == nil {
		table = DefaultTable()
	}
	if defaultDuration <= 0 {
		defaultDuration = types.DefaultEventDuration
	}
	return &Extractor{table: table, model: model, defaultDuration: defaultDuration}
}

// Extraction is the pattern tier's output for one request.
type Extraction struct {
	Text normalize.Text

	// Fields holds the best candidate per requested field.
	Fields map[types.FieldName]types.Candidate

	Alternates []types.Alternate
	Conflicts  []types.ValidationConflict
	Warnings   []string

	// AllDay is set when the start came from a date with no time.
	AllDay bool

	// Duration is the best duration expression found, zero if none.
	Duration time.Duration

	// EventIndicative is set when the text has temporal or event-naming
	// tokens. Text without them is not worth escalating.
	EventIndicative bool

	// Matches are every surviving rule hit, in text order.
	Matches []Match
}

// Extract runs every rule relevant to fields over txt. It returns a
// *types.MissingContextError when relative expressions are present and ref
// is incomplete.
func (e *Extractor) Extract(ctx context.Context, txt normalize.Text, ref Reference, fields types.FieldSet) (*Extraction, error) {
	kinds := kindsFor(fields)
	groups := make(map[Kind][]Rule)
	var order []Kind
	for _, r := range e.table {
		if !kinds[r.Kind] {
			continue
		}
		if _, ok := groups[r.Kind]; !ok {
			order = append(order, r.Kind)
		}
		groups[r.Kind] = append(groups[r.Kind], r)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	results := make([][]Match, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range order {
		g.Go(func() error {
			var out []Match
			for _, r := range groups[k] {
				if err := gctx.Err(); err != nil {
					return err
				}
				out = append(out, r.run(txt.S, ref)...)
			}
			results[i] = dropOverlaps(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pattern pass: %w", err)
	}

	byKind := make(map[Kind][]Match, len(order))
	for i, k := range order {
		byKind[k] = results[i]
	}
	return e.assemble(txt, byKind, ref, fields)
}

// dropOverlaps keeps, among matches of one kind, the longest of any
// overlapping group. Equal lengths keep the leftmost, then the earlier
// rule.
func dropOverlaps(ms []Match) []Match {
	idx := make([]int, len(ms))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ma, mb := ms[idx[a]], ms[idx[b]]
		if ma.Span.Len() != mb.Span.Len() {
			return ma.Span.Len() > mb.Span.Len()
		}
		return ma.Span.Start < mb.Span.Start
	})
	var kept []Match
	for _, i := range idx {
		if !overlapsAny(ms[i].Span, kept) {
			kept = append(kept, ms[i])
		}
	}
	sort.SliceStable(kept, func(a, b int) bool { return kept[a].Span.Start < kept[b].Span.Start })
	return kept
}

func overlapsAny(sp types.Span, ms []Match) bool {
	for _, m := range ms {
		if m.Span.Overlaps(sp) {
			return true
		}
	}
	return false
}

// without removes matches overlapping any of the blockers.
func without(ms []Match, blockers ...[]Match) []Match {
	var out []Match
	for _, m := range ms {
		blocked := false
		for _, b := range blockers {
			if overlapsAny(m.Span, b) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, m)
		}
	}
	return out
}

// clipTitles cuts each title where the first temporal expression inside it
// begins ("Team dinner end of day friday" keeps "Team dinner"). Titles that
// start inside a temporal expression are dropped. Quoted titles stay as
// written.
func clipTitles(txt normalize.Text, titles []Match, temporal ...[]Match) []Match {
	var out []Match
	for _, m := range titles {
		v, ok := m.Value.(string)
		if !ok || m.Rule == "quoted_title" {
			out = append(out, m)
			continue
		}
		end := m.Span.End
		for _, ms := range temporal {
			for _, t := range ms {
				if t.Span.Overlaps(m.Span) {
					end = min(end, t.Span.Start)
				}
			}
		}
		if end == m.Span.End {
			out = append(out, m)
			continue
		}
		from := m.Span.End - len(v)
		if end <= from {
			continue
		}
		v = leadingPhrase(txt.S[from:end], func(string) bool { return false }, len(strings.Fields(v)))
		if v == "" || !strings.HasPrefix(txt.S[from:], v) {
			continue
		}
		m.Value = v
		m.Span.End = from + len(v)
		m.Text = txt.S[m.Span.Start:m.Span.End]
		out = append(out, m)
	}
	return out
}

func withClock(ms []Match) []Match {
	var out []Match
	for _, m := range ms {
		if v, ok := m.Value.(dateValue); ok && v.Clock != nil {
			out = append(out, m)
		}
	}
	return out
}

// builder accumulates an Extraction.
type builder struct {
	x     *Extraction
	model confidence.Model
	ctx   confidence.Context
}

func (b *builder) score(m Match, f types.FieldName) float64 {
	return b.model.Score(confidence.Candidate{
		Field:       f,
		Source:      types.SourcePattern,
		Specificity: m.Specificity,
		Span:        m.Span,
	}, b.ctx)
}

// set records the candidate for f. The reported span covers primary;
// extra parts are only consumed from the residual text.
func (b *builder) set(f types.FieldName, value any, score float64, primary []types.Span, extra ...types.Span) {
	c := types.Candidate{
		FieldResult: types.FieldResult{
			Value:      value,
			Source:     types.SourcePattern,
			Confidence: confidence.Clamp(score, 0, 1),
		},
		Parts: append(append([]types.Span(nil), primary...), extra...),
	}
	if sp, ok := b.originalSpan(primary); ok {
		c.Span = &sp
	}
	b.x.Fields[f] = c
}

func (b *builder) originalSpan(parts []types.Span) (types.Span, bool) {
	if len(parts) == 0 {
		return types.Span{}, false
	}
	lo, hi := parts[0].Start, parts[0].End
	for _, p := range parts[1:] {
		lo, hi = min(lo, p.Start), max(hi, p.End)
	}
	sp := b.x.Text.OriginalSpan(lo, hi)
	return sp, sp.Len() > 0
}

func (e *Extractor) assemble(txt normalize.Text, byKind map[Kind][]Match, ref Reference, fields types.FieldSet) (*Extraction, error) {
	b := &builder{
		x:     &Extraction{Text: txt, Fields: make(map[types.FieldName]types.Candidate)},
		model: e.model,
		ctx:   confidence.Context{Text: txt.S},
	}

	locations := without(byKind[KindLocation], byKind[KindParticipants])
	ranges := byKind[KindRange]
	endTimes := without(byKind[KindEndTime], ranges)
	dates := byKind[KindDate]
	times := without(byKind[KindTime], ranges, byKind[KindEndTime], withClock(dates), locations)
	durations := without(byKind[KindDuration], dates)
	byKind[KindLocation] = locations
	byKind[KindEndTime] = endTimes
	byKind[KindTime] = times
	byKind[KindDuration] = durations
	byKind[KindTitle] = clipTitles(txt, byKind[KindTitle], dates, times, ranges, endTimes, durations, byKind[KindRecurrence])

	var missing []string
	for _, k := range []Kind{KindDate, KindTime, KindRange, KindEndTime, KindDuration, KindRecurrence} {
		for _, m := range byKind[k] {
			b.x.EventIndicative = true
			if m.Unresolved {
				missing = append(missing, m.Text)
			}
		}
	}
	if m, ok := b.best(durations, types.FieldEnd); ok {
		b.x.Duration = m.Value.(time.Duration)
	}

	if fields.Contains(types.FieldStart) || fields.Contains(types.FieldEnd) {
		missing = append(missing, e.assembleTemporal(b, dates, times, ranges, endTimes, durations, ref, fields)...)
	}
	if len(missing) > 0 {
		return nil, &types.MissingContextError{
			Expressions: missing,
			MissingTime: ref.Now.IsZero(),
			MissingZone: ref.Loc == nil,
		}
	}

	if fields.Contains(types.FieldRecurrence) {
		if m, ok := b.best(byKind[KindRecurrence], types.FieldRecurrence); ok {
			b.set(types.FieldRecurrence, m.Value, b.score(m, types.FieldRecurrence), []types.Span{m.Span})
		}
	}
	for _, fk := range []struct {
		field types.FieldName
		kind  Kind
	}{
		{types.FieldTitle, KindTitle},
		{types.FieldLocation, KindLocation},
		{types.FieldDescription, KindDescription},
	} {
		if !fields.Contains(fk.field) {
			continue
		}
		if m, ok := b.best(byKind[fk.kind], fk.field); ok {
			b.set(fk.field, m.Value, b.score(m, fk.field), []types.Span{m.Span})
		}
	}
	for _, m := range byKind[KindTitle] {
		if indicativeTitleRules[m.Rule] {
			b.x.EventIndicative = true
		}
	}
	if fields.Contains(types.FieldParticipants) {
		b.participants(byKind[KindParticipants])
	}

	for _, k := range []Kind{KindDate, KindTime, KindRange, KindEndTime, KindDuration, KindRecurrence, KindTitle, KindLocation, KindParticipants, KindDescription} {
		b.x.Matches = append(b.x.Matches, byKind[k]...)
	}
	sort.SliceStable(b.x.Matches, func(i, j int) bool { return b.x.Matches[i].Span.Start < b.x.Matches[j].Span.Start })
	return b.x, nil
}

// best picks the highest-scoring match, leftmost on ties.
func (b *builder) best(ms []Match, f types.FieldName) (Match, bool) {
	var (
		out   Match
		score = -1.0
	)
	for _, m := range ms {
		if m.Unresolved {
			continue
		}
		s := b.score(m, f)
		if s > score || (s == score && m.Span.Start < out.Span.Start) {
			out, score = m, s
		}
	}
	return out, score >= 0
}

// participants merges every participant match into one list in text
// order. The list is only as confident as its weakest source.
func (b *builder) participants(ms []Match) {
	var (
		names []string
		parts []types.Span
		score = 1.0
		seen  = make(map[string]bool)
	)
	for _, m := range ms {
		list, _ := m.Value.([]string)
		for _, n := range list {
			key := normalizeName(n)
			if seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, n)
		}
		parts = append(parts, m.Span)
		score = min(score, b.score(m, types.FieldParticipants))
	}
	if len(names) == 0 {
		return
	}
	b.set(types.FieldParticipants, names, score, parts)
}

func normalizeName(n string) string {
	return strings.ToLower(strings.TrimSpace(n))
}

// timeSource is a start clock read from a time or range match.
type timeSource struct {
	clock clock
	end   *clock
	span  types.Span
	score float64
}

type startChoice struct {
	at        time.Time
	day       civil
	zone      *time.Location
	allDay    bool
	score     float64
	parts     []types.Span
	src       *timeSource
	alt       *civil
	altReason string
}

func (s startChoice) better(o startChoice) bool {
	if s.score != o.score {
		return s.score > o.score
	}
	return s.parts[0].Start < o.parts[0].Start
}

func gap(a, b types.Span) int {
	switch {
	case a.Overlaps(b):
		return 0
	case a.End <= b.Start:
		return b.Start - a.End
	default:
		return a.Start - b.End
	}
}

// assembleTemporal pairs dates with times into a start, then derives the
// end from a range, an explicit end time, a duration or the default
// length, in that order. It returns expressions that could not be
// resolved without a reference clock.
func (e *Extractor) assembleTemporal(b *builder, dates, times, ranges, endTimes, durations []Match, ref Reference, fields types.FieldSet) []string {
	var sources []timeSource
	for _, m := range times {
		if m.Unresolved {
			continue
		}
		sources = append(sources, timeSource{clock: m.Value.(clock), span: m.Span, score: b.score(m, types.FieldStart)})
	}
	for _, m := range ranges {
		r := m.Value.(timeRange)
		end := r.End
		sources = append(sources, timeSource{clock: r.Start, end: &end, span: m.Span, score: b.score(m, types.FieldStart)})
	}

	var (
		candidates []startChoice
		missing    []string
	)
	for _, m := range dates {
		if m.Unresolved {
			continue
		}
		v := m.Value.(dateValue)
		dScore := b.score(m, types.FieldStart)
		zone := ref.location()
		if v.Zone != nil {
			zone = v.Zone
		}
		c := startChoice{day: v.Date, zone: zone, score: dScore, parts: []types.Span{m.Span}, alt: v.Alt, altReason: v.AltReason}
		switch {
		case v.Clock != nil:
			c.at = v.Date.at(*v.Clock, zone)
		case len(sources) > 0:
			src := nearest(sources, m.Span)
			c.at = v.Date.at(src.clock, zone)
			c.score = confidence.Combine(dScore, src.score)
			c.parts = append(c.parts, src.span)
			c.src = &src
		default:
			c.at = v.Date.at(clock{}, zone)
			c.allDay = true
		}
		candidates = append(candidates, c)
	}
	if len(dates) == 0 && len(sources) > 0 {
		if !ref.Complete() {
			for _, s := range sources {
				missing = append(missing, b.x.Text.S[s.span.Start:s.span.End])
			}
			return missing
		}
		today := civilOf(ref.local())
		for _, s := range sources {
			src := s
			candidates = append(candidates, startChoice{
				at:    today.at(s.clock, ref.Loc),
				day:   today,
				zone:  ref.Loc,
				score: s.score * 0.95,
				parts: []types.Span{s.span},
				src:   &src,
			})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.better(best) {
			best = c
		}
	}
	b.x.AllDay = best.allDay
	if ref.Loc == nil {
		b.x.Warnings = append(b.x.Warnings, MissingZoneWarning)
	}
	if fields.Contains(types.FieldStart) {
		b.set(types.FieldStart, best.at.Format(time.RFC3339), best.score, best.parts)
		if best.alt != nil {
			at := best.alt.at(clock{Hour: best.at.Hour(), Minute: best.at.Minute()}, best.zone)
			alt := b.x.Fields[types.FieldStart].FieldResult
			alt.Value = at.Format(time.RFC3339)
			alt.Confidence = confidence.Clamp(best.score*alternatePenalty, 0, 1)
			b.x.Alternates = append(b.x.Alternates, types.Alternate{Field: types.FieldStart, Result: alt, Reason: best.altReason})
		}
	}
	if fields.Contains(types.FieldEnd) {
		e.assembleEnd(b, best, endTimes, durations)
	}
	return nil
}

func nearest(sources []timeSource, sp types.Span) timeSource {
	out := sources[0]
	for _, s := range sources[1:] {
		if gap(s.span, sp) < gap(out.span, sp) {
			out = s
		}
	}
	return out
}

func (e *Extractor) assembleEnd(b *builder, start startChoice, endTimes, durations []Match) {
	var (
		end      time.Time
		score    float64
		primary  []types.Span
		explicit bool
	)
	switch {
	case start.src != nil && start.src.end != nil:
		end = start.day.at(*start.src.end, start.zone)
		score = confidence.Combine(start.score, start.src.score)
		primary = []types.Span{start.src.span}
		explicit = true
	case len(endTimes) > 0:
		m, _ := b.best(endTimes, types.FieldEnd)
		end = start.day.at(m.Value.(clock), start.zone)
		score = confidence.Combine(start.score, b.score(m, types.FieldEnd))
		primary = []types.Span{m.Span}
		explicit = true
	}
	var (
		extra     []types.Span
		discarded time.Time
	)
	if explicit && !end.After(start.at) {
		// An end at or before the start crosses midnight only when the
		// resulting span stays short. Anything longer is a contradiction.
		if next := end.AddDate(0, 0, 1); next.Sub(start.at) <= maxOvernight {
			end = next
		} else {
			discarded = end
			extra = append(extra, primary...)
			primary = nil
			explicit = false
		}
	}

	if m, ok := b.best(durations, types.FieldEnd); ok {
		byDuration := start.at.Add(m.Value.(time.Duration))
		if explicit {
			if !byDuration.Equal(end) {
				b.x.Conflicts = append(b.x.Conflicts, types.ValidationConflict{
					Field:     types.FieldEnd,
					Kept:      end.Format(time.RFC3339),
					Discarded: byDuration.Format(time.RFC3339),
					Reason:    "explicit end time wins over duration",
				})
			}
			extra = append(extra, m.Span)
		} else {
			end = byDuration
			score = confidence.Combine(start.score, b.score(m, types.FieldEnd))
			primary = []types.Span{m.Span}
			explicit = true
		}
	}
	if !explicit {
		score = start.score
		if start.allDay {
			end = start.at.AddDate(0, 0, 1)
		} else {
			end = start.at.Add(e.defaultDuration)
		}
	}
	if !discarded.IsZero() {
		b.x.Conflicts = append(b.x.Conflicts, types.ValidationConflict{
			Field:     types.FieldEnd,
			Kept:      end.Format(time.RFC3339),
			Discarded: discarded.Format(time.RFC3339),
			Reason:    "end time precedes start",
		})
	}
	b.set(types.FieldEnd, end.Format(time.RFC3339), score, primary, extra...)
}
