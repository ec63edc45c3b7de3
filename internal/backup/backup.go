// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backup is the second extraction tier. It runs two grammar-driven
// date parsers over text the pattern tier could not resolve confidently and
// keeps the candidate with the shortest valid span.
package backup

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"

	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/internal/normalize"
	"github.com/pdiddy/eventparse/internal/pattern"
	"github.com/pdiddy/eventparse/pkg/types"
)

// Backup confidence never reaches the essential threshold and never drops
// below the acceptance floor.
const (
	Floor   = 0.6
	Ceiling = 0.79
)

const (
	maxWindowTokens = 6
	minWindowLen    = 6
	tokenPenalty    = 0.02
	freeTokens      = 3
)

var (
	timeIndicator = regexp.MustCompile(`(?i)\d{1,2}:\d{2}|\d{1,2}\s?(?:am|pm)\b|\b(?:noon|midnight|morning|afternoon|evening|tonight|o'?clock|hours?|minutes?|mins?)\b`)
	dateIndicator = regexp.MustCompile(`(?i)\b(?:mon|tue|wed|thu|fri|sat|sun|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|today|tonight|tomorrow|yesterday|week|weeks|month|months|year|days?)|\d{1,4}[/.-]\d{1,2}`)
	pureDigits    = regexp.MustCompile(`^[\d\s]+$`)
)

// Request is one backup invocation.
type Request struct {
	Text normalize.Text
	Ref  pattern.Reference

	// Fields are the temporal fields still unresolved.
	Fields []types.FieldName

	// Duration is the duration signal found by the pattern tier, zero if
	// none.
	Duration time.Duration

	// PatternStart is the low-confidence pattern start, if any. A date-only
	// backup reading of the same day adds nothing and is dropped.
	PatternStart *time.Time
}

// Outcome is what the backup tier resolved.
type Outcome struct {
	Fields map[types.FieldName]types.Candidate
	AllDay bool

	// Parser names the parser whose reading won ("when" or "dateparse").
	Parser string
}

// Resolver wraps the backup parsers. It is safe for concurrent use.
type Resolver struct {
	when            *when.Parser
	model           confidence.Model
	defaultDuration time.Duration
}

// New creates a Resolver. A zero defaultDuration uses one hour.
func New(model confidence.Model, defaultDuration time.Duration) *Resolver {
	w := when.New(nil)
	w.Add(en.All...)
	if defaultDuration <= 0 {
		defaultDuration = types.DefaultEventDuration
	}
	return &Resolver{when: w, model: model, defaultDuration: defaultDuration}
}

// reading is one parser's interpretation of a stretch of text.
type reading struct {
	parser  string
	at      time.Time
	span    types.Span
	tokens  int
	hasDate bool
	hasTime bool
}

// Resolve parses req.Text and returns candidates for the requested
// temporal fields. Without a complete reference clock it resolves nothing;
// the pattern tier has already reported the missing context.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{Fields: make(map[types.FieldName]types.Candidate)}
	if !req.Ref.Complete() || !wants(req.Fields, types.FieldStart) {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("backup pass: %w", err)
	}

	var readings []reading
	if rd, ok := r.parseWhen(req.Text.S, req.Ref); ok {
		readings = append(readings, rd)
	}
	readings = append(readings, parseWindows(req.Text.S, req.Ref.Loc)...)
	best, ok := pick(readings)
	if !ok {
		return out, nil
	}
	if !best.hasTime && req.PatternStart != nil && sameDay(best.at, req.PatternStart.In(req.Ref.Loc)) {
		return out, nil
	}

	score := r.score(best, req.Text.S)
	start := types.Candidate{
		FieldResult: types.FieldResult{
			Value:      best.at.Format(time.RFC3339),
			Source:     types.SourceDeterministicBackup,
			Confidence: score,
		},
		Parts: []types.Span{best.span},
	}
	if sp := req.Text.OriginalSpan(best.span.Start, best.span.End); sp.Len() > 0 {
		start.Span = &sp
	}
	out.Fields[types.FieldStart] = start
	out.AllDay = !best.hasTime
	out.Parser = best.parser

	if wants(req.Fields, types.FieldEnd) {
		var end time.Time
		switch {
		case req.Duration > 0:
			end = best.at.Add(req.Duration)
		case out.AllDay:
			end = best.at.AddDate(0, 0, 1)
		default:
			end = best.at.Add(r.defaultDuration)
		}
		out.Fields[types.FieldEnd] = types.Candidate{
			FieldResult: types.FieldResult{
				Value:      end.Format(time.RFC3339),
				Source:     types.SourceDeterministicBackup,
				Confidence: score,
			},
		}
	}
	return out, nil
}

func (r *Resolver) score(rd reading, text string) float64 {
	spec := confidence.Contextual
	if rd.hasDate && rd.hasTime {
		spec = confidence.Specific
	}
	s := r.model.Score(confidence.Candidate{
		Field:       types.FieldStart,
		Source:      types.SourceDeterministicBackup,
		Specificity: spec,
		Span:        rd.span,
	}, confidence.Context{Text: text})
	if extra := rd.tokens - freeTokens; extra > 0 {
		s -= tokenPenalty * float64(extra)
	}
	return confidence.Clamp(s, Floor, Ceiling)
}

// parseWhen runs the rule-based parser over the whole text.
func (r *Resolver) parseWhen(text string, ref pattern.Reference) (reading, bool) {
	base := ref.Now.In(ref.Loc)
	res, err := r.when.Parse(text, base)
	if err != nil || res == nil || res.Text == "" {
		return reading{}, false
	}
	start := res.Index
	if start < 0 || start+len(res.Text) > len(text) || !strings.EqualFold(text[start:start+len(res.Text)], res.Text) {
		start = strings.Index(strings.ToLower(text), strings.ToLower(res.Text))
		if start < 0 {
			return reading{}, false
		}
	}
	matched := text[start : start+len(res.Text)]
	rd := reading{
		parser:  "when",
		span:    types.Span{Start: start, End: start + len(matched)},
		tokens:  len(strings.Fields(matched)),
		hasDate: dateIndicator.MatchString(matched),
		hasTime: timeIndicator.MatchString(matched),
	}
	rd.at = attach(res.Time, ref.Loc, rd.hasTime, false)
	return rd, validYear(rd.at)
}

type token struct {
	start, end int
}

func tokenize(text string) []token {
	var toks []token
	start := -1
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ' ' {
			if start >= 0 {
				toks = append(toks, token{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return toks
}

// parseWindows tries dateparse on every window of up to maxWindowTokens
// tokens. For each starting token only the longest parseable window is
// kept, and windows inside another kept window are dropped.
func parseWindows(text string, loc *time.Location) []reading {
	toks := tokenize(text)
	var out []reading
	for i := range toks {
		for n := min(maxWindowTokens, len(toks)-i); n >= 1; n-- {
			lo, hi := trimWindow(text, toks[i].start, toks[i+n-1].end)
			window := text[lo:hi]
			if len(window) < minWindowLen || pureDigits.MatchString(window) {
				continue
			}
			t, ok := safeParse(window, loc)
			if !ok {
				continue
			}
			hasTime := timeIndicator.MatchString(window)
			at := attach(t, loc, hasTime, t.Location().String() != loc.String())
			if !validYear(at) {
				continue
			}
			out = append(out, reading{
				parser:  "dateparse",
				at:      at,
				span:    types.Span{Start: lo, End: hi},
				tokens:  n,
				hasDate: true,
				hasTime: hasTime,
			})
			break
		}
	}
	var kept []reading
	for i, a := range out {
		inside := false
		for j, b := range out {
			if i != j && b.span.Len() > a.span.Len() && b.span.Start <= a.span.Start && a.span.End <= b.span.End {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, a)
		}
	}
	return kept
}

func trimWindow(text string, lo, hi int) (int, int) {
	for lo < hi && strings.ContainsRune("([\"'", rune(text[lo])) {
		lo++
	}
	for hi > lo && strings.ContainsRune(",.;:!?)]\"'", rune(text[hi-1])) {
		hi--
	}
	return lo, hi
}

// safeParse guards against dateparse panicking on some malformed inputs.
func safeParse(s string, loc *time.Location) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	t, err := dateparse.ParseIn(s, loc)
	return t, err == nil
}

// attach pins a reading to the caller's zone. Readings that carried their
// own offset keep their instant; all others keep their wall clock. Date-only
// readings snap to midnight.
func attach(t time.Time, loc *time.Location, hasTime, explicitZone bool) time.Time {
	if explicitZone {
		t = t.In(loc)
	}
	if !hasTime {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

func validYear(t time.Time) bool {
	return t.Year() >= 1970 && t.Year() <= 2100
}

// pick chooses among readings: one that names a calendar day beats a bare
// time, then the shortest span, then the leftmost, then dateparse over when
// since its window was consumed whole.
func pick(rs []reading) (reading, bool) {
	if len(rs) == 0 {
		return reading{}, false
	}
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.hasDate != b.hasDate {
			return a.hasDate
		}
		if a.span.Len() != b.span.Len() {
			return a.span.Len() < b.span.Len()
		}
		if a.span.Start != b.span.Start {
			return a.span.Start < b.span.Start
		}
		return a.parser == "dateparse" && b.parser != "dateparse"
	})
	return rs[0], true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func wants(fields []types.FieldName, f types.FieldName) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
