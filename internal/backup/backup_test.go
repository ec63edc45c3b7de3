// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/internal/normalize"
	"github.com/pdiddy/eventparse/internal/pattern"
	"github.com/pdiddy/eventparse/pkg/types"
)

var refNow = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func utcRef() pattern.Reference {
	return pattern.Reference{Now: refNow, Loc: time.UTC}
}

func resolve(t *testing.T, req Request) Outcome {
	t.Helper()
	out, err := New(confidence.Model{}, 0).Resolve(context.Background(), req)
	require.NoError(t, err)
	return out
}

func startOf(t *testing.T, out Outcome) time.Time {
	t.Helper()
	c, ok := out.Fields[types.FieldStart]
	require.True(t, ok, "start not resolved")
	at, err := time.Parse(time.RFC3339, c.Value.(string))
	require.NoError(t, err)
	return at
}

func TestResolve_GrammarParserWeekdayAndTime(t *testing.T) {
	out := resolve(t, Request{
		Text:   normalize.New("catch up next wednesday at 2:25 p.m."),
		Ref:    utcRef(),
		Fields: []types.FieldName{types.FieldStart, types.FieldEnd},
	})

	start := startOf(t, out)
	assert.Equal(t, time.Wednesday, start.Weekday())
	assert.Equal(t, 14, start.Hour())
	assert.Equal(t, 25, start.Minute())
	assert.True(t, start.After(refNow))
	assert.False(t, out.AllDay)

	c := out.Fields[types.FieldStart]
	assert.Equal(t, types.SourceDeterministicBackup, c.Source)
	assert.GreaterOrEqual(t, c.Confidence, Floor)
	assert.Less(t, c.Confidence, 0.8)
	require.NotNil(t, c.Span)

	end := out.Fields[types.FieldEnd]
	assert.Equal(t, start.Add(time.Hour).Format(time.RFC3339), end.Value)
	assert.Nil(t, end.Span, "derived end carries no span")
}

func TestResolve_DateOnlyIsAllDay(t *testing.T) {
	out := resolve(t, Request{
		Text:   normalize.New("Offsite 2014/3/31 all hands"),
		Ref:    utcRef(),
		Fields: []types.FieldName{types.FieldStart, types.FieldEnd},
	})

	assert.Equal(t, "2014-03-31T00:00:00Z", out.Fields[types.FieldStart].Value)
	assert.Equal(t, "2014-04-01T00:00:00Z", out.Fields[types.FieldEnd].Value)
	assert.True(t, out.AllDay)
	assert.Equal(t, "dateparse", out.Parser)
}

func TestResolve_AttachesCallerZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	out := resolve(t, Request{
		Text:   normalize.New("Offsite 2014/3/31 all hands"),
		Ref:    pattern.Reference{Now: refNow, Loc: ny},
		Fields: []types.FieldName{types.FieldStart},
	})

	assert.Equal(t, "2014-03-31T00:00:00-04:00", out.Fields[types.FieldStart].Value)
}

func TestResolve_DurationSignal(t *testing.T) {
	out := resolve(t, Request{
		Text:     normalize.New("catch up next wednesday at 2:25pm"),
		Ref:      utcRef(),
		Fields:   []types.FieldName{types.FieldStart, types.FieldEnd},
		Duration: 30 * time.Minute,
	})

	start := startOf(t, out)
	assert.Equal(t, start.Add(30*time.Minute).Format(time.RFC3339), out.Fields[types.FieldEnd].Value)
}

func TestResolve_IncompleteReferenceResolvesNothing(t *testing.T) {
	out := resolve(t, Request{
		Text:   normalize.New("catch up next wednesday at 2:25pm"),
		Ref:    pattern.Reference{Now: refNow},
		Fields: []types.FieldName{types.FieldStart},
	})
	assert.Empty(t, out.Fields)
}

func TestResolve_EndOnlyRequestResolvesNothing(t *testing.T) {
	out := resolve(t, Request{
		Text:   normalize.New("catch up next wednesday at 2:25pm"),
		Ref:    utcRef(),
		Fields: []types.FieldName{types.FieldEnd},
	})
	assert.Empty(t, out.Fields)
}

func TestResolve_DateOnlyMatchingPatternDayIsDropped(t *testing.T) {
	hint := time.Date(2014, 3, 31, 9, 0, 0, 0, time.UTC)
	out := resolve(t, Request{
		Text:         normalize.New("Offsite 2014/3/31 all hands"),
		Ref:          utcRef(),
		Fields:       []types.FieldName{types.FieldStart},
		PatternStart: &hint,
	})
	assert.Empty(t, out.Fields)
}

func TestResolve_NothingParseable(t *testing.T) {
	out := resolve(t, Request{
		Text:   normalize.New("please review the attached document"),
		Ref:    utcRef(),
		Fields: []types.FieldName{types.FieldStart, types.FieldEnd},
	})
	assert.Empty(t, out.Fields)
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(confidence.Model{}, 0).Resolve(ctx, Request{
		Text:   normalize.New("Offsite 2014/3/31"),
		Ref:    utcRef(),
		Fields: []types.FieldName{types.FieldStart},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_Deterministic(t *testing.T) {
	req := Request{
		Text:   normalize.New("catch up next wednesday at 2:25pm"),
		Ref:    utcRef(),
		Fields: []types.FieldName{types.FieldStart, types.FieldEnd},
	}
	assert.Equal(t, resolve(t, req), resolve(t, req))
}

func TestParseWindows_KeepsLongestWindow(t *testing.T) {
	rs := parseWindows("Sync 4/8/2014 22:05 bring notes", time.UTC)
	require.NotEmpty(t, rs)

	want := time.Date(2014, 4, 8, 22, 5, 0, 0, time.UTC)
	found := false
	for _, r := range rs {
		if r.at.Equal(want) {
			found = true
			assert.True(t, r.hasTime)
		}
		for _, o := range rs {
			inside := o.span.Len() > r.span.Len() && o.span.Start <= r.span.Start && r.span.End <= o.span.End
			assert.False(t, inside, "window %v kept inside %v", r.span, o.span)
		}
	}
	assert.True(t, found)
}

func TestPick(t *testing.T) {
	day := reading{parser: "when", span: types.Span{Start: 10, End: 30}, hasDate: true}
	short := reading{parser: "dateparse", span: types.Span{Start: 12, End: 22}, hasDate: true}
	bare := reading{parser: "when", span: types.Span{Start: 0, End: 4}, hasTime: true}

	got, ok := pick([]reading{day, bare, short})
	require.True(t, ok)
	assert.Equal(t, short, got, "dated reading with the shortest span wins over a shorter bare time")

	tieWhen := reading{parser: "when", span: types.Span{Start: 5, End: 15}, hasDate: true}
	tieDP := reading{parser: "dateparse", span: types.Span{Start: 5, End: 15}, hasDate: true}
	got, _ = pick([]reading{tieWhen, tieDP})
	assert.Equal(t, "dateparse", got.parser)

	_, ok = pick(nil)
	assert.False(t, ok)
}

func TestScore_StaysInBackupBand(t *testing.T) {
	r := New(confidence.Model{}, 0)
	long := reading{span: types.Span{Start: 0, End: 40}, tokens: 6, hasDate: true, hasTime: true}
	noisy := reading{span: types.Span{Start: 30, End: 40}, tokens: 2, hasDate: true}
	text := "Item ID 4821 Status: Closed Assignee: 2014/3/31 x"

	for _, s := range []float64{r.score(long, "some plain text here and more text to fill"), r.score(noisy, text)} {
		assert.GreaterOrEqual(t, s, Floor)
		assert.LessOrEqual(t, s, Ceiling)
	}
}
