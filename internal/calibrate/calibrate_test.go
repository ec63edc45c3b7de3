// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package calibrate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/eventparse/internal/pipeline"
	"github.com/pdiddy/eventparse/pkg/types"
)

type fakeParser struct {
	events map[string]*types.NormalizedEvent
	got    []types.Request
}

func (f *fakeParser) Parse(_ context.Context, req types.Request) (*types.Result, error) {
	f.got = append(f.got, req)
	ev, ok := f.events[req.Text]
	if !ok {
		return nil, errors.New("boom")
	}
	return &types.Result{Event: ev}, nil
}

func TestCurve(t *testing.T) {
	preds := []Prediction{
		{Confidence: 0.95, Correct: true},
		{Confidence: 0.95, Correct: true},
		{Confidence: 0.65, Correct: true},
		{Confidence: 0.65, Correct: false},
	}
	bins, ece := Curve(preds, 10)

	require.Len(t, bins, 2)
	assert.Equal(t, 2, bins[0].Count)
	assert.InDelta(t, 0.6, bins[0].Lower, 1e-9)
	assert.InDelta(t, 0.5, bins[0].Accuracy, 1e-9)
	assert.InDelta(t, 1.0, bins[1].Accuracy, 1e-9)
	// 0.5*|0.5-0.65| + 0.5*|1-0.95|
	assert.InDelta(t, 0.1, ece, 1e-9)
}

func TestCurve_EdgeConfidences(t *testing.T) {
	bins, ece := Curve([]Prediction{{Confidence: 1, Correct: true}, {Confidence: 0, Correct: false}}, 0)
	require.Len(t, bins, 2)
	assert.Equal(t, 0.0, bins[0].Lower)
	assert.Equal(t, 1.0, bins[1].Upper)
	assert.InDelta(t, 0, ece, 1e-9)

	bins, ece = Curve(nil, 10)
	assert.Empty(t, bins)
	assert.Zero(t, ece)
}

func TestRun_Scoring(t *testing.T) {
	title := "Lunch"
	p := &fakeParser{events: map[string]*types.NormalizedEvent{
		"lunch at noon": {
			Status: types.StatusOK,
			Title:  &title,
			FieldResults: map[types.FieldName]types.FieldResult{
				types.FieldTitle:    {Value: "Lunch", Confidence: 0.9},
				types.FieldStart:    {Value: "2025-01-01T12:00:00Z", Confidence: 0.85},
				types.FieldLocation: {Value: "noon", Confidence: 0.55},
				types.FieldRecurrence: {
					Value:      types.Recurrence{Freq: "DAILY", Interval: 1, RRule: "FREQ=DAILY;INTERVAL=1"},
					Confidence: 0.7,
				},
			},
		},
		"invoice 12": {Status: types.StatusNotFound},
	}}
	set := &Set{Cases: []Case{
		{
			Text: "lunch at noon",
			Expect: map[types.FieldName]any{
				types.FieldTitle:      "lunch",
				types.FieldStart:      "2025-01-01T07:00:00-05:00",
				types.FieldRecurrence: "INTERVAL=1;FREQ=DAILY",
			},
			Absent: []types.FieldName{types.FieldLocation},
		},
		{Text: "invoice 12", NotFound: true},
		{Text: "unparseable"},
	}}

	rep, err := Run(context.Background(), p, set, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Cases)
	assert.Equal(t, 5, rep.Predictions)
	assert.InDelta(t, 0.8, rep.Accuracy, 1e-9)
	require.Len(t, rep.Mismatches, 1)
	assert.Equal(t, types.FieldLocation, rep.Mismatches[0].Field)
	assert.Equal(t, "absent", rep.Mismatches[0].Want)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "unparseable")

	for _, req := range p.got {
		assert.True(t, req.NoCache)
		assert.Equal(t, types.ModeAudit, req.Mode)
	}
}

func TestRun_SetDefaults(t *testing.T) {
	p := &fakeParser{events: map[string]*types.NormalizedEvent{"a": {}, "b": {}}}
	set := &Set{Timezone: "Europe/Paris", Cases: []Case{{Text: "a"}, {Text: "b", Timezone: "UTC"}}}

	_, err := Run(context.Background(), p, set, 0)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", p.got[0].Timezone)
	assert.Equal(t, "UTC", p.got[1].Timezone)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, &fakeParser{}, &Set{Cases: []Case{{Text: "a"}}}, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatches(t *testing.T) {
	assert.True(t, matches(types.FieldParticipants, []string{"Raj", "ana"}, []any{"Ana", "raj"}))
	assert.False(t, matches(types.FieldParticipants, []string{"Raj"}, []any{"Ana", "Raj"}))
	assert.False(t, matches(types.FieldStart, "tomorrow", "2025-01-01T12:00:00Z"))
	assert.True(t, matches(types.FieldLocation, " Room 4", "room 4"))
}

func TestLoad(t *testing.T) {
	set, err := Load(filepath.Join("testdata", "reference.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "UTC", set.Timezone)
	assert.False(t, set.ReferenceTime.IsZero())
	require.NotEmpty(t, set.Cases)
	assert.Equal(t, "Starbucks", set.Cases[0].Expect[types.FieldLocation])
}

func TestLoad_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cases:\n  - text: x\n    expect:\n      color: red\n"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, types.ErrUnknownField)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRun_ReferenceSet(t *testing.T) {
	set, err := Load(filepath.Join("testdata", "reference.yaml"))
	require.NoError(t, err)

	rep, err := Run(context.Background(), pipeline.New(pipeline.Options{}), set, 10)
	require.NoError(t, err)

	assert.Empty(t, rep.Errors)
	assert.Positive(t, rep.Predictions)
	assert.GreaterOrEqual(t, rep.ECE, 0.0)
	assert.LessOrEqual(t, rep.ECE, 1.0)
	var n int
	for _, b := range rep.Bins {
		n += b.Count
	}
	assert.Equal(t, rep.Predictions, n)
	for _, m := range rep.Mismatches {
		assert.NotEqual(t, set.Cases[0].Text, m.Text, "%s: got %s want %s", m.Field, m.Got, m.Want)
	}

	var buf bytes.Buffer
	require.NoError(t, rep.Write(&buf))
	assert.Contains(t, buf.String(), "ece:")
}
