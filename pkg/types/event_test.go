// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *NormalizedEvent {
	title := "Book club"
	start := time.Date(2025, 1, 7, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rec := Recurrence{Freq: "WEEKLY", Interval: 2, ByDay: []string{"TU"}, RRule: "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU"}
	return &NormalizedEvent{
		Status:          StatusOK,
		Title:           &title,
		StartDatetime:   &start,
		EndDatetime:     &end,
		Recurrence:      &rec,
		Participants:    []string{"Ana", "Raj"},
		ConfidenceScore: 0.82,
		Warnings:        []string{},
		ParsingPath:     []string{StagePattern},
		FieldResults: map[FieldName]FieldResult{
			FieldTitle:        {Value: "Book club", Source: SourcePattern, Confidence: 0.85, Span: &Span{Start: 0, End: 9}},
			FieldStart:        {Value: "2025-01-07T18:00:00Z", Source: SourcePattern, Confidence: 0.9},
			FieldRecurrence:   {Value: rec, Source: SourcePattern, Confidence: 0.8},
			FieldParticipants: {Value: []string{"Ana", "Raj"}, Source: SourcePattern, Confidence: 0.7},
		},
		ConfidenceBreakdown: map[FieldName]float64{FieldTitle: 0.85},
		Alternates: []Alternate{{
			Field:  FieldRecurrence,
			Result: FieldResult{Value: Recurrence{Freq: "WEEKLY", Interval: 1, RRule: "FREQ=WEEKLY"}, Confidence: 0.5},
			Reason: "lower confidence",
		}},
	}
}

func TestUnmarshalJSON_RoundTripIsByteIdentical(t *testing.T) {
	first, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	var decoded NormalizedEvent
	require.NoError(t, json.Unmarshal(first, &decoded))
	second, err := json.Marshal(&decoded)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.IsType(t, Recurrence{}, decoded.FieldResults[FieldRecurrence].Value)
	assert.IsType(t, []string{}, decoded.FieldResults[FieldParticipants].Value)
	assert.IsType(t, Recurrence{}, decoded.Alternates[0].Result.Value)
}

func TestUnmarshalJSON_BadValue(t *testing.T) {
	var ev NormalizedEvent
	err := json.Unmarshal([]byte(`{"field_results":{"participants":{"value":"Ana"}}}`), &ev)
	assert.Error(t, err)
}

func TestClone_IsDeep(t *testing.T) {
	orig := sampleEvent()
	c := orig.Clone()
	require.Equal(t, orig, c)

	*c.Title = "changed"
	c.Participants[0] = "Zed"
	c.Recurrence.ByDay[0] = "MO"
	c.FieldResults[FieldTitle].Span.Start = 4
	c.Warnings = append(c.Warnings, "x")

	assert.Equal(t, "Book club", *orig.Title)
	assert.Equal(t, "Ana", orig.Participants[0])
	assert.Equal(t, "TU", orig.Recurrence.ByDay[0])
	assert.Equal(t, 0, orig.FieldResults[FieldTitle].Span.Start)
	assert.Empty(t, orig.Warnings)

	var nilEvent *NormalizedEvent
	assert.Nil(t, nilEvent.Clone())
}

func TestClone_KeepsEmptySlices(t *testing.T) {
	ev := &NormalizedEvent{Status: StatusOK, Warnings: []string{}, ParsingPath: []string{}}
	c := ev.Clone()
	require.NotNil(t, c.Warnings)
	require.NotNil(t, c.ParsingPath)

	out, err := json.Marshal(c.View(ModeDefault))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"warnings":[]`)
}

func TestView(t *testing.T) {
	ev := sampleEvent()

	audit := ev.View(ModeAudit)
	assert.Equal(t, ev, audit)

	plain := ev.View(ModeDefault)
	assert.Nil(t, plain.ParsingPath)
	assert.Nil(t, plain.FieldResults)
	assert.Nil(t, plain.ConfidenceBreakdown)
	assert.Nil(t, plain.Alternates)
	assert.Equal(t, ev.Title, plain.Title)
	assert.NotNil(t, ev.FieldResults, "View does not mutate the source")
}

func TestFound(t *testing.T) {
	assert.True(t, sampleEvent().Found())
	assert.False(t, (&NormalizedEvent{Status: StatusNotFound}).Found())
	var ev *NormalizedEvent
	assert.False(t, ev.Found())
}

func TestMissingContextError(t *testing.T) {
	err := &MissingContextError{Expressions: []string{"tomorrow", "at noon"}, MissingTime: true, MissingZone: true}
	assert.Equal(t, "missing reference time and timezone for relative expression(s): tomorrow, at noon", err.Error())
}
