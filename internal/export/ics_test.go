// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/eventparse/pkg/types"
)

func ptr[T any](v T) *T { return &v }

var stamp = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func parseOne(t *testing.T, doc string) *ical.VEvent {
	t.Helper()
	cal, err := ical.ParseCalendar(strings.NewReader(doc))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	return events[0]
}

func prop(ve *ical.VEvent, p ical.ComponentProperty) string {
	if v := ve.GetProperty(p); v != nil {
		return v.Value
	}
	return ""
}

func TestICS_TimedRecurringEvent(t *testing.T) {
	start := time.Date(2025, 1, 7, 18, 0, 0, 0, time.FixedZone("", -5*3600))
	ev := &types.NormalizedEvent{
		Status:        types.StatusOK,
		Title:         ptr("Book club"),
		StartDatetime: &start,
		EndDatetime:   ptr(start.Add(time.Hour)),
		Location:      ptr("Room 4"),
		Recurrence:    &types.Recurrence{Freq: "WEEKLY", Interval: 2, ByDay: []string{"TU"}, RRule: "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU"},
		Participants:  []string{"ana@example.com", "Raj"},
	}

	doc, err := ICS(ev, "req-1", stamp)
	require.NoError(t, err)

	ve := parseOne(t, doc)
	assert.Equal(t, "req-1", prop(ve, ical.ComponentPropertyUniqueId))
	assert.Equal(t, "Book club", prop(ve, ical.ComponentPropertySummary))
	assert.Equal(t, "Room 4", prop(ve, ical.ComponentPropertyLocation))
	assert.Equal(t, "20250107T230000Z", prop(ve, ical.ComponentPropertyDtStart))
	assert.Equal(t, "20250108T000000Z", prop(ve, ical.ComponentPropertyDtEnd))
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU", prop(ve, ical.ComponentPropertyRrule))
	assert.Equal(t, "CONFIRMED", prop(ve, ical.ComponentPropertyStatus))
	assert.Contains(t, doc, "ana@example.com")
	assert.Contains(t, doc, "CONTACT:Raj")
}

func TestICS_AllDayTentative(t *testing.T) {
	start := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	ev := &types.NormalizedEvent{
		Status:            types.StatusOK,
		Title:             ptr("Offsite"),
		StartDatetime:     &start,
		EndDatetime:       ptr(start.Add(24 * time.Hour)),
		AllDay:            true,
		NeedsConfirmation: true,
	}

	doc, err := ICS(ev, "req-2", stamp)
	require.NoError(t, err)

	ve := parseOne(t, doc)
	assert.Equal(t, "20250331", prop(ve, ical.ComponentPropertyDtStart))
	assert.Equal(t, "TENTATIVE", prop(ve, ical.ComponentPropertyStatus))
}

func TestICS_NothingToExport(t *testing.T) {
	_, err := ICS(&types.NormalizedEvent{Status: types.StatusNotFound}, "x", stamp)
	assert.ErrorIs(t, err, ErrNothingToExport)

	_, err = ICS(&types.NormalizedEvent{Status: types.StatusOK, Title: ptr("Workout")}, "x", stamp)
	assert.ErrorIs(t, err, ErrNothingToExport)
}
