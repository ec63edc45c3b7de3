// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders parsed events for calendar clients.
package export

import (
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/pdiddy/eventparse/pkg/types"
)

// ErrNothingToExport is returned for events without a start.
var ErrNothingToExport = errors.New("event has no start to export")

const productID = "-//eventparse//eventparse//EN"

// ICS renders ev as an iCalendar document holding one VEVENT. E-mail
// participants become attendees; other names are listed as contacts.
func ICS(ev *types.NormalizedEvent, uid string, stamp time.Time) (string, error) {
	if !ev.Found() || ev.StartDatetime == nil {
		return "", ErrNothingToExport
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	ve := cal.AddEvent(uid)
	ve.SetDtStampTime(stamp.UTC())
	if ev.AllDay {
		ve.SetAllDayStartAt(*ev.StartDatetime)
		if ev.EndDatetime != nil {
			ve.SetAllDayEndAt(*ev.EndDatetime)
		}
	} else {
		ve.SetStartAt(ev.StartDatetime.UTC())
		if ev.EndDatetime != nil {
			ve.SetEndAt(ev.EndDatetime.UTC())
		}
	}
	if ev.Title != nil {
		ve.SetSummary(*ev.Title)
	}
	if ev.Location != nil {
		ve.SetLocation(*ev.Location)
	}
	if ev.Description != nil {
		ve.SetDescription(*ev.Description)
	}
	if ev.Recurrence != nil && ev.Recurrence.RRule != "" {
		ve.AddRrule(strings.TrimPrefix(ev.Recurrence.RRule, "RRULE:"))
	}
	for _, p := range ev.Participants {
		if strings.Contains(p, "@") {
			ve.AddAttendee(p)
			continue
		}
		ve.AddProperty(ical.ComponentProperty("CONTACT"), p)
	}
	if ev.NeedsConfirmation {
		ve.SetStatus(ical.ObjectStatusTentative)
	} else {
		ve.SetStatus(ical.ObjectStatusConfirmed)
	}
	return cal.Serialize(), nil
}
