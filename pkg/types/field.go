// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strings"
)

// FieldName identifies one semantic field of a calendar event.
type FieldName string

const (
	FieldTitle        FieldName = "title"
	FieldStart        FieldName = "start"
	FieldEnd          FieldName = "end"
	FieldRecurrence   FieldName = "recurrence"
	FieldLocation     FieldName = "location"
	FieldDescription  FieldName = "description"
	FieldParticipants FieldName = "participants"
)

// AllFields lists every field in canonical order. Processing and output
// iterate in this order so results never depend on map ordering.
var AllFields = []FieldName{
	FieldTitle,
	FieldStart,
	FieldEnd,
	FieldRecurrence,
	FieldLocation,
	FieldDescription,
	FieldParticipants,
}

// Essential reports whether the field is required for a minimally useful
// event (title, start, end).
func (f FieldName) Essential() bool {
	return f == FieldTitle || f == FieldStart || f == FieldEnd
}

// Temporal reports whether the field holds a point in time.
func (f FieldName) Temporal() bool {
	return f == FieldStart || f == FieldEnd
}

// Valid reports whether f is a known field name.
func (f FieldName) Valid() bool {
	for _, k := range AllFields {
		if k == f {
			return true
		}
	}
	return false
}

// FieldSet is an ordered, de-duplicated set of field names. A nil or empty
// set means every field.
type FieldSet []FieldName

// ParseFieldSet parses a comma-separated list such as "title,start".
// Whitespace and case are ignored. Unknown names yield ErrUnknownField.
func ParseFieldSet(s string) (FieldSet, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	seen := make(map[FieldName]bool)
	for _, part := range strings.Split(s, ",") {
		name := FieldName(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if !name.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, part)
		}
		seen[name] = true
	}
	var out FieldSet
	for _, f := range AllFields {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out, nil
}

// Contains reports whether f is part of the set. An empty set contains
// every field.
func (s FieldSet) Contains(f FieldName) bool {
	if len(s) == 0 {
		return true
	}
	for _, x := range s {
		if x == f {
			return true
		}
	}
	return false
}

// Resolve returns the explicit list of fields the set stands for.
func (s FieldSet) Resolve() []FieldName {
	if len(s) == 0 {
		return append([]FieldName(nil), AllFields...)
	}
	return append([]FieldName(nil), s...)
}

// String renders the set in canonical order, "*" for all fields.
func (s FieldSet) String() string {
	if len(s) == 0 {
		return "*"
	}
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = string(f)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Source identifies the extraction tier that produced a FieldResult.
type Source string

const (
	SourcePattern             Source = "pattern"
	SourceDeterministicBackup Source = "deterministic_backup"
	SourceLLM                 Source = "llm"
	SourceCache               Source = "cache"
)

// Span is a half-open byte range [Start, End) into the original request text.
type Span struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Recurrence is a normalized repeating-event rule.
type Recurrence struct {
	// Freq is the RFC 5545 frequency (DAILY, WEEKLY, MONTHLY, YEARLY).
	Freq string `json:"freq" yaml:"freq"`

	// Interval is the step between occurrences (2 for "every other").
	Interval int `json:"interval" yaml:"interval"`

	// ByDay lists two-letter weekday codes (MO, TU, ...).
	ByDay []string `json:"by_day,omitempty" yaml:"by_day,omitempty"`

	// RRule is the canonical RRULE value, e.g. "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU".
	RRule string `json:"rrule" yaml:"rrule"`
}

// FieldResult is one extracted value for one field with its provenance.
type FieldResult struct {
	// Value is the extracted datum: an RFC 3339 string for start/end, a
	// string for title/location/description, []string for participants,
	// Recurrence for recurrence. Nil when the field was not found.
	Value any `json:"value" yaml:"value"`

	// Source is the tier that produced the value.
	Source Source `json:"source" yaml:"source"`

	// Confidence approximates the probability the value is correct.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Span locates the value in the original text; nil for derived values.
	Span *Span `json:"span" yaml:"span"`
}

// Found reports whether the result carries a value.
func (r FieldResult) Found() bool {
	return r.Value != nil
}

// Candidate is a FieldResult plus the normalized-text ranges it was read
// from. Tiers exchange candidates; only the FieldResult reaches clients.
type Candidate struct {
	FieldResult

	// Parts are byte ranges of the normalized text. A date and a time read
	// from separate places yield two parts.
	Parts []Span `json:"-" yaml:"-"`
}

// Better reports whether r should win over o under the tie-break rule:
// higher confidence first, then the leftmost span, then a spanned result
// over a span-less one.
func (r FieldResult) Better(o FieldResult) bool {
	if r.Confidence != o.Confidence {
		return r.Confidence > o.Confidence
	}
	switch {
	case r.Span != nil && o.Span != nil:
		return r.Span.Start < o.Span.Start
	case r.Span != nil:
		return true
	default:
		return false
	}
}
