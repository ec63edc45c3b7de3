// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// EventStatus distinguishes a parsed event from a clean negative result.
type EventStatus string

const (
	StatusOK       EventStatus = "ok"
	StatusNotFound EventStatus = "not_found"
)

// Stage names recorded in ParsingPath. They match the Source values of the
// tiers that produce field results.
const (
	StagePattern = string(SourcePattern)
	StageBackup  = string(SourceDeterministicBackup)
	StageLLM     = string(SourceLLM)
	StageCache   = string(SourceCache)
	StageTotal   = "total"
)

// Mode selects how much provenance a response carries.
type Mode string

const (
	ModeDefault Mode = ""
	ModeAudit   Mode = "audit"
)

// Alternate is another plausible interpretation of a field that was not
// chosen. Alternates are only rendered in audit mode.
type Alternate struct {
	Field  FieldName   `json:"field" yaml:"field"`
	Result FieldResult `json:"result" yaml:"result"`
	Reason string      `json:"reason" yaml:"reason"`
}

// NormalizedEvent is the canonical pipeline output. It is built once per
// request (or loaded whole from the cache) and never mutated afterwards;
// View returns shaped copies.
type NormalizedEvent struct {
	Status EventStatus `json:"status" yaml:"status"`

	Title         *string     `json:"title" yaml:"title"`
	StartDatetime *time.Time  `json:"start_datetime" yaml:"start_datetime"`
	EndDatetime   *time.Time  `json:"end_datetime" yaml:"end_datetime"`
	AllDay        bool        `json:"all_day" yaml:"all_day"`
	Location      *string     `json:"location" yaml:"location"`
	Description   *string     `json:"description" yaml:"description"`
	Recurrence    *Recurrence `json:"recurrence" yaml:"recurrence"`
	Participants  []string    `json:"participants" yaml:"participants"`

	// ConfidenceScore is the aggregate, weighted toward essential fields and
	// never above the lowest essential-field confidence.
	ConfidenceScore float64 `json:"confidence_score" yaml:"confidence_score"`

	// Warnings are ordered, human-readable caveats.
	Warnings []string `json:"warnings" yaml:"warnings"`

	// NeedsConfirmation is true iff ConfidenceScore < 0.6.
	NeedsConfirmation bool `json:"needs_confirmation" yaml:"needs_confirmation"`

	CacheHit bool `json:"cache_hit" yaml:"cache_hit"`

	// Audit-only fields.
	ParsingPath         []string                  `json:"parsing_path,omitempty" yaml:"parsing_path,omitempty"`
	FieldResults        map[FieldName]FieldResult `json:"field_results,omitempty" yaml:"field_results,omitempty"`
	ConfidenceBreakdown map[FieldName]float64     `json:"confidence_breakdown,omitempty" yaml:"confidence_breakdown,omitempty"`
	Alternates          []Alternate               `json:"alternates,omitempty" yaml:"alternates,omitempty"`
}

// Found reports whether the event is a positive result.
func (e *NormalizedEvent) Found() bool {
	return e != nil && e.Status == StatusOK
}

// Clone returns a deep copy of the event.
func (e *NormalizedEvent) Clone() *NormalizedEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Title = cloneString(e.Title)
	c.Location = cloneString(e.Location)
	c.Description = cloneString(e.Description)
	if e.StartDatetime != nil {
		t := *e.StartDatetime
		c.StartDatetime = &t
	}
	if e.EndDatetime != nil {
		t := *e.EndDatetime
		c.EndDatetime = &t
	}
	if e.Recurrence != nil {
		r := *e.Recurrence
		r.ByDay = slices.Clone(e.Recurrence.ByDay)
		c.Recurrence = &r
	}
	// slices.Clone keeps an empty slice empty rather than nil so the JSON
	// contract keys still render as [].
	c.Participants = slices.Clone(e.Participants)
	c.Warnings = slices.Clone(e.Warnings)
	c.ParsingPath = slices.Clone(e.ParsingPath)
	if e.FieldResults != nil {
		c.FieldResults = make(map[FieldName]FieldResult, len(e.FieldResults))
		for k, v := range e.FieldResults {
			if v.Span != nil {
				sp := *v.Span
				v.Span = &sp
			}
			c.FieldResults[k] = v
		}
	}
	c.ConfidenceBreakdown = maps.Clone(e.ConfidenceBreakdown)
	c.Alternates = slices.Clone(e.Alternates)
	return &c
}

// View returns a copy shaped for the given mode: audit keeps provenance,
// the default mode strips parsing path, field results, the confidence
// breakdown and alternates.
func (e *NormalizedEvent) View(mode Mode) *NormalizedEvent {
	c := e.Clone()
	if c == nil || mode == ModeAudit {
		return c
	}
	c.ParsingPath = nil
	c.FieldResults = nil
	c.ConfidenceBreakdown = nil
	c.Alternates = nil
	return c
}

// UnmarshalJSON restores typed FieldResult values (Recurrence, []string,
// string) so a decoded event encodes back to the same bytes.
func (e *NormalizedEvent) UnmarshalJSON(data []byte) error {
	type plain NormalizedEvent
	if err := json.Unmarshal(data, (*plain)(e)); err != nil {
		return err
	}
	for f, r := range e.FieldResults {
		v, err := typedValue(f, r.Value)
		if err != nil {
			return fmt.Errorf("field %s: %w", f, err)
		}
		r.Value = v
		e.FieldResults[f] = r
	}
	for i, a := range e.Alternates {
		v, err := typedValue(a.Field, a.Result.Value)
		if err != nil {
			return fmt.Errorf("alternate %s: %w", a.Field, err)
		}
		e.Alternates[i].Result.Value = v
	}
	return nil
}

func typedValue(f FieldName, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	switch f {
	case FieldRecurrence:
		var r Recurrence
		err = json.Unmarshal(raw, &r)
		return r, err
	case FieldParticipants:
		var names []string
		err = json.Unmarshal(raw, &names)
		return names, err
	default:
		var s string
		err = json.Unmarshal(raw, &s)
		return s, err
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Request is a single Parse invocation.
type Request struct {
	// Text is the raw, unnormalized input.
	Text string `json:"text" yaml:"text"`

	// ReferenceTime anchors relative expressions ("tomorrow"). Zero means
	// not supplied.
	ReferenceTime time.Time `json:"reference_time" yaml:"reference_time"`

	// Timezone is an IANA zone name. Empty means not supplied.
	Timezone string `json:"timezone" yaml:"timezone"`

	// Mode selects audit output.
	Mode Mode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Fields restricts processing and output; empty means all fields.
	Fields FieldSet `json:"fields,omitempty" yaml:"fields,omitempty"`

	// NoCache bypasses cache reads and writes.
	NoCache bool `json:"-" yaml:"-"`
}

// Metadata accompanies every response but is not part of the cached event.
type Metadata struct {
	RequestID string `json:"request_id" yaml:"request_id"`

	// StageLatencyMS maps stage name to wall time in milliseconds.
	StageLatencyMS map[string]float64 `json:"stage_latency_ms" yaml:"stage_latency_ms"`
}

// Result is what the pipeline returns for one request.
type Result struct {
	Event    *NormalizedEvent
	Metadata Metadata
}
