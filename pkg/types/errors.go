// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// Input errors. These are rejected before the pipeline runs.
var (
	ErrEmptyText       = errors.New("text is empty")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidInput    = errors.New("invalid input")
)

// ErrNoEventFound marks a clean negative result: no essential field could be
// resolved by any tier. The pipeline reports it in-band through
// NormalizedEvent.Status; callers that prefer an error can test for it.
var ErrNoEventFound = errors.New("no event found")

// ErrEnhancementUnavailable means the language-model tier exhausted its
// retry budget. It is recorded as a warning, never returned to a client.
var ErrEnhancementUnavailable = errors.New("language-model enhancement unavailable")

// MissingContextError is returned when the text contains relative or
// ambiguous temporal expressions and the caller did not supply a reference
// time or timezone.
type MissingContextError struct {
	// Expressions are the matched phrases that need a reference clock.
	Expressions []string

	// MissingTime and MissingZone say which part of the context is absent.
	MissingTime bool
	MissingZone bool
}

func (e *MissingContextError) Error() string {
	var missing []string
	if e.MissingTime {
		missing = append(missing, "reference time")
	}
	if e.MissingZone {
		missing = append(missing, "timezone")
	}
	return fmt.Sprintf("missing %s for relative expression(s): %s",
		strings.Join(missing, " and "), strings.Join(e.Expressions, ", "))
}

// ValidationConflict records two extractions that disagree and the policy
// that resolved them. It is informational and never fails a request.
type ValidationConflict struct {
	Field     FieldName
	Kept      string
	Discarded string
	Reason    string
}

func (c ValidationConflict) Error() string {
	return fmt.Sprintf("%s conflict: kept %q, discarded %q (%s)", c.Field, c.Kept, c.Discarded, c.Reason)
}
