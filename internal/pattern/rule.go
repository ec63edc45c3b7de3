// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pattern

import (
	"regexp"
	"time"

	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/pkg/types"
)

// Kind classifies what a rule recognizes.
type Kind int

const (
	KindDate Kind = iota
	KindTime
	KindRange
	KindEndTime
	KindDuration
	KindRecurrence
	KindTitle
	KindLocation
	KindParticipants
	KindDescription
)

var kindNames = [...]string{
	"date", "time", "range", "end_time", "duration", "recurrence",
	"title", "location", "participants", "description",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Reference is the caller's clock. Relative expressions resolve against it.
type Reference struct {
	Now time.Time
	Loc *time.Location
}

// Complete reports whether both the instant and the zone were supplied.
func (r Reference) Complete() bool {
	return !r.Now.IsZero() && r.Loc != nil
}

// local returns the reference instant in the reference zone.
func (r Reference) local() time.Time {
	return r.Now.In(r.Loc)
}

// location returns the zone used for wall-clock values, UTC when the caller
// supplied none.
func (r Reference) location() *time.Location {
	if r.Loc == nil {
		return time.UTC
	}
	return r.Loc
}

// submatch wraps one regexp match over the normalized text.
type submatch struct {
	text string
	idx  []int
}

func (s submatch) has(i int) bool {
	return 2*i+1 < len(s.idx) && s.idx[2*i] >= 0
}

func (s submatch) group(i int) string {
	if !s.has(i) {
		return ""
	}
	return s.text[s.idx[2*i]:s.idx[2*i+1]]
}

func (s submatch) span(i int) types.Span {
	if !s.has(i) {
		return types.Span{}
	}
	return types.Span{Start: s.idx[2*i], End: s.idx[2*i+1]}
}

// buildFunc converts a match into a typed value. It may narrow the span to
// the part that carries the value; ok=false rejects the match.
type buildFunc func(sm submatch, ref Reference) (value any, span types.Span, ok bool)

// Rule is one row of the pattern table.
type Rule struct {
	Name        string
	Kind        Kind
	Pattern     *regexp.Regexp
	Specificity confidence.Specificity

	// Relative rules need a complete Reference. Without one the match is
	// recorded as unresolved and reported through MissingContextError.
	Relative bool

	build buildFunc
}

// Match is a rule hit over the normalized text.
type Match struct {
	Rule        string
	Kind        Kind
	Span        types.Span
	Text        string
	Specificity confidence.Specificity
	Value       any

	// Unresolved is set for relative matches found without a reference.
	Unresolved bool
}

// Table is an ordered rule set. Earlier rules win ties between matches of
// equal length and kind.
type Table []Rule

// kindsFor maps requested fields to the rule kinds that can produce them.
func kindsFor(fields types.FieldSet) map[Kind]bool {
	kinds := make(map[Kind]bool)
	if fields.Contains(types.FieldStart) || fields.Contains(types.FieldEnd) {
		kinds[KindDate] = true
		kinds[KindTime] = true
		kinds[KindRange] = true
	}
	if fields.Contains(types.FieldEnd) {
		kinds[KindEndTime] = true
		kinds[KindDuration] = true
	}
	if fields.Contains(types.FieldRecurrence) {
		kinds[KindRecurrence] = true
	}
	if fields.Contains(types.FieldTitle) {
		kinds[KindTitle] = true
	}
	if fields.Contains(types.FieldLocation) {
		kinds[KindLocation] = true
	}
	if fields.Contains(types.FieldParticipants) {
		kinds[KindParticipants] = true
	}
	if fields.Contains(types.FieldDescription) {
		kinds[KindDescription] = true
	}
	return kinds
}

// run applies one rule to text.
func (r Rule) run(text string, ref Reference) []Match {
	var out []Match
	for _, idx := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
		sm := submatch{text: text, idx: idx}
		whole := sm.span(0)
		if r.Relative && !ref.Complete() {
			out = append(out, Match{
				Rule: r.Name, Kind: r.Kind, Span: whole, Text: sm.group(0),
				Specificity: r.Specificity, Unresolved: true,
			})
			continue
		}
		v, span, ok := r.build(sm, ref)
		if !ok {
			continue
		}
		if span.Len() <= 0 {
			span = whole
		}
		out = append(out, Match{
			Rule: r.Name, Kind: r.Kind, Span: span, Text: text[span.Start:span.End],
			Specificity: r.Specificity, Value: v,
		})
	}
	return out
}
