// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize canonicalizes raw request text before extraction and
// computes the cache fingerprint. Normalized text keeps a byte-offset map
// back to the original input so extracted spans can be reported against
// what the caller actually sent.
package normalize

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/eventparse/pkg/types"
)

// Text is normalized input plus, for every byte of S, the original byte
// range it was derived from.
type Text struct {
	S        string
	Original string

	starts []int
	ends   []int
}

// meridiemPattern matches the spellings of a clock time with am/pm
// ("9a.m", "9:00 A M", "9 am", "9 P.M.") so they collapse to "9am".
var meridiemPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::([0-5]\d))?\s?([ap])\.?\s?m\b\.?`)

// dashPattern matches en and em dashes and the spaced forms of a hyphen
// used between range endpoints.
var dashPattern = regexp.MustCompile(`\s*[\x{2012}\x{2013}\x{2014}\x{2015}]\s*`)

// New normalizes raw text: NFKC per rune, whitespace runs collapsed to a
// single space and trimmed, dashes folded to '-', and clock-time spellings
// canonicalized.
func New(raw string) Text {
	t := fold(raw)
	t = t.replace(dashPattern, func(_ []string) string { return "-" })
	t = t.replace(meridiemPattern, func(g []string) string {
		out := g[1]
		if g[2] != "" && g[2] != "00" {
			out += ":" + g[2]
		}
		return out + strings.ToLower(g[3]) + "m"
	})
	return t
}

// fold applies NFKC and whitespace collapsing in one pass.
func fold(raw string) Text {
	var b strings.Builder
	t := Text{Original: raw}
	pendingSpace := -1
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])
		if unicode.IsSpace(r) {
			if pendingSpace < 0 && b.Len() > 0 {
				pendingSpace = i
			}
			i += size
			continue
		}
		if pendingSpace >= 0 {
			b.WriteByte(' ')
			t.starts = append(t.starts, pendingSpace)
			t.ends = append(t.ends, i)
			pendingSpace = -1
		}
		out := norm.NFKC.String(raw[i : i+size])
		b.WriteString(out)
		for j := 0; j < len(out); j++ {
			t.starts = append(t.starts, i)
			t.ends = append(t.ends, i+size)
		}
		i += size
	}
	t.S = b.String()
	return t
}

// replace rewrites every match of re with fn(submatches). Bytes produced
// by a replacement map to the whole original range of the match.
func (t Text) replace(re *regexp.Regexp, fn func([]string) string) Text {
	matches := re.FindAllStringSubmatchIndex(t.S, -1)
	if len(matches) == 0 {
		return t
	}
	out := Text{Original: t.Original}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(t.S[last:m[0]])
		out.starts = append(out.starts, t.starts[last:m[0]]...)
		out.ends = append(out.ends, t.ends[last:m[0]]...)

		groups := make([]string, len(m)/2)
		for g := range groups {
			if m[2*g] >= 0 {
				groups[g] = t.S[m[2*g]:m[2*g+1]]
			}
		}
		repl := fn(groups)
		origStart, origEnd := t.starts[m[0]], t.ends[m[1]-1]
		b.WriteString(repl)
		for range len(repl) {
			out.starts = append(out.starts, origStart)
			out.ends = append(out.ends, origEnd)
		}
		last = m[1]
	}
	b.WriteString(t.S[last:])
	out.starts = append(out.starts, t.starts[last:]...)
	out.ends = append(out.ends, t.ends[last:]...)
	out.S = b.String()
	return out
}

// OriginalSpan maps a byte range of the normalized text back to the
// original text.
func (t Text) OriginalSpan(start, end int) types.Span {
	if start < 0 {
		start = 0
	}
	if end > len(t.S) {
		end = len(t.S)
	}
	if start >= end || len(t.starts) == 0 {
		return types.Span{}
	}
	return types.Span{Start: t.starts[start], End: t.ends[end-1]}
}

// Residual returns the normalized text with every given span (in
// normalized coordinates) blanked out, whitespace collapsed again.
func (t Text) Residual(consumed []types.Span) string {
	if len(consumed) == 0 {
		return t.S
	}
	buf := []byte(t.S)
	for _, sp := range consumed {
		for i := max(sp.Start, 0); i < sp.End && i < len(buf); i++ {
			buf[i] = ' '
		}
	}
	return strings.Join(strings.Fields(string(buf)), " ")
}

// clockRelativePattern matches expressions resolved against the reference
// clock rather than the reference day ("in 2 hours", "30 mins from now").
var clockRelativePattern = regexp.MustCompile(`\b(?:in\s+(?:an?|half\s+an|\S+)\s+(?:minutes?|mins?|hours?|hrs?)\b|from\s+now\b|right\s+now\b|later\s+today\b|asap\b|in\s+a\s+(?:bit|few)\b)`)

// ClockRelative reports whether t contains an expression whose value
// depends on the reference time of day.
func ClockRelative(t Text) bool {
	return clockRelativePattern.MatchString(strings.ToLower(t.S))
}

// Fingerprint is the cache key for a request: a SHA-256 over the
// case-folded, whitespace-collapsed text, the reference day and UTC offset
// in the caller's zone (so zone aliases with the same offset share
// entries) and the requested field set. Clock-relative text also keys on
// the reference minute.
func Fingerprint(t Text, ref time.Time, loc *time.Location, fields types.FieldSet) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(strings.Fields(strings.ToLower(t.S)), " ")))
	h.Write([]byte{0})
	if !ref.IsZero() && loc != nil {
		local := ref.In(loc)
		_, offset := local.Zone()
		day := local.Format(time.DateOnly)
		if ClockRelative(t) {
			day = local.Format("2006-01-02T15:04")
		}
		fmt.Fprintf(h, "%s|%d", day, offset)
	} else if loc != nil {
		_, offset := time.Now().In(loc).Zone()
		fmt.Fprintf(h, "-|%d", offset)
	}
	h.Write([]byte{0})
	h.Write([]byte(fields.String()))
	return fmt.Sprintf("%x", h.Sum(nil))
}
