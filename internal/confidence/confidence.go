// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package confidence scores raw extraction candidates. Scores are meant to
// read as approximate probabilities of correctness; internal/calibrate
// checks them against a labeled reference set.
package confidence

import (
	"math"
	"strings"

	"github.com/pdiddy/eventparse/pkg/types"
)

// Specificity ranks how much a match pins down its value.
type Specificity int

const (
	// Inferred values come from heuristics: a bare hour, a leading phrase.
	Inferred Specificity = iota
	// Vocabulary values come from the fixed phrase tables ("after lunch").
	Vocabulary
	// Contextual values need the reference clock ("next Friday").
	Contextual
	// Specific values are unambiguous on their own ("Jan 3 2025", "2pm").
	Specific
	// Explicit values are labelled or fully specified ("Subject: ...",
	// "2025-01-03T14:00Z").
	Explicit
)

var specificityNames = [...]string{"inferred", "vocabulary", "contextual", "specific", "explicit"}

func (s Specificity) String() string {
	if s < 0 || int(s) >= len(specificityNames) {
		return "unknown"
	}
	return specificityNames[s]
}

// baseScores maps specificity to the starting score. The ordering is
// strict, which is what keeps the model monotonic.
var baseScores = map[Specificity]float64{
	Inferred:   0.55,
	Vocabulary: 0.72,
	Contextual: 0.85,
	Specific:   0.90,
	Explicit:   0.95,
}

// Base returns the unadjusted score for a specificity.
func Base(s Specificity) float64 {
	return baseScores[s]
}

// noiseTokens are metadata markers from tickets and forms. Their presence
// near a match suggests the digits or words matched are identifiers.
var noiseTokens = []string{
	"item id", "id:", "id #", "status:", "assignee", "ticket", "priority",
	"reporter", "created:", "updated:", "ref:", "sku", "invoice", "order #",
}

const (
	defaultNoiseWindow  = 32
	defaultNoisePenalty = 0.15
	maxNoiseHits        = 3
)

// Candidate is the part of a raw match the model looks at.
type Candidate struct {
	Field       types.FieldName
	Source      types.Source
	Specificity Specificity

	// Span is in normalized-text coordinates.
	Span types.Span
}

// Context carries the surrounding text a candidate was found in.
type Context struct {
	// Text is the full normalized request text.
	Text string
}

// Model scores candidates. The zero value uses default parameters.
type Model struct {
	// NoiseWindow is how many bytes on each side of a match are searched
	// for metadata tokens.
	NoiseWindow int

	// NoisePenalty is subtracted per distinct metadata token found.
	NoisePenalty float64
}

// Score returns the confidence for c in ctx. It is deterministic and pure.
func (m Model) Score(c Candidate, ctx Context) float64 {
	score := Base(c.Specificity) * tierFactor(c.Source)
	score -= m.noisePenalty() * float64(m.noiseHits(c.Span, ctx.Text))
	return Clamp(score, 0, 1)
}

// Combine scores a value assembled from several parts (a date and a time).
// A composite is only as trustworthy as its weakest part.
func Combine(parts ...float64) float64 {
	if len(parts) == 0 {
		return 0
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = math.Min(out, p)
	}
	return out
}

// Clamp bounds v to [lo, hi] and rounds to four decimals so scores compare
// and serialize stably.
func Clamp(v, lo, hi float64) float64 {
	v = math.Max(lo, math.Min(hi, v))
	return math.Round(v*10000) / 10000
}

func tierFactor(s types.Source) float64 {
	switch s {
	case types.SourceDeterministicBackup:
		return 0.85
	case types.SourceLLM:
		return 0.8
	default:
		return 1
	}
}

func (m Model) noisePenalty() float64 {
	if m.NoisePenalty > 0 {
		return m.NoisePenalty
	}
	return defaultNoisePenalty
}

func (m Model) noiseHits(span types.Span, text string) int {
	window := m.NoiseWindow
	if window <= 0 {
		window = defaultNoiseWindow
	}
	lo := max(0, span.Start-window)
	hi := min(len(text), span.End+window)
	if lo >= hi {
		return 0
	}
	near := strings.ToLower(text[lo:hi])
	hits := 0
	for _, tok := range noiseTokens {
		if strings.Contains(near, tok) {
			hits++
			if hits == maxNoiseHits {
				break
			}
		}
	}
	return hits
}
