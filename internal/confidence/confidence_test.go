// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/eventparse/pkg/types"
)

func TestScoreMonotonicInSpecificity(t *testing.T) {
	var m Model
	ctx := Context{Text: "Meeting next Friday 2pm"}
	span := types.Span{Start: 8, End: 19}

	prev := -1.0
	for s := Inferred; s <= Explicit; s++ {
		got := m.Score(Candidate{Field: types.FieldStart, Source: types.SourcePattern, Specificity: s, Span: span}, ctx)
		assert.Greater(t, got, prev, "specificity %s", s)
		prev = got
	}
}

func TestScoreNoisePenalty(t *testing.T) {
	var m Model
	clean := Context{Text: "Budget review tomorrow at 3pm"}
	noisy := Context{Text: "Item ID 4821, Status: Closed, Assignee: J. Lee"}

	c := Candidate{Field: types.FieldTitle, Source: types.SourcePattern, Specificity: Inferred, Span: types.Span{Start: 0, End: 7}}
	assert.InDelta(t, 0.55, m.Score(c, clean), 1e-9)
	assert.InDelta(t, 0.10, m.Score(c, noisy), 1e-9, "three metadata tokens in range")
}

func TestScoreTierFactor(t *testing.T) {
	var m Model
	ctx := Context{Text: "x"}
	pattern := m.Score(Candidate{Source: types.SourcePattern, Specificity: Specific}, ctx)
	backup := m.Score(Candidate{Source: types.SourceDeterministicBackup, Specificity: Specific}, ctx)
	llm := m.Score(Candidate{Source: types.SourceLLM, Specificity: Specific}, ctx)
	assert.Greater(t, pattern, backup)
	assert.Greater(t, backup, llm)
}

func TestScoreDeterministic(t *testing.T) {
	m := Model{NoiseWindow: 10, NoisePenalty: 0.2}
	ctx := Context{Text: "ticket 55 due friday"}
	c := Candidate{Specificity: Contextual, Span: types.Span{Start: 14, End: 20}}
	assert.Equal(t, m.Score(c, ctx), m.Score(c, ctx))
}

func TestCombine(t *testing.T) {
	assert.Equal(t, 0.0, Combine())
	assert.Equal(t, 0.85, Combine(0.9, 0.85, 0.95))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(1.3, 0, 1))
	assert.Equal(t, 0.6, Clamp(0.2, 0.6, 0.79))
	assert.Equal(t, 0.1235, Clamp(0.123456, 0, 1))
}

func TestSpecificityString(t *testing.T) {
	assert.Equal(t, "explicit", Explicit.String())
	assert.Equal(t, "unknown", Specificity(42).String())
}
