// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldSet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FieldSet
		err  error
	}{
		{name: "empty means all", in: "  ", want: nil},
		{name: "canonical order", in: "location,title", want: FieldSet{FieldTitle, FieldLocation}},
		{name: "case and spacing", in: " Start , END ", want: FieldSet{FieldStart, FieldEnd}},
		{name: "duplicates and blanks", in: "title,,title", want: FieldSet{FieldTitle}},
		{name: "unknown", in: "title,color", err: ErrUnknownField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFieldSet(tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldSet(t *testing.T) {
	var all FieldSet
	assert.True(t, all.Contains(FieldParticipants))
	assert.Equal(t, AllFields, all.Resolve())
	assert.Equal(t, "*", all.String())

	s := FieldSet{FieldStart, FieldTitle}
	assert.False(t, s.Contains(FieldEnd))
	assert.Equal(t, "start,title", s.String())

	r := s.Resolve()
	r[0] = FieldEnd
	assert.Equal(t, FieldStart, s[0], "Resolve returns a copy")
}

func TestFieldClasses(t *testing.T) {
	for _, f := range AllFields {
		assert.True(t, f.Valid())
	}
	assert.False(t, FieldName("color").Valid())
	assert.True(t, FieldEnd.Essential())
	assert.False(t, FieldLocation.Essential())
	assert.True(t, FieldStart.Temporal())
	assert.False(t, FieldTitle.Temporal())
}

func TestSpan(t *testing.T) {
	a := Span{Start: 2, End: 6}
	assert.Equal(t, 4, a.Len())
	assert.True(t, a.Overlaps(Span{Start: 5, End: 9}))
	assert.False(t, a.Overlaps(Span{Start: 6, End: 9}), "half-open")
}

func TestBetter(t *testing.T) {
	left := FieldResult{Confidence: 0.8, Span: &Span{Start: 0, End: 3}}
	right := FieldResult{Confidence: 0.8, Span: &Span{Start: 5, End: 8}}
	bare := FieldResult{Confidence: 0.8}

	assert.True(t, FieldResult{Confidence: 0.9}.Better(left))
	assert.True(t, left.Better(right))
	assert.False(t, right.Better(left))
	assert.True(t, right.Better(bare))
	assert.False(t, bare.Better(right))
}
