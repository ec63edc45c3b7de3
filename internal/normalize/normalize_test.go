// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/eventparse/pkg/types"
)

func TestNewCanonicalizesMeridiem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"call at 9a.m", "call at 9am"},
		{"call at 9:00 A M", "call at 9am"},
		{"call at 9am", "call at 9am"},
		{"call at 9 pm.", "call at 9pm"},
		{"call at 9:30 P.M. sharp", "call at 9:30pm sharp"},
		{"an amazing 2 amigos", "an amazing 2 amigos"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.in).S)
		})
	}
}

func TestNewCollapsesWhitespaceAndDashes(t *testing.T) {
	got := New("  Standup \t\n 9 – 10 a.m.  ").S
	assert.Equal(t, "Standup 9-10am", got)
}

func TestNewAppliesNFKC(t *testing.T) {
	// Fullwidth digits and the "ﬁ" ligature fold to ASCII.
	got := New("３pm ﬁnal review").S
	assert.Equal(t, "3pm final review", got)
}

func TestOriginalSpanMapsThroughRewrites(t *testing.T) {
	raw := "Lunch   at 12:30 P.M. with Ana"
	txt := New(raw)
	require.Equal(t, "Lunch at 12:30pm with Ana", txt.S)

	i := strings.Index(txt.S, "12:30pm")
	sp := txt.OriginalSpan(i, i+len("12:30pm"))
	assert.Equal(t, "12:30 P.M.", raw[sp.Start:sp.End])

	j := strings.Index(txt.S, "Ana")
	sp = txt.OriginalSpan(j, j+3)
	assert.Equal(t, "Ana", raw[sp.Start:sp.End])
}

func TestOriginalSpanOutOfRange(t *testing.T) {
	txt := New("abc")
	assert.Equal(t, types.Span{}, txt.OriginalSpan(2, 2))
	assert.Equal(t, types.Span{Start: 0, End: 3}, txt.OriginalSpan(-4, 99))
}

func TestResidual(t *testing.T) {
	txt := New("Meeting at Starbucks next Friday 2pm")
	consumed := []types.Span{
		{Start: 0, End: 7},
		{Start: 21, End: 32},
	}
	assert.Equal(t, "at Starbucks 2pm", txt.Residual(consumed))
	assert.Equal(t, txt.S, txt.Residual(nil))
}

func TestFingerprintStableAcrossCaseAndWhitespace(t *testing.T) {
	ref := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	a := Fingerprint(New("Lunch  TOMORROW at noon"), ref, ny, nil)
	b := Fingerprint(New("lunch tomorrow at noon"), ref.Add(3*time.Hour), ny, nil)
	assert.Equal(t, a, b, "same day in the same zone shares a key")
}

func TestFingerprintDistinguishesContext(t *testing.T) {
	ref := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	txt := New("lunch tomorrow at noon")

	base := Fingerprint(txt, ref, ny, nil)
	assert.NotEqual(t, base, Fingerprint(txt, ref.Add(24*time.Hour), ny, nil), "different reference day")
	assert.NotEqual(t, base, Fingerprint(txt, ref, time.UTC, nil), "different offset")
	assert.NotEqual(t, base, Fingerprint(txt, ref, ny, types.FieldSet{types.FieldTitle}), "different field set")
}

func TestFingerprintZoneAliases(t *testing.T) {
	ref := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	a, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	b, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	txt := New("standup tomorrow 9am")
	assert.Equal(t, Fingerprint(txt, ref, a, nil), Fingerprint(txt, ref, b, nil))
}

func TestFingerprintClockRelativeKeysOnMinute(t *testing.T) {
	ref := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	txt := New("Call Bob in 2 hours")
	assert.True(t, ClockRelative(txt))
	assert.NotEqual(t, Fingerprint(txt, ref, time.UTC, nil), Fingerprint(txt, ref.Add(6*time.Hour), time.UTC, nil))
	assert.Equal(t, Fingerprint(txt, ref, time.UTC, nil), Fingerprint(txt, ref.Add(20*time.Second), time.UTC, nil))

	for _, s := range []string{"ping me 30 mins from now", "standup in half an hour", "sync later today", "call ASAP"} {
		assert.True(t, ClockRelative(New(s)), s)
	}
	for _, s := range []string{"lunch tomorrow at noon", "dentist in two weeks", "review in 3 days"} {
		assert.False(t, ClockRelative(New(s)), s)
	}
}
