// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pdiddy/eventparse/internal/pattern"
	"github.com/pdiddy/eventparse/pkg/types"
)

func init() {
	retryDelay = time.Millisecond
}

// mockBackend replays a scripted sequence of answers.
type mockBackend struct {
	calls   int32
	answers []func(ctx context.Context) (Answer, error)
	lastReq Call
	pingErr error
}

func (m *mockBackend) Complete(ctx context.Context, call Call) (Answer, error) {
	n := int(atomic.AddInt32(&m.calls, 1)) - 1
	m.lastReq = call
	if n >= len(m.answers) {
		n = len(m.answers) - 1
	}
	return m.answers[n](ctx)
}

func (m *mockBackend) Ping(context.Context) error { return m.pingErr }

func (m *mockBackend) Name() string { return "mock" }

func answer(kv map[string]any) func(context.Context) (Answer, error) {
	return func(context.Context) (Answer, error) {
		ans := make(Answer, len(kv))
		for k, v := range kv {
			b, _ := json.Marshal(v)
			ans[k] = b
		}
		return ans, nil
	}
}

func fail(err error) func(context.Context) (Answer, error) {
	return func(context.Context) (Answer, error) { return nil, err }
}

func hang(ctx context.Context) (Answer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func adapter(b Backend, cfg types.EnhancementConfig) *Adapter {
	cfg.Provider = types.ProviderAnthropic
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	cfg.RequestsPerMinute = 60000
	return New(b, cfg, nil)
}

var utc = pattern.Reference{Now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), Loc: time.UTC}

func TestEnhance_DecodesRequestedFields(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){answer(map[string]any{
		"title":        "Budget sync",
		"start":        "2025-01-03T09:30",
		"participants": []string{"Ana", " ", "Raj"},
		"recurrence":   "FREQ=WEEKLY;BYDAY=MO,WE",
		"location":     nil,
	})}}
	a := adapter(b, types.EnhancementConfig{})

	out := a.Enhance(context.Background(), Request{
		Residual: "budget sync with Ana and Raj",
		Original: "Budget sync with Ana and Raj",
		Fields:   []types.FieldName{types.FieldTitle, types.FieldStart, types.FieldParticipants, types.FieldRecurrence, types.FieldLocation},
		Ref:      utc,
	})

	require.False(t, out.Unavailable, "%v", out.Err)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "Budget sync", out.Fields[types.FieldTitle].Value)
	assert.Equal(t, &types.Span{Start: 0, End: 11}, out.Fields[types.FieldTitle].Span)
	assert.Equal(t, "2025-01-03T09:30:00Z", out.Fields[types.FieldStart].Value)
	assert.Nil(t, out.Fields[types.FieldStart].Span)
	assert.Equal(t, []string{"Ana", "Raj"}, out.Fields[types.FieldParticipants].Value)
	rec := out.Fields[types.FieldRecurrence].Value.(types.Recurrence)
	assert.Equal(t, "WEEKLY", rec.Freq)
	assert.Equal(t, []string{"MO", "WE"}, rec.ByDay)
	_, hasLocation := out.Fields[types.FieldLocation]
	assert.False(t, hasLocation, "null values are not results")

	for f, r := range out.Fields {
		assert.Equal(t, types.SourceLLM, r.Source, f)
		assert.LessOrEqual(t, r.Confidence, 0.75, f)
		assert.Greater(t, r.Confidence, 0.0, f)
	}

	assert.Equal(t, "2025-01-01T10:00 Wednesday", b.lastReq.Reference)
	assert.Equal(t, "UTC", b.lastReq.Timezone)
	props := b.lastReq.Schema["properties"].(map[string]any)
	assert.Len(t, props, 5)
}

func TestEnhance_ConfidenceCap(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){answer(map[string]any{"title": "Standup"})}}
	a := adapter(b, types.EnhancementConfig{MaxConfidence: 0.4})

	out := a.Enhance(context.Background(), Request{Residual: "standup", Fields: []types.FieldName{types.FieldTitle}})
	assert.Equal(t, 0.4, out.Fields[types.FieldTitle].Confidence)
}

func TestEnhance_DropsUnrequestedFields(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){answer(map[string]any{
		"title":    "Overwritten",
		"start":    "2030-01-01T00:00",
		"location": "Room 4",
	})}}
	a := adapter(b, types.EnhancementConfig{})

	out := a.Enhance(context.Background(), Request{Residual: "in room 4", Fields: []types.FieldName{types.FieldLocation}, Ref: utc})

	require.False(t, out.Unavailable)
	assert.Len(t, out.Fields, 1)
	assert.Equal(t, "Room 4", out.Fields[types.FieldLocation].Value)
	assert.Equal(t, []string{"start", "title"}, out.Dropped)
}

func TestEnhance_RetriesMalformedOnce(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){
		fail(ErrMalformed),
		answer(map[string]any{"title": "Standup"}),
	}}
	a := adapter(b, types.EnhancementConfig{})

	out := a.Enhance(context.Background(), Request{Residual: "standup", Fields: []types.FieldName{types.FieldTitle}})

	require.False(t, out.Unavailable)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "Standup", out.Fields[types.FieldTitle].Value)
}

func TestEnhance_WrongTypeIsMalformed(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){
		answer(map[string]any{"start": "next tuesday-ish"}),
		answer(map[string]any{"start": 42}),
	}}
	a := adapter(b, types.EnhancementConfig{})

	out := a.Enhance(context.Background(), Request{Residual: "x", Fields: []types.FieldName{types.FieldStart}, Ref: utc})

	assert.True(t, out.Unavailable)
	assert.Equal(t, 2, out.Attempts)
	assert.Empty(t, out.Fields)
	assert.ErrorIs(t, out.Err, types.ErrEnhancementUnavailable)
	assert.ErrorIs(t, out.Err, ErrMalformed)
}

func TestEnhance_TimeoutTwiceIsUnavailable(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){hang}}
	a := adapter(b, types.EnhancementConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	out := a.Enhance(context.Background(), Request{Residual: "x", Fields: []types.FieldName{types.FieldTitle}})

	assert.True(t, out.Unavailable)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&b.calls))
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnhance_RateLimitWaitIsBounded(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){answer(map[string]any{"title": "x"})}}
	a := adapter(b, types.EnhancementConfig{Timeout: 20 * time.Millisecond})
	a.limiter = rate.NewLimiter(rate.Every(time.Minute), 1)
	require.True(t, a.limiter.Allow())

	start := time.Now()
	out := a.Enhance(context.Background(), Request{Residual: "x", Fields: []types.FieldName{types.FieldTitle}})

	assert.True(t, out.Unavailable)
	assert.ErrorIs(t, out.Err, types.ErrEnhancementUnavailable)
	assert.Contains(t, out.Err.Error(), "rate limiter")
	assert.Zero(t, atomic.LoadInt32(&b.calls))
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnhance_TransportErrorIsNotRetried(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){fail(errors.New("connection refused"))}}
	a := adapter(b, types.EnhancementConfig{})

	out := a.Enhance(context.Background(), Request{Residual: "x", Fields: []types.FieldName{types.FieldTitle}})

	assert.True(t, out.Unavailable)
	assert.Equal(t, 1, out.Attempts)
}

func TestEnhance_CallerCancelled(t *testing.T) {
	b := &mockBackend{answers: []func(context.Context) (Answer, error){hang}}
	a := adapter(b, types.EnhancementConfig{Timeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := a.Enhance(ctx, Request{Residual: "x", Fields: []types.FieldName{types.FieldTitle}})

	assert.True(t, out.Unavailable)
	assert.Equal(t, 1, out.Attempts, "a cancelled caller gets no retry")
}

func TestParseTimestamp(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		in     string
		want   string
		allDay bool
	}{
		{"2025-01-03T09:30", "2025-01-03T09:30:00-05:00", false},
		{"2025-01-03 09:30:00", "2025-01-03T09:30:00-05:00", false},
		{"2025-01-03T14:30:00Z", "2025-01-03T09:30:00-05:00", false},
		{"2025-01-03", "2025-01-03T00:00:00-05:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, allDay, err := parseTimestamp(tt.in, ny)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(time.RFC3339))
			assert.Equal(t, tt.allDay, allDay)
		})
	}

	_, _, err = parseTimestamp("soon", ny)
	assert.Error(t, err)
}

func TestSchemaForListsOnlyRequestedFields(t *testing.T) {
	s := schemaFor([]types.FieldName{types.FieldTitle, types.FieldEnd})
	props := s["properties"].(map[string]any)
	assert.Len(t, props, 2)
	assert.Contains(t, props, "title")
	assert.Contains(t, props, "end")
	assert.Equal(t, false, s["additionalProperties"])
	assert.Equal(t, []string{"title", "end"}, s["required"])
}

func TestPingDelegates(t *testing.T) {
	down := errors.New("down")
	a := adapter(&mockBackend{pingErr: down}, types.EnhancementConfig{})
	assert.ErrorIs(t, a.Ping(context.Background()), down)
	assert.Equal(t, "mock", a.Backend())
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(types.EnhancementConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = NewBackend(types.EnhancementConfig{AIConfig: types.AIConfig{Provider: types.ProviderAnthropic}}, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	b, err = NewBackend(types.EnhancementConfig{AIConfig: types.AIConfig{Provider: types.ProviderOpenAI, BaseURL: "http://localhost:11434/v1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Name())

	_, err = NewBackend(types.EnhancementConfig{AIConfig: types.AIConfig{Provider: "mystery"}}, nil)
	assert.Error(t, err)
}
