// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enhance is the language-model tier. It asks a model to fill the
// fields the deterministic tiers left unresolved, using only the residual
// text, and validates the structured answer before anything reaches the
// router.
package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/internal/pattern"
	"github.com/pdiddy/eventparse/pkg/types"
)

// ErrMalformed marks a response that is not a schema-conforming tool call:
// free text, undecodable arguments, or values of the wrong type.
var ErrMalformed = errors.New("malformed model response")

// retryDelay is the pause before the single retry. Tests override this to
// avoid real sleeps.
var retryDelay = 200 * time.Millisecond

const (
	maxAttempts  = 2
	limiterBurst = 5
)

// Backend abstracts the model API so tests can supply a mock. Each
// implementation forces a single structured tool call and returns its
// arguments.
type Backend interface {
	Complete(ctx context.Context, call Call) (Answer, error)
	Ping(ctx context.Context) error
	Name() string
}

// Call is one prompt sent to a Backend.
type Call struct {
	// Residual is the request text minus spans already claimed.
	Residual string

	// Fields are the only fields the model may return.
	Fields []types.FieldName

	// Reference renders the caller's clock for relative phrases, empty
	// when unknown.
	Reference string
	Timezone  string

	// Schema is the JSON schema of the tool arguments.
	Schema map[string]any
}

// Answer is the decoded tool arguments keyed by field name.
type Answer map[string]json.RawMessage

// Request is what the router asks for.
type Request struct {
	// Residual is the normalized text with locked spans removed.
	Residual string

	// Original is the untouched request text, used to locate spans.
	Original string

	Fields []types.FieldName
	Ref    pattern.Reference
}

// Outcome is the adapter's result. It never carries an error for the
// router to propagate: a failed call yields Unavailable and no fields.
type Outcome struct {
	Fields map[types.FieldName]types.FieldResult

	// AllDay is set when the model returned a start with no time of day.
	AllDay bool

	// Dropped lists answer keys that were not requested.
	Dropped []string

	Attempts    int
	Unavailable bool
	Err         error
}

// Adapter guards a Backend with a rate limit, a per-attempt timeout, one
// retry and answer validation. It is safe for concurrent use.
type Adapter struct {
	backend Backend
	cfg     types.EnhancementConfig
	limiter *rate.Limiter
	model   confidence.Model
	log     *zap.Logger
}

// New creates an Adapter around backend.
func New(backend Backend, cfg types.EnhancementConfig, log *zap.Logger) *Adapter {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		backend: backend,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), limiterBurst),
		log:     log.Named("enhance"),
	}
}

// Backend returns the wrapped backend's name.
func (a *Adapter) Backend() string { return a.backend.Name() }

// Ping probes the backend for the liveness check.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.backend.Ping(ctx)
}

// Enhance asks the model for req.Fields. Timeouts and malformed answers are
// retried once with the same payload; any other failure, or a second one,
// yields Outcome{Unavailable: true}.
func (a *Adapter) Enhance(ctx context.Context, req Request) Outcome {
	call := Call{
		Residual: req.Residual,
		Fields:   req.Fields,
		Schema:   schemaFor(req.Fields),
	}
	if !req.Ref.Now.IsZero() {
		loc := req.Ref.Loc
		if loc == nil {
			loc = time.UTC
		}
		call.Reference = req.Ref.Now.In(loc).Format("2006-01-02T15:04 Monday")
	}
	if req.Ref.Loc != nil {
		call.Timezone = req.Ref.Loc.String()
	}

	var (
		out     Outcome
		lastErr error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			if err := ctx.Err(); err != nil {
				lastErr = err
				break
			}
		}

		out.Attempts++
		res, err := a.attempt(ctx, call, req)
		if err == nil {
			res.Attempts = out.Attempts
			a.log.Debug("enhancement succeeded",
				zap.String("backend", a.backend.Name()),
				zap.Int("attempts", res.Attempts),
				zap.Int("fields", len(res.Fields)),
				zap.Strings("dropped", res.Dropped))
			return res
		}
		lastErr = err
		a.log.Warn("enhancement attempt failed",
			zap.String("backend", a.backend.Name()),
			zap.Int("attempt", out.Attempts),
			zap.Error(err))
		if !retryable(ctx, err) {
			break
		}
	}
	out.Unavailable = true
	out.Err = fmt.Errorf("%w: %w", types.ErrEnhancementUnavailable, lastErr)
	return out
}

func (a *Adapter) attempt(ctx context.Context, call Call, req Request) (Outcome, error) {
	actx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	// Waiting for a rate-limit slot counts against the attempt's timeout.
	if err := a.limiter.Wait(actx); err != nil {
		return Outcome{}, fmt.Errorf("rate limiter: %w", err)
	}
	ans, err := a.backend.Complete(actx, call)
	if err != nil {
		if actx.Err() != nil && ctx.Err() == nil {
			return Outcome{}, fmt.Errorf("attempt timed out after %v: %w", a.cfg.Timeout, context.DeadlineExceeded)
		}
		return Outcome{}, err
	}
	return a.decode(ans, req)
}

// retryable reports whether a failed attempt earns the single retry: its
// own timeout or a malformed answer, never a cancelled caller.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformed)
}

// decode validates an answer against the request. Keys that were not
// requested are dropped; a requested key with a value of the wrong type
// makes the whole answer malformed.
func (a *Adapter) decode(ans Answer, req Request) (Outcome, error) {
	out := Outcome{Fields: make(map[types.FieldName]types.FieldResult)}
	requested := make(map[types.FieldName]bool, len(req.Fields))
	for _, f := range req.Fields {
		requested[f] = true
	}
	loc := req.Ref.Loc
	if loc == nil {
		loc = time.UTC
	}

	for _, key := range sortedKeys(ans) {
		f := types.FieldName(key)
		if !requested[f] {
			out.Dropped = append(out.Dropped, key)
			continue
		}
		raw := ans[key]
		if isNull(raw) {
			continue
		}
		value, allDay, err := decodeValue(f, raw, loc)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: field %s: %v", ErrMalformed, f, err)
		}
		if value == nil {
			continue
		}
		if f == types.FieldStart {
			out.AllDay = allDay
		}
		res := types.FieldResult{
			Value:      value,
			Source:     types.SourceLLM,
			Confidence: a.score(f),
		}
		if s, ok := value.(string); ok && !f.Temporal() {
			if i := strings.Index(strings.ToLower(req.Original), strings.ToLower(s)); i >= 0 {
				res.Span = &types.Span{Start: i, End: i + len(s)}
			}
		}
		out.Fields[f] = res
	}
	return out, nil
}

func (a *Adapter) score(f types.FieldName) float64 {
	s := a.model.Score(confidence.Candidate{
		Field:       f,
		Source:      types.SourceLLM,
		Specificity: confidence.Contextual,
	}, confidence.Context{})
	return confidence.Clamp(s, 0, a.cfg.MaxConfidence)
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// localLayouts are the timestamp forms accepted without an offset. They are
// read as wall-clock time in the caller's zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func decodeValue(f types.FieldName, raw json.RawMessage, loc *time.Location) (any, bool, error) {
	switch f {
	case types.FieldParticipants:
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, false, err
		}
		var out []string
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
		if len(out) == 0 {
			return nil, false, nil
		}
		return out, false, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false, nil
	}
	switch f {
	case types.FieldStart, types.FieldEnd:
		t, allDay, err := parseTimestamp(s, loc)
		if err != nil {
			return nil, false, err
		}
		return t.Format(time.RFC3339), allDay, nil
	case types.FieldRecurrence:
		rec, err := pattern.ParseRecurrence(s)
		if err != nil {
			return nil, false, err
		}
		return rec, false, nil
	default:
		return s, false, nil
	}
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), false, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", s)
}
