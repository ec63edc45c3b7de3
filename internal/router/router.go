// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package router drives one request through the extraction tiers. It keeps
// a per-field ledger, locks fields as soon as a tier clears their
// threshold, and sends only the still-open fields and the unclaimed text to
// the language-model tier.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/pdiddy/eventparse/internal/backup"
	"github.com/pdiddy/eventparse/internal/enhance"
	"github.com/pdiddy/eventparse/internal/normalize"
	"github.com/pdiddy/eventparse/internal/pattern"
	"github.com/pdiddy/eventparse/pkg/types"
)

// Warnings attached by the router.
const (
	WarnEnhancementUnavailable = "language-model enhancement unavailable; results may be incomplete"
	warnLLMFallback            = "fell back to language-model parsing for: %s"
)

// PatternTier is the first extraction tier.
type PatternTier interface {
	Extract(ctx context.Context, txt normalize.Text, ref pattern.Reference, fields types.FieldSet) (*pattern.Extraction, error)
}

// BackupTier is the deterministic second tier.
type BackupTier interface {
	Resolve(ctx context.Context, req backup.Request) (backup.Outcome, error)
}

// Enhancer is the language-model tier. It reports failure in-band.
type Enhancer interface {
	Enhance(ctx context.Context, req enhance.Request) enhance.Outcome
}

// EnhancementStatus says what happened to the language-model tier.
type EnhancementStatus string

const (
	EnhancementSkipped     EnhancementStatus = "skipped"
	EnhancementOK          EnhancementStatus = "ok"
	EnhancementUnavailable EnhancementStatus = "unavailable"
)

// Router wires the tiers together. A nil backup or enhancer disables that
// tier. Router holds no per-request state.
type Router struct {
	cfg      types.PipelineConfig
	pattern  PatternTier
	backup   BackupTier
	enhancer Enhancer
	log      *zap.Logger
}

// New creates a Router.
func New(cfg types.PipelineConfig, p PatternTier, b BackupTier, e Enhancer, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{cfg: cfg.WithDefaults(), pattern: p, backup: b, enhancer: e, log: log.Named("router")}
}

// Input is one request as the router sees it.
type Input struct {
	Text   normalize.Text
	Ref    pattern.Reference
	Fields types.FieldSet
}

// Slot is the ledger entry for one field.
type Slot struct {
	Result types.FieldResult

	// Parts are the normalized-text ranges the value was read from.
	Parts []types.Span

	Found bool

	// Locked fields cleared their tier's threshold and are never touched
	// again.
	Locked bool

	// Absent marks an optional field no deterministic tier found ("none
	// found"). It only rides along on an enhancement call that happens
	// anyway.
	Absent bool
}

// Routed is the router's output, handed to the merger.
type Routed struct {
	Text   normalize.Text
	Fields []types.FieldName
	Slots  map[types.FieldName]Slot

	// Path lists the stages invoked, in order.
	Path []string

	// States lists every state visited, ending with Merged.
	States []State

	Warnings   []string
	Alternates []types.Alternate
	Conflicts  []types.ValidationConflict

	AllDay          bool
	Duration        time.Duration
	EventIndicative bool

	Enhancement EnhancementStatus
	Latency     map[string]time.Duration
}

// Route runs the state machine to Merged. The only error it returns is a
// *types.MissingContextError from the pattern tier or a cancelled context.
func (r *Router) Route(ctx context.Context, in Input) (*Routed, error) {
	rt := &routing{
		Router: r,
		in:     in,
		out: &Routed{
			Text:        in.Text,
			Fields:      in.Fields.Resolve(),
			Slots:       make(map[types.FieldName]Slot),
			States:      []State{Init},
			Enhancement: EnhancementSkipped,
			Latency:     make(map[string]time.Duration),
		},
	}
	for st := Init; st != Merged; {
		var err error
		switch st {
		case PatternPass:
			err = rt.patternPass(ctx)
		case BackupPass:
			err = rt.backupPass(ctx)
		case EnhancementPass:
			rt.enhancementPass(ctx)
		}
		if err != nil {
			return nil, err
		}
		st = Next(st, rt.signals(st))
		rt.out.States = append(rt.out.States, st)
	}
	r.log.Debug("routed",
		zap.Strings("path", rt.out.Path),
		zap.String("enhancement", string(rt.out.Enhancement)))
	return rt.out, nil
}

// routing is the request-scoped state. It is owned by one goroutine and
// discarded when Route returns.
type routing struct {
	*Router
	in  Input
	out *Routed
}

func (rt *routing) stage(name string, start time.Time) {
	rt.out.Path = append(rt.out.Path, name)
	rt.out.Latency[name] += time.Since(start)
}

func (rt *routing) patternPass(ctx context.Context) error {
	start := time.Now()
	x, err := rt.pattern.Extract(ctx, rt.in.Text, rt.in.Ref, rt.in.Fields)
	rt.stage(types.StagePattern, start)
	if err != nil {
		return err
	}

	for _, f := range rt.out.Fields {
		c, ok := x.Fields[f]
		switch {
		case ok:
			rt.out.Slots[f] = Slot{
				Result: c.FieldResult,
				Parts:  c.Parts,
				Found:  true,
				Locked: c.Confidence >= rt.cfg.Threshold(f),
			}
		case !f.Essential():
			rt.out.Slots[f] = Slot{Absent: true}
		default:
			rt.out.Slots[f] = Slot{}
		}
	}
	rt.out.Warnings = append(rt.out.Warnings, x.Warnings...)
	rt.out.Alternates = append(rt.out.Alternates, x.Alternates...)
	rt.out.Conflicts = append(rt.out.Conflicts, x.Conflicts...)
	for _, c := range x.Conflicts {
		rt.log.Info("validation conflict",
			zap.String("field", string(c.Field)),
			zap.String("kept", c.Kept),
			zap.String("discarded", c.Discarded),
			zap.String("reason", c.Reason))
	}
	rt.out.AllDay = x.AllDay
	rt.out.Duration = x.Duration
	rt.out.EventIndicative = x.EventIndicative
	return nil
}

func (rt *routing) backupPass(ctx context.Context) error {
	req := backup.Request{Text: rt.in.Text, Ref: rt.in.Ref, Duration: rt.out.Duration}
	for _, f := range []types.FieldName{types.FieldStart, types.FieldEnd} {
		if s, ok := rt.out.Slots[f]; ok && !s.Locked {
			req.Fields = append(req.Fields, f)
		}
	}
	if s := rt.out.Slots[types.FieldStart]; s.Found {
		if v, ok := s.Result.Value.(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				req.PatternStart = &t
			}
		}
	}

	start := time.Now()
	res, err := rt.backup.Resolve(ctx, req)
	rt.stage(types.StageBackup, start)
	if err != nil {
		return err
	}

	// The backup end is derived from the backup start, so the two are
	// taken together or not at all.
	_, wantStart := rt.out.Slots[types.FieldStart]
	startTaken := false
	for _, f := range req.Fields {
		c, ok := res.Fields[f]
		if !ok {
			continue
		}
		if f == types.FieldEnd && wantStart {
			if !startTaken {
				continue
			}
			if e := rt.out.Slots[f]; !e.Locked {
				rt.out.Slots[f] = Slot{}
			}
		}
		if !rt.offer(f, c.FieldResult, c.Parts) {
			continue
		}
		if c.Confidence >= rt.cfg.BackupAccept {
			s := rt.out.Slots[f]
			s.Locked = true
			rt.out.Slots[f] = s
		}
		if f == types.FieldStart {
			startTaken = true
			rt.out.AllDay = res.AllDay
			rt.out.EventIndicative = true
		}
	}
	return nil
}

func (rt *routing) enhancementPass(ctx context.Context) {
	fields := rt.pending()
	for _, f := range rt.out.Fields {
		if rt.out.Slots[f].Absent {
			fields = append(fields, f)
		}
	}
	requested := make(map[types.FieldName]bool, len(fields))
	for _, f := range fields {
		requested[f] = true
	}

	start := time.Now()
	res := rt.enhancer.Enhance(ctx, enhance.Request{
		Residual: rt.residual(),
		Original: rt.in.Text.Original,
		Fields:   fields,
		Ref:      rt.in.Ref,
	})
	rt.stage(types.StageLLM, start)

	if res.Unavailable {
		rt.out.Enhancement = EnhancementUnavailable
		rt.out.Warnings = append(rt.out.Warnings, WarnEnhancementUnavailable)
		rt.log.Warn("enhancement unavailable", zap.Int("attempts", res.Attempts), zap.Error(res.Err))
		return
	}
	rt.out.Enhancement = EnhancementOK

	var used []string
	for _, f := range rt.out.Fields {
		v, ok := res.Fields[f]
		if !ok {
			continue
		}
		if !requested[f] {
			rt.log.Warn("discarding unrequested enhancement field", zap.String("field", string(f)))
			continue
		}
		if !rt.offer(f, v, nil) {
			continue
		}
		used = append(used, string(f))
		if f == types.FieldStart {
			rt.out.AllDay = res.AllDay
			// An open end was derived from the replaced start.
			if e, ok := rt.out.Slots[types.FieldEnd]; ok && !e.Locked {
				rt.out.Slots[types.FieldEnd] = Slot{}
			}
		}
	}
	if len(used) > 0 {
		rt.out.Warnings = append(rt.out.Warnings, fmt.Sprintf(warnLLMFallback, strings.Join(used, ", ")))
	}
}

// offer replaces the field's value when the slot is open and v wins the
// tie-break. It reports whether v was taken.
func (rt *routing) offer(f types.FieldName, v types.FieldResult, parts []types.Span) bool {
	s := rt.out.Slots[f]
	if s.Locked {
		return false
	}
	if s.Found && !v.Better(s.Result) {
		return false
	}
	rt.out.Slots[f] = Slot{Result: v, Parts: parts, Found: true}
	return true
}

// pending lists requested fields that are neither locked nor marked absent.
func (rt *routing) pending() []types.FieldName {
	var out []types.FieldName
	for _, f := range rt.out.Fields {
		s := rt.out.Slots[f]
		if !s.Locked && !s.Absent {
			out = append(out, f)
		}
	}
	return out
}

// residual is the normalized text minus every span a locked field claimed.
func (rt *routing) residual() string {
	var consumed []types.Span
	for _, f := range rt.out.Fields {
		if s := rt.out.Slots[f]; s.Locked {
			consumed = append(consumed, s.Parts...)
		}
	}
	return rt.in.Text.Residual(consumed)
}

func (rt *routing) signals(st State) Signals {
	var sig Signals
	if st == PatternPass && rt.backup != nil && rt.in.Ref.Complete() {
		s, ok := rt.out.Slots[types.FieldStart]
		sig.NeedBackup = ok && !s.Locked
	}
	if st == PatternPass || st == BackupPass {
		sig.NeedEnhancement = rt.enhancer != nil &&
			rt.out.EventIndicative &&
			len(rt.pending()) > 0 &&
			hasLetter(rt.residual())
	}
	return sig
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
