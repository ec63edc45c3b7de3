// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package calibrate measures how well emitted confidences track observed
// accuracy on a labelled reference set. The result is a reliability curve
// and its expected calibration error (ECE).
package calibrate

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/eventparse/pkg/types"
)

// Set is a labelled reference set.
type Set struct {
	// ReferenceTime and Timezone apply to every case that does not set
	// its own.
	ReferenceTime time.Time `yaml:"reference_time"`
	Timezone      string    `yaml:"timezone"`
	Cases         []Case    `yaml:"cases"`
}

// Case is one labelled input.
type Case struct {
	Text          string    `yaml:"text"`
	ReferenceTime time.Time `yaml:"reference_time,omitempty"`
	Timezone      string    `yaml:"timezone,omitempty"`

	// Expect maps field names to their correct values. Start and end are
	// RFC 3339, participants a list, recurrence an RRULE.
	Expect map[types.FieldName]any `yaml:"expect"`

	// Absent lists fields that must not be emitted.
	Absent []types.FieldName `yaml:"absent,omitempty"`

	// NotFound marks inputs that are not events.
	NotFound bool `yaml:"not_found,omitempty"`
}

// Load reads a YAML reference set.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reference set: %w", err)
	}
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing reference set %s: %w", path, err)
	}
	for i, c := range s.Cases {
		for f := range c.Expect {
			if !f.Valid() {
				return nil, fmt.Errorf("case %d: %w: %q", i, types.ErrUnknownField, f)
			}
		}
	}
	return &s, nil
}

// Parser runs one request.
type Parser interface {
	Parse(ctx context.Context, req types.Request) (*types.Result, error)
}

// Prediction is one emitted field scored against its label.
type Prediction struct {
	Confidence float64
	Correct    bool
}

// Mismatch records a wrong prediction.
type Mismatch struct {
	Text  string          `yaml:"text"`
	Field types.FieldName `yaml:"field"`
	Got   string          `yaml:"got"`
	Want  string          `yaml:"want"`
}

// Bin is one point of the reliability curve.
type Bin struct {
	Lower          float64 `yaml:"lower"`
	Upper          float64 `yaml:"upper"`
	Count          int     `yaml:"count"`
	MeanConfidence float64 `yaml:"mean_confidence"`
	Accuracy       float64 `yaml:"accuracy"`
}

// Report is the outcome of a calibration run.
type Report struct {
	Cases       int        `yaml:"cases"`
	Predictions int        `yaml:"predictions"`
	Accuracy    float64    `yaml:"accuracy"`
	ECE         float64    `yaml:"ece"`
	Bins        []Bin      `yaml:"bins"`
	Mismatches  []Mismatch `yaml:"mismatches,omitempty"`
	Errors      []string   `yaml:"errors,omitempty"`
}

// Run parses every case and builds a report with the given number of
// equal-width bins (10 when bins <= 0).
func Run(ctx context.Context, p Parser, set *Set, bins int) (*Report, error) {
	rep := &Report{Cases: len(set.Cases)}
	var preds []Prediction
	for _, c := range set.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req := types.Request{
			Text:          c.Text,
			ReferenceTime: c.ReferenceTime,
			Timezone:      c.Timezone,
			Mode:          types.ModeAudit,
			NoCache:       true,
		}
		if req.ReferenceTime.IsZero() {
			req.ReferenceTime = set.ReferenceTime
		}
		if req.Timezone == "" {
			req.Timezone = set.Timezone
		}

		res, err := p.Parse(ctx, req)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%q: %v", c.Text, err))
			continue
		}
		ps, ms := score(c, res.Event)
		preds = append(preds, ps...)
		rep.Mismatches = append(rep.Mismatches, ms...)
	}

	rep.Predictions = len(preds)
	rep.Bins, rep.ECE = Curve(preds, bins)
	var correct int
	for _, p := range preds {
		if p.Correct {
			correct++
		}
	}
	if len(preds) > 0 {
		rep.Accuracy = float64(correct) / float64(len(preds))
	}
	return rep, nil
}

// score compares one event against its labels. Only labelled or
// explicitly absent fields produce predictions.
func score(c Case, ev *types.NormalizedEvent) ([]Prediction, []Mismatch) {
	var preds []Prediction
	var ms []Mismatch

	if c.NotFound {
		// The event-level confidence is the prediction that this is an
		// event at all.
		ok := !ev.Found()
		preds = append(preds, Prediction{Confidence: 1 - ev.ConfidenceScore, Correct: ok})
		if !ok {
			ms = append(ms, Mismatch{Text: c.Text, Field: "status", Got: string(ev.Status), Want: string(types.StatusNotFound)})
		}
		return preds, ms
	}

	for _, f := range types.AllFields {
		want, labelled := c.Expect[f]
		res, emitted := ev.FieldResults[f]
		switch {
		case labelled && emitted:
			ok := matches(f, res.Value, want)
			preds = append(preds, Prediction{Confidence: res.Confidence, Correct: ok})
			if !ok {
				ms = append(ms, Mismatch{Text: c.Text, Field: f, Got: render(res.Value), Want: render(want)})
			}
		case emitted && slices.Contains(c.Absent, f):
			preds = append(preds, Prediction{Confidence: res.Confidence, Correct: false})
			ms = append(ms, Mismatch{Text: c.Text, Field: f, Got: render(res.Value), Want: "absent"})
		}
	}
	return preds, ms
}

// Curve bins predictions by confidence and returns the reliability curve
// and the expected calibration error. Empty bins are omitted.
func Curve(preds []Prediction, n int) ([]Bin, float64) {
	if n <= 0 {
		n = 10
	}
	counts := make([]int, n)
	confSum := make([]float64, n)
	hits := make([]int, n)
	for _, p := range preds {
		i := int(p.Confidence * float64(n))
		i = min(max(i, 0), n-1)
		counts[i]++
		confSum[i] += p.Confidence
		if p.Correct {
			hits[i]++
		}
	}

	var out []Bin
	var ece float64
	for i := range n {
		if counts[i] == 0 {
			continue
		}
		b := Bin{
			Lower:          float64(i) / float64(n),
			Upper:          float64(i+1) / float64(n),
			Count:          counts[i],
			MeanConfidence: confSum[i] / float64(counts[i]),
			Accuracy:       float64(hits[i]) / float64(counts[i]),
		}
		out = append(out, b)
		ece += float64(b.Count) / float64(len(preds)) * math.Abs(b.Accuracy-b.MeanConfidence)
	}
	return out, ece
}

func matches(f types.FieldName, got, want any) bool {
	switch f {
	case types.FieldStart, types.FieldEnd:
		g, err1 := asTime(got)
		w, err2 := asTime(want)
		return err1 == nil && err2 == nil && g.Equal(w)
	case types.FieldParticipants:
		g, w := asStrings(got), asStrings(want)
		if len(g) != len(w) {
			return false
		}
		for i := range g {
			if !strings.EqualFold(g[i], w[i]) {
				return false
			}
		}
		return true
	case types.FieldRecurrence:
		r, ok := got.(types.Recurrence)
		return ok && sameRule(r.RRule, fmt.Sprint(want))
	default:
		return strings.EqualFold(strings.TrimSpace(fmt.Sprint(got)), strings.TrimSpace(fmt.Sprint(want)))
	}
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339, t)
	default:
		return time.Time{}, fmt.Errorf("not a timestamp: %T", v)
	}
}

func asStrings(v any) []string {
	var out []string
	switch s := v.(type) {
	case []string:
		out = append(out, s...)
	case []any:
		for _, x := range s {
			out = append(out, fmt.Sprint(x))
		}
	}
	slices.SortFunc(out, func(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) })
	return out
}

// sameRule compares RRULE values part by part, ignoring order.
func sameRule(a, b string) bool {
	split := func(s string) []string {
		parts := strings.Split(strings.ToUpper(strings.TrimPrefix(s, "RRULE:")), ";")
		slices.Sort(parts)
		return parts
	}
	return slices.Equal(split(a), split(b))
}

func render(v any) string {
	switch x := v.(type) {
	case types.Recurrence:
		return x.RRule
	case []string:
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// Write renders the report as YAML.
func (r *Report) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}
