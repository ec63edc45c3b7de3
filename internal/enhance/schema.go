// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enhance

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"text/template"

	"github.com/pdiddy/eventparse/pkg/types"
)

// toolName is the single tool both backends force the model to call.
const toolName = "record_event_fields"

const toolDescription = "Record the calendar event fields found in the text. Use null for any field the text does not state."

var fieldSchemas = map[types.FieldName]map[string]any{
	types.FieldTitle: {
		"type":        []string{"string", "null"},
		"description": "Short event title, as worded in the text.",
	},
	types.FieldStart: {
		"type":        []string{"string", "null"},
		"description": "Start as YYYY-MM-DDTHH:MM local wall-clock time, or YYYY-MM-DD when no time is given.",
	},
	types.FieldEnd: {
		"type":        []string{"string", "null"},
		"description": "End as YYYY-MM-DDTHH:MM local wall-clock time.",
	},
	types.FieldRecurrence: {
		"type":        []string{"string", "null"},
		"description": "RFC 5545 RRULE value without the RRULE: prefix, e.g. FREQ=WEEKLY;INTERVAL=2;BYDAY=TU.",
	},
	types.FieldLocation: {
		"type":        []string{"string", "null"},
		"description": "Venue, room, address or meeting link as worded in the text.",
	},
	types.FieldDescription: {
		"type":        []string{"string", "null"},
		"description": "Agenda or notes about the event.",
	},
	types.FieldParticipants: {
		"type":        []string{"array", "null"},
		"items":       map[string]any{"type": "string"},
		"description": "People or e-mail addresses attending.",
	},
}

// schemaFor builds the tool argument schema for exactly the requested
// fields, so the model has nowhere to put anything else.
func schemaFor(fields []types.FieldName) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[string(f)] = fieldSchemas[f]
		required = append(required, string(f))
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

const systemPrompt = `You extract calendar event details from short, noisy text such as e-mail fragments, reminders and tickets.
Only report what the text states. Never invent a date, time, place or person.
Resolve relative dates against the reference time when one is given.
Always answer by calling the ` + toolName + ` tool.`

var userPromptTmpl = template.Must(template.New("enhance").Parse(`Fields to fill: {{.Fields}}
{{if .Reference}}Reference time: {{.Reference}}
{{end}}{{if .Timezone}}Timezone: {{.Timezone}}
{{end}}
Text:
{{.Residual}}
`))

func renderPrompt(call Call) (string, error) {
	names := make([]string, len(call.Fields))
	for i, f := range call.Fields {
		names[i] = string(f)
	}
	var buf bytes.Buffer
	err := userPromptTmpl.Execute(&buf, struct {
		Fields    string
		Reference string
		Timezone  string
		Residual  string
	}{strings.Join(names, ", "), call.Reference, call.Timezone, call.Residual})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// decodeArguments parses tool arguments into an Answer.
func decodeArguments(data []byte) (Answer, error) {
	var ans Answer
	if err := json.Unmarshal(data, &ans); err != nil {
		return nil, err
	}
	if ans == nil {
		return Answer{}, nil
	}
	return ans, nil
}

func sortedKeys(ans Answer) []string {
	keys := make([]string, 0, len(ans))
	for k := range ans {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
