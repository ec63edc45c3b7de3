// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pattern

import (
	"regexp"
	"strings"

	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/pkg/types"
)

// temporalStops end a free-text phrase because what follows is a date or
// time expression.
var temporalStops = wordSet(
	"today", "tomorrow", "tonight", "yesterday", "tmrw", "tmr", "next", "this",
	"coming", "every", "each", "am", "pm", "noon", "midnight", "morning",
	"afternoon", "evening", "eod", "week", "weekend", "month", "daily",
	"weekly", "monthly", "biweekly", "starting", "until", "till", "from",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"mondays", "tuesdays", "wednesdays", "thursdays", "fridays", "saturdays", "sundays",
	"tue", "tues", "wed", "thu", "thur", "thurs", "fri",
	"january", "february", "march", "april", "june", "july", "august",
	"september", "october", "november", "december",
	"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
)

// leadStops are prepositions that introduce another field.
var leadStops = wordSet(
	"at", "on", "in", "for", "with", "by", "@", "about", "to", "regarding",
	"via", "around", "between", "after", "before", "-", "re",
)

var labelStops = wordSet("at", "on", "from", "@", "by")

var eventNouns = `meetings?|meetups?|calls?|lunch|dinner|breakfast|brunch|coffee|drinks|stand-?ups?|syncs?|1:1|one-on-ones?|interviews?|appointments?|reviews?|demos?|party|parties|workshops?|webinars?|class|classes|sessions?|conference|check-?ins?|catch-?ups?|presentations?|retrospectives?|retros?|planning|kick-?offs?|offsites?|rehearsals?|practice|training|birthday|wedding|flight|haircut|dentist|doctor|yoga|gym|game|concert|hangout|huddle|seminar|lecture|exam|deadline|ceremony|reception|celebration|visit|tour|trip|event`

var eventNounPattern = regexp.MustCompile(`(?i)\b(?:` + eventNouns + `)\b`)

// timeLikeToken matches tokens that are clock times or numeric dates.
var timeLikeToken = regexp.MustCompile(`(?i)^(?:\d{1,2}(?::\d{2})?(?:am|pm)?|\d{1,2}/\d{1,2}(?:/\d{2,4})?|\d{4}-\d{2}-\d{2}.*)$`)

// labelBoundary finds where the next "Label:" starts in collapsed text.
var labelBoundary = regexp.MustCompile(`\s[A-Z][A-Za-z]*\s?:\s`)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func bareToken(tok string) string {
	return strings.ToLower(strings.Trim(tok, `,.;:!?()"'“”`))
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// phraseStop decides whether a token ends a phrase.
type phraseStop func(tok string) bool

func stopLeading(tok string) bool {
	b := bareToken(tok)
	return b == "" || temporalStops[b] || leadStops[b] || hasDigit(b)
}

func stopLabelled(tok string) bool {
	b := bareToken(tok)
	return temporalStops[b] || labelStops[b] || timeLikeToken.MatchString(b)
}

func stopName(tok string) bool {
	b := bareToken(tok)
	return temporalStops[b] || leadStops[b]
}

// leadingPhrase returns the prefix of s before the first stop token with
// trailing punctuation and connectives removed.
func leadingPhrase(s string, stop phraseStop, maxTokens int) string {
	var kept []string
	for _, tok := range strings.Fields(s) {
		if stop(tok) || len(kept) == maxTokens {
			break
		}
		kept = append(kept, tok)
		if strings.ContainsAny(tok[len(tok)-1:], ",;!?") {
			break
		}
	}
	for len(kept) > 0 {
		last := bareToken(kept[len(kept)-1])
		if last == "and" || last == "&" || last == "of" || last == "the" || last == "a" {
			kept = kept[:len(kept)-1]
			continue
		}
		break
	}
	return strings.Trim(strings.Join(kept, " "), `,.;:!? `)
}

// cutAtLabel truncates labelled free text where the next label begins.
func cutAtLabel(s string) string {
	if loc := labelBoundary.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return strings.TrimSpace(s)
}

// valueSpan narrows a match to [match start, end of value), where value is
// a prefix of the text starting at group g.
func valueSpan(sm submatch, g int, value string) types.Span {
	return types.Span{Start: sm.span(0).Start, End: sm.span(g).Start + len(value)}
}

// titleRules recognize the event's name.
func titleRules() []Rule {
	return []Rule{
		rule(KindTitle, "labelled_title", confidence.Explicit,
			`(?i)\b(?:subject|title|event|re)\s*:\s*([^;|]+)`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				v := leadingPhrase(cutAtLabel(sm.group(1)), stopLabelled, 12)
				return v, valueSpan(sm, 1, v), v != ""
			}),
		rule(KindTitle, "quoted_title", confidence.Vocabulary,
			`["“]([^"”]{3,80})["”]`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				v := strings.TrimSpace(sm.group(1))
				return v, whole(sm), v != ""
			}),
		rule(KindTitle, "leading_event_phrase", confidence.Contextual,
			`^(?i:(?:reminder|fwd?|re|note|todo|fyi)\s*:\s*)?([A-Za-z][^,;:.!?()]*)`,
			leadingTitle(true)),
		rule(KindTitle, "leading_phrase", confidence.Inferred,
			`^(?i:(?:reminder|fwd?|re|note|todo|fyi)\s*:\s*)?([A-Za-z][^,;:.!?()]*)`,
			leadingTitle(false)),
		rule(KindTitle, "event_noun_phrase", confidence.Vocabulary,
			`(?i)\b((?:[a-z][\w'&-]*\s+){0,3}(?:`+eventNouns+`))\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				toks := strings.Fields(sm.group(1))
				start := 0
				for i, tok := range toks[:len(toks)-1] {
					if stopLeading(tok) {
						start = i + 1
					}
				}
				v := strings.Join(toks[start:], " ")
				s := sm.span(1).Start
				for _, tok := range toks[:start] {
					s += len(tok) + 1
				}
				return v, types.Span{Start: s, End: s + len(v)}, v != ""
			}),
	}
}

// leadingTitle builds the opening phrase of the text as a title. With
// wantNoun it only accepts phrases naming a kind of event.
func leadingTitle(wantNoun bool) buildFunc {
	return func(sm submatch, _ Reference) (any, types.Span, bool) {
		v := leadingPhrase(sm.group(1), stopLeading, 8)
		if v == "" || eventNounPattern.MatchString(v) != wantNoun {
			return nil, types.Span{}, false
		}
		return v, valueSpan(sm, 1, v), true
	}
}

var virtualVenues = map[string]string{
	"zoom":            "Zoom",
	"google meet":     "Google Meet",
	"microsoft teams": "Microsoft Teams",
	"teams":           "Microsoft Teams",
	"skype":           "Skype",
	"webex":           "Webex",
	"hangouts":        "Hangouts",
	"facetime":        "FaceTime",
}

// locationRules recognize where the event happens.
func locationRules() []Rule {
	return []Rule{
		rule(KindLocation, "labelled_location", confidence.Explicit,
			`(?i)\b(?:location|where|venue|place|address)\s*:\s*([^;|]+)`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				v := leadingPhrase(cutAtLabel(sm.group(1)), stopLabelled, 12)
				return v, valueSpan(sm, 1, v), v != ""
			}),
		rule(KindLocation, "room", confidence.Specific,
			`(?i)(?:\b(?:in|at)\s+(?:the\s+)?)?\b((?:conference\s+|meeting\s+)?(?:room|rm\.?|suite|building|bldg\.?|floor|hall)\s+#?[a-z]?\d+[a-z]?)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				return sm.group(1), whole(sm), true
			}),
		rule(KindLocation, "street_address", confidence.Specific,
			`(?:\bat\s+)?\b(\d{1,5}\s+(?:[A-Z][a-z]+\.?\s+){1,3}(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Ln|Lane|Dr|Drive|Way|Pl|Place|Ct|Court|Sq|Square)\b\.?)`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				return sm.group(1), whole(sm), true
			}),
		rule(KindLocation, "virtual_venue", confidence.Contextual,
			`\b(?:(?i:on|via|over)\s+)?((?i:zoom|google meet|microsoft teams|skype|webex|hangouts|facetime)|Teams)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				v, ok := virtualVenues[strings.ToLower(sm.group(1))]
				return v, whole(sm), ok
			}),
		rule(KindLocation, "preposition_place", confidence.Vocabulary,
			`(?:\b(?:[Aa]t|[Ii]n)\s+|@\s*)((?:the\s+)?[A-Z][\w'&.-]*(?:\s+(?:of\s+|the\s+|&\s+|and\s+)?[A-Z][\w'&.-]*)*)`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				v := leadingPhrase(sm.group(1), func(tok string) bool {
					b := bareToken(tok)
					return temporalStops[b] || hasDigit(b)
				}, 6)
				if v == "" || strings.EqualFold(v, "the") {
					return nil, types.Span{}, false
				}
				return v, valueSpan(sm, 1, v), true
			}),
	}
}

var nameSplit = regexp.MustCompile(`\s*(?:,|;|&|\band\b)\s*`)

// splitNames splits a list of people, trimming each name at the first
// stop word.
func splitNames(s string, stop phraseStop) []string {
	var out []string
	for _, part := range nameSplit.Split(s, -1) {
		name := leadingPhrase(part, stop, 4)
		if name == "" || (hasDigit(name) && !strings.Contains(name, "@")) {
			continue
		}
		out = append(out, name)
	}
	return out
}

const personName = `(?:[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?|[A-Z]\.\s?[A-Z][a-z]+)`

// participantRules recognize who attends.
func participantRules() []Rule {
	return []Rule{
		rule(KindParticipants, "labelled_participants", confidence.Explicit,
			`(?i)\b(?:attendees|participants|invitees|guests|people|cc)\s*:\s*([^;|]+)`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				raw := cutAtLabel(sm.group(1))
				names := splitNames(raw, func(tok string) bool {
					return stopLabelled(tok) && !strings.Contains(tok, "@")
				})
				return names, valueSpan(sm, 1, raw), len(names) > 0
			}),
		rule(KindParticipants, "email", confidence.Explicit,
			`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				return []string{sm.group(0)}, whole(sm), true
			}),
		rule(KindParticipants, "with_names", confidence.Vocabulary,
			`\b[Ww]ith\s+(`+personName+`(?:\s*(?:,|&|and)\s*`+personName+`)*)`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				names := splitNames(sm.group(1), stopName)
				if len(names) == 0 {
					return nil, types.Span{}, false
				}
				last := names[len(names)-1]
				end := sm.span(1).Start + strings.LastIndex(sm.group(1), last) + len(last)
				return names, types.Span{Start: sm.span(0).Start, End: end}, true
			}),
	}
}

// descriptionRules recognize notes and agenda text.
func descriptionRules() []Rule {
	return []Rule{
		rule(KindDescription, "labelled_description", confidence.Explicit,
			`(?i)\b(?:description|notes?|agenda|details|summary)\s*:\s*(.+)$`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				v := strings.Trim(cutAtLabel(sm.group(1)), `,.;: `)
				return v, valueSpan(sm, 1, v), len(v) > 1
			}),
		rule(KindDescription, "discussion_topic", confidence.Vocabulary,
			`(?i)\b(?:to discuss|discussing|regarding|about|topic:)\s+([^.;!?]+)`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				toks := strings.Fields(sm.group(1))
				var kept []string
				for _, tok := range toks {
					b := bareToken(tok)
					if temporalStops[b] || leadStops[b] || timeLikeToken.MatchString(b) {
						break
					}
					kept = append(kept, tok)
				}
				v := strings.Trim(strings.Join(kept, " "), `,.;: `)
				return v, valueSpan(sm, 1, v), len(v) > 1
			}),
	}
}
