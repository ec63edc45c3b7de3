// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pattern

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/pdiddy/eventparse/internal/confidence"
	"github.com/pdiddy/eventparse/pkg/types"
)

// civil is a calendar day without a zone.
type civil struct {
	Year  int
	Month time.Month
	Day   int
}

func civilOf(t time.Time) civil {
	y, m, d := t.Date()
	return civil{Year: y, Month: m, Day: d}
}

func (c civil) valid() bool {
	t := time.Date(c.Year, c.Month, c.Day, 12, 0, 0, 0, time.UTC)
	return civilOf(t) == c
}

func (c civil) addDays(n int) civil {
	return civilOf(time.Date(c.Year, c.Month, c.Day+n, 12, 0, 0, 0, time.UTC))
}

func (c civil) weekday() time.Weekday {
	return time.Date(c.Year, c.Month, c.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (c civil) before(o civil) bool {
	if c.Year != o.Year {
		return c.Year < o.Year
	}
	if c.Month != o.Month {
		return c.Month < o.Month
	}
	return c.Day < o.Day
}

func (c civil) at(k clock, loc *time.Location) time.Time {
	return time.Date(c.Year, c.Month, c.Day, k.Hour, k.Minute, 0, 0, loc)
}

// clock is a wall-clock time of day.
type clock struct {
	Hour   int
	Minute int
}

func (k clock) minutes() int { return k.Hour*60 + k.Minute }

// dateValue is what date rules produce. Clock and Zone are set when the
// expression carried them (ISO timestamps, "in 2 hours").
type dateValue struct {
	Date  civil
	Clock *clock
	Zone  *time.Location

	// Alt is a second plausible reading ("next Friday" said early in the
	// week may mean the Friday after).
	Alt       *civil
	AltReason string
}

// timeRange is what range rules produce.
type timeRange struct {
	Start clock
	End   clock
}

const weekdayFull = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

const weekdayAny = weekdayFull + `|tues|tue|wed|thurs|thur|thu|fri|sat|sun|mon`

const monthAlt = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

const countAlt = `an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fifteen|twenty|thirty|forty[- ]five|forty|fifty|sixty|ninety|\d{1,3}(?:\.\d+)?`

// timeLead is the optional lead-in consumed with a time so it does not
// linger in the residual text.
const timeLead = `(?:\b(?:starting at|starting|beginning at|begins at|at|from|around|by)\s+|@\s*|\b)`

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	"sun": time.Sunday,
}

var numberWords = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "fifteen": 15, "twenty": 20, "thirty": 30, "forty": 40,
	"forty-five": 45, "forty five": 45, "fifty": 50, "sixty": 60, "ninety": 90,
	"half an": 0.5, "half a": 0.5, "half": 0.5,
	"other": 2, "second": 2, "2nd": 2, "third": 3, "3rd": 3,
}

func parseCount(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := numberWords[s]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func monthOf(s string) time.Month {
	return months[strings.ToLower(s)[:3]]
}

func weekdayOf(s string) (time.Weekday, bool) {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return 0, false
	}
	wd, ok := weekdays[s[:3]]
	return wd, ok
}

// meridiemClock converts a 12-hour reading. ok is false for hours outside
// 1..12.
func meridiemClock(hour, minute int, meridiem string) (clock, bool) {
	if hour < 1 || hour > 12 || minute < 0 || minute > 59 {
		return clock{}, false
	}
	h := hour % 12
	if strings.EqualFold(meridiem, "pm") {
		h += 12
	}
	return clock{Hour: h, Minute: minute}, true
}

// guessClock reads an hour with no meridiem the way people write meeting
// times: 1 to 7 are afternoon, 8 to 12 are morning or noon, 13 and up are
// 24-hour.
func guessClock(hour, minute int) (clock, bool) {
	switch {
	case hour < 0 || hour > 23 || minute < 0 || minute > 59:
		return clock{}, false
	case hour >= 1 && hour <= 7:
		return clock{Hour: hour + 12, Minute: minute}, true
	default:
		return clock{Hour: hour, Minute: minute}, true
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func whole(sm submatch) types.Span { return sm.span(0) }

func dateRule(name string, spec confidence.Specificity, relative bool, expr string, b buildFunc) Rule {
	return Rule{Name: name, Kind: KindDate, Pattern: regexp.MustCompile(expr), Specificity: spec, Relative: relative, build: b}
}

func rule(kind Kind, name string, spec confidence.Specificity, expr string, b buildFunc) Rule {
	return Rule{Name: name, Kind: kind, Pattern: regexp.MustCompile(expr), Specificity: spec, build: b}
}

// dateRules recognize calendar days.
func dateRules() []Rule {
	return []Rule{
		dateRule("iso_datetime", confidence.Explicit, false,
			`\b(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2})(?::\d{2}(?:\.\d+)?)?\s?(Z|[+-]\d{2}:?\d{2})?\b`,
			buildISODateTime),
		dateRule("iso_date", confidence.Specific, false,
			`(?:\bon\s+|\b)(\d{4})-(\d{2})-(\d{2})\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				c := civil{Year: atoi(sm.group(1)), Month: time.Month(atoi(sm.group(2))), Day: atoi(sm.group(3))}
				return dateValue{Date: c}, whole(sm), c.valid()
			}),
		dateRule("month_day_year", confidence.Specific, false,
			`(?i)(?:\bon\s+|\b)(`+monthAlt+`)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				c := civil{Year: atoi(sm.group(3)), Month: monthOf(sm.group(1)), Day: atoi(sm.group(2))}
				return dateValue{Date: c}, whole(sm), c.valid()
			}),
		dateRule("day_month_year", confidence.Specific, false,
			`(?i)(?:\bon\s+|\b)(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(`+monthAlt+`)\.?,?\s+(\d{4})\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				c := civil{Year: atoi(sm.group(3)), Month: monthOf(sm.group(2)), Day: atoi(sm.group(1))}
				return dateValue{Date: c}, whole(sm), c.valid()
			}),
		dateRule("numeric_date_year", confidence.Contextual, false,
			`(?:\bon\s+|\b)(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				year := atoi(sm.group(3))
				if year < 100 {
					year += 2000
				}
				c, ok := numericDate(atoi(sm.group(1)), atoi(sm.group(2)), year)
				return dateValue{Date: c}, whole(sm), ok
			}),
		dateRule("month_day", confidence.Contextual, true,
			`(?i)(?:\bon\s+|\b)(`+monthAlt+`)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`,
			func(sm submatch, ref Reference) (any, types.Span, bool) {
				c, ok := upcoming(monthOf(sm.group(1)), atoi(sm.group(2)), ref)
				return dateValue{Date: c}, whole(sm), ok
			}),
		dateRule("day_month", confidence.Contextual, true,
			`(?i)(?:\bon\s+|\b)(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(`+monthAlt+`)\b`,
			func(sm submatch, ref Reference) (any, types.Span, bool) {
				c, ok := upcoming(monthOf(sm.group(2)), atoi(sm.group(1)), ref)
				return dateValue{Date: c}, whole(sm), ok
			}),
		dateRule("numeric_date", confidence.Vocabulary, true,
			`(?:\bon\s+|\b)(\d{1,2})/(\d{1,2})\b`,
			func(sm submatch, ref Reference) (any, types.Span, bool) {
				today := civilOf(ref.local())
				c, ok := numericDate(atoi(sm.group(1)), atoi(sm.group(2)), today.Year)
				if ok && c.before(today) {
					c.Year++
				}
				return dateValue{Date: c}, whole(sm), ok
			}),
		dateRule("relative_day", confidence.Contextual, true,
			`(?i)\b(the day after tomorrow|day after tomorrow|today|tomorrow|tmrw|tmr|tonight|yesterday)\b`,
			func(sm submatch, ref Reference) (any, types.Span, bool) {
				today := civilOf(ref.local())
				offset := map[string]int{
					"the day after tomorrow": 2, "day after tomorrow": 2,
					"today": 0, "tonight": 0, "tomorrow": 1, "tmrw": 1, "tmr": 1,
					"yesterday": -1,
				}[strings.ToLower(sm.group(1))]
				return dateValue{Date: today.addDays(offset)}, whole(sm), true
			}),
		dateRule("weekday", confidence.Contextual, true,
			`(?i)\b(?:on\s+)?(?:(next|this|coming)\s+)?(`+weekdayFull+`|tues|tue|wed|thurs|thur|thu|fri)(s)?\b\.?`,
			buildWeekday),
		dateRule("in_n_units", confidence.Contextual, true,
			`(?i)\bin\s+(`+countAlt+`)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?|months?)\b`,
			buildInUnits),
		dateRule("next_period", confidence.Vocabulary, true,
			`(?i)\b(next|this)\s+(week|weekend|month)\b`,
			buildNextPeriod),
		dateRule("end_of_period", confidence.Vocabulary, true,
			`(?i)\b(?:by\s+)?(?:the\s+)?end\s+of\s+(?:the\s+)?(week|month)\b`,
			func(sm submatch, ref Reference) (any, types.Span, bool) {
				today := civilOf(ref.local())
				if strings.EqualFold(sm.group(1), "week") {
					delta := int(time.Friday - today.weekday())
					if delta < 0 {
						delta = 0
					}
					return dateValue{Date: today.addDays(delta)}, whole(sm), true
				}
				last := time.Date(today.Year, today.Month+1, 0, 12, 0, 0, 0, time.UTC)
				return dateValue{Date: civilOf(last)}, whole(sm), true
			}),
	}
}

func buildISODateTime(sm submatch, _ Reference) (any, types.Span, bool) {
	c := civil{Year: atoi(sm.group(1)), Month: time.Month(atoi(sm.group(2))), Day: atoi(sm.group(3))}
	k := clock{Hour: atoi(sm.group(4)), Minute: atoi(sm.group(5))}
	if !c.valid() || k.Hour > 23 || k.Minute > 59 {
		return nil, types.Span{}, false
	}
	v := dateValue{Date: c, Clock: &k}
	if z := sm.group(6); z != "" {
		loc, ok := parseOffset(z)
		if !ok {
			return nil, types.Span{}, false
		}
		v.Zone = loc
	}
	return v, whole(sm), true
}

// parseOffset reads "Z", "+05:30" or "-0800".
func parseOffset(z string) (*time.Location, bool) {
	if z == "Z" {
		return time.UTC, true
	}
	sign := 1
	if z[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(z[1:], ":", "")
	if len(digits) != 4 {
		return nil, false
	}
	h, m := atoi(digits[:2]), atoi(digits[2:])
	if h > 14 || m > 59 {
		return nil, false
	}
	return time.FixedZone(z, sign*(h*3600+m*60)), true
}

// numericDate reads a/b as month/day, falling back to day/month when the
// first number cannot be a month.
func numericDate(a, b, year int) (civil, bool) {
	c := civil{Year: year, Month: time.Month(a), Day: b}
	if a > 12 {
		c = civil{Year: year, Month: time.Month(b), Day: a}
	}
	if c.Month < 1 || c.Month > 12 {
		return civil{}, false
	}
	return c, c.valid()
}

// upcoming resolves a month and day with no year to the current year, or
// the next one when the day has already passed.
func upcoming(m time.Month, day int, ref Reference) (civil, bool) {
	today := civilOf(ref.local())
	c := civil{Year: today.Year, Month: m, Day: day}
	if !c.valid() {
		return civil{}, false
	}
	if c.before(today) {
		c.Year++
	}
	return c, c.valid()
}

func buildWeekday(sm submatch, ref Reference) (any, types.Span, bool) {
	name := strings.ToLower(sm.group(2))
	if sm.group(3) != "" && len(name) < 6 {
		// "thus", "weds": not a plural weekday.
		return nil, types.Span{}, false
	}
	wd, ok := weekdayOf(name)
	if !ok {
		return nil, types.Span{}, false
	}
	today := civilOf(ref.local())
	delta := (int(wd) - int(today.weekday()) + 7) % 7
	qualifier := strings.ToLower(sm.group(1))
	if qualifier == "next" && delta == 0 {
		delta = 7
	}
	v := dateValue{Date: today.addDays(delta)}
	if qualifier == "next" && delta < daysLeftInWeek(today) {
		alt := v.Date.addDays(7)
		v.Alt = &alt
		v.AltReason = `"next ` + name + `" may mean the following week`
	}
	return v, whole(sm), true
}

// daysLeftInWeek counts the days after today up to and including Sunday,
// with weeks starting on Monday.
func daysLeftInWeek(today civil) int {
	return (7 - int(today.weekday())) % 7
}

func buildInUnits(sm submatch, ref Reference) (any, types.Span, bool) {
	n, ok := parseCount(sm.group(1))
	if !ok {
		return nil, types.Span{}, false
	}
	now := ref.local()
	unit := strings.ToLower(sm.group(2))
	switch {
	case strings.HasPrefix(unit, "min"):
		t := now.Add(time.Duration(n * float64(time.Minute))).Truncate(time.Minute)
		return dateValue{Date: civilOf(t), Clock: &clock{Hour: t.Hour(), Minute: t.Minute()}}, whole(sm), true
	case strings.HasPrefix(unit, "h"):
		t := now.Add(time.Duration(n * float64(time.Hour))).Truncate(time.Minute)
		return dateValue{Date: civilOf(t), Clock: &clock{Hour: t.Hour(), Minute: t.Minute()}}, whole(sm), true
	case strings.HasPrefix(unit, "day"):
		return dateValue{Date: civilOf(now).addDays(wholeDays(n))}, whole(sm), true
	case strings.HasPrefix(unit, "week"):
		return dateValue{Date: civilOf(now).addDays(wholeDays(7 * n))}, whole(sm), true
	default:
		m, frac := math.Modf(n)
		return dateValue{Date: civilOf(now.AddDate(0, int(m), 0)).addDays(wholeDays(30 * frac))}, whole(sm), true
	}
}

// wholeDays rounds a day count to the nearest day, halves away from zero.
// Day-level offsets stay independent of the reference clock.
func wholeDays(d float64) int {
	return int(math.Round(d))
}

func buildNextPeriod(sm submatch, ref Reference) (any, types.Span, bool) {
	today := civilOf(ref.local())
	next := strings.EqualFold(sm.group(1), "next")
	switch strings.ToLower(sm.group(2)) {
	case "week":
		if !next {
			return dateValue{Date: today}, whole(sm), true
		}
		toMonday := (int(time.Monday) - int(today.weekday()) + 7) % 7
		if toMonday == 0 {
			toMonday = 7
		}
		return dateValue{Date: today.addDays(toMonday)}, whole(sm), true
	case "weekend":
		toSaturday := (int(time.Saturday) - int(today.weekday()) + 7) % 7
		if next && toSaturday < daysLeftInWeek(today) {
			toSaturday += 7
		}
		return dateValue{Date: today.addDays(toSaturday)}, whole(sm), true
	default:
		if !next {
			return dateValue{Date: today}, whole(sm), true
		}
		first := time.Date(today.Year, today.Month+1, 1, 12, 0, 0, 0, time.UTC)
		return dateValue{Date: civilOf(first)}, whole(sm), true
	}
}

// vocabularyClocks is the fixed offset table for natural time phrases.
var vocabularyClocks = map[string]clock{
	"end of day":        {17, 0},
	"end of the day":    {17, 0},
	"eod":               {17, 0},
	"cob":               {17, 0},
	"close of business": {17, 0},
	"end of week":       {17, 0},
	"end of the week":   {17, 0},
	"after lunch":       {13, 0},
	"before lunch":      {11, 0},
	"lunchtime":         {12, 0},
	"lunch time":        {12, 0},
	"first thing":       {9, 0},
	"morning":           {9, 0},
	"afternoon":         {14, 0},
	"evening":           {18, 0},
	"tonight":           {19, 0},
}

// timeRules recognize times of day.
func timeRules() []Rule {
	return []Rule{
		rule(KindTime, "clock_meridiem", confidence.Specific,
			`(?i)`+timeLead+`(\d{1,2})(?::([0-5]\d))?([ap]m)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				k, ok := meridiemClock(atoi(sm.group(1)), atoi(sm.group(2)), sm.group(3))
				return k, whole(sm), ok
			}),
		rule(KindTime, "clock_24h", confidence.Specific,
			`(?i)`+timeLead+`(0\d|1[3-9]|2[0-3]):([0-5]\d)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				return clock{Hour: atoi(sm.group(1)), Minute: atoi(sm.group(2))}, whole(sm), true
			}),
		rule(KindTime, "noon_midnight", confidence.Specific,
			`(?i)`+timeLead+`(noon|midday|midnight)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				if strings.EqualFold(sm.group(1), "midnight") {
					return clock{}, whole(sm), true
				}
				return clock{Hour: 12}, whole(sm), true
			}),
		rule(KindTime, "clock_ambiguous", confidence.Vocabulary,
			`(?i)`+timeLead+`([1-9]|1[0-2]):([0-5]\d)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				k, ok := guessClock(atoi(sm.group(1)), atoi(sm.group(2)))
				return k, whole(sm), ok
			}),
		rule(KindTime, "time_vocabulary", confidence.Vocabulary,
			`(?i)\b(?:(?:in the|this|by|at)\s+)?(end of (?:the )?day|eod|cob|close of business|end of (?:the )?week|after lunch|before lunch|lunch ?time|first thing|morning|afternoon|evening|tonight)\b(?: in the morning)?`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				k, ok := vocabularyClocks[strings.ToLower(sm.group(1))]
				return k, whole(sm), ok
			}),
		rule(KindTime, "bare_hour", confidence.Inferred,
			`(?i)(?:\b(?:at|around)\s+|@\s*)(\d{1,2})(?:\s?o'?clock)?\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				end := sm.span(0).End
				if end < len(sm.text) && strings.ContainsRune(":/.-", rune(sm.text[end])) {
					return nil, types.Span{}, false
				}
				k, ok := guessClock(atoi(sm.group(1)), 0)
				return k, whole(sm), ok
			}),
	}
}

// rangeRules recognize "9-10am", "from 2pm to 4pm", "14:00-15:30".
func rangeRules() []Rule {
	return []Rule{
		rule(KindRange, "range_meridiem", confidence.Specific,
			`(?i)(?:\b(?:from|between|at)\s+|\b)(\d{1,2})(?::([0-5]\d))?([ap]m)?\s?(?:-|to|until|till|and)\s?(\d{1,2})(?::([0-5]\d))?([ap]m)\b`,
			buildMeridiemRange),
		rule(KindRange, "range_24h", confidence.Specific,
			`(?i)(?:\b(?:from|between|at)\s+|\b)(\d{1,2}):([0-5]\d)\s?(?:-|to|until|till|and)\s?(\d{1,2}):([0-5]\d)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				start := clock{Hour: atoi(sm.group(1)), Minute: atoi(sm.group(2))}
				end := clock{Hour: atoi(sm.group(3)), Minute: atoi(sm.group(4))}
				if start.Hour > 23 || end.Hour > 23 {
					return nil, types.Span{}, false
				}
				return timeRange{Start: start, End: end}, whole(sm), true
			}),
	}
}

func buildMeridiemRange(sm submatch, _ Reference) (any, types.Span, bool) {
	end, ok := meridiemClock(atoi(sm.group(4)), atoi(sm.group(5)), sm.group(6))
	if !ok {
		return nil, types.Span{}, false
	}
	startMeridiem := sm.group(3)
	if startMeridiem == "" {
		startMeridiem = sm.group(6)
	}
	start, ok := meridiemClock(atoi(sm.group(1)), atoi(sm.group(2)), startMeridiem)
	if !ok {
		return nil, types.Span{}, false
	}
	if sm.group(3) == "" && start.minutes() >= end.minutes() {
		// "11-1pm" starts in the morning.
		flip := "am"
		if strings.EqualFold(startMeridiem, "am") {
			flip = "pm"
		}
		start, _ = meridiemClock(atoi(sm.group(1)), atoi(sm.group(2)), flip)
	}
	return timeRange{Start: start, End: end}, whole(sm), true
}

// endTimeRules recognize an explicit end ("until 5pm").
func endTimeRules() []Rule {
	const lead = `(?i)\b(?:until|till|til|to|ends? at|ending at|finishing at|through)\s+`
	return []Rule{
		rule(KindEndTime, "until_meridiem", confidence.Specific,
			lead+`(\d{1,2})(?::([0-5]\d))?([ap]m)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				k, ok := meridiemClock(atoi(sm.group(1)), atoi(sm.group(2)), sm.group(3))
				return k, whole(sm), ok
			}),
		rule(KindEndTime, "until_24h", confidence.Specific,
			lead+`(\d{1,2}):([0-5]\d)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				k := clock{Hour: atoi(sm.group(1)), Minute: atoi(sm.group(2))}
				return k, whole(sm), k.Hour <= 23
			}),
		rule(KindEndTime, "until_vocabulary", confidence.Vocabulary,
			lead+`(noon|midnight|end of (?:the )?day|eod|lunch)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				switch strings.ToLower(sm.group(1)) {
				case "noon", "lunch":
					return clock{Hour: 12}, whole(sm), true
				case "midnight":
					return clock{Hour: 23, Minute: 59}, whole(sm), true
				default:
					return clock{Hour: 17}, whole(sm), true
				}
			}),
	}
}

// durationRules recognize "for 2 hours", "for half an hour", "30-minute".
func durationRules() []Rule {
	return []Rule{
		rule(KindDuration, "for_duration", confidence.Specific,
			`(?i)\b(?:for|lasting|takes?)\s+(?:about\s+|around\s+|roughly\s+)?(`+countAlt+`|half an?)\s?(hours?|hrs?|h|minutes?|mins?|m)\b(?:\s+and\s+(?:a\s+)?(half|\d+\s?(?:minutes?|mins?)))?`,
			buildDuration),
		rule(KindDuration, "adjective_duration", confidence.Contextual,
			`(?i)\b(`+countAlt+`|half)[- ](hour|hr|minute|min)s?\b`,
			func(sm submatch, ref Reference) (any, types.Span, bool) {
				start := sm.span(0).Start
				if start >= 3 && strings.EqualFold(sm.text[start-3:start], "in ") {
					// "in 2 hours" is a start offset.
					return nil, types.Span{}, false
				}
				return buildDuration(sm, ref)
			}),
	}
}

func buildDuration(sm submatch, _ Reference) (any, types.Span, bool) {
	n, ok := parseCount(sm.group(1))
	if !ok {
		return nil, types.Span{}, false
	}
	unit := time.Minute
	if u := strings.ToLower(sm.group(2)); strings.HasPrefix(u, "h") {
		unit = time.Hour
	}
	d := time.Duration(n * float64(unit))
	if extra := strings.ToLower(sm.group(3)); extra == "half" {
		d += 30 * time.Minute
	} else if extra != "" {
		d += time.Duration(atoi(strings.TrimRight(extra, "minutes "))) * time.Minute
	}
	if d <= 0 || d > 14*24*time.Hour {
		return nil, types.Span{}, false
	}
	return d, whole(sm), true
}

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Monday: rrule.MO, time.Tuesday: rrule.TU, time.Wednesday: rrule.WE,
	time.Thursday: rrule.TH, time.Friday: rrule.FR, time.Saturday: rrule.SA,
	time.Sunday: rrule.SU,
}

var dayCodes = map[time.Weekday]string{
	time.Monday: "MO", time.Tuesday: "TU", time.Wednesday: "WE",
	time.Thursday: "TH", time.Friday: "FR", time.Saturday: "SA",
	time.Sunday: "SU",
}

var freqNames = map[rrule.Frequency]string{
	rrule.YEARLY: "YEARLY", rrule.MONTHLY: "MONTHLY", rrule.WEEKLY: "WEEKLY", rrule.DAILY: "DAILY",
}

var weekdayScan = regexp.MustCompile(`(?i)\b(` + weekdayAny + `)`)

// newRecurrence validates a rule with rrule-go and renders it.
func newRecurrence(freq rrule.Frequency, interval int, days []time.Weekday) (types.Recurrence, bool) {
	if interval < 1 {
		interval = 1
	}
	opt := rrule.ROption{Freq: freq, Interval: interval}
	rec := types.Recurrence{Freq: freqNames[freq], Interval: interval}
	seen := make(map[time.Weekday]bool)
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		opt.Byweekday = append(opt.Byweekday, rruleDays[d])
		rec.ByDay = append(rec.ByDay, dayCodes[d])
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return types.Recurrence{}, false
	}
	rec.RRule = opt.String()
	return rec, true
}

// ParseRecurrence validates an RRULE value such as
// "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU" and returns its normalized form.
func ParseRecurrence(value string) (types.Recurrence, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return types.Recurrence{}, fmt.Errorf("parsing rrule %q: %w", value, err)
	}
	name, ok := freqNames[opt.Freq]
	if !ok {
		return types.Recurrence{}, fmt.Errorf("unsupported frequency in %q", value)
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return types.Recurrence{}, fmt.Errorf("invalid rrule %q: %w", value, err)
	}
	interval := opt.Interval
	if interval < 1 {
		interval = 1
	}
	rec := types.Recurrence{Freq: name, Interval: interval}
	codes := [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}
	for i := range opt.Byweekday {
		wd := &opt.Byweekday[i]
		code := codes[wd.Day()]
		if n := wd.N(); n != 0 {
			code = strconv.Itoa(n) + code
		}
		rec.ByDay = append(rec.ByDay, code)
	}
	rec.RRule = opt.String()
	return rec, nil
}

func scanWeekdays(s string) []time.Weekday {
	var out []time.Weekday
	for _, m := range weekdayScan.FindAllString(s, -1) {
		if wd, ok := weekdayOf(m); ok {
			out = append(out, wd)
		}
	}
	return out
}

// recurrenceRules recognize repeating schedules.
func recurrenceRules() []Rule {
	dayList := `(?:` + weekdayAny + `)s?(?:\s*(?:,|and|&|\+)\s*(?:` + weekdayAny + `)s?)*`
	plural := `(?:mondays|tuesdays|wednesdays|thursdays|fridays|saturdays|sundays)`
	return []Rule{
		rule(KindRecurrence, "every_nth_weekday", confidence.Specific,
			`(?i)\b(?:every|each)\s+(other|second|2nd|third|3rd)\s+(`+dayList+`)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				n, _ := parseCount(sm.group(1))
				r, ok := newRecurrence(rrule.WEEKLY, int(n), scanWeekdays(sm.group(2)))
				return r, whole(sm), ok
			}),
		rule(KindRecurrence, "every_weekday_list", confidence.Specific,
			`(?i)\b(?:every|each)\s+(`+dayList+`)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				r, ok := newRecurrence(rrule.WEEKLY, 1, scanWeekdays(sm.group(1)))
				return r, whole(sm), ok
			}),
		rule(KindRecurrence, "every_workday", confidence.Specific,
			`(?i)\b(?:every|each)\s+(weekday|workday|business day|weekend)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				days := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
				if strings.EqualFold(sm.group(1), "weekend") {
					days = []time.Weekday{time.Saturday, time.Sunday}
				}
				r, ok := newRecurrence(rrule.WEEKLY, 1, days)
				return r, whole(sm), ok
			}),
		rule(KindRecurrence, "every_interval", confidence.Specific,
			`(?i)\b(?:every|each)\s+(?:(other|\d{1,2}|two|three|four|five|six)\s+)?(days?|weeks?|months?|years?)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				n := 1.0
				if g := sm.group(1); g != "" {
					n, _ = parseCount(g)
				}
				freq := map[byte]rrule.Frequency{'d': rrule.DAILY, 'w': rrule.WEEKLY, 'm': rrule.MONTHLY, 'y': rrule.YEARLY}[strings.ToLower(sm.group(2))[0]]
				r, ok := newRecurrence(freq, int(n), nil)
				return r, whole(sm), ok
			}),
		rule(KindRecurrence, "plural_weekdays", confidence.Contextual,
			`(?i)\b(?:on\s+)?(`+plural+`(?:\s*(?:,|and|&)\s*`+plural+`)*)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				r, ok := newRecurrence(rrule.WEEKLY, 1, scanWeekdays(sm.group(1)))
				return r, whole(sm), ok
			}),
		rule(KindRecurrence, "frequency_word", confidence.Contextual,
			`(?i)\b(daily|nightly|weekly|bi-?weekly|fortnightly|monthly|bi-?monthly|quarterly|yearly|annually)\b`,
			func(sm submatch, _ Reference) (any, types.Span, bool) {
				freq, interval := rrule.WEEKLY, 1
				switch strings.ReplaceAll(strings.ToLower(sm.group(1)), "-", "") {
				case "daily", "nightly":
					freq = rrule.DAILY
				case "biweekly", "fortnightly":
					interval = 2
				case "monthly":
					freq = rrule.MONTHLY
				case "bimonthly":
					freq, interval = rrule.MONTHLY, 2
				case "quarterly":
					freq, interval = rrule.MONTHLY, 3
				case "yearly", "annually":
					freq = rrule.YEARLY
				}
				r, ok := newRecurrence(freq, interval, nil)
				return r, whole(sm), ok
			}),
	}
}
