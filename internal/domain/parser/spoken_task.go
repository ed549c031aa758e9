// Package parser turns a spoken transcript into a structured task. It is a
// pure function of (transcript, now): no I/O, no clock reads, deterministic,
// and it never fails. Unparsable date expressions just leave When nil.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ParsedTask is the structured form handed to the task store.
type ParsedTask struct {
	Title         string     `json:"title"`
	When          *time.Time `json:"when,omitempty"`
	RawTranscript string     `json:"raw_transcript"`
}

const untitledTask = "Untitled task"

var (
	commandRe  = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:create|add|make|new|schedule|remind me(?: to)?|set reminder(?: to)?)\b[:,]?\s*`)
	typeWordRe = regexp.MustCompile(`(?i)^\s*(?:a\s+|an\s+)?(?:task|reminder|meeting|appointment|event|note)\b[:,]?\s*`)

	tomorrowRe    = regexp.MustCompile(`(?i)\btomorrow\b`)
	tonightRe     = regexp.MustCompile(`(?i)\btonight\b`)
	todayRe       = regexp.MustCompile(`(?i)\btoday\b`)
	nextWeekRe    = regexp.MustCompile(`(?i)\bnext week\b`)
	nextWeekdayRe = regexp.MustCompile(`(?i)\bnext (monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	monthDayRe    = regexp.MustCompile(`(?i)\bon (january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	numericDateRe = regexp.MustCompile(`\bon (\d{1,2})/(\d{1,2})\b`)
	timeRe        = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)\b|\bat\s+(\d{1,2})(?::(\d{2}))?\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// Default clock times when a date qualifier carries no explicit time.
const (
	defaultHour        = 9
	tonightDefaultHour = 20
	todayDefaultHour   = 14
)

// ParseSpokenTask extracts a title and an optional resolved datetime from a
// transcript. Dates resolve relative to now, in now's location.
func ParseSpokenTask(transcript string, now time.Time) ParsedTask {
	task := ParsedTask{RawTranscript: transcript}

	text := strings.TrimSpace(transcript)
	text = commandRe.ReplaceAllString(text, "")
	text = typeWordRe.ReplaceAllString(text, "")

	text, clock := extractTime(text)
	text, when := resolveDate(text, now, clock)
	task.When = when

	task.Title = buildTitle(text)
	return task
}

// clockTime is an extracted time-of-day, already converted to 24-hour.
type clockTime struct {
	hour, minute int
}

// extractTime pulls the first clock expression out of the text and returns
// the text without it.
func extractTime(text string) (string, *clockTime) {
	m := timeRe.FindStringSubmatchIndex(text)
	if m == nil {
		return text, nil
	}

	groups := timeRe.FindStringSubmatch(text)
	var hourStr, minStr, meridiem string
	if groups[1] != "" {
		hourStr, minStr, meridiem = groups[1], groups[2], strings.ToLower(groups[3])
	} else {
		hourStr, minStr = groups[4], groups[5]
	}

	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour > 23 {
		return text, nil
	}
	minute := 0
	if minStr != "" {
		minute, err = strconv.Atoi(minStr)
		if err != nil || minute > 59 {
			return text, nil
		}
	}

	switch {
	case strings.HasPrefix(meridiem, "p") && hour < 12:
		hour += 12
	case strings.HasPrefix(meridiem, "a") && hour == 12:
		hour = 0
	}

	remainder := text[:m[0]] + text[m[1]:]
	return remainder, &clockTime{hour: hour, minute: minute}
}

// resolveDate finds the first date qualifier by precedence, removes it from
// the text, and combines it with the extracted clock time. A bare clock time
// with no date qualifier means today, or tomorrow once that time has passed.
func resolveDate(text string, now time.Time, clock *clockTime) (string, *time.Time) {
	type resolved struct {
		day  time.Time
		hour int
	}

	var r *resolved
	switch {
	case tomorrowRe.MatchString(text):
		text = tomorrowRe.ReplaceAllString(text, "")
		r = &resolved{day: now.AddDate(0, 0, 1), hour: defaultHour}
	case tonightRe.MatchString(text):
		text = tonightRe.ReplaceAllString(text, "")
		r = &resolved{day: now, hour: tonightDefaultHour}
	case todayRe.MatchString(text):
		text = todayRe.ReplaceAllString(text, "")
		r = &resolved{day: now, hour: todayDefaultHour}
	case nextWeekRe.MatchString(text):
		text = nextWeekRe.ReplaceAllString(text, "")
		r = &resolved{day: now.AddDate(0, 0, 7), hour: defaultHour}
	case nextWeekdayRe.MatchString(text):
		groups := nextWeekdayRe.FindStringSubmatch(text)
		text = nextWeekdayRe.ReplaceAllString(text, "")
		target := weekdays[strings.ToLower(groups[1])]
		ahead := (int(target) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			// "next monday" said on a Monday means a week out, not today.
			ahead = 7
		}
		r = &resolved{day: now.AddDate(0, 0, ahead), hour: defaultHour}
	case monthDayRe.MatchString(text):
		groups := monthDayRe.FindStringSubmatch(text)
		month := months[strings.ToLower(groups[1])]
		day, err := strconv.Atoi(groups[2])
		if err == nil && day >= 1 && day <= 31 {
			text = monthDayRe.ReplaceAllString(text, "")
			r = &resolved{
				day:  time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location()),
				hour: defaultHour,
			}
		}
	case numericDateRe.MatchString(text):
		groups := numericDateRe.FindStringSubmatch(text)
		month, merr := strconv.Atoi(groups[1])
		day, derr := strconv.Atoi(groups[2])
		if merr == nil && derr == nil && month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			text = numericDateRe.ReplaceAllString(text, "")
			r = &resolved{
				day:  time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location()),
				hour: defaultHour,
			}
		}
	}

	if r == nil {
		if clock == nil {
			return text, nil
		}
		when := time.Date(now.Year(), now.Month(), now.Day(), clock.hour, clock.minute, 0, 0, now.Location())
		if !when.After(now) {
			when = when.AddDate(0, 0, 1)
		}
		return text, &when
	}

	hour, minute := r.hour, 0
	if clock != nil {
		hour, minute = clock.hour, clock.minute
	}
	when := time.Date(r.day.Year(), r.day.Month(), r.day.Day(), hour, minute, 0, 0, now.Location())
	return text, &when
}

// buildTitle cleans the remainder into a display title.
func buildTitle(text string) string {
	text = strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",.:;!?-", r)
	})
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return untitledTask
	}
	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
