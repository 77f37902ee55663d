package learn

import (
	"fmt"
	"strings"
	"time"

	"lbsassist/lib/timezone"
)

// planner items state their deadline either as an absolute date
// ("Wednesday, 12 November 2025"), a year-less date ("Tue, 25 Nov"),
// or just a time of day ("16:00", "Due 16:00", "Starts at 16:00")
// that must be combined with the enclosing date-group heading.

var clockLayouts = []string{"15:04", "3:04pm", "3pm"}

var absoluteLayouts = []string{
	"Monday, 2 January 2006 15:04",
	"Monday, 2 January 2006",
	"2 January 2006 15:04",
	"2 January 2006",
}

var yearlessLayouts = []string{
	"Mon, 2 Jan",
	"Monday, 2 January",
	"2 Jan",
	"2 January",
}

func stripTimePrefixes(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "Due ")
	text = strings.TrimPrefix(text, "Starts at ")
	return strings.TrimSpace(text)
}

// resolveYear pins a year-less month/day to an absolute calendar
// year: a month earlier than the current one can only mean next year.
func resolveYear(month time.Month, now time.Time) int {
	if month < now.Month() {
		return now.Year() + 1
	}
	return now.Year()
}

var dateOnlyLayouts = []string{
	"Monday, 2 January 2006",
	"Mon, 2 Jan 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// parseDate parses a date fragment without a time of day.
func parseDate(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateOnlyLayouts {
		t, err := time.ParseInLocation(layout, text, timezone.Location)
		if err == nil {
			return t, nil
		}
	}
	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, text, timezone.Location)
		if err == nil {
			return time.Date(
				resolveYear(t.Month(), now), t.Month(), t.Day(),
				0, 0, 0, 0, timezone.Location,
			), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date fragment: %q", text)
}

func parseClock(text string) (hour, minute int, err error) {
	text = stripTimePrefixes(text)
	for _, layout := range clockLayouts {
		t, perr := time.Parse(layout, strings.ToLower(text))
		if perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognized time fragment: %q", text)
}

// parseWhen resolves a due fragment to an absolute date-time. When the
// fragment states only a time of day, groupDate (the enclosing date
// heading, already resolved) supplies the calendar date; a zero
// groupDate makes time-only fragments an error.
func parseWhen(text string, groupDate time.Time, now time.Time) (time.Time, error) {
	text = stripTimePrefixes(text)

	for _, layout := range absoluteLayouts {
		t, err := time.ParseInLocation(layout, text, timezone.Location)
		if err == nil {
			return t, nil
		}
	}

	// year-less date with a trailing time, e.g. "25 Nov 16:00"
	if idx := strings.LastIndex(text, " "); idx > 0 {
		datePart, clockPart := text[:idx], text[idx+1:]
		if hour, minute, err := parseClock(clockPart); err == nil {
			if d, err := parseDate(datePart, now); err == nil {
				return time.Date(
					d.Year(), d.Month(), d.Day(),
					hour, minute, 0, 0, timezone.Location,
				), nil
			}
		}
	}

	if d, err := parseDate(text, now); err == nil {
		return d, nil
	}

	hour, minute, err := parseClock(text)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized due fragment: %q", text)
	}
	if groupDate.IsZero() {
		return time.Time{}, fmt.Errorf("time-only fragment %q without a date heading", text)
	}
	return time.Date(
		groupDate.Year(), groupDate.Month(), groupDate.Day(),
		hour, minute, 0, 0, timezone.Location,
	), nil
}
