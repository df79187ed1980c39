package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxEpiWeek is the highest week number an epi-year can have.
const MaxEpiWeek = 53

// EpiWeek is an epidemiological (year, week) pair.
type EpiWeek struct {
	Year int
	Week int
}

func (w EpiWeek) String() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.Week)
}

// dateLayouts are tried in order. Ambiguous day/month strings resolve to the
// US month-first form because it is listed before the day-first form.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"02/01/2006",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"1/2/2006",
}

// ParseDate parses a week-ending date in any of the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("parse date: empty value")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: unrecognized format", s)
}

// ResolveEpiWeek maps a calendar date to its epi-year and epi-week.
func ResolveEpiWeek(t time.Time) EpiWeek {
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	year := date.Year()
	start := firstSunday(year)
	if date.Before(start) {
		year--
		start = firstSunday(year)
	}

	days := int(date.Sub(start).Hours() / 24)
	week := days/7 + 1

	if week > 52 && !date.Before(firstSunday(year+1)) {
		return EpiWeek{Year: year + 1, Week: 1}
	}
	return EpiWeek{Year: year, Week: week}
}

// ResolveDateString parses s and resolves its epi week. ok is false when the
// date cannot be parsed; callers drop the row.
func ResolveDateString(s string) (date time.Time, week EpiWeek, ok bool) {
	date, err := ParseDate(s)
	if err != nil {
		return time.Time{}, EpiWeek{}, false
	}
	return date, ResolveEpiWeek(date), true
}

// ShiftLegacyWeek moves a week back by one, clamping at week 1. The local
// state file labels each week one ahead of the other sources.
func ShiftLegacyWeek(w EpiWeek) EpiWeek {
	w.Week--
	if w.Week < 1 {
		w.Week = 1
	}
	return w
}

func firstSunday(year int) time.Time {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := (7 - int(jan1.Weekday())) % 7
	return jan1.AddDate(0, 0, offset)
}
