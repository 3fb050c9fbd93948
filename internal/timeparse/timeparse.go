// Package timeparse turns free-form date guesses ("March 2024",
// "Jan 15 2023", "2024-06-01", "2023") into Unix millisecond
// timestamps.
package timeparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnrecognized is returned when no supported format matches.
var ErrUnrecognized = errors.New("unrecognized time format")

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

const monthAlternation = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	monthDayYearRe = regexp.MustCompile(`^` + monthAlternation + `\s+(\d{1,2})(?:st|nd|rd|th)?\s*,?\s*(\d{4})$`)
	monthYearRe    = regexp.MustCompile(`^` + monthAlternation + `\s+(\d{4})$`)
	yearRe         = regexp.MustCompile(`^\d{4}$`)
)

// Parse converts a guess string to a Unix millisecond timestamp.
// Month-only guesses resolve to the 15th; year-only guesses resolve to
// June 15th, the middle of the year.
func Parse(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, ErrUnrecognized
	}

	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t.UnixMilli(), nil
	}

	if m := monthDayYearRe.FindStringSubmatch(s); m != nil {
		month := months[m[1]]
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes out-of-range days; reject those.
		if t.Day() != day || t.Month() != month {
			return 0, ErrUnrecognized
		}
		return t.UnixMilli(), nil
	}

	if m := monthYearRe.FindStringSubmatch(s); m != nil {
		month := months[m[1]]
		year, _ := strconv.Atoi(m[2])
		return time.Date(year, month, 15, 0, 0, 0, 0, time.UTC).UnixMilli(), nil
	}

	if yearRe.MatchString(s) {
		year, _ := strconv.Atoi(s)
		return time.Date(year, time.June, 15, 0, 0, 0, 0, time.UTC).UnixMilli(), nil
	}

	return 0, ErrUnrecognized
}
