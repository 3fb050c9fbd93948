package timeparse

import (
	"errors"
	"testing"
	"time"
)

func ms(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"2024-06-15", ms(2024, time.June, 15)},
		{"  2024-06-15  ", ms(2024, time.June, 15)},
		{"March 2024", ms(2024, time.March, 15)},
		{"Jan 2023", ms(2023, time.January, 15)},
		{"DECEMBER 2022", ms(2022, time.December, 15)},
		{"January 15 2023", ms(2023, time.January, 15)},
		{"Jan 15 2023", ms(2023, time.January, 15)},
		{"Jan 1st 2023", ms(2023, time.January, 1)},
		{"January 15, 2023", ms(2023, time.January, 15)},
		{"2023", ms(2023, time.June, 15)},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseAllMonths(t *testing.T) {
	full := []string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}
	abbr := []string{
		"Jan", "Feb", "Mar", "Apr", "May", "Jun",
		"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
	}
	for i := 0; i < 12; i++ {
		want := ms(2023, time.Month(i+1), 15)
		for _, name := range []string{full[i], abbr[i]} {
			got, err := Parse(name + " 2023")
			if err != nil {
				t.Errorf("Parse(%q 2023): %v", name, err)
				continue
			}
			if got != want {
				t.Errorf("Parse(%q 2023) = %d, want %d", name, got, want)
			}
		}
	}
}

func TestParseUnrecognized(t *testing.T) {
	for _, in := range []string{"not a date", "yesterday", "", "13/25/2023", "Feb 30 2023"} {
		if _, err := Parse(in); !errors.Is(err, ErrUnrecognized) {
			t.Errorf("Parse(%q): expected ErrUnrecognized, got %v", in, err)
		}
	}
}
