// Package dates parses the loosely formatted dates clients send.
//
// The mobile and web clients disagree on formats: "1988-12-26", "12/26/1988",
// "Dec 26, 1988", full RFC 3339 timestamps with offsets. dateparse recognises
// all of them without a list of layouts. Ambiguous numeric dates are read
// month-first ("01/02/2024" is January 2nd), and values with no zone are UTC.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/sakif/mealtrack/internal/model"
)

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("dates: empty value")

// ParseTimestamp parses s as an instant and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates: parsing %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ParseDay parses s and keeps only its calendar date, as midnight UTC.
//
// The date is taken as written, before any zone conversion:
// "2024-01-15T23:30:00-05:00" is January 15th, not the 16th it would be in UTC.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates: parsing %q: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Today returns the current UTC calendar day.
func Today(now time.Time) time.Time {
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(model.DayLayout)
}
