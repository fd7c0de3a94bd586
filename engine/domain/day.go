package domain

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a civil calendar date (YYYY-MM-DD) in the catalog's fixed zone.
type Day string

// DayOf returns the civil day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	return Day(t.In(loc).Format(dayLayout))
}

// ParseDay validates s as a YYYY-MM-DD date.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", NewValidationError("day", s, ErrInvalidDay)
	}
	return Day(s), nil
}

// DayFromTime converts a DATE column value back to a Day.
func DayFromTime(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// Time returns midnight UTC of the day, the form DATE columns are bound with.
func (d Day) Time() time.Time {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		panic(fmt.Sprintf("domain: malformed day %q", string(d)))
	}
	return t
}

func (d Day) String() string { return string(d) }
