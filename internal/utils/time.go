package utils

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitual/internal/constants"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return loc, nil
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	_, err := LoadLocation(timezone)
	return err == nil
}

// DayKey returns the calendar-day marker (YYYY-MM-DD) of t in t's own location.
func DayKey(t time.Time) string {
	return t.Format(constants.DateFormat)
}

// ValidateDayKey checks that s is a well-formed YYYY-MM-DD marker.
func ValidateDayKey(s string) bool {
	_, err := time.Parse(constants.DateFormat, s)
	return err == nil
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns midnight of the Monday starting t's ISO week, in t's location.
// Sunday belongs to the week that started six days earlier.
func WeekStart(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := int(day.Weekday()) - int(time.Monday)
	if day.Weekday() == time.Sunday {
		offset = 6
	}
	return day.AddDate(0, 0, -offset)
}

// ParseDateInLocation reads a day key as midnight of that day in loc.
func ParseDateInLocation(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(constants.DateFormat, key, loc)
}
