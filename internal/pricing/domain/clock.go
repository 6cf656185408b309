package pricing

import (
	"fmt"
	"time"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
)

// ClockTime is a wall clock time expressed as minutes after midnight.
type ClockTime int

// ParseClock parses a strict HH:MM value.
func ParseClock(value string) (ClockTime, error) {
	if len(value) != 5 || value[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, value)
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, value)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// MustParseClock is ParseClock for literals known to be valid.
func MustParseClock(value string) ClockTime {
	c, err := ParseClock(value)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the HH:MM form.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// IsWithinWindow reports whether t lies in the closed interval [start, end].
// A window with start > end crosses midnight.
func IsWithinWindow(t, start, end ClockTime) bool {
	if start <= end {
		return t >= start && t <= end
	}
	return t >= start || t <= end
}

// IsWithinWindowString is IsWithinWindow over HH:MM strings.
func IsWithinWindowString(t, start, end string) (bool, error) {
	tc, err := ParseClock(t)
	if err != nil {
		return false, err
	}
	sc, err := ParseClock(start)
	if err != nil {
		return false, err
	}
	ec, err := ParseClock(end)
	if err != nil {
		return false, err
	}
	return IsWithinWindow(tc, sc, ec), nil
}

// DurationMinutes returns the minutes elapsed between start and end on date.
// An end earlier than start is taken to fall on the following day.
func DurationMinutes(date, start, end string) (int, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	sc, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	ec, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	from := day.Add(time.Duration(sc) * time.Minute)
	to := day.Add(time.Duration(ec) * time.Minute)
	if to.Before(from) {
		to = to.AddDate(0, 0, 1)
	}
	return int(to.Sub(from) / time.Minute), nil
}

// ParseDate parses a YYYY-MM-DD procedure date.
func ParseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return day, nil
}

// MaxDurationMinutes is the longest duration a single procedure may have.
const MaxDurationMinutes = minutesPerDay
