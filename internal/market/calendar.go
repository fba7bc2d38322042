// Package market provides exchange-local calendar helpers used for day counts
// and expiration cutoffs.
package market

import (
	"fmt"
	"time"
)

const (
	// DefaultTimezone is the exchange timezone for US equity options.
	DefaultTimezone = "America/New_York"
	// DefaultCloseTime is the regular-session close used as the expiration cutoff.
	DefaultCloseTime = "16:00"
)

// Clock supplies the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

// Calendar converts instants into exchange-local trading dates and decides
// whether an expiration date has passed the market-close cutoff.
type Calendar struct {
	loc         *time.Location
	closeHour   int
	closeMinute int
}

// NewCalendar builds a calendar for the given IANA timezone and "HH:MM" close time.
// Empty arguments fall back to DefaultTimezone and DefaultCloseTime.
func NewCalendar(timezone, closeTime string) (*Calendar, error) {
	if closeTime == "" {
		closeTime = DefaultCloseTime
	}
	clock, err := time.Parse("15:04", closeTime)
	if err != nil {
		return nil, fmt.Errorf("parsing market close %q: %w", closeTime, err)
	}
	return &Calendar{
		loc:         LoadLocation(timezone),
		closeHour:   clock.Hour(),
		closeMinute: clock.Minute(),
	}, nil
}

// DefaultCalendar returns the New York 16:00 calendar.
func DefaultCalendar() *Calendar {
	return &Calendar{loc: LoadLocation(DefaultTimezone), closeHour: 16}
}

// LoadLocation resolves tz, falling back to America/New_York and finally to a
// fixed ET offset for minimal containers without tzdata.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		tz = DefaultTimezone
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.FixedZone("ET", -5*60*60)
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Today returns the exchange-local calendar date of now.
func (c *Calendar) Today(now time.Time) time.Time {
	return DateOf(now.In(c.loc))
}

// cutoffPassed reports whether now is at or after the close on its local date.
func (c *Calendar) cutoffPassed(local time.Time) bool {
	if local.Hour() != c.closeHour {
		return local.Hour() > c.closeHour
	}
	return local.Minute() >= c.closeMinute
}

// HasExpired reports whether an option expiring on the given date is finished:
// the date is strictly in the past, or it is today and the close has been reached.
func (c *Calendar) HasExpired(expiration, now time.Time) bool {
	local := now.In(c.loc)
	today := DateOf(local)
	exp := DateOf(expiration)
	if exp.Before(today) {
		return true
	}
	return exp.Equal(today) && c.cutoffPassed(local)
}

// DateOf truncates t to its calendar date (in t's own location) and returns it
// as midnight UTC so dates compare and subtract exactly.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
// The result is negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}
