// Package calendar holds the date and time arithmetic shared by slot
// availability, booking and reminders. Every wall-clock computation happens in
// the clinic's configured location; instants are compared as absolute times.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Work shifts. Hours are inclusive and one slot is offered per whole hour.
var (
	MorningShift   = Shift{FirstHour: 7, LastHour: 11}
	AfternoonShift = Shift{FirstHour: 14, LastHour: 17}
)

// Shift is a block of bookable hours inside a business day.
type Shift struct {
	FirstHour int
	LastHour  int
}

// Hours lists the slot start hours of the shift in ascending order.
func (s Shift) Hours() []int {
	hours := make([]int, 0, s.LastHour-s.FirstHour+1)
	for h := s.FirstHour; h <= s.LastHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// ShiftHours returns the morning block followed by the afternoon block.
func ShiftHours() []int {
	return append(MorningShift.Hours(), AfternoonShift.Hours()...)
}

// ErrInvalidDate is returned when a date string cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// ErrInvalidClock is returned when an hour-minute string cannot be parsed.
var ErrInvalidClock = errors.New("invalid time")

// Clock pins calendar math to a single location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a Clock for loc. A nil location means UTC.
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// WithNow returns a copy of the clock that reads the current time from now.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the clinic location.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// StartOfDay returns midnight of t's date in the clinic location.
func (c *Clock) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// TruncateHour drops minutes and seconds in the clinic location.
func (c *Clock) TruncateHour(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, c.loc)
}

// SlotStart returns the instant at hour:00 on day's date.
func (c *Clock) SlotStart(day time.Time, hour int) time.Time {
	day = day.In(c.loc)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, c.loc)
}

// IsBusinessDay reports whether t falls Monday through Friday.
func (c *Clock) IsBusinessDay(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsSlotStart reports whether t is an instant the slot grid offers: a business
// day, a shift hour, zero minutes and seconds.
func (c *Clock) IsSlotStart(t time.Time) bool {
	if !c.IsBusinessDay(t) || !t.Equal(c.TruncateHour(t)) {
		return false
	}
	h := t.In(c.loc).Hour()
	for _, shift := range []Shift{MorningShift, AfternoonShift} {
		if h >= shift.FirstHour && h <= shift.LastHour {
			return true
		}
	}
	return false
}

// BusinessDays returns the business days among the n calendar days starting
// at from's date, each at midnight.
func (c *Clock) BusinessDays(from time.Time, n int) []time.Time {
	start := c.StartOfDay(from)
	days := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		if c.IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// ParseDate accepts RFC3339, a local date-time or a bare date and returns the
// date portion at midnight in the clinic location. Any time of day is dropped.
func (c *Clock) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", DateLayout}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// NormalizeClock turns "9", "9:5", "09:05" or "09:05:00" into "09:05:00".
func NormalizeClock(s string) (string, error) {
	h, m, err := parseClock(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d:00", h, m), nil
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 || parts[0] == "" {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, ok := clockField(parts[0], 23)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) >= 2 && parts[1] != "" {
		if minute, ok = clockField(parts[1], 59); !ok {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	if len(parts) == 3 {
		if _, ok := clockField(parts[2], 59); !ok {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	return hour, minute, nil
}

// clockField parses one or two ASCII digits no greater than max.
func clockField(s string, max int) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > max {
		return 0, false
	}
	return n, true
}

// Combine joins the date portion of date with the hour-minute string hhmm.
func (c *Clock) Combine(date, hhmm string) (time.Time, error) {
	day, err := c.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	h, m, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, c.loc), nil
}

// FormatDate renders t's date in the clinic location.
func (c *Clock) FormatDate(t time.Time) string { return t.In(c.loc).Format(DateLayout) }

// FormatClock renders t's hour and minute in the clinic location.
func (c *Clock) FormatClock(t time.Time) string { return t.In(c.loc).Format(ClockLayout) }
