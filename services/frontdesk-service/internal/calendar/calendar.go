// Package calendar models the clinic's business calendar: weekly working
// hours with an optional lunch break, recurring weekday holidays, and
// explicit special-holiday dates.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDate is returned for malformed date or time-of-day input.
var ErrInvalidDate = errors.New("invalid date")

const dateLayout = "2006-01-02"

// TimeOfDay is minutes since midnight, clinic-local.
type TimeOfDay int

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// At anchors the time-of-day on the given calendar date.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, date.Location())
}

// ParseTimeOfDay parses "15:04" into minutes since midnight.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidDate, raw)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidDate, raw)
	}
	return TimeOfDay(h*60 + m), nil
}

// ParseDate parses "2006-01-02" in the given location.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// DayHours is the working window for one weekday. Lunch is optional; when
// present it must sit strictly inside the open window.
type DayHours struct {
	Open       TimeOfDay
	Close      TimeOfDay
	LunchStart TimeOfDay
	LunchEnd   TimeOfDay
	HasLunch   bool
}

func (h DayHours) validate(day time.Weekday) error {
	if h.Open >= h.Close {
		return fmt.Errorf("%s: open %s must precede close %s", day, h.Open, h.Close)
	}
	if !h.HasLunch {
		return nil
	}
	if h.Open >= h.LunchStart || h.LunchStart >= h.LunchEnd || h.LunchEnd >= h.Close {
		return fmt.Errorf("%s: lunch %s-%s must sit inside %s-%s",
			day, h.LunchStart, h.LunchEnd, h.Open, h.Close)
	}
	return nil
}

// InLunch reports whether t falls inside the half-open lunch interval
// [LunchStart, LunchEnd).
func (h DayHours) InLunch(t TimeOfDay) bool {
	return h.HasLunch && t >= h.LunchStart && t < h.LunchEnd
}

// Holiday is a dated special closure with a display reason. Unlike regular
// weekday holidays it does not repeat yearly.
type Holiday struct {
	Date   string // "2006-01-02"
	Reason string
}

// Calendar answers whether the clinic is open on a date and with what hours.
// It is immutable after construction and safe for concurrent readers.
type Calendar struct {
	week           map[time.Weekday]DayHours
	closedWeekdays map[time.Weekday]bool
	holidays       map[string]string // date -> reason
}

func New(week map[time.Weekday]DayHours, closedWeekdays []time.Weekday, holidays []Holiday) (*Calendar, error) {
	cal := &Calendar{
		week:           make(map[time.Weekday]DayHours, len(week)),
		closedWeekdays: make(map[time.Weekday]bool, len(closedWeekdays)),
		holidays:       make(map[string]string, len(holidays)),
	}
	for day, hours := range week {
		if err := hours.validate(day); err != nil {
			return nil, err
		}
		cal.week[day] = hours
	}
	for _, day := range closedWeekdays {
		cal.closedWeekdays[day] = true
	}
	for _, h := range holidays {
		if _, err := time.Parse(dateLayout, h.Date); err != nil {
			return nil, fmt.Errorf("%w: holiday %q", ErrInvalidDate, h.Date)
		}
		cal.holidays[h.Date] = h.Reason
	}
	return cal, nil
}

// IsOpen reports whether the clinic is bookable on the given date.
func (c *Calendar) IsOpen(date time.Time) bool {
	_, open := c.HoursFor(date)
	return open
}

// HoursFor returns the working hours for a date, or ok=false when the date
// is a regular weekday holiday, a special holiday, or has no hours on file.
func (c *Calendar) HoursFor(date time.Time) (DayHours, bool) {
	if c.closedWeekdays[date.Weekday()] {
		return DayHours{}, false
	}
	if _, holiday := c.holidays[date.Format(dateLayout)]; holiday {
		return DayHours{}, false
	}
	hours, ok := c.week[date.Weekday()]
	if !ok {
		return DayHours{}, false
	}
	return hours, true
}

// HolidayReason returns the reason for a special holiday, if the date is one.
func (c *Calendar) HolidayReason(date time.Time) (string, bool) {
	reason, ok := c.holidays[date.Format(dateLayout)]
	return reason, ok
}
