// Package availability derives the bookable slot grid for a date from the
// business calendar.
package availability

import (
	"time"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/calendar"
)

// Slots returns the ordered start times bookable on the given date: every
// interval step from open up to (but excluding) close, with slots that start
// inside the lunch break left out. Lunch slots are holes in the grid, not a
// pause; the cursor still advances by one interval across them, so the
// afternoon grid stays aligned. All bounds use half-open semantics
// (open <= t < close, lunchStart <= t < lunchEnd).
//
// A pure function of calendar state and inputs; calling it again with the
// same arguments reproduces the identical sequence.
func Slots(cal *calendar.Calendar, date time.Time, interval time.Duration) []time.Time {
	if interval <= 0 {
		return nil
	}
	hours, open := cal.HoursFor(date)
	if !open {
		return nil
	}

	step := calendar.TimeOfDay(interval / time.Minute)
	if step <= 0 {
		return nil
	}

	var slots []time.Time
	for t := hours.Open; t < hours.Close; t += step {
		if hours.InLunch(t) {
			continue
		}
		slots = append(slots, t.At(date))
	}
	return slots
}

// Contains reports whether start is one of the bookable slot times for its
// own date.
func Contains(cal *calendar.Calendar, start time.Time, interval time.Duration) bool {
	for _, s := range Slots(cal, start, interval) {
		if s.Equal(start) {
			return true
		}
	}
	return false
}
