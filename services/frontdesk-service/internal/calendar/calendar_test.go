package calendar

import (
	"errors"
	"testing"
	"time"
)

func mustCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := FromConfig(
		"mon=09:00-18:00/12:00-13:00;tue=09:00-18:00/12:00-13:00;wed=09:00-18:00/12:00-13:00;thu=09:00-18:00/12:00-13:00;fri=09:00-18:00/12:00-13:00;sat=09:00-13:00",
		"sun",
		"2026-01-01=New Year,2026-08-13=Obon",
	)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	return cal
}

func TestHoursFor_OpenWeekday(t *testing.T) {
	cal := mustCalendar(t)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	hours, open := cal.HoursFor(monday)
	if !open {
		t.Fatal("expected Monday to be open")
	}
	if hours.Open.String() != "09:00" || hours.Close.String() != "18:00" {
		t.Fatalf("unexpected hours: %s-%s", hours.Open, hours.Close)
	}
	if !hours.HasLunch || hours.LunchStart.String() != "12:00" || hours.LunchEnd.String() != "13:00" {
		t.Fatalf("unexpected lunch: %+v", hours)
	}
}

func TestIsOpen_RegularHoliday(t *testing.T) {
	cal := mustCalendar(t)
	sunday := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	if cal.IsOpen(sunday) {
		t.Fatal("expected Sunday to be closed (regular holiday)")
	}
}

func TestIsOpen_SpecialHoliday(t *testing.T) {
	cal := mustCalendar(t)
	// 2026-08-13 is a Thursday; closed by the special entry, not the weekday.
	obon := time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC)
	if cal.IsOpen(obon) {
		t.Fatal("expected special holiday to be closed")
	}
	reason, ok := cal.HolidayReason(obon)
	if !ok || reason != "Obon" {
		t.Fatalf("expected Obon reason, got %q ok=%v", reason, ok)
	}
	// The same weekday one week later is open: special holidays do not repeat.
	if !cal.IsOpen(obon.AddDate(0, 0, 7)) {
		t.Fatal("expected the following Thursday to be open")
	}
}

func TestNew_RejectsInvertedHours(t *testing.T) {
	_, err := New(map[time.Weekday]DayHours{
		time.Monday: {Open: 18 * 60, Close: 9 * 60},
	}, nil, nil)
	if err == nil {
		t.Fatal("expected error for open after close")
	}
}

func TestNew_RejectsLunchOutsideHours(t *testing.T) {
	_, err := New(map[time.Weekday]DayHours{
		time.Monday: {Open: 9 * 60, Close: 18 * 60, LunchStart: 8 * 60, LunchEnd: 13 * 60, HasLunch: true},
	}, nil, nil)
	if err == nil {
		t.Fatal("expected error for lunch before open")
	}
}

func TestParseDate_Invalid(t *testing.T) {
	if _, err := ParseDate("not-a-date", time.UTC); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := ParseDate("2026-02-30", time.UTC); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate for impossible date, got %v", err)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatalf("ParseTimeOfDay failed: %v", err)
	}
	if tod != 9*60+30 {
		t.Fatalf("expected 570 minutes, got %d", tod)
	}
	if _, err := ParseTimeOfDay("25:00"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestFromConfig_RejectsUnknownWeekday(t *testing.T) {
	if _, err := FromConfig("funday=09:00-18:00", "", ""); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}
