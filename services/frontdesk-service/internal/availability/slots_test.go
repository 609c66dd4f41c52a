package availability

import (
	"testing"
	"time"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/calendar"
)

func weekdayCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.FromConfig(
		"mon=09:00-18:00/12:00-13:00;tue=09:00-18:00/12:00-13:00;wed=09:00-18:00/12:00-13:00;thu=09:00-18:00/12:00-13:00;fri=09:00-18:00/12:00-13:00",
		"sun",
		"2026-09-23=Autumn Equinox",
	)
	if err != nil {
		t.Fatalf("calendar setup failed: %v", err)
	}
	return cal
}

func clockTimes(slots []time.Time) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Format("15:04"))
	}
	return out
}

func TestSlots_MondayGrid(t *testing.T) {
	cal := weekdayCalendar(t)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	got := clockTimes(Slots(cal, monday, 30*time.Minute))
	want := []string{
		"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
		"13:00", "13:30", "14:00", "14:30", "15:00", "15:30",
		"16:00", "16:30", "17:00", "17:30",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	for _, s := range got {
		if s == "12:00" || s == "12:30" {
			t.Fatalf("lunch slot %s must not be emitted", s)
		}
	}
}

func TestSlots_ClosedDates(t *testing.T) {
	cal := weekdayCalendar(t)

	sunday := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	if got := Slots(cal, sunday, 30*time.Minute); len(got) != 0 {
		t.Fatalf("expected no slots on a regular holiday, got %v", clockTimes(got))
	}

	special := time.Date(2026, 9, 23, 0, 0, 0, 0, time.UTC)
	if got := Slots(cal, special, 30*time.Minute); len(got) != 0 {
		t.Fatalf("expected no slots on a special holiday, got %v", clockTimes(got))
	}

	saturday := time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)
	if got := Slots(cal, saturday, 30*time.Minute); len(got) != 0 {
		t.Fatalf("expected no slots on a day without hours, got %v", clockTimes(got))
	}
}

func TestSlots_Restartable(t *testing.T) {
	cal := weekdayCalendar(t)
	tuesday := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)

	first := Slots(cal, tuesday, 15*time.Minute)
	second := Slots(cal, tuesday, 15*time.Minute)
	if len(first) != len(second) {
		t.Fatalf("regenerated grid differs in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("slot %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestSlots_UnevenIntervalHalfOpenBounds(t *testing.T) {
	// 50-minute steps do not divide the lunch or close boundaries; inclusion
	// must still follow >= lower / < upper on both.
	cal, err := calendar.FromConfig("wed=09:00-17:00/12:00-13:00", "", "")
	if err != nil {
		t.Fatalf("calendar setup failed: %v", err)
	}
	wednesday := time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC)

	got := clockTimes(Slots(cal, wednesday, 50*time.Minute))
	want := []string{"09:00", "09:50", "10:40", "11:30", "13:10", "14:00", "14:50", "15:40", "16:30"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSlots_NonPositiveInterval(t *testing.T) {
	cal := weekdayCalendar(t)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	if got := Slots(cal, monday, 0); got != nil {
		t.Fatalf("expected nil for zero interval, got %v", clockTimes(got))
	}
}

func TestContains(t *testing.T) {
	cal := weekdayCalendar(t)

	inGrid := time.Date(2026, 9, 7, 13, 0, 0, 0, time.UTC)
	if !Contains(cal, inGrid, 30*time.Minute) {
		t.Fatal("13:00 should be a bookable slot")
	}
	lunch := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	if Contains(cal, lunch, 30*time.Minute) {
		t.Fatal("12:00 falls in lunch and must not be bookable")
	}
	offGrid := time.Date(2026, 9, 7, 9, 10, 0, 0, time.UTC)
	if Contains(cal, offGrid, 30*time.Minute) {
		t.Fatal("09:10 is off the slot grid and must not be bookable")
	}
}
