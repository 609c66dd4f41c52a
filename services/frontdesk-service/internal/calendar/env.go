package calendar

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// FromConfig builds a calendar from the env-style clinic configuration:
//
//	hours:    "mon=09:00-18:00/12:00-13:00;tue=09:00-18:00;..."
//	          (the /hh:mm-hh:mm suffix is the optional lunch break)
//	closed:   "sun,thu"  (recurring weekday holidays)
//	holidays: "2026-01-01=New Year,2026-08-13=Obon"
func FromConfig(hours, closed, holidays string) (*Calendar, error) {
	week := map[time.Weekday]DayHours{}
	for _, entry := range strings.Split(hours, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, spec, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("clinic hours entry %q: want day=open-close", entry)
		}
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("clinic hours entry %q: unknown weekday", entry)
		}
		dh, err := parseDayHours(spec)
		if err != nil {
			return nil, fmt.Errorf("clinic hours for %s: %w", name, err)
		}
		week[day] = dh
	}

	var closedDays []time.Weekday
	for _, name := range strings.Split(closed, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		day, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("closed weekdays: unknown weekday %q", name)
		}
		closedDays = append(closedDays, day)
	}

	var specials []Holiday
	for _, entry := range strings.Split(holidays, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		date, reason, _ := strings.Cut(entry, "=")
		specials = append(specials, Holiday{Date: strings.TrimSpace(date), Reason: strings.TrimSpace(reason)})
	}

	return New(week, closedDays, specials)
}

func parseDayHours(spec string) (DayHours, error) {
	working, lunch, hasLunch := strings.Cut(spec, "/")

	openRaw, closeRaw, ok := strings.Cut(strings.TrimSpace(working), "-")
	if !ok {
		return DayHours{}, fmt.Errorf("want open-close, got %q", spec)
	}
	open, err := ParseTimeOfDay(strings.TrimSpace(openRaw))
	if err != nil {
		return DayHours{}, err
	}
	close, err := ParseTimeOfDay(strings.TrimSpace(closeRaw))
	if err != nil {
		return DayHours{}, err
	}
	dh := DayHours{Open: open, Close: close}

	if hasLunch {
		startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(lunch), "-")
		if !ok {
			return DayHours{}, fmt.Errorf("want lunch start-end, got %q", lunch)
		}
		dh.LunchStart, err = ParseTimeOfDay(strings.TrimSpace(startRaw))
		if err != nil {
			return DayHours{}, err
		}
		dh.LunchEnd, err = ParseTimeOfDay(strings.TrimSpace(endRaw))
		if err != nil {
			return DayHours{}, err
		}
		dh.HasLunch = true
	}
	return dh, nil
}
