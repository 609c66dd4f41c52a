// Package reminder plans reminder events for committed appointments and
// selects a delivery channel per event.
package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/clock"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
)

// Window is one enabled reminder offset before the appointment start.
type Window struct {
	Kind   string
	Offset time.Duration
}

// ParseWindows reads a comma-separated minutes list ("10080,4320,1440") into
// windows, largest offset first. Invalid or non-positive entries are dropped.
func ParseWindows(raw string) []Window {
	var windows []Window
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			continue
		}
		offset := time.Duration(mins) * time.Minute
		windows = append(windows, Window{Kind: kindFor(offset), Offset: offset})
	}
	return windows
}

// WindowsFromOffsets builds windows from policy-provided offsets, dropping
// non-positive entries.
func WindowsFromOffsets(offsets []time.Duration) []Window {
	var windows []Window
	for _, offset := range offsets {
		if offset <= 0 {
			continue
		}
		windows = append(windows, Window{Kind: kindFor(offset), Offset: offset})
	}
	return windows
}

func kindFor(offset time.Duration) string {
	if offset >= 24*time.Hour && offset%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d-day", int(offset/(24*time.Hour)))
	}
	if offset >= time.Hour && offset%time.Hour == 0 {
		return fmt.Sprintf("%d-hour", int(offset/time.Hour))
	}
	return fmt.Sprintf("%d-minute", int(offset/time.Minute))
}

type Scheduler struct {
	windows []Window
	clk     clock.Clock
	newID   func() string
}

func NewScheduler(windows []Window, clk clock.Clock) *Scheduler {
	return &Scheduler{windows: windows, clk: clk, newID: uuid.NewString}
}

// Plan computes the pending reminder events for an appointment. A window is
// planned only when its fire time is strictly in the future; past-due
// windows are skipped outright, never back-filled or sent immediately.
// Window kinds already present in existing are skipped, so re-planning for
// the same appointment never duplicates events.
func (s *Scheduler) Plan(appt model.Appointment, patient model.Patient, existing []model.ReminderEvent) []model.ReminderEvent {
	planned := make(map[string]bool, len(existing))
	for _, ev := range existing {
		planned[ev.Kind] = true
	}

	now := s.clk.Now()
	channel := SelectChannel(patient)

	var events []model.ReminderEvent
	for _, w := range s.windows {
		if planned[w.Kind] {
			continue
		}
		fireAt := appt.Start.Add(-w.Offset)
		if !fireAt.After(now) {
			continue
		}
		events = append(events, model.ReminderEvent{
			ID:            s.newID(),
			AppointmentID: appt.ID,
			PatientID:     patient.ID,
			Kind:          w.Kind,
			FireAt:        fireAt,
			Status:        model.ReminderPending,
			Channel:       channel,
			Recipient:     patient.ContactFor(channel),
			Body:          Body(patient, appt),
			CreatedAt:     now,
		})
	}
	return events
}

// SelectChannel applies the fixed delivery priority: chat handle on file
// wins, then email, then SMS when the patient has consented, then phone.
// Phone always succeeds as a selection; it means a front-desk call task.
// The patient's PreferredContact field is display-only and never consulted.
func SelectChannel(p model.Patient) model.Channel {
	switch {
	case p.ChatHandle != "":
		return model.ChannelChat
	case p.Email != "":
		return model.ChannelEmail
	case p.SMSConsent:
		return model.ChannelSMS
	default:
		return model.ChannelPhone
	}
}

// Body renders the reminder message text.
func Body(p model.Patient, appt model.Appointment) string {
	return fmt.Sprintf("Hi %s, this is a reminder of your %s appointment on %s at %s.",
		p.Name, appt.Treatment,
		appt.Start.Format("Mon, Jan 2"), appt.Start.Format("15:04"))
}
