// Package book owns appointments: slot validation, conflict detection, the
// status state machine, and the visit-history side effect of completion.
package book

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/availability"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/calendar"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/clock"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/reminder"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrOutsideBusinessHours = errors.New("requested start is outside business hours")
	ErrSlotConflict         = errors.New("time slot already booked")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// Store is the injected appointment/patient store the book operates on.
// Implementations must make CommitBooking atomic: the appointment and its
// reminder events become visible together or not at all.
type Store interface {
	PatientByID(id string) (model.Patient, bool)
	AppointmentByID(id string) (model.Appointment, bool)
	AppointmentsOn(date time.Time) []model.Appointment
	CommitBooking(appt model.Appointment, events []model.ReminderEvent)
	RemoveBooking(appointmentID string)
	SetStatus(appointmentID string, status model.Status, at time.Time)
	RemindersFor(appointmentID string) []model.ReminderEvent
	AddReminders(events []model.ReminderEvent)
	RemoveReminders(events []model.ReminderEvent)
	RecordVisit(v model.VisitRecord)
}

// Request is a booking request as received from a channel.
type Request struct {
	PatientID string
	Date      string // "2006-01-02"
	Time      string // "15:04"
	Duration  time.Duration
	Treatment string
	Source    model.Channel
	StaffIDs  []string
	Notes     string
}

// Book serializes all writes behind one mutex (single-writer discipline per
// clinic): the check-then-commit in Book must be atomic so two racing
// bookings for one slot resolve as exactly one success and one conflict.
// Reads are served from the store's own read locking and may run
// concurrently.
type Book struct {
	mu       sync.Mutex
	store    Store
	cal      *calendar.Calendar
	interval time.Duration
	planner  *reminder.Scheduler
	clk      clock.Clock
	newID    func() string
	loc      *time.Location
}

func New(store Store, cal *calendar.Calendar, interval time.Duration, planner *reminder.Scheduler, clk clock.Clock, loc *time.Location) *Book {
	if loc == nil {
		loc = time.Local
	}
	return &Book{
		store:    store,
		cal:      cal,
		interval: interval,
		planner:  planner,
		clk:      clk,
		newID:    uuid.NewString,
		loc:      loc,
	}
}

// Book validates and commits an appointment together with its planned
// reminder events. Nothing is created on any error path.
func (b *Book) Book(req Request) (model.Appointment, []model.ReminderEvent, error) {
	date, err := calendar.ParseDate(req.Date, b.loc)
	if err != nil {
		return model.Appointment{}, nil, err
	}
	tod, err := calendar.ParseTimeOfDay(req.Time)
	if err != nil {
		return model.Appointment{}, nil, err
	}
	if req.Duration <= 0 {
		req.Duration = b.interval
	}
	start := tod.At(date)

	b.mu.Lock()
	defer b.mu.Unlock()

	patient, ok := b.store.PatientByID(req.PatientID)
	if !ok {
		return model.Appointment{}, nil, fmt.Errorf("%w: %s", ErrPatientNotFound, req.PatientID)
	}
	if !availability.Contains(b.cal, start, b.interval) {
		return model.Appointment{}, nil, fmt.Errorf("%w: %s %s", ErrOutsideBusinessHours, req.Date, req.Time)
	}
	for _, existing := range b.store.AppointmentsOn(date) {
		if existing.Status != model.StatusCancelled && existing.Start.Equal(start) {
			return model.Appointment{}, nil, fmt.Errorf("%w: %s %s", ErrSlotConflict, req.Date, req.Time)
		}
	}

	appt := model.Appointment{
		ID:        b.newID(),
		PatientID: patient.ID,
		Start:     start,
		Duration:  req.Duration,
		Treatment: req.Treatment,
		Status:    model.StatusBooked,
		Source:    req.Source,
		StaffIDs:  req.StaffIDs,
		Notes:     req.Notes,
		CreatedAt: b.clk.Now(),
	}
	events := b.planner.Plan(appt, patient, nil)
	b.store.CommitBooking(appt, events)
	return appt, events, nil
}

// Rollback removes a just-committed booking. It is the compensation hook for
// the caller when downstream persistence of the commit fails.
func (b *Book) Rollback(appointmentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.RemoveBooking(appointmentID)
}

// ScheduleReminders re-plans reminder events for an existing appointment.
// Windows already planned are skipped, so calling it again is a no-op.
func (b *Book) ScheduleReminders(appointmentID string) ([]model.ReminderEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	appt, ok := b.store.AppointmentByID(appointmentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, appointmentID)
	}
	patient, ok := b.store.PatientByID(appt.PatientID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, appt.PatientID)
	}
	events := b.planner.Plan(appt, patient, b.store.RemindersFor(appointmentID))
	if len(events) > 0 {
		b.store.AddReminders(events)
	}
	return events, nil
}

// DiscardReminders removes events just added by ScheduleReminders. Like
// Rollback, it is the compensation hook for a failed downstream persist.
func (b *Book) DiscardReminders(events []model.ReminderEvent) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.RemoveReminders(events)
}

// Transition moves an appointment through the status state machine. On the
// transition to completed it also appends the visit record and returns it so
// the caller can persist the patient-side effect.
func (b *Book) Transition(appointmentID string, next model.Status) (model.Appointment, *model.VisitRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	appt, ok := b.store.AppointmentByID(appointmentID)
	if !ok {
		return model.Appointment{}, nil, fmt.Errorf("%w: %s", ErrAppointmentNotFound, appointmentID)
	}
	if !appt.Status.CanTransitionTo(next) {
		return model.Appointment{}, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, next)
	}

	now := b.clk.Now()
	b.store.SetStatus(appointmentID, next, now)
	appt, _ = b.store.AppointmentByID(appointmentID)

	var visit *model.VisitRecord
	if next == model.StatusCompleted {
		visit = &model.VisitRecord{
			PatientID:     appt.PatientID,
			AppointmentID: appt.ID,
			VisitedAt:     now,
			Treatment:     appt.Treatment,
		}
		b.store.RecordVisit(*visit)
	}
	return appt, visit, nil
}

// ForDate returns the day's appointments ordered by start time.
func (b *Book) ForDate(date time.Time) []model.Appointment {
	appts := b.store.AppointmentsOn(date)
	sort.Slice(appts, func(i, j int) bool { return appts[i].Start.Before(appts[j].Start) })
	return appts
}
