// Package store provides the in-memory system of record the engine decides
// against. It is constructed explicitly and passed in; there is no hidden
// process-wide state.
package store

import (
	"sync"
	"time"

	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
)

// Memory holds patients, appointments, reminder events, and visit history
// behind one RWMutex. Writers are already serialized by the appointment
// book; the lock here makes concurrent readers safe.
type Memory struct {
	mu           sync.RWMutex
	patientOrder []string
	patients     map[string]model.Patient
	appointments map[string]model.Appointment
	reminders    map[string][]model.ReminderEvent // appointment id -> events
	visits       map[string][]model.VisitRecord   // patient id -> history
}

func NewMemory() *Memory {
	return &Memory{
		patients:     map[string]model.Patient{},
		appointments: map[string]model.Appointment{},
		reminders:    map[string][]model.ReminderEvent{},
		visits:       map[string][]model.VisitRecord{},
	}
}

// Load seeds the store from persisted state at startup.
func (m *Memory) Load(patients []model.Patient, appts []model.Appointment, events []model.ReminderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range patients {
		if _, seen := m.patients[p.ID]; !seen {
			m.patientOrder = append(m.patientOrder, p.ID)
		}
		m.patients[p.ID] = p
	}
	for _, a := range appts {
		m.appointments[a.ID] = a
	}
	for _, ev := range events {
		m.reminders[ev.AppointmentID] = append(m.reminders[ev.AppointmentID], ev)
	}
}

func (m *Memory) UpsertPatient(p model.Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.patients[p.ID]; !seen {
		m.patientOrder = append(m.patientOrder, p.ID)
	}
	m.patients[p.ID] = p
}

func (m *Memory) PatientByID(id string) (model.Patient, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	return p, ok
}

// Patients returns the directory in registration order.
func (m *Memory) Patients() []model.Patient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Patient, 0, len(m.patientOrder))
	for _, id := range m.patientOrder {
		out = append(out, m.patients[id])
	}
	return out
}

func (m *Memory) AppointmentByID(id string) (model.Appointment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	return a, ok
}

func (m *Memory) AppointmentsOn(date time.Time) []model.Appointment {
	y, mo, d := date.Date()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		ay, amo, ad := a.Start.Date()
		if ay == y && amo == mo && ad == d {
			out = append(out, a)
		}
	}
	return out
}

// CommitBooking inserts the appointment and its reminder events under one
// lock acquisition: readers observe both or neither.
func (m *Memory) CommitBooking(appt model.Appointment, events []model.ReminderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[appt.ID] = appt
	if len(events) > 0 {
		m.reminders[appt.ID] = append(m.reminders[appt.ID], events...)
	}
}

func (m *Memory) RemoveBooking(appointmentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.appointments, appointmentID)
	delete(m.reminders, appointmentID)
}

func (m *Memory) SetStatus(appointmentID string, status model.Status, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[appointmentID]
	if !ok {
		return
	}
	a.Status = status
	if status == model.StatusCancelled {
		cancelled := at
		a.CancelledAt = &cancelled
	}
	m.appointments[appointmentID] = a
}

func (m *Memory) RemindersFor(appointmentID string) []model.ReminderEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.reminders[appointmentID]
	out := make([]model.ReminderEvent, len(events))
	copy(out, events)
	return out
}

func (m *Memory) AddReminders(events []model.ReminderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		m.reminders[ev.AppointmentID] = append(m.reminders[ev.AppointmentID], ev)
	}
}

// RemoveReminders deletes the given events by id. It is the compensation for
// AddReminders when the durable write fails.
func (m *Memory) RemoveReminders(events []model.ReminderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		existing := m.reminders[ev.AppointmentID]
		kept := existing[:0]
		for _, e := range existing {
			if e.ID != ev.ID {
				kept = append(kept, e)
			}
		}
		m.reminders[ev.AppointmentID] = kept
	}
}

// SetReminderStatus records the delivery outcome reported back by the
// notification pipeline.
func (m *Memory) SetReminderStatus(reminderID string, status model.ReminderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for apptID, events := range m.reminders {
		for i := range events {
			if events[i].ID == reminderID {
				events[i].Status = status
				m.reminders[apptID] = events
				return
			}
		}
	}
}

// RecordVisit appends to the patient's history and bumps the visit counter.
// The counter only ever moves forward; after N completed appointments it
// equals N.
func (m *Memory) RecordVisit(v model.VisitRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[v.PatientID]
	if !ok {
		return
	}
	m.visits[v.PatientID] = append(m.visits[v.PatientID], v)
	p.VisitCount++
	visited := v.VisitedAt
	p.LastVisit = &visited
	m.patients[v.PatientID] = p
}

func (m *Memory) VisitHistory(patientID string) []model.VisitRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.visits[patientID]
	out := make([]model.VisitRecord, len(history))
	copy(out, history)
	return out
}
