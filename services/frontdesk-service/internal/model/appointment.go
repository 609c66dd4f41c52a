package model

import "time"

// Status is the appointment lifecycle state. The happy path is linear
// (booked -> confirmed -> checked_in -> completed); cancellation is allowed
// from any non-terminal state. completed and cancelled are terminal.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusConfirmed Status = "confirmed"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusBooked:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn: {StatusCompleted, StatusCancelled},
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusBooked, StatusConfirmed, StatusCheckedIn, StatusCompleted, StatusCancelled:
		return Status(raw), true
	}
	return "", false
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Appointment struct {
	ID        string
	PatientID string
	Start     time.Time
	Duration  time.Duration
	Treatment string
	Status    Status
	// Source is the channel the booking arrived through.
	Source      Channel
	StaffIDs    []string
	Notes       string
	CreatedAt   time.Time
	CancelledAt *time.Time
}

func (a Appointment) End() time.Time { return a.Start.Add(a.Duration) }

// SameSlot reports whether two appointments occupy the identical start time.
// The clinic is modelled as a single bookable resource per slot.
func (a Appointment) SameSlot(other Appointment) bool {
	return a.Start.Equal(other.Start)
}
