package model

import "time"

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

// ReminderEvent is one planned reminder for an appointment: a window kind
// (e.g. "7-day"), the time it should fire, and the delivery channel chosen
// by the fixed priority policy at planning time.
type ReminderEvent struct {
	ID            string
	AppointmentID string
	PatientID     string
	Kind          string
	FireAt        time.Time
	Status        ReminderStatus
	Channel       Channel
	Recipient     string
	Body          string
	CreatedAt     time.Time
}
