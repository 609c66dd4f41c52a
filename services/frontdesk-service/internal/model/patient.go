package model

import "time"

type Patient struct {
	ID           string
	Name         string
	Phone        string
	Email        string
	ChatHandle   string
	SocialHandle string
	SMSConsent   bool
	// PreferredContact is surfaced for front-desk display only; reminder
	// channel selection ignores it (fixed priority policy).
	PreferredContact Channel
	VisitCount       int
	LastVisit        *time.Time
	Notes            string
	CreatedAt        time.Time
}

// ContactFor returns the address the patient can be reached at over the
// given channel, or "" when that channel is not on file.
func (p Patient) ContactFor(ch Channel) string {
	switch ch {
	case ChannelChat:
		return p.ChatHandle
	case ChannelEmail:
		return p.Email
	case ChannelSMS, ChannelPhone:
		return p.Phone
	case ChannelSocial:
		return p.SocialHandle
	}
	return ""
}

// VisitRecord is appended to a patient's history when an appointment
// completes.
type VisitRecord struct {
	PatientID     string
	AppointmentID string
	VisitedAt     time.Time
	Treatment     string
}
