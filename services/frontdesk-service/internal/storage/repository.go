// Package storage persists front-desk state to Postgres. The in-memory store
// is the system of record for decisions; this repository is the durable copy
// it is hydrated from at startup and written through to after each decision.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/dentaldesk/libs/db"
	otelx "github.com/example/dentaldesk/libs/otel"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/outbox"
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// LoadPatients returns the full directory in registration order. Registration
// order is what makes identification deterministic when contacts collide.
func (r *Repository) LoadPatients(ctx context.Context) ([]model.Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(chat_handle, ''), COALESCE(social_handle, ''),
			sms_consent, COALESCE(preferred_contact, ''), visit_count, last_visit, COALESCE(notes, ''), created_at
		FROM patients
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		var p model.Patient
		var preferred string
		var lastVisit *time.Time
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.ChatHandle, &p.SocialHandle,
			&p.SMSConsent, &preferred, &p.VisitCount, &lastVisit, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.PreferredContact = model.Channel(preferred)
		p.LastVisit = lastVisit
		patients = append(patients, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return patients, nil
}

// LoadAppointments returns non-terminal appointments plus any appointment
// starting on or after the cutoff, enough to rebuild conflict state.
func (r *Repository) LoadAppointments(ctx context.Context, since time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, start_time, duration_minutes, COALESCE(treatment, ''), status,
			COALESCE(source, ''), staff_ids, COALESCE(notes, ''), created_at, cancelled_at
		FROM appointments
		WHERE start_time >= $1 OR status NOT IN ('completed', 'cancelled')
		ORDER BY start_time
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *Repository) LoadPendingReminders(ctx context.Context) ([]model.ReminderEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, patient_id, kind, fire_at, status, channel, COALESCE(recipient, ''), body, created_at
		FROM reminder_events
		WHERE status = 'pending'
		ORDER BY fire_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ReminderEvent
	for rows.Next() {
		var ev model.ReminderEvent
		var status, channel string
		if err := rows.Scan(&ev.ID, &ev.AppointmentID, &ev.PatientID, &ev.Kind, &ev.FireAt,
			&status, &channel, &ev.Recipient, &ev.Body, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Status = model.ReminderStatus(status)
		ev.Channel = model.Channel(channel)
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// SaveBooking writes the appointment, its reminder events, and the booked
// outbox event in one transaction.
func (r *Repository) SaveBooking(ctx context.Context, appt model.Appointment, events []model.ReminderEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertAppointment(ctx, tx, appt); err != nil {
		return err
	}
	if err := insertReminders(ctx, tx, events); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"patient_id":     appt.PatientID,
		"start_time":     appt.Start.UTC().Format(time.RFC3339),
		"treatment":      appt.Treatment,
		"source":         string(appt.Source),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveReminders appends newly planned reminder events.
func (r *Repository) SaveReminders(ctx context.Context, events []model.ReminderEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertReminders(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveStatus persists a status change plus its side effects: the visit row
// and patient counters on completion, and a lifecycle outbox event for the
// terminal transitions.
func (r *Repository) SaveStatus(ctx context.Context, appt model.Appointment, visit *model.VisitRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = $3,
			updated_at = now()
		WHERE id = $1
	`, appt.ID, string(appt.Status), appt.CancelledAt)
	if err != nil {
		return err
	}

	if visit != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO visit_records (patient_id, appointment_id, visited_at, treatment)
			VALUES ($1, $2, $3, $4)
		`, visit.PatientID, visit.AppointmentID, visit.VisitedAt, visit.Treatment)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE patients
			SET visit_count = visit_count + 1,
				last_visit = $2
			WHERE id = $1
		`, visit.PatientID, visit.VisitedAt)
		if err != nil {
			return err
		}
	}

	var eventType string
	switch appt.Status {
	case model.StatusCancelled:
		eventType = outbox.EventAppointmentCancelled
	case model.StatusCompleted:
		eventType = outbox.EventAppointmentCompleted
	}
	if eventType != "" {
		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"patient_id":     appt.PatientID,
			"status":         string(appt.Status),
			"start_time":     appt.Start.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     eventType,
			Payload:       payload,
		}); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) InsertPatient(ctx context.Context, p model.Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, phone, email, chat_handle, social_handle, sms_consent, preferred_contact, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Name, p.Phone, p.Email, p.ChatHandle, p.SocialHandle, p.SMSConsent, string(p.PreferredContact), p.Notes, p.CreatedAt)
	return err
}

// SetReminderStatus records the delivery outcome reported by the
// notification service.
func (r *Repository) SetReminderStatus(ctx context.Context, reminderID string, status model.ReminderStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reminder_events
		SET status = $2,
			updated_at = now()
		WHERE id = $1
	`, reminderID, string(status))
	return err
}

type StaffUser struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
}

func (r *Repository) StaffByEmail(ctx context.Context, email string) (StaffUser, error) {
	var u StaffUser
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, role, password_hash
		FROM staff_users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash)
	if err != nil {
		return StaffUser{}, err
	}
	return u, nil
}

func insertAppointment(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, start_time, duration_minutes, treatment, status, source, staff_ids, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, appt.ID, appt.PatientID, appt.Start, int(appt.Duration.Minutes()), appt.Treatment,
		string(appt.Status), string(appt.Source), appt.StaffIDs, appt.Notes, appt.CreatedAt)
	return err
}

func insertReminders(ctx context.Context, tx pgx.Tx, events []model.ReminderEvent) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	for _, ev := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO reminder_events (id, appointment_id, patient_id, kind, fire_at, status, channel, recipient, body, created_at, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (appointment_id, kind) DO NOTHING
		`, ev.ID, ev.AppointmentID, ev.PatientID, ev.Kind, ev.FireAt,
			string(ev.Status), string(ev.Channel), ev.Recipient, ev.Body, ev.CreatedAt, traceparent, tracestate)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanAppointment(rows pgx.Rows) (model.Appointment, error) {
	var appt model.Appointment
	var durationMinutes int
	var status, source string
	var cancelledAt *time.Time
	if err := rows.Scan(&appt.ID, &appt.PatientID, &appt.Start, &durationMinutes, &appt.Treatment,
		&status, &source, &appt.StaffIDs, &appt.Notes, &appt.CreatedAt, &cancelledAt); err != nil {
		return model.Appointment{}, err
	}
	appt.Duration = time.Duration(durationMinutes) * time.Minute
	appt.Status = model.Status(status)
	appt.Source = model.Channel(source)
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
