package storage

import (
	"context"
	"time"

	"github.com/example/dentaldesk/libs/db"
)

// Notification is one delivery attempt for a reminder.
type Notification struct {
	ReminderID    string
	AppointmentID string
	PatientID     string
	Channel       string
	Recipient     string
	Body          string
	Status        string
}

// CallTask is a manual follow-up for patients only reachable by phone. The
// front desk works the queue; nothing is auto-dialed.
type CallTask struct {
	ReminderID    string
	AppointmentID string
	PatientID     string
	Phone         string
	Note          string
	DueAt         time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (reminder_id, appointment_id, patient_id, channel, recipient, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ReminderID, n.AppointmentID, n.PatientID, n.Channel, n.Recipient, n.Body, n.Status)
	return err
}

func (r *Repository) InsertCallTask(ctx context.Context, t CallTask) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO call_tasks (reminder_id, appointment_id, patient_id, phone, note, due_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ReminderID, t.AppointmentID, t.PatientID, t.Phone, t.Note, t.DueAt)
	return err
}

// OpenCallTasks lists undone call tasks for the front-desk queue.
func (r *Repository) OpenCallTasks(ctx context.Context, limit int) ([]CallTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT reminder_id, appointment_id, patient_id, phone, COALESCE(note, ''), due_at
		FROM call_tasks
		WHERE done_at IS NULL
		ORDER BY due_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []CallTask
	for rows.Next() {
		var t CallTask
		if err := rows.Scan(&t.ReminderID, &t.AppointmentID, &t.PatientID, &t.Phone, &t.Note, &t.DueAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tasks, nil
}

func (r *Repository) CompleteCallTask(ctx context.Context, reminderID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE call_tasks
		SET done_at = now()
		WHERE reminder_id = $1 AND done_at IS NULL
	`, reminderID)
	return err
}
