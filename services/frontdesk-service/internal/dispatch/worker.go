// Package dispatch moves due reminder events from the reminder_events table
// to the outbox so the publisher can hand them to the notification pipeline.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/dentaldesk/libs/db"
	otelx "github.com/example/dentaldesk/libs/otel"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/outbox"
)

type dueReminder struct {
	ID            string
	AppointmentID string
	PatientID     string
	Kind          string
	FireAt        time.Time
	Channel       string
	Recipient     string
	Body          string
	Traceparent   string
	Tracestate    string
}

type Worker struct {
	pool      *db.Pool
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(pool *db.Pool, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		pool:      pool,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.dispatchBatch(ctx); err != nil {
				w.logger.Error("reminder dispatch failed", "err", err)
			}
		}
	}
}

// dispatchBatch claims due pending reminders, enqueues a due event for each,
// and stamps dispatched_at, all in one transaction. SKIP LOCKED lets multiple
// replicas poll the same table without double-dispatching.
func (w *Worker) dispatchBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.fetchDue(ctx, tx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	var ids []string
	for _, rem := range due {
		remCtx := otelx.ContextWithTraceContext(ctx, rem.Traceparent, rem.Tracestate)
		payload, err := json.Marshal(map[string]any{
			"reminder_id":    rem.ID,
			"appointment_id": rem.AppointmentID,
			"patient_id":     rem.PatientID,
			"kind":           rem.Kind,
			"fire_at":        rem.FireAt.UTC().Format(time.RFC3339),
			"channel":        rem.Channel,
			"recipient":      rem.Recipient,
			"body":           rem.Body,
		})
		if err != nil {
			return err
		}
		if err := w.outbox.Insert(remCtx, tx, outbox.Event{
			AggregateType: "reminder_event",
			AggregateID:   rem.AppointmentID,
			EventType:     outbox.EventReminderDue,
			Payload:       payload,
		}); err != nil {
			return err
		}
		ids = append(ids, rem.ID)
	}

	if err := w.markDispatched(ctx, tx, ids); err != nil {
		return err
	}
	w.logger.Info("reminders dispatched", "count", len(ids))
	return tx.Commit(ctx)
}

func (w *Worker) fetchDue(ctx context.Context, tx pgx.Tx) ([]dueReminder, error) {
	rows, err := tx.Query(ctx, `
		SELECT r.id, r.appointment_id, r.patient_id, r.kind, r.fire_at, r.channel, r.recipient, r.body, r.traceparent, r.tracestate
		FROM reminder_events r
		JOIN appointments a ON a.id = r.appointment_id
		WHERE r.status = 'pending'
			AND r.dispatched_at IS NULL
			AND r.fire_at <= now()
			AND a.status NOT IN ('cancelled', 'completed')
		ORDER BY r.fire_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, w.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []dueReminder
	for rows.Next() {
		var rem dueReminder
		if err := rows.Scan(&rem.ID, &rem.AppointmentID, &rem.PatientID, &rem.Kind, &rem.FireAt, &rem.Channel, &rem.Recipient, &rem.Body, &rem.Traceparent, &rem.Tracestate); err != nil {
			return nil, err
		}
		due = append(due, rem)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return due, nil
}

func (w *Worker) markDispatched(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_events
		SET dispatched_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
