package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/example/dentaldesk/libs/config"
	"github.com/example/dentaldesk/libs/db"
	"github.com/example/dentaldesk/libs/httpx"
	"github.com/example/dentaldesk/libs/kafkax"
	otelx "github.com/example/dentaldesk/libs/otel"
	"github.com/example/dentaldesk/libs/runtime"
	"github.com/example/dentaldesk/services/notification-service/internal/chat"
	"github.com/example/dentaldesk/services/notification-service/internal/consumer"
	"github.com/example/dentaldesk/services/notification-service/internal/email"
	"github.com/example/dentaldesk/services/notification-service/internal/inbox"
	"github.com/example/dentaldesk/services/notification-service/internal/outbox"
	"github.com/example/dentaldesk/services/notification-service/internal/sms"
	"github.com/example/dentaldesk/services/notification-service/internal/storage"
)

// reminderPayload is the due-reminder event produced by the front desk.
type reminderPayload struct {
	ReminderID    string `json:"reminder_id"`
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	Kind          string `json:"kind"`
	FireAt        string `json:"fire_at"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	Body          string `json:"body"`
}

func writeOutcome(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, payload reminderPayload, eventType string, extra map[string]any) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fields := map[string]any{
		"reminder_id":    payload.ReminderID,
		"appointment_id": payload.AppointmentID,
		"patient_id":     payload.PatientID,
		"kind":           payload.Kind,
		"channel":        payload.Channel,
	}
	for k, v := range extra {
		fields[k] = v
	}
	eventPayload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   payload.AppointmentID,
		EventType:     eventType,
		Payload:       eventPayload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@dentaldesk.local"),
	)

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	var chatSender chat.Sender
	switch strings.ToLower(config.String("CHAT_PROVIDER", "noop")) {
	case "webhook":
		chatSender = chat.NewWebhookSender(config.String("CHAT_WEBHOOK_URL", ""), config.String("CHAT_WEBHOOK_TOKEN", ""))
	default:
		chatSender = chat.NewNoopSender()
	}

	consumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "reminders.reminder.due.v1"),
	}
	eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload reminderPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder payload", "err", err)
			return nil
		}
		if payload.ReminderID == "" || payload.AppointmentID == "" || payload.Channel == "" {
			logger.Error("missing reminder fields")
			return nil
		}

		status := "sent"
		failureReason := ""
		providerID := ""

		switch strings.ToLower(payload.Channel) {
		case "chat":
			if err := chatSender.Send(ctx, payload.Recipient, payload.Body); err != nil {
				status = "failed"
				failureReason = err.Error()
				logger.Error("chat send failed", "err", err, "recipient", payload.Recipient)
			} else {
				providerID = chatSender.ProviderID()
			}
		case "email":
			if err := emailSender.Send(payload.Recipient, "Appointment reminder", payload.Body); err != nil {
				status = "failed"
				failureReason = err.Error()
				logger.Error("email send failed", "err", err, "recipient", payload.Recipient)
			} else {
				providerID = "smtp"
			}
		case "sms":
			if err := smsSender.Send(ctx, payload.Recipient, payload.Body); err != nil {
				status = "failed"
				failureReason = err.Error()
				logger.Error("sms send failed", "err", err, "recipient", payload.Recipient)
			} else {
				providerID = smsSender.ProviderID()
			}
		case "phone":
			// Phone reminders are not auto-dialed; a call task goes on the
			// front-desk queue and the reminder counts as handled.
			dueAt := time.Now().UTC()
			if t, err := time.Parse(time.RFC3339, payload.FireAt); err == nil {
				dueAt = t
			}
			if err := notificationsRepo.InsertCallTask(ctx, storage.CallTask{
				ReminderID:    payload.ReminderID,
				AppointmentID: payload.AppointmentID,
				PatientID:     payload.PatientID,
				Phone:         payload.Recipient,
				Note:          payload.Body,
				DueAt:         dueAt,
			}); err != nil {
				logger.Error("failed to enqueue call task", "err", err)
				return err
			}
			providerID = "call-task"
		default:
			status = "failed"
			failureReason = "unsupported channel: " + payload.Channel
			logger.Error("unsupported channel", "channel", payload.Channel)
		}

		if err := notificationsRepo.Insert(ctx, storage.Notification{
			ReminderID:    payload.ReminderID,
			AppointmentID: payload.AppointmentID,
			PatientID:     payload.PatientID,
			Channel:       payload.Channel,
			Recipient:     payload.Recipient,
			Body:          payload.Body,
			Status:        status,
		}); err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}

		if status == "failed" {
			if err := writeOutcome(ctx, pool, outboxRepo, payload, outbox.EventNotificationFailed, map[string]any{
				"error_reason": failureReason,
				"failed_at":    time.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				logger.Error("failed to enqueue notification.failed", "err", err)
				return err
			}
		} else {
			if err := writeOutcome(ctx, pool, outboxRepo, payload, outbox.EventNotificationSent, map[string]any{
				"provider_id": providerID,
				"sent_at":     time.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				logger.Error("failed to enqueue notification.sent", "err", err)
				return err
			}
		}

		logger.Info("reminder processed", "reminder_id", payload.ReminderID, "channel", payload.Channel, "status", status)
		return nil
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/call-tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			tasks, err := notificationsRepo.OpenCallTasks(r.Context(), 50)
			if err != nil {
				http.Error(w, "failed to load call tasks", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(tasks)
		case http.MethodPost:
			var req struct {
				ReminderID string `json:"reminder_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ReminderID) == "" {
				http.Error(w, "reminder_id required", http.StatusBadRequest)
				return
			}
			if err := notificationsRepo.CompleteCallTask(r.Context(), req.ReminderID); err != nil {
				http.Error(w, "failed to complete call task", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
