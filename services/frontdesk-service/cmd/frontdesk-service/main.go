package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/example/dentaldesk/libs/auth"
	"github.com/example/dentaldesk/libs/config"
	"github.com/example/dentaldesk/libs/db"
	"github.com/example/dentaldesk/libs/httpx"
	"github.com/example/dentaldesk/libs/kafkax"
	otelx "github.com/example/dentaldesk/libs/otel"
	"github.com/example/dentaldesk/libs/runtime"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/book"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/calendar"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/clock"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/consumer"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/dispatch"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/handlers"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/identity"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/inbox"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/model"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/outbox"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/policy"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/reminder"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/storage"
	"github.com/example/dentaldesk/services/frontdesk-service/internal/store"
)

const defaultClinicHours = "mon=09:00-18:00/12:00-13:00;tue=09:00-18:00/12:00-13:00;wed=09:00-18:00/12:00-13:00;fri=09:00-18:00/12:00-13:00;sat=09:00-13:00"

func main() {
	service := config.String("SERVICE_NAME", "frontdesk-service")
	port, err := config.Port("PORT", "8081")
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

	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "Local"))
	if err != nil {
		logger.Error("invalid clinic timezone", "err", err)
		panic(err)
	}
	cal, err := calendar.FromConfig(
		config.String("CLINIC_HOURS", defaultClinicHours),
		config.String("CLINIC_CLOSED_WEEKDAYS", "sun"),
		config.String("CLINIC_HOLIDAYS", ""),
	)
	if err != nil {
		logger.Error("invalid clinic calendar config", "err", err)
		panic(err)
	}
	interval := config.Minutes("SLOT_INTERVAL_MINUTES", 15*time.Minute)

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

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	inboxRepo := inbox.NewRepository(pool)

	clinicID := config.String("CLINIC_ID", "clinic-1")
	defaults := reminder.ParseWindows(config.String("REMINDER_OFFSETS_MINUTES", "10080,4320,1440"))
	windows := defaults
	policyProvider, err := policy.NewClinicPolicyProvider(logger, windowOffsets(defaults), config.String("CLINIC_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("policy provider init failed", "err", err)
	} else if offsets, err := policyProvider.ReminderOffsets(ctx, clinicID); err == nil && len(offsets) > 0 {
		windows = reminder.WindowsFromOffsets(offsets)
	} else if err != nil {
		logger.Warn("policy offsets fetch failed; using defaults", "err", err)
	}

	mem := store.NewMemory()
	if err := hydrate(ctx, repo, mem); err != nil {
		logger.Error("state hydration failed", "err", err)
		panic(err)
	}

	clk := clock.System()
	planner := reminder.NewScheduler(windows, clk)
	engine := book.New(mem, cal, interval, planner, clk, loc)
	resolver := identity.New(mem)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	dispatcher := dispatch.NewWorker(pool, outboxRepo, logger, dispatch.WorkerConfig{
		Interval:  config.Minutes("REMINDER_DISPATCH_INTERVAL_MINUTES", 0),
		BatchSize: config.Int("REMINDER_DISPATCH_BATCH_SIZE", 50),
	})
	go dispatcher.Run(ctx)

	// Delivery outcomes flow back from the notification service; apply them to
	// both the durable copy and the in-memory state.
	startResultConsumer := func(topic string, status model.ReminderStatus) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		resultConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "frontdesk-service"),
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				ReminderID string `json:"reminder_id"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.ReminderID == "" {
				logger.Error("missing reminder_id", "topic", msg.Topic)
				return nil
			}
			if err := repo.SetReminderStatus(ctx, payload.ReminderID, status); err != nil {
				return err
			}
			mem.SetReminderStatus(payload.ReminderID, status)
			return nil
		})
		go resultConsumer.Run(ctx)
	}
	startResultConsumer(config.String("KAFKA_SENT_TOPIC", "notification.sent.v1"), model.ReminderSent)
	startResultConsumer(config.String("KAFKA_FAILED_TOPIC", "notification.failed.v1"), model.ReminderFailed)

	frontDesk := handlers.NewFrontDeskHandler(engine, resolver, mem, cal, interval, repo, logger, loc)
	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	staff := handlers.NewStaffHandler(repo, logger, jwtSecret, clinicID, config.Minutes("TOKEN_TTL_MINUTES", time.Hour))

	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksTTL := config.Int("JWKS_CACHE_SECONDS", 300)
		if jwksTTL <= 0 {
			jwksTTL = 300
		}
		jwksClient = auth.NewJWKSClient(jwksURL, time.Duration(jwksTTL)*time.Second)
	}
	protect := func(h http.Handler) http.Handler {
		return handlers.RequireAuth(h, jwtSecret, jwksClient)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/staff/login", staff.Login)
	mux.HandleFunc("/api/v1/slots", frontDesk.Slots)
	mux.Handle("/api/v1/appointments", protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			frontDesk.List(w, r)
		case http.MethodPost:
			frontDesk.Create(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/api/v1/appointments/transition", protect(http.HandlerFunc(frontDesk.Transition)))
	mux.Handle("/api/v1/appointments/reminders", protect(handlers.RequireRole(http.HandlerFunc(frontDesk.ScheduleReminders), "admin", "receptionist")))
	mux.Handle("/api/v1/identify", protect(http.HandlerFunc(frontDesk.Identify)))
	mux.Handle("/api/v1/patients", protect(http.HandlerFunc(frontDesk.Patients)))
	mux.Handle("/api/v1/patients/visits", protect(http.HandlerFunc(frontDesk.VisitHistory)))

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	bodyLimit := int64(1 << 20)
	if v, err := strconv.Atoi(config.String("REQUEST_BODY_LIMIT_BYTES", "1048576")); err == nil && v > 0 {
		bodyLimit = int64(v)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           time.Duration(config.Int("CORS_MAX_AGE_SECONDS", 600)) * time.Second,
		}),
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(10*time.Second),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "frontdesk")
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

// hydrate rebuilds the in-memory system of record from the durable copy. The
// appointment lookback keeps recent history available to the day view without
// loading the whole table.
func hydrate(ctx context.Context, repo *storage.Repository, mem *store.Memory) error {
	patients, err := repo.LoadPatients(ctx)
	if err != nil {
		return err
	}
	since := time.Now().AddDate(0, 0, -config.Int("APPOINTMENT_LOOKBACK_DAYS", 30))
	appts, err := repo.LoadAppointments(ctx, since)
	if err != nil {
		return err
	}
	events, err := repo.LoadPendingReminders(ctx)
	if err != nil {
		return err
	}
	mem.Load(patients, appts, events)
	return nil
}

func windowOffsets(windows []reminder.Window) []time.Duration {
	out := make([]time.Duration, 0, len(windows))
	for _, w := range windows {
		out = append(out, w.Offset)
	}
	return out
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
