package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/careslot/careslot/libs/config"
	"github.com/careslot/careslot/libs/db"
	"github.com/careslot/careslot/libs/httpx"
	"github.com/careslot/careslot/libs/kafkax"
	otelx "github.com/careslot/careslot/libs/otel"
	"github.com/careslot/careslot/libs/runtime"
	"github.com/careslot/careslot/services/analytics-service/internal/consumer"
	"github.com/careslot/careslot/services/analytics-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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
	newConsumer := func(topic string, handler consumer.Handler) {
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
			Topic:   topic,
		}
		c := consumer.New(logger, inboxRepo, cfg, handler)
		go c.Run(ctx)
	}

	newConsumer("notification.sent.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			HospitalID    string `json:"hospital_id"`
			Channel       string `json:"channel"`
			SentAt        string `json:"sent_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.Channel == "" || payload.SentAt == "" {
			logger.Error("missing event fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.SentAt); err != nil {
			logger.Error("invalid sent_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO notification_metrics (appointment_id, hospital_id, channel, sent_at, status)
			VALUES ($1, NULLIF($2, '')::uuid, $3, $4, 'sent')
		`, payload.AppointmentID, payload.HospitalID, payload.Channel, payload.SentAt)
		if err != nil {
			logger.Error("failed to write metrics", "err", err)
			return err
		}

		if payload.HospitalID != "" {
			if err := bumpNotificationAggregate(ctx, pool, payload.HospitalID, payload.Channel, payload.SentAt, 1, 0); err != nil {
				logger.Error("failed to update daily notification metrics", "err", err)
				return err
			}
		}

		logger.Info("notification metric recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel)
		return nil
	})

	newConsumer("notification.failed.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			HospitalID    string `json:"hospital_id"`
			Channel       string `json:"channel"`
			ErrorReason   string `json:"error_reason"`
			FailedAt      string `json:"failed_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid failed payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.Channel == "" || payload.ErrorReason == "" || payload.FailedAt == "" {
			logger.Error("missing failed fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.FailedAt); err != nil {
			logger.Error("invalid failed_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO notification_metrics (appointment_id, hospital_id, channel, sent_at, status)
			VALUES ($1, NULLIF($2, '')::uuid, $3, $4, 'failed')
		`, payload.AppointmentID, payload.HospitalID, payload.Channel, payload.FailedAt)
		if err != nil {
			logger.Error("failed to write failed metrics", "err", err)
			return err
		}

		if payload.HospitalID != "" {
			if err := bumpNotificationAggregate(ctx, pool, payload.HospitalID, payload.Channel, payload.FailedAt, 0, 1); err != nil {
				logger.Error("failed to update daily notification metrics", "err", err)
				return err
			}
		}

		logger.Info("notification failure recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel)
		return nil
	})

	handleBookingEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			HospitalID    string `json:"hospital_id"`
			ProviderID    string `json:"provider_id"`
			Date          string `json:"date"`
			StartTime     string `json:"start_time"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.HospitalID == "" || payload.Date == "" {
			logger.Error("missing booking fields")
			return nil
		}
		day, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			logger.Error("invalid date", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		tx, err := pool.Begin(ctx)
		if err != nil {
			logger.Error("db begin failed", "err", err)
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_events (event_id, event_type, hospital_id, provider_id, appointment_id, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.HospitalID, payload.ProviderID, payload.AppointmentID, day)
		if err != nil {
			logger.Error("failed to insert booking event", "err", err)
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Commit(ctx)
			return nil
		}

		bookedInc := 0
		canceledInc := 0
		if kind == "booked" {
			bookedInc = 1
		} else if kind == "canceled" {
			canceledInc = 1
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_appointment_metrics (hospital_id, day, booked_count, canceled_count)
			VALUES ($1, $2::date, $3, $4)
			ON CONFLICT (hospital_id, day)
			DO UPDATE SET booked_count = daily_appointment_metrics.booked_count + EXCLUDED.booked_count,
			              canceled_count = daily_appointment_metrics.canceled_count + EXCLUDED.canceled_count,
			              updated_at = now()
		`, payload.HospitalID, day, bookedInc, canceledInc); err != nil {
			logger.Error("failed to update daily metrics", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			logger.Error("failed to commit booking metric", "err", err)
			return err
		}

		logger.Info("booking metric recorded", "appointment_id", payload.AppointmentID, "hospital_id", payload.HospitalID, "event_type", meta.EventType)
		return nil
	}

	newConsumer("booking.appointment.booked.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "booked")
	})
	newConsumer("booking.appointment.cancelled.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleBookingEvent(ctx, msg, "canceled")
	})

	handleWindowEvent := func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			WindowID   string `json:"window_id"`
			HospitalID string `json:"hospital_id"`
			ProviderID string `json:"provider_id"`
			DayOfWeek  *int   `json:"day_of_week"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid window payload", "err", err)
			return nil
		}
		if payload.WindowID == "" || payload.ProviderID == "" {
			logger.Error("missing window fields")
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)
		_, err := pool.Exec(ctx, `
			INSERT INTO schedule_events (event_id, event_type, hospital_id, provider_id, window_id)
			VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.HospitalID, payload.ProviderID, payload.WindowID)
		if err != nil {
			logger.Error("failed to write schedule event", "err", err)
			return err
		}

		logger.Info("schedule event recorded", "window_id", payload.WindowID, "event_type", meta.EventType)
		return nil
	}

	newConsumer("schedule.window.created.v1", handleWindowEvent)
	newConsumer("schedule.window.updated.v1", handleWindowEvent)
	newConsumer("schedule.window.deactivated.v1", handleWindowEvent)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
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

func bumpNotificationAggregate(ctx context.Context, pool *db.Pool, hospitalID, channel, ts string, sentInc, failedInc int) error {
	if hospitalID == "" || channel == "" || ts == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO daily_notification_metrics (hospital_id, day, channel, sent_count, failed_count)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (hospital_id, day, channel)
		DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
		              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
		              updated_at = now()
	`, hospitalID, t.UTC(), channel, sentInc, failedInc)
	return err
}
