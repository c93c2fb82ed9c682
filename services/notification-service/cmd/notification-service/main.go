package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/careslot/careslot/libs/config"
	"github.com/careslot/careslot/libs/db"
	"github.com/careslot/careslot/libs/httpx"
	"github.com/careslot/careslot/libs/kafkax"
	otelx "github.com/careslot/careslot/libs/otel"
	"github.com/careslot/careslot/libs/outbox"
	"github.com/careslot/careslot/libs/runtime"
	"github.com/careslot/careslot/services/notification-service/internal/consumer"
	"github.com/careslot/careslot/services/notification-service/internal/email"
	"github.com/careslot/careslot/services/notification-service/internal/inbox"
	"github.com/careslot/careslot/services/notification-service/internal/sms"
	"github.com/careslot/careslot/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type appointmentEvent struct {
	AppointmentID    string `json:"appointment_id"`
	HospitalID       string `json:"hospital_id"`
	ProviderID       string `json:"provider_id"`
	PatientName      string `json:"patient_name"`
	PatientEmail     string `json:"patient_email"`
	PatientPhone     string `json:"patient_phone"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	DurationMinutes  int    `json:"duration_minutes"`
	ConsultationType string `json:"consultation_type"`
	CancelledAt      string `json:"cancelled_at"`
	Reason           string `json:"reason"`
}

func confirmationEmail(evt appointmentEvent) (string, string) {
	subject := "Appointment confirmed"
	body := fmt.Sprintf("Hi %s, your appointment on %s at %s is confirmed.", evt.PatientName, evt.Date, evt.StartTime)
	return subject, body
}

func cancellationEmail(evt appointmentEvent) (string, string) {
	subject := "Appointment cancelled"
	body := fmt.Sprintf("Hi %s, your appointment on %s at %s has been cancelled.", evt.PatientName, evt.Date, evt.StartTime)
	if evt.Reason != "" {
		body = fmt.Sprintf("%s Reason: %s.", body, evt.Reason)
	}
	return subject, body
}

func smsText(evt appointmentEvent, cancelled bool) string {
	if cancelled {
		return fmt.Sprintf("Your appointment on %s at %s was cancelled.", evt.Date, evt.StartTime)
	}
	return fmt.Sprintf("Appointment confirmed: %s at %s.", evt.Date, evt.StartTime)
}

func writeOutboxResult(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, evt appointmentEvent, channel, providerID, failureReason string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventType := "notification.sent.v1"
	fields := map[string]any{
		"appointment_id": evt.AppointmentID,
		"hospital_id":    evt.HospitalID,
		"channel":        channel,
	}
	if failureReason != "" {
		eventType = "notification.failed.v1"
		fields["error_reason"] = failureReason
		fields["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		if strings.TrimSpace(providerID) == "" {
			providerID = "unknown"
		}
		fields["provider_id"] = providerID
		fields["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	eventPayload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   evt.AppointmentID,
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

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@careslot.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)
	emailProviderID := "smtp"

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	smsWebhookURL := config.String("SMS_WEBHOOK_URL", "")
	smsWebhookToken := config.String("SMS_WEBHOOK_TOKEN", "")
	var smsSender sms.Sender
	switch smsProvider {
	case "webhook":
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	case "noop":
		smsSender = sms.NewNoopSender()
	default:
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	}

	failSuffix := config.String("NOTIFICATION_FAIL_SUFFIX", "")

	handleEvent := func(ctx context.Context, msg kafka.Message, cancelled bool) error {
		var evt appointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid appointment event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.AppointmentID == "" || evt.HospitalID == "" || evt.Date == "" || evt.StartTime == "" {
			logger.Error("missing appointment event fields", "topic", msg.Topic)
			return nil
		}
		if evt.PatientEmail == "" && evt.PatientPhone == "" {
			logger.Info("no patient contact on appointment; skipping", "appointment_id", evt.AppointmentID)
			return nil
		}

		templateData := map[string]any{
			"provider_id":       evt.ProviderID,
			"date":              evt.Date,
			"start_time":        evt.StartTime,
			"consultation_type": evt.ConsultationType,
		}

		if evt.PatientEmail != "" {
			subject, body := confirmationEmail(evt)
			if cancelled {
				subject, body = cancellationEmail(evt)
			}

			status := "sent"
			failureReason := ""
			providerID := emailProviderID
			if failSuffix != "" && strings.HasSuffix(evt.PatientEmail, failSuffix) {
				status = "failed"
				failureReason = "simulated failure"
			} else if err := emailSender.Send(evt.PatientEmail, subject, body); err != nil {
				status = "failed"
				failureReason = err.Error()
				logger.Error("email send failed", "err", err, "recipient", evt.PatientEmail)
			}

			if err := notificationsRepo.Insert(ctx, storage.Notification{
				AppointmentID: evt.AppointmentID,
				HospitalID:    evt.HospitalID,
				Channel:       "email",
				Recipient:     evt.PatientEmail,
				Payload:       templateData,
				Status:        status,
			}); err != nil {
				logger.Error("failed to persist notification", "err", err)
				return err
			}
			if err := writeOutboxResult(ctx, pool, outboxRepo, evt, "email", providerID, failureReason); err != nil {
				logger.Error("failed to enqueue notification result", "err", err)
				return err
			}
		}

		if evt.PatientPhone != "" {
			status := "sent"
			failureReason := ""
			providerID := smsSender.ProviderID()
			if err := smsSender.Send(ctx, evt.PatientPhone, smsText(evt, cancelled)); err != nil {
				status = "failed"
				failureReason = err.Error()
				logger.Error("sms send failed", "err", err, "recipient", evt.PatientPhone)
			}

			if err := notificationsRepo.Insert(ctx, storage.Notification{
				AppointmentID: evt.AppointmentID,
				HospitalID:    evt.HospitalID,
				Channel:       "sms",
				Recipient:     evt.PatientPhone,
				Payload:       templateData,
				Status:        status,
			}); err != nil {
				logger.Error("failed to persist notification", "err", err)
				return err
			}
			if err := writeOutboxResult(ctx, pool, outboxRepo, evt, "sms", providerID, failureReason); err != nil {
				logger.Error("failed to enqueue notification result", "err", err)
				return err
			}
		}

		logger.Info("appointment event processed", "appointment_id", evt.AppointmentID, "topic", msg.Topic)
		return nil
	}

	startConsumer := func(topic string, cancelled bool) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		consumerCfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			return handleEvent(ctx, msg, cancelled)
		})
		go eventConsumer.Run(ctx)
	}

	startConsumer(config.String("KAFKA_BOOKED_TOPIC", "booking.appointment.booked.v1"), false)
	startConsumer(config.String("KAFKA_CANCELLED_TOPIC", "booking.appointment.cancelled.v1"), true)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
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
