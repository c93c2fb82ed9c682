package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/careslot/careslot/libs/config"
	"github.com/careslot/careslot/libs/db"
	"github.com/careslot/careslot/libs/httpx"
	"github.com/careslot/careslot/libs/kafkax"
	otelx "github.com/careslot/careslot/libs/otel"
	"github.com/careslot/careslot/libs/outbox"
	"github.com/careslot/careslot/libs/runtime"
	"github.com/careslot/careslot/services/scheduling-service/internal/availability"
	"github.com/careslot/careslot/services/scheduling-service/internal/handlers"
	"github.com/careslot/careslot/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8082")
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

	scheduleRepo := storage.NewScheduleRepository(pool)
	appointmentReader := storage.NewAppointmentReader(pool)
	outboxRepo := outbox.NewRepository(pool)

	loc := time.UTC
	if tz := strings.TrimSpace(config.String("SCHEDULE_TIMEZONE", "UTC")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			logger.Error("invalid SCHEDULE_TIMEZONE; using UTC", "tz", tz, "err", err)
		} else {
			loc = parsed
		}
	}

	var cache *availability.Cache
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		ttl := 30 * time.Second
		if v, err := strconv.Atoi(config.String("AVAILABILITY_CACHE_TTL_SECONDS", "30")); err == nil && v > 0 {
			ttl = time.Duration(v) * time.Second
		}
		cache = availability.NewCache(rdb, ttl, logger)
		logger.Info("availability cache enabled", "redis_addr", addr, "ttl", ttl.String())
	}

	availabilitySvc := availability.NewService(scheduleRepo, appointmentReader, cache, loc, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if err := startGrpcServer(ctx, logger, availabilitySvc); err != nil {
		logger.Error("grpc server init failed", "err", err)
	}

	scheduleHandler := handlers.NewScheduleHandler(scheduleRepo, availabilitySvc, cache, outboxRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			scheduleHandler.Create(w, r)
		default:
			scheduleHandler.List(w, r)
		}
	})
	mux.HandleFunc("/api/v1/schedules/update", scheduleHandler.Update)
	mux.HandleFunc("/api/v1/schedules/deactivate", scheduleHandler.Deactivate)
	mux.HandleFunc("/api/v1/public/availability", scheduleHandler.Availability)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
