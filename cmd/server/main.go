package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rabbitmq/amqp091-go"

	"github.com/flashreserve/reservation-core/internal/api"
	"github.com/flashreserve/reservation-core/internal/audit"
	"github.com/flashreserve/reservation-core/internal/catalog"
	"github.com/flashreserve/reservation-core/internal/checkout"
	"github.com/flashreserve/reservation-core/internal/config"
	"github.com/flashreserve/reservation-core/internal/database"
	myLogger "github.com/flashreserve/reservation-core/internal/logger"
	appMiddleware "github.com/flashreserve/reservation-core/internal/middleware"
	"github.com/flashreserve/reservation-core/internal/ratelimit"
	"github.com/flashreserve/reservation-core/internal/reservation"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.NewConfig()
	cfg.ParseFlags()

	var logLevel slog.Level
	switch strings.ToLower(cfg.GetLogLevel()) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("config | config initialized", "port", cfg.Port, "reservation_ttl_seconds", cfg.ReservationTTLSeconds)

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("redis | failed to connect", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	postgres, err := database.NewPostgresClient(cfg.PostgresURL)
	if err != nil {
		logger.Error("postgres | failed to connect", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	if err := postgres.CreateTables(); err != nil {
		logger.Error("postgres | failed to create tables", "error", err)
		os.Exit(1)
	}

	var hotStore reservation.HotStore = redisClient
	engine := reservation.NewEngine(hotStore, cfg.ReservationTTL())
	idempotency := reservation.NewIdempotencyLayer(engine, hotStore, cfg.IdempotencyTTL())
	sweeper := reservation.NewSweeper(engine, hotStore, cfg.SweeperInterval(), cfg.SweeperBatchSize)

	cat := catalog.New(catalog.DefaultFixture())

	var publisher audit.Publisher
	var amqpConn *amqp091.Connection
	if cfg.AMQPURL != "" {
		amqpConn, err = dialAMQPWithRetry(cfg.AMQPURL, 3, logger)
		if err != nil {
			logger.Warn("amqp | failed to connect after retries, audit mirroring disabled", "error", err)
		} else {
			defer amqpConn.Close()
			amqpPublisher, err := audit.NewAMQPPublisher(amqpConn, cfg.AMQPExchange)
			if err != nil {
				logger.Warn("amqp | failed to declare exchange, audit mirroring disabled", "error", err)
			} else {
				defer amqpPublisher.Close()
				publisher = amqpPublisher
			}
		}
	}
	auditWriter := audit.NewWriter(postgres, publisher, 100)

	orderStore := checkout.NewPostgresOrderStore(postgres)
	coordinator := checkout.NewCoordinator(hotStore, cat, orderStore, auditWriter)

	sweeper.OnExpired(func(result reservation.MutationResult, reservationID string) {
		auditWriter.Record("expire", result.UserID, result.SKU, reservationID, map[string]interface{}{
			"quantity": result.Quantity,
		})
	})

	rateGate := ratelimit.New(cfg.RedisURL, ratelimit.Config{
		Enabled:        cfg.RateLimitEnabled,
		Capacity:       cfg.RateLimitCapacity,
		RefillTokens:   cfg.RateLimitRefillTokens,
		RefillInterval: cfg.RateLimitRefillInterval,
	})
	defer rateGate.Close()

	healthCheckers := map[string]func(ctx context.Context) error{
		"redis":    func(ctx context.Context) error { return redisClient.HealthCheck(ctx) },
		"postgres": func(ctx context.Context) error { return postgres.HealthCheck() },
	}

	handler := api.NewHandler(cfg, engine, idempotency, coordinator, cat, auditWriter, rateGate, healthCheckers)

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		workerCtx := context.WithValue(ctx, myLogger.SourceKey, "audit_writer")
		auditWriter.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		workerCtx := context.WithValue(ctx, myLogger.SourceKey, "sweeper")
		sweeper.Run(workerCtx)
	}()

	router := chi.NewRouter()
	router.Use(appMiddleware.Chain(
		appMiddleware.RequestIDMiddleware,
		appMiddleware.RecoveryMiddleware,
		appMiddleware.LoggingMiddleware,
		appMiddleware.TimeoutMiddleware(10*time.Second),
	))

	router.Get("/health", handler.Health)

	router.Group(func(r chi.Router) {
		r.Use(appMiddleware.BearerAuth(cfg.JWTSecret))
		r.Use(rateGate.Middleware(appMiddleware.UserIDFromContext))

		r.Post("/v1/inventory/{sku}/initialize", handler.Initialize)
		r.Get("/v1/inventory/{sku}", handler.Status)
		r.Post("/v1/inventory/reserve", handler.Reserve)
		r.Post("/v1/checkout/confirm", handler.Confirm)
		r.Post("/v1/checkout/cancel", handler.Cancel)
		r.Get("/v1/checkout/orders/{order_id}", handler.Orders(postgres))
	})

	server := &http.Server{
		Addr:           ":" + cfg.GetPort(),
		Handler:        router,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	idleConnsClosed := make(chan struct{})
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigint
		logger.Info("shutting down server...")

		shutdownComplete := make(chan struct{})

		go func() {
			cancel()
			wg.Wait()
			logger.Info("server | workers finished")

			if err := server.Shutdown(context.Background()); err != nil {
				logger.Error("server error | could not shutdown server", "error", err)
			}
			logger.Info("server | HTTP server shutdown completed")

			close(shutdownComplete)
		}()

		select {
		case <-shutdownComplete:
			logger.Info("server | graceful shutdown completed")
		case <-time.After(30 * time.Second):
			logger.Warn("server | graceful shutdown timed out (30 seconds)")
		}

		close(idleConnsClosed)
	}()

	go func() {
		logger.Info("server | running on port", "port", cfg.GetPort())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error | could not listen on port", "port", cfg.GetPort(), "error", err)
			sigint <- syscall.SIGTERM
		}
	}()

	<-idleConnsClosed
	logger.Info("server | server stopped")
}

// dialAMQPWithRetry attempts to connect to the AMQP broker, retrying with
// linear backoff. The audit mirror is best-effort, so a failure here must
// never block startup past maxRetries attempts.
func dialAMQPWithRetry(url string, maxRetries int, logger *slog.Logger) (*amqp091.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn("amqp | connect attempt failed", "attempt", attempt, "max_retries", maxRetries, "error", err)
		if attempt == maxRetries {
			break
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, lastErr
}
