package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/notification-relay/internal/config"
	"github.com/kursadbilgin/notification-relay/internal/handler"
	"github.com/kursadbilgin/notification-relay/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-relay/internal/infra/redis"
	"github.com/kursadbilgin/notification-relay/internal/observability"
	"github.com/kursadbilgin/notification-relay/internal/queue"
	"github.com/kursadbilgin/notification-relay/internal/repository"
	"github.com/kursadbilgin/notification-relay/internal/service"
	"github.com/kursadbilgin/notification-relay/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "api")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, queue.NotificationTopology(
		cfg.Exchange, cfg.EmailQueue, cfg.PushQueue, cfg.DeadLetterQueue, cfg.DeadLetterRoutingKey,
	))
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	publisher := queue.NewRabbitMQPublisher(mq)

	statuses, err := infraredis.NewStatusStore(rdb, cfg.StatusTTL())
	if err != nil {
		logger.Fatal("status store initialization failed", zap.Error(err))
	}
	claims, err := infraredis.NewIdempotencyStore(rdb, cfg.IdempotencyTTL())
	if err != nil {
		logger.Fatal("idempotency store initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	svc, err := service.NewNotificationService(statuses, publisher, nil, logger)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}
	svc.SetMetrics(metrics)

	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("postgres initialization failed", zap.Error(err))
		}
		if err := migrations.Migrate(db); err != nil {
			logger.Fatal("database migrations failed", zap.Error(err))
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		svc.SetAttemptRepository(repository.NewGormAttemptRepo(db))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, []handler.DependencyCheck{
		{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		{Name: "rabbitmq", Ping: mq.Ping},
	}, nil)
	if err := handler.RegisterNotificationRoutes(app, svc, claims, logger, metrics); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("notification api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
	logger.Info("notification api stopped")
}
