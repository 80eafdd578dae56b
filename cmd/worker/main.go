package main

import (
	"context"
	"errors"
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
	"github.com/kursadbilgin/notification-relay/internal/backoff"
	"github.com/kursadbilgin/notification-relay/internal/breaker"
	"github.com/kursadbilgin/notification-relay/internal/config"
	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/kursadbilgin/notification-relay/internal/handler"
	"github.com/kursadbilgin/notification-relay/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-relay/internal/infra/redis"
	"github.com/kursadbilgin/notification-relay/internal/observability"
	"github.com/kursadbilgin/notification-relay/internal/provider"
	"github.com/kursadbilgin/notification-relay/internal/queue"
	"github.com/kursadbilgin/notification-relay/internal/repository"
	"github.com/kursadbilgin/notification-relay/internal/service"
	"github.com/kursadbilgin/notification-relay/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateChannels(); err != nil {
		log.Fatalf("invalid channel config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "worker")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, queue.NotificationTopology(
		cfg.Exchange, cfg.EmailQueue, cfg.PushQueue, cfg.DeadLetterQueue, cfg.DeadLetterRoutingKey,
	))
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer mq.Close()

	publisher := queue.NewRabbitMQPublisher(mq)
	consumer := queue.NewRabbitMQConsumer(mq, cfg.PrefetchCount, logger)

	statuses, err := infraredis.NewStatusStore(rdb, cfg.StatusTTL())
	if err != nil {
		return err
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	var attempts repository.AttemptRepository
	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		attempts = repository.NewGormAttemptRepo(db)
	}

	var limiter *infraredis.ChannelRateLimiter
	if cfg.RateLimitPerSec > 0 {
		limiter, err = infraredis.NewChannelRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return err
		}
	}

	policy := backoff.Policy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap()}
	breakers := map[domain.NotificationType]*breaker.Breaker{}
	queues := map[domain.NotificationType]string{
		domain.NotificationTypeEmail: cfg.EmailQueue,
		domain.NotificationTypePush:  cfg.PushQueue,
	}

	routes := make([]service.Route, 0, len(queues))
	for _, channel := range []domain.NotificationType{domain.NotificationTypeEmail, domain.NotificationTypePush} {
		cb := breaker.New(cfg.BreakerFailMax, cfg.BreakerResetTimeout())
		breakers[channel] = cb

		pipeline, err := service.NewDeliveryPipeline(service.PipelineConfig{
			Channel:              channel,
			Queue:                queues[channel],
			RetryRoutingKey:      channel.String(),
			DeadLetterRoutingKey: cfg.DeadLetterRoutingKey,
			MaxRetries:           cfg.MaxRetries,
			Backoff:              policy,
		}, statuses, publisher, providers[channel], cb, logger)
		if err != nil {
			return fmt.Errorf("pipeline initialization failed for %s: %w", channel, err)
		}
		pipeline.SetMetrics(metrics)
		if attempts != nil {
			pipeline.SetAttemptRecorder(attempts)
		}
		if limiter != nil {
			pipeline.SetRateLimiter(limiter)
		}

		routes = append(routes, service.Route{Queue: queues[channel], Handler: pipeline.Handle})
	}

	worker, err := service.NewWorkerService(consumer, routes, logger)
	if err != nil {
		return err
	}

	svc, err := service.NewNotificationService(statuses, publisher, providers, logger)
	if err != nil {
		return err
	}
	svc.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, []handler.DependencyCheck{
		{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		{Name: "rabbitmq", Ping: mq.Ping},
	}, func() map[string]breaker.Stats {
		stats := make(map[string]breaker.Stats, len(breakers))
		for channel, cb := range breakers {
			stats[channel.String()] = cb.Stats()
		}
		return stats
	})
	if err := handler.RegisterTestRoutes(app, svc); err != nil {
		return err
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("worker http listening", zap.Int("port", cfg.WorkerPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.WorkerPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	logger.Info("notification worker started",
		zap.String("emailQueue", cfg.EmailQueue),
		zap.String("pushQueue", cfg.PushQueue),
		zap.Int("prefetch", cfg.PrefetchCount),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("notification worker stopped")
	return nil
}

func buildProviders(cfg *config.Config) (map[domain.NotificationType]provider.Provider, error) {
	var email provider.Provider
	switch cfg.EmailProvider {
	case config.EmailProviderPostmark:
		p, err := provider.NewPostmarkProvider(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.SenderEmail)
		if err != nil {
			return nil, err
		}
		email = p
	default:
		p, err := provider.NewSMTPProvider(provider.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPass,
			SenderEmail: cfg.SenderEmail,
		})
		if err != nil {
			return nil, err
		}
		email = p
	}

	push, err := provider.NewFCMPushProvider(cfg.PushAPIURL, cfg.PushServerKey)
	if err != nil {
		return nil, err
	}

	return map[domain.NotificationType]provider.Provider{
		domain.NotificationTypeEmail: email,
		domain.NotificationTypePush:  push,
	}, nil
}
