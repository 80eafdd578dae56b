package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-relay/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Route binds a work queue to the handler that processes its messages.
type Route struct {
	Queue   string
	Handler queue.MessageHandler
}

// WorkerService runs one consume loop per route until the context ends.
type WorkerService struct {
	consumer queue.Consumer
	routes   []Route
	logger   *zap.Logger
}

func NewWorkerService(consumer queue.Consumer, routes []Route, logger *zap.Logger) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("at least one route is required")
	}
	for _, r := range routes {
		if strings.TrimSpace(r.Queue) == "" {
			return nil, fmt.Errorf("route queue is required")
		}
		if r.Handler == nil {
			return nil, fmt.Errorf("route handler is required for queue %q", r.Queue)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer: consumer,
		routes:   routes,
		logger:   logger,
	}, nil
}

// Start blocks until ctx is cancelled or a consume loop fails. A failing
// loop cancels the others.
func (s *WorkerService) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for _, route := range s.routes {
		g.Go(func() error {
			s.logger.Info("consumer started", zap.String("queue", route.Queue))

			if err := s.consumer.Consume(groupCtx, route.Queue, route.Handler); err != nil {
				s.logger.Error("consumer stopped with error",
					zap.String("queue", route.Queue),
					zap.Error(err),
				)
				return fmt.Errorf("consume %s: %w", route.Queue, err)
			}

			s.logger.Info("consumer stopped", zap.String("queue", route.Queue))
			return nil
		})
	}

	return g.Wait()
}
