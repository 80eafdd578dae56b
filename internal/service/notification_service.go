package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/kursadbilgin/notification-relay/internal/observability"
	"github.com/kursadbilgin/notification-relay/internal/provider"
	"github.com/kursadbilgin/notification-relay/internal/queue"
	"github.com/kursadbilgin/notification-relay/internal/repository"
	"go.uber.org/zap"
)

// NotificationService is the API side of the relay: it admits jobs into the
// broker, answers status queries and runs direct channel tests.
type NotificationService struct {
	statuses  StatusStore
	publisher queue.Publisher
	providers map[domain.NotificationType]provider.Provider
	attempts  repository.AttemptRepository
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewNotificationService(
	statuses StatusStore,
	publisher queue.Publisher,
	providers map[domain.NotificationType]provider.Provider,
	logger *zap.Logger,
) (*NotificationService, error) {
	if statuses == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		statuses:  statuses,
		publisher: publisher,
		providers: providers,
		logger:    logger,
	}, nil
}

func (s *NotificationService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// SetAttemptRepository enables the attempt audit query.
func (s *NotificationService) SetAttemptRepository(attempts repository.AttemptRepository) {
	s.attempts = attempts
}

// HasAttemptLog reports whether attempt history can be queried.
func (s *NotificationService) HasAttemptLog() bool {
	return s.attempts != nil
}

// Enqueue publishes job to its channel queue with attempt 0.
func (s *NotificationService) Enqueue(ctx context.Context, job domain.NotificationJob) error {
	job.RequestID = strings.TrimSpace(job.RequestID)
	if job.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}
	if !job.NotificationType.IsValid() {
		return fmt.Errorf("%w: notification_type must be email or push", domain.ErrValidation)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.RequestID, err)
	}

	err = s.publisher.Publish(ctx, job.NotificationType.String(), queue.Publishing{
		Body:      body,
		Attempt:   0,
		MessageID: job.RequestID,
		Priority:  queue.PriorityValue(job.Priority),
	})
	if err != nil {
		observability.WithContextLogger(s.logger, ctx).Error("failed to enqueue notification",
			zap.String("channel", job.NotificationType.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to enqueue %s: %w", job.RequestID, err)
	}

	s.metrics.IncAdmitted(job.NotificationType.String())
	return nil
}

// GetStatus returns domain.ErrNotFound when no status is recorded.
func (s *NotificationService) GetStatus(ctx context.Context, requestID string) (domain.DeliveryStatus, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}

	return s.statuses.Get(ctx, requestID)
}

func (s *NotificationService) ListAttempts(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error) {
	if s.attempts == nil {
		return nil, fmt.Errorf("%w: attempt log is not configured", domain.ErrNotFound)
	}

	attempts, err := s.attempts.ListByRequestID(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, domain.ErrNotFound
	}
	return attempts, nil
}

// SendTest calls the channel directly, bypassing the queue, the breaker and
// the status store.
func (s *NotificationService) SendTest(ctx context.Context, channel domain.NotificationType, job domain.NotificationJob) (*provider.ProviderResponse, error) {
	p, ok := s.providers[channel]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: channel %q is not configured", domain.ErrValidation, channel)
	}

	job.NotificationType = channel
	if strings.TrimSpace(job.RequestID) == "" {
		job.RequestID = "test-" + channel.String()
	}

	resp, err := p.Send(ctx, job)
	if err != nil {
		s.metrics.IncTestSend(channel.String(), "failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	s.metrics.IncTestSend(channel.String(), "sent")
	return resp, nil
}
