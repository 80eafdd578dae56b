package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-relay/internal/backoff"
	"github.com/kursadbilgin/notification-relay/internal/breaker"
	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/kursadbilgin/notification-relay/internal/observability"
	"github.com/kursadbilgin/notification-relay/internal/provider"
	"github.com/kursadbilgin/notification-relay/internal/queue"
	"github.com/kursadbilgin/notification-relay/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 5

	FailureReasonPermanent      = "permanent_error"
	FailureReasonRetryExhausted = "retry_exhausted"
	FailureReasonPublish        = "publish_error"
)

// StatusStore records the externally visible delivery status per request_id.
type StatusStore interface {
	Get(ctx context.Context, requestID string) (domain.DeliveryStatus, error)
	Set(ctx context.Context, requestID string, status domain.DeliveryStatus) error
}

// AttemptRecorder receives one audit row per channel call.
type AttemptRecorder interface {
	Record(ctx context.Context, a *domain.DeliveryAttempt) error
}

// PipelineConfig describes where one channel's jobs come from and go to.
type PipelineConfig struct {
	Channel              domain.NotificationType
	Queue                string
	RetryRoutingKey      string
	DeadLetterRoutingKey string
	MaxRetries           int
	Backoff              backoff.Policy
}

// DeliveryPipeline processes jobs of a single channel: dedup against the
// status store, a breaker-guarded channel call, then either delivered,
// a delayed republish with attempt+1, or the dead-letter route.
type DeliveryPipeline struct {
	cfg         PipelineConfig
	statuses    StatusStore
	publisher   queue.Publisher
	provider    provider.Provider
	breaker     *breaker.Breaker
	attempts    AttemptRecorder
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewDeliveryPipeline(
	cfg PipelineConfig,
	statuses StatusStore,
	publisher queue.Publisher,
	channel provider.Provider,
	cb *breaker.Breaker,
	logger *zap.Logger,
) (*DeliveryPipeline, error) {
	if !cfg.Channel.IsValid() {
		return nil, fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, cfg.Channel)
	}
	if statuses == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if channel == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cb == nil {
		return nil, fmt.Errorf("circuit breaker is required")
	}
	if strings.TrimSpace(cfg.DeadLetterRoutingKey) == "" {
		return nil, fmt.Errorf("dead-letter routing key is required")
	}
	if strings.TrimSpace(cfg.RetryRoutingKey) == "" {
		cfg.RetryRoutingKey = cfg.Channel.String()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryPipeline{
		cfg:       cfg,
		statuses:  statuses,
		publisher: publisher,
		provider:  channel,
		breaker:   cb,
		logger:    logger.With(zap.String("channel", cfg.Channel.String())),
		now:       time.Now,
		sleep:     sleepWithContext,
	}, nil
}

func (p *DeliveryPipeline) SetMetrics(metrics *observability.Metrics) {
	p.metrics = metrics
}

func (p *DeliveryPipeline) SetAttemptRecorder(recorder AttemptRecorder) {
	p.attempts = recorder
}

func (p *DeliveryPipeline) SetRateLimiter(limiter ratelimit.RateLimiter) {
	p.rateLimiter = limiter
}

// Channel returns the notification type this pipeline delivers.
func (p *DeliveryPipeline) Channel() domain.NotificationType {
	return p.cfg.Channel
}

// Handle processes one consumed message. It is a queue.MessageHandler; the
// consumer acks the message after it returns, so every branch here is final
// for this delivery.
func (p *DeliveryPipeline) Handle(ctx context.Context, msg queue.Message) error {
	channel := p.cfg.Channel.String()

	job, err := domain.ParseNotificationJob(msg.Body)
	if err != nil {
		p.logger.Warn("dropping malformed message",
			zap.String("queue", p.cfg.Queue),
			zap.String("messageId", msg.MessageID),
			zap.Error(err),
		)
		p.metrics.IncMalformedMessage(p.cfg.Queue)
		return nil
	}

	ctx = observability.WithRequestID(ctx, job.RequestID)
	logger := observability.WithContextLogger(p.logger, ctx)

	p.metrics.IncWorkerInFlight(channel)
	defer p.metrics.DecWorkerInFlight(channel)

	status, err := p.statuses.Get(ctx, job.RequestID)
	switch {
	case err == nil && status == domain.StatusDelivered:
		logger.Info("skipping already delivered notification")
		p.metrics.IncDuplicateSkipped(channel)
		return nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		// Delivering twice is preferred over never delivering.
		logger.Error("status lookup failed, delivering anyway", zap.Error(err))
	}

	attempt := msg.Attempt
	sendErr := p.deliver(ctx, job, attempt)
	if sendErr == nil {
		if err := p.statuses.Set(context.WithoutCancel(ctx), job.RequestID, domain.StatusDelivered); err != nil {
			logger.Error("failed to record delivered status", zap.Error(err))
		}
		p.metrics.IncDelivered(channel)
		logger.Info("notification delivered", zap.Int("attempt", attempt))
		return nil
	}

	if provider.IsPermanent(sendErr) {
		logger.Warn("permanent delivery failure", zap.Int("attempt", attempt), zap.Error(sendErr))
		return p.deadLetter(ctx, msg, job, attempt, sendErr, FailureReasonPermanent)
	}

	if attempt < p.cfg.MaxRetries {
		return p.retry(ctx, msg, job, attempt, sendErr)
	}

	logger.Warn("retry budget exhausted",
		zap.Int("attempt", attempt),
		zap.Int("maxRetries", p.cfg.MaxRetries),
		zap.Error(sendErr),
	)
	return p.deadLetter(ctx, msg, job, attempt, sendErr, FailureReasonRetryExhausted)
}

// deliver runs the rate limit wait and the breaker-guarded channel call.
func (p *DeliveryPipeline) deliver(ctx context.Context, job domain.NotificationJob, attempt int) error {
	channel := p.cfg.Channel.String()

	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx, p.cfg.Channel); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	start := p.now()
	sendErr := p.breaker.Call(ctx, func(ctx context.Context) error {
		_, err := p.provider.Send(ctx, job)
		return err
	})

	circuitOpen := errors.Is(sendErr, breaker.ErrOpen)
	if circuitOpen {
		p.metrics.IncCircuitRejected(channel)
	} else {
		p.metrics.ObserveSendDuration(channel, p.now().Sub(start))
	}
	p.metrics.SetCircuitOpen(channel, p.breaker.State() == breaker.StateOpen)

	p.recordAttempt(ctx, job, attempt, sendErr, circuitOpen)
	return sendErr
}

func (p *DeliveryPipeline) retry(ctx context.Context, msg queue.Message, job domain.NotificationJob, attempt int, cause error) error {
	logger := observability.WithContextLogger(p.logger, ctx)

	// The retry must survive shutdown: the consumed delivery is acked as soon
	// as this handler returns.
	publishCtx := context.WithoutCancel(ctx)

	if err := p.statuses.Set(publishCtx, job.RequestID, domain.StatusRetrying); err != nil {
		logger.Error("failed to record retrying status", zap.Error(err))
	}

	delay := p.cfg.Backoff.Delay(attempt)
	logger.Warn("delivery failed, scheduling retry",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)

	if err := p.sleep(ctx, delay); err != nil {
		logger.Info("retry wait interrupted, republishing now", zap.Error(err))
	}

	err := p.publisher.Publish(publishCtx, p.cfg.RetryRoutingKey, queue.Publishing{
		Body:      msg.Body,
		Attempt:   attempt + 1,
		MessageID: msg.MessageID,
		Priority:  msg.Priority,
	})
	if err != nil {
		if setErr := p.statuses.Set(publishCtx, job.RequestID, domain.StatusFailed); setErr != nil {
			logger.Error("failed to record failed status", zap.Error(setErr))
		}
		p.metrics.IncFailed(p.cfg.Channel.String(), FailureReasonPublish)
		return fmt.Errorf("failed to republish %s for retry: %w", job.RequestID, err)
	}

	p.metrics.IncRetryScheduled(p.cfg.Channel.String())
	return nil
}

func (p *DeliveryPipeline) deadLetter(ctx context.Context, msg queue.Message, job domain.NotificationJob, attempt int, cause error, reason string) error {
	logger := observability.WithContextLogger(p.logger, ctx)
	publishCtx := context.WithoutCancel(ctx)

	publishErr := p.publisher.Publish(publishCtx, p.cfg.DeadLetterRoutingKey, queue.Publishing{
		Body:      msg.Body,
		Attempt:   attempt + 1,
		MessageID: msg.MessageID,
		LastError: cause.Error(),
	})

	if err := p.statuses.Set(publishCtx, job.RequestID, domain.StatusFailed); err != nil {
		logger.Error("failed to record failed status", zap.Error(err))
	}
	p.metrics.IncFailed(p.cfg.Channel.String(), reason)

	if publishErr != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", job.RequestID, publishErr)
	}

	p.metrics.IncDeadLettered(p.cfg.Channel.String())
	logger.Error("notification dead-lettered",
		zap.String("reason", reason),
		zap.Int("attempt", attempt),
		zap.Error(cause),
	)
	return nil
}

func (p *DeliveryPipeline) recordAttempt(
	ctx context.Context,
	job domain.NotificationJob,
	attempt int,
	sendErr error,
	circuitOpen bool,
) {
	if p.attempts == nil {
		return
	}

	record := &domain.DeliveryAttempt{
		RequestID:     job.RequestID,
		Channel:       p.cfg.Channel,
		AttemptNumber: attempt,
		Outcome:       domain.AttemptDelivered,
		CreatedAt:     p.now().UTC(),
	}
	switch {
	case circuitOpen:
		record.Outcome = domain.AttemptCircuitOpen
	case sendErr != nil:
		record.Outcome = domain.AttemptFailed
	}
	if sendErr != nil {
		msg := sendErr.Error()
		record.Error = &msg
	}

	if err := p.attempts.Record(context.WithoutCancel(ctx), record); err != nil {
		observability.WithContextLogger(p.logger, ctx).Warn("failed to record delivery attempt",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
