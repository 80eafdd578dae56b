package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

const (
	statusKeyPrefix      = "notification_status:"
	statusBreakerTimeout = 10 * time.Second
	// Store outages are tripped after this many consecutive command failures.
	statusBreakerTrip = 5
)

// StatusStore keeps the delivery status of every request_id so redelivered
// jobs are recognized. Commands go through a circuit breaker so a Redis
// outage fails fast instead of stalling each delivery on a network timeout.
type StatusStore struct {
	client  goredis.UniversalClient
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[string]
}

func NewStatusStore(client goredis.UniversalClient, ttl time.Duration) (*StatusStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("status ttl must be positive")
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "redis-status-store",
		MaxRequests: 1,
		Timeout:     statusBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= statusBreakerTrip
		},
		IsSuccessful: func(err error) bool {
			// A missing key is an answer, not an outage.
			return err == nil || errors.Is(err, goredis.Nil)
		},
	})

	return &StatusStore{
		client:  client,
		ttl:     ttl,
		breaker: cb,
	}, nil
}

func statusKey(requestID string) string {
	return statusKeyPrefix + requestID
}

// Get returns domain.ErrNotFound when no status was recorded for requestID.
func (s *StatusStore) Get(ctx context.Context, requestID string) (domain.DeliveryStatus, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}

	value, err := s.breaker.Execute(func() (string, error) {
		return s.client.Get(ctx, statusKey(requestID)).Result()
	})
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("failed to get status for %s: %w", requestID, err)
	}

	return domain.DeliveryStatus(value), nil
}

// Set overwrites the status of requestID and refreshes its TTL.
func (s *StatusStore) Set(ctx context.Context, requestID string, status domain.DeliveryStatus) error {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}

	_, err := s.breaker.Execute(func() (string, error) {
		return s.client.Set(ctx, statusKey(requestID), string(status), s.ttl).Result()
	})
	if err != nil {
		return fmt.Errorf("failed to set status for %s: %w", requestID, err)
	}

	return nil
}

// BreakerState exposes the store breaker for health reporting.
func (s *StatusStore) BreakerState() string {
	return s.breaker.State().String()
}
