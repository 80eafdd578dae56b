package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idem:"

// IdempotencyStore guards the admission endpoint against duplicate
// request_ids. A claim is a single SET NX with expiry, so there is no window
// in which a key exists without a TTL.
type IdempotencyStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewIdempotencyStore(client goredis.UniversalClient, ttl time.Duration) (*IdempotencyStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("idempotency ttl must be positive")
	}

	return &IdempotencyStore{client: client, ttl: ttl}, nil
}

func idempotencyKey(requestID string) string {
	return idempotencyKeyPrefix + requestID
}

// Claim reports false when requestID was already claimed within the TTL.
func (s *IdempotencyStore) Claim(ctx context.Context, requestID string) (bool, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return false, fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}

	ok, err := s.client.SetNX(ctx, idempotencyKey(requestID), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim request %s: %w", requestID, err)
	}

	return ok, nil
}

// Release drops a claim so a request that was never enqueued can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, requestID string) error {
	if err := s.client.Del(ctx, idempotencyKey(strings.TrimSpace(requestID))).Err(); err != nil {
		return fmt.Errorf("failed to release request %s: %w", requestID, err)
	}
	return nil
}
