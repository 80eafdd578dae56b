package ratelimit

import (
	"context"

	"github.com/kursadbilgin/notification-relay/internal/domain"
)

// RateLimiter throttles provider calls per notification channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel domain.NotificationType) (bool, error)
	Wait(ctx context.Context, channel domain.NotificationType) error
}
