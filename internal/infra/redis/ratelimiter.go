package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/kursadbilgin/notification-relay/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "ratelimit:"
	minRateLimitWait   = 5 * time.Millisecond
)

// Returns {allowed, remaining window in ms}.
var windowScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if count > tonumber(ARGV[1]) then
  return {0, ttl}
end
return {1, ttl}
`)

var _ ratelimit.RateLimiter = (*ChannelRateLimiter)(nil)

// ChannelRateLimiter caps provider calls per channel across all workers with
// a fixed one-second window counted in Redis.
type ChannelRateLimiter struct {
	client      goredis.UniversalClient
	limitPerSec int64
	window      time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewChannelRateLimiter(client goredis.UniversalClient, limitPerSec int) (*ChannelRateLimiter, error) {
	return newChannelRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newChannelRateLimiter(
	client goredis.UniversalClient,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*ChannelRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &ChannelRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		window:      time.Second,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

func (r *ChannelRateLimiter) Allow(ctx context.Context, channel domain.NotificationType) (bool, error) {
	allowed, _, err := r.take(ctx, channel)
	return allowed, err
}

// Wait blocks until channel has capacity in the current window or ctx ends.
func (r *ChannelRateLimiter) Wait(ctx context.Context, channel domain.NotificationType) error {
	for {
		allowed, retryIn, err := r.take(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, retryIn); err != nil {
			return err
		}
	}
}

func (r *ChannelRateLimiter) take(ctx context.Context, channel domain.NotificationType) (bool, time.Duration, error) {
	if r == nil || r.client == nil {
		return false, 0, fmt.Errorf("rate limiter is not initialized")
	}
	if !channel.IsValid() {
		return false, 0, fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, channel)
	}

	key := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, channel, r.now().UTC().Unix())
	values, err := windowScript.Run(ctx, r.client, []string{key}, r.limitPerSec, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to evaluate rate limit for %s: %w", channel, err)
	}
	if len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit reply: %v", values)
	}

	retryIn := time.Duration(values[1]) * time.Millisecond
	if retryIn < minRateLimitWait {
		retryIn = minRateLimitWait
	}

	return values[0] == 1, retryIn, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
