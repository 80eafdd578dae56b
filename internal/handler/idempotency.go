package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-relay/internal/observability"
	"go.uber.org/zap"
)

const requestIDLocal = "request_id"

// ClaimStore records which request_ids were admitted.
type ClaimStore interface {
	Claim(ctx context.Context, requestID string) (bool, error)
	Release(ctx context.Context, requestID string) error
}

// IdempotencyGuard rejects a request_id that was already admitted within the
// claim TTL. A claim is kept only when the downstream handler admits the
// request; on any error it is released so the same request_id can be resent.
func IdempotencyGuard(claims ClaimStore, logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		var body struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		requestID := strings.TrimSpace(body.RequestID)
		if requestID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "request_id is required")
		}

		ctx := observability.WithRequestID(c.UserContext(), requestID)
		log := observability.WithContextLogger(logger, ctx)

		claimed, err := claims.Claim(ctx, requestID)
		if err != nil {
			log.Error("idempotency claim failed", zap.Error(err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !claimed {
			metrics.IncDuplicateRequest()
			return fiber.NewError(fiber.StatusConflict, "duplicate request_id")
		}

		c.Locals(requestIDLocal, requestID)
		c.SetUserContext(ctx)

		err = c.Next()
		if err != nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
			if releaseErr := claims.Release(context.WithoutCancel(ctx), requestID); releaseErr != nil {
				log.Warn("failed to release idempotency claim", zap.Error(releaseErr))
			}
		}
		return err
	}
}
