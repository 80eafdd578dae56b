package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-relay/internal/domain"
	"github.com/kursadbilgin/notification-relay/internal/observability"
	"github.com/kursadbilgin/notification-relay/internal/provider"
	"go.uber.org/zap"
)

type NotificationService interface {
	Enqueue(ctx context.Context, job domain.NotificationJob) error
	GetStatus(ctx context.Context, requestID string) (domain.DeliveryStatus, error)
	ListAttempts(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error)
	HasAttemptLog() bool
	SendTest(ctx context.Context, channel domain.NotificationType, job domain.NotificationJob) (*provider.ProviderResponse, error)
}

type NotificationHandler struct {
	service  NotificationService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewNotificationHandler(service NotificationService, logger *zap.Logger) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationHandler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}, nil
}

// RegisterNotificationRoutes mounts admission and status routes. The attempt
// history route exists only when the service has an attempt log.
func RegisterNotificationRoutes(
	router fiber.Router,
	service NotificationService,
	claims ClaimStore,
	logger *zap.Logger,
	metrics *observability.Metrics,
) error {
	if claims == nil {
		return fmt.Errorf("claim store is required")
	}

	h, err := NewNotificationHandler(service, logger)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", IdempotencyGuard(claims, logger, metrics), h.CreateNotification)
	if service.HasAttemptLog() {
		v1.Get("/notifications/:request_id/attempts", h.ListAttempts)
	}
	router.Get("/status/:request_id", h.GetStatus)

	return nil
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type statusResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	job, err := domain.ParseNotificationJob(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validate.Struct(job); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, validationMessage(err))
	}

	if err := h.service.Enqueue(c.UserContext(), job); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return toHTTPError(err)
		}
		return fiber.NewError(fiber.StatusServiceUnavailable, "failed to enqueue notification")
	}

	return c.Status(fiber.StatusAccepted).JSON(envelope{
		Success: true,
		Message: "Notification queued",
		Data:    statusResponse{RequestID: job.RequestID, Status: "queued"},
	})
}

func (h *NotificationHandler) GetStatus(c *fiber.Ctx) error {
	requestID := strings.TrimSpace(c.Params("request_id"))

	status, err := h.service.GetStatus(c.UserContext(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "status not found")
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(envelope{
		Success: true,
		Data:    statusResponse{RequestID: requestID, Status: status.String()},
	})
}

func (h *NotificationHandler) ListAttempts(c *fiber.Ctx) error {
	attempts, err := h.service.ListAttempts(c.UserContext(), c.Params("request_id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(envelope{
		Success: true,
		Data:    attempts,
	})
}

// validationMessage flattens validator errors into "field: rule" pairs.
func validationMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return "invalid request body"
	}

	parts := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		parts = append(parts, fmt.Sprintf("%s: %s", jsonFieldName(fe.Field()), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func jsonFieldName(field string) string {
	switch field {
	case "RequestID":
		return "request_id"
	case "NotificationType":
		return "notification_type"
	case "UserID":
		return "user_id"
	case "TemplateCode":
		return "template_code"
	case "Priority":
		return "priority"
	default:
		return strings.ToLower(field)
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
