package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-relay/internal/domain"
)

// RegisterTestRoutes mounts /test/email and /test/push, which call the
// channel directly with the posted job.
func RegisterTestRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service, nil)
	if err != nil {
		return err
	}

	test := router.Group("/test")
	test.Post("/email", h.SendTest(domain.NotificationTypeEmail))
	test.Post("/push", h.SendTest(domain.NotificationTypePush))
	return nil
}

func (h *NotificationHandler) SendTest(channel domain.NotificationType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var job domain.NotificationJob
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&job); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}

		if _, err := h.service.SendTest(c.UserContext(), channel, job); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.Status(fiber.StatusOK).JSON(envelope{
			Success: true,
			Message: "Test " + channel.String() + " sent",
		})
	}
}
