package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-relay/internal/breaker"
)

const readinessTimeout = 2 * time.Second

// DependencyCheck pings one backing service for readiness.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// BreakerStatsFunc reports circuit breaker state per channel.
type BreakerStatsFunc func() map[string]breaker.Stats

// RegisterHealthRoutes mounts /livez, /health and its /readyz alias.
// breakers may be nil when the process owns no circuit breakers.
func RegisterHealthRoutes(app fiber.Router, checks []DependencyCheck, breakers BreakerStatsFunc) {
	ready := HealthHandler(checks, breakers)

	app.Get("/livez", LivezHandler())
	app.Get("/health", ready)
	app.Get("/readyz", ready)
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// HealthHandler answers 200 when every dependency responds and 503 otherwise.
// Open breakers are reported but do not fail the check.
func HealthHandler(checks []DependencyCheck, breakers BreakerStatsFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		results := fiber.Map{}
		healthy := true
		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				results[check.Name] = "down"
				healthy = false
				continue
			}
			results[check.Name] = "ok"
		}

		status := "ok"
		statusCode := fiber.StatusOK
		if !healthy {
			status = "degraded"
			statusCode = fiber.StatusServiceUnavailable
		}

		body := fiber.Map{
			"status": status,
			"checks": results,
		}
		if breakers != nil {
			body["circuit_breakers"] = breakers()
		}

		return c.Status(statusCode).JSON(body)
	}
}
