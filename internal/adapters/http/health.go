package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		sessions := 0
		if deps.Sessions != nil {
			sessions = deps.Sessions.Len()
		}
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"uptime":   time.Since(startedAt).String(),
			"sessions": sessions,
			"version":  "dev",
		})
	}
}

// ReadyHandler checks the post source and optional infrastructure. Only
// the configured post source is required.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allOK := true

		if deps.Sessions == nil {
			checks["sessions"] = "not configured"
			allOK = false
		} else {
			checks["sessions"] = "ok"
		}

		// Post source: exactly one of backend or database
		switch {
		case deps.Backend != nil:
			checks["backend"] = pingCheck(ctx, deps.Backend.Ping, &allOK)
		case deps.DB != nil:
			checks["database"] = pingCheck(ctx, deps.DB.Ping, &allOK)
		default:
			checks["posts"] = "not configured"
			allOK = false
		}

		if deps.NATS != nil {
			if deps.NATS.IsConnected() {
				checks["nats"] = "ok"
			} else {
				checks["nats"] = "disconnected"
				allOK = false
			}
		} else {
			checks["nats"] = "not configured"
		}

		if deps.Cache != nil {
			checks["cache"] = pingCheck(ctx, deps.Cache.Ping, &allOK)
		} else {
			checks["cache"] = "not configured"
		}

		status := "ready"
		code := fiber.StatusOK
		if !allOK {
			status = "not ready"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func pingCheck(ctx context.Context, ping func(context.Context) error, ok *bool) string {
	if err := ping(ctx); err != nil {
		*ok = false
		return "error: " + err.Error()
	}
	return "ok"
}
