package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses that did not set
// their own. Session state is per client and changes on every gesture.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var value string
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			value = "public, max-age=10"
		case path == "/metrics":
			value = "no-cache"
		case strings.HasPrefix(path, "/v1/sessions"):
			// ETag revalidation still applies.
			value = "private, no-cache"
		case strings.HasPrefix(path, "/v1/"):
			value = "no-store"
		}

		if value != "" {
			c.Set(fiber.HeaderCacheControl, value)
		}
		return err
	}
}
