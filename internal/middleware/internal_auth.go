package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/ballotbase/api/pkg/response"
)

// InternalAuth guards operator-only routes with a shared-secret header.
// With no token configured the check is skipped (e.g. local runs where
// the scheduler and API share a network namespace).
func InternalAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		provided := c.Get("X-Internal-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			return response.Unauthorized(c, "Missing or invalid internal token")
		}

		return c.Next()
	}
}
