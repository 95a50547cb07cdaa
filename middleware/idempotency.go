// middleware/idempotency.go
package middleware

import (
	"github.com/gofiber/fiber/v2"
)

const idempotencyHeader = "X-Idempotency-Key"

// IdempotencyKey lifts the client-supplied request key out of the header so
// handlers can pass it through to the engine. An absent header just disables
// replay protection for that call.
func IdempotencyKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get(idempotencyHeader); key != "" {
			c.Locals("idempotency_key", key)
		}
		return c.Next()
	}
}

// RequestKey reads the extracted key from locals, or "" when none was sent.
func RequestKey(c *fiber.Ctx) string {
	if key, ok := c.Locals("idempotency_key").(string); ok {
		return key
	}
	return ""
}
