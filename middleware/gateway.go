// card-battle-system/middleware/gateway.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceAuthMiddleware validates the Bearer token from the Gateway when
// ARENA_SERVICE_TOKEN is set. Game clients normally talk to this service
// directly, so an unset token disables the check instead of failing startup.
func ServiceAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("ARENA_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Println("⚠️  ARENA_SERVICE_TOKEN not set — gateway auth disabled, accepting direct clients")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [GATEWAY_AUTH] Missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// Parse "Bearer <token>"
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			// no "Bearer " prefix — try raw value
			token = authHeader
		}

		if token != expectedToken {
			log.Printf("❌ [GATEWAY_AUTH] Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}
