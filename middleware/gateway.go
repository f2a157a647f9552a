// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"kenya-earn/logging"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminTokenMiddleware guards back-office routes with a static bearer token.
func AdminTokenMiddleware(expectedToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			logging.Logger.Warn("🚫 [ADMIN_AUTH] missing Authorization header", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "admin token missing",
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logging.Logger.Warn("❌ [ADMIN_AUTH] invalid token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid admin token",
			})
		}

		c.Locals(UserIDKey, "admin")
		return c.Next()
	}
}
