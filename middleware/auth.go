// middleware/auth.go
package middleware

import (
	"strings"

	"kenya-earn/logging"
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	UserIDKey   = "user_id"
	IdentityKey = "identity"
)

// IdentityMiddleware verifies the Firebase ID token in the Authorization
// header and attaches the identity for handlers.
func IdentityMiddleware(verifier services.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader || strings.TrimSpace(token) == "" {
			return services.ErrMissingToken
		}

		id, err := verifier.Verify(c.UserContext(), strings.TrimSpace(token))
		if err != nil {
			logging.Logger.Info("🚫 [AUTH] token rejected", zap.String("path", c.Path()), zap.Error(err))
			return err
		}

		c.Locals(UserIDKey, id.UID)
		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

// CurrentIdentity returns the identity set by IdentityMiddleware.
func CurrentIdentity(c *fiber.Ctx) *services.Identity {
	id, _ := c.Locals(IdentityKey).(*services.Identity)
	return id
}
