// handlers/errors.go
package handlers

import (
	"errors"

	"kenya-earn/logging"
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error as {"error": message}. Domain errors keep
// their message; anything else is logged and hidden behind a generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var se *services.Error
	if errors.As(err, &se) {
		status := statusFor(se.Kind)
		if status >= fiber.StatusInternalServerError {
			logging.Logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("message", se.Message),
				zap.Error(se.Err),
			)
		}
		return c.Status(status).JSON(fiber.Map{"error": se.Message})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	logging.Logger.Error("unexpected error", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
