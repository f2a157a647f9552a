// handlers/payments.go
package handlers

import (
	"errors"

	"kenya-earn/logging"
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupPaymentRoutes(router fiber.Router, profiles *services.ProfileService, payments *services.PaymentService) {
	router.Post("/activate", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		if profile.IsActivated {
			return services.ErrAlreadyActivated
		}

		var req struct {
			PhoneNumber string `json:"phone_number" validate:"required,kephone"`
			Email       string `json:"email" validate:"omitempty,email"`
		}
		if err := parseBody(c, &req); err != nil {
			return err
		}

		session, err := payments.Initiate(c.UserContext(), profile, req.PhoneNumber, req.Email)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": session})
	})

	router.Get("/verify-payment/:reference", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}

		reference := c.Params("reference")
		completed, err := payments.VerifyForProfile(profile, reference)
		if err != nil && !errors.Is(err, services.ErrPaymentNotFound) {
			return err
		}
		if !completed {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"activated": false})
		}
		return c.JSON(fiber.Map{"activated": true, "reference": reference})
	})
}

// SetupWebhookRoutes mounts the provider callback. It carries no bearer token;
// the HMAC signature is its only authentication. Processing failures are
// acknowledged with 200 so the provider does not retry-storm us; payments left
// pending are picked up by the reconciliation sweep.
func SetupWebhookRoutes(router fiber.Router, payments *services.PaymentService, ackUnknownReference bool) {
	router.Post("/webhook/paystack", func(c *fiber.Ctx) error {
		outcome, err := payments.HandleWebhook(c.UserContext(), c.Body(), c.Get("x-paystack-signature"))
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			logging.Logger.Warn("❌ [WEBHOOK] invalid signature", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "invalid signature"})
		case err != nil && services.KindOf(err) == services.KindValidation:
			logging.Logger.Warn("⚠️ [WEBHOOK] signed payload rejected", zap.Error(err))
			return c.JSON(fiber.Map{"status": "error"})
		case err != nil:
			logging.Logger.Error("❌ [WEBHOOK] processing failed", zap.Error(err))
			return c.JSON(fiber.Map{"status": "error"})
		}

		switch outcome {
		case services.OutcomeUnknownReference:
			if !ackUnknownReference {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status": "unknown reference"})
			}
			return c.JSON(fiber.Map{"status": "ignored"})
		case services.OutcomeIgnored:
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		return c.JSON(fiber.Map{"status": "success"})
	})
}
