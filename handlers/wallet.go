// handlers/wallet.go
package handlers

import (
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// SetupWalletRoutes mounts the wallet page and the money-moving endpoints.
// limit guards transfer and withdraw.
func SetupWalletRoutes(router fiber.Router, profiles *services.ProfileService, wallets *services.WalletService, limit fiber.Handler) {
	router.Get("/wallet", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		view, err := wallets.GetWallet(profile.ID)
		if err != nil {
			return err
		}
		return c.JSON(view)
	})

	router.Post("/wallet/transfer", limit, func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		if !profile.IsActivated {
			return services.ErrNotActivated
		}

		var req struct {
			RecipientCode string          `json:"recipient_code" validate:"required"`
			Amount        decimal.Decimal `json:"amount"`
		}
		if err := parseBody(c, &req); err != nil {
			return services.Validation("Recipient and amount required")
		}

		result, err := wallets.Transfer(profile, req.RecipientCode, req.Amount)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"status":      "Transfer completed",
			"transaction": result.Debit,
		})
	})

	router.Post("/wallet/withdraw", limit, func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		if !profile.IsActivated {
			return services.ErrNotActivated
		}

		var req struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := parseBody(c, &req); err != nil {
			return services.Validation("Invalid amount")
		}

		entry, err := wallets.Withdraw(profile, req.Amount)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"status":      "Withdrawal request submitted",
			"transaction": entry,
		})
	})
}
