// handlers/admin.go
package handlers

import (
	"time"

	"kenya-earn/middleware"
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// AdminServices bundles what the back office acts on.
type AdminServices struct {
	Tasks    *services.TaskService
	Wallets  *services.WalletService
	Payments *services.PaymentService
	Sweep    SweepConfig
}

// SweepConfig is the window used by a manually triggered sweep.
type SweepConfig struct {
	MinAge time.Duration
	TTL    time.Duration
}

func SetupAdminRoutes(router fiber.Router, adminToken string, svc AdminServices) {
	admin := router.Group("/admin", middleware.AdminTokenMiddleware(adminToken))

	admin.Post("/tasks", func(c *fiber.Ctx) error {
		var req services.NewTask
		if err := parseBody(c, &req); err != nil {
			return err
		}
		task, err := svc.Tasks.Create(req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(task)
	})

	admin.Post("/tasks/:id/approve", func(c *fiber.Ctx) error {
		task, reward, err := svc.Tasks.Review(c.Params("id"), true, "")
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"task": task, "transaction": reward})
	})

	admin.Post("/tasks/:id/reject", func(c *fiber.Ctx) error {
		var req struct {
			Reason string `json:"reason" validate:"required"`
		}
		if err := parseBody(c, &req); err != nil {
			return err
		}
		task, _, err := svc.Tasks.Review(c.Params("id"), false, req.Reason)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"task": task})
	})

	admin.Get("/withdrawals", func(c *fiber.Ctx) error {
		list, err := svc.Wallets.PendingWithdrawals()
		if err != nil {
			return err
		}
		return c.JSON(list)
	})

	admin.Post("/withdrawals/:id/settle", func(c *fiber.Ctx) error {
		entry, err := svc.Wallets.SettleWithdrawal(c.Params("id"), true)
		if err != nil {
			return err
		}
		return c.JSON(entry)
	})

	admin.Post("/withdrawals/:id/reject", func(c *fiber.Ctx) error {
		entry, err := svc.Wallets.SettleWithdrawal(c.Params("id"), false)
		if err != nil {
			return err
		}
		return c.JSON(entry)
	})

	admin.Post("/deposits", func(c *fiber.Ctx) error {
		var req struct {
			ProfileID   string          `json:"profile_id" validate:"required"`
			Amount      decimal.Decimal `json:"amount"`
			Description string          `json:"description" validate:"required"`
		}
		if err := parseBody(c, &req); err != nil {
			return err
		}
		entry, err := svc.Wallets.Deposit(req.ProfileID, req.Amount, req.Description)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	})

	admin.Get("/payments", func(c *fiber.Ctx) error {
		list, err := svc.Payments.PendingPayments()
		if err != nil {
			return err
		}
		return c.JSON(list)
	})

	admin.Post("/payments/sweep", func(c *fiber.Ctx) error {
		stats, err := svc.Payments.SweepPending(c.UserContext(), svc.Sweep.MinAge, svc.Sweep.TTL)
		if err != nil {
			return err
		}
		return c.JSON(stats)
	})
}
