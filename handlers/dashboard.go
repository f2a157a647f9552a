// handlers/dashboard.go
package handlers

import (
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDashboardRoutes(router fiber.Router, profiles *services.ProfileService, dashboard *services.DashboardService) {
	router.Get("/dashboard", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		out, err := dashboard.Get(profile)
		if err != nil {
			return err
		}
		return c.JSON(out)
	})
}
