// handlers/tasks.go
package handlers

import (
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTaskRoutes(router fiber.Router, profiles *services.ProfileService, tasks *services.TaskService) {
	router.Get("/tasks", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		list, err := tasks.List(profile, c.Query("status", "available"))
		if err != nil {
			return err
		}
		return c.JSON(list)
	})

	router.Post("/tasks/:id/submit", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		task, err := tasks.Submit(profile, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "submitted", "task": task})
	})
}
