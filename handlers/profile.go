// handlers/profile.go
package handlers

import (
	"kenya-earn/middleware"
	"kenya-earn/models"
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
)

// currentProfile loads the profile of the verified caller.
func currentProfile(c *fiber.Ctx, profiles *services.ProfileService) (*models.Profile, error) {
	uid, _ := c.Locals(middleware.UserIDKey).(string)
	if uid == "" {
		return nil, services.ErrMissingToken
	}
	return profiles.GetByUID(uid)
}

func SetupProfileRoutes(router fiber.Router, profiles *services.ProfileService) {
	router.Post("/profile/complete", func(c *fiber.Ctx) error {
		id := middleware.CurrentIdentity(c)
		if id == nil {
			return services.ErrMissingToken
		}

		var req services.CompletionInput
		if err := parseBody(c, &req); err != nil {
			return err
		}

		profile, created, err := profiles.CompleteProfile(*id, req)
		if err != nil {
			return err
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(profile)
	})

	router.Get("/profile", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		return c.JSON(profile)
	})

	router.Put("/profile", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}

		var req services.ProfileUpdate
		if err := parseBody(c, &req); err != nil {
			return err
		}
		updated, err := profiles.UpdateProfile(profile, req)
		if err != nil {
			return err
		}
		return c.JSON(updated)
	})

	router.Post("/profile/picture", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("picture")
		if err != nil {
			return services.Validation("picture file is required")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return err
		}
		defer file.Close()

		url, err := profiles.UploadPicture(c.UserContext(), profile, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"profile_picture": url})
	})

	router.Put("/settings", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}

		var req struct {
			ThemePreference string `json:"theme_preference" validate:"required"`
		}
		if err := parseBody(c, &req); err != nil {
			return services.ErrInvalidTheme
		}
		if err := profiles.UpdateTheme(profile, req.ThemePreference); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"theme_preference": profile.ThemePreference})
	})

	router.Delete("/account", func(c *fiber.Ctx) error {
		profile, err := currentProfile(c, profiles)
		if err != nil {
			return err
		}
		if err := profiles.DeleteAccount(profile); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "Account deleted"})
	})
}
