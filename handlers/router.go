// handlers/router.go
package handlers

import (
	"kenya-earn/middleware"
	"kenya-earn/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

// Dependencies is everything the HTTP surface is wired to.
type Dependencies struct {
	DB        *gorm.DB
	Verifier  services.TokenVerifier
	Profiles  *services.ProfileService
	Wallets   *services.WalletService
	Tasks     *services.TaskService
	Payments  *services.PaymentService
	Dashboard *services.DashboardService

	AdminToken          string
	AllowedOrigins      string
	AckUnknownReference bool
	RateLimiter         *middleware.RateLimiter
	Sweep               SweepConfig
}

// NewApp builds the fiber app. Public routes (health, metrics, webhook, admin)
// are registered before the identity-gated group.
func NewApp(d Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
		BodyLimit:    6 * 1024 * 1024, // profile pictures
	})

	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     d.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	SetupHealthRoutes(app, d.DB)

	api := app.Group("/api")
	SetupWebhookRoutes(api, d.Payments, d.AckUnknownReference)
	SetupAdminRoutes(api, d.AdminToken, AdminServices{
		Tasks:    d.Tasks,
		Wallets:  d.Wallets,
		Payments: d.Payments,
		Sweep:    d.Sweep,
	})

	// 🔐 Secured routes need a verified Firebase identity
	secured := api.Group("/", middleware.IdentityMiddleware(d.Verifier))

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if d.RateLimiter != nil {
		limit = d.RateLimiter.Handler()
	}

	SetupProfileRoutes(secured, d.Profiles)
	SetupPaymentRoutes(secured, d.Profiles, d.Payments)
	SetupWalletRoutes(secured, d.Profiles, d.Wallets, limit)
	SetupTaskRoutes(secured, d.Profiles, d.Tasks)
	SetupDashboardRoutes(secured, d.Profiles, d.Dashboard)

	return app
}
