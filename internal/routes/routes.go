package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/config"
	"github.com/Ananth-NQI/appointment-gateway/internal/handlers"
	"github.com/Ananth-NQI/appointment-gateway/internal/middleware"
)

// Handlers bundles everything SetupRoutes mounts.
type Handlers struct {
	Health       *handlers.HealthHandler
	OTP          *handlers.OTPHandler
	Appointments *handlers.AppointmentHandler
	APIKeys      *handlers.APIKeyHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h Handlers, cfg config.Config) {
	app.Get("/health", h.Health.Check)

	api := app.Group("/appointment-system")

	// OTP routes are rate limited per client IP
	otp := api.Group("/otp", limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(middleware.Failure(
				apperr.New(apperr.TooManyRequests, "Too many requests. Please try again later."),
			))
		},
	}))
	otp.Post("/generate", h.OTP.Generate)
	otp.Post("/resend", h.OTP.Resend)
	otp.Post("/verify", h.OTP.Verify)
	otp.Get("/status/:accountNumber", h.OTP.Status)

	appointments := api.Group("/appointments")
	appointments.Get("/purposes/:purposeName?", h.Appointments.Purposes)
	appointments.Get("/locations/:purposeId", h.Appointments.Locations)
	appointments.Get("/users/:purposeId", h.Appointments.Users)
	appointments.Post("/slots", h.Appointments.Slots)
	appointments.Post("/create", h.Appointments.Create)
	appointments.Post("/", h.Appointments.Create)
	appointments.Get("/account/:accountNumber", h.Appointments.ListByAccount)
	appointments.Post("/:appointmentId/cancel", h.Appointments.Cancel)

	keys := api.Group("/api-keys", middleware.AdminAuth(cfg.AdminJWTSecret))
	keys.Get("/", h.APIKeys.Index)
	keys.Post("/", h.APIKeys.Store)
	keys.Patch("/:id/toggle-status", h.APIKeys.Toggle)
	keys.Delete("/:id", h.APIKeys.Delete)
}
