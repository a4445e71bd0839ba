package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Pinger is any dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	service string
	checks  map[string]Pinger
}

// NewHealthHandler creates a new health handler. checks are probed by name
// on every request.
func NewHealthHandler(service, version string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		Version: version,
		service: service,
		checks:  checks,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "OK"
	code := fiber.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("dependency", name).Msg("health check failed")
			deps[name] = "down"
			status = "DEGRADED"
			code = fiber.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"service":      h.service,
		"version":      h.Version,
		"dependencies": deps,
	})
}
