package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
)

// RequestLogger attaches a request-scoped zerolog logger to the user context
// and writes one access line per request.
func RequestLogger(base zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()

		reqID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		logger := base.With().Str("request_id", reqID).Logger()
		c.SetUserContext(logger.WithContext(c.UserContext()))

		err := c.Next()

		status := c.Response().StatusCode()
		if ae, ok := apperr.As(err); ok {
			status = apperr.HTTPStatus(ae.Code)
		} else if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		event := logger.Info()
		if status >= fiber.StatusInternalServerError {
			event = logger.Error()
		}
		if err != nil {
			event = event.AnErr("handler_error", err).Str("error_code", string(apperr.CodeOf(err)))
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(started)).
			Msg("request")
		return err
	}
}
