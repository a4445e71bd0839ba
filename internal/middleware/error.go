package middleware

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
)

// FieldErrors reports request fields that failed checks the validator
// cannot express, keyed by json field name.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	return "validation failed"
}

// ErrorHandler renders every error that reaches fiber in the response
// envelope {success, message, data, error_code, errors}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make(map[string]string, len(ve))
		for _, fe := range ve {
			out[fe.Field()] = describe(fe)
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success":    false,
			"message":    "Validation failed",
			"data":       nil,
			"error_code": apperr.ValidationError,
			"errors":     out,
		})
	}

	var fields FieldErrors
	if errors.As(err, &fields) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success":    false,
			"message":    "Validation failed",
			"data":       nil,
			"error_code": apperr.ValidationError,
			"errors":     map[string]string(fields),
		})
	}

	if ae, ok := apperr.As(err); ok {
		return c.Status(apperr.HTTPStatus(ae.Code)).JSON(Failure(ae))
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := apperr.ServerError
		switch fe.Code {
		case fiber.StatusNotFound:
			code = apperr.NotFound
		case fiber.StatusUnauthorized:
			code = apperr.Unauthorized
		case fiber.StatusTooManyRequests:
			code = apperr.TooManyRequests
		case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed:
			code = apperr.ValidationError
		}
		return c.Status(fe.Code).JSON(fiber.Map{
			"success":    false,
			"message":    fe.Message,
			"data":       nil,
			"error_code": code,
		})
	}

	zerolog.Ctx(c.UserContext()).Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success":    false,
		"message":    "Internal server error",
		"data":       nil,
		"error_code": apperr.ServerError,
	})
}

// Failure builds the envelope for a business error, merging its details
// into the top level.
func Failure(ae *apperr.Error) fiber.Map {
	body := fiber.Map{
		"success":    false,
		"message":    ae.Message,
		"data":       nil,
		"error_code": ae.Code,
	}
	for k, v := range ae.Details {
		body[k] = v
	}
	return body
}
