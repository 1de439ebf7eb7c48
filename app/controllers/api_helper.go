package controllers

import (
	"errors"

	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var validate = validator.New()

// parseBody decodes and validates a JSON request body. It writes the 400
// response itself and reports whether the handler may continue.
func parseBody(c *fiber.Ctx, out interface{}) bool {
	if err := c.BodyParser(out); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
		return false
	}
	if err := validate.Struct(out); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
		return false
	}
	return true
}

// paramID reads a positive numeric path parameter, writing the 400 response
// on failure.
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// respondServiceError maps billing errors onto API status codes.
func respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Resource not found"})
	case errors.Is(err, billing.ErrMissingRemoteIdentity),
		errors.Is(err, billing.ErrInvalidPricing),
		errors.Is(err, billing.ErrPricingInactive),
		errors.Is(err, billing.ErrInvalidTrialAdjustment),
		errors.Is(err, billing.ErrUnknownTrialAction),
		errors.Is(err, billing.ErrNotOnGracePeriod):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unprocessable", "message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}
}
