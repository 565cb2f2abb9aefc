package handlers

import (
	"encoding/json"
	"errors"

	"katalog/internal/authz"
	"katalog/internal/repositories"
	"katalog/internal/services"
	"katalog/internal/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Client-facing messages for errors without a field.
const (
	msgNotFound           = "Not found."
	msgUnauthenticated    = "Authentication credentials were not provided."
	msgPermissionDenied   = "You do not have permission to perform this action."
	msgInvalidBody        = "Invalid request body"
	msgInvalidPage        = "Invalid page."
	msgQuantityNegative   = "Quantity cannot be negative."
	msgQuantityInteger    = "Quantity must be an integer."
	msgInvalidAction      = "Invalid action type. Must be 'increase' or 'decrease'."
	msgNotEnoughStock     = "Not enough stock to decrease by this quantity."
	msgAvailabilityBool   = "Please provide a boolean value for 'is_available'."
	msgAvailabilityLocked = "'is_available' is derived from stock and cannot be set directly."
	msgStockLimit         = "Stock cannot exceed 2147483647."
)

// respondError maps service and repository errors to HTTP responses.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	if fe, ok := validation.AsErrors(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  fe,
		})
	}

	switch {
	case errors.Is(err, repositories.ErrProductNotFound), errors.Is(err, repositories.ErrUserNotFound):
		return message(c, fiber.StatusNotFound, msgNotFound)
	case errors.Is(err, authz.ErrUnauthenticated):
		return message(c, fiber.StatusUnauthorized, msgUnauthenticated)
	case errors.Is(err, authz.ErrPermissionDenied):
		return message(c, fiber.StatusForbidden, msgPermissionDenied)
	case errors.Is(err, services.ErrInvalidQuantity):
		return message(c, fiber.StatusBadRequest, msgQuantityNegative)
	case errors.Is(err, services.ErrAvailabilityDerived):
		return message(c, fiber.StatusBadRequest, msgAvailabilityLocked)
	case errors.Is(err, repositories.ErrStockLimit):
		return message(c, fiber.StatusBadRequest, msgStockLimit)
	}

	logger.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Internal server error",
		"error":   err.Error(),
	})
}

func message(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"message": msg})
}

// bodyError reports a request body that could not be decoded. A value of the
// wrong JSON type is reported against its field.
func bodyError(c *fiber.Ctx, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  validation.NewFieldError(typeErr.Field, validation.MsgInvalid),
		})
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": msgInvalidBody,
		"error":   err.Error(),
	})
}
