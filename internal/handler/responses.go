package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
)

func respSuccess(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{"data": data})
}

// respError maps domain error kinds onto HTTP statuses. Unknown errors are
// logged and hidden behind a generic 500.
func respError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	status := statusFromError(err)
	if status == fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrExpired):
		return fiber.StatusGone
	case errors.Is(err, model.ErrValidationFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, model.ErrSettlementMismatch):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUnauthorized):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}
