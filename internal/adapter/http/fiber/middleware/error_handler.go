package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

// ErrorHandler maps the stable error kinds to HTTP codes and renders
// every failure as {"error": ...}.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		switch {
		case errors.Is(err, domain.ErrChargerNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, domain.ErrChargerNotConnected):
			code = fiber.StatusServiceUnavailable
		case errors.Is(err, domain.ErrConcurrentTx):
			code = fiber.StatusConflict
		case errors.Is(err, domain.ErrUnknownAction):
			code = fiber.StatusBadRequest
		case errors.Is(err, domain.ErrAuthorizationFailed):
			code = fiber.StatusForbidden
		case errors.Is(err, domain.ErrTimeout):
			code = fiber.StatusGatewayTimeout
		default:
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
		}

		if code == fiber.StatusInternalServerError {
			log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
