package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/bookstore/internal/services"
	"github.com/example/bookstore/internal/utils"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{services.ErrConflict, fiber.StatusConflict, "email or mobile already registered"},
	{services.ErrMissingIdentifier, fiber.StatusBadRequest, "email or mobile is required"},
	{services.ErrWeakPassword, fiber.StatusBadRequest, "password must be at least 6 characters"},
	{utils.ErrPasswordTooLong, fiber.StatusBadRequest, "password must be at most 72 bytes"},
	{services.ErrInvalidCredentials, fiber.StatusUnauthorized, "Invalid credentials"},
	{services.ErrUserNotFound, fiber.StatusNotFound, "user not found"},
	{services.ErrInvalidOTP, fiber.StatusBadRequest, "Invalid OTP"},
	{services.ErrDelivery, fiber.StatusBadGateway, "could not deliver message"},
	{utils.ErrMissingCredential, fiber.StatusUnauthorized, "missing authorization header"},
	{utils.ErrInvalidToken, fiber.StatusUnauthorized, "invalid token"},
	{services.ErrInvalidAmount, fiber.StatusBadRequest, "amount must be positive"},
	{services.ErrGateway, fiber.StatusBadGateway, "payment gateway unavailable"},
	{services.ErrSignatureMismatch, fiber.StatusBadRequest, "Bad sign"},
	{services.ErrOrderNotFound, fiber.StatusBadRequest, "unknown gateway order"},
	{services.ErrAmountMismatch, fiber.StatusBadRequest, "order amount does not match total"},
	{services.ErrInvalidItems, fiber.StatusBadRequest, "invalid purchase items"},
	{services.ErrTotalMismatch, fiber.StatusBadRequest, "total does not match items"},
	{services.ErrDuplicatePayment, fiber.StatusConflict, "payment already recorded"},
}

// mapError converts a domain error into a fiber error with the matching status.
// Unknown errors are returned unchanged and end up as 500s.
func mapError(err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return fiber.NewError(m.status, m.message)
		}
	}
	return err
}

// ErrorHandler renders every error as {"success": false, "error": "..."}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= fiber.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", code).
			Msg("request failed")
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func validationError(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}
