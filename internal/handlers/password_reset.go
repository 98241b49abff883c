package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/bookstore/internal/services"
	"github.com/example/bookstore/internal/utils"
)

// PasswordResetHandler manages forgot-password endpoints.
type PasswordResetHandler struct {
	users *services.UserStore
	otp   *services.OTPService
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(users *services.UserStore, otp *services.OTPService) *PasswordResetHandler {
	return &PasswordResetHandler{users: users, otp: otp}
}

type forgotPasswordRequest struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
}

// ForgotPassword sends a reset code when the mobile belongs to an account.
// Unknown mobiles and failed deliveries get the same response as a sent code.
func (h *PasswordResetHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return validationError(err)
	}

	_, err := h.users.FindByEmailOrMobile(c.UserContext(), req.Mobile)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		log.Debug().Str("mobile", services.MaskMobile(req.Mobile)).Msg("password reset for unknown mobile")
	case err != nil:
		return err
	default:
		if err := h.otp.RequestResetChallenge(c.UserContext(), req.Mobile); err != nil {
			log.Error().Err(err).Str("mobile", services.MaskMobile(req.Mobile)).Msg("password reset code not sent")
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"msg":     "sent",
	})
}

type resetPasswordRequest struct {
	Mobile      string `json:"mobile" validate:"required"`
	OTP         string `json:"otp" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

// ResetPassword sets a new password after the reset code checks out.
func (h *PasswordResetHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return validationError(err)
	}

	if err := h.otp.ConsumeResetChallenge(c.UserContext(), req.Mobile, req.OTP); err != nil {
		return mapError(err)
	}
	if err := h.users.SetPasswordByMobile(c.UserContext(), req.Mobile, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return mapError(services.ErrInvalidOTP)
		}
		return mapError(err)
	}

	log.Info().Str("mobile", services.MaskMobile(req.Mobile)).Msg("password reset")
	return c.JSON(fiber.Map{
		"success": true,
		"reset":   true,
	})
}
