package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/bookstore/internal/models"
	"github.com/example/bookstore/internal/services"
	"github.com/example/bookstore/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	users    *services.UserStore
	otp      *services.OTPService
	sessions *utils.SessionIssuer
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserStore, otp *services.OTPService, sessions *utils.SessionIssuer) *AuthHandler {
	return &AuthHandler{users: users, otp: otp, sessions: sessions}
}

type registerRequest struct {
	Name     string `json:"name" validate:"max=120"`
	Email    string `json:"email" validate:"omitempty,email"`
	Mobile   string `json:"mobile" validate:"omitempty,mobile"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Register creates a new password account and signs the caller in.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return validationError(err)
	}

	user, err := h.users.Register(c.UserContext(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	})
	if err != nil {
		return mapError(err)
	}

	return h.respondWithSession(c, fiber.StatusCreated, user)
}

type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// Login authenticates by email or mobile plus password.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.users.Authenticate(c.UserContext(), req.ID, req.Password)
	if err != nil {
		return mapError(err)
	}

	return h.respondWithSession(c, fiber.StatusOK, user)
}

type sendOTPRequest struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
}

// SendOTP issues a verification code to the given mobile.
func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return validationError(err)
	}

	if err := h.otp.RequestChallenge(c.UserContext(), req.Mobile); err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"msg":     "sent",
	})
}

type verifyOTPRequest struct {
	Mobile string `json:"mobile"`
	OTP    string `json:"otp"`
}

// VerifyOTP checks the code, creating the account on first login.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.otp.VerifyChallenge(c.UserContext(), req.Mobile, req.OTP)
	if err != nil {
		return mapError(err)
	}

	return h.respondWithSession(c, fiber.StatusOK, user)
}

func (h *AuthHandler) respondWithSession(c *fiber.Ctx, status int, user *models.User) error {
	token, err := h.sessions.Issue(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(status).JSON(fiber.Map{
		"success":   true,
		"token":     token,
		"isNewUser": user.IsNewUser,
		"user":      userResponse(user),
	})
}

func userResponse(user *models.User) fiber.Map {
	return fiber.Map{
		"id":          user.ID,
		"name":        user.Name,
		"email":       user.Email,
		"mobile":      user.Mobile,
		"is_new_user": user.IsNewUser,
		"created_at":  user.CreatedAt,
	}
}
