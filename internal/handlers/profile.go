package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/bookstore/internal/middleware"
	"github.com/example/bookstore/internal/services"
	"github.com/example/bookstore/internal/utils"
)

// ProfileHandler manages user profile endpoints.
type ProfileHandler struct {
	users     *services.UserStore
	purchases *services.PurchaseService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(users *services.UserStore, purchases *services.PurchaseService) *ProfileHandler {
	return &ProfileHandler{users: users, purchases: purchases}
}

// GetProfile returns authenticated user profile.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	user, err := h.users.FindByID(c.UserContext(), userID)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    userResponse(user),
	})
}

type updateProfileRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// UpdateProfile changes the display name.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return validationError(err)
	}

	user, err := h.users.UpdateName(c.UserContext(), userID, req.Name)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    userResponse(user),
	})
}

// ListPurchases returns the caller's purchases, newest first.
func (h *ProfileHandler) ListPurchases(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	page := utils.ParsePagination(c)
	purchases, total, err := h.purchases.ListPurchases(c.UserContext(), userID, page)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       purchases,
		"pagination": page.Meta(total),
	})
}
