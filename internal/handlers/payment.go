package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/bookstore/internal/middleware"
	"github.com/example/bookstore/internal/services"
	"github.com/example/bookstore/internal/utils"
)

// PaymentHandler serves checkout endpoints.
type PaymentHandler struct {
	payments  *services.PaymentService
	purchases *services.PurchaseService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *services.PaymentService, purchases *services.PurchaseService) *PaymentHandler {
	return &PaymentHandler{payments: payments, purchases: purchases}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// CreateOrder opens a gateway order for the authenticated user.
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return validationError(err)
	}

	order, err := h.payments.CreateOrder(c.UserContext(), userID, req.Amount, req.Currency)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"id":       order.GatewayOrderID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
}

type purchaseItemRequest struct {
	ItemID   string `json:"itemId" validate:"required"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity" validate:"gte=1"`
	Price    int64  `json:"price" validate:"gte=0"`
}

type verifyPaymentRequest struct {
	GatewayPaymentID string                `json:"gatewayPaymentId" validate:"required"`
	GatewayOrderID   string                `json:"gatewayOrderId" validate:"required"`
	Signature        string                `json:"signature" validate:"required"`
	Items            []purchaseItemRequest `json:"items" validate:"required,min=1,dive"`
	Total            int64                 `json:"total" validate:"gte=0"`
	Address          string                `json:"address"`
}

// VerifyPayment authenticates the gateway callback and records the purchase.
// Nothing in the body is trusted until the signature checks out.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !h.payments.VerifyCallback(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		log.Warn().
			Str("user_id", userID.String()).
			Str("gateway_order_id", req.GatewayOrderID).
			Msg("payment signature rejected")
		return mapError(services.ErrSignatureMismatch)
	}

	if err := utils.ValidateStruct(req); err != nil {
		return validationError(err)
	}

	order, err := h.payments.ConfirmOrder(c.UserContext(), userID, req.GatewayOrderID, req.Total)
	if err != nil {
		return mapError(err)
	}

	items := make([]services.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.LineItem{
			ItemID:    item.ItemID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	purchase, err := h.purchases.RecordPurchase(c.UserContext(), services.RecordPurchaseInput{
		UserID:           userID,
		Items:            items,
		Total:            req.Total,
		Currency:         order.Currency,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Address:          req.Address,
	})
	if err != nil {
		return mapError(err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"ok":       true,
		"purchase": purchase,
	})
}
