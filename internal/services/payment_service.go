package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/bookstore/internal/models"
)

// PaymentService opens gateway orders and authenticates the gateway's payment callback.
type PaymentService struct {
	db              *gorm.DB
	gateway         PaymentGateway
	secret          []byte
	defaultCurrency string
}

// NewPaymentService constructs a PaymentService. secret is the gateway's shared HMAC key.
func NewPaymentService(db *gorm.DB, gateway PaymentGateway, secret, defaultCurrency string) *PaymentService {
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}
	return &PaymentService{
		db:              db,
		gateway:         gateway,
		secret:          []byte(secret),
		defaultCurrency: defaultCurrency,
	}
}

// CreateOrder opens an order for amount minor units at the gateway and records
// it against userID. Upstream failures are wrapped in ErrGateway and not retried.
func (s *PaymentService) CreateOrder(ctx context.Context, userID uuid.UUID, amount int64, currency string) (*models.GatewayOrder, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	resp, err := s.gateway.CreateOrder(ctx, GatewayOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("gateway create order failed")
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	order := models.GatewayOrder{
		GatewayOrderID: resp.ID,
		UserID:         userID,
		Amount:         amount,
		Currency:       currency,
		Receipt:        receipt,
		Status:         models.GatewayOrderCreated,
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("save gateway order: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("gateway_order_id", order.GatewayOrderID).
		Int64("amount", amount).
		Msg("gateway order created")
	return &order, nil
}

// VerifyCallback reports whether signature is the hex HMAC-SHA256 of
// "orderID|paymentID" under the gateway secret.
func (s *PaymentService) VerifyCallback(orderID, paymentID, signature string) bool {
	expected := Sign(s.secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ConfirmOrder checks that orderID was opened by userID for exactly total.
func (s *PaymentService) ConfirmOrder(ctx context.Context, userID uuid.UUID, orderID string, total int64) (*models.GatewayOrder, error) {
	var order models.GatewayOrder
	err := s.db.WithContext(ctx).
		Where("gateway_order_id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.Amount != total {
		return nil, ErrAmountMismatch
	}
	return &order, nil
}

// Sign computes the callback signature the gateway sends for an order and payment.
func Sign(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
