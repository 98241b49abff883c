package models

import (
	"github.com/google/uuid"
)

// Gateway order states.
const (
	GatewayOrderCreated = "created"
	GatewayOrderPaid    = "paid"
)

// GatewayOrder records an order opened at the payment gateway on behalf of a
// user, so the later payment callback can be matched to its owner and amount.
type GatewayOrder struct {
	BaseModel
	GatewayOrderID string    `gorm:"uniqueIndex;not null" json:"gateway_order_id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount         int64     `gorm:"not null" json:"amount"`
	Currency       string    `gorm:"not null" json:"currency"`
	Receipt        string    `json:"receipt"`
	Status         string    `gorm:"not null" json:"status"`
}
