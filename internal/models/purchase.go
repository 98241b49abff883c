package models

import (
	"github.com/google/uuid"
)

// Purchase is an immutable ledger entry written once per verified payment.
// Amounts are stored in the gateway's minor currency unit.
type Purchase struct {
	BaseModel
	UserID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	Total            int64          `gorm:"not null" json:"total"`
	Currency         string         `gorm:"not null" json:"currency"`
	GatewayOrderID   string         `gorm:"index;not null" json:"gateway_order_id"`
	GatewayPaymentID string         `gorm:"uniqueIndex;not null" json:"gateway_payment_id"`
	Address          string         `json:"address"`
	Items            []PurchaseItem `json:"items,omitempty"`
}

// PurchaseItem is a single line of a Purchase.
type PurchaseItem struct {
	BaseModel
	PurchaseID uuid.UUID `gorm:"type:uuid;index;not null" json:"purchase_id"`
	ItemID     string    `json:"item_id"`
	Title      string    `json:"title"`
	Quantity   int       `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"`
	LineTotal  int64     `json:"line_total"`
}
