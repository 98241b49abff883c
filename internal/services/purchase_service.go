package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/bookstore/internal/database"
	"github.com/example/bookstore/internal/models"
	"github.com/example/bookstore/internal/utils"
)

const notifyTimeout = 30 * time.Second

// PurchaseNotifier is told about every recorded purchase.
type PurchaseNotifier interface {
	NotifyPurchase(ctx context.Context, p PurchaseNotification) error
}

// ReceiptSender mails a receipt to the buyer.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, to string, purchase *models.Purchase) error
}

// LineItem is one caller-supplied purchase line. UnitPrice is in minor units.
type LineItem struct {
	ItemID    string
	Title     string
	Quantity  int
	UnitPrice int64
}

// RecordPurchaseInput describes a verified payment to be written to the ledger.
type RecordPurchaseInput struct {
	UserID           uuid.UUID
	Items            []LineItem
	Total            int64
	Currency         string
	GatewayOrderID   string
	GatewayPaymentID string
	Address          string
}

// PurchaseService is the purchase ledger.
type PurchaseService struct {
	db       *gorm.DB
	notifier PurchaseNotifier
	receipts ReceiptSender
	wg       sync.WaitGroup
}

// NewPurchaseService constructs a PurchaseService. notifier and receipts may be nil.
func NewPurchaseService(db *gorm.DB, notifier PurchaseNotifier, receipts ReceiptSender) *PurchaseService {
	return &PurchaseService{db: db, notifier: notifier, receipts: receipts}
}

// RecordPurchase writes the purchase, marks its gateway order paid and clears the
// buyer's new-user flag in one transaction. The caller must already have verified
// the payment signature. A second call for the same payment id fails with
// ErrDuplicatePayment and changes nothing.
func (s *PurchaseService) RecordPurchase(ctx context.Context, in RecordPurchaseInput) (*models.Purchase, error) {
	items, total, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}
	if total != in.Total {
		return nil, ErrTotalMismatch
	}
	if strings.TrimSpace(in.GatewayPaymentID) == "" {
		return nil, fmt.Errorf("%w: missing payment id", ErrInvalidItems)
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "INR"
	}

	purchase := models.Purchase{
		UserID:           in.UserID,
		Total:            total,
		Currency:         currency,
		GatewayOrderID:   in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		Address:          strings.TrimSpace(in.Address),
		Items:            items,
	}

	var buyer models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&buyer, "id = ?", in.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if err := tx.Create(&purchase).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicatePayment
			}
			return fmt.Errorf("create purchase: %w", err)
		}

		if err := tx.Model(&models.GatewayOrder{}).
			Where("gateway_order_id = ? AND user_id = ?", in.GatewayOrderID, in.UserID).
			Update("status", models.GatewayOrderPaid).Error; err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", in.UserID).
			Update("is_new_user", false).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		buyer.IsNewUser = false
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			log.Warn().
				Str("user_id", in.UserID.String()).
				Str("gateway_payment_id", in.GatewayPaymentID).
				Msg("duplicate payment rejected")
		}
		return nil, err
	}

	log.Info().
		Str("user_id", in.UserID.String()).
		Str("purchase_id", purchase.ID.String()).
		Str("gateway_order_id", purchase.GatewayOrderID).
		Int64("total", purchase.Total).
		Msg("purchase recorded")

	s.notify(buyer, purchase)
	return &purchase, nil
}

// ListPurchases returns the user's purchases newest first with their items.
func (s *PurchaseService) ListPurchases(ctx context.Context, userID uuid.UUID, page utils.Pagination) ([]models.Purchase, int64, error) {
	owned := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Purchase{}).Where("user_id = ?", userID)
	}

	var total int64
	if err := owned().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var purchases []models.Purchase
	err := owned().
		Preload("Items").
		Order("created_at desc").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&purchases).Error
	if err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}

// Wait blocks until pending notifications have finished.
func (s *PurchaseService) Wait() {
	s.wg.Wait()
}

func (s *PurchaseService) notify(buyer models.User, purchase models.Purchase) {
	if s.notifier == nil && s.receipts == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if s.notifier != nil {
			if err := s.notifier.NotifyPurchase(ctx, purchaseNotification(buyer, purchase)); err != nil {
				log.Error().Err(err).Str("purchase_id", purchase.ID.String()).Msg("purchase notification failed")
			}
		}
		if s.receipts != nil && buyer.EmailAddress() != "" {
			if err := s.receipts.SendReceipt(ctx, buyer.EmailAddress(), &purchase); err != nil {
				log.Error().Err(err).Str("purchase_id", purchase.ID.String()).Msg("receipt email failed")
			}
		}
	}()
}

func buildItems(lines []LineItem) ([]models.PurchaseItem, int64, error) {
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("%w: at least one item is required", ErrInvalidItems)
	}

	items := make([]models.PurchaseItem, 0, len(lines))
	var total int64
	for i, line := range lines {
		if line.Quantity < 1 {
			return nil, 0, fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidItems, i+1)
		}
		if line.UnitPrice < 0 {
			return nil, 0, fmt.Errorf("%w: item %d price must not be negative", ErrInvalidItems, i+1)
		}
		if line.UnitPrice > math.MaxInt64/int64(line.Quantity) {
			return nil, 0, fmt.Errorf("%w: item %d subtotal is too large", ErrInvalidItems, i+1)
		}
		lineTotal := line.UnitPrice * int64(line.Quantity)
		if total > math.MaxInt64-lineTotal {
			return nil, 0, fmt.Errorf("%w: order total is too large", ErrInvalidItems)
		}
		total += lineTotal
		items = append(items, models.PurchaseItem{
			ItemID:    line.ItemID,
			Title:     line.Title,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	return items, total, nil
}

func purchaseNotification(buyer models.User, p models.Purchase) PurchaseNotification {
	name := buyer.Name
	if name == "" {
		name = buyer.EmailAddress()
	}
	if name == "" {
		name = MaskMobile(buyer.MobileNumber())
	}

	items := make([]PurchaseItemNotification, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, PurchaseItemNotification{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	return PurchaseNotification{
		PurchaseID:       p.ID.String(),
		GatewayPaymentID: p.GatewayPaymentID,
		Buyer:            name,
		Items:            items,
		Total:            p.Total,
		Currency:         p.Currency,
		Address:          p.Address,
	}
}
