package services

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bookstore/internal/models"
	"github.com/example/bookstore/internal/utils"
)

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []PurchaseNotification
	receipts      []string
}

func (r *recordingNotifier) NotifyPurchase(_ context.Context, p PurchaseNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, p)
	return nil
}

func (r *recordingNotifier) SendReceipt(_ context.Context, to string, _ *models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, to)
	return nil
}

type ledgerFixture struct {
	users     *UserStore
	payments  *PaymentService
	purchases *PurchaseService
	notifier  *recordingNotifier
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	return &ledgerFixture{
		users:     NewUserStore(db, 4),
		payments:  NewPaymentService(db, &fakeGateway{orderID: "order_abc"}, testGatewaySecret, "INR"),
		purchases: NewPurchaseService(db, notifier, notifier),
		notifier:  notifier,
	}
}

func bookLine(price int64, qty int) LineItem {
	return LineItem{ItemID: "book-1", Title: "The Go Programming Language", Quantity: qty, UnitPrice: price}
}

func TestRecordPurchase_CheckoutFlow(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, RegisterInput{Email: "reader@example.com", Password: "pw123456"})
	require.NoError(t, err)
	require.True(t, user.IsNewUser)

	order, err := f.payments.CreateOrder(ctx, user.ID, 500, "INR")
	require.NoError(t, err)
	require.Equal(t, "order_abc", order.GatewayOrderID)

	sig := Sign([]byte(testGatewaySecret), "order_abc", "pay_xyz")
	require.True(t, f.payments.VerifyCallback("order_abc", "pay_xyz", sig))

	purchase, err := f.purchases.RecordPurchase(ctx, RecordPurchaseInput{
		UserID:           user.ID,
		Items:            []LineItem{bookLine(250, 2)},
		Total:            500,
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_xyz",
		Address:          "221B Baker Street",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), purchase.Total)
	require.Len(t, purchase.Items, 1)
	assert.Equal(t, int64(500), purchase.Items[0].LineTotal)

	reloaded, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsNewUser)

	var stored models.GatewayOrder
	require.NoError(t, f.purchases.db.Where("gateway_order_id = ?", "order_abc").First(&stored).Error)
	assert.Equal(t, models.GatewayOrderPaid, stored.Status)

	f.purchases.Wait()
	require.Len(t, f.notifier.notifications, 1)
	assert.Equal(t, "pay_xyz", f.notifier.notifications[0].GatewayPaymentID)
	assert.Equal(t, []string{"reader@example.com"}, f.notifier.receipts)
}

func TestRecordPurchase_DuplicatePayment(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	user, err := f.users.FindOrCreateByMobile(ctx, "9999999999")
	require.NoError(t, err)

	in := RecordPurchaseInput{
		UserID:           user.ID,
		Items:            []LineItem{bookLine(500, 1)},
		Total:            500,
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_xyz",
	}
	_, err = f.purchases.RecordPurchase(ctx, in)
	require.NoError(t, err)

	_, err = f.purchases.RecordPurchase(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicatePayment)

	var purchases, items int64
	require.NoError(t, f.purchases.db.Model(&models.Purchase{}).Where("gateway_payment_id = ?", "pay_xyz").Count(&purchases).Error)
	require.NoError(t, f.purchases.db.Model(&models.PurchaseItem{}).Count(&items).Error)
	assert.Equal(t, int64(1), purchases)
	assert.Equal(t, int64(1), items)

	f.purchases.Wait()
	assert.Len(t, f.notifier.notifications, 1)
	assert.Empty(t, f.notifier.receipts, "otp-only user has no email")
}

func TestRecordPurchase_RejectsBadTotalsAndItems(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	user, err := f.users.FindOrCreateByMobile(ctx, "9999999999")
	require.NoError(t, err)

	base := RecordPurchaseInput{UserID: user.ID, GatewayOrderID: "order_abc", GatewayPaymentID: "pay_xyz"}

	in := base
	in.Items = []LineItem{bookLine(250, 2)}
	in.Total = 1
	_, err = f.purchases.RecordPurchase(ctx, in)
	assert.ErrorIs(t, err, ErrTotalMismatch)

	in = base
	_, err = f.purchases.RecordPurchase(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidItems)

	in = base
	in.Items = []LineItem{bookLine(250, 0)}
	_, err = f.purchases.RecordPurchase(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidItems)

	in = base
	in.Items = []LineItem{bookLine(-1, 1)}
	in.Total = -1
	_, err = f.purchases.RecordPurchase(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidItems)

	in = base
	in.Items = []LineItem{bookLine(1<<62, 4), bookLine(500, 1)}
	in.Total = 500
	_, err = f.purchases.RecordPurchase(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidItems, "wrapped subtotal must not pass as a small total")

	in = base
	in.Items = []LineItem{bookLine(math.MaxInt64, 1), bookLine(1, 1)}
	in.Total = math.MinInt64
	_, err = f.purchases.RecordPurchase(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidItems)

	reloaded, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsNewUser, "nothing committed for rejected purchases")
}

func TestRecordPurchase_UnknownUserCommitsNothing(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.purchases.RecordPurchase(context.Background(), RecordPurchaseInput{
		UserID:           uuid.New(),
		Items:            []LineItem{bookLine(100, 1)},
		Total:            100,
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_xyz",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)

	var count int64
	require.NoError(t, f.purchases.db.Model(&models.Purchase{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListPurchases(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	user, err := f.users.FindOrCreateByMobile(ctx, "9999999999")
	require.NoError(t, err)

	for _, id := range []string{"pay_1", "pay_2", "pay_3"} {
		_, err := f.purchases.RecordPurchase(ctx, RecordPurchaseInput{
			UserID:           user.ID,
			Items:            []LineItem{bookLine(100, 1)},
			Total:            100,
			GatewayOrderID:   "order_" + id,
			GatewayPaymentID: id,
		})
		require.NoError(t, err)
	}

	page, total, err := f.purchases.ListPurchases(ctx, user.ID, utils.NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Len(t, page[0].Items, 1)

	others, total, err := f.purchases.ListPurchases(ctx, uuid.New(), utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, others)
	f.purchases.Wait()
}

func TestRecordPurchase_ConcurrentSamePaymentRecordsOnce(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	sqlDB, err := f.purchases.db.DB()
	require.NoError(t, err)
	// sqlite allows one writer; a single connection keeps the racing
	// transactions from failing with "table is locked".
	sqlDB.SetMaxOpenConns(1)

	user, err := f.users.FindOrCreateByMobile(ctx, "9999999999")
	require.NoError(t, err)

	in := RecordPurchaseInput{
		UserID:           user.ID,
		Items:            []LineItem{bookLine(500, 1)},
		Total:            500,
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_race",
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.purchases.RecordPurchase(ctx, in)
		}(i)
	}
	close(start)
	wg.Wait()
	f.purchases.Wait()

	var succeeded, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, ErrDuplicatePayment):
			duplicates++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)

	var count int64
	require.NoError(t, f.purchases.db.Model(&models.Purchase{}).Where("gateway_payment_id = ?", "pay_race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
