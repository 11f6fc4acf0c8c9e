package payouts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/payments"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/money"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

var _ outboxPublisher = (*outbox.Service)(nil)

var fixedNow = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

type fakeTransfers struct {
	mu       sync.Mutex
	requests []payments.PayoutRequest
	fail     error
}

func (f *fakeTransfers) CreatePayout(_ context.Context, req payments.PayoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.requests = append(f.requests, req)
	return "tr_" + req.PayoutID.String()[:8], nil
}

type fixture struct {
	conn      *gorm.DB
	transfers *fakeTransfers
	outbox    *outbox.Repository
	svc       Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	transfers := &fakeTransfers{}
	outboxRepo := outbox.NewRepository(conn)
	converter := money.NewConverter("usd", map[string]decimal.Decimal{"eur": decimal.RequireFromString("1.10")})
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.Wrap(conn),
		Outbox:    outbox.NewService(outboxRepo, logger.Nop()),
		Processor: transfers,
		Converter: converter,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, transfers: transfers, outbox: outboxRepo, svc: svc}
}

func (f *fixture) seller(t *testing.T, enabled bool) *models.Seller {
	t.Helper()
	account := "acct_" + uuid.NewString()[:8]
	seller := &models.Seller{UserID: uuid.New(), Name: "Corner Shop", Email: "shop@example.com", Timezone: "UTC", SameDayPickupAllowed: true, ProcessorAccountID: &account, PayoutsEnabled: enabled}
	require.NoError(t, f.conn.Create(seller).Error)
	return seller
}

// paidOrder adds an order whose frozen seller share is sellerCents.
func (f *fixture) paidOrder(t *testing.T, sellerID uuid.UUID, status enums.OrderStatus, sellerCents int64, frozen bool) {
	t.Helper()
	order := &models.Order{
		CheckoutID: uuid.New(),
		CustomerID: uuid.New(),
		SellerID:   sellerID,
		Status:     status,
		Currency:   "usd",
		TotalCents: sellerCents,
		ClientType: enums.ClientTypeWeb,
		CreatedAt:  fixedNow,
		UpdatedAt:  fixedNow,
	}
	if frozen {
		commission := int64(0)
		at := fixedNow
		order.SellerAmountCents = &sellerCents
		order.CommissionCents = &commission
		order.CommissionFrozenAt = &at
	}
	require.NoError(t, f.conn.Create(order).Error)
}

func (f *fixture) payout(t *testing.T, sellerID uuid.UUID, status enums.PayoutStatus, baseCents int64) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.Payout{
		SellerID: sellerID, AmountCents: baseCents, Currency: "usd", BaseAmountCents: baseCents, BaseCurrency: "usd",
		Status: status, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}).Error)
}

func TestBalanceCountsRecognizedRevenueAndPayouts(t *testing.T) {
	f := newFixture(t)
	seller := f.seller(t, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusComplete, 9000, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusProcessing, 4500, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusCancelled, 7000, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusPending, 2000, false)
	f.paidOrder(t, uuid.New(), enums.OrderStatusComplete, 5000, true)
	f.payout(t, seller.ID, enums.PayoutStatusCompleted, 3000)
	f.payout(t, seller.ID, enums.PayoutStatusProcessing, 1000)
	f.payout(t, seller.ID, enums.PayoutStatusPending, 500)
	f.payout(t, seller.ID, enums.PayoutStatusFailed, 8000)

	balance, err := f.svc.Balance(context.Background(), seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(13500), balance.RevenueCents)
	assert.Equal(t, int64(3000), balance.CompletedCents)
	assert.Equal(t, int64(1500), balance.InFlightCents)
	assert.Equal(t, int64(9000), balance.AvailableCents)
	assert.Equal(t, "90.00", balance.Available)
	assert.Equal(t, "usd", balance.Currency)

	_, err = f.svc.Balance(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRequestPayoutExactBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seller(t, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusComplete, 4500, true)

	_, err := f.svc.RequestPayout(ctx, seller.ID, 4501, "usd")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, "45.00", details["available"])
	assert.Contains(t, typed.Message(), "45.00")

	payout, err := f.svc.RequestPayout(ctx, seller.ID, 4500, "USD")
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusProcessing, payout.Status)
	require.NotNil(t, payout.ProcessorReference)
	require.Len(t, f.transfers.requests, 1)
	assert.Equal(t, int64(4500), f.transfers.requests[0].AmountCents)
	assert.Equal(t, *seller.ProcessorAccountID, f.transfers.requests[0].AccountID)

	balance, err := f.svc.Balance(ctx, seller.ID)
	require.NoError(t, err)
	assert.Zero(t, balance.AvailableCents)

	_, err = f.svc.RequestPayout(ctx, seller.ID, 1, "usd")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	events, err := f.outbox.ListByAggregate(payout.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventPayoutRequested, events[0].EventType)
}

func TestRequestPayoutConcurrentFullBalanceInsertsOnce(t *testing.T) {
	f := newFixture(t)
	seller := f.seller(t, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusComplete, 5000, true)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RequestPayout(context.Background(), seller.ID, 5000, "usd")
		}(i)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	var rows int64
	require.NoError(t, f.conn.Model(&models.Payout{}).Where("seller_id = ?", seller.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
	require.Len(t, f.transfers.requests, 1)

	balance, err := f.svc.Balance(context.Background(), seller.ID)
	require.NoError(t, err)
	assert.Zero(t, balance.AvailableCents)
}

func TestRequestPayoutNormalizesCurrency(t *testing.T) {
	f := newFixture(t)
	seller := f.seller(t, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusComplete, 1100, true)

	payout, err := f.svc.RequestPayout(context.Background(), seller.ID, 1000, "eur")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), payout.AmountCents)
	assert.Equal(t, "eur", payout.Currency)
	assert.Equal(t, int64(1100), payout.BaseAmountCents)
	assert.Equal(t, "usd", payout.BaseCurrency)

	_, err = f.svc.RequestPayout(context.Background(), seller.ID, 100, "gbp")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRequestPayoutRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	disabled := f.seller(t, false)
	f.paidOrder(t, disabled.ID, enums.OrderStatusComplete, 5000, true)

	_, err := f.svc.RequestPayout(context.Background(), disabled.ID, 0, "usd")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.RequestPayout(context.Background(), disabled.ID, 100, "usd")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.RequestPayout(context.Background(), uuid.New(), 100, "usd")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var count int64
	require.NoError(t, f.conn.Model(&models.Payout{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRequestPayoutProcessorFailureKeepsFailedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seller(t, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusComplete, 2000, true)
	f.transfers.fail = errors.New("account restricted")

	_, err := f.svc.RequestPayout(ctx, seller.ID, 2000, "usd")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var rows []models.Payout
	require.NoError(t, f.conn.Where("seller_id = ?", seller.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.PayoutStatusFailed, rows[0].Status)
	require.NotNil(t, rows[0].FailureReason)
	assert.Equal(t, "account restricted", *rows[0].FailureReason)

	balance, err := f.svc.Balance(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance.AvailableCents)

	events, err := f.outbox.ListByAggregate(rows[0].ID)
	require.NoError(t, err)
	types := []enums.OutboxEventType{}
	for _, event := range events {
		types = append(types, event.EventType)
	}
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventPayoutRequested, enums.EventPayoutFailed}, types)
}

func TestSettleByProcessorReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.seller(t, true)
	f.paidOrder(t, seller.ID, enums.OrderStatusComplete, 6000, true)

	first, err := f.svc.RequestPayout(ctx, seller.ID, 2000, "usd")
	require.NoError(t, err)
	second, err := f.svc.RequestPayout(ctx, seller.ID, 1000, "usd")
	require.NoError(t, err)

	require.NoError(t, f.svc.Settle(ctx, *first.ProcessorReference, true, ""))
	require.NoError(t, f.svc.Settle(ctx, *first.ProcessorReference, false, "late reversal"))
	require.NoError(t, f.svc.Settle(ctx, *second.ProcessorReference, false, "reversed"))
	require.NoError(t, f.svc.Settle(ctx, "tr_unknown", true, ""))

	list, err := f.svc.List(ctx, seller.ID, 0)
	require.NoError(t, err)
	statuses := map[uuid.UUID]enums.PayoutStatus{}
	for _, row := range list {
		statuses[row.ID] = row.Status
	}
	assert.Equal(t, enums.PayoutStatusCompleted, statuses[first.ID])
	assert.Equal(t, enums.PayoutStatusFailed, statuses[second.ID])

	balance, err := f.svc.Balance(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance.CompletedCents)
	assert.Zero(t, balance.InFlightCents)
	assert.Equal(t, int64(4000), balance.AvailableCents)
}
