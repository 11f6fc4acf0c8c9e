package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/cart"
	"github.com/angelmondragon/marketcart-backend/internal/catalog"
	"github.com/angelmondragon/marketcart-backend/internal/cutoff"
	"github.com/angelmondragon/marketcart-backend/internal/discounts"
	"github.com/angelmondragon/marketcart-backend/internal/orders"
	"github.com/angelmondragon/marketcart-backend/internal/payments"
	"github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

var _ outboxPublisher = (*outbox.Service)(nil)

var fixedNow = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

const sunday = "2026-03-01"

type fakePayments struct {
	mu         sync.Mutex
	accounts   []uuid.UUID
	handles    []uuid.UUID
	failSeller uuid.UUID
}

func (f *fakePayments) EnsureSellerAccount(_ context.Context, sellerID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, sellerID)
	return "acct_" + sellerID.String()[:8], nil
}

func (f *fakePayments) CreateHandle(_ context.Context, order *models.Order, client enums.ClientType) (*payments.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order.SellerID == f.failSeller {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("processor down"), "create payment handle")
	}
	f.handles = append(f.handles, order.ID)
	if order.TotalCents == 0 {
		return &payments.Handle{OrderID: order.ID, Settled: true}, nil
	}
	return &payments.Handle{OrderID: order.ID, Kind: enums.ReferenceKindFor(client), ID: "cs_" + order.ID.String()[:8], URL: "https://pay.example/" + order.ID.String()}, nil
}

type fixture struct {
	conn     *gorm.DB
	ledger   *slots.Ledger
	cart     *cart.Repository
	payments *fakePayments
	outbox   *outbox.Repository
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	clock := func() time.Time { return fixedNow }
	ledger, err := slots.NewLedger(slots.LedgerParams{DB: conn, LockTTL: 15 * time.Minute, Now: clock})
	require.NoError(t, err)
	splitter, err := cart.NewSplitter(catalog.NewRepository(conn), ledger, cutoff.NewPolicy(clock), nil)
	require.NoError(t, err)
	allocator, err := discounts.NewService(discounts.ServiceParams{DB: conn, PointValueCents: 1, PointsPerUnit: 1, Now: clock})
	require.NoError(t, err)

	cartRepo := cart.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	fake := &fakePayments{}
	svc, err := NewService(ServiceParams{
		Tx:        db.Wrap(conn),
		Lines:     cartRepo,
		Splitter:  splitter,
		Allocator: allocator,
		Orders:    orders.NewRepository(conn),
		Payments:  fake,
		Outbox:    outbox.NewService(outboxRepo, logger.Nop()),
		Currency:  "USD",
		Now:       clock,
	})
	require.NoError(t, err)
	return &fixture{conn: conn, ledger: ledger, cart: cartRepo, payments: fake, outbox: outboxRepo, svc: svc}
}

func (f *fixture) seller(t *testing.T, name string) *models.Seller {
	t.Helper()
	seller := &models.Seller{UserID: uuid.New(), Name: name, Email: name + "@example.com", Timezone: "UTC", SameDayPickupAllowed: true}
	require.NoError(t, f.conn.Create(seller).Error)
	hours := make([]slots.DaySchedule, 0, 7)
	for weekday := 0; weekday < 7; weekday++ {
		start, end := types.ClockTime(9*60), types.ClockTime(17*60)
		hours = append(hours, slots.DaySchedule{Weekday: weekday, Start: &start, End: &end, IsAvailable: true})
	}
	_, err := f.ledger.UpsertWeeklySchedule(context.Background(), seller.ID, hours)
	require.NoError(t, err)
	return seller
}

func (f *fixture) addProduct(t *testing.T, customer, sellerID uuid.UUID, price int64, qty int) *models.Product {
	t.Helper()
	product := &models.Product{SellerID: sellerID, Name: "tote", PriceCents: price, Stock: 10}
	require.NoError(t, f.conn.Create(product).Error)
	id := product.ID
	require.NoError(t, f.cart.Create(context.Background(), &models.CartLine{CustomerID: customer, Kind: enums.CartLineKindProduct, ProductID: &id, Quantity: qty}))
	return product
}

func (f *fixture) addService(t *testing.T, customer, sellerID uuid.UUID, price int64, minute int) *models.Service {
	t.Helper()
	service := &models.Service{SellerID: sellerID, Name: "fitting", PriceCents: price, DurationMinutes: 30}
	require.NoError(t, f.conn.Create(service).Error)
	id, date := service.ID, sunday
	require.NoError(t, f.cart.Create(context.Background(), &models.CartLine{CustomerID: customer, Kind: enums.CartLineKindService, ServiceID: &id, Quantity: 1, BookingDate: &date, BookingMinute: &minute}))
	return service
}

func bySeller(result *Result) map[uuid.UUID]OrderResult {
	out := make(map[uuid.UUID]OrderResult, len(result.Orders))
	for _, order := range result.Orders {
		out[order.SellerID] = order
	}
	return out
}

func TestExecuteSplitsPerSellerAndAppliesScopedDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	a := f.seller(t, "alpha")
	b := f.seller(t, "bravo")
	f.addProduct(t, customer, a.ID, 2000, 1)
	f.addService(t, customer, b.ID, 3000, 600)

	code := &models.DiscountCode{Code: "TENOFF", Kind: enums.DiscountKindFixed, Value: 1000, Active: true, Sellers: []models.DiscountCodeSeller{{SellerID: a.ID}}}
	require.NoError(t, f.conn.Create(code).Error)

	result, err := f.svc.Execute(ctx, customer, CheckoutInput{DiscountCode: "tenoff"})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	assert.Equal(t, "usd", result.Currency)
	assert.Equal(t, int64(5000), result.SubtotalCents)
	assert.Equal(t, int64(1000), result.DiscountCents)
	assert.Equal(t, int64(4000), result.TotalCents)
	require.NotNil(t, result.DiscountCode)
	assert.Equal(t, "TENOFF", *result.DiscountCode)

	orderA, orderB := bySeller(result)[a.ID], bySeller(result)[b.ID]
	assert.Equal(t, int64(1000), orderA.TotalCents)
	assert.Equal(t, int64(1000), orderA.DiscountCents)
	assert.Equal(t, int64(3000), orderB.TotalCents)
	assert.Zero(t, orderB.DiscountCents)
	for _, order := range result.Orders {
		assert.Equal(t, enums.OrderStatusAwaitingPayment, order.Status)
		require.NotNil(t, order.Payment)
		assert.Nil(t, order.PaymentError)
	}

	var stored models.Order
	require.NoError(t, f.conn.Where("id = ?", orderB.OrderID).First(&stored).Error)
	require.NotNil(t, stored.PickupDate)
	assert.Equal(t, sunday, *stored.PickupDate)
	assert.Equal(t, 600, *stored.PickupMinute)
	assert.Nil(t, stored.DiscountCode)
	assert.Equal(t, result.CheckoutID, stored.CheckoutID)

	var usages int64
	require.NoError(t, f.conn.Model(&models.DiscountCodeUsage{}).Where("order_id = ?", orderA.OrderID).Count(&usages).Error)
	assert.Equal(t, int64(1), usages)

	var serviceItems []models.OrderServiceItem
	require.NoError(t, f.conn.Where("order_id = ?", orderB.OrderID).Find(&serviceItems).Error)
	require.Len(t, serviceItems, 1)
	assert.NotNil(t, serviceItems[0].CartLineID)

	var locks int64
	require.NoError(t, f.conn.Model(&models.SlotLock{}).Where("seller_id = ? AND customer_id = ?", b.ID, customer).Count(&locks).Error)
	assert.Equal(t, int64(1), locks)

	events, err := f.outbox.ListByAggregate(orderA.OrderID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)

	lines, err := f.cart.ListByCustomer(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, lines, 2, "cart lines stay until payment")
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, f.payments.accounts)
}

func TestExecuteRejectsEmptyCartAndBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Execute(ctx, uuid.New(), CheckoutInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Execute(ctx, uuid.New(), CheckoutInput{Points: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Execute(ctx, uuid.New(), CheckoutInput{ClientType: "kiosk"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestExecuteReleasesLocksWhenQuoteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	seller := f.seller(t, "alpha")
	f.addService(t, customer, seller.ID, 3000, 660)

	_, err := f.svc.Execute(ctx, customer, CheckoutInput{DiscountCode: "NOPE"})
	require.Error(t, err)

	var locks int64
	require.NoError(t, f.conn.Model(&models.SlotLock{}).Where("seller_id = ?", seller.ID).Count(&locks).Error)
	assert.Zero(t, locks)
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestExecuteConflictsWhenSlotHeldByAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	seller := f.seller(t, "alpha")
	f.addService(t, customer, seller.ID, 3000, 720)

	locked, err := f.ledger.LockSlot(ctx, slots.Key{SellerID: seller.ID, Date: sunday, Minute: 720}, uuid.New(), 30)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = f.svc.Execute(ctx, customer, CheckoutInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestExecuteReportsPaymentFailurePerOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	a := f.seller(t, "alpha")
	b := f.seller(t, "bravo")
	f.addProduct(t, customer, a.ID, 1200, 1)
	f.addProduct(t, customer, b.ID, 800, 2)
	f.payments.failSeller = b.ID

	result, err := f.svc.Execute(ctx, customer, CheckoutInput{})
	require.NoError(t, err)
	orderA, orderB := bySeller(result)[a.ID], bySeller(result)[b.ID]
	assert.NotNil(t, orderA.Payment)
	assert.Nil(t, orderB.Payment)
	require.NotNil(t, orderB.PaymentError)
	assert.Equal(t, pkgerrors.CodeDependency, orderB.PaymentError.Code)

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Where("checkout_id = ?", result.CheckoutID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestExecuteFreeOrderSkipsSellerAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	seller := f.seller(t, "alpha")
	f.addProduct(t, customer, seller.ID, 500, 1)
	code := &models.DiscountCode{Code: "FREEBIE", Kind: enums.DiscountKindFixed, Value: 500, Active: true, AnySeller: true}
	require.NoError(t, f.conn.Create(code).Error)

	result, err := f.svc.Execute(ctx, customer, CheckoutInput{DiscountCode: "FREEBIE"})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Zero(t, result.Orders[0].TotalCents)
	assert.Equal(t, enums.OrderStatusProcessing, result.Orders[0].Status)
	assert.Empty(t, f.payments.accounts)
}

func TestGetScopesToCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	seller := f.seller(t, "alpha")
	f.addProduct(t, customer, seller.ID, 1500, 2)

	created, err := f.svc.Execute(ctx, customer, CheckoutInput{})
	require.NoError(t, err)

	loaded, err := f.svc.Get(ctx, customer, created.CheckoutID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), loaded.TotalCents)
	require.Len(t, loaded.Orders, 1)
	assert.Equal(t, created.Orders[0].OrderID, loaded.Orders[0].OrderID)

	_, err = f.svc.Get(ctx, uuid.New(), created.CheckoutID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
