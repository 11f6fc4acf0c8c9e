package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/orders"
	"github.com/angelmondragon/marketcart-backend/pkg/db"
	"github.com/angelmondragon/marketcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

var _ outboxPublisher = (*outbox.Service)(nil)

var fixedNow = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

type fakeProcessor struct {
	mu        sync.Mutex
	seq       int
	states    map[string]PaymentState
	expired   []string
	cancelled []string
	accounts  int
	account   AccountStatus
	failNext  error
	lastReq   PaymentRequest
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{states: map[string]PaymentState{}}
}

func (f *fakeProcessor) next(prefix string) string {
	f.seq++
	return prefix + "_" + string(rune('a'+f.seq))
}

func (f *fakeProcessor) CreateSellerAccount(context.Context, SellerAccountRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts++
	return f.next("acct"), nil
}

func (f *fakeProcessor) CreateOnboardingLink(_ context.Context, accountID, _, returnURL string) (string, error) {
	return "https://connect.example/" + accountID + "?return=" + returnURL, nil
}

func (f *fakeProcessor) RetrieveAccountStatus(context.Context, string) (AccountStatus, error) {
	return f.account, nil
}

func (f *fakeProcessor) CreateHostedCheckout(_ context.Context, req PaymentRequest) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return Handle{}, err
	}
	f.lastReq = req
	id := f.next("cs")
	f.states[id] = PaymentStateOpen
	return Handle{OrderID: req.OrderID, Kind: enums.PaymentReferenceCheckoutSession, ID: id, URL: "https://pay.example/" + id}, nil
}

func (f *fakeProcessor) CreatePaymentIntent(_ context.Context, req PaymentRequest) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	id := f.next("pi")
	f.states[id] = PaymentStateOpen
	return Handle{OrderID: req.OrderID, Kind: enums.PaymentReferencePaymentIntent, ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeProcessor) RetrieveSessionStatus(_ context.Context, id string) (PaymentState, error) {
	return f.state(id)
}

func (f *fakeProcessor) RetrievePaymentIntentStatus(_ context.Context, id string) (PaymentState, error) {
	return f.state(id)
}

func (f *fakeProcessor) state(id string) (PaymentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[id]
	if !ok {
		return "", errors.New("no such handle")
	}
	return state, nil
}

func (f *fakeProcessor) set(id string, state PaymentState) {
	f.mu.Lock()
	f.states[id] = state
	f.mu.Unlock()
}

func (f *fakeProcessor) ExpireHostedCheckout(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, id)
	f.states[id] = PaymentStateExpired
	return nil
}

func (f *fakeProcessor) CancelPaymentIntent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	f.states[id] = PaymentStateExpired
	return nil
}

func (f *fakeProcessor) CreatePayout(context.Context, PayoutRequest) (string, error) {
	return "tr_1", nil
}

// statusFulfiller applies the status CAS only, standing in for the order service.
type statusFulfiller struct {
	repo    orders.Repository
	calls   []string
	failed  []uuid.UUID
	held    map[uuid.UUID]time.Time
	holdErr error
}

func (f *statusFulfiller) Fulfill(ctx context.Context, id uuid.UUID, target enums.OrderStatus, source string) (bool, error) {
	f.calls = append(f.calls, "fulfill:"+string(target))
	return f.repo.Transition(ctx, id, []enums.OrderStatus{enums.OrderStatusAwaitingPayment}, target, nil, fixedNow)
}

func (f *statusFulfiller) PromoteToProcessing(ctx context.Context, id uuid.UUID, source string) (bool, error) {
	f.calls = append(f.calls, "promote")
	return f.repo.Transition(ctx, id, []enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusProcessing, nil, fixedNow)
}

func (f *statusFulfiller) PaymentFailed(_ context.Context, id uuid.UUID, _ string) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *statusFulfiller) HoldSlots(_ context.Context, id uuid.UUID, until time.Time) error {
	if f.holdErr != nil {
		return f.holdErr
	}
	if f.held == nil {
		f.held = map[uuid.UUID]time.Time{}
	}
	f.held[id] = until
	return nil
}

func (f *statusFulfiller) StaleReferenced(ctx context.Context, _ time.Duration) ([]uuid.UUID, error) {
	return f.repo.FindStaleReferenced(ctx, fixedNow.Add(time.Hour), 100)
}

type memoryStates struct {
	values map[string]string
}

func (m *memoryStates) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStates) GetDel(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	delete(m.values, key)
	return v, nil
}

func (m *memoryStates) OnboardingStateKey(state string) string {
	return "mc:onboarding:" + state
}

type fixture struct {
	conn      *gorm.DB
	orders    orders.Repository
	processor *fakeProcessor
	fulfiller *statusFulfiller
	states    *memoryStates
	outbox    *outbox.Repository
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := orders.NewRepository(conn)
	processor := newFakeProcessor()
	fulfiller := &statusFulfiller{repo: repo}
	states := &memoryStates{values: map[string]string{}}
	outboxRepo := outbox.NewRepository(conn)

	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Orders:     repo,
		Fulfiller:  fulfiller,
		Processor:  processor,
		States:     states,
		Tx:         db.Wrap(conn),
		Outbox:     outbox.NewService(outboxRepo, logger.Nop()),
		SuccessURL: "https://shop.example/success",
		CancelURL:  "https://shop.example/cancel",
		RefreshURL: "https://shop.example/refresh",
		ReturnURL:  "https://api.example/api/v1/seller/onboarding/complete",
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, orders: repo, processor: processor, fulfiller: fulfiller, states: states, outbox: outboxRepo, svc: svc}
}

func (f *fixture) order(t *testing.T, customer uuid.UUID, total int64) *models.Order {
	t.Helper()
	order := &models.Order{
		CheckoutID:    uuid.New(),
		CustomerID:    customer,
		SellerID:      uuid.New(),
		Status:        enums.OrderStatusAwaitingPayment,
		Currency:      "usd",
		SubtotalCents: total,
		TotalCents:    total,
		ClientType:    enums.ClientTypeWeb,
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
	require.NoError(t, f.orders.Create(context.Background(), order))
	return order
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func TestCreateHandleStoresReferencePerClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	web := f.order(t, uuid.New(), 2500)
	handle, err := f.svc.CreateHandle(ctx, web, enums.ClientTypeWeb)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentReferenceCheckoutSession, handle.Kind)
	assert.NotEmpty(t, handle.URL)
	assert.EqualValues(t, 2500, f.processor.lastReq.AmountCents)
	assert.Equal(t, fixedNow.Add(minHandleTTL).Unix(), f.processor.lastReq.ExpiresAt)

	stored := f.reload(t, web.ID)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, handle.ID, *stored.PaymentReference)

	native := f.order(t, uuid.New(), 1800)
	handle, err = f.svc.CreateHandle(ctx, native, enums.ClientTypeNative)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentReferencePaymentIntent, handle.Kind)
	assert.NotEmpty(t, handle.ClientSecret)
	stored = f.reload(t, native.ID)
	assert.Equal(t, enums.ClientTypeNative, stored.ClientType)

	_, err = f.svc.CreateHandle(ctx, stored, enums.ClientTypeNative)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateHandleFailureLeavesOrderWithoutReference(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, uuid.New(), 900)
	f.processor.failNext = errors.New("processor down")

	_, err := f.svc.CreateHandle(context.Background(), order, enums.ClientTypeWeb)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Nil(t, f.reload(t, order.ID).PaymentReference)
}

func TestCreateHandleHoldsSlotsUntilHandleExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.order(t, uuid.New(), 3000)
	_, err := f.svc.CreateHandle(ctx, order, enums.ClientTypeWeb)
	require.NoError(t, err)
	require.Contains(t, f.fulfiller.held, order.ID)
	assert.Equal(t, f.processor.lastReq.ExpiresAt, f.fulfiller.held[order.ID].Unix())

	taken := f.order(t, uuid.New(), 3000)
	f.fulfiller.holdErr = pkgerrors.New(pkgerrors.CodeStateConflict, "booked slot is no longer available")
	_, err = f.svc.CreateHandle(ctx, taken, enums.ClientTypeWeb)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Nil(t, f.reload(t, taken.ID).PaymentReference, "no handle is created for a lost slot")
}

func TestCreateHandleSettlesFreeOrders(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, uuid.New(), 0)

	handle, err := f.svc.CreateHandle(context.Background(), order, enums.ClientTypeWeb)
	require.NoError(t, err)
	assert.True(t, handle.Settled)
	assert.Equal(t, enums.OrderStatusProcessing, f.reload(t, order.ID).Status)
}

func TestReconcileOrderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, uuid.New(), 2500)
	handle, err := f.svc.CreateHandle(ctx, order, enums.ClientTypeWeb)
	require.NoError(t, err)

	result, err := f.svc.ReconcileOrder(ctx, order.ID, orders.SourceRedirect)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, result.Outcome)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, result.Status)

	f.processor.set(handle.ID, PaymentStatePaid)
	result, err = f.svc.ReconcileOrder(ctx, order.ID, orders.SourceRedirect)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFulfilled, result.Outcome)
	assert.Equal(t, enums.OrderStatusProcessing, result.Status)

	result, err = f.svc.ApplyReferenceState(ctx, handle.ID, PaymentStatePaid, orders.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, result.Outcome)
	assert.Equal(t, enums.OrderStatusProcessing, result.Status)
	assert.Equal(t, []string{"fulfill:processing"}, f.fulfiller.calls)
}

func TestAsyncPaymentGoesPendingThenPromotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, uuid.New(), 2500)
	handle, err := f.svc.CreateHandle(ctx, order, enums.ClientTypeNative)
	require.NoError(t, err)

	result, err := f.svc.ApplyReferenceState(ctx, handle.ID, PaymentStateProcessing, orders.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, enums.OrderStatusPending, result.Status)

	result, err = f.svc.ApplyReferenceState(ctx, handle.ID, PaymentStateProcessing, orders.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, result.Outcome)

	result, err = f.svc.ApplyReferenceState(ctx, handle.ID, PaymentStatePaid, orders.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomePromoted, result.Outcome)
	assert.Equal(t, enums.OrderStatusProcessing, result.Status)
}

func TestFailedAndExpiredStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failing := f.order(t, uuid.New(), 1000)
	handle, err := f.svc.CreateHandle(ctx, failing, enums.ClientTypeNative)
	require.NoError(t, err)
	result, err := f.svc.ApplyReferenceState(ctx, handle.ID, PaymentStateFailed, orders.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, []uuid.UUID{failing.ID}, f.fulfiller.failed)

	expiring := f.order(t, uuid.New(), 1000)
	handle, err = f.svc.CreateHandle(ctx, expiring, enums.ClientTypeWeb)
	require.NoError(t, err)
	result, err = f.svc.ApplyReferenceState(ctx, handle.ID, PaymentStateExpired, orders.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, result.Outcome)
	assert.Nil(t, f.reload(t, expiring.ID).PaymentReference, "expired handle is cleared so the sweep can reclaim the order")

	result, err = f.svc.ApplyReferenceState(ctx, handle.ID, PaymentStateExpired, orders.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, result.Outcome, "unknown reference is ignored")
}

func TestRetryHandleReplacesOpenHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	order := f.order(t, customer, 1500)
	first, err := f.svc.CreateHandle(ctx, order, enums.ClientTypeWeb)
	require.NoError(t, err)

	_, err = f.svc.RetryHandle(ctx, uuid.New(), order.ID, enums.ClientTypeWeb)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	second, err := f.svc.RetryHandle(ctx, customer, order.ID, enums.ClientTypeNative)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{first.ID}, f.processor.expired)

	stored := f.reload(t, order.ID)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, second.ID, *stored.PaymentReference)
	require.NotNil(t, stored.PaymentReferenceKind)
	assert.Equal(t, enums.PaymentReferencePaymentIntent, *stored.PaymentReferenceKind)
}

func TestRetryHandleAppliesPaymentThatAlreadyWentThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := uuid.New()
	order := f.order(t, customer, 1500)
	handle, err := f.svc.CreateHandle(ctx, order, enums.ClientTypeWeb)
	require.NoError(t, err)
	f.processor.set(handle.ID, PaymentStatePaid)

	_, err = f.svc.RetryHandle(ctx, customer, order.ID, enums.ClientTypeWeb)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, f.processor.expired)
	assert.Equal(t, enums.OrderStatusProcessing, f.reload(t, order.ID).Status)
}

func TestReconcileStaleAdvancesOnlyChangedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.order(t, uuid.New(), 1000)
	open := f.order(t, uuid.New(), 1000)
	paidHandle, err := f.svc.CreateHandle(ctx, paid, enums.ClientTypeWeb)
	require.NoError(t, err)
	_, err = f.svc.CreateHandle(ctx, open, enums.ClientTypeWeb)
	require.NoError(t, err)
	f.processor.set(paidHandle.ID, PaymentStatePaid)

	advanced, err := f.svc.ReconcileStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, f.reload(t, open.ID).Status)
}

func TestEnsureSellerAccountCreatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := &models.Seller{UserID: uuid.New(), Name: "Stall", Email: "stall@example.com"}
	require.NoError(t, f.conn.Create(seller).Error)

	first, err := f.svc.EnsureSellerAccount(ctx, seller.ID)
	require.NoError(t, err)
	second, err := f.svc.EnsureSellerAccount(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.processor.accounts)

	_, err = f.svc.EnsureSellerAccount(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestOnboardingStateIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := &models.Seller{UserID: uuid.New(), Name: "Stall", Email: "stall@example.com"}
	require.NoError(t, f.conn.Create(seller).Error)

	link, err := f.svc.StartOnboarding(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, f.states.values, 1)
	var state string
	for key := range f.states.values {
		state = key[len("mc:onboarding:"):]
	}
	assert.Contains(t, link.URL, "state="+state)

	f.processor.account = AccountStatus{DetailsSubmitted: true, PayoutsEnabled: true}
	status, err := f.svc.CompleteOnboarding(ctx, state)
	require.NoError(t, err)
	assert.True(t, status.PayoutsEnabled)
	assert.Equal(t, link.AccountID, status.AccountID)

	var stored models.Seller
	require.NoError(t, f.conn.Where("id = ?", seller.ID).First(&stored).Error)
	assert.True(t, stored.PayoutsEnabled)

	events, err := f.outbox.ListByAggregate(seller.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventSellerOnboarded, events[0].EventType)

	_, err = f.svc.CompleteOnboarding(ctx, state)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSyncAccountTogglesPayouts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := "acct_sync"
	seller := &models.Seller{UserID: uuid.New(), Name: "Stall", Email: "stall@example.com", ProcessorAccountID: &account}
	require.NoError(t, f.conn.Create(seller).Error)

	require.NoError(t, f.svc.SyncAccount(ctx, account, AccountStatus{DetailsSubmitted: true, PayoutsEnabled: true}))
	require.NoError(t, f.svc.SyncAccount(ctx, account, AccountStatus{DetailsSubmitted: true, PayoutsEnabled: true}))
	events, err := f.outbox.ListByAggregate(seller.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, f.svc.SyncAccount(ctx, account, AccountStatus{PayoutsEnabled: false}))
	var stored models.Seller
	require.NoError(t, f.conn.Where("id = ?", seller.ID).First(&stored).Error)
	assert.False(t, stored.PayoutsEnabled)

	assert.NoError(t, f.svc.SyncAccount(ctx, "acct_missing", AccountStatus{PayoutsEnabled: true}))
}
