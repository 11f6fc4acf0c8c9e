package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/orders"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

// stripe refuses hosted sessions that expire sooner than this.
const minHandleTTL = 30 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type orderStore interface {
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	SetPaymentReference(ctx context.Context, orderID uuid.UUID, expected *string, reference string, kind enums.PaymentReferenceKind, client enums.ClientType, now time.Time) (bool, error)
	ClearPaymentReference(ctx context.Context, orderID uuid.UUID, reference string, now time.Time) (bool, error)
}

type fulfiller interface {
	Fulfill(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, source string) (bool, error)
	PromoteToProcessing(ctx context.Context, orderID uuid.UUID, source string) (bool, error)
	PaymentFailed(ctx context.Context, orderID uuid.UUID, source string) error
	HoldSlots(ctx context.Context, orderID uuid.UUID, until time.Time) error
	StaleReferenced(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)
}

type stateStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	OnboardingStateKey(state string) string
}

// Outcome names what a reconciliation did to the order.
type Outcome string

const (
	OutcomeNoop      Outcome = "noop"
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomePending   Outcome = "pending"
	OutcomePromoted  Outcome = "promoted"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
)

// ReconcileResult reports the processor state observed and the order's status afterwards.
type ReconcileResult struct {
	OrderID uuid.UUID         `json:"order_id"`
	State   PaymentState      `json:"payment_state,omitempty"`
	Outcome Outcome           `json:"outcome"`
	Status  enums.OrderStatus `json:"status"`
}

// ServiceParams wires the payment orchestrator.
type ServiceParams struct {
	Repo       *Repository
	Orders     orderStore
	Fulfiller  fulfiller
	Processor  Processor
	States     stateStore
	Tx         txRunner
	Outbox     outboxPublisher
	Logger     *logger.Logger
	SuccessURL string
	CancelURL  string
	RefreshURL string
	ReturnURL  string
	StateTTL   time.Duration
	HandleTTL  time.Duration
	Now        func() time.Time
}

type Service struct {
	repo       *Repository
	orders     orderStore
	fulfiller  fulfiller
	processor  Processor
	states     stateStore
	tx         txRunner
	outbox     outboxPublisher
	logg       *logger.Logger
	successURL string
	cancelURL  string
	refreshURL string
	returnURL  string
	stateTTL   time.Duration
	handleTTL  time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order store required")
	case params.Fulfiller == nil:
		return nil, fmt.Errorf("order fulfiller required")
	case params.Processor == nil:
		return nil, fmt.Errorf("payment processor required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.StateTTL <= 0 {
		params.StateTTL = 30 * time.Minute
	}
	if params.HandleTTL < minHandleTTL {
		params.HandleTTL = minHandleTTL
	}
	return &Service{
		repo:       params.Repo,
		orders:     params.Orders,
		fulfiller:  params.Fulfiller,
		processor:  params.Processor,
		states:     params.States,
		tx:         params.Tx,
		outbox:     params.Outbox,
		logg:       params.Logger,
		successURL: params.SuccessURL,
		cancelURL:  params.CancelURL,
		refreshURL: params.RefreshURL,
		returnURL:  params.ReturnURL,
		stateTTL:   params.StateTTL,
		handleTTL:  params.HandleTTL,
		now:        params.Now,
	}, nil
}

// CreateHandle requests a payment handle for an unpaid order and stores its
// reference. Orders with nothing to pay are confirmed without the processor.
func (s *Service) CreateHandle(ctx context.Context, order *models.Order, client enums.ClientType) (*Handle, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.Status != enums.OrderStatusAwaitingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}
	if order.HasPaymentReference() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already has a payment handle")
	}
	if order.TotalCents == 0 {
		return s.settleFree(ctx, order)
	}
	return s.attach(ctx, order, nil, client)
}

// RetryHandle replaces the payment handle of the customer's unpaid order. The old
// handle is checked first so a payment that already went through is applied
// instead of being thrown away.
func (s *Service) RetryHandle(ctx context.Context, customerID, orderID uuid.UUID, client enums.ClientType) (*Handle, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusAwaitingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}
	if !order.HasPaymentReference() {
		return s.CreateHandle(ctx, order, client)
	}

	old := *order.PaymentReference
	kind := referenceKind(order)
	state, err := s.retrieveState(ctx, kind, old)
	if err != nil {
		return nil, err
	}
	switch state {
	case PaymentStatePaid, PaymentStateProcessing:
		result, err := s.apply(ctx, order, state, orders.SourceManual)
		if err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already received").
			WithDetails(map[string]any{"status": result.Status})
	case PaymentStateOpen:
		if err := s.invalidate(ctx, kind, old); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate payment handle")
		}
	}
	return s.attach(ctx, order, &old, client)
}

// ReconcileOrder re-reads the processor state of the order's handle and applies it.
// Running it again after the order advanced is a no-op.
func (s *Service) ReconcileOrder(ctx context.Context, orderID uuid.UUID, source string) (*ReconcileResult, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasPaymentReference() {
		return &ReconcileResult{OrderID: order.ID, Outcome: OutcomeNoop, Status: order.Status}, nil
	}
	state, err := s.retrieveState(ctx, referenceKind(order), *order.PaymentReference)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, order, state, source)
}

// ApplyReferenceState applies a state reported by the processor for reference.
// Unknown references (replaced or never stored) are ignored.
func (s *Service) ApplyReferenceState(ctx context.Context, reference string, state PaymentState, source string) (*ReconcileResult, error) {
	order, err := s.orders.FindByPaymentReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "payment_reference", reference), "payment reference not attached to any order")
			return &ReconcileResult{State: state, Outcome: OutcomeNoop}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment reference")
	}
	return s.apply(ctx, order, state, source)
}

// ReconcileStale polls the processor for referenced orders still unpaid after olderThan.
func (s *Service) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.fulfiller.StaleReferenced(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	var errs error
	advanced := 0
	for _, id := range ids {
		result, err := s.ReconcileOrder(ctx, id, orders.SourceCron)
		if err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, id.String()), "reconcile stale order", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if result.Outcome != OutcomeNoop {
			advanced++
		}
	}
	return advanced, errs
}

func (s *Service) apply(ctx context.Context, order *models.Order, state PaymentState, source string) (*ReconcileResult, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "payment_state": string(state), "source": source})
	result := &ReconcileResult{OrderID: order.ID, State: state, Outcome: OutcomeNoop}

	switch state {
	case PaymentStatePaid:
		switch order.Status {
		case enums.OrderStatusAwaitingPayment:
			ok, err := s.fulfiller.Fulfill(ctx, order.ID, enums.OrderStatusProcessing, source)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Outcome = OutcomeFulfilled
			} else {
				// lost the race with another trigger; it may have stopped at pending
				ok, err = s.fulfiller.PromoteToProcessing(ctx, order.ID, source)
				if err != nil {
					return nil, err
				}
				if ok {
					result.Outcome = OutcomePromoted
				}
			}
		case enums.OrderStatusPending:
			ok, err := s.fulfiller.PromoteToProcessing(ctx, order.ID, source)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Outcome = OutcomePromoted
			}
		}
	case PaymentStateProcessing:
		if order.Status == enums.OrderStatusAwaitingPayment {
			ok, err := s.fulfiller.Fulfill(ctx, order.ID, enums.OrderStatusPending, source)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Outcome = OutcomePending
			}
		}
	case PaymentStateFailed:
		if order.Status == enums.OrderStatusAwaitingPayment || order.Status == enums.OrderStatusPending {
			if err := s.fulfiller.PaymentFailed(ctx, order.ID, source); err != nil {
				return nil, err
			}
			result.Outcome = OutcomeFailed
		}
	case PaymentStateExpired:
		if order.Status == enums.OrderStatusAwaitingPayment && order.HasPaymentReference() {
			ok, err := s.orders.ClearPaymentReference(ctx, order.ID, *order.PaymentReference, s.now().UTC())
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear payment reference")
			}
			if ok {
				result.Outcome = OutcomeExpired
			}
		}
	}

	current, err := s.load(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	result.Status = current.Status
	if result.Outcome != OutcomeNoop {
		s.logg.Info(ctx, "payment reconciled")
	}
	return result, nil
}

// attach creates a processor handle and stores it with a CAS on the expected
// current reference. A lost race invalidates the fresh handle.
func (s *Service) attach(ctx context.Context, order *models.Order, expected *string, client enums.ClientType) (*Handle, error) {
	if !client.IsValid() {
		client = order.ClientType
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.handleTTL)
	// slot locks must outlive the handle or the slot could be resold mid-payment
	if err := s.fulfiller.HoldSlots(ctx, order.ID, expiresAt); err != nil {
		return nil, err
	}
	req := PaymentRequest{
		OrderID:     order.ID,
		CheckoutID:  order.CheckoutID,
		CustomerID:  order.CustomerID,
		SellerID:    order.SellerID,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Description: "Order " + order.ID.String()[:8],
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
		ExpiresAt:   expiresAt.Unix(),
	}

	var (
		handle Handle
		err    error
	)
	if client == enums.ClientTypeNative {
		handle, err = s.processor.CreatePaymentIntent(ctx, req)
	} else {
		handle, err = s.processor.CreateHostedCheckout(ctx, req)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment handle")
	}
	handle.OrderID = order.ID

	ok, err := s.orders.SetPaymentReference(ctx, order.ID, expected, handle.ID, handle.Kind, client, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment reference")
	}
	if !ok {
		if invErr := s.invalidate(context.WithoutCancel(ctx), handle.Kind, handle.ID); invErr != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "invalidate orphaned payment handle", invErr)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order payment handle changed concurrently")
	}
	return &handle, nil
}

func (s *Service) settleFree(ctx context.Context, order *models.Order) (*Handle, error) {
	if _, err := s.fulfiller.Fulfill(ctx, order.ID, enums.OrderStatusProcessing, orders.SourceManual); err != nil {
		return nil, err
	}
	return &Handle{OrderID: order.ID, Settled: true}, nil
}

func (s *Service) retrieveState(ctx context.Context, kind enums.PaymentReferenceKind, reference string) (PaymentState, error) {
	var (
		state PaymentState
		err   error
	)
	if kind == enums.PaymentReferencePaymentIntent {
		state, err = s.processor.RetrievePaymentIntentStatus(ctx, reference)
	} else {
		state, err = s.processor.RetrieveSessionStatus(ctx, reference)
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve payment status")
	}
	return state, nil
}

func (s *Service) invalidate(ctx context.Context, kind enums.PaymentReferenceKind, reference string) error {
	if kind == enums.PaymentReferencePaymentIntent {
		return s.processor.CancelPaymentIntent(ctx, reference)
	}
	return s.processor.ExpireHostedCheckout(ctx, reference)
}

func (s *Service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func referenceKind(order *models.Order) enums.PaymentReferenceKind {
	if order.PaymentReferenceKind != nil {
		return *order.PaymentReferenceKind
	}
	return enums.ReferenceKindFor(order.ClientType)
}
