package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/cart"
	"github.com/angelmondragon/marketcart-backend/internal/discounts"
	"github.com/angelmondragon/marketcart-backend/internal/orders"
	"github.com/angelmondragon/marketcart-backend/internal/payments"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/metrics"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox/payloads"
)

const maxConcurrentHandles = 4

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type cartLines interface {
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CartLine, error)
}

type splitter interface {
	Split(ctx context.Context, customerID uuid.UUID, lines []models.CartLine, bookings map[uuid.UUID]cart.Booking) (*cart.SplitResult, error)
	Release(ctx context.Context, result *cart.SplitResult)
}

type allocator interface {
	Quote(ctx context.Context, input discounts.QuoteInput) (*discounts.Quote, error)
	Record(ctx context.Context, apps discounts.Applications) error
}

type paymentRequester interface {
	EnsureSellerAccount(ctx context.Context, sellerID uuid.UUID) (string, error)
	CreateHandle(ctx context.Context, order *models.Order, client enums.ClientType) (*payments.Handle, error)
}

// Service turns a customer's cart into one unpaid order per seller and requests
// a payment handle for each.
type Service interface {
	Execute(ctx context.Context, customerID uuid.UUID, input CheckoutInput) (*Result, error)
	Get(ctx context.Context, customerID, checkoutID uuid.UUID) (*Result, error)
}

// CheckoutInput captures the optional choices made at checkout.
type CheckoutInput struct {
	DiscountCode string
	Points       int64
	Bookings     map[uuid.UUID]cart.Booking
	ClientType   enums.ClientType
}

// PaymentError is reported per order when its handle could not be created.
type PaymentError struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

// OrderResult is one seller's order as created by the checkout.
type OrderResult struct {
	OrderID             uuid.UUID         `json:"order_id"`
	SellerID            uuid.UUID         `json:"seller_id"`
	Status              enums.OrderStatus `json:"status"`
	SubtotalCents       int64             `json:"subtotal_cents"`
	DiscountCents       int64             `json:"discount_cents"`
	PointsRedeemed      int64             `json:"points_redeemed"`
	PointsDiscountCents int64             `json:"points_discount_cents"`
	TotalCents          int64             `json:"total_cents"`
	Payment             *payments.Handle  `json:"payment,omitempty"`
	PaymentError        *PaymentError     `json:"payment_error,omitempty"`
}

// Result summarizes a checkout across all sellers.
type Result struct {
	CheckoutID          uuid.UUID     `json:"checkout_id"`
	Currency            string        `json:"currency"`
	DiscountCode        *string       `json:"discount_code,omitempty"`
	SubtotalCents       int64         `json:"subtotal_cents"`
	DiscountCents       int64         `json:"discount_cents"`
	PointsRedeemed      int64         `json:"points_redeemed"`
	PointsDiscountCents int64         `json:"points_discount_cents"`
	TotalCents          int64         `json:"total_cents"`
	Orders              []OrderResult `json:"orders"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Tx        txRunner
	Lines     cartLines
	Splitter  splitter
	Allocator allocator
	Orders    orders.Repository
	Payments  paymentRequester
	Outbox    outboxPublisher
	Logger    *logger.Logger
	Metrics   *metrics.CheckoutMetrics
	Currency  string
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	lines     cartLines
	splitter  splitter
	allocator allocator
	orders    orders.Repository
	payments  paymentRequester
	outbox    outboxPublisher
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
	currency  string
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Lines == nil:
		return nil, fmt.Errorf("cart line store required")
	case params.Splitter == nil:
		return nil, fmt.Errorf("cart splitter required")
	case params.Allocator == nil:
		return nil, fmt.Errorf("discount allocator required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment requester required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		tx:        params.Tx,
		lines:     params.Lines,
		splitter:  params.Splitter,
		allocator: params.Allocator,
		orders:    params.Orders,
		payments:  params.Payments,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		currency:  currency,
		now:       params.Now,
	}, nil
}

// Execute runs the whole checkout. Cart-wide conflicts abort before anything is
// written and release every slot lock taken. Once the orders are committed,
// discount bookkeeping and payment handle failures no longer fail the checkout.
func (s *service) Execute(ctx context.Context, customerID uuid.UUID, input CheckoutInput) (*Result, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.Points < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must not be negative")
	}
	client := input.ClientType
	if client == "" {
		client = enums.ClientTypeWeb
	}
	if !client.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid client type")
	}
	ctx = s.logg.WithUserID(ctx, customerID.String())

	lines, err := s.lines.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	split, err := s.splitter.Split(ctx, customerID, lines, input.Bookings)
	if err != nil {
		s.metrics.Checkout(outcomeFor(err))
		return nil, err
	}

	quote, err := s.allocator.Quote(ctx, discounts.QuoteInput{
		CustomerID: customerID,
		Code:       input.DiscountCode,
		Points:     input.Points,
		Sellers:    sellerSubtotals(split),
	})
	if err != nil {
		s.splitter.Release(ctx, split)
		s.metrics.Checkout(outcomeFor(err))
		return nil, err
	}

	checkoutID := uuid.New()
	created, err := s.createOrders(ctx, checkoutID, split, quote, client)
	if err != nil {
		s.splitter.Release(ctx, split)
		s.metrics.Checkout(outcomeFor(err))
		return nil, err
	}
	ctx = s.logg.WithField(ctx, "checkout_id", checkoutID.String())

	s.recordApplications(ctx, checkoutID, customerID, quote, created)

	result := buildResult(checkoutID, s.currency, quote, created)
	s.requestPayments(ctx, created, client, result)

	s.metrics.Checkout("created")
	s.logg.Info(s.logg.WithField(ctx, "orders", len(created)), "checkout created")
	return result, nil
}

// Get reloads a checkout's orders for its customer.
func (s *service) Get(ctx context.Context, customerID, checkoutID uuid.UUID) (*Result, error) {
	rows, err := s.orders.FindByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout orders")
	}
	if len(rows) == 0 || rows[0].CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	result := &Result{CheckoutID: checkoutID, Currency: rows[0].Currency, DiscountCode: rows[0].DiscountCode}
	for _, order := range rows {
		result.SubtotalCents += order.SubtotalCents
		result.DiscountCents += order.DiscountCents
		result.PointsRedeemed += order.PointsRedeemed
		result.PointsDiscountCents += order.PointsDiscountCents
		result.TotalCents += order.TotalCents
		result.Orders = append(result.Orders, orderResult(order))
	}
	return result, nil
}

func (s *service) createOrders(ctx context.Context, checkoutID uuid.UUID, split *cart.SplitResult, quote *discounts.Quote, client enums.ClientType) ([]models.Order, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	var code *string
	if quote.Code != nil {
		value := quote.Code.Code
		code = &value
	}

	created := make([]models.Order, 0, len(split.Groups))
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		for i, group := range split.Groups {
			alloc := quote.Allocations[i]
			order := models.Order{
				CheckoutID:          checkoutID,
				CustomerID:          split.CustomerID,
				SellerID:            group.SellerID,
				Status:              enums.OrderStatusAwaitingPayment,
				Currency:            s.currency,
				SubtotalCents:       alloc.SubtotalCents,
				DiscountCents:       alloc.DiscountCents,
				PointsRedeemed:      alloc.PointsRedeemed,
				PointsDiscountCents: alloc.PointsDiscountCents,
				TotalCents:          alloc.TotalCents,
				ClientType:          client,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if alloc.DiscountCents > 0 {
				order.DiscountCode = code
			}
			if len(group.Services) > 0 {
				date, minute := group.Services[0].Date, group.Services[0].Minute
				order.PickupDate = &date
				order.PickupMinute = &minute
			}
			if err := repo.Create(ctx, &order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
			}
			if err := repo.CreateLineItems(ctx, lineItems(order.ID, group.Products)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot line items")
			}
			if err := repo.CreateServiceItems(ctx, serviceItems(order.ID, group.Services)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot service items")
			}
			if err := s.emitOrderCreated(ctx, tx, &order, now); err != nil {
				return err
			}
			created = append(created, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.CustomerID, Role: string(enums.RoleCustomer)},
		OccurredAt:    now,
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			CheckoutID:    order.CheckoutID,
			CustomerID:    order.CustomerID,
			SellerID:      order.SellerID,
			SubtotalCents: order.SubtotalCents,
			DiscountCents: order.DiscountCents,
			PointsCents:   order.PointsDiscountCents,
			TotalCents:    order.TotalCents,
			Currency:      order.Currency,
		},
	})
}

func (s *service) recordApplications(ctx context.Context, checkoutID, customerID uuid.UUID, quote *discounts.Quote, created []models.Order) {
	if quote.Code == nil && quote.Points == 0 {
		return
	}
	apps := discounts.Applications{
		CheckoutID: checkoutID,
		CustomerID: customerID,
		Code:       quote.Code,
		Orders:     make([]discounts.OrderApplication, 0, len(created)),
	}
	for _, order := range created {
		apps.Orders = append(apps.Orders, discounts.OrderApplication{
			OrderID:             order.ID,
			DiscountCents:       order.DiscountCents,
			PointsRedeemed:      order.PointsRedeemed,
			PointsDiscountCents: order.PointsDiscountCents,
		})
	}
	if err := s.allocator.Record(ctx, apps); err != nil {
		s.logg.Error(ctx, "record discount and points applications", err)
	}
}

// requestPayments asks for every order's handle concurrently. Each goroutine owns
// one index of result.Orders.
func (s *service) requestPayments(ctx context.Context, created []models.Order, client enums.ClientType, result *Result) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentHandles)
	for i := range created {
		g.Go(func() error {
			handle, payErr := s.requestPayment(ctx, &created[i], client)
			result.Orders[i].Payment, result.Orders[i].PaymentError = handle, payErr
			if handle != nil && handle.Settled {
				result.Orders[i].Status = enums.OrderStatusProcessing
			}
			return nil
		})
	}
	_ = g.Wait()
}

// requestPayment makes sure the seller can receive funds and asks for a handle.
// Failures are reported on the order; the order stays payable via retry.
func (s *service) requestPayment(ctx context.Context, order *models.Order, client enums.ClientType) (*payments.Handle, *PaymentError) {
	orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if order.TotalCents > 0 {
		if _, err := s.payments.EnsureSellerAccount(orderCtx, order.SellerID); err != nil {
			s.logg.Error(orderCtx, "ensure seller processor account", err)
			return nil, paymentError(err)
		}
	}
	handle, err := s.payments.CreateHandle(orderCtx, order, client)
	if err != nil {
		s.logg.Error(orderCtx, "create payment handle", err)
		return nil, paymentError(err)
	}
	return handle, nil
}

func paymentError(err error) *PaymentError {
	if typed := pkgerrors.As(err); typed != nil {
		return &PaymentError{Code: typed.Code(), Message: typed.Message()}
	}
	return &PaymentError{Code: pkgerrors.CodeDependency, Message: "payment handle unavailable"}
}

func sellerSubtotals(split *cart.SplitResult) []discounts.SellerSubtotal {
	out := make([]discounts.SellerSubtotal, 0, len(split.Groups))
	for _, group := range split.Groups {
		out = append(out, discounts.SellerSubtotal{SellerID: group.SellerID, SubtotalCents: group.SubtotalCents})
	}
	return out
}

func lineItems(orderID uuid.UUID, products []cart.ProductLine) []models.OrderLineItem {
	items := make([]models.OrderLineItem, 0, len(products))
	for _, line := range products {
		cartLineID := line.CartLineID
		items = append(items, models.OrderLineItem{
			OrderID:        orderID,
			CartLineID:     &cartLineID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	return items
}

func serviceItems(orderID uuid.UUID, services []cart.ServiceLine) []models.OrderServiceItem {
	items := make([]models.OrderServiceItem, 0, len(services))
	for _, line := range services {
		cartLineID := line.CartLineID
		items = append(items, models.OrderServiceItem{
			OrderID:         orderID,
			CartLineID:      &cartLineID,
			ServiceID:       line.ServiceID,
			Name:            line.Name,
			Quantity:        line.Quantity,
			UnitPriceCents:  line.UnitPriceCents,
			BookingDate:     line.Date,
			BookingMinute:   line.Minute,
			DurationMinutes: line.DurationMinutes,
		})
	}
	return items
}

func buildResult(checkoutID uuid.UUID, currency string, quote *discounts.Quote, created []models.Order) *Result {
	result := &Result{
		CheckoutID:          checkoutID,
		Currency:            currency,
		DiscountCents:       quote.DiscountCents,
		PointsRedeemed:      quote.Points,
		PointsDiscountCents: quote.PointsDiscountCents,
		Orders:              make([]OrderResult, 0, len(created)),
	}
	if quote.Code != nil {
		code := quote.Code.Code
		result.DiscountCode = &code
	}
	for _, order := range created {
		result.SubtotalCents += order.SubtotalCents
		result.TotalCents += order.TotalCents
		result.Orders = append(result.Orders, orderResult(order))
	}
	return result
}

func orderResult(order models.Order) OrderResult {
	return OrderResult{
		OrderID:             order.ID,
		SellerID:            order.SellerID,
		Status:              order.Status,
		SubtotalCents:       order.SubtotalCents,
		DiscountCents:       order.DiscountCents,
		PointsRedeemed:      order.PointsRedeemed,
		PointsDiscountCents: order.PointsDiscountCents,
		TotalCents:          order.TotalCents,
	}
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		return "conflict"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return "rejected"
	default:
		return "error"
	}
}
