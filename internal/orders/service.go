package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/cart"
	"github.com/angelmondragon/marketcart-backend/internal/catalog"
	"github.com/angelmondragon/marketcart-backend/internal/notifications"
	"github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/metrics"
	"github.com/angelmondragon/marketcart-backend/pkg/money"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type slotBooker interface {
	ConvertLockToBooking(ctx context.Context, tx *gorm.DB, booking slots.Booking) error
	ReleaseBooking(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseHeldLock(ctx context.Context, tx *gorm.DB, key slots.Key, customerID uuid.UUID) error
	ExtendLock(ctx context.Context, key slots.Key, customerID uuid.UUID, durationMinutes int, until time.Time) (bool, error)
}

type pointsLedger interface {
	DebitReserved(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.PointsRedemptionStatus, error)
	ReleaseReserved(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	Award(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, points int64) error
	AwardFor(totalCents int64) int64
}

// Fulfillment sources recorded on events and metrics.
const (
	SourceRedirect = "redirect"
	SourceWebhook  = "webhook"
	SourceCron     = "cron"
	SourceManual   = "manual"
)

const (
	reasonAbandoned     = "abandoned"
	reasonPaymentFailed = "payment_failed"
	abandonBatchSize    = 200
	reconcileBatchSize  = 100
)

// Service defines the order lifecycle: reads, guarded transitions, pickup scans,
// cancellation and the unpaid-order sweep.
type Service interface {
	Get(ctx context.Context, viewer Viewer, orderID uuid.UUID) (*OrderDetail, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, filters ListFilters) (*OrderList, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, filters ListFilters) (*OrderList, error)
	Fulfill(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, source string) (bool, error)
	PromoteToProcessing(ctx context.Context, orderID uuid.UUID, source string) (bool, error)
	PaymentFailed(ctx context.Context, orderID uuid.UUID, source string) error
	HoldSlots(ctx context.Context, orderID uuid.UUID, until time.Time) error
	MarkReady(ctx context.Context, viewer Viewer, orderID uuid.UUID) error
	PickupCode(ctx context.Context, viewer Viewer, orderID uuid.UUID) (string, error)
	ScanPickup(ctx context.Context, viewer Viewer, payload string) (*OrderDetail, error)
	Cancel(ctx context.Context, viewer Viewer, orderID uuid.UUID, reason string) error
	AbandonExpired(ctx context.Context) (int, error)
	StaleReferenced(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Outbox       outboxPublisher
	Slots        slotBooker
	Points       pointsLedger
	Cart         *cart.Repository
	Catalog      *catalog.Repository
	Notifier     notifications.Sender
	QR           *QRSigner
	Logger       *logger.Logger
	Metrics      *metrics.CheckoutMetrics
	DefaultRate  decimal.Decimal
	AbandonAfter time.Duration
	PickupMaxAge time.Duration
	Now          func() time.Time
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outboxPublisher
	slots        slotBooker
	points       pointsLedger
	cart         *cart.Repository
	catalog      *catalog.Repository
	notifier     notifications.Sender
	qr           *QRSigner
	logg         *logger.Logger
	metrics      *metrics.CheckoutMetrics
	defaultRate  decimal.Decimal
	abandonAfter time.Duration
	pickupMaxAge time.Duration
	now          func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Slots == nil:
		return nil, fmt.Errorf("slot ledger required")
	case params.Points == nil:
		return nil, fmt.Errorf("points ledger required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.QR == nil:
		return nil, fmt.Errorf("qr signer required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.AbandonAfter <= 0 {
		params.AbandonAfter = 15 * time.Minute
	}
	if params.PickupMaxAge <= 0 {
		params.PickupMaxAge = 30 * 24 * time.Hour
	}
	return &service{
		repo:         params.Repo,
		tx:           params.Tx,
		outbox:       params.Outbox,
		slots:        params.Slots,
		points:       params.Points,
		cart:         params.Cart,
		catalog:      params.Catalog,
		notifier:     params.Notifier,
		qr:           params.QR,
		logg:         params.Logger,
		metrics:      params.Metrics,
		defaultRate:  params.DefaultRate,
		abandonAfter: params.AbandonAfter,
		pickupMaxAge: params.PickupMaxAge,
		now:          params.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, viewer Viewer, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.loadDetail(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(viewer, order); err != nil {
		return nil, err
	}
	return toDetail(*order), nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, filters ListFilters) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	return s.list(ctx, listParams{CustomerID: &customerID}, filters)
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, filters ListFilters) (*OrderList, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller context missing")
	}
	return s.list(ctx, listParams{SellerID: &sellerID}, filters)
}

func (s *service) list(ctx context.Context, params listParams, filters ListFilters) (*OrderList, error) {
	for _, status := range filters.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter").
				WithDetails(map[string]any{"status": status})
		}
	}
	params.Statuses = filters.Statuses
	params.Limit = filters.Limit
	if filters.Cursor != "" {
		cursor, err := pagination.Parse(filters.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows))}
	for _, row := range rows {
		out.Orders = append(out.Orders, toSummary(row))
	}
	if next != nil {
		out.NextCursor = next.String()
	}
	return out, nil
}

// MarkReady lets the owning seller announce a paid order is ready for pickup.
func (s *service) MarkReady(ctx context.Context, viewer Viewer, orderID uuid.UUID) error {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return err
	}
	if err := authorizeSeller(viewer, order); err != nil {
		return err
	}
	if order.Status == enums.OrderStatusReady {
		return nil
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, orderID, enums.OrderStatusesInto(enums.OrderStatusReady), enums.OrderStatusReady,
			map[string]any{"ready_at": now}, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order ready")
		}
		if !ok {
			return stateConflict("order cannot be marked ready", order.Status)
		}
		if err := s.freezeCommission(ctx, tx, order, now); err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, order, enums.EventOrderReady, order.Status, enums.OrderStatusReady, SourceManual, "", actorFor(viewer), now)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, order.CustomerID, enums.RoleCustomer, enums.NotificationTypeOrderReady,
		"Order ready", "Your order is ready for pickup.", order.ID)
	return nil
}

// StaleReferenced lists unpaid orders carrying a processor handle older than olderThan.
func (s *service) StaleReferenced(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	ids, err := s.repo.FindStaleReferenced(ctx, s.now().UTC().Add(-olderThan), reconcileBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale referenced orders")
	}
	return ids, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadDetail(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindDetail(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// freezeCommission computes the seller split once; later calls are no-ops.
func (s *service) freezeCommission(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	if _, frozen := order.Commission().(models.Frozen); frozen {
		return nil
	}
	seller, err := s.catalog.WithTx(tx).GetSellerInfo(ctx, order.SellerID)
	if err != nil {
		return err
	}
	rate := s.defaultRate
	if seller.CommissionOverride.Valid {
		rate = seller.CommissionOverride.Decimal
	}
	sellerCents, commissionCents := money.SplitCommission(order.TotalCents, rate)
	if _, err := s.repo.WithTx(tx).FreezeCommission(ctx, order.ID, rate, sellerCents, commissionCents, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze commission")
	}
	return nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, order *models.Order, event enums.OutboxEventType, from, to enums.OrderStatus, source, reason string, actor *outbox.ActorRef, now time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data:          statusChanged(order, from, to, source, reason, now),
	})
}

func (s *service) notify(ctx context.Context, userID uuid.UUID, role enums.Role, kind enums.NotificationType, title, body string, orderID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notifications.Notification{
		UserID: userID,
		Role:   role,
		Type:   kind,
		Title:  title,
		Body:   body,
		Data:   map[string]any{"order_id": orderID.String()},
	})
}

// notifySeller resolves the seller's user account and notifies it.
func (s *service) notifySeller(ctx context.Context, sellerID uuid.UUID, kind enums.NotificationType, title, body string, orderID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	seller, err := s.catalog.GetSellerInfo(ctx, sellerID)
	if err != nil {
		s.logg.Warn(s.logg.WithSellerID(ctx, sellerID.String()), "skip seller notification: seller lookup failed")
		return
	}
	s.notify(ctx, seller.UserID, enums.RoleSeller, kind, title, body, orderID)
}

func authorizeView(viewer Viewer, order *models.Order) error {
	switch viewer.Role {
	case enums.RoleAdmin:
		return nil
	case enums.RoleSeller:
		return authorizeSeller(viewer, order)
	default:
		if viewer.UserID == uuid.Nil || order.CustomerID != viewer.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil
	}
}

func authorizeSeller(viewer Viewer, order *models.Order) error {
	if viewer.Role == enums.RoleAdmin {
		return nil
	}
	if viewer.Role != enums.RoleSeller || viewer.SellerID == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "seller context missing")
	}
	if *viewer.SellerID != order.SellerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
	}
	return nil
}

func actorFor(viewer Viewer) *outbox.ActorRef {
	if viewer.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: viewer.UserID, SellerID: viewer.SellerID, Role: string(viewer.Role)}
}

func stateConflict(message string, current enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"status": current})
}
