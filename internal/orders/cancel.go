package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

const maxCancelReasonLen = 500

// Cancel applies the role rules: customers may only drop an unpaid order that has
// no payment handle; sellers may cancel their own pre-complete orders; admins any.
func (s *service) Cancel(ctx context.Context, viewer Viewer, orderID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxCancelReasonLen {
		return pkgerrors.New(pkgerrors.CodeValidation, "cancel reason too long")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return err
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil
	}

	var applied bool
	switch viewer.Role {
	case enums.RoleCustomer:
		if order.CustomerID != viewer.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusAwaitingPayment || order.HasPaymentReference() {
			return stateConflict("order can no longer be cancelled by the customer", order.Status)
		}
		if reason == "" {
			reason = "cancelled_by_customer"
		}
		applied, err = s.cancelUnpaid(ctx, order, reason, SourceManual, enums.EventOrderCancelled, actorFor(viewer))
	case enums.RoleSeller, enums.RoleAdmin:
		if err := authorizeSeller(viewer, order); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return stateConflict("order cannot be cancelled", order.Status)
		}
		if reason == "" {
			reason = "cancelled_by_" + string(viewer.Role)
		}
		applied, err = s.cancel(ctx, order, []enums.OrderStatus{order.Status}, reason, SourceManual, actorFor(viewer))
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot cancel orders")
	}
	if err != nil {
		return err
	}
	if !applied {
		current, err := s.load(ctx, s.repo, orderID)
		if err != nil {
			return err
		}
		if current.Status == enums.OrderStatusCancelled {
			return nil
		}
		return stateConflict("order changed while cancelling", current.Status)
	}

	s.notify(ctx, order.CustomerID, enums.RoleCustomer, enums.NotificationTypeOrderCancelled,
		"Order cancelled", "Your order was cancelled.", order.ID)
	s.notifySeller(ctx, order.SellerID, enums.NotificationTypeOrderCancelled,
		"Order cancelled", "An order was cancelled.", order.ID)
	return nil
}

// AbandonExpired cancels unpaid orders without a payment handle once they are
// older than the abandonment window, then frees everything they held. Each order
// is handled in its own transaction; failures are collected and the sweep goes on.
func (s *service) AbandonExpired(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.abandonAfter)
	ids, err := s.repo.FindAbandonable(ctx, cutoff, abandonBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find abandonable orders")
	}

	var errs error
	abandoned := 0
	for _, id := range ids {
		order, err := s.loadDetail(ctx, s.repo, id)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		ok, err := s.cancelUnpaid(ctx, order, reasonAbandoned, SourceCron, enums.EventOrderAbandoned, nil)
		if err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, id.String()), "abandon order", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			abandoned++
			s.notify(ctx, order.CustomerID, enums.RoleCustomer, enums.NotificationTypeOrderCancelled,
				"Checkout expired", "Your unpaid order expired and was released.", order.ID)
		}
	}
	return abandoned, errs
}

// cancelUnpaid handles an order that never reached payment: its slot locks and
// point reservation are released. Abandoned orders also lose their snapshots.
func (s *service) cancelUnpaid(ctx context.Context, order *models.Order, reason, source string, event enums.OutboxEventType, actor *outbox.ActorRef) (bool, error) {
	now := s.now().UTC()
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.CancelUnpaid(ctx, order.ID, reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel unpaid order")
		}
		if !ok {
			return nil
		}
		applied = true

		detail, err := s.loadDetail(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		if err := s.releaseHolds(ctx, tx, detail); err != nil {
			return err
		}
		if event == enums.EventOrderAbandoned {
			if err := repo.DeleteItems(ctx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete abandoned order items")
			}
		}
		return s.emitStatus(ctx, tx, order, event, enums.OrderStatusAwaitingPayment, enums.OrderStatusCancelled, source, reason, actor, now)
	})
	return applied, err
}

// cancel moves an order out of one of from. Line items whose stock was taken at
// fulfillment get it back.
func (s *service) cancel(ctx context.Context, order *models.Order, from []enums.OrderStatus, reason, source string, actor *outbox.ActorRef) (bool, error) {
	now := s.now().UTC()
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, order.ID, from, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at":  now,
			"cancel_reason": reason,
		}, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return nil
		}
		applied = true

		detail, err := s.loadDetail(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		if err := s.releaseHolds(ctx, tx, detail); err != nil {
			return err
		}
		for _, item := range detail.Items {
			// items that hit a shortfall at fulfillment never left the shelf
			if !item.StockDecremented {
				continue
			}
			if err := repo.RestoreStock(ctx, item.ProductID, item.Quantity, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
			}
			if err := repo.SetStockDecremented(ctx, item.ID, false); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear stock flag")
			}
		}
		return s.emitStatus(ctx, tx, order, enums.EventOrderCancelled, order.Status, enums.OrderStatusCancelled, source, reason, actor, now)
	})
	return applied, err
}

// releaseHolds frees slot locks, booking blocks and reserved points of order.
func (s *service) releaseHolds(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	for _, item := range order.ServiceItems {
		key := slots.Key{SellerID: order.SellerID, Date: item.BookingDate, Minute: item.BookingMinute}
		if err := s.slots.ReleaseHeldLock(ctx, tx, key, order.CustomerID); err != nil {
			return err
		}
	}
	if err := s.slots.ReleaseBooking(ctx, tx, order.ID); err != nil {
		return err
	}
	return s.points.ReleaseReserved(ctx, tx, order.ID)
}

