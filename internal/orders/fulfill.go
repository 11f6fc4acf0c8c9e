package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox/payloads"
)

// Fulfill moves an unpaid order to target (pending or processing) and applies the
// payment side effects in the same transaction. The status CAS out of
// awaiting_payment is the only guard: a second caller sees zero rows and returns
// (false, nil) without touching anything.
func (s *service) Fulfill(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, source string) (bool, error) {
	if target != enums.OrderStatusPending && target != enums.OrderStatusProcessing {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "fulfillment target must be pending or processing")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "source": source, "target": string(target)})

	var order *models.Order
	now := s.now().UTC()
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		extra := map[string]any{}
		if target == enums.OrderStatusProcessing {
			extra["paid_at"] = now
		}
		ok, err := repo.Transition(ctx, orderID, []enums.OrderStatus{enums.OrderStatusAwaitingPayment}, target, extra, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition order")
		}
		if !ok {
			return nil
		}
		applied = true

		order, err = s.loadDetail(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := s.applyPaymentEffects(ctx, tx, order, now); err != nil {
			return err
		}
		if target == enums.OrderStatusProcessing {
			if err := s.settlePoints(ctx, tx, order); err != nil {
				return err
			}
			if err := s.freezeCommission(ctx, tx, order, now); err != nil {
				return err
			}
		}

		event := enums.EventOrderPaid
		if target == enums.OrderStatusPending {
			event = enums.EventOrderPaymentPending
		}
		return s.emitStatus(ctx, tx, order, event, enums.OrderStatusAwaitingPayment, target, source, "", nil, now)
	})
	if err != nil {
		s.metrics.Fulfillment(source, "error")
		return false, err
	}
	if !applied {
		s.metrics.Fulfillment(source, "noop")
		s.logg.Debug(ctx, "order already advanced; fulfillment skipped")
		return false, nil
	}

	s.metrics.Fulfillment(source, "applied")
	s.logg.Info(ctx, "order fulfilled")
	if target == enums.OrderStatusProcessing {
		s.notifyPaid(ctx, order)
	}
	return true, nil
}

// PromoteToProcessing confirms an asynchronously paid order. Stock, cart and slot
// effects already happened when it entered pending.
func (s *service) PromoteToProcessing(ctx context.Context, orderID uuid.UUID, source string) (bool, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "source": source})

	var order *models.Order
	now := s.now().UTC()
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, orderID, []enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusProcessing,
			map[string]any{"paid_at": now}, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote order")
		}
		if !ok {
			return nil
		}
		applied = true
		order, err = s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := s.settlePoints(ctx, tx, order); err != nil {
			return err
		}
		if err := s.freezeCommission(ctx, tx, order, now); err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, order, enums.EventOrderPaid, enums.OrderStatusPending, enums.OrderStatusProcessing, source, "", nil, now)
	})
	if err != nil {
		s.metrics.Fulfillment(source, "error")
		return false, err
	}
	if !applied {
		s.metrics.Fulfillment(source, "noop")
		return false, nil
	}
	s.metrics.Fulfillment(source, "promoted")
	s.notifyPaid(ctx, order)
	return true, nil
}

// PaymentFailed reacts to a declined or failed payment. An order still awaiting
// payment keeps its slot so the customer can retry; a pending order is cancelled.
func (s *service) PaymentFailed(ctx context.Context, orderID uuid.UUID, source string) error {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case enums.OrderStatusAwaitingPayment:
		s.notify(ctx, order.CustomerID, enums.RoleCustomer, enums.NotificationTypePaymentFailed,
			"Payment failed", "Your payment did not go through. You can retry from your order.", order.ID)
		return nil
	case enums.OrderStatusPending:
		_, err := s.cancel(ctx, order, []enums.OrderStatus{enums.OrderStatusPending}, reasonPaymentFailed, source, nil)
		if err != nil {
			return err
		}
		s.notify(ctx, order.CustomerID, enums.RoleCustomer, enums.NotificationTypePaymentFailed,
			"Payment failed", "Your payment failed and the order was cancelled.", order.ID)
		return nil
	default:
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "status": string(order.Status)}),
			"payment failure ignored for advanced order")
		return nil
	}
}

// HoldSlots keeps the locks behind an unpaid order's service items alive until
// the payment handle expires, so the slot cannot be resold while the customer is
// still able to pay. It fails with a state conflict when another customer took a
// slot in the meantime.
func (s *service) HoldSlots(ctx context.Context, orderID uuid.UUID, until time.Time) error {
	order, err := s.loadDetail(ctx, s.repo, orderID)
	if err != nil {
		return err
	}
	if order.Status != enums.OrderStatusAwaitingPayment {
		return nil
	}
	for _, item := range order.ServiceItems {
		key := slots.Key{SellerID: order.SellerID, Date: item.BookingDate, Minute: item.BookingMinute}
		held, err := s.slots.ExtendLock(ctx, key, order.CustomerID, item.DurationMinutes, until)
		if err != nil {
			return err
		}
		if !held {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booked slot is no longer available").
				WithDetails(map[string]any{"slot_date": item.BookingDate, "service_id": item.ServiceID.String()})
		}
	}
	return nil
}

// applyPaymentEffects runs the side effects shared by pending and processing entry.
func (s *service) applyPaymentEffects(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	repo := s.repo.WithTx(tx)
	var cartLines []uuid.UUID

	for _, item := range order.Items {
		ok, err := repo.DecrementStock(ctx, item.ProductID, item.Quantity, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if ok {
			if err := repo.SetStockDecremented(ctx, item.ID, true); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark stock decremented")
			}
		} else {
			// payment already captured; the shortfall is surfaced to operators
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"product_id": item.ProductID.String(),
				"quantity":   item.Quantity,
			}), "stock below paid quantity")
		}
		if item.CartLineID != nil {
			cartLines = append(cartLines, *item.CartLineID)
		}
	}

	for _, item := range order.ServiceItems {
		booking := slots.Booking{
			OrderID:         order.ID,
			CustomerID:      order.CustomerID,
			Key:             slots.Key{SellerID: order.SellerID, Date: item.BookingDate, Minute: item.BookingMinute},
			DurationMinutes: item.DurationMinutes,
		}
		if err := s.slots.ConvertLockToBooking(ctx, tx, booking); err != nil {
			return err
		}
		if item.CartLineID != nil {
			cartLines = append(cartLines, *item.CartLineID)
		}
	}

	if _, err := s.cart.WithTx(tx).DeleteByIDs(ctx, order.CustomerID, cartLines); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete converted cart lines")
	}
	return nil
}

// settlePoints debits the reserved redemption and awards points on the paid total.
func (s *service) settlePoints(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if _, err := s.points.DebitReserved(ctx, tx, order.ID); err != nil {
		return err
	}
	return s.points.Award(ctx, tx, order.CustomerID, s.points.AwardFor(order.TotalCents))
}

func (s *service) notifyPaid(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	s.notify(ctx, order.CustomerID, enums.RoleCustomer, enums.NotificationTypeOrderPaid,
		"Payment received", "Your order is confirmed.", order.ID)
	s.notifySeller(ctx, order.SellerID, enums.NotificationTypeOrderPlaced,
		"New order", "A customer paid for a new order.", order.ID)
}

func statusChanged(order *models.Order, from, to enums.OrderStatus, source, reason string, now time.Time) payloads.OrderStatusChangedEvent {
	return payloads.OrderStatusChangedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		SellerID:   order.SellerID,
		From:       from,
		To:         to,
		Source:     source,
		Reason:     reason,
		At:         now,
	}
}
