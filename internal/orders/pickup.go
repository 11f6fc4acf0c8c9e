package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
)

// PickupCode returns the QR payload for a paid order owned by the customer.
func (s *service) PickupCode(ctx context.Context, viewer Viewer, orderID uuid.UUID) (string, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return "", err
	}
	if err := authorizeView(viewer, order); err != nil {
		return "", err
	}
	switch order.Status {
	case enums.OrderStatusProcessing, enums.OrderStatusReady:
		return s.qr.Payload(order.ID, order.CreatedAt), nil
	default:
		return "", stateConflict("pickup code is only available for paid orders", order.Status)
	}
}

// ScanPickup redeems a pickup code at the seller's counter. Checks run in a fixed
// order so the first failing rule is the one reported.
func (s *service) ScanPickup(ctx context.Context, viewer Viewer, payload string) (*OrderDetail, error) {
	orderID, token, err := s.qr.Parse(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pickup code")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pickup code")
		}
		return nil, err
	}
	if !s.qr.Verify(order.ID, order.CreatedAt, token) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pickup code")
	}
	if err := authorizeSeller(viewer, order); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	switch {
	case order.PickupScannedAt != nil:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "pickup code already scanned").
			WithDetails(map[string]any{"scanned_at": order.PickupScannedAt})
	case order.Status == enums.OrderStatusComplete:
		return nil, stateConflict("order already complete", order.Status)
	case order.Status == enums.OrderStatusCancelled:
		return nil, stateConflict("order was cancelled", order.Status)
	case now.Sub(order.CreatedAt) > s.pickupMaxAge:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup code expired").
			WithDetails(map[string]any{"created_at": order.CreatedAt})
	case order.Status == enums.OrderStatusAwaitingPayment || order.Status == enums.OrderStatusPending:
		return nil, stateConflict("order not yet paid", order.Status)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.MarkScanned(ctx, order.ID, viewer.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark pickup scanned")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "pickup code already scanned")
		}
		if err := s.freezeCommission(ctx, tx, order, now); err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, order, enums.EventOrderPickedUp, order.Status, enums.OrderStatusComplete, SourceManual, "", actorFor(viewer), now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order.CustomerID, enums.RoleCustomer, enums.NotificationTypeOrderPickedUp,
		"Order picked up", "Thanks for picking up your order.", order.ID)
	return s.Get(ctx, Viewer{Role: enums.RoleAdmin}, order.ID)
}
