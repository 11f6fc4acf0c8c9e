package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items", "ServiceItems").Create(order).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreateServiceItems(ctx context.Context, items []models.OrderServiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("ServiceItems", func(db *gorm.DB) *gorm.DB { return db.Order("booking_date ASC, booking_minute ASC") }).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("checkout_id = ?", checkoutID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if params.CustomerID != nil {
		query = query.Where("customer_id = ?", *params.CustomerID)
	}
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}
	if len(params.Statuses) > 0 {
		query = query.Where("status IN ?", params.Statuses)
	}

	var orders []models.Order
	if err := pagination.Apply(query, params.Cursor, params.Limit).Find(&orders).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(orders, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}

// Transition moves the order to `to` only while its status is one of from.
func (r *repository) Transition(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, extra map[string]any, now time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": now}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// CancelUnpaid cancels an order that is unpaid and has no processor handle.
func (r *repository) CancelUnpaid(ctx context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_reference IS NULL", orderID, enums.OrderStatusAwaitingPayment).
		Updates(map[string]any{
			"status":        enums.OrderStatusCancelled,
			"cancelled_at":  now,
			"cancel_reason": reason,
			"updated_at":    now,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkScanned completes a paid order and stamps the single-use scan marker.
func (r *repository) MarkScanned(ctx context.Context, orderID, scannedBy uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND pickup_scanned_at IS NULL AND status IN ?", orderID, enums.OrderStatusesInto(enums.OrderStatusComplete)).
		Updates(map[string]any{
			"status":            enums.OrderStatusComplete,
			"pickup_scanned_at": now,
			"pickup_scanned_by": scannedBy,
			"picked_up_at":      now,
			"updated_at":        now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) FreezeCommission(ctx context.Context, orderID uuid.UUID, rate decimal.Decimal, sellerCents, commissionCents int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND commission_frozen_at IS NULL", orderID).
		Updates(map[string]any{
			"commission_rate":      decimal.NullDecimal{Decimal: rate, Valid: true},
			"seller_amount_cents":  sellerCents,
			"commission_cents":     commissionCents,
			"commission_frozen_at": now,
			"updated_at":           now,
		})
	return result.RowsAffected > 0, result.Error
}

// SetPaymentReference attaches a processor handle while the order is unpaid and
// its current reference still equals expected (nil meaning none).
func (r *repository) SetPaymentReference(ctx context.Context, orderID uuid.UUID, expected *string, reference string, kind enums.PaymentReferenceKind, client enums.ClientType, now time.Time) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusAwaitingPayment)
	if expected == nil {
		query = query.Where("payment_reference IS NULL")
	} else {
		query = query.Where("payment_reference = ?", *expected)
	}
	result := query.Updates(map[string]any{
		"payment_reference":      reference,
		"payment_reference_kind": kind,
		"client_type":            client,
		"updated_at":             now,
	})
	return result.RowsAffected > 0, result.Error
}

// ClearPaymentReference drops an expired handle so the abandonment sweep can reclaim the order.
func (r *repository) ClearPaymentReference(ctx context.Context, orderID uuid.UUID, reference string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_reference = ?", orderID, enums.OrderStatusAwaitingPayment, reference).
		Updates(map[string]any{
			"payment_reference":      nil,
			"payment_reference_kind": nil,
			"updated_at":             now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) FindAbandonable(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND payment_reference IS NULL AND created_at < ?", enums.OrderStatusAwaitingPayment, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) FindStaleReferenced(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status IN ? AND payment_reference IS NOT NULL AND created_at < ?",
			[]enums.OrderStatus{enums.OrderStatusAwaitingPayment, enums.OrderStatusPending}, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) DeleteItems(ctx context.Context, orderID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderLineItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderServiceItem{}).Error
}

// DecrementStock reports false when the product no longer has qty on hand.
func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) RestoreStock(ctx context.Context, productID uuid.UUID, qty int, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": now,
		}).Error
}

// SetStockDecremented records whether the line item's quantity is currently off the shelf.
func (r *repository) SetStockDecremented(ctx context.Context, itemID uuid.UUID, decremented bool) error {
	return r.db.WithContext(ctx).Model(&models.OrderLineItem{}).
		Where("id = ?", itemID).
		Update("stock_decremented", decremented).Error
}
