package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// Order is the per-seller aggregate produced by one checkout.
type Order struct {
	ID                   uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutID           uuid.UUID                   `gorm:"column:checkout_id;type:uuid;not null"`
	CustomerID           uuid.UUID                   `gorm:"column:customer_id;type:uuid;not null"`
	SellerID             uuid.UUID                   `gorm:"column:seller_id;type:uuid;not null"`
	Status               enums.OrderStatus           `gorm:"column:status;type:text;not null;default:'awaiting_payment'"`
	Currency             string                      `gorm:"column:currency;not null;default:'usd'"`
	SubtotalCents        int64                       `gorm:"column:subtotal_cents;not null"`
	DiscountCode         *string                     `gorm:"column:discount_code"`
	DiscountCents        int64                       `gorm:"column:discount_cents;not null;default:0"`
	PointsRedeemed       int64                       `gorm:"column:points_redeemed;not null;default:0"`
	PointsDiscountCents  int64                       `gorm:"column:points_discount_cents;not null;default:0"`
	TotalCents           int64                       `gorm:"column:total_cents;not null"`
	PickupDate           *string                     `gorm:"column:pickup_date"`
	PickupMinute         *int                        `gorm:"column:pickup_minute"`
	ClientType           enums.ClientType            `gorm:"column:client_type;type:text;not null;default:'web'"`
	PaymentReference     *string                     `gorm:"column:payment_reference"`
	PaymentReferenceKind *enums.PaymentReferenceKind `gorm:"column:payment_reference_kind;type:text"`
	PaidAt               *time.Time                  `gorm:"column:paid_at"`
	ReadyAt              *time.Time                  `gorm:"column:ready_at"`
	PickedUpAt           *time.Time                  `gorm:"column:picked_up_at"`
	PickupScannedAt      *time.Time                  `gorm:"column:pickup_scanned_at"`
	PickupScannedBy      *uuid.UUID                  `gorm:"column:pickup_scanned_by;type:uuid"`
	CancelledAt          *time.Time                  `gorm:"column:cancelled_at"`
	CancelReason         *string                     `gorm:"column:cancel_reason"`
	CommissionRate       decimal.NullDecimal         `gorm:"column:commission_rate;type:numeric(5,4)"`
	SellerAmountCents    *int64                      `gorm:"column:seller_amount_cents"`
	CommissionCents      *int64                      `gorm:"column:commission_cents"`
	CommissionFrozenAt   *time.Time                  `gorm:"column:commission_frozen_at"`
	Items                []OrderLineItem             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ServiceItems         []OrderServiceItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time                   `gorm:"column:created_at"`
	UpdatedAt            time.Time                   `gorm:"column:updated_at"`
}

// Commission is the frozen-or-not commission split of an order.
type Commission interface {
	isCommission()
}

// Unfrozen means the split has not been computed yet.
type Unfrozen struct{}

// Frozen carries the split computed when the order first reached a revenue status.
type Frozen struct {
	Rate              decimal.Decimal
	SellerAmountCents int64
	CommissionCents   int64
	FrozenAt          time.Time
}

func (Unfrozen) isCommission() {}
func (Frozen) isCommission()   {}

// Commission reads the nullable commission columns as a tagged variant.
func (o Order) Commission() Commission {
	if o.CommissionFrozenAt == nil || o.SellerAmountCents == nil || o.CommissionCents == nil {
		return Unfrozen{}
	}
	return Frozen{
		Rate:              o.CommissionRate.Decimal,
		SellerAmountCents: *o.SellerAmountCents,
		CommissionCents:   *o.CommissionCents,
		FrozenAt:          *o.CommissionFrozenAt,
	}
}

// HasPaymentReference reports whether a processor handle is attached.
func (o Order) HasPaymentReference() bool {
	return o.PaymentReference != nil && *o.PaymentReference != ""
}

// OrderLineItem snapshots a purchased product at order creation.
type OrderLineItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	CartLineID     *uuid.UUID `gorm:"column:cart_line_id;type:uuid"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	Name           string     `gorm:"column:name;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	UnitPriceCents int64      `gorm:"column:unit_price_cents;not null"`

	// StockDecremented is set when fulfillment took the quantity off the shelf.
	StockDecremented bool      `gorm:"column:stock_decremented;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// OrderServiceItem snapshots a booked service, including its slot.
type OrderServiceItem struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	CartLineID      *uuid.UUID `gorm:"column:cart_line_id;type:uuid"`
	ServiceID       uuid.UUID  `gorm:"column:service_id;type:uuid;not null"`
	Name            string     `gorm:"column:name;not null"`
	Quantity        int        `gorm:"column:quantity;not null"`
	UnitPriceCents  int64      `gorm:"column:unit_price_cents;not null"`
	BookingDate     string     `gorm:"column:booking_date;not null"`
	BookingMinute   int        `gorm:"column:booking_minute;not null"`
	DurationMinutes int        `gorm:"column:duration_minutes;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}
