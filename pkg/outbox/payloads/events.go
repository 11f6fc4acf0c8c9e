package payloads

import (
	"time"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted for every per-seller order produced by a checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	CheckoutID    uuid.UUID `json:"checkout_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	SubtotalCents int64     `json:"subtotal_cents"`
	DiscountCents int64     `json:"discount_cents"`
	PointsCents   int64     `json:"points_discount_cents"`
	TotalCents    int64     `json:"total_cents"`
	Currency      string    `json:"currency"`
}

// OrderStatusChangedEvent reports a guarded status transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	SellerID   uuid.UUID         `json:"seller_id"`
	From       enums.OrderStatus `json:"from,omitempty"`
	To         enums.OrderStatus `json:"to"`
	Source     string            `json:"source,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	At         time.Time         `json:"at"`
}

// PayoutEvent reports payout lifecycle changes.
type PayoutEvent struct {
	PayoutID        uuid.UUID          `json:"payout_id"`
	SellerID        uuid.UUID          `json:"seller_id"`
	AmountCents     int64              `json:"amount_cents"`
	Currency        string             `json:"currency"`
	BaseAmountCents int64              `json:"base_amount_cents"`
	Status          enums.PayoutStatus `json:"status"`
	FailureReason   string             `json:"failure_reason,omitempty"`
}

// SellerOnboardedEvent reports that the processor enabled payouts for a seller.
type SellerOnboardedEvent struct {
	SellerID           uuid.UUID `json:"seller_id"`
	ProcessorAccountID string    `json:"processor_account_id"`
	PayoutsEnabled     bool      `json:"payouts_enabled"`
}
