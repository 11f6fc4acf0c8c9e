package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

// Viewer identifies who is reading or acting on an order.
type Viewer struct {
	UserID   uuid.UUID
	Role     enums.Role
	SellerID *uuid.UUID
}

// ListFilters narrow the order lists.
type ListFilters struct {
	Statuses []enums.OrderStatus
	Limit    int
	Cursor   string
}

// CommissionView renders the frozen commission, absent while unfrozen.
type CommissionView struct {
	Rate              string    `json:"rate"`
	SellerAmountCents int64     `json:"seller_amount_cents"`
	CommissionCents   int64     `json:"commission_cents"`
	FrozenAt          time.Time `json:"frozen_at"`
}

// OrderSummary is the list projection of an order.
type OrderSummary struct {
	ID                  uuid.UUID         `json:"id"`
	CheckoutID          uuid.UUID         `json:"checkout_id"`
	CustomerID          uuid.UUID         `json:"customer_id"`
	SellerID            uuid.UUID         `json:"seller_id"`
	Status              enums.OrderStatus `json:"status"`
	Currency            string            `json:"currency"`
	SubtotalCents       int64             `json:"subtotal_cents"`
	DiscountCents       int64             `json:"discount_cents"`
	PointsRedeemed      int64             `json:"points_redeemed"`
	PointsDiscountCents int64             `json:"points_discount_cents"`
	TotalCents          int64             `json:"total_cents"`
	PickupDate          *string           `json:"pickup_date,omitempty"`
	PickupTime          *types.ClockTime  `json:"pickup_time,omitempty"`
	HasPaymentHandle    bool              `json:"has_payment_handle"`
	PaidAt              *time.Time        `json:"paid_at,omitempty"`
	ReadyAt             *time.Time        `json:"ready_at,omitempty"`
	PickedUpAt          *time.Time        `json:"picked_up_at,omitempty"`
	CancelledAt         *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// LineItemView is a product snapshot.
type LineItemView struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

// ServiceItemView is a booked service snapshot.
type ServiceItemView struct {
	ServiceID       uuid.UUID       `json:"service_id"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPriceCents  int64           `json:"unit_price_cents"`
	BookingDate     string          `json:"booking_date"`
	BookingTime     types.ClockTime `json:"booking_time"`
	DurationMinutes int             `json:"duration_minutes"`
}

// OrderDetail adds snapshots and commission to the summary.
type OrderDetail struct {
	OrderSummary
	Items        []LineItemView    `json:"items"`
	ServiceItems []ServiceItemView `json:"service_items"`
	Commission   *CommissionView   `json:"commission,omitempty"`
	ScannedAt    *time.Time        `json:"pickup_scanned_at,omitempty"`
	CancelReason *string           `json:"cancel_reason,omitempty"`
}

// OrderList wraps a page of orders plus the next cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toSummary(order models.Order) OrderSummary {
	summary := OrderSummary{
		ID:                  order.ID,
		CheckoutID:          order.CheckoutID,
		CustomerID:          order.CustomerID,
		SellerID:            order.SellerID,
		Status:              order.Status,
		Currency:            order.Currency,
		SubtotalCents:       order.SubtotalCents,
		DiscountCents:       order.DiscountCents,
		PointsRedeemed:      order.PointsRedeemed,
		PointsDiscountCents: order.PointsDiscountCents,
		TotalCents:          order.TotalCents,
		PickupDate:          order.PickupDate,
		HasPaymentHandle:    order.HasPaymentReference(),
		PaidAt:              order.PaidAt,
		ReadyAt:             order.ReadyAt,
		PickedUpAt:          order.PickedUpAt,
		CancelledAt:         order.CancelledAt,
		CreatedAt:           order.CreatedAt,
	}
	if order.PickupMinute != nil {
		at := types.ClockTime(*order.PickupMinute)
		summary.PickupTime = &at
	}
	return summary
}

func toDetail(order models.Order) *OrderDetail {
	detail := &OrderDetail{
		OrderSummary: toSummary(order),
		Items:        make([]LineItemView, 0, len(order.Items)),
		ServiceItems: make([]ServiceItemView, 0, len(order.ServiceItems)),
		ScannedAt:    order.PickupScannedAt,
		CancelReason: order.CancelReason,
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, LineItemView{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	for _, item := range order.ServiceItems {
		detail.ServiceItems = append(detail.ServiceItems, ServiceItemView{
			ServiceID:       item.ServiceID,
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			BookingDate:     item.BookingDate,
			BookingTime:     types.ClockTime(item.BookingMinute),
			DurationMinutes: item.DurationMinutes,
		})
	}
	if frozen, ok := order.Commission().(models.Frozen); ok {
		detail.Commission = &CommissionView{
			Rate:              frozen.Rate.String(),
			SellerAmountCents: frozen.SellerAmountCents,
			CommissionCents:   frozen.CommissionCents,
			FrozenAt:          frozen.FrozenAt,
		}
	}
	return detail
}
