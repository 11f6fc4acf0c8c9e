package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// DiscountCode is an administrator-managed promo code. Value is basis points for
// percentage codes and cents for fixed codes.
type DiscountCode struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Code             string               `gorm:"column:code;not null;uniqueIndex"`
	Kind             enums.DiscountKind   `gorm:"column:kind;type:text;not null"`
	Value            int64                `gorm:"column:value;not null"`
	MinPurchaseCents int64                `gorm:"column:min_purchase_cents;not null;default:0"`
	MaxDiscountCents *int64               `gorm:"column:max_discount_cents"`
	UsageLimit       *int                 `gorm:"column:usage_limit"`
	ExpiresAt        *time.Time           `gorm:"column:expires_at"`
	AnySeller        bool                 `gorm:"column:any_seller;not null;default:false"`
	Active           bool                 `gorm:"column:active;not null"`
	Sellers          []DiscountCodeSeller `gorm:"foreignKey:DiscountCodeID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// DiscountCodeSeller lists a participating seller.
type DiscountCodeSeller struct {
	DiscountCodeID uuid.UUID `gorm:"column:discount_code_id;type:uuid;primaryKey"`
	SellerID       uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
}

// DiscountCodeUsage is the append-only application of a code to one order.
type DiscountCodeUsage struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DiscountCodeID uuid.UUID `gorm:"column:discount_code_id;type:uuid;not null"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	CheckoutID     uuid.UUID `gorm:"column:checkout_id;type:uuid;not null"`
	CustomerID     uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`
	AmountCents    int64     `gorm:"column:amount_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
