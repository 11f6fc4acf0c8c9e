package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// PointsAccount holds a customer's loyalty balance.
type PointsAccount struct {
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;primaryKey"`
	Balance    int64     `gorm:"column:balance;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PointsRedemption records points applied to one order. The balance is only
// debited when the order is paid.
type PointsRedemption struct {
	ID          uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID                    `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	CheckoutID  uuid.UUID                    `gorm:"column:checkout_id;type:uuid;not null"`
	CustomerID  uuid.UUID                    `gorm:"column:customer_id;type:uuid;not null"`
	Points      int64                        `gorm:"column:points;not null"`
	AmountCents int64                        `gorm:"column:amount_cents;not null"`
	Status      enums.PointsRedemptionStatus `gorm:"column:status;type:text;not null;default:'reserved'"`
	CreatedAt   time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}
