package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// CartLine is one customer-owned cart row. Rows are deleted once the order they
// were converted into is paid.
type CartLine struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID    uuid.UUID          `gorm:"column:customer_id;type:uuid;not null"`
	Kind          enums.CartLineKind `gorm:"column:kind;type:text;not null"`
	ProductID     *uuid.UUID         `gorm:"column:product_id;type:uuid"`
	ServiceID     *uuid.UUID         `gorm:"column:service_id;type:uuid"`
	Quantity      int                `gorm:"column:quantity;not null"`
	BookingDate   *string            `gorm:"column:booking_date"`
	BookingMinute *int               `gorm:"column:booking_minute"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}
