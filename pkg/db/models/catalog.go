package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a purchasable listing with finite stock.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID   uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Service is a bookable listing occupying a slot for DurationMinutes.
type Service struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID        uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	Name            string    `gorm:"column:name;not null"`
	PriceCents      int64     `gorm:"column:price_cents;not null"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
