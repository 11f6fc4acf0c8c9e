package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// WeeklySchedule holds one row per (seller, weekday). Weekday follows time.Weekday.
type WeeklySchedule struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_weekly_schedules_seller_weekday"`
	Weekday     int       `gorm:"column:weekday;not null;uniqueIndex:ux_weekly_schedules_seller_weekday"`
	StartMinute *int      `gorm:"column:start_minute"`
	EndMinute   *int      `gorm:"column:end_minute"`
	IsAvailable bool      `gorm:"column:is_available;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DaySlot is an explicit start time for one seller date. When any exist for a date
// they replace the weekly schedule candidates.
type DaySlot struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID   uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	SlotDate   string    `gorm:"column:slot_date;not null"`
	SlotMinute int       `gorm:"column:slot_minute;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// AvailabilityBlock marks a date, or a minute range within it, as unavailable.
// Booking blocks are created from slot locks when an order is paid.
type AvailabilityBlock struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	BlockDate   string          `gorm:"column:block_date;not null"`
	StartMinute *int            `gorm:"column:start_minute"`
	EndMinute   *int            `gorm:"column:end_minute"`
	Kind        enums.BlockKind `gorm:"column:kind;type:text;not null;default:'seller'"`
	OrderID     *uuid.UUID      `gorm:"column:order_id;type:uuid"`
	Reason      *string         `gorm:"column:reason"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// AllDay reports whether the block covers the whole date.
func (b AvailabilityBlock) AllDay() bool {
	return b.StartMinute == nil || b.EndMinute == nil
}

// SlotLock is a short-lived hold on (seller, date, minute).
type SlotLock struct {
	SellerID        uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	SlotDate        string    `gorm:"column:slot_date;primaryKey"`
	SlotMinute      int       `gorm:"column:slot_minute;primaryKey"`
	CustomerID      uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null"`
	LockedAt        time.Time `gorm:"column:locked_at;not null"`
	ExpiresAt       time.Time `gorm:"column:expires_at;not null"`
}
