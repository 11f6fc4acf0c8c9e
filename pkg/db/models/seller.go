package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Seller is an independent party listing products and bookable services.
type Seller struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Name                 string              `gorm:"column:name;not null"`
	Email                string              `gorm:"column:email;not null"`
	Country              string              `gorm:"column:country;not null;default:'US'"`
	Address              string              `gorm:"column:address;not null;default:''"`
	Timezone             string              `gorm:"column:timezone;not null;default:'UTC'"`
	SameDayPickupAllowed bool                `gorm:"column:same_day_pickup_allowed;not null"`
	CutoffTime           *string             `gorm:"column:cutoff_time"`
	CommissionOverride   decimal.NullDecimal `gorm:"column:commission_override;type:numeric(5,4)"`
	ProcessorAccountID   *string             `gorm:"column:processor_account_id"`
	PayoutsEnabled       bool                `gorm:"column:payouts_enabled;not null;default:false"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
