package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// Payout is a seller withdrawal. Rows are never deleted.
type Payout struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SellerID           uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	AmountCents        int64              `gorm:"column:amount_cents;not null"`
	Currency           string             `gorm:"column:currency;not null"`
	BaseAmountCents    int64              `gorm:"column:base_amount_cents;not null"`
	BaseCurrency       string             `gorm:"column:base_currency;not null"`
	Status             enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ProcessorReference *string            `gorm:"column:processor_reference"`
	FailureReason      *string            `gorm:"column:failure_reason"`
	CreatedAt          time.Time          `gorm:"column:created_at"`
	UpdatedAt          time.Time          `gorm:"column:updated_at"`
}
