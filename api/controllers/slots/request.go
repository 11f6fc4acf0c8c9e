package slots

import (
	"github.com/google/uuid"

	internalslots "github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

type lockRequest struct {
	SellerID        uuid.UUID       `json:"seller_id" validate:"required"`
	Date            string          `json:"date" validate:"required,date"`
	Time            types.ClockTime `json:"time"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,min=1,max=1440"`
}

func (r lockRequest) key() internalslots.Key {
	return internalslots.Key{SellerID: r.SellerID, Date: r.Date, Minute: r.Time.Minutes()}
}

type unlockRequest struct {
	SellerID uuid.UUID       `json:"seller_id" validate:"required"`
	Date     string          `json:"date" validate:"required,date"`
	Time     types.ClockTime `json:"time"`
}

type scheduleRequest struct {
	Days []internalslots.DaySchedule `json:"days" validate:"required,min=1,max=7,dive"`
}

type daySlotsRequest struct {
	Date   string            `json:"date" validate:"required,date"`
	Starts []types.ClockTime `json:"starts" validate:"max=96"`
}

type blockRequest struct {
	Date   string           `json:"date" validate:"required,date"`
	Start  *types.ClockTime `json:"start"`
	End    *types.ClockTime `json:"end"`
	Reason string           `json:"reason" validate:"max=200"`
}
