package slots

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

const (
	minutesPerDay   = 24 * 60
	defaultInterval = 30
	maxRangeDays    = 62
)

// Key identifies one bookable start time for a seller.
type Key struct {
	SellerID uuid.UUID
	Date     string
	Minute   int
}

// Slot is a candidate start time with the duration it was evaluated for.
type Slot struct {
	Date            string          `json:"date"`
	Start           types.ClockTime `json:"start"`
	DurationMinutes int             `json:"duration_minutes"`
}

// Status classifies a grid cell for the seller calendar.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusBlocked   Status = "blocked"
	StatusLocked    Status = "locked"
)

// GridCell is one classified candidate in the seller calendar.
type GridCell struct {
	Slot
	Status Status `json:"status"`
}

// Query selects candidates for one seller over an inclusive date range.
// Location, when set, drops candidates that already started in the seller's zone.
type Query struct {
	SellerID        uuid.UUID
	StartDate       string
	EndDate         string
	DurationMinutes int
	IntervalMinutes int
	Location        *time.Location
}

// DaySchedule is the input for one weekday row.
type DaySchedule struct {
	Weekday     int              `json:"weekday" validate:"min=0,max=6"`
	Start       *types.ClockTime `json:"start,omitempty"`
	End         *types.ClockTime `json:"end,omitempty"`
	IsAvailable bool             `json:"is_available"`
}

// BlockInput describes a seller-declared unavailability.
type BlockInput struct {
	SellerID uuid.UUID
	Date     string
	Start    *types.ClockTime
	End      *types.ClockTime
	Reason   string
}

type window struct {
	start int
	end   int
}

func (w window) overlaps(start, end int) bool {
	return start < w.end && w.start < end
}
