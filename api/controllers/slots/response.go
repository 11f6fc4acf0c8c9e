package slots

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

type scheduleDayView struct {
	Weekday     int              `json:"weekday"`
	Start       *types.ClockTime `json:"start,omitempty"`
	End         *types.ClockTime `json:"end,omitempty"`
	IsAvailable bool             `json:"is_available"`
}

func newScheduleView(rows []models.WeeklySchedule) map[string]any {
	days := make([]scheduleDayView, 0, len(rows))
	for _, row := range rows {
		days = append(days, scheduleDayView{
			Weekday:     row.Weekday,
			Start:       clockPtr(row.StartMinute),
			End:         clockPtr(row.EndMinute),
			IsAvailable: row.IsAvailable,
		})
	}
	return map[string]any{"days": days}
}

type blockView struct {
	ID        uuid.UUID        `json:"id"`
	Date      string           `json:"date"`
	Start     *types.ClockTime `json:"start,omitempty"`
	End       *types.ClockTime `json:"end,omitempty"`
	Kind      string           `json:"kind"`
	Reason    *string          `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func newBlockView(block models.AvailabilityBlock) blockView {
	return blockView{
		ID:        block.ID,
		Date:      block.BlockDate,
		Start:     clockPtr(block.StartMinute),
		End:       clockPtr(block.EndMinute),
		Kind:      string(block.Kind),
		Reason:    block.Reason,
		CreatedAt: block.CreatedAt,
	}
}

func clockPtr(minute *int) *types.ClockTime {
	if minute == nil {
		return nil
	}
	value := types.ClockTime(*minute)
	return &value
}
