package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

type lineView struct {
	ID          uuid.UUID          `json:"id"`
	Kind        enums.CartLineKind `json:"kind"`
	ProductID   *uuid.UUID         `json:"product_id,omitempty"`
	ServiceID   *uuid.UUID         `json:"service_id,omitempty"`
	Quantity    int                `json:"quantity"`
	BookingDate *string            `json:"booking_date,omitempty"`
	BookingTime *types.ClockTime   `json:"booking_time,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

type cartView struct {
	Lines []lineView `json:"lines"`
}

func newLineView(line models.CartLine) lineView {
	view := lineView{
		ID:          line.ID,
		Kind:        line.Kind,
		ProductID:   line.ProductID,
		ServiceID:   line.ServiceID,
		Quantity:    line.Quantity,
		BookingDate: line.BookingDate,
		CreatedAt:   line.CreatedAt,
	}
	if line.BookingMinute != nil {
		at := types.ClockTime(*line.BookingMinute)
		view.BookingTime = &at
	}
	return view
}

func newCartView(lines []models.CartLine) cartView {
	views := make([]lineView, 0, len(lines))
	for _, line := range lines {
		views = append(views, newLineView(line))
	}
	return cartView{Lines: views}
}
