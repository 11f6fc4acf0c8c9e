package cart

import (
	"github.com/google/uuid"

	cartsvc "github.com/angelmondragon/marketcart-backend/internal/cart"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

type addLineRequest struct {
	Kind        string           `json:"kind" validate:"required,oneof=product service"`
	ProductID   *uuid.UUID       `json:"product_id,omitempty"`
	ServiceID   *uuid.UUID       `json:"service_id,omitempty"`
	Quantity    int              `json:"quantity" validate:"required,min=1,max=999"`
	BookingDate *string          `json:"booking_date,omitempty"`
	BookingTime *types.ClockTime `json:"booking_time,omitempty"`
}

func (p addLineRequest) toInput(customerID uuid.UUID) (cartsvc.AddLineInput, error) {
	kind, err := enums.ParseCartLineKind(p.Kind)
	if err != nil {
		return cartsvc.AddLineInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind")
	}
	return cartsvc.AddLineInput{
		CustomerID:  customerID,
		Kind:        kind,
		ProductID:   p.ProductID,
		ServiceID:   p.ServiceID,
		Quantity:    p.Quantity,
		BookingDate: p.BookingDate,
		BookingTime: p.BookingTime,
	}, nil
}
