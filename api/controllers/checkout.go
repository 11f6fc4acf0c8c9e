package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/api/validators"
	"github.com/angelmondragon/marketcart-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/marketcart-backend/internal/checkout"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

// Checkout turns the customer's cart into one order per seller. Payment failures
// for individual orders are reported inside the 201 response.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		customerID, err := middleware.UserUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), customerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteCreated(w, result)
	}
}

// CheckoutDetail re-reads a checkout's orders for the customer who placed it.
func CheckoutDetail(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		customerID, err := middleware.UserUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		checkoutID, err := validators.PathUUID(r, "checkoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Get(r.Context(), customerID, checkoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type bookingRequest struct {
	CartLineID uuid.UUID       `json:"cart_line_id" validate:"required"`
	Date       string          `json:"date" validate:"required,date"`
	Time       types.ClockTime `json:"time"`
}

type checkoutRequest struct {
	DiscountCode string           `json:"discount_code,omitempty" validate:"max=64"`
	Points       int64            `json:"points,omitempty" validate:"min=0"`
	ClientType   string           `json:"client_type,omitempty" validate:"omitempty,oneof=web native"`
	Bookings     []bookingRequest `json:"bookings,omitempty" validate:"dive"`
}

func (p checkoutRequest) toInput() (checkoutsvc.CheckoutInput, error) {
	client, err := enums.ParseClientType(p.ClientType)
	if err != nil {
		return checkoutsvc.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client type")
	}
	input := checkoutsvc.CheckoutInput{
		DiscountCode: validators.SanitizeString(p.DiscountCode, 64),
		Points:       p.Points,
		ClientType:   client,
	}
	if len(p.Bookings) > 0 {
		input.Bookings = make(map[uuid.UUID]cart.Booking, len(p.Bookings))
		for _, b := range p.Bookings {
			if _, err := types.ParseDate(b.Date); err != nil {
				return checkoutsvc.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking date").
					WithDetails(map[string]any{"cart_line_id": b.CartLineID})
			}
			if _, dup := input.Bookings[b.CartLineID]; dup {
				return checkoutsvc.CheckoutInput{}, pkgerrors.New(pkgerrors.CodeValidation, "duplicate booking for cart line").
					WithDetails(map[string]any{"cart_line_id": b.CartLineID})
			}
			input.Bookings[b.CartLineID] = cart.Booking{Date: b.Date, Minute: b.Time.Minutes()}
		}
	}
	return input, nil
}
