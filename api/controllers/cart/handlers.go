package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/api/validators"
	cartsvc "github.com/angelmondragon/marketcart-backend/internal/cart"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

type Service interface {
	List(ctx context.Context, customerID uuid.UUID) ([]models.CartLine, error)
	AddLine(ctx context.Context, input cartsvc.AddLineInput) (*models.CartLine, error)
	RemoveLine(ctx context.Context, customerID, lineID uuid.UUID) error
}

// customerAction runs on behalf of the authenticated customer and renders its
// own success response. Returned errors are written by customerRoute.
type customerAction func(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) error

func customerRoute(svc Service, logg *logger.Logger, action customerAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := func() error {
			if svc == nil {
				return pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable")
			}
			customerID, err := middleware.UserUUID(r.Context())
			if err != nil {
				return err
			}
			return action(w, r, customerID)
		}()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

func CartFetch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return customerRoute(svc, logg, func(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) error {
		lines, err := svc.List(r.Context(), customerID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, newCartView(lines))
		return nil
	})
}

// CartAddLine stores one product or service line. Service lines carry the
// requested booking date and time; the slot itself is only locked at checkout.
func CartAddLine(svc Service, logg *logger.Logger) http.HandlerFunc {
	return customerRoute(svc, logg, func(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) error {
		var payload addLineRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			return err
		}
		input, err := payload.toInput(customerID)
		if err != nil {
			return err
		}
		line, err := svc.AddLine(r.Context(), input)
		if err != nil {
			return err
		}
		responses.WriteCreated(w, newLineView(*line))
		return nil
	})
}

func CartRemoveLine(svc Service, logg *logger.Logger) http.HandlerFunc {
	return customerRoute(svc, logg, func(w http.ResponseWriter, r *http.Request, customerID uuid.UUID) error {
		lineID, err := validators.PathUUID(r, "lineId")
		if err != nil {
			return err
		}
		if err := svc.RemoveLine(r.Context(), customerID, lineID); err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]bool{"removed": true})
		return nil
	})
}
