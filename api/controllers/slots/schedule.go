package slots

import (
	"net/http"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/api/validators"
	internalslots "github.com/angelmondragon/marketcart-backend/internal/slots"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// PutSchedule replaces the seller's weekly hours for the weekdays sent.
func PutSchedule(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload scheduleRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := ledger.UpsertWeeklySchedule(r.Context(), sellerID, payload.Days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newScheduleView(rows))
	}
}

// PutDaySlots replaces the explicit start times offered on one date.
func PutDaySlots(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload daySlotsRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := ledger.ReplaceDaySlots(r.Context(), sellerID, payload.Date, payload.Starts); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"date": payload.Date, "starts": payload.Starts})
	}
}

func CreateBlock(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload blockRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		block, err := ledger.CreateBlock(r.Context(), internalslots.BlockInput{
			SellerID: sellerID,
			Date:     payload.Date,
			Start:    payload.Start,
			End:      payload.End,
			Reason:   validators.SanitizeString(payload.Reason, 200),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newBlockView(*block))
	}
}

func DeleteBlock(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		blockID, err := validators.PathUUID(r, "blockId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := ledger.DeleteBlock(r.Context(), sellerID, blockID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
