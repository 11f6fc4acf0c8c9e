package slots

import (
	"context"
	"iter"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/api/validators"
	"github.com/angelmondragon/marketcart-backend/internal/catalog"
	"github.com/angelmondragon/marketcart-backend/internal/cutoff"
	internalslots "github.com/angelmondragon/marketcart-backend/internal/slots"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

const (
	maxDurationMinutes = 24 * 60
	maxIntervalMinutes = 24 * 60
)

// Ledger is the slot ledger surface used by the HTTP layer.
type Ledger interface {
	LockSlot(ctx context.Context, key internalslots.Key, customerID uuid.UUID, durationMinutes int) (bool, error)
	ReleaseHeldLock(ctx context.Context, tx *gorm.DB, key internalslots.Key, customerID uuid.UUID) error
	AvailableSlots(ctx context.Context, q internalslots.Query) (iter.Seq[internalslots.Slot], error)
	SlotGrid(ctx context.Context, q internalslots.Query) ([]internalslots.GridCell, error)
	UpsertWeeklySchedule(ctx context.Context, sellerID uuid.UUID, days []internalslots.DaySchedule) ([]models.WeeklySchedule, error)
	ReplaceDaySlots(ctx context.Context, sellerID uuid.UUID, date string, starts []types.ClockTime) error
	CreateBlock(ctx context.Context, input internalslots.BlockInput) (*models.AvailabilityBlock, error)
	DeleteBlock(ctx context.Context, sellerID, blockID uuid.UUID) error
}

// SellerDirectory resolves seller settings (timezone, same-day rules).
type SellerDirectory interface {
	GetSellerInfo(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error)
}

// SameDayPolicy answers whether a seller takes same-day pickups right now.
type SameDayPolicy interface {
	IsSameDayAllowed(seller *models.Seller) (cutoff.Decision, error)
}

// Available lists open start times for a seller, evaluated in the seller's zone
// so slots that already started today are dropped.
func Available(ledger Ledger, sellers SellerDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil || sellers == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger unavailable"))
			return
		}

		sellerID, err := validators.PathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		seller, err := sellers.GetSellerInfo(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query, err := parseRangeQuery(r, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query.Location = catalog.SellerLocation(seller)

		seq, err := ledger.AvailableSlots(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		slots := slices.Collect(seq)
		if slots == nil {
			slots = []internalslots.Slot{}
		}
		responses.WriteSuccess(w, map[string]any{"seller_id": sellerID, "slots": slots})
	}
}

// SameDay reports the seller's current same-day decision.
func SameDay(sellers SellerDirectory, policy SameDayPolicy, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sellers == nil || policy == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cutoff policy unavailable"))
			return
		}

		sellerID, err := validators.PathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		seller, err := sellers.GetSellerInfo(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := policy.IsSameDayAllowed(seller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Ensure(err, pkgerrors.CodeInternal, "evaluate cutoff"))
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

// Lock holds a slot for the customer while they finish the cart.
func Lock(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger unavailable"))
			return
		}

		customerID, err := middleware.UserUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload lockRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := payload.key()
		acquired, err := ledger.LockSlot(r.Context(), key, customerID, payload.DurationMinutes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !acquired {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "slot is held by another customer").
				WithDetails(map[string]any{"date": key.Date, "time": payload.Time}))
			return
		}
		responses.WriteCreated(w, map[string]any{"locked": true, "date": key.Date, "time": payload.Time})
	}
}

// Unlock drops the caller's own lock. Locks held by others are left alone.
func Unlock(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "slot ledger unavailable"))
			return
		}

		customerID, err := middleware.UserUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload unlockRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := internalslots.Key{SellerID: payload.SellerID, Date: payload.Date, Minute: payload.Time.Minutes()}
		if err := ledger.ReleaseHeldLock(r.Context(), nil, key, customerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"released": true})
	}
}

// Grid renders the seller's own calendar with every candidate classified.
func Grid(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
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
		query, err := parseRangeQuery(r, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cells, err := ledger.SlotGrid(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"seller_id": sellerID, "cells": cells})
	}
}

func parseRangeQuery(r *http.Request, sellerID uuid.UUID) (internalslots.Query, error) {
	start, err := validators.ParseQueryDate(r, "start", true)
	if err != nil {
		return internalslots.Query{}, err
	}
	end, err := validators.ParseQueryDate(r, "end", false)
	if err != nil {
		return internalslots.Query{}, err
	}
	duration, err := validators.ParseQueryInt(r, "duration", 0, 1, maxDurationMinutes)
	if err != nil {
		return internalslots.Query{}, err
	}
	if duration == 0 {
		return internalslots.Query{}, pkgerrors.New(pkgerrors.CodeValidation, "duration is required").
			WithDetails(map[string]any{"field": "duration"})
	}
	interval, err := validators.ParseQueryInt(r, "interval", 0, 1, maxIntervalMinutes)
	if err != nil {
		return internalslots.Query{}, err
	}
	return internalslots.Query{
		SellerID:        sellerID,
		StartDate:       start,
		EndDate:         end,
		DurationMinutes: duration,
		IntervalMinutes: interval,
	}, nil
}
