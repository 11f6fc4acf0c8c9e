package sellers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

// Onboarder links sellers to their processor account.
type Onboarder interface {
	StartOnboarding(ctx context.Context, sellerID uuid.UUID) (*payments.OnboardingLink, error)
	CompleteOnboarding(ctx context.Context, state string) (*payments.OnboardingStatus, error)
}

// StartOnboarding returns a hosted onboarding URL, creating the account on first use.
func StartOnboarding(svc Onboarder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.StartOnboarding(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, link)
	}
}

// CompleteOnboarding refreshes the account after the seller returns from the hosted flow.
func CompleteOnboarding(svc Onboarder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "onboarding unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state := strings.TrimSpace(r.URL.Query().Get("state"))
		if state == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "state is required").
				WithDetails(map[string]any{"field": "state"}))
			return
		}

		status, err := svc.CompleteOnboarding(r.Context(), state)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if status.SellerID != sellerID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "onboarding state belongs to another seller"))
			return
		}
		responses.WriteSuccess(w, status)
	}
}
