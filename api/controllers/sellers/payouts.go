package sellers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/api/responses"
	"github.com/angelmondragon/marketcart-backend/api/validators"
	"github.com/angelmondragon/marketcart-backend/internal/payouts"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

const maxPayoutPage = 50

// PayoutService is the seller-facing payout ledger.
type PayoutService interface {
	Balance(ctx context.Context, sellerID uuid.UUID) (*payouts.Balance, error)
	RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int64, currency string) (*models.Payout, error)
	List(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error)
}

type payoutRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"omitempty,currency"`
}

type payoutView struct {
	ID                 uuid.UUID `json:"id"`
	AmountCents        int64     `json:"amount_cents"`
	Currency           string    `json:"currency"`
	BaseAmountCents    int64     `json:"base_amount_cents"`
	BaseCurrency       string    `json:"base_currency"`
	Status             string    `json:"status"`
	ProcessorReference *string   `json:"processor_reference,omitempty"`
	FailureReason      *string   `json:"failure_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func newPayoutView(p models.Payout) payoutView {
	return payoutView{
		ID:                 p.ID,
		AmountCents:        p.AmountCents,
		Currency:           p.Currency,
		BaseAmountCents:    p.BaseAmountCents,
		BaseCurrency:       p.BaseCurrency,
		Status:             string(p.Status),
		ProcessorReference: p.ProcessorReference,
		FailureReason:      p.FailureReason,
		CreatedAt:          p.CreatedAt,
	}
}

func PayoutBalance(svc PayoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

func PayoutList(svc PayoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", maxPayoutPage, 1, maxPayoutPage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), sellerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]payoutView, 0, len(rows))
		for _, row := range rows {
			views = append(views, newPayoutView(row))
		}
		responses.WriteSuccess(w, map[string]any{"payouts": views})
	}
}

// RequestPayout withdraws from the seller's available balance. Amounts above
// the balance come back as a conflict carrying the available figure.
func RequestPayout(svc PayoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		sellerID, err := middleware.SellerUUID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload payoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.RequestPayout(r.Context(), sellerID, payload.AmountCents, payload.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newPayoutView(*payout))
	}
}
