package sellers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcart-backend/api/middleware"
	"github.com/angelmondragon/marketcart-backend/internal/payments"
	"github.com/angelmondragon/marketcart-backend/internal/payouts"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

type stubOnboarder struct {
	owner uuid.UUID
	state string
}

func (s *stubOnboarder) StartOnboarding(ctx context.Context, sellerID uuid.UUID) (*payments.OnboardingLink, error) {
	return &payments.OnboardingLink{AccountID: "acct_1", URL: "https://connect.example/onboard"}, nil
}

func (s *stubOnboarder) CompleteOnboarding(ctx context.Context, state string) (*payments.OnboardingStatus, error) {
	s.state = state
	return &payments.OnboardingStatus{SellerID: s.owner, AccountID: "acct_1", DetailsSubmitted: true}, nil
}

type stubPayouts struct {
	amount    int64
	currency  string
	limit     int
	available int64
}

func (s *stubPayouts) Balance(ctx context.Context, sellerID uuid.UUID) (*payouts.Balance, error) {
	return &payouts.Balance{SellerID: sellerID, Currency: "usd", AvailableCents: s.available}, nil
}

func (s *stubPayouts) RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int64, currency string) (*models.Payout, error) {
	s.amount = amountCents
	s.currency = currency
	if amountCents > s.available {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient balance").
			WithDetails(map[string]any{"available_cents": s.available})
	}
	return &models.Payout{ID: uuid.New(), SellerID: sellerID, AmountCents: amountCents, Currency: "usd", Status: enums.PayoutStatusPending}, nil
}

func (s *stubPayouts) List(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error) {
	s.limit = limit
	return nil, nil
}

func sellerRequest(method, target, body string, sellerID *uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.RoleSeller))
	if sellerID != nil {
		ctx = middleware.WithSellerID(ctx, sellerID.String())
	}
	return req.WithContext(ctx)
}

func TestStartOnboarding(t *testing.T) {
	sellerID := uuid.New()
	resp := httptest.NewRecorder()
	StartOnboarding(&stubOnboarder{}, logger.Nop())(resp, sellerRequest(http.MethodPost, "/api/v1/seller/onboarding", "", &sellerID))
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Contains(t, resp.Body.String(), `"account_id":"acct_1"`)

	resp = httptest.NewRecorder()
	StartOnboarding(&stubOnboarder{}, logger.Nop())(resp, sellerRequest(http.MethodPost, "/api/v1/seller/onboarding", "", nil))
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCompleteOnboardingChecksOwner(t *testing.T) {
	sellerID := uuid.New()
	svc := &stubOnboarder{owner: sellerID}

	resp := httptest.NewRecorder()
	CompleteOnboarding(svc, logger.Nop())(resp, sellerRequest(http.MethodGet, "/api/v1/seller/onboarding/complete?state=abc", "", &sellerID))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, "abc", svc.state)

	other := uuid.New()
	resp = httptest.NewRecorder()
	CompleteOnboarding(svc, logger.Nop())(resp, sellerRequest(http.MethodGet, "/api/v1/seller/onboarding/complete?state=abc", "", &other))
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = httptest.NewRecorder()
	CompleteOnboarding(svc, logger.Nop())(resp, sellerRequest(http.MethodGet, "/api/v1/seller/onboarding/complete", "", &sellerID))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRequestPayout(t *testing.T) {
	sellerID := uuid.New()
	svc := &stubPayouts{available: 5000}

	resp := httptest.NewRecorder()
	RequestPayout(svc, logger.Nop())(resp, sellerRequest(http.MethodPost, "/api/v1/seller/payouts", `{"amount_cents":2500,"currency":"usd"}`, &sellerID))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Equal(t, int64(2500), svc.amount)
	require.Contains(t, resp.Body.String(), `"status":"pending"`)

	resp = httptest.NewRecorder()
	RequestPayout(svc, logger.Nop())(resp, sellerRequest(http.MethodPost, "/api/v1/seller/payouts", `{"amount_cents":9000}`, &sellerID))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Contains(t, resp.Body.String(), `"available_cents":5000`)

	resp = httptest.NewRecorder()
	RequestPayout(svc, logger.Nop())(resp, sellerRequest(http.MethodPost, "/api/v1/seller/payouts", `{"amount_cents":0}`, &sellerID))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPayoutListAndBalance(t *testing.T) {
	sellerID := uuid.New()
	svc := &stubPayouts{available: 1200}

	resp := httptest.NewRecorder()
	PayoutList(svc, logger.Nop())(resp, sellerRequest(http.MethodGet, "/api/v1/seller/payouts?limit=10", "", &sellerID))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 10, svc.limit)
	require.Contains(t, resp.Body.String(), `"payouts":[]`)

	resp = httptest.NewRecorder()
	PayoutList(svc, logger.Nop())(resp, sellerRequest(http.MethodGet, "/api/v1/seller/payouts?limit=500", "", &sellerID))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	PayoutBalance(svc, logger.Nop())(resp, sellerRequest(http.MethodGet, "/api/v1/seller/balance", "", &sellerID))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"available_cents":1200`)
}
