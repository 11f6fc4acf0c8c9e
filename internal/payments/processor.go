package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// PaymentState is the processor-side outcome of a payment handle.
type PaymentState string

const (
	PaymentStateOpen       PaymentState = "open"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStatePaid       PaymentState = "paid"
	PaymentStateFailed     PaymentState = "failed"
	PaymentStateExpired    PaymentState = "expired"
)

// Handle is what a client needs to complete payment for one order.
type Handle struct {
	OrderID      uuid.UUID                  `json:"order_id"`
	Kind         enums.PaymentReferenceKind `json:"kind,omitempty"`
	ID           string                     `json:"id,omitempty"`
	URL          string                     `json:"url,omitempty"`
	ClientSecret string                     `json:"client_secret,omitempty"`
	// Settled is true when nothing was owed and the order was confirmed without a processor call.
	Settled bool `json:"settled,omitempty"`
}

// PaymentRequest describes the charge for a single order.
type PaymentRequest struct {
	OrderID     uuid.UUID
	CheckoutID  uuid.UUID
	CustomerID  uuid.UUID
	SellerID    uuid.UUID
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   int64
}

// SellerAccountRequest carries what the processor needs to open a connected account.
type SellerAccountRequest struct {
	SellerID uuid.UUID
	Email    string
	Country  string
}

// AccountStatus summarizes a connected account's onboarding progress.
type AccountStatus struct {
	DetailsSubmitted bool
	PayoutsEnabled   bool
}

// PayoutRequest moves funds from the platform to a seller's connected account.
type PayoutRequest struct {
	PayoutID    uuid.UUID
	AccountID   string
	AmountCents int64
	Currency    string
}

// Processor is the external payment provider.
type Processor interface {
	CreateSellerAccount(ctx context.Context, req SellerAccountRequest) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	RetrieveAccountStatus(ctx context.Context, accountID string) (AccountStatus, error)
	CreateHostedCheckout(ctx context.Context, req PaymentRequest) (Handle, error)
	CreatePaymentIntent(ctx context.Context, req PaymentRequest) (Handle, error)
	RetrieveSessionStatus(ctx context.Context, sessionID string) (PaymentState, error)
	RetrievePaymentIntentStatus(ctx context.Context, intentID string) (PaymentState, error)
	ExpireHostedCheckout(ctx context.Context, sessionID string) error
	CancelPaymentIntent(ctx context.Context, intentID string) error
	CreatePayout(ctx context.Context, req PayoutRequest) (string, error)
}
