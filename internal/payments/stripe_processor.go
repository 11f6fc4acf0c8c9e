package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/transfer"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/marketcart-backend/pkg/stripe"
)

// StripeProcessor implements Processor on Stripe Checkout, PaymentIntents and Connect.
type StripeProcessor struct{}

// NewStripeProcessor requires an initialized client so the package-level key is set.
func NewStripeProcessor(api *pkgstripe.Client) (*StripeProcessor, error) {
	if api == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeProcessor{}, nil
}

func (p *StripeProcessor) CreateSellerAccount(ctx context.Context, req SellerAccountRequest) (string, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Email:   stripe.String(req.Email),
		Country: stripe.String(strings.ToUpper(req.Country)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.AddMetadata("seller_id", req.SellerID.String())
	params.SetIdempotencyKey("seller-account-" + req.SellerID.String())
	acct, err := account.New(params)
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

func (p *StripeProcessor) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := accountlink.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func (p *StripeProcessor) RetrieveAccountStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return AccountStatus{}, err
	}
	return AccountStatus{DetailsSubmitted: acct.DetailsSubmitted, PayoutsEnabled: acct.PayoutsEnabled}, nil
}

func (p *StripeProcessor) CreateHostedCheckout(ctx context.Context, req PaymentRequest) (Handle, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			TransferGroup: stripe.String(req.CheckoutID.String()),
			Metadata:      paymentMetadata(req),
		},
	}
	if req.ExpiresAt > 0 {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt)
	}
	params.Context = ctx
	for k, v := range paymentMetadata(req) {
		params.AddMetadata(k, v)
	}
	sess, err := session.New(params)
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		OrderID: req.OrderID,
		Kind:    enums.PaymentReferenceCheckoutSession,
		ID:      sess.ID,
		URL:     sess.URL,
	}, nil
}

func (p *StripeProcessor) CreatePaymentIntent(ctx context.Context, req PaymentRequest) (Handle, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		Description:   stripe.String(req.Description),
		TransferGroup: stripe.String(req.CheckoutID.String()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range paymentMetadata(req) {
		params.AddMetadata(k, v)
	}
	intent, err := paymentintent.New(params)
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		OrderID:      req.OrderID,
		Kind:         enums.PaymentReferencePaymentIntent,
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (p *StripeProcessor) RetrieveSessionStatus(ctx context.Context, sessionID string) (PaymentState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	sess, err := session.Get(sessionID, params)
	if err != nil {
		return "", err
	}
	return SessionState(sess), nil
}

func (p *StripeProcessor) RetrievePaymentIntentStatus(ctx context.Context, intentID string) (PaymentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := paymentintent.Get(intentID, params)
	if err != nil {
		return "", err
	}
	return IntentState(intent), nil
}

func (p *StripeProcessor) ExpireHostedCheckout(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := session.Expire(sessionID, params)
	return err
}

func (p *StripeProcessor) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(intentID, params)
	return err
}

func (p *StripeProcessor) CreatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.AccountID),
	}
	params.Context = ctx
	params.AddMetadata("payout_id", req.PayoutID.String())
	params.SetIdempotencyKey("payout-" + req.PayoutID.String())
	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

func paymentMetadata(req PaymentRequest) map[string]string {
	return map[string]string{
		"order_id":    req.OrderID.String(),
		"checkout_id": req.CheckoutID.String(),
		"seller_id":   req.SellerID.String(),
		"customer_id": req.CustomerID.String(),
	}
}

// SessionState maps a checkout session (with its expanded intent) onto PaymentState.
func SessionState(sess *stripe.CheckoutSession) PaymentState {
	if sess == nil {
		return PaymentStateOpen
	}
	switch sess.Status {
	case stripe.CheckoutSessionStatusExpired:
		return PaymentStateExpired
	case stripe.CheckoutSessionStatusComplete:
		switch sess.PaymentStatus {
		case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
			return PaymentStatePaid
		}
		if sess.PaymentIntent != nil {
			if state := IntentState(sess.PaymentIntent); state == PaymentStateFailed {
				return state
			}
		}
		return PaymentStateProcessing
	default:
		return PaymentStateOpen
	}
}

// IntentState maps a payment intent onto PaymentState.
func IntentState(intent *stripe.PaymentIntent) PaymentState {
	if intent == nil {
		return PaymentStateOpen
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return PaymentStatePaid
	case stripe.PaymentIntentStatusProcessing:
		return PaymentStateProcessing
	case stripe.PaymentIntentStatusCanceled:
		return PaymentStateExpired
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			return PaymentStateFailed
		}
		return PaymentStateOpen
	default:
		return PaymentStateOpen
	}
}
