package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketcart-backend/internal/orders"
	"github.com/angelmondragon/marketcart-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
)

type referenceApplier interface {
	ApplyReferenceState(ctx context.Context, reference string, state payments.PaymentState, source string) (*payments.ReconcileResult, error)
}

type accountSyncer interface {
	SyncAccount(ctx context.Context, accountID string, status payments.AccountStatus) error
}

type payoutSettler interface {
	Settle(ctx context.Context, reference string, succeeded bool, reason string) error
}

type ServiceParams struct {
	Payments referenceApplier
	Accounts accountSyncer
	Payouts  payoutSettler
	Logger   *logger.Logger
}

// Service routes verified Stripe events to the payment, account and payout flows.
type Service struct {
	payments referenceApplier
	accounts accountSyncer
	payouts  payoutSettler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account syncer required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout settler required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		payments: params.Payments,
		accounts: params.Accounts,
		payouts:  params.Payouts,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := decode(event, &sess); err != nil {
			return err
		}
		// Without an expanded intent an unpaid completed session is an async
		// method still clearing.
		state := payments.PaymentStateProcessing
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid || sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			state = payments.PaymentStatePaid
		}
		return s.apply(ctx, sess.ID, state)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return s.applySession(ctx, event, payments.PaymentStatePaid)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		return s.applySession(ctx, event, payments.PaymentStateFailed)
	case stripe.EventTypeCheckoutSessionExpired:
		return s.applySession(ctx, event, payments.PaymentStateExpired)
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := decode(event, &intent); err != nil {
			return err
		}
		return s.apply(ctx, intent.ID, intentEventState(event.Type))
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := decode(event, &account); err != nil {
			return err
		}
		return s.accounts.SyncAccount(ctx, account.ID, payments.AccountStatus{
			DetailsSubmitted: account.DetailsSubmitted,
			PayoutsEnabled:   account.PayoutsEnabled,
		})
	case stripe.EventTypeTransferCreated:
		var transfer stripe.Transfer
		if err := decode(event, &transfer); err != nil {
			return err
		}
		return s.payouts.Settle(ctx, transfer.ID, true, "")
	case stripe.EventTypeTransferReversed:
		var transfer stripe.Transfer
		if err := decode(event, &transfer); err != nil {
			return err
		}
		return s.payouts.Settle(ctx, transfer.ID, false, "transfer reversed")
	default:
		s.logg.Debug(ctx, "ignoring stripe event")
		return nil
	}
}

func (s *Service) applySession(ctx context.Context, event *stripe.Event, state payments.PaymentState) error {
	var sess stripe.CheckoutSession
	if err := decode(event, &sess); err != nil {
		return err
	}
	return s.apply(ctx, sess.ID, state)
}

func (s *Service) apply(ctx context.Context, reference string, state payments.PaymentState) error {
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe object id missing")
	}
	result, err := s.payments.ApplyReferenceState(ctx, reference, state, orders.SourceWebhook)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_reference": reference,
		"outcome":           string(result.Outcome),
	}), "stripe payment event applied")
	return nil
}

func intentEventState(eventType stripe.EventType) payments.PaymentState {
	switch eventType {
	case stripe.EventTypePaymentIntentSucceeded:
		return payments.PaymentStatePaid
	case stripe.EventTypePaymentIntentProcessing:
		return payments.PaymentStateProcessing
	case stripe.EventTypePaymentIntentPaymentFailed:
		return payments.PaymentStateFailed
	default:
		return payments.PaymentStateExpired
	}
}

func decode(event *stripe.Event, into any) error {
	if err := json.Unmarshal(event.Data.Raw, into); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event object")
	}
	return nil
}
