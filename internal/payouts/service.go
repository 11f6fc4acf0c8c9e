package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/internal/payments"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/metrics"
	"github.com/angelmondragon/marketcart-backend/pkg/money"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox/payloads"
)

const defaultListLimit = 50

var errUnchanged = errors.New("payout already settled")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type transferCreator interface {
	CreatePayout(ctx context.Context, req payments.PayoutRequest) (string, error)
}

// Service exposes the seller payout ledger.
type Service interface {
	Balance(ctx context.Context, sellerID uuid.UUID) (*Balance, error)
	RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int64, currency string) (*models.Payout, error)
	List(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error)
	Settle(ctx context.Context, reference string, succeeded bool, reason string) error
}

// Balance is a seller's payout position in the base currency.
type Balance struct {
	SellerID       uuid.UUID `json:"seller_id"`
	Currency       string    `json:"currency"`
	RevenueCents   int64     `json:"revenue_cents"`
	CompletedCents int64     `json:"completed_cents"`
	InFlightCents  int64     `json:"in_flight_cents"`
	AvailableCents int64     `json:"available_cents"`
	Available      string    `json:"available"`
}

// ServiceParams wires the payout service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Processor transferCreator
	Converter *money.Converter
	Logger    *logger.Logger
	Metrics   *metrics.CheckoutMetrics
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	processor transferCreator
	converter *money.Converter
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
	now       func() time.Time
}

// NewService wires a payout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payout repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Processor == nil:
		return nil, fmt.Errorf("payment processor required")
	case params.Converter == nil:
		return nil, fmt.Errorf("currency converter required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		processor: params.Processor,
		converter: params.Converter,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       params.Now,
	}, nil
}

func (s *service) Balance(ctx context.Context, sellerID uuid.UUID) (*Balance, error) {
	if _, err := s.loadSeller(ctx, s.repo, sellerID, false); err != nil {
		return nil, err
	}
	totals, err := s.repo.Totals(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute payout balance")
	}
	return s.balanceFrom(sellerID, totals), nil
}

// RequestPayout reserves amount against the available balance and asks the
// processor to move the funds. The balance check and the row insert are one
// statement; a processor failure leaves the row behind as failed.
func (s *service) RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int64, currency string) (*models.Payout, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.converter.Base()
	}
	baseCents, err := s.converter.ToBase(amountCents, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payout currency").
			WithDetails(map[string]any{"currency": currency})
	}
	if baseCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount too small after conversion")
	}
	ctx = s.logg.WithSellerID(ctx, sellerID.String())

	now := s.now().UTC().Truncate(time.Microsecond)
	payout := &models.Payout{
		ID:              uuid.New(),
		SellerID:        sellerID,
		AmountCents:     amountCents,
		Currency:        currency,
		BaseAmountCents: baseCents,
		BaseCurrency:    s.converter.Base(),
		Status:          enums.PayoutStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var accountID string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		seller, err := s.loadSeller(ctx, repo, sellerID, true)
		if err != nil {
			return err
		}
		if seller.ProcessorAccountID == nil || !seller.PayoutsEnabled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "seller payouts not enabled")
		}
		accountID = *seller.ProcessorAccountID

		inserted, err := repo.InsertIfCovered(ctx, payout)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve payout")
		}
		if !inserted {
			totals, err := repo.Totals(ctx, sellerID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute payout balance")
			}
			available := totals.AvailableCents()
			return pkgerrors.Newf(pkgerrors.CodeConflict, "insufficient balance: available %s %s", money.FormatCents(available), strings.ToUpper(s.converter.Base())).
				WithDetails(map[string]any{
					"available":       money.FormatCents(available),
					"available_cents": available,
					"requested_cents": baseCents,
					"currency":        s.converter.Base(),
				})
		}
		return s.emit(ctx, tx, enums.EventPayoutRequested, payout, now)
	})
	if err != nil {
		s.metrics.Payout(outcomeFor(err))
		return nil, err
	}

	reference, err := s.processor.CreatePayout(ctx, payments.PayoutRequest{
		PayoutID:    payout.ID,
		AccountID:   accountID,
		AmountCents: payout.BaseAmountCents,
		Currency:    payout.BaseCurrency,
	})
	if err != nil {
		s.logg.Error(ctx, "processor rejected payout", err)
		s.fail(ctx, payout, err.Error())
		s.metrics.Payout("failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create processor payout").
			WithDetails(map[string]any{"payout_id": payout.ID.String()})
	}

	if _, err := s.repo.MarkProcessing(context.WithoutCancel(ctx), payout.ID, reference, s.now().UTC()); err != nil {
		// The transfer exists; the row stays pending and keeps its reservation.
		s.logg.Error(s.logg.WithField(ctx, "processor_reference", reference), "record processor payout reference", err)
	}
	payout.Status = enums.PayoutStatusProcessing
	payout.ProcessorReference = &reference
	s.metrics.Payout("requested")
	s.logg.Info(s.logg.WithField(ctx, "payout_id", payout.ID.String()), "payout requested")
	return payout, nil
}

func (s *service) List(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Payout, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	payouts, err := s.repo.ListBySeller(ctx, sellerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return payouts, nil
}

// Settle applies the processor's final word on a payout. Unknown references and
// payouts that already settled are ignored.
func (s *service) Settle(ctx context.Context, reference string, succeeded bool, reason string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "processor reference required")
	}
	to := enums.PayoutStatusCompleted
	var failure *string
	if !succeeded {
		to = enums.PayoutStatusFailed
		failure = &reason
	}
	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payout, err := s.repo.WithTx(tx).SettleByReference(ctx, reference, to, failure, now)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, errUnchanged):
			return nil
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payout")
		}
		if to == enums.PayoutStatusFailed {
			return s.emit(ctx, tx, enums.EventPayoutFailed, payout, now)
		}
		return nil
	})
}

func (s *service) fail(ctx context.Context, payout *models.Payout, reason string) {
	now := s.now().UTC()
	ctx = context.WithoutCancel(ctx)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).MarkFailed(ctx, payout.ID, reason, now)
		if err != nil || !ok {
			return err
		}
		payout.Status = enums.PayoutStatusFailed
		payout.FailureReason = &reason
		return s.emit(ctx, tx, enums.EventPayoutFailed, payout, now)
	})
	if err != nil {
		s.logg.Error(ctx, "mark payout failed", err)
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.Payout, now time.Time) error {
	data := payloads.PayoutEvent{
		PayoutID:        payout.ID,
		SellerID:        payout.SellerID,
		AmountCents:     payout.AmountCents,
		Currency:        payout.Currency,
		BaseAmountCents: payout.BaseAmountCents,
		Status:          payout.Status,
	}
	if payout.FailureReason != nil {
		data.FailureReason = *payout.FailureReason
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Data:          data,
		OccurredAt:    now,
	})
}

func (s *service) loadSeller(ctx context.Context, repo Repository, sellerID uuid.UUID, lock bool) (*models.Seller, error) {
	seller, err := repo.FindSeller(ctx, sellerID, lock)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	return seller, nil
}

func (s *service) balanceFrom(sellerID uuid.UUID, totals Totals) *Balance {
	available := totals.AvailableCents()
	return &Balance{
		SellerID:       sellerID,
		Currency:       s.converter.Base(),
		RevenueCents:   totals.RevenueCents,
		CompletedCents: totals.CompletedCents,
		InFlightCents:  totals.InFlightCents,
		AvailableCents: available,
		Available:      money.FormatCents(available),
	}
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return "insufficient"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return "rejected"
	default:
		return "error"
	}
}
