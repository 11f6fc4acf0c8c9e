package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox/payloads"
)

// OnboardingLink is returned to the seller dashboard.
type OnboardingLink struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

// OnboardingStatus is the seller's account state after returning from the processor.
type OnboardingStatus struct {
	SellerID         uuid.UUID `json:"seller_id"`
	AccountID        string    `json:"account_id"`
	DetailsSubmitted bool      `json:"details_submitted"`
	PayoutsEnabled   bool      `json:"payouts_enabled"`
}

// EnsureSellerAccount returns the seller's processor account, creating it on
// first use. Concurrent callers converge on whichever account was stored first.
func (s *Service) EnsureSellerAccount(ctx context.Context, sellerID uuid.UUID) (string, error) {
	seller, err := s.loadSeller(ctx, sellerID)
	if err != nil {
		return "", err
	}
	if seller.ProcessorAccountID != nil && *seller.ProcessorAccountID != "" {
		return *seller.ProcessorAccountID, nil
	}

	accountID, err := s.processor.CreateSellerAccount(ctx, SellerAccountRequest{
		SellerID: seller.ID,
		Email:    seller.Email,
		Country:  seller.Country,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create seller account")
	}
	ok, err := s.repo.AttachAccount(ctx, seller.ID, accountID, s.now().UTC())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store seller account")
	}
	if ok {
		return accountID, nil
	}

	current, err := s.loadSeller(ctx, sellerID)
	if err != nil {
		return "", err
	}
	if current.ProcessorAccountID == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "seller account not stored")
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"seller_id":        sellerID.String(),
		"orphan_account":   accountID,
		"attached_account": *current.ProcessorAccountID,
	}), "seller account created concurrently")
	return *current.ProcessorAccountID, nil
}

// StartOnboarding issues a hosted onboarding link. The return URL carries a
// one-time state token that maps back to the seller for StateTTL.
func (s *Service) StartOnboarding(ctx context.Context, sellerID uuid.UUID) (*OnboardingLink, error) {
	if s.states == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "onboarding state store unavailable")
	}
	accountID, err := s.EnsureSellerAccount(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	state, err := newStateToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate onboarding state")
	}
	if err := s.states.Set(ctx, s.states.OnboardingStateKey(state), sellerID.String(), s.stateTTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store onboarding state")
	}

	returnURL, err := withQuery(s.returnURL, "state", state)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build onboarding return url")
	}
	link, err := s.processor.CreateOnboardingLink(ctx, accountID, s.refreshURL, returnURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	return &OnboardingLink{AccountID: accountID, URL: link}, nil
}

// CompleteOnboarding consumes the state token, refreshes the account status and
// emits seller.onboarded the first time payouts become enabled.
func (s *Service) CompleteOnboarding(ctx context.Context, state string) (*OnboardingStatus, error) {
	if state == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "onboarding state required")
	}
	if s.states == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "onboarding state store unavailable")
	}
	raw, err := s.states.GetDel(ctx, s.states.OnboardingStateKey(state))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "onboarding state expired or unknown")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read onboarding state")
	}
	sellerID, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt onboarding state")
	}

	seller, err := s.loadSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if seller.ProcessorAccountID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "seller has no processor account")
	}
	accountID := *seller.ProcessorAccountID
	status, err := s.processor.RetrieveAccountStatus(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve account status")
	}

	if err := s.applyAccountStatus(ctx, sellerID, accountID, status); err != nil {
		return nil, err
	}

	return &OnboardingStatus{
		SellerID:         sellerID,
		AccountID:        accountID,
		DetailsSubmitted: status.DetailsSubmitted,
		PayoutsEnabled:   status.PayoutsEnabled,
	}, nil
}

// SyncAccount applies an account status pushed by the processor. Accounts not
// linked to any seller are ignored.
func (s *Service) SyncAccount(ctx context.Context, accountID string, status AccountStatus) error {
	seller, err := s.repo.FindSellerByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "processor_account_id", accountID), "account update for unknown seller")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller by account")
	}
	return s.applyAccountStatus(ctx, seller.ID, accountID, status)
}

func (s *Service) applyAccountStatus(ctx context.Context, sellerID uuid.UUID, accountID string, status AccountStatus) error {
	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := s.repo.WithTx(tx).SetPayoutsEnabled(ctx, sellerID, status.PayoutsEnabled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payouts flag")
		}
		if !changed || !status.PayoutsEnabled {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSellerOnboarded,
			AggregateType: enums.AggregateSeller,
			AggregateID:   sellerID,
			OccurredAt:    now,
			Data: payloads.SellerOnboardedEvent{
				SellerID:           sellerID,
				ProcessorAccountID: accountID,
				PayoutsEnabled:     true,
			},
		})
	})
}

func (s *Service) loadSeller(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error) {
	seller, err := s.repo.FindSeller(ctx, sellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	return seller, nil
}

func newStateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func withQuery(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
