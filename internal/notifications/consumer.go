package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox/payloads"
)

const (
	sellerNotificationConsumer = "seller-notifications"
	processedMarkerTTL         = 7 * 24 * time.Hour
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type sellerDirectory interface {
	GetSellerInfo(ctx context.Context, sellerID uuid.UUID) (*models.Seller, error)
}

type processedStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// ConsumerParams wire the seller notification consumer.
type ConsumerParams struct {
	Subscription receiver
	Sellers      sellerDirectory
	Sender       Sender
	Processed    processedStore
	Logger       *logger.Logger
}

// Consumer watches domain events and turns payout and onboarding changes into
// seller notifications. Order notifications are written in-process by the order flow.
type Consumer struct {
	subscription receiver
	sellers      sellerDirectory
	sender       Sender
	processed    processedStore
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	switch {
	case params.Subscription == nil:
		return nil, fmt.Errorf("domain subscription required")
	case params.Sellers == nil:
		return nil, fmt.Errorf("seller directory required")
	case params.Sender == nil:
		return nil, fmt.Errorf("notification sender required")
	case params.Processed == nil:
		return nil, fmt.Errorf("processed marker store required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: params.Subscription,
		sellers:      params.Sellers,
		sender:       params.Sender,
		processed:    params.Processed,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

var errSkip = errors.New("event not handled")

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	switch eventType {
	case enums.EventPayoutRequested, enums.EventPayoutFailed, enums.EventSellerOnboarded:
	default:
		return processResult{}
	}

	envelope, err := outbox.Open(msg.Data)
	if err != nil {
		// redelivery cannot repair a bad envelope
		c.logg.Error(logCtx, "dropping undecodable envelope", err)
		return processResult{}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	key := c.processed.IdempotencyKey(sellerNotificationConsumer, envelope.EventID)
	fresh, err := c.processed.SetNX(ctx, key, msg.ID, processedMarkerTTL)
	if err != nil {
		c.logg.Error(logCtx, "processed marker check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	err = c.handle(ctx, eventType, envelope)
	switch {
	case err == nil, errors.Is(err, errSkip):
		return processResult{}
	case errors.Is(err, outbox.ErrMalformed):
		c.logg.Error(logCtx, "dropping event with bad payload", err)
		return processResult{}
	}
	c.logg.Error(logCtx, "seller notification failed", err)
	if delErr := c.processed.Del(ctx, key); delErr != nil {
		c.logg.Error(logCtx, "failed to clear processed marker", delErr)
	}
	return processResult{nack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.Envelope) error {
	if eventType == enums.EventSellerOnboarded {
		payload, err := outbox.Unpack[payloads.SellerOnboardedEvent](envelope)
		if err != nil {
			return err
		}
		if !payload.PayoutsEnabled {
			return errSkip
		}
		return c.notifySeller(ctx, payload.SellerID, enums.NotificationTypeSellerOnboarded,
			"Payouts enabled",
			"Your payout account is verified. You can now request payouts.",
			map[string]any{"seller_id": payload.SellerID.String()})
	}

	payload, err := outbox.Unpack[payloads.PayoutEvent](envelope)
	if err != nil {
		return err
	}
	amount := formatAmount(payload.AmountCents, payload.Currency)
	extra := map[string]any{
		"payout_id":    payload.PayoutID.String(),
		"amount_cents": payload.AmountCents,
		"currency":     payload.Currency,
	}
	if eventType == enums.EventPayoutFailed {
		body := fmt.Sprintf("Your payout of %s was not completed.", amount)
		if payload.FailureReason != "" {
			body += " Reason: " + payload.FailureReason
		}
		return c.notifySeller(ctx, payload.SellerID, enums.NotificationTypePayoutFailed, "Payout failed", body, extra)
	}
	return c.notifySeller(ctx, payload.SellerID, enums.NotificationTypePayoutRequested,
		"Payout requested", fmt.Sprintf("A payout of %s is on its way.", amount), extra)
}

func (c *Consumer) notifySeller(ctx context.Context, sellerID uuid.UUID, kind enums.NotificationType, title, body string, data map[string]any) error {
	if sellerID == uuid.Nil {
		return fmt.Errorf("seller id missing")
	}
	seller, err := c.sellers.GetSellerInfo(ctx, sellerID)
	if err != nil {
		return fmt.Errorf("load seller %s: %w", sellerID, err)
	}
	c.sender.Notify(ctx, Notification{
		UserID: seller.UserID,
		Role:   enums.RoleSeller,
		Type:   kind,
		Title:  title,
		Body:   body,
		Data:   data,
	})
	return nil
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
