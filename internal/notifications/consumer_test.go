package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox/payloads"
)

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

type recordingSender struct {
	sent []Notification
}

func (r *recordingSender) Notify(_ context.Context, n Notification) {
	r.sent = append(r.sent, n)
}

type stubSellers struct {
	sellers map[uuid.UUID]*models.Seller
}

func (s stubSellers) GetSellerInfo(_ context.Context, id uuid.UUID) (*models.Seller, error) {
	if seller, ok := s.sellers[id]; ok {
		return seller, nil
	}
	return nil, errors.New("seller not found")
}

type markerStore struct {
	keys  map[string]bool
	err   error
	freed []string
}

func (m *markerStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *markerStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
		m.freed = append(m.freed, key)
	}
	return nil
}

func (m *markerStore) IdempotencyKey(scope, id string) string {
	return "mc:idempotency:" + scope + ":" + id
}

func domainMessage(t *testing.T, eventType enums.OutboxEventType, eventID string, data any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.Envelope{Version: 1, EventID: eventID, OccurredAt: time.Now(), Data: raw})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         "msg-" + eventID,
		Data:       body,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func newTestConsumer(t *testing.T, sellers stubSellers, store *markerStore) (*Consumer, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	consumer, err := NewConsumer(ConsumerParams{
		Subscription: noopReceiver{},
		Sellers:      sellers,
		Sender:       sender,
		Processed:    store,
		Logger:       logger.Nop(),
	})
	require.NoError(t, err)
	return consumer, sender
}

func TestConsumerNotifiesSellerOfFailedPayout(t *testing.T) {
	sellerID, userID := uuid.New(), uuid.New()
	sellers := stubSellers{sellers: map[uuid.UUID]*models.Seller{sellerID: {ID: sellerID, UserID: userID}}}
	consumer, sender := newTestConsumer(t, sellers, &markerStore{keys: map[string]bool{}})

	msg := domainMessage(t, enums.EventPayoutFailed, "evt-1", payloads.PayoutEvent{
		PayoutID:      uuid.New(),
		SellerID:      sellerID,
		AmountCents:   12550,
		Currency:      "usd",
		FailureReason: "account closed",
	})

	result := consumer.process(context.Background(), msg)
	require.False(t, result.nack)
	require.Len(t, sender.sent, 1)
	require.Equal(t, userID, sender.sent[0].UserID)
	require.Equal(t, enums.RoleSeller, sender.sent[0].Role)
	require.Equal(t, enums.NotificationTypePayoutFailed, sender.sent[0].Type)
	require.Equal(t, "Your payout of 125.50 usd was not completed. Reason: account closed", sender.sent[0].Body)

	// redelivery of the same event is acknowledged without a second notification
	result = consumer.process(context.Background(), msg)
	require.False(t, result.nack)
	require.Len(t, sender.sent, 1)
}

func TestConsumerNotifiesOnboardedSeller(t *testing.T) {
	sellerID, userID := uuid.New(), uuid.New()
	sellers := stubSellers{sellers: map[uuid.UUID]*models.Seller{sellerID: {ID: sellerID, UserID: userID}}}
	consumer, sender := newTestConsumer(t, sellers, &markerStore{keys: map[string]bool{}})

	msg := domainMessage(t, enums.EventSellerOnboarded, "evt-2", payloads.SellerOnboardedEvent{
		SellerID:       sellerID,
		PayoutsEnabled: true,
	})
	require.False(t, consumer.process(context.Background(), msg).nack)
	require.Len(t, sender.sent, 1)
	require.Equal(t, enums.NotificationTypeSellerOnboarded, sender.sent[0].Type)
}

func TestConsumerSkipsOrderEvents(t *testing.T) {
	store := &markerStore{keys: map[string]bool{}}
	consumer, sender := newTestConsumer(t, stubSellers{}, store)

	msg := domainMessage(t, enums.EventOrderPaid, "evt-3", map[string]any{"order_id": uuid.NewString()})
	require.False(t, consumer.process(context.Background(), msg).nack)
	require.Empty(t, sender.sent)
	require.Empty(t, store.keys)
}

func TestConsumerNacksAndClearsMarkerWhenSellerMissing(t *testing.T) {
	store := &markerStore{keys: map[string]bool{}}
	consumer, sender := newTestConsumer(t, stubSellers{}, store)

	msg := domainMessage(t, enums.EventPayoutRequested, "evt-4", payloads.PayoutEvent{
		PayoutID: uuid.New(),
		SellerID: uuid.New(),
	})
	require.True(t, consumer.process(context.Background(), msg).nack)
	require.Empty(t, sender.sent)
	require.Equal(t, []string{"mc:idempotency:seller-notifications:evt-4"}, store.freed)
}

func TestConsumerNacksWhenMarkerStoreDown(t *testing.T) {
	consumer, _ := newTestConsumer(t, stubSellers{}, &markerStore{keys: map[string]bool{}, err: errors.New("redis down")})
	msg := domainMessage(t, enums.EventPayoutRequested, "evt-5", payloads.PayoutEvent{SellerID: uuid.New()})
	require.True(t, consumer.process(context.Background(), msg).nack)
}

func TestConsumerAcksMalformedPayload(t *testing.T) {
	store := &markerStore{keys: map[string]bool{}}
	consumer, sender := newTestConsumer(t, stubSellers{}, store)

	msg := domainMessage(t, enums.EventPayoutFailed, "evt-6", "not an object")
	require.False(t, consumer.process(context.Background(), msg).nack)
	require.Empty(t, sender.sent)

	garbage := &pubsub.Message{ID: "msg-x", Data: []byte("{"), Attributes: map[string]string{"event_type": string(enums.EventPayoutFailed)}}
	require.False(t, consumer.process(context.Background(), garbage).nack)
	require.Empty(t, store.freed)
}
