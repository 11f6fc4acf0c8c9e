package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/config"
	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/logger"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		orderEvent(t, enums.EventOrderCreated, "event-one", 0),
		orderEvent(t, enums.EventOrderPaid, "event-two", 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	assert.Empty(t, repo.terminal, "transient failure must stay retryable")
}

func TestPublishCarriesRoutingAttributes(t *testing.T) {
	event := orderEvent(t, enums.EventOrderReady, "ready-1", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, nil)
	var topics []string
	service.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"marketcart-domain"}, topics)
	require.Len(t, pub.sent, 1)

	msg := pub.sent[0]
	assert.Equal(t, string(enums.EventOrderReady), msg.Attributes["event_type"])
	assert.Equal(t, "ready-1", msg.Attributes["event_id"])
	assert.Equal(t, event.AggregateID.String(), msg.OrderingKey)
	assert.Len(t, repo.published, 1)
}

func TestServiceProcessBatchParksUndecodableEnvelope(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCreated, "broken", 0)
	event.Payload = json.RawMessage(`{"version":`)
	unknown := orderEvent(t, enums.OutboxEventType("order.teleported"), "unknown", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event, unknown}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Len(t, repo.terminal, 2)
	assert.Equal(t, 5, repo.terminalAttempts, "rows park at the attempt ceiling")
	assert.Empty(t, pub.sent)
}

func TestServiceProcessBatchParksOnMaxAttempts(t *testing.T) {
	event := orderEvent(t, enums.EventPayoutRequested, "max-attempts", 1)
	event.AggregateType = enums.AggregatePayout
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	service := newTestService(t, repo, pub, &config.OutboxConfig{BatchSize: 1, PollIntervalMS: 100, MaxAttempts: 2})

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	assert.Empty(t, repo.failed, "parked rows are not also marked failed")
}

func TestServiceParksWhenPublisherMissing(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, enums.EventOrderCreated, "no-publisher", 0)}}
	service := newTestService(t, repo, nil, nil)
	service.publisherFactory = func(string) publisher { return nil }

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, repo.terminal, 1)
}

func TestDefaultFactoryWithoutTopicPublisher(t *testing.T) {
	service, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.Nop(),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{topic: "marketcart-domain"},
		Repository: &fakeRepo{},
	})
	require.NoError(t, err)
	assert.Nil(t, service.publisherFactory("marketcart-domain"))
}

func TestResumeOnErrorResumesOnlyFailedKeys(t *testing.T) {
	resumed := 0
	ok := resumeOnError{result: fakePublishResult{}, resume: func() { resumed++ }}
	_, err := ok.Get(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resumed)

	failed := resumeOnError{result: fakePublishResult{err: errors.New("deadline")}, resume: func() { resumed++ }}
	_, err = failed.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, resumed)
}

func TestSettingsFromConfig(t *testing.T) {
	defaults := settingsFrom(config.OutboxConfig{})
	assert.Equal(t, settings{batchSize: 50, maxAttempts: 10, pollInterval: 500 * time.Millisecond}, defaults)

	custom := settingsFrom(config.OutboxConfig{BatchSize: 5, MaxAttempts: 3, PollIntervalMS: 20})
	assert.Equal(t, settings{batchSize: 5, maxAttempts: 3, pollInterval: 20 * time.Millisecond}, custom)
}

func TestRunStopsWhenPubSubUnreachable(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, nil)
	service.pubsub = &fakePubSubClient{topic: "marketcart-domain", pingErr: errors.New("permission denied")}

	err := service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub ping failed")
}

func TestNextBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, nextBackoff(0, base, time.Second))
	assert.Equal(t, time.Second, nextBackoff(800*time.Millisecond, base, time.Second))
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{topic: "marketcart-domain"},
		Repository:       repo,
		PublisherFactory: func(string) publisher { return pub },
	})
	require.NoError(t, err)
	return service
}

func orderEvent(tb testing.TB, eventType enums.OutboxEventType, eventID string, attempts int) models.OutboxEvent {
	tb.Helper()
	payload, err := json.Marshal(outbox.Envelope{
		Version:    outbox.CurrentVersion,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(tb, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct {
	topic   string
	pingErr error
}

func (f *fakePubSubClient) Ping(context.Context) error { return f.pingErr }

func (f *fakePubSubClient) DomainTopic() string { return f.topic }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}
