package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

// processBatch claims one batch inside a transaction and records the outcome of
// every row before commit. It reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := s.relay(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed > 0, err
}

// relay publishes one row and marks it. Only bookkeeping errors are returned;
// publish failures are recorded on the row.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	envelope, err := resolveEnvelope(event)
	if err == nil {
		err = s.publish(ctx, event, envelope)
	}
	result, cause := s.classify(event, err)

	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"topic":          s.topic,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	logCtx := s.logg.WithFields(ctx, fields)

	switch result {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.logg.Warn(logCtx, "outbox publish failed")
	case outcomeParked:
		if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.logg.Warn(logCtx, "outbox event will not be retried")
	}
	return nil
}

func (s *Service) classify(event models.OutboxEvent, err error) (outcome, error) {
	if err == nil {
		return outcomePublished, nil
	}
	var permanent nonRetryableError
	if errors.As(err, &permanent) {
		return outcomeParked, err
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return outcomeParked, fmt.Errorf("max publish attempts reached: %w", err)
	}
	return outcomeRetry, err
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, envelope outbox.Envelope) error {
	pub := s.publisherFactory(s.topic)
	if pub == nil {
		return nonRetryableError{err: fmt.Errorf("publisher not configured for topic %s", s.topic)}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return nonRetryableError{err: fmt.Errorf("publisher returned nil for topic %s", s.topic)}
	}
	_, err := result.Get(ctx)
	return err
}
