package main

import (
	"fmt"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/outbox"
)

type nonRetryableError struct {
	err error
}

func (e nonRetryableError) Error() string {
	if e.err == nil {
		return "non-retryable outbox error"
	}
	return e.err.Error()
}

func (e nonRetryableError) Unwrap() error {
	return e.err
}

// resolveEnvelope opens the stored payload and rejects rows no consumer could
// route. Every failure is permanent.
func resolveEnvelope(event models.OutboxEvent) (outbox.Envelope, error) {
	if !event.EventType.IsValid() {
		return outbox.Envelope{}, nonRetryableError{err: fmt.Errorf("unknown event type %q", event.EventType)}
	}
	if !event.AggregateType.IsValid() {
		return outbox.Envelope{}, nonRetryableError{err: fmt.Errorf("unknown aggregate type %q", event.AggregateType)}
	}
	envelope, err := outbox.Open(event.Payload)
	if err != nil {
		return envelope, nonRetryableError{err: err}
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return envelope, nonRetryableError{err: fmt.Errorf("envelope type %q does not match row type %q", envelope.EventType, event.EventType)}
	}
	return envelope, nil
}
