package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/enums"
)

// CurrentVersion is the envelope layout written by Emit.
const CurrentVersion = 1

// ErrMalformed marks an envelope no consumer can act on. Redelivery will not fix it.
var ErrMalformed = errors.New("malformed outbox envelope")

// ActorRef identifies who caused the event.
type ActorRef struct {
	UserID   uuid.UUID  `json:"userId"`
	SellerID *uuid.UUID `json:"sellerId,omitempty"`
	Role     string     `json:"role,omitempty"`
}

// Envelope is the JSON body stored in outbox_events.payload and published
// verbatim as the message data.
type Envelope struct {
	Version     int                   `json:"version"`
	EventID     string                `json:"eventId"`
	EventType   enums.OutboxEventType `json:"eventType,omitempty"`
	AggregateID uuid.UUID             `json:"aggregateId"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Actor       *ActorRef             `json:"actor,omitempty"`
	Data        json.RawMessage       `json:"data"`
}

// Open decodes raw and checks the fields every consumer relies on. Failures wrap
// ErrMalformed.
func Open(raw []byte) (Envelope, error) {
	var env Envelope
	if len(raw) == 0 {
		return env, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case env.EventID == "":
		return env, fmt.Errorf("%w: missing event id", ErrMalformed)
	case env.Version <= 0 || env.Version > CurrentVersion:
		return env, fmt.Errorf("%w: unsupported version %d", ErrMalformed, env.Version)
	}
	return env, nil
}

// Unpack decodes the envelope data into T.
func Unpack[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%w: event %s has no data", ErrMalformed, env.EventID)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%w: event %s data: %v", ErrMalformed, env.EventID, err)
	}
	return out, nil
}
