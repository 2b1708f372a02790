// Package outbox stores domain events next to the rows they describe so the
// relay can publish them after commit.
package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CurrentVersion is the envelope schema written by Emit.
const CurrentVersion = 1

// eventNamespace seeds deterministic event ids for keyed events.
var eventNamespace = uuid.MustParse("5d1f3c1e-8a4b-4f0e-9c7a-2b6f0d9e4a11")

// ActorRef identifies who caused the event. Nil for system jobs.
type ActorRef struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Role   string     `json:"role,omitempty"`
}

// Envelope is the JSON stored in outbox_events.payload and published as the
// Pub/Sub message body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e Envelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ParseEnvelope decodes a stored payload.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if !env.HasData() {
		return Envelope{}, errors.New("envelope has no data")
	}
	return env, nil
}

// DomainEvent is what services hand to Emit.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
	// Key makes the event id deterministic: the same type and key always
	// yield the same id, so consumers dedupe re-emitted events.
	Key string
}

func (e DomainEvent) eventID() uuid.UUID {
	if e.Key == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(eventNamespace, []byte(string(e.EventType)+"|"+e.Key))
}
