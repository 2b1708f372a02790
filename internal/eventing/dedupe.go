package eventing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Deduper remembers which event ids a consumer has taken, in Redis, for ttl.
// Keys look like sf:idempotency:consumer:<name>:<event id>.
type Deduper struct {
	store claimStore
	ttl   time.Duration
}

func NewDeduper(store claimStore, ttl time.Duration) (*Deduper, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("dedupe ttl must be positive")
	}
	return &Deduper{store: store, ttl: ttl}, nil
}

// Claim returns true when this call is the first to take the event.
func (d *Deduper) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := d.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return d.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl)
}

// Release drops a claim so a redelivery can retry the event.
func (d *Deduper) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := d.key(consumer, eventID)
	if err != nil {
		return err
	}
	return d.store.Del(ctx, key)
}

func (d *Deduper) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return d.store.IdempotencyKey("consumer:"+consumer, eventID.String()), nil
}
