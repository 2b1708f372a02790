package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var errNoTx = errors.New("outbox: transaction required")

// Writer appends events inside the caller's transaction.
type Writer struct {
	store *Store
	logg  *logger.Logger
	now   func() time.Time
}

func NewWriter(store *Store, logg *logger.Logger) *Writer {
	return &Writer{store: store, logg: logg, now: time.Now}
}

// Emit queues the event. It commits or rolls back with tx.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("outbox: %s without aggregate id", event.EventType)
	}
	row, envelope, err := w.build(event)
	if err != nil {
		return err
	}
	if err := w.store.Append(tx, row); err != nil {
		return fmt.Errorf("outbox: append %s: %w", event.EventType, err)
	}
	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitOnce queues the event unless one of the same type already exists for
// the aggregate. Payment confirmations use it so a replayed capture does not
// request a second invoice.
func (w *Writer) EmitOnce(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	queued, err := w.store.Has(tx, event.EventType, event.AggregateID)
	if err != nil {
		return err
	}
	if queued {
		return nil
	}
	return w.Emit(ctx, tx, event)
}

func (w *Writer) build(event DomainEvent) (models.OutboxEvent, Envelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: encode %s: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = w.now()
	}
	id := event.eventID()
	envelope := Envelope{
		Version:    CurrentVersion,
		EventID:    id.String(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, err
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, envelope, nil
}
