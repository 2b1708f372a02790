// Package eventing drains outbox events from a Pub/Sub subscription and hands
// each envelope to a handler exactly once per consumer.
package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Envelope is the decoded form of a published outbox row.
type Envelope struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// Handler processes one envelope. Returning an error nacks the message.
type Handler interface {
	Handle(ctx context.Context, envelope Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type WorkerParams struct {
	Name         string
	Subscription receiver
	Handler      Handler
	Dedupe       claimer
	Logger       *logger.Logger
}

// Worker consumes one subscription on behalf of one named consumer.
type Worker struct {
	name         string
	subscription receiver
	handler      Handler
	dedupe       claimer
	logg         *logger.Logger
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, errors.New("consumer name is required")
	}
	if params.Subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Dedupe == nil {
		return nil, errors.New("dedupe is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Worker{
		name:         strings.TrimSpace(params.Name),
		subscription: params.Subscription,
		handler:      params.Handler,
		dedupe:       params.Dedupe,
		logg:         params.Logger,
	}, nil
}

type verdict int

const (
	ack verdict = iota
	nack
)

// Run blocks until the context is canceled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if w.process(innerCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process acks malformed messages; redelivery would never fix them.
func (w *Worker) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	fields := map[string]any{"consumer": w.name, "message_id": msg.ID}
	logCtx := w.logg.WithFields(ctx, fields)

	envelope, err := DecodeMessage(msg)
	if err != nil {
		logCtx = w.logg.WithField(logCtx, "error", err.Error())
		w.logg.Warn(logCtx, "invalid event envelope")
		return ack
	}
	logCtx = w.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID.String(),
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
	})

	first, err := w.dedupe.Claim(logCtx, w.name, envelope.EventID)
	if err != nil {
		w.logg.Error(logCtx, "dedupe claim failed", err)
		return nack
	}
	if !first {
		w.logg.Info(logCtx, "duplicate delivery skipped")
		return ack
	}

	if err := w.handler.Handle(logCtx, *envelope); err != nil {
		w.logg.Error(logCtx, "handler error", err)
		if releaseErr := w.dedupe.Release(logCtx, w.name, envelope.EventID); releaseErr != nil {
			w.logg.Error(logCtx, "dedupe release failed", releaseErr)
		}
		return nack
	}
	w.logg.Debug(logCtx, "event handled")
	return ack
}

// DecodeMessage rebuilds the envelope from the message body and the
// attributes set by the outbox publisher.
func DecodeMessage(msg *gcppubsub.Message) (*Envelope, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}
	stored, err := outbox.ParseEnvelope(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       stored.Version,
		OccurredAt:    stored.OccurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
