package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/routing"
)

const (
	sendTimeout  = 15 * time.Second
	maxPause     = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

var errBreakerOpen = errors.New("pubsub circuit breaker open")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type relayStore interface {
	Claim(tx *gorm.DB, limit, ceiling int) ([]models.OutboxEvent, error)
	MarkSent(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxParkReason, cause error, ceiling int) error
}

type router interface {
	Route(row models.OutboxEvent) (*routing.Routed, error)
}

// sender publishes one message and waits for the server ack.
type sender interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type outcome int

const (
	sent outcome = iota
	retried
	parked
	halted
)

// Relay moves committed outbox rows to Pub/Sub. Each batch runs in one
// transaction holding row locks, so two relays never send the same row.
type Relay struct {
	tx      txRunner
	store   relayStore
	router  router
	sender  sender
	breaker *gobreaker.CircuitBreaker[struct{}]
	metrics *metrics.OutboxMetrics
	logg    *logger.Logger

	batch   int
	ceiling int
	poll    time.Duration
}

type RelayDeps struct {
	TX      txRunner
	Store   relayStore
	Router  router
	Sender  sender
	Metrics *metrics.OutboxMetrics
	Logger  *logger.Logger
}

func NewRelay(cfg config.OutboxConfig, deps RelayDeps) (*Relay, error) {
	switch {
	case deps.TX == nil:
		return nil, errors.New("relay: transaction runner required")
	case deps.Store == nil:
		return nil, errors.New("relay: outbox store required")
	case deps.Router == nil:
		return nil, errors.New("relay: routing table required")
	case deps.Sender == nil:
		return nil, errors.New("relay: sender required")
	case deps.Logger == nil:
		return nil, errors.New("relay: logger required")
	}
	r := &Relay{
		tx:      deps.TX,
		store:   deps.Store,
		router:  deps.Router,
		sender:  deps.Sender,
		metrics: deps.Metrics,
		logg:    deps.Logger,
		batch:   positive(cfg.BatchSize, 50),
		ceiling: positive(cfg.MaxAttempts, 10),
		poll:    time.Duration(positive(cfg.PollIntervalMS, 500)) * time.Millisecond,
	}
	r.breaker = r.newBreaker(cfg)
	return r, nil
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// newBreaker opens when at least BreakerMinRequests sends in the current
// interval fail at BreakerFailureRatio or worse. Permanent errors are the
// row's fault, not the broker's, and count as successes.
func (r *Relay) newBreaker(cfg config.OutboxConfig) *gobreaker.CircuitBreaker[struct{}] {
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	openFor := cfg.BreakerOpenTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "outbox-pubsub",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minRequests && float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || routing.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logg.Warn(r.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}), "circuit breaker state change")
		},
	})
}

// Run drains the outbox until ctx ends. Full batches loop immediately; an
// empty poll waits the poll interval and failures back off up to maxPause.
func (r *Relay) Run(ctx context.Context) error {
	pace := pacer{base: r.poll, max: maxPause}
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = pace.failed()
		case n == 0:
			wait = pace.idle()
		default:
			pace.reset()
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drain sends one batch and returns how many rows it claimed. Rows handled
// before the breaker opened still commit.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var claimed int
	stopped := false
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.batch, r.ceiling)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		claimed = len(rows)
		for _, row := range rows {
			result, err := r.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			if result == halted {
				stopped = true
				break
			}
		}
		return nil
	})
	if err == nil && stopped {
		err = errBreakerOpen
	}
	return claimed, err
}

func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
		"attempt":      row.AttemptCount + 1,
	})

	routed, err := r.router.Route(row)
	if err != nil {
		return r.park(logCtx, tx, row, enums.ParkUndeliverable, err)
	}
	logCtx = r.logg.WithField(logCtx, "event_id", routed.Envelope.EventID)

	_, err = r.breaker.Execute(func() (struct{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return struct{}{}, r.sender.Send(sendCtx, routed.Topic, message(row, routed))
	})
	switch {
	case err == nil:
		if err := r.store.MarkSent(tx, row.ID); err != nil {
			return sent, fmt.Errorf("mark sent %s: %w", row.ID, err)
		}
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Debug(logCtx, "outbox event published")
		return sent, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return halted, nil
	case routing.IsPermanent(err):
		return r.park(logCtx, tx, row, enums.ParkUndeliverable, err)
	case row.Exhausted(r.ceiling):
		return r.park(logCtx, tx, row, enums.ParkAttemptsExhausted, err)
	}

	r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed, will retry")
	r.metrics.IncFailed(string(row.EventType))
	if err := r.store.RecordFailure(tx, row.ID, err); err != nil {
		return retried, fmt.Errorf("record failure %s: %w", row.ID, err)
	}
	return retried, nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxParkReason, cause error) (outcome, error) {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"park_reason": reason,
		"error":       cause.Error(),
	}), "outbox event parked")
	if err := r.store.Park(tx, row, reason, cause, r.ceiling); err != nil {
		return parked, fmt.Errorf("park %s: %w", row.ID, err)
	}
	r.metrics.IncDLQ(string(row.EventType), string(reason))
	return parked, nil
}

func message(row models.OutboxEvent, routed *routing.Routed) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       routed.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// pacer doubles the wait after each failed batch, capped at max.
type pacer struct {
	base, max, cur time.Duration
}

func (p *pacer) reset() { p.cur = 0 }

func (p *pacer) idle() time.Duration {
	p.cur = 0
	return withJitter(p.base)
}

func (p *pacer) failed() time.Duration {
	if p.cur == 0 {
		p.cur = p.base
	}
	p.cur = min(p.cur*2, p.max)
	return withJitter(p.cur)
}

func withJitter(d time.Duration) time.Duration {
	return d + rand.N(jitterWindow)
}

// topicSender publishes through cached Pub/Sub publishers.
type topicSender struct {
	publisher func(topic string) *gcppubsub.Publisher

	mu    sync.Mutex
	cache map[string]*gcppubsub.Publisher
}

func newTopicSender(publisher func(topic string) *gcppubsub.Publisher) *topicSender {
	return &topicSender{publisher: publisher, cache: map[string]*gcppubsub.Publisher{}}
}

func (s *topicSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.lookup(topic)
	if pub == nil {
		return routing.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}

func (s *topicSender) lookup(topic string) *gcppubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.cache[topic]; ok {
		return pub
	}
	pub := s.publisher(topic)
	if pub != nil {
		s.cache[topic] = pub
	}
	return pub
}

// Stop flushes every cached publisher.
func (s *topicSender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pub := range s.cache {
		pub.Stop()
	}
}
