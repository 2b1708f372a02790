package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention     = 30 * 24 * time.Hour
	defaultWebhookLogRetention = 90 * 24 * time.Hour
	webhookPurgeBatch          = 500
	webhookPurgeMaxBatches     = 20
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type webhookLogPurger interface {
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// purgePass deletes rows older than cutoff and reports whether a full slice
// was removed, meaning more may remain.
type purgePass func(ctx context.Context, cutoff time.Time) (deleted int64, full bool, err error)

// retention is a job that deletes rows older than now-window, one pass at a
// time, for at most passes passes per run.
type retention struct {
	name   string
	logg   *logger.Logger
	window time.Duration
	passes int
	pass   purgePass
	now    func() time.Time
}

func (j *retention) Name() string { return j.name }

func (j *retention) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	var total int64
	for range j.passes {
		deleted, full, err := j.pass(ctx, cutoff)
		total += deleted
		if err != nil {
			return fmt.Errorf("%s: %w", j.name, err)
		}
		if !full {
			break
		}
	}
	if total > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": total,
		}), "retention purge complete")
	}
	return nil
}

func newRetention(name string, logg *logger.Logger, window, fallback time.Duration, passes int, pass purgePass) (Job, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if window <= 0 {
		window = fallback
	}
	return &retention{name: name, logg: logg, window: window, passes: passes, pass: pass, now: time.Now}, nil
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPurger
	Retention  time.Duration
	// TerminalAttempts matches the publisher's attempt ceiling; rows parked
	// there are eligible once they age past the cutoff.
	TerminalAttempts int
}

// NewOutboxRetentionJob removes published and parked outbox rows in one
// transaction per run.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	if p.DB == nil || p.Repository == nil {
		return nil, errors.New("db runner and outbox repository required")
	}
	return newRetention("outbox-retention", p.Logger, p.Retention, defaultOutboxRetention, 1,
		func(ctx context.Context, cutoff time.Time) (int64, bool, error) {
			var deleted int64
			err := p.DB.WithTx(ctx, func(tx *gorm.DB) error {
				n, err := p.Repository.Purge(ctx, tx, cutoff, p.TerminalAttempts)
				deleted = n
				return err
			})
			return deleted, false, err
		})
}

type WebhookLogRetentionJobParams struct {
	Logger    *logger.Logger
	Logs      webhookLogPurger
	Retention time.Duration
}

// NewWebhookLogRetentionJob deletes processed webhook logs in batches.
// Unprocessed rows are kept for replay.
func NewWebhookLogRetentionJob(p WebhookLogRetentionJobParams) (Job, error) {
	if p.Logs == nil {
		return nil, errors.New("webhook log repository required")
	}
	return newRetention("webhook-log-retention", p.Logger, p.Retention, defaultWebhookLogRetention, webhookPurgeMaxBatches,
		func(ctx context.Context, cutoff time.Time) (int64, bool, error) {
			n, err := p.Logs.PurgeProcessedBefore(ctx, cutoff, webhookPurgeBatch)
			return n, n >= webhookPurgeBatch, err
		})
}
