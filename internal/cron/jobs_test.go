package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
)

type fakeSweeper struct {
	result cart.SweepResult
	err    error
	calls  int
}

func (f *fakeSweeper) CleanupExpiredCartReservations(context.Context) (cart.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

func TestReservationExpiryJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{result: cart.SweepResult{Carts: 2, Holds: 3, Units: 7}}
	job, err := NewReservationExpiryJob(testLogger(), sweeper)
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "cart-reservation-expiry", job.Name())
	assert.Equal(t, 1, sweeper.calls)
}

func TestReservationExpiryJobSurfacesPartialFailure(t *testing.T) {
	sweepErr := multierr.Combine(errors.New("cart a: locked"), errors.New("cart b: locked"))
	sweeper := &fakeSweeper{result: cart.SweepResult{Carts: 1, Holds: 1, Units: 2}, err: sweepErr}
	job, err := NewReservationExpiryJob(testLogger(), sweeper)
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(errors.Unwrap(err)), 2)
}

func TestNewReservationExpiryJobValidates(t *testing.T) {
	_, err := NewReservationExpiryJob(nil, &fakeSweeper{})
	assert.Error(t, err)
	_, err = NewReservationExpiryJob(testLogger(), nil)
	assert.Error(t, err)
}

type fakePurger struct {
	batches []int64
	cutoffs []time.Time
	limits  []int
	err     error
}

func (f *fakePurger) PurgeProcessedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func newWebhookJob(t *testing.T, purger *fakePurger, window time.Duration, now time.Time) *retention {
	t.Helper()
	job, err := NewWebhookLogRetentionJob(WebhookLogRetentionJobParams{
		Logger:    testLogger(),
		Logs:      purger,
		Retention: window,
	})
	require.NoError(t, err)
	concrete := job.(*retention)
	concrete.now = func() time.Time { return now }
	return concrete
}

func TestWebhookLogRetentionJobPurgesInBatches(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	purger := &fakePurger{batches: []int64{webhookPurgeBatch, webhookPurgeBatch, 12}}
	job := newWebhookJob(t, purger, 48*time.Hour, now)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, purger.cutoffs, 3)
	assert.Equal(t, now.Add(-48*time.Hour), purger.cutoffs[0])
	assert.Equal(t, webhookPurgeBatch, purger.limits[0])
}

func TestWebhookLogRetentionJobCapsBatches(t *testing.T) {
	batches := make([]int64, webhookPurgeMaxBatches+5)
	for i := range batches {
		batches[i] = webhookPurgeBatch
	}
	purger := &fakePurger{batches: batches}
	job := newWebhookJob(t, purger, 0, time.Now())

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, purger.cutoffs, webhookPurgeMaxBatches)
	assert.Equal(t, defaultWebhookLogRetention, job.window)
}

func TestWebhookLogRetentionJobPropagatesError(t *testing.T) {
	job := newWebhookJob(t, &fakePurger{err: errors.New("boom")}, time.Hour, time.Now())
	assert.Error(t, job.Run(context.Background()))
}

type fakeOutboxRetentionRepo struct {
	cutoff           time.Time
	terminalAttempts int
	calls            int
	err              error
}

func (f *fakeOutboxRetentionRepo) Purge(_ context.Context, _ *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.terminalAttempts = terminalAttempts
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type nopTxRunner struct{}

func (nopTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newOutboxJob(t *testing.T, repo *fakeOutboxRetentionRepo) *retention {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:           testLogger(),
		DB:               nopTxRunner{},
		Repository:       repo,
		TerminalAttempts: 10,
	})
	require.NoError(t, err)
	return job.(*retention)
}

func TestOutboxRetentionJobDeletesSettledRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxJob(t, repo)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, now.Add(-defaultOutboxRetention), repo.cutoff)
	assert.Equal(t, 10, repo.terminalAttempts)
	assert.Equal(t, "outbox-retention", job.Name())
}

func TestRetentionJobsRequireDeps(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(), DB: nopTxRunner{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{DB: nopTxRunner{}, Repository: &fakeOutboxRetentionRepo{}})
	assert.Error(t, err)
	_, err = NewWebhookLogRetentionJob(WebhookLogRetentionJobParams{Logger: testLogger()})
	assert.Error(t, err)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxJob(t, &fakeOutboxRetentionRepo{err: errors.New("boom")})
	assert.Error(t, job.Run(context.Background()))
}
