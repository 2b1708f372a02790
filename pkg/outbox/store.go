package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const maxErrorLen = 1024

// Store owns outbox_events and outbox_dlq. Methods taking tx never open
// their own transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(tx *gorm.DB, row models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return tx.Create(&row).Error
}

// Has reports whether an event of this type was ever queued for the aggregate.
func (s *Store) Has(tx *gorm.DB, eventType enums.OutboxEventType, aggregateID uuid.UUID) (bool, error) {
	var n int64
	err := tx.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// Claim locks up to limit unpublished rows below the attempt ceiling, oldest
// first. Concurrent relays skip rows another relay holds.
func (s *Store) Claim(tx *gorm.DB, limit, ceiling int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL")
	if ceiling > 0 {
		q = q.Where("attempt_count < ?", ceiling)
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at, id").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) MarkSent(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Update("published_at", time.Now().UTC()).Error
}

// RecordFailure bumps the attempt counter and keeps the last error.
func (s *Store) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    clip(cause),
		}).Error
}

// Park copies the row into outbox_dlq and pins its attempt count at the
// ceiling so Claim never returns it again.
func (s *Store) Park(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxParkReason, cause error, ceiling int) error {
	if tx == nil {
		return errNoTx
	}
	msg := clip(cause)
	entry := models.OutboxDLQEntry{
		ID:            uuid.New(),
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		Reason:        reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	attempts := ceiling
	if attempts <= row.AttemptCount {
		attempts = row.AttemptCount + 1
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"attempt_count": attempts,
			"last_error":    msg,
		}).Error
}

// Purge deletes published rows and parked rows created before cutoff.
func (s *Store) Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, ceiling int) (int64, error) {
	if tx == nil {
		return 0, errNoTx
	}
	q := tx.WithContext(ctx).Where("published_at IS NOT NULL AND published_at < ?", cutoff)
	if ceiling > 0 {
		q = q.Or("published_at IS NULL AND attempt_count >= ? AND created_at < ?", ceiling, cutoff)
	}
	res := q.Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// Parked returns the DLQ copy of an outbox row, or nil.
func (s *Store) Parked(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQEntry, error) {
	var entry models.OutboxDLQEntry
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func clip(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
