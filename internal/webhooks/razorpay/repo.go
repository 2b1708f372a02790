package razorpaywebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ErrAlreadyProcessed is returned by MarkProcessed when another delivery of
// the same event already completed.
var ErrAlreadyProcessed = errors.New("webhook event already processed")

// LogRepository persists the append-only webhook log.
type LogRepository interface {
	WithTx(tx *gorm.DB) LogRepository
	InsertOrGet(ctx context.Context, entry *models.PaymentWebhookLog) (*models.PaymentWebhookLog, bool, error)
	SetSignatureValid(ctx context.Context, id uuid.UUID, valid bool) error
	MarkProcessed(ctx context.Context, id uuid.UUID, processingError *string, at time.Time) error
	RecordError(ctx context.Context, id uuid.UUID, message string) error
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// PaymentRepository covers the transaction and order writes driven by callbacks.
type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	FindTransactionByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PaymentTransaction, error)
	FindTransactionByPaymentID(ctx context.Context, paymentID string) (*models.PaymentTransaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, amountPaid decimal.Decimal, paidAt time.Time) (bool, error)
	MarkOrderPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
	SetOrderRefundStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) (bool, error)
}

type logRepository struct {
	db *gorm.DB
}

func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) WithTx(tx *gorm.DB) LogRepository {
	if tx == nil {
		return r
	}
	return &logRepository{db: tx}
}

// InsertOrGet inserts entry unless a row with the same event id exists. It
// returns the stored row and whether this call created it.
func (r *logRepository) InsertOrGet(ctx context.Context, entry *models.PaymentWebhookLog) (*models.PaymentWebhookLog, bool, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return entry, true, nil
	}
	var existing models.PaymentWebhookLog
	if err := r.db.WithContext(ctx).First(&existing, "event_id = ?", entry.EventID).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *logRepository) SetSignatureValid(ctx context.Context, id uuid.UUID, valid bool) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentWebhookLog{}).
		Where("id = ?", id).
		Update("signature_valid", valid).Error
}

// MarkProcessed flips the row once. Losing the race to a concurrent delivery
// yields ErrAlreadyProcessed so the caller's transaction rolls back.
func (r *logRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processingError *string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentWebhookLog{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]any{
			"processed":        true,
			"processed_at":     at,
			"processing_error": processingError,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (r *logRepository) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentWebhookLog{}).
		Where("id = ?", id).
		Update("processing_error", truncate(message, 1024)).Error
}

// PurgeProcessedBefore deletes at most limit processed rows older than cutoff.
func (r *logRepository) PurgeProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	sub := r.db.Model(&models.PaymentWebhookLog{}).
		Select("id").
		Where("processed = ? AND created_at < ?", true, cutoff).
		Order("created_at").
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", sub).Delete(&models.PaymentWebhookLog{})
	return res.RowsAffected, res.Error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	if tx == nil {
		return r
	}
	return &paymentRepository{db: tx}
}

func (r *paymentRepository) FindTransactionByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&txn, "provider_order_id = ?", providerOrderID).Error
	if err != nil {
		return nil, transactionNotFound(err)
	}
	return &txn, nil
}

func (r *paymentRepository) FindTransactionByPaymentID(ctx context.Context, paymentID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&txn, "provider_payment_id = ?", paymentID).Error
	if err != nil {
		return nil, transactionNotFound(err)
	}
	return &txn, nil
}

func (r *paymentRepository) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *paymentRepository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid settles only pending or failed payments, so a later capture
// never overwrites a paid or refunded order. A pending order is confirmed.
func (r *paymentRepository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, amountPaid decimal.Decimal, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE orders SET payment_status = ?, order_status = CASE WHEN order_status = ? THEN ? ELSE order_status END,
		amount_paid = ?, paid_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND payment_status IN ?`,
		enums.PaymentStatusPaid, enums.OrderStatusPending, enums.OrderStatusConfirmed,
		amountPaid, paidAt, orderID, enums.PayablePaymentStatuses(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkOrderPaymentFailed only moves pending orders.
func (r *paymentRepository) MarkOrderPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Update("payment_status", enums.PaymentStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRepository) SetOrderRefundStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", orderID, enums.RefundablePaymentStatuses()).
		Update("payment_status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func transactionNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
