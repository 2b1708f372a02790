package discounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists discounts and their redemptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, discount *models.Discount) (*models.Discount, error)
	FindByCode(ctx context.Context, code string) (*models.Discount, error)
	CountUsageByCustomer(ctx context.Context, discountID, customerID uuid.UUID) (int64, error)
	CountUsageSince(ctx context.Context, discountID uuid.UUID, since time.Time) (int64, error)
	CountPaidOrders(ctx context.Context, customerID uuid.UUID) (int64, error)
	IncrementUsage(ctx context.Context, discountID uuid.UUID) (bool, error)
	InsertUsage(ctx context.Context, usage *models.DiscountUsage) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, discount *models.Discount) (*models.Discount, error) {
	if discount.ID == uuid.Nil {
		discount.ID = uuid.New()
	}
	discount.Code = normalizeCode(discount.Code)
	if err := r.db.WithContext(ctx).Create(discount).Error; err != nil {
		return nil, err
	}
	return discount, nil
}

// FindByCode matches case-insensitively; it returns nil, nil when no row exists.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.Discount, error) {
	var discount models.Discount
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", normalizeCode(code)).
		First(&discount).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &discount, nil
}

func (r *repository) CountUsageByCustomer(ctx context.Context, discountID, customerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ? AND customer_id = ?", discountID, customerID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUsageSince(ctx context.Context, discountID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DiscountUsage{}).
		Where("discount_id = ? AND used_at >= ?", discountID, since).
		Count(&count).Error
	return count, err
}

func (r *repository) CountPaidOrders(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ? AND payment_status IN ?", customerID, enums.CapturedPaymentStatuses()).
		Count(&count).Error
	return count, err
}

// IncrementUsage bumps usage_count only while it is under usage_limit.
func (r *repository) IncrementUsage(ctx context.Context, discountID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		"UPDATE discounts SET usage_count = usage_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)",
		discountID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertUsage(ctx context.Context, usage *models.DiscountUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(usage).Error
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
