package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Discount is a redeemable promotion code.
type Discount struct {
	ID                  uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Code                string                    `gorm:"column:code;not null;uniqueIndex"`
	Type                enums.DiscountType        `gorm:"column:type;type:text;not null"`
	Value               decimal.Decimal           `gorm:"column:value;type:numeric(12,2);not null"`
	MaxDiscountAmount   *decimal.Decimal          `gorm:"column:max_discount_amount;type:numeric(12,2)"`
	IsActive            bool                      `gorm:"column:is_active;not null"`
	StartsAt            *time.Time                `gorm:"column:starts_at"`
	EndsAt              *time.Time                `gorm:"column:ends_at"`
	UsageLimit          *int                      `gorm:"column:usage_limit"`
	UsageCount          int                       `gorm:"column:usage_count;not null;default:0"`
	PerCustomerLimit    *int                      `gorm:"column:per_customer_limit"`
	DailyLimit          *int                      `gorm:"column:daily_limit"`
	MinPurchaseAmount   *decimal.Decimal          `gorm:"column:min_purchase_amount;type:numeric(12,2)"`
	MinQuantity         *int                      `gorm:"column:min_quantity"`
	CustomerEligibility enums.CustomerEligibility `gorm:"column:customer_eligibility;type:text;not null;default:'all'"`
	TargetCustomerIDs   dbtypes.UUIDArray         `gorm:"column:target_customer_ids"`
	TargetSegments      dbtypes.StringArray       `gorm:"column:target_segments"`
	AllowedCountries    dbtypes.StringArray       `gorm:"column:allowed_countries"`
	AppliesTo           enums.DiscountAppliesTo   `gorm:"column:applies_to;type:text;not null;default:'all'"`
	ProductIDs          dbtypes.UUIDArray         `gorm:"column:product_ids"`
	CollectionIDs       dbtypes.UUIDArray         `gorm:"column:collection_ids"`
	BuyXType            enums.BuyXType            `gorm:"column:buy_x_type;type:text"`
	BuyXValue           decimal.Decimal           `gorm:"column:buy_x_value;type:numeric(12,2);not null"`
	BuyProductIDs       dbtypes.UUIDArray         `gorm:"column:buy_product_ids"`
	GetYQuantity        int                       `gorm:"column:get_y_quantity;not null;default:0"`
	GetProductIDs       dbtypes.UUIDArray         `gorm:"column:get_product_ids"`
	GetYReward          enums.RewardType          `gorm:"column:get_y_reward;type:text"`
	GetYValue           decimal.Decimal           `gorm:"column:get_y_value;type:numeric(12,2);not null"`
	BuyXRepeat          bool                      `gorm:"column:buy_x_repeat;not null"`
	MaxRewards          *int                      `gorm:"column:max_rewards"`
	ShippingMinAmount   *decimal.Decimal          `gorm:"column:shipping_min_amount;type:numeric(12,2)"`
	ShippingMinItems    *int                      `gorm:"column:shipping_min_items"`
	MaxShippingAmount   *decimal.Decimal          `gorm:"column:max_shipping_amount;type:numeric(12,2)"`
	CreatedAt           time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// DiscountUsage records one redemption of a discount.
type DiscountUsage struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	DiscountID uuid.UUID  `gorm:"column:discount_id;type:uuid;not null;index"`
	CustomerID *uuid.UUID `gorm:"column:customer_id;type:uuid"`
	OrderID    uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	UsedAt     time.Time  `gorm:"column:used_at;not null"`
}
