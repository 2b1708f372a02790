package discounts

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int {
	return &v
}

func item(price string, qty int) CartItem {
	return CartItem{ProductID: uuid.New(), Quantity: qty, UnitPrice: dec(price)}
}

func TestCalculatePercentageCapScalesLines(t *testing.T) {
	items := []CartItem{item("300", 2), item("400", 1)}
	discount := &models.Discount{
		Type:              enums.DiscountTypePercentage,
		Value:             dec("20"),
		MaxDiscountAmount: decPtr("150"),
	}

	calc := Calculate(discount, items, CartSnapshot{Items: items})

	assert.True(t, calc.DiscountAmount.Equal(dec("150")), "got %s", calc.DiscountAmount)
	require.Len(t, calc.Lines, 2)
	assert.True(t, calc.Lines[0].Amount.Equal(dec("90")), "got %s", calc.Lines[0].Amount)
	assert.True(t, calc.Lines[1].Amount.Equal(dec("60")), "got %s", calc.Lines[1].Amount)
}

func TestCalculatePercentageUnderCap(t *testing.T) {
	items := []CartItem{item("49.99", 3)}
	discount := &models.Discount{
		Type:              enums.DiscountTypePercentage,
		Value:             dec("10"),
		MaxDiscountAmount: decPtr("100"),
	}

	calc := Calculate(discount, items, CartSnapshot{Items: items})

	assert.True(t, calc.DiscountAmount.Equal(dec("15")), "got %s", calc.DiscountAmount)
}

func TestCalculateFixedAmountDistributesProportionally(t *testing.T) {
	items := []CartItem{item("10", 1), item("10", 1), item("10", 1)}
	discount := &models.Discount{Type: enums.DiscountTypeFixedAmount, Value: dec("10")}

	calc := Calculate(discount, items, CartSnapshot{Items: items})

	assert.True(t, calc.DiscountAmount.Equal(dec("10")))
	require.Len(t, calc.Lines, 3)
	sum := decimal.Zero
	for _, line := range calc.Lines {
		sum = sum.Add(line.Amount)
	}
	assert.True(t, sum.Equal(dec("10")), "line shares must sum to the discount, got %s", sum)
}

func TestCalculateFixedAmountNeverExceedsSubtotal(t *testing.T) {
	items := []CartItem{item("12.50", 2)}
	discount := &models.Discount{Type: enums.DiscountTypeFixedAmount, Value: dec("40")}

	calc := Calculate(discount, items, CartSnapshot{Items: items})

	assert.True(t, calc.DiscountAmount.Equal(dec("25")), "got %s", calc.DiscountAmount)
}

func TestCalculateBuyXGetYNonRepeatable(t *testing.T) {
	items := []CartItem{item("20", 5)}
	discount := &models.Discount{
		Type:         enums.DiscountTypeBuyXGetY,
		BuyXType:     enums.BuyXTypeQuantity,
		BuyXValue:    dec("2"),
		GetYQuantity: 1,
		GetYReward:   enums.RewardTypeFree,
	}

	calc := Calculate(discount, items, CartSnapshot{Items: items})

	assert.Equal(t, 1, calc.RewardUnits)
	assert.True(t, calc.DiscountAmount.Equal(dec("20")), "got %s", calc.DiscountAmount)
}

func TestCalculateBuyXGetYRepeatRewardsCheapestFirst(t *testing.T) {
	cheap := item("5", 2)
	pricey := item("30", 3)
	items := []CartItem{pricey, cheap}
	discount := &models.Discount{
		Type:         enums.DiscountTypeBuyXGetY,
		BuyXType:     enums.BuyXTypeQuantity,
		BuyXValue:    dec("2"),
		GetYQuantity: 1,
		GetYReward:   enums.RewardTypePercentage,
		GetYValue:    dec("50"),
		BuyXRepeat:   true,
		MaxRewards:   intPtr(2),
	}

	calc := Calculate(discount, items, CartSnapshot{Items: items})

	assert.Equal(t, 2, calc.RewardUnits)
	assert.True(t, calc.DiscountAmount.Equal(dec("5")), "got %s", calc.DiscountAmount)
	require.Len(t, calc.Lines, 1)
	assert.Equal(t, cheap.ProductID, calc.Lines[0].ProductID)
}

func TestCalculateBuyXGetYBelowThreshold(t *testing.T) {
	items := []CartItem{item("20", 1)}
	discount := &models.Discount{
		Type:         enums.DiscountTypeBuyXGetY,
		BuyXType:     enums.BuyXTypeQuantity,
		BuyXValue:    dec("2"),
		GetYQuantity: 1,
	}

	calc := Calculate(discount, items, CartSnapshot{Items: items})

	assert.Zero(t, calc.RewardUnits)
	assert.True(t, calc.DiscountAmount.IsZero())
	assert.Empty(t, calc.Lines)
}

func TestCalculateFreeShipping(t *testing.T) {
	items := []CartItem{item("40", 2)}
	discount := &models.Discount{
		Type:              enums.DiscountTypeFreeShipping,
		ShippingMinAmount: decPtr("50"),
		MaxShippingAmount: decPtr("8"),
	}

	calc := Calculate(discount, items, CartSnapshot{Items: items, ShippingAmount: dec("12")})
	assert.True(t, calc.ShippingDiscount.Equal(dec("8")), "got %s", calc.ShippingDiscount)
	assert.True(t, calc.DiscountAmount.IsZero())
	assert.True(t, calc.Total().Equal(dec("8")))

	small := []CartItem{item("20", 1)}
	calc = Calculate(discount, small, CartSnapshot{Items: small, ShippingAmount: dec("12")})
	assert.True(t, calc.ShippingDiscount.IsZero(), "minimum not met")
}

func TestApplicableItemsByCollection(t *testing.T) {
	collection := uuid.New()
	inside := item("10", 1)
	inside.CollectionIDs = []uuid.UUID{uuid.New(), collection}
	outside := item("10", 1)
	discount := &models.Discount{
		Type:          enums.DiscountTypePercentage,
		AppliesTo:     enums.DiscountAppliesToCollections,
		CollectionIDs: []uuid.UUID{collection},
	}

	got := ApplicableItems(discount, []CartItem{inside, outside})

	require.Len(t, got, 1)
	assert.Equal(t, inside.ProductID, got[0].ProductID)
}
