package discounts

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Reason names the gate a discount code failed.
type Reason string

const (
	ReasonNotFound             Reason = "NOT_FOUND"
	ReasonInactive             Reason = "INACTIVE"
	ReasonNotStarted           Reason = "NOT_STARTED"
	ReasonExpired              Reason = "EXPIRED"
	ReasonUsageLimitReached    Reason = "USAGE_LIMIT_REACHED"
	ReasonCustomerLimitReached Reason = "CUSTOMER_LIMIT_REACHED"
	ReasonDailyLimitReached    Reason = "DAILY_LIMIT_REACHED"
	ReasonMinimumNotMet        Reason = "MINIMUM_NOT_MET"
	ReasonCustomerNotEligible  Reason = "CUSTOMER_NOT_ELIGIBLE"
	ReasonNotTargeted          Reason = "NOT_TARGETED"
	ReasonRegionNotAllowed     Reason = "REGION_NOT_ALLOWED"
	ReasonNoEligibleItems      Reason = "NO_ELIGIBLE_ITEMS"
)

// CartItem is one line of the cart being priced.
type CartItem struct {
	ProductID     uuid.UUID       `json:"product_id" validate:"required"`
	VariantID     *uuid.UUID      `json:"variant_id,omitempty"`
	CollectionIDs []uuid.UUID     `json:"collection_ids,omitempty"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// LineTotal is unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Customer describes who is checking out. A nil CustomerID is a guest.
type Customer struct {
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	Segments   []string   `json:"segments,omitempty"`
	Country    string     `json:"country,omitempty"`
}

// CartSnapshot is the priced cart a code is evaluated against.
type CartSnapshot struct {
	Items          []CartItem      `json:"items" validate:"required,min=1,dive"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	Customer       Customer        `json:"customer"`
}

// Subtotal sums every line.
func (c CartSnapshot) Subtotal() decimal.Decimal {
	return sumLines(c.Items)
}

// Quantity sums every line's units.
func (c CartSnapshot) Quantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Validation is a code that passed every gate.
type Validation struct {
	Discount        *models.Discount
	ApplicableItems []CartItem
}

// LineDiscount is the share of the discount assigned to one cart line.
type LineDiscount struct {
	ProductID uuid.UUID       `json:"product_id"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// Calculation is the priced outcome of an applicable discount.
type Calculation struct {
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	ShippingDiscount decimal.Decimal `json:"shipping_discount"`
	RewardUnits      int             `json:"reward_units,omitempty"`
	Lines            []LineDiscount  `json:"lines"`
}

// Total is the item discount plus any shipping discount.
func (c Calculation) Total() decimal.Decimal {
	return c.DiscountAmount.Add(c.ShippingDiscount)
}

func sumLines(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
