package enums

// DiscountType selects how a discount amount is computed.
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "percentage"
	DiscountTypeFixedAmount  DiscountType = "fixed_amount"
	DiscountTypeBuyXGetY     DiscountType = "buy_x_get_y"
	DiscountTypeFreeShipping DiscountType = "free_shipping"
)

var discountTypes = newDomain("discount type",
	DiscountTypePercentage,
	DiscountTypeFixedAmount,
	DiscountTypeBuyXGetY,
	DiscountTypeFreeShipping,
)

func (t DiscountType) IsValid() bool { return discountTypes.contains(t) }

// CustomerEligibility restricts a discount to new or returning customers.
type CustomerEligibility string

const (
	CustomerEligibilityAll       CustomerEligibility = "all"
	CustomerEligibilityNew       CustomerEligibility = "new"
	CustomerEligibilityReturning CustomerEligibility = "returning"
)

// DiscountAppliesTo scopes which cart items a discount covers.
type DiscountAppliesTo string

const (
	DiscountAppliesToAll         DiscountAppliesTo = "all"
	DiscountAppliesToProducts    DiscountAppliesTo = "products"
	DiscountAppliesToCollections DiscountAppliesTo = "collections"
)

// BuyXType chooses whether the buy threshold counts units or spend.
type BuyXType string

const (
	BuyXTypeQuantity BuyXType = "quantity"
	BuyXTypeAmount   BuyXType = "amount"
)

// RewardType is how a buy-X-get-Y reward unit is priced.
type RewardType string

const (
	RewardTypeFree       RewardType = "free"
	RewardTypePercentage RewardType = "percentage"
	RewardTypeAmount     RewardType = "amount"
	RewardTypeFixedPrice RewardType = "fixed_price"
)
