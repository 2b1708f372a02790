package discounts

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Calculate prices a validated discount. Amounts are rounded to two places and
// line shares always sum to DiscountAmount.
func Calculate(discount *models.Discount, applicable []CartItem, cart CartSnapshot) Calculation {
	switch discount.Type {
	case enums.DiscountTypePercentage:
		return percentage(discount, applicable)
	case enums.DiscountTypeFixedAmount:
		return fixedAmount(discount, applicable)
	case enums.DiscountTypeBuyXGetY:
		return buyXGetY(discount, applicable)
	case enums.DiscountTypeFreeShipping:
		return freeShipping(discount, cart)
	}
	return emptyCalculation()
}

func percentage(discount *models.Discount, items []CartItem) Calculation {
	shares := make([]decimal.Decimal, len(items))
	total := decimal.Zero
	for i, item := range items {
		shares[i] = item.LineTotal().Mul(discount.Value).Div(hundred).Round(2)
		total = total.Add(shares[i])
	}
	if discount.MaxDiscountAmount != nil && total.GreaterThan(*discount.MaxDiscountAmount) {
		capped := discount.MaxDiscountAmount.Round(2)
		shares = distribute(capped, shares)
		total = capped
	}
	return withLines(items, shares, total)
}

func fixedAmount(discount *models.Discount, items []CartItem) Calculation {
	weights := make([]decimal.Decimal, len(items))
	for i, item := range items {
		weights[i] = item.LineTotal()
	}
	amount := decimal.Min(discount.Value, sumLines(items)).Round(2)
	if !amount.IsPositive() {
		return emptyCalculation()
	}
	return withLines(items, distribute(amount, weights), amount)
}

type rewardUnit struct {
	line  int
	price decimal.Decimal
}

func buyXGetY(discount *models.Discount, items []CartItem) Calculation {
	calc := emptyCalculation()

	qualifying := decimal.Zero
	for _, item := range items {
		if len(discount.BuyProductIDs) > 0 && !discount.BuyProductIDs.Contains(item.ProductID) {
			continue
		}
		if discount.BuyXType == enums.BuyXTypeAmount {
			qualifying = qualifying.Add(item.LineTotal())
		} else {
			qualifying = qualifying.Add(decimal.NewFromInt(int64(item.Quantity)))
		}
	}
	if !discount.BuyXValue.IsPositive() || discount.GetYQuantity <= 0 {
		return calc
	}
	triggers := int(qualifying.Div(discount.BuyXValue).Floor().IntPart())
	if triggers == 0 {
		return calc
	}
	if !discount.BuyXRepeat {
		triggers = 1
	}
	rewards := triggers * discount.GetYQuantity
	if discount.MaxRewards != nil && rewards > *discount.MaxRewards {
		rewards = *discount.MaxRewards
	}

	var units []rewardUnit
	for i, item := range items {
		if len(discount.GetProductIDs) > 0 && !discount.GetProductIDs.Contains(item.ProductID) {
			continue
		}
		for n := 0; n < item.Quantity; n++ {
			units = append(units, rewardUnit{line: i, price: item.UnitPrice})
		}
	}
	sort.SliceStable(units, func(a, b int) bool {
		return units[a].price.LessThan(units[b].price)
	})
	if rewards > len(units) {
		rewards = len(units)
	}

	shares := make([]decimal.Decimal, len(items))
	for i := range shares {
		shares[i] = decimal.Zero
	}
	total := decimal.Zero
	for _, unit := range units[:rewards] {
		off := rewardValue(discount, unit.price)
		shares[unit.line] = shares[unit.line].Add(off)
		total = total.Add(off)
	}
	calc = withLines(items, shares, total)
	calc.RewardUnits = rewards
	return calc
}

func rewardValue(discount *models.Discount, price decimal.Decimal) decimal.Decimal {
	switch discount.GetYReward {
	case enums.RewardTypePercentage:
		return price.Mul(discount.GetYValue).Div(hundred).Round(2)
	case enums.RewardTypeAmount:
		return decimal.Min(discount.GetYValue, price).Round(2)
	case enums.RewardTypeFixedPrice:
		if price.GreaterThan(discount.GetYValue) {
			return price.Sub(discount.GetYValue).Round(2)
		}
		return decimal.Zero
	default:
		return price.Round(2)
	}
}

func freeShipping(discount *models.Discount, cart CartSnapshot) Calculation {
	calc := emptyCalculation()
	if discount.ShippingMinAmount != nil && cart.Subtotal().LessThan(*discount.ShippingMinAmount) {
		return calc
	}
	if discount.ShippingMinItems != nil && cart.Quantity() < *discount.ShippingMinItems {
		return calc
	}
	off := cart.ShippingAmount
	if discount.MaxShippingAmount != nil {
		off = decimal.Min(off, *discount.MaxShippingAmount)
	}
	if off.IsNegative() {
		off = decimal.Zero
	}
	calc.ShippingDiscount = off.Round(2)
	return calc
}

// distribute splits amount across weights proportionally, rounded to cents.
// The rounding remainder lands on the heaviest line.
func distribute(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(weights))
	total := decimal.Zero
	heaviest := 0
	for i, w := range weights {
		total = total.Add(w)
		if w.GreaterThan(weights[heaviest]) {
			heaviest = i
		}
	}
	if !total.IsPositive() {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}
	assigned := decimal.Zero
	for i, w := range weights {
		out[i] = amount.Mul(w).Div(total).Round(2)
		assigned = assigned.Add(out[i])
	}
	if diff := amount.Sub(assigned); !diff.IsZero() {
		out[heaviest] = out[heaviest].Add(diff)
	}
	return out
}

func withLines(items []CartItem, shares []decimal.Decimal, total decimal.Decimal) Calculation {
	calc := emptyCalculation()
	calc.DiscountAmount = total
	for i, item := range items {
		if !shares[i].IsPositive() {
			continue
		}
		calc.Lines = append(calc.Lines, LineDiscount{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Amount:    shares[i],
		})
	}
	return calc
}

func emptyCalculation() Calculation {
	return Calculation{
		DiscountAmount:   decimal.Zero,
		ShippingDiscount: decimal.Zero,
		Lines:            []LineDiscount{},
	}
}
