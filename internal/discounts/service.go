package discounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Service validates discount codes against a cart and records redemptions.
type Service interface {
	ValidateDiscountCode(ctx context.Context, code string, cart CartSnapshot) (*Validation, error)
	ValidateTx(ctx context.Context, tx *gorm.DB, code string, cart CartSnapshot) (*Validation, error)
	CalculateDiscount(validation *Validation, cart CartSnapshot) Calculation
	Preview(ctx context.Context, code string, cart CartSnapshot) (*Validation, Calculation, error)
	RecordUsage(ctx context.Context, tx *gorm.DB, discountID uuid.UUID, customerID *uuid.UUID, orderID uuid.UUID) error
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the discount service. now defaults to time.Now.
func NewService(repo Repository, logg *logger.Logger, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("discount repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, logg: logg, now: now}, nil
}

func (s *service) ValidateDiscountCode(ctx context.Context, code string, cart CartSnapshot) (*Validation, error) {
	return s.validate(ctx, s.repo, code, cart)
}

// ValidateTx runs the same gates on the caller's transaction.
func (s *service) ValidateTx(ctx context.Context, tx *gorm.DB, code string, cart CartSnapshot) (*Validation, error) {
	return s.validate(ctx, s.repo.WithTx(tx), code, cart)
}

func (s *service) CalculateDiscount(validation *Validation, cart CartSnapshot) Calculation {
	if validation == nil || validation.Discount == nil {
		return emptyCalculation()
	}
	return Calculate(validation.Discount, validation.ApplicableItems, cart)
}

func (s *service) Preview(ctx context.Context, code string, cart CartSnapshot) (*Validation, Calculation, error) {
	validation, err := s.ValidateDiscountCode(ctx, code, cart)
	if err != nil {
		return nil, emptyCalculation(), err
	}
	return validation, s.CalculateDiscount(validation, cart), nil
}

// RecordUsage counts one redemption. It fails when a concurrent order took the
// last global use.
func (s *service) RecordUsage(ctx context.Context, tx *gorm.DB, discountID uuid.UUID, customerID *uuid.UUID, orderID uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.IncrementUsage(ctx, discountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment discount usage")
	}
	if !ok {
		return invalid(ReasonUsageLimitReached, "discount usage limit reached")
	}
	usage := &models.DiscountUsage{
		DiscountID: discountID,
		CustomerID: customerID,
		OrderID:    orderID,
		UsedAt:     s.now().UTC(),
	}
	if err := repo.InsertUsage(ctx, usage); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record discount usage")
	}
	return nil
}

func (s *service) validate(ctx context.Context, repo Repository, code string, cart CartSnapshot) (*Validation, error) {
	if normalizeCode(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code required")
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart has no items")
	}

	discount, err := repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup discount")
	}
	if discount == nil {
		return nil, invalid(ReasonNotFound, "discount code not found")
	}
	if !discount.IsActive {
		return nil, invalid(ReasonInactive, "discount is not active")
	}

	now := s.now().UTC()
	if discount.StartsAt != nil && now.Before(*discount.StartsAt) {
		return nil, invalid(ReasonNotStarted, "discount has not started")
	}
	if discount.EndsAt != nil && now.After(*discount.EndsAt) {
		return nil, invalid(ReasonExpired, "discount has expired")
	}
	if discount.UsageLimit != nil && discount.UsageCount >= *discount.UsageLimit {
		return nil, invalid(ReasonUsageLimitReached, "discount usage limit reached")
	}

	customer := cart.Customer
	if discount.PerCustomerLimit != nil && customer.CustomerID != nil {
		used, err := repo.CountUsageByCustomer(ctx, discount.ID, *customer.CustomerID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customer usage")
		}
		if used >= int64(*discount.PerCustomerLimit) {
			return nil, invalid(ReasonCustomerLimitReached, "customer already used this discount")
		}
	}
	if discount.DailyLimit != nil {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		used, err := repo.CountUsageSince(ctx, discount.ID, dayStart)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count daily usage")
		}
		if used >= int64(*discount.DailyLimit) {
			return nil, invalid(ReasonDailyLimitReached, "discount daily limit reached")
		}
	}

	if discount.MinPurchaseAmount != nil && cart.Subtotal().LessThan(*discount.MinPurchaseAmount) {
		return nil, invalid(ReasonMinimumNotMet, "cart subtotal below discount minimum")
	}
	if discount.MinQuantity != nil && cart.Quantity() < *discount.MinQuantity {
		return nil, invalid(ReasonMinimumNotMet, "cart quantity below discount minimum")
	}

	if discount.CustomerEligibility != "" && discount.CustomerEligibility != enums.CustomerEligibilityAll {
		isNew := true
		if customer.CustomerID != nil {
			orders, err := repo.CountPaidOrders(ctx, *customer.CustomerID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customer orders")
			}
			isNew = orders == 0
		}
		if (discount.CustomerEligibility == enums.CustomerEligibilityNew) != isNew {
			return nil, invalid(ReasonCustomerNotEligible, "customer is not eligible for this discount")
		}
	}

	if !isTargeted(discount, customer) {
		return nil, invalid(ReasonNotTargeted, "discount is not available to this customer")
	}
	if len(discount.AllowedCountries) > 0 && !discount.AllowedCountries.ContainsFold(customer.Country) {
		return nil, invalid(ReasonRegionNotAllowed, "discount is not available in this region")
	}

	applicable := ApplicableItems(discount, cart.Items)
	if len(applicable) == 0 {
		return nil, invalid(ReasonNoEligibleItems, "no cart items qualify for this discount")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"discount_code": discount.Code,
			"discount_type": discount.Type,
		})
		s.logg.Debug(logCtx, "discount code validated")
	}
	return &Validation{Discount: discount, ApplicableItems: applicable}, nil
}

func isTargeted(discount *models.Discount, customer Customer) bool {
	if len(discount.TargetCustomerIDs) == 0 && len(discount.TargetSegments) == 0 {
		return true
	}
	if customer.CustomerID != nil && discount.TargetCustomerIDs.Contains(*customer.CustomerID) {
		return true
	}
	for _, segment := range customer.Segments {
		if discount.TargetSegments.ContainsFold(segment) {
			return true
		}
	}
	return false
}

// ApplicableItems filters the cart down to the lines the discount covers.
func ApplicableItems(discount *models.Discount, items []CartItem) []CartItem {
	if discount.Type == enums.DiscountTypeBuyXGetY {
		if len(discount.BuyProductIDs) == 0 && len(discount.GetProductIDs) == 0 {
			return items
		}
		var out []CartItem
		for _, item := range items {
			if discount.BuyProductIDs.Contains(item.ProductID) || discount.GetProductIDs.Contains(item.ProductID) {
				out = append(out, item)
			}
		}
		return out
	}

	switch discount.AppliesTo {
	case enums.DiscountAppliesToProducts:
		var out []CartItem
		for _, item := range items {
			if discount.ProductIDs.Contains(item.ProductID) {
				out = append(out, item)
			}
		}
		return out
	case enums.DiscountAppliesToCollections:
		var out []CartItem
		for _, item := range items {
			for _, collectionID := range item.CollectionIDs {
				if discount.CollectionIDs.Contains(collectionID) {
					out = append(out, item)
					break
				}
			}
		}
		return out
	default:
		return items
	}
}

func invalid(reason Reason, message string) error {
	return pkgerrors.New(pkgerrors.CodeDiscountInvalid, message).
		WithDetails(map[string]any{"reason": reason})
}

// ReasonOf extracts the failed gate from a validation error.
func ReasonOf(err error) Reason {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDiscountInvalid {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(Reason)
	return reason
}
