package discounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db   *gorm.DB
	repo Repository
	svc  Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, nil, func() time.Time { return fixedNow })
	require.NoError(t, err)
	return fixture{db: conn, repo: repo, svc: svc}
}

func (f fixture) seed(t *testing.T, mutate func(d *models.Discount)) *models.Discount {
	t.Helper()
	discount := &models.Discount{
		Code:                "spring20",
		Type:                enums.DiscountTypePercentage,
		Value:               dec("20"),
		IsActive:            true,
		CustomerEligibility: enums.CustomerEligibilityAll,
		AppliesTo:           enums.DiscountAppliesToAll,
	}
	if mutate != nil {
		mutate(discount)
	}
	created, err := f.repo.Create(context.Background(), discount)
	require.NoError(t, err)
	return created
}

func snapshot(items ...CartItem) CartSnapshot {
	return CartSnapshot{Items: items, Customer: Customer{Country: "IN"}}
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDiscountInvalid, typed.Code())
	assert.Equal(t, want, ReasonOf(err))
}

func TestValidateDiscountCodeCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.seed(t, nil)

	validation, err := f.svc.ValidateDiscountCode(context.Background(), "  Spring20 ", snapshot(item("100", 1)))
	require.NoError(t, err)
	assert.Equal(t, "SPRING20", validation.Discount.Code)
	assert.Len(t, validation.ApplicableItems, 1)
}

func TestValidateDiscountCodeGates(t *testing.T) {
	customer := uuid.New()
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(d *models.Discount)
		cart   func() CartSnapshot
		before func(t *testing.T, f fixture, d *models.Discount)
		want   Reason
	}{
		{name: "inactive", mutate: func(d *models.Discount) { d.IsActive = false }, want: ReasonInactive},
		{name: "not started", mutate: func(d *models.Discount) { d.StartsAt = &future }, want: ReasonNotStarted},
		{name: "expired", mutate: func(d *models.Discount) { d.EndsAt = &past }, want: ReasonExpired},
		{
			name: "usage limit",
			mutate: func(d *models.Discount) {
				d.UsageLimit = intPtr(3)
				d.UsageCount = 3
			},
			want: ReasonUsageLimitReached,
		},
		{
			name:   "customer limit",
			mutate: func(d *models.Discount) { d.PerCustomerLimit = intPtr(1) },
			before: func(t *testing.T, f fixture, d *models.Discount) {
				require.NoError(t, f.repo.InsertUsage(context.Background(), &models.DiscountUsage{
					DiscountID: d.ID, CustomerID: &customer, OrderID: uuid.New(), UsedAt: past,
				}))
			},
			want: ReasonCustomerLimitReached,
		},
		{
			name:   "daily limit",
			mutate: func(d *models.Discount) { d.DailyLimit = intPtr(1) },
			before: func(t *testing.T, f fixture, d *models.Discount) {
				require.NoError(t, f.repo.InsertUsage(context.Background(), &models.DiscountUsage{
					DiscountID: d.ID, OrderID: uuid.New(), UsedAt: past,
				}))
			},
			want: ReasonDailyLimitReached,
		},
		{name: "minimum amount", mutate: func(d *models.Discount) { d.MinPurchaseAmount = decPtr("500") }, want: ReasonMinimumNotMet},
		{name: "minimum quantity", mutate: func(d *models.Discount) { d.MinQuantity = intPtr(4) }, want: ReasonMinimumNotMet},
		{
			name:   "returning only",
			mutate: func(d *models.Discount) { d.CustomerEligibility = enums.CustomerEligibilityReturning },
			want:   ReasonCustomerNotEligible,
		},
		{
			name:   "not targeted",
			mutate: func(d *models.Discount) { d.TargetSegments = []string{"vip"} },
			want:   ReasonNotTargeted,
		},
		{
			name:   "region",
			mutate: func(d *models.Discount) { d.AllowedCountries = []string{"US", "GB"} },
			want:   ReasonRegionNotAllowed,
		},
		{
			name: "no eligible items",
			mutate: func(d *models.Discount) {
				d.AppliesTo = enums.DiscountAppliesToProducts
				d.ProductIDs = []uuid.UUID{uuid.New()}
			},
			want: ReasonNoEligibleItems,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.seed(t, tc.mutate)
			if tc.before != nil {
				tc.before(t, f, d)
			}
			cart := snapshot(item("100", 1))
			cart.Customer.CustomerID = &customer

			_, err := f.svc.ValidateDiscountCode(context.Background(), "SPRING20", cart)
			requireReason(t, err, tc.want)
		})
	}
}

func TestValidateDiscountCodeUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ValidateDiscountCode(context.Background(), "NOPE", snapshot(item("10", 1)))
	requireReason(t, err, ReasonNotFound)
}

func TestValidateDiscountCodeGateOrder(t *testing.T) {
	f := newFixture(t)
	past := fixedNow.Add(-time.Hour)
	f.seed(t, func(d *models.Discount) {
		d.EndsAt = &past
		d.MinPurchaseAmount = decPtr("500")
		d.AllowedCountries = []string{"US"}
	})

	_, err := f.svc.ValidateDiscountCode(context.Background(), "SPRING20", snapshot(item("10", 1)))
	requireReason(t, err, ReasonExpired)
}

func TestValidateDiscountCodeEligibility(t *testing.T) {
	f := newFixture(t)
	f.seed(t, func(d *models.Discount) { d.CustomerEligibility = enums.CustomerEligibilityNew })
	returning := uuid.New()
	require.NoError(t, f.db.Create(&models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-1001",
		UserID:        &returning,
		OwnerRef:      returning.String(),
		Currency:      "INR",
		PaymentStatus: enums.PaymentStatusPaid,
	}).Error)

	guest := snapshot(item("100", 1))
	_, err := f.svc.ValidateDiscountCode(context.Background(), "SPRING20", guest)
	require.NoError(t, err, "guests count as new customers")

	cart := snapshot(item("100", 1))
	cart.Customer.CustomerID = &returning
	_, err = f.svc.ValidateDiscountCode(context.Background(), "SPRING20", cart)
	requireReason(t, err, ReasonCustomerNotEligible)
}

func TestValidateDiscountCodeTargetedCustomer(t *testing.T) {
	f := newFixture(t)
	target := uuid.New()
	f.seed(t, func(d *models.Discount) { d.TargetCustomerIDs = []uuid.UUID{target} })

	cart := snapshot(item("100", 1))
	cart.Customer.CustomerID = &target
	_, err := f.svc.ValidateDiscountCode(context.Background(), "SPRING20", cart)
	require.NoError(t, err)
}

func TestPreviewPricesCart(t *testing.T) {
	f := newFixture(t)
	f.seed(t, func(d *models.Discount) { d.MaxDiscountAmount = decPtr("150") })

	_, calc, err := f.svc.Preview(context.Background(), "spring20", snapshot(item("500", 2)))
	require.NoError(t, err)
	assert.True(t, calc.DiscountAmount.Equal(dec("150")), "got %s", calc.DiscountAmount)
}

func TestRecordUsageHonorsGlobalLimit(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, func(d *models.Discount) { d.UsageLimit = intPtr(1) })
	ctx := context.Background()
	customer := uuid.New()

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.RecordUsage(ctx, tx, d.ID, &customer, uuid.New())
	}))

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.RecordUsage(ctx, tx, d.ID, nil, uuid.New())
	})
	requireReason(t, err, ReasonUsageLimitReached)

	var reloaded models.Discount
	require.NoError(t, f.db.First(&reloaded, "id = ?", d.ID).Error)
	assert.Equal(t, 1, reloaded.UsageCount)

	used, err := f.repo.CountUsageByCustomer(ctx, d.ID, customer)
	require.NoError(t, err)
	assert.EqualValues(t, 1, used)
}

func TestValidateRejectsEmptyInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ValidateDiscountCode(context.Background(), " ", snapshot(item("1", 1)))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.ValidateDiscountCode(context.Background(), "X", CartSnapshot{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
