package discounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internaldiscounts "github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubPreviewer struct {
	validation *internaldiscounts.Validation
	calc       internaldiscounts.Calculation
	err        error

	code string
	cart internaldiscounts.CartSnapshot
}

func (s *stubPreviewer) Preview(ctx context.Context, code string, cart internaldiscounts.CartSnapshot) (*internaldiscounts.Validation, internaldiscounts.Calculation, error) {
	s.code = code
	s.cart = cart
	return s.validation, s.calc, s.err
}

func validateBody(code string) string {
	return `{"code":"` + code + `","items":[{"product_id":"` + uuid.NewString() + `","quantity":2,"unit_price":"500"}],"shipping_amount":"50","country":"in"}`
}

func post(ctx context.Context, h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) ValidateResponse {
	t.Helper()
	var envelope struct {
		Data ValidateResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Data
}

func TestValidateReturnsCalculation(t *testing.T) {
	svc := &stubPreviewer{
		validation: &internaldiscounts.Validation{Discount: &models.Discount{Code: "SAVE20", Type: enums.DiscountTypePercentage}},
		calc: internaldiscounts.Calculation{
			DiscountAmount:   decimal.RequireFromString("150"),
			ShippingDiscount: decimal.Zero,
		},
	}

	rec := post(context.Background(), Validate(svc, nil), validateBody("save20"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.True(t, resp.Valid)
	assert.Equal(t, "SAVE20", resp.Code)
	assert.Equal(t, string(enums.DiscountTypePercentage), resp.Type)
	assert.True(t, resp.TotalDiscount.Equal(decimal.RequireFromString("150")))

	assert.Equal(t, "save20", svc.code)
	assert.Equal(t, "IN", svc.cart.Customer.Country)
	assert.Nil(t, svc.cart.Customer.CustomerID)
	assert.True(t, svc.cart.ShippingAmount.Equal(decimal.NewFromInt(50)))
}

func TestValidateUsesAuthenticatedCustomer(t *testing.T) {
	userID := uuid.New()
	svc := &stubPreviewer{validation: &internaldiscounts.Validation{Discount: &models.Discount{Code: "VIP"}}}
	ctx := middleware.WithIdentity(context.Background(), userID.String(), enums.RoleCustomer)

	rec := post(ctx, Validate(svc, nil), validateBody("VIP"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.cart.Customer.CustomerID)
	assert.Equal(t, userID, *svc.cart.Customer.CustomerID)
}

func TestValidateReportsFailedGate(t *testing.T) {
	svc := &stubPreviewer{
		err: pkgerrors.New(pkgerrors.CodeDiscountInvalid, "discount code has expired").
			WithDetails(map[string]any{"reason": internaldiscounts.ReasonExpired}),
	}

	rec := post(context.Background(), Validate(svc, nil), validateBody("OLD"))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.Valid)
	assert.Equal(t, internaldiscounts.ReasonExpired, resp.Reason)
	assert.Equal(t, "discount code has expired", resp.Message)
}

func TestValidateErrors(t *testing.T) {
	t.Run("missing items", func(t *testing.T) {
		rec := post(context.Background(), Validate(&stubPreviewer{}, nil), `{"code":"X","items":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("missing code", func(t *testing.T) {
		rec := post(context.Background(), Validate(&stubPreviewer{}, nil), validateBody(""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("lookup failure", func(t *testing.T) {
		svc := &stubPreviewer{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "load discount")}
		rec := post(context.Background(), Validate(svc, nil), validateBody("X"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
