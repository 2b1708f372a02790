package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type stubOrderService struct {
	order *models.Order
	err   error

	placed      *internalorders.PlaceOrderInput
	cancelled   string
	returned    []internalorders.ReturnLine
	lastActor   *outbox.ActorRef
	fulfillCall int
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, input internalorders.PlaceOrderInput) (*models.Order, error) {
	s.placed = &input
	return s.order, s.err
}

func (s *stubOrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (*models.Order, error) {
	s.cancelled = reason
	s.lastActor = actor
	return s.order, s.err
}

func (s *stubOrderService) FulfillOrder(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error) {
	s.fulfillCall++
	s.lastActor = actor
	return s.order, s.err
}

func (s *stubOrderService) ReturnOrder(ctx context.Context, orderID uuid.UUID, lines []internalorders.ReturnLine, actor *outbox.ActorRef) (*models.Order, error) {
	s.returned = lines
	s.lastActor = actor
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func sampleOrder(userID *uuid.UUID) *models.Order {
	return &models.Order{
		ID:             uuid.New(),
		OrderNumber:    "ORD-20261015-ABC123",
		UserID:         userID,
		Currency:       "INR",
		SubtotalAmount: decimal.RequireFromString("200.00"),
		TotalAmount:    decimal.RequireFromString("200.00"),
		OrderStatus:    enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		Items: []models.OrderItem{{
			ID:              uuid.New(),
			ProductID:       uuid.New(),
			Quantity:        2,
			UnitPrice:       decimal.RequireFromString("100.00"),
			InventoryStatus: enums.InventoryClaimReserved,
		}},
	}
}

func newOrdersRouter(svc OrderService) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/orders", PlaceOrder(svc, nil))
	r.Get("/api/v1/orders/{orderID}", GetOrder(svc, nil))
	r.Post("/api/v1/orders/{orderID}/cancel", CancelOrder(svc, nil))
	r.Post("/api/v1/orders/{orderID}/fulfill", FulfillOrder(svc, nil))
	r.Post("/api/v1/orders/{orderID}/return", ReturnOrder(svc, nil))
	r.Post("/api/v1/admin/orders", DirectOrder(svc, nil))
	return r
}

func do(ctx context.Context, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func placeBody() string {
	return `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":2,"unit_price":"100.00"}],"currency":"INR","shipping_amount":"0"}`
}

func TestPlaceOrderAsGuest(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder(nil)}
	rec := do(context.Background(), newOrdersRouter(svc), http.MethodPost, "/api/v1/orders", placeBody())

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.placed == nil {
		t.Fatalf("service not called")
	}
	if svc.placed.UserID != nil || svc.placed.Actor != nil {
		t.Fatalf("guest order should carry no identity")
	}
	if svc.placed.IsDirect || svc.placed.AllowOverselling {
		t.Fatalf("storefront orders are never direct")
	}

	var envelope struct {
		Data Order `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OrderNumber != "ORD-20261015-ABC123" || len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected order %+v", envelope.Data)
	}
	if !envelope.Data.TotalAmount.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("unexpected total %s", envelope.Data.TotalAmount)
	}
}

func TestPlaceOrderUsesCallerIdentity(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrderService{order: sampleOrder(&userID)}
	ctx := middleware.WithIdentity(context.Background(), userID.String(), enums.RoleCustomer)

	rec := do(ctx, newOrdersRouter(svc), http.MethodPost, "/api/v1/orders", placeBody())

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if svc.placed.UserID == nil || *svc.placed.UserID != userID {
		t.Fatalf("expected user id from token, got %v", svc.placed.UserID)
	}
	if svc.placed.Actor == nil || svc.placed.Actor.Role != string(enums.RoleCustomer) {
		t.Fatalf("expected actor, got %+v", svc.placed.Actor)
	}
}

func TestPlaceOrderRejectsOversellFlag(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder(nil)}
	body := `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":1,"unit_price":"1"}],"currency":"INR","allow_overselling":true}`

	rec := do(context.Background(), newOrdersRouter(svc), http.MethodPost, "/api/v1/orders", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.placed != nil {
		t.Fatalf("service should not be called")
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	cases := map[string]string{
		"no lines":      `{"lines":[],"currency":"INR"}`,
		"bad currency":  `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"currency":"RUPEES"}`,
		"zero quantity": `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":0}],"currency":"INR"}`,
		"malformed":     `{"lines":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubOrderService{}
			rec := do(context.Background(), newOrdersRouter(svc), http.MethodPost, "/api/v1/orders", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDirectOrderCarriesOversell(t *testing.T) {
	adminID := uuid.New()
	customerID := uuid.New()
	svc := &stubOrderService{order: sampleOrder(&customerID)}
	ctx := middleware.WithIdentity(context.Background(), adminID.String(), enums.RoleAdmin)
	body := `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":5,"unit_price":"10"}],"currency":"INR","customer_id":"` + customerID.String() + `","allow_overselling":true}`

	rec := do(ctx, newOrdersRouter(svc), http.MethodPost, "/api/v1/admin/orders", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if !svc.placed.IsDirect || !svc.placed.AllowOverselling {
		t.Fatalf("expected direct oversold order, got %+v", svc.placed)
	}
	if svc.placed.UserID == nil || *svc.placed.UserID != customerID {
		t.Fatalf("expected order owned by customer")
	}
	if svc.placed.Actor == nil || *svc.placed.Actor.UserID != adminID {
		t.Fatalf("expected admin actor")
	}
}

func TestPlaceOrderSurfacesServiceErrors(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeDiscountInvalid, "discount code expired").WithDetails(map[string]any{"reason": "EXPIRED"})}
	rec := do(context.Background(), newOrdersRouter(svc), http.MethodPost, "/api/v1/orders", placeBody())

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EXPIRED") {
		t.Fatalf("expected reason in details: %s", rec.Body.String())
	}
}

func TestGetOrderOwnership(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(&owner)
	path := "/api/v1/orders/" + order.ID.String()

	cases := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{"owner", middleware.WithIdentity(context.Background(), owner.String(), enums.RoleCustomer), http.StatusOK},
		{"other customer", middleware.WithIdentity(context.Background(), uuid.NewString(), enums.RoleCustomer), http.StatusNotFound},
		{"staff", middleware.WithIdentity(context.Background(), uuid.NewString(), enums.RoleStaff), http.StatusOK},
		{"guest", context.Background(), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{order: order}
			rec := do(tc.ctx, newOrdersRouter(svc), http.MethodGet, path, "")
			if rec.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestCancelOrderWithAndWithoutReason(t *testing.T) {
	order := sampleOrder(nil)
	order.OrderStatus = enums.OrderStatusCancelled
	staff := middleware.WithIdentity(context.Background(), uuid.NewString(), enums.RoleStaff)

	svc := &stubOrderService{order: order}
	rec := do(staff, newOrdersRouter(svc), http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/cancel", `{"reason":"  customer request  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.cancelled != "customer request" {
		t.Fatalf("unexpected reason %q", svc.cancelled)
	}
	if svc.lastActor == nil || svc.lastActor.Role != string(enums.RoleStaff) {
		t.Fatalf("expected staff actor")
	}

	svc = &stubOrderService{order: order}
	rec = do(staff, newOrdersRouter(svc), http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without body got %d", rec.Code)
	}
}

func TestFulfillOrderStateConflict(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move from cancelled to shipped")}
	rec := do(context.Background(), newOrdersRouter(svc), http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/fulfill", "")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
	if svc.fulfillCall != 1 {
		t.Fatalf("expected one fulfill call")
	}
}

func TestReturnOrderPassesLines(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder(nil)}
	itemID := uuid.New()
	body := `{"lines":[{"order_item_id":"` + itemID.String() + `","quantity":1}]}`

	rec := do(context.Background(), newOrdersRouter(svc), http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/return", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.returned) != 1 || svc.returned[0].OrderItemID != itemID || svc.returned[0].Quantity != 1 {
		t.Fatalf("unexpected return lines %+v", svc.returned)
	}
}
