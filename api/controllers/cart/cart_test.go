package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubReservationService struct {
	holds    []models.CartReservation
	released int
	expires  time.Time
	err      error

	lastCart  uuid.UUID
	lastItems []inventory.StockRequest
}

func (s *stubReservationService) ReserveCartStock(ctx context.Context, cartID uuid.UUID, items []inventory.StockRequest) ([]models.CartReservation, error) {
	s.lastCart = cartID
	s.lastItems = items
	return s.holds, s.err
}

func (s *stubReservationService) ReleaseCartStock(ctx context.Context, cartID uuid.UUID) (int, error) {
	s.lastCart = cartID
	return s.released, s.err
}

func (s *stubReservationService) ExtendCartReservation(ctx context.Context, cartID uuid.UUID) (time.Time, error) {
	s.lastCart = cartID
	return s.expires, s.err
}

func (s *stubReservationService) ActiveHolds(ctx context.Context, cartID uuid.UUID) ([]models.CartReservation, error) {
	s.lastCart = cartID
	return s.holds, s.err
}

func newCartRouter(svc ReservationService) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/carts/{cartID}/reservations", func(r chi.Router) {
		r.Get("/", CartHolds(svc, nil))
		r.Post("/", ReserveCart(svc, nil))
		r.Delete("/", ReleaseCart(svc, nil))
		r.Post("/extend", ExtendCart(svc, nil))
	})
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReserveCartCreatesHolds(t *testing.T) {
	cartID := uuid.New()
	productID := uuid.New()
	expires := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
	svc := &stubReservationService{holds: []models.CartReservation{{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  2,
		Status:    enums.CartReservationActive,
		ExpiresAt: expires,
	}}}

	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":2}]}`
	rec := serve(newCartRouter(svc), http.MethodPost, "/api/v1/carts/"+cartID.String()+"/reservations", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastCart != cartID {
		t.Fatalf("unexpected cart id %s", svc.lastCart)
	}
	if len(svc.lastItems) != 1 || svc.lastItems[0].ProductID != productID || svc.lastItems[0].Quantity != 2 {
		t.Fatalf("unexpected stock requests %+v", svc.lastItems)
	}

	var envelope struct {
		Data HoldsResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Holds) != 1 || envelope.Data.Holds[0].Status != "active" {
		t.Fatalf("unexpected holds %+v", envelope.Data.Holds)
	}
	if envelope.Data.ExpiresAt == nil || !envelope.Data.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected expiry %v", envelope.Data.ExpiresAt)
	}
}

func TestReserveCartRejectsBadPayloads(t *testing.T) {
	cartID := uuid.New().String()
	cases := map[string]struct {
		path string
		body string
	}{
		"empty items":    {"/api/v1/carts/" + cartID + "/reservations", `{"items":[]}`},
		"zero quantity":  {"/api/v1/carts/" + cartID + "/reservations", `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":0}]}`},
		"unknown field":  {"/api/v1/carts/" + cartID + "/reservations", `{"items":[],"coupon":"x"}`},
		"invalid cartID": {"/api/v1/carts/not-a-uuid/reservations", `{"items":[]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubReservationService{}
			rec := serve(newCartRouter(svc), http.MethodPost, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
			}
			if svc.lastItems != nil {
				t.Fatalf("service should not be called")
			}
		})
	}
}

func TestReserveCartSurfacesShortfall(t *testing.T) {
	svc := &stubReservationService{
		err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"shortfalls": []string{"p1"}}),
	}
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":9}]}`
	rec := serve(newCartRouter(svc), http.MethodPost, "/api/v1/carts/"+uuid.NewString()+"/reservations", body)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INSUFFICIENT_STOCK") {
		t.Fatalf("expected error code in body: %s", rec.Body.String())
	}
}

func TestReleaseCartReportsCount(t *testing.T) {
	svc := &stubReservationService{released: 3}
	rec := serve(newCartRouter(svc), http.MethodDelete, "/api/v1/carts/"+uuid.NewString()+"/reservations", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data ReleaseResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Released != 3 {
		t.Fatalf("expected 3 released got %d", envelope.Data.Released)
	}
}

func TestExtendCartNotFound(t *testing.T) {
	svc := &stubReservationService{err: pkgerrors.New(pkgerrors.CodeNotFound, "no active holds")}
	rec := serve(newCartRouter(svc), http.MethodPost, "/api/v1/carts/"+uuid.NewString()+"/reservations/extend", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestCartHoldsEmpty(t *testing.T) {
	svc := &stubReservationService{}
	rec := serve(newCartRouter(svc), http.MethodGet, "/api/v1/carts/"+uuid.NewString()+"/reservations", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data HoldsResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Holds) != 0 || envelope.Data.ExpiresAt != nil {
		t.Fatalf("expected no holds %+v", envelope.Data)
	}
}
