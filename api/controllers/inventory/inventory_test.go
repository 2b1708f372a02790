package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalinventory "github.com/angelmondragon/storefront-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubLedger struct {
	views    []internalinventory.StockView
	adjusted *internalinventory.StockView
	err      error

	lastAdjust internalinventory.AdjustInput
}

func (s *stubLedger) ListByProduct(ctx context.Context, productID uuid.UUID) ([]internalinventory.StockView, error) {
	return s.views, s.err
}

func (s *stubLedger) Adjust(ctx context.Context, input internalinventory.AdjustInput) (*internalinventory.StockView, error) {
	s.lastAdjust = input
	return s.adjusted, s.err
}

func newInventoryRouter(svc Ledger) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/{productID}", ProductStock(svc, nil))
	r.Post("/api/v1/admin/inventory/{itemID}/adjust", AdjustStock(svc, nil))
	return r
}

func TestProductStockListsRows(t *testing.T) {
	productID := uuid.New()
	svc := &stubLedger{views: []internalinventory.StockView{
		{ID: uuid.New(), ProductID: productID, AvailableQuantity: 10, ReservedQuantity: 4, EffectiveStock: 6},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/"+productID.String(), nil)
	rec := httptest.NewRecorder()
	newInventoryRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data struct {
			Items []internalinventory.StockView `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.Items[0].EffectiveStock != 6 {
		t.Fatalf("unexpected items %+v", envelope.Data.Items)
	}
}

func TestProductStockNotFound(t *testing.T) {
	svc := &stubLedger{err: pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found for product")}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	newInventoryRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestAdjustStock(t *testing.T) {
	itemID := uuid.New()
	svc := &stubLedger{adjusted: &internalinventory.StockView{ID: itemID, AvailableQuantity: 15}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/inventory/"+itemID.String()+"/adjust", strings.NewReader(`{"delta":5,"reason":" restock "}`))
	rec := httptest.NewRecorder()
	newInventoryRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastAdjust.ItemID != itemID || svc.lastAdjust.Delta != 5 || svc.lastAdjust.Reason != "restock" {
		t.Fatalf("unexpected adjust input %+v", svc.lastAdjust)
	}
}

func TestAdjustStockRejectsZeroDelta(t *testing.T) {
	svc := &stubLedger{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/inventory/"+uuid.NewString()+"/adjust", strings.NewReader(`{"delta":0,"reason":"noop"}`))
	rec := httptest.NewRecorder()
	newInventoryRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdjustStockBelowReserved(t *testing.T) {
	svc := &stubLedger{err: pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would drop available below reserved")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/inventory/"+uuid.NewString()+"/adjust", strings.NewReader(`{"delta":-50,"reason":"shrinkage"}`))
	rec := httptest.NewRecorder()
	newInventoryRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}
