package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Hold is the public view of one cart reservation.
type Hold struct {
	ID              uuid.UUID  `json:"id"`
	InventoryItemID uuid.UUID  `json:"inventory_item_id"`
	ProductID       uuid.UUID  `json:"product_id"`
	VariantID       *uuid.UUID `json:"variant_id,omitempty"`
	Quantity        int        `json:"quantity"`
	Status          string     `json:"status"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// HoldsResponse lists a cart's holds.
type HoldsResponse struct {
	CartID    uuid.UUID  `json:"cart_id"`
	Holds     []Hold     `json:"holds"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ReleaseResponse reports how many holds a release cleared.
type ReleaseResponse struct {
	CartID   uuid.UUID `json:"cart_id"`
	Released int       `json:"released"`
}

// ExtendResponse carries the refreshed expiry.
type ExtendResponse struct {
	CartID    uuid.UUID `json:"cart_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newHoldsResponse(cartID uuid.UUID, rows []models.CartReservation) HoldsResponse {
	resp := HoldsResponse{CartID: cartID, Holds: make([]Hold, 0, len(rows))}
	for _, row := range rows {
		resp.Holds = append(resp.Holds, Hold{
			ID:              row.ID,
			InventoryItemID: row.InventoryItemID,
			ProductID:       row.ProductID,
			VariantID:       row.VariantID,
			Quantity:        row.Quantity,
			Status:          string(row.Status),
			ExpiresAt:       row.ExpiresAt,
		})
		if resp.ExpiresAt == nil || row.ExpiresAt.Before(*resp.ExpiresAt) {
			expires := row.ExpiresAt
			resp.ExpiresAt = &expires
		}
	}
	return resp
}
