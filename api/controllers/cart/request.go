package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
)

// ReserveRequest replaces the cart's holds with the listed items.
type ReserveRequest struct {
	Items []ReserveItem `json:"items" validate:"required,min=1,dive"`
}

// ReserveItem is one requested hold.
type ReserveItem struct {
	ProductID  uuid.UUID  `json:"product_id" validate:"required"`
	VariantID  *uuid.UUID `json:"variant_id,omitempty"`
	LocationID *uuid.UUID `json:"location_id,omitempty"`
	Quantity   int        `json:"quantity" validate:"required,gt=0"`
}

func (r ReserveRequest) stockRequests() []inventory.StockRequest {
	out := make([]inventory.StockRequest, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, inventory.StockRequest{
			ItemRef: inventory.ItemRef{
				ProductID:  item.ProductID,
				VariantID:  item.VariantID,
				LocationID: item.LocationID,
			},
			Quantity: item.Quantity,
		})
	}
	return out
}
