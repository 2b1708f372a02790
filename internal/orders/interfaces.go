package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Repository defines persistence operations for orders, their stock claims and
// payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	TransitionItem(ctx context.Context, itemID uuid.UUID, from, to enums.InventoryClaimStatus) (bool, error)
	AddReturnedQuantity(ctx context.Context, itemID uuid.UUID, qty int) (bool, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, ref inventory.ItemRef) (*models.InventoryItem, error)
}

type cartConverter interface {
	ConvertCartReservation(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID) ([]models.CartReservation, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Shortfall reports a line whose request exceeds effective stock.
type Shortfall struct {
	ProductID       uuid.UUID  `json:"product_id"`
	VariantID       *uuid.UUID `json:"variant_id,omitempty"`
	InventoryItemID uuid.UUID  `json:"inventory_item_id"`
	Requested       int        `json:"requested"`
	Available       int        `json:"available"`
}

// StockCheck is the outcome of a read-only availability check.
type StockCheck struct {
	Valid      bool        `json:"valid"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

// Claim is stock reserved against one inventory row for an order.
type Claim struct {
	Item     models.InventoryItem
	Quantity int
	line     int
}

// LineInput is one requested order line. Prices come from the caller.
type LineInput struct {
	ProductID     uuid.UUID       `json:"product_id" validate:"required"`
	VariantID     *uuid.UUID      `json:"variant_id,omitempty"`
	LocationID    *uuid.UUID      `json:"location_id,omitempty"`
	CollectionIDs []uuid.UUID     `json:"collection_ids,omitempty"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

func (l LineInput) request() inventory.StockRequest {
	return inventory.StockRequest{
		ItemRef:  inventory.ItemRef{ProductID: l.ProductID, VariantID: l.VariantID, LocationID: l.LocationID},
		Quantity: l.Quantity,
	}
}

// PlaceOrderInput carries everything needed to commit an order.
type PlaceOrderInput struct {
	UserID           *uuid.UUID
	CartID           *uuid.UUID
	Lines            []LineInput
	Currency         string
	ShippingAmount   decimal.Decimal
	DiscountCode     string
	Segments         []string
	Country          string
	IsDirect         bool
	AllowOverselling bool
	ProviderOrderID  string
	Actor            *outbox.ActorRef
}

// ReturnLine names a quantity coming back for one order item.
type ReturnLine struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,gt=0"`
}
