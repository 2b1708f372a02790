package enums

// InventoryClaimStatus tracks the stock claim held by one order item.
type InventoryClaimStatus string

const (
	InventoryClaimReserved  InventoryClaimStatus = "reserved"
	InventoryClaimFulfilled InventoryClaimStatus = "fulfilled"
	InventoryClaimReleased  InventoryClaimStatus = "released"
	InventoryClaimReturned  InventoryClaimStatus = "returned"
)

var inventoryClaimStatuses = newDomain("inventory claim status",
	InventoryClaimReserved,
	InventoryClaimFulfilled,
	InventoryClaimReleased,
	InventoryClaimReturned,
)

func (s InventoryClaimStatus) IsValid() bool { return inventoryClaimStatuses.contains(s) }

// CanTransitionTo enforces reserved -> fulfilled -> returned and reserved -> released.
func (s InventoryClaimStatus) CanTransitionTo(next InventoryClaimStatus) bool {
	switch s {
	case InventoryClaimReserved:
		return next == InventoryClaimFulfilled || next == InventoryClaimReleased
	case InventoryClaimFulfilled:
		return next == InventoryClaimReturned
	}
	return false
}
