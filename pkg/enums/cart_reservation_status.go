package enums

// CartReservationStatus tracks a cart-scoped stock hold.
type CartReservationStatus string

const (
	CartReservationActive    CartReservationStatus = "active"
	CartReservationReleased  CartReservationStatus = "released"
	CartReservationConverted CartReservationStatus = "converted"
	CartReservationExpired   CartReservationStatus = "expired"
)

var cartReservationStatuses = newDomain("cart reservation status",
	CartReservationActive,
	CartReservationReleased,
	CartReservationConverted,
	CartReservationExpired,
)

func (s CartReservationStatus) IsValid() bool { return cartReservationStatuses.contains(s) }
