package enums

// PaymentStatus is the order-level payment state.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

var paymentStatuses = newDomain("payment status",
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusPartiallyRefunded,
)

func (p PaymentStatus) IsValid() bool { return paymentStatuses.contains(p) }

// Captured reports whether money was taken for the order at some point,
// refunds included. Discount eligibility counts these as past purchases.
func (p PaymentStatus) Captured() bool {
	switch p {
	case PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

// Refundable reports whether a refund may still move the order.
func (p PaymentStatus) Refundable() bool {
	return p == PaymentStatusPaid || p == PaymentStatusPartiallyRefunded
}

// Payable reports whether a capture may still settle the order.
func (p PaymentStatus) Payable() bool {
	return p == PaymentStatusPending || p == PaymentStatusFailed
}

// CapturedPaymentStatuses lists every status for which Captured is true.
func CapturedPaymentStatuses() []PaymentStatus {
	return filter(paymentStatuses, PaymentStatus.Captured)
}

// PayablePaymentStatuses lists every status for which Payable is true.
func PayablePaymentStatuses() []PaymentStatus {
	return filter(paymentStatuses, PaymentStatus.Payable)
}

// RefundablePaymentStatuses lists every status for which Refundable is true.
func RefundablePaymentStatuses() []PaymentStatus {
	return filter(paymentStatuses, PaymentStatus.Refundable)
}

func filter[T ~string](d domain[T], keep func(T) bool) []T {
	var out []T
	for _, v := range d.values {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) { return paymentStatuses.parse(raw) }
