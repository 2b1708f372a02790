package razorpaywebhook

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event types the state machine acts on.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentFailed     = "payment.failed"
	EventRefundProcessed   = "refund.processed"
	EventRefundFailed      = "refund.failed"
	EventOrderPaid         = "order.paid"
)

// Event is the provider envelope. Amounts are in the minor currency unit.
type Event struct {
	Entity    string       `json:"entity"`
	AccountID string       `json:"account_id"`
	Event     string       `json:"event"`
	Contains  []string     `json:"contains"`
	Payload   EventPayload `json:"payload"`
	CreatedAt int64        `json:"created_at"`
}

type EventPayload struct {
	Payment *PaymentWrapper `json:"payment,omitempty"`
	Refund  *RefundWrapper  `json:"refund,omitempty"`
	Order   *OrderWrapper   `json:"order,omitempty"`
}

type PaymentWrapper struct {
	Entity Payment `json:"entity"`
}

type RefundWrapper struct {
	Entity Refund `json:"entity"`
}

type OrderWrapper struct {
	Entity ProviderOrder `json:"entity"`
}

type Payment struct {
	ID               string  `json:"id"`
	OrderID          string  `json:"order_id"`
	Amount           int64   `json:"amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	Method           string  `json:"method"`
	ErrorCode        *string `json:"error_code"`
	ErrorDescription *string `json:"error_description"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

type ProviderOrder struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

var errMalformed = errors.New("malformed webhook body")

// ParseEvent decodes the raw body. It rejects bodies without an event type.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errors.Join(errMalformed, err)
	}
	event.Event = strings.TrimSpace(event.Event)
	if event.Event == "" {
		return nil, errors.Join(errMalformed, errors.New("event type missing"))
	}
	return &event, nil
}

func (e *Event) payment() *Payment {
	if e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}

func (e *Event) refund() *Refund {
	if e.Payload.Refund == nil {
		return nil
	}
	return &e.Payload.Refund.Entity
}

func (e *Event) order() *ProviderOrder {
	if e.Payload.Order == nil {
		return nil
	}
	return &e.Payload.Order.Entity
}

// EventID derives the idempotency key. Refund events key on the refund so
// successive partial refunds of one payment each apply once.
func (e *Event) EventID() string {
	var subject string
	if strings.HasPrefix(e.Event, "refund.") {
		if r := e.refund(); r != nil && r.ID != "" {
			subject = r.ID
		}
	}
	if subject == "" {
		if p := e.payment(); p != nil && p.ID != "" {
			subject = p.ID
		}
	}
	if subject == "" {
		if o := e.order(); o != nil && o.ID != "" {
			subject = o.ID
		}
	}
	if subject == "" {
		if r := e.refund(); r != nil && r.PaymentID != "" {
			subject = r.PaymentID
		}
	}
	if subject == "" {
		return ""
	}
	return subject + ":" + e.Event
}
