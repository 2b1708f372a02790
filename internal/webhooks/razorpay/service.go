package razorpaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Response statuses returned to the provider.
const (
	StatusSuccess          = "success"
	StatusError            = "error"
	StatusAlreadyProcessed = "already_processed"
	StatusIgnored          = "ignored"
)

const (
	provider          = "razorpay"
	errorRefundFailed = "REFUND_FAILED"
)

var minorUnits = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result is what the HTTP layer writes back. Only 400 and 401 are non-200.
type Result struct {
	HTTPStatus int    `json:"-"`
	Status     string `json:"status"`
	EventID    string `json:"event_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

type ServiceParams struct {
	Logs          LogRepository
	Payments      PaymentRepository
	Outbox        outboxEmitter
	Tx            txRunner
	WebhookSecret string
	Logger        *logger.Logger
	Metrics       *metrics.WebhookMetrics
	Now           func() time.Time
}

// Service drives payment and order state from signed provider callbacks.
type Service struct {
	logs     LogRepository
	payments PaymentRepository
	outbox   outboxEmitter
	tx       txRunner
	secret   string
	logg     *logger.Logger
	metrics  *metrics.WebhookMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook log repo required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.WebhookSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logs:     params.Logs,
		payments: params.Payments,
		outbox:   params.Outbox,
		tx:       params.Tx,
		secret:   params.WebhookSecret,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

type outcome struct {
	status  string
	message string
}

// Handle runs one delivery: parse, log, verify, dispatch. The log row is
// marked processed in the same transaction as the side effects.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) Result {
	event, err := ParseEvent(body)
	if err != nil {
		return s.finish(ctx, "malformed", Result{HTTPStatus: http.StatusBadRequest, Status: StatusError, Message: "malformed payload"})
	}
	eventID := event.EventID()
	if eventID == "" {
		return s.finish(ctx, event.Event, Result{HTTPStatus: http.StatusBadRequest, Status: StatusError, Message: "event identifiers missing"})
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"event_id": eventID, "event_type": event.Event})
	}

	entry, created, err := s.logs.InsertOrGet(ctx, &models.PaymentWebhookLog{
		EventID:   eventID,
		EventType: event.Event,
		Provider:  provider,
		Payload:   json.RawMessage(append([]byte(nil), body...)),
		Signature: signature,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "webhook log write failed", err)
		}
		return s.finish(ctx, event.Event, Result{HTTPStatus: http.StatusOK, Status: StatusError, EventID: eventID, Message: "webhook log unavailable"})
	}
	if entry.Processed {
		return s.finish(ctx, event.Event, Result{HTTPStatus: http.StatusOK, Status: StatusAlreadyProcessed, EventID: eventID})
	}
	if !created && s.logg != nil {
		s.logg.Debug(ctx, "webhook redelivered before processing completed")
	}

	if !VerifySignature(body, signature, s.secret) {
		if s.logg != nil {
			s.logg.Warn(ctx, "webhook signature rejected")
		}
		return s.finish(ctx, event.Event, Result{HTTPStatus: http.StatusUnauthorized, Status: StatusError, EventID: eventID, Message: "invalid signature"})
	}
	if !entry.SignatureValid {
		if err := s.logs.SetSignatureValid(ctx, entry.ID, true); err != nil && s.logg != nil {
			s.logg.Error(ctx, "webhook signature flag not saved", err)
		}
	}

	out, err := s.dispatch(ctx, entry, event)
	if errors.Is(err, ErrAlreadyProcessed) {
		return s.finish(ctx, event.Event, Result{HTTPStatus: http.StatusOK, Status: StatusAlreadyProcessed, EventID: eventID})
	}
	if err != nil {
		if recErr := s.logs.RecordError(ctx, entry.ID, err.Error()); recErr != nil && s.logg != nil {
			s.logg.Error(ctx, "webhook processing error not recorded", recErr)
		}
		if s.logg != nil {
			s.logg.Error(ctx, "webhook processing failed", err)
		}
		return s.finish(ctx, event.Event, Result{HTTPStatus: http.StatusOK, Status: StatusError, EventID: eventID, Message: publicMessage(err)})
	}
	return s.finish(ctx, event.Event, Result{HTTPStatus: http.StatusOK, Status: out.status, EventID: eventID, Message: out.message})
}

func (s *Service) finish(ctx context.Context, eventType string, result Result) Result {
	s.metrics.Observe(eventType, result.Status)
	if s.logg != nil && result.Status != StatusError {
		logCtx := s.logg.WithField(ctx, "result", result.Status)
		s.logg.Info(logCtx, "razorpay webhook handled")
	}
	return result
}

func (s *Service) dispatch(ctx context.Context, entry *models.PaymentWebhookLog, event *Event) (outcome, error) {
	switch event.Event {
	case EventPaymentCaptured:
		p := event.payment()
		if p == nil || p.OrderID == "" {
			return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing order id")
		}
		return s.settle(ctx, entry, settlement{providerOrderID: p.OrderID, paymentID: p.ID, amountMinor: p.Amount})
	case EventOrderPaid:
		o := event.order()
		if o == nil || o.ID == "" {
			return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "order entity missing")
		}
		st := settlement{providerOrderID: o.ID, amountMinor: o.AmountPaid, backup: true}
		if p := event.payment(); p != nil {
			st.paymentID = p.ID
		}
		return s.settle(ctx, entry, st)
	case EventPaymentAuthorized:
		return s.authorize(ctx, entry, event.payment())
	case EventPaymentFailed:
		return s.fail(ctx, entry, event.payment())
	case EventRefundProcessed:
		return s.refund(ctx, entry, event)
	case EventRefundFailed:
		return s.refundFailed(ctx, entry, event)
	default:
		if err := s.logs.MarkProcessed(ctx, entry.ID, nil, s.now().UTC()); err != nil {
			return outcome{}, err
		}
		return outcome{status: StatusIgnored}, nil
	}
}

type settlement struct {
	providerOrderID string
	paymentID       string
	amountMinor     int64
	backup          bool
}

// settle applies a capture (or the order.paid backup signal). The received
// amount must equal the order total in minor units.
func (s *Service) settle(ctx context.Context, entry *models.PaymentWebhookLog, st settlement) (outcome, error) {
	var out outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		logs := s.logs.WithTx(tx)
		now := s.now().UTC()

		txn, err := payments.FindTransactionByProviderOrderID(ctx, st.providerOrderID)
		if err != nil {
			return err
		}
		order, err := payments.FindOrder(ctx, txn.OrderID)
		if err != nil {
			return err
		}
		if st.backup && !order.PaymentStatus.Payable() {
			out = outcome{status: StatusSuccess, message: "order already settled"}
			return logs.MarkProcessed(ctx, entry.ID, nil, now)
		}
		if !st.backup && txn.Status == enums.TransactionStatusCaptured && txn.WebhookVerified {
			out = outcome{status: StatusSuccess, message: "payment already captured"}
			return logs.MarkProcessed(ctx, entry.ID, nil, now)
		}

		expected := order.TotalAmount.Mul(minorUnits).Round(0)
		received := decimal.NewFromInt(st.amountMinor)
		if !expected.Equal(received) {
			detail := fmt.Sprintf("expected %s, received %s", expected.String(), received.String())
			if !txn.Status.IsSettled() {
				updates := map[string]any{
					"status":            enums.TransactionStatusFailed,
					"error_code":        string(pkgerrors.CodeAmountMismatch),
					"error_description": detail,
				}
				if st.paymentID != "" {
					updates["provider_payment_id"] = st.paymentID
				}
				if err := payments.UpdateTransaction(ctx, txn.ID, updates); err != nil {
					return err
				}
			}
			if s.logg != nil {
				logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
				s.logg.Error(logCtx, "payment amount mismatch", pkgerrors.New(pkgerrors.CodeAmountMismatch, detail))
			}
			out = outcome{status: StatusError, message: string(pkgerrors.CodeAmountMismatch)}
			reason := string(pkgerrors.CodeAmountMismatch) + ": " + detail
			return logs.MarkProcessed(ctx, entry.ID, &reason, now)
		}

		updates := map[string]any{"webhook_verified": true}
		if !txn.Status.IsSettled() || txn.Status == enums.TransactionStatusCaptured {
			updates["status"] = enums.TransactionStatusCaptured
			updates["captured_at"] = now
			updates["error_code"] = nil
			updates["error_description"] = nil
		}
		if st.paymentID != "" && (txn.ProviderPaymentID == nil || !txn.Status.IsSettled()) {
			updates["provider_payment_id"] = st.paymentID
		}
		if err := payments.UpdateTransaction(ctx, txn.ID, updates); err != nil {
			return err
		}

		paid, err := payments.MarkOrderPaid(ctx, order.ID, received.Div(minorUnits), now)
		if err != nil {
			return err
		}
		if paid {
			if err := s.emitPaid(ctx, tx, order, txn, st.paymentID, received.Div(minorUnits), now); err != nil {
				return err
			}
		}
		out = outcome{status: StatusSuccess}
		if !paid {
			out.message = "order already settled; payment status unchanged"
		}
		return logs.MarkProcessed(ctx, entry.ID, nil, now)
	})
	return out, err
}

func (s *Service) emitPaid(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.PaymentTransaction, paymentID string, amount decimal.Decimal, now time.Time) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCaptured,
		AggregateType: enums.AggregatePayment,
		AggregateID:   txn.ID,
		OccurredAt:    now,
		Data: payloads.PaymentCapturedEvent{
			OrderID:           order.ID,
			OrderNumber:       order.OrderNumber,
			TransactionID:     txn.ID,
			ProviderPaymentID: paymentID,
			Amount:            amount,
			Currency:          txn.Currency,
			CapturedAt:        now,
		},
	}); err != nil {
		return err
	}
	return s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoiceGenerateRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		OccurredAt:    now,
		Data: payloads.InvoiceGenerateRequestedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Amount:      amount,
			Currency:    order.Currency,
			PaidAt:      now,
		},
	})
}

func (s *Service) authorize(ctx context.Context, entry *models.PaymentWebhookLog, p *Payment) (outcome, error) {
	if p == nil || p.OrderID == "" {
		return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing order id")
	}
	var out outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		txn, err := payments.FindTransactionByProviderOrderID(ctx, p.OrderID)
		if err != nil {
			return err
		}
		out = outcome{status: StatusSuccess}
		if txn.Status.IsSettled() {
			out.message = "payment already settled"
		} else if err := payments.UpdateTransaction(ctx, txn.ID, map[string]any{
			"status":              enums.TransactionStatusAuthorized,
			"provider_payment_id": p.ID,
		}); err != nil {
			return err
		}
		return s.logs.WithTx(tx).MarkProcessed(ctx, entry.ID, nil, s.now().UTC())
	})
	return out, err
}

// fail records the provider error. A failure never downgrades a settled
// payment and only moves a pending order.
func (s *Service) fail(ctx context.Context, entry *models.PaymentWebhookLog, p *Payment) (outcome, error) {
	if p == nil || p.OrderID == "" {
		return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing order id")
	}
	var out outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		txn, err := payments.FindTransactionByProviderOrderID(ctx, p.OrderID)
		if err != nil {
			return err
		}
		out = outcome{status: StatusSuccess}
		if txn.Status.IsSettled() {
			out.message = "payment already settled"
			return s.logs.WithTx(tx).MarkProcessed(ctx, entry.ID, nil, s.now().UTC())
		}
		if err := payments.UpdateTransaction(ctx, txn.ID, map[string]any{
			"status":              enums.TransactionStatusFailed,
			"provider_payment_id": p.ID,
			"error_code":          p.ErrorCode,
			"error_description":   p.ErrorDescription,
		}); err != nil {
			return err
		}
		if _, err := payments.MarkOrderPaymentFailed(ctx, txn.OrderID); err != nil {
			return err
		}
		return s.logs.WithTx(tx).MarkProcessed(ctx, entry.ID, nil, s.now().UTC())
	})
	return out, err
}

// refund accumulates the refunded amount; the payment is fully refunded once
// the total reaches the charged amount.
func (s *Service) refund(ctx context.Context, entry *models.PaymentWebhookLog, event *Event) (outcome, error) {
	r := event.refund()
	if r == nil {
		return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "refund entity missing")
	}
	paymentID := r.PaymentID
	if paymentID == "" {
		if p := event.payment(); p != nil {
			paymentID = p.ID
		}
	}
	if paymentID == "" {
		return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "refund missing payment id")
	}
	if r.Amount <= 0 {
		return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var out outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		now := s.now().UTC()
		txn, err := payments.FindTransactionByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}
		if !txn.Status.IsSettled() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund for unsettled payment").
				WithDetails(map[string]any{"status": txn.Status})
		}

		amount := decimal.NewFromInt(r.Amount).Div(minorUnits)
		refunded := txn.RefundedAmount.Add(amount)
		full := refunded.GreaterThanOrEqual(txn.Amount)
		txnStatus, orderStatus := enums.TransactionStatusPartiallyRefunded, enums.PaymentStatusPartiallyRefunded
		if full {
			txnStatus, orderStatus = enums.TransactionStatusRefunded, enums.PaymentStatusRefunded
		}
		if err := payments.UpdateTransaction(ctx, txn.ID, map[string]any{
			"refunded_amount": refunded,
			"status":          txnStatus,
		}); err != nil {
			return err
		}
		if _, err := payments.SetOrderRefundStatus(ctx, txn.OrderID, orderStatus); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   txn.ID,
			OccurredAt:    now,
			Data: payloads.PaymentRefundedEvent{
				OrderID:        txn.OrderID,
				TransactionID:  txn.ID,
				RefundID:       r.ID,
				RefundAmount:   amount,
				RefundedAmount: refunded,
				FullyRefunded:  full,
			},
		}); err != nil {
			return err
		}
		out = outcome{status: StatusSuccess}
		return s.logs.WithTx(tx).MarkProcessed(ctx, entry.ID, nil, now)
	})
	return out, err
}

func (s *Service) refundFailed(ctx context.Context, entry *models.PaymentWebhookLog, event *Event) (outcome, error) {
	r := event.refund()
	if r == nil || r.PaymentID == "" {
		return outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "refund entity missing payment id")
	}
	var out outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		txn, err := payments.FindTransactionByPaymentID(ctx, r.PaymentID)
		if err != nil {
			return err
		}
		if err := payments.UpdateTransaction(ctx, txn.ID, map[string]any{
			"needs_review":      true,
			"error_code":        errorRefundFailed,
			"error_description": fmt.Sprintf("refund %s failed", r.ID),
		}); err != nil {
			return err
		}
		if s.logg != nil {
			s.logg.Warn(ctx, "refund failed; payment flagged for review")
		}
		out = outcome{status: StatusSuccess}
		return s.logs.WithTx(tx).MarkProcessed(ctx, entry.ID, nil, s.now().UTC())
	})
	return out, err
}

func publicMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
