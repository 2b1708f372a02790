// Package invoices issues one invoice per paid order from
// invoice.generate_requested events.
package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/eventing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/routing"
)

// ConsumerName scopes the idempotency keys of the invoice worker.
const ConsumerName = "invoices"

type Service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, logg *logger.Logger, now func() time.Time) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, logg: logg, now: now}, nil
}

// Handle implements eventing.Handler. Other event types are skipped.
func (s *Service) Handle(ctx context.Context, envelope eventing.Envelope) error {
	if envelope.EventType != enums.EventInvoiceGenerateRequested {
		return nil
	}
	request, err := routing.Decode[payloads.InvoiceGenerateRequestedEvent](envelope.Version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode invoice request: %w", err)
	}
	_, err = s.Generate(ctx, request)
	return err
}

// Generate returns the existing invoice for the order or issues a new one.
func (s *Service) Generate(ctx context.Context, request payloads.InvoiceGenerateRequestedEvent) (*models.Invoice, error) {
	if request.OrderID == uuid.Nil || strings.TrimSpace(request.OrderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and number required")
	}
	existing, err := s.repo.FindByOrderID(ctx, request.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if existing != nil {
		return existing, nil
	}

	issuedAt := s.now().UTC()
	billedOn := request.PaidAt
	if billedOn.IsZero() {
		billedOn = issuedAt
	}
	invoice := &models.Invoice{
		InvoiceNumber: InvoiceNumber(billedOn, request.OrderNumber),
		OrderID:       request.OrderID,
		OrderNumber:   request.OrderNumber,
		Amount:        request.Amount,
		Currency:      strings.ToUpper(request.Currency),
		IssuedAt:      issuedAt,
	}
	created, err := s.repo.CreateIfAbsent(ctx, invoice)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}
	if !created {
		return s.repo.FindByOrderID(ctx, request.OrderID)
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, request.OrderNumber)
		logCtx = s.logg.WithField(logCtx, "invoice_number", invoice.InvoiceNumber)
		s.logg.Info(logCtx, "invoice issued")
	}
	return invoice, nil
}

// InvoiceNumber formats INV-YYYYMMDD-<order number> in UTC.
func InvoiceNumber(billedOn time.Time, orderNumber string) string {
	return fmt.Sprintf("INV-%s-%s", billedOn.UTC().Format("20060102"), strings.TrimSpace(orderNumber))
}
