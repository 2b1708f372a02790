package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const paymentProvider = "razorpay"

// Service owns order placement and the stock claims behind each order.
type Service interface {
	ValidateStockAvailability(ctx context.Context, items []inventory.StockRequest, allowOverselling bool) (*StockCheck, error)
	ReserveStockForOrder(ctx context.Context, tx *gorm.DB, orderNumber, owner string, items []inventory.StockRequest, allowOverselling bool) ([]Claim, error)
	FulfillOrderInventory(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderItem, error)
	ReleaseReservation(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderItem, error)
	ProcessOrderReturn(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []ReturnLine) ([]models.OrderItem, error)

	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (*models.Order, error)
	FulfillOrder(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error)
	ReturnOrder(ctx context.Context, orderID uuid.UUID, lines []ReturnLine, actor *outbox.ActorRef) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type discountEvaluator interface {
	ValidateTx(ctx context.Context, tx *gorm.DB, code string, cart discounts.CartSnapshot) (*discounts.Validation, error)
	CalculateDiscount(validation *discounts.Validation, cart discounts.CartSnapshot) discounts.Calculation
	RecordUsage(ctx context.Context, tx *gorm.DB, discountID uuid.UUID, customerID *uuid.UUID, orderID uuid.UUID) error
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo      Repository
	Inventory inventory.Repository
	Resolver  stockResolver
	Carts     cartConverter
	Discounts discountEvaluator
	Outbox    outboxEmitter
	Tx        txRunner
	Logger    *logger.Logger
	Metrics   *metrics.ReservationMetrics
	Now       func() time.Time
}

type service struct {
	repo      Repository
	inventory inventory.Repository
	resolver  stockResolver
	carts     cartConverter
	discounts discountEvaluator
	outbox    outboxEmitter
	tx        txRunner
	logg      *logger.Logger
	metrics   *metrics.ReservationMetrics
	now       func() time.Time
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("stock resolver required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart converter required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discount evaluator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		inventory: params.Inventory,
		resolver:  params.Resolver,
		carts:     params.Carts,
		discounts: params.Discounts,
		outbox:    params.Outbox,
		tx:        params.Tx,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// PlaceOrder commits the order, its stock claims, the discount redemption, a
// pending payment attempt and the order.created event in one transaction.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if err := validatePlaceOrder(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	orderID := uuid.New()
	orderNumber := newOrderNumber(now)
	owner := ownerRef(input.UserID)
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claims, err := s.claimStock(ctx, tx, orderID, orderNumber, owner, input)
		if err != nil {
			return err
		}

		snapshot := buildSnapshot(input)
		subtotal := snapshot.Subtotal()
		calc := discounts.Calculation{DiscountAmount: decimal.Zero, ShippingDiscount: decimal.Zero}
		var discountID *uuid.UUID
		var discountCode *string
		if strings.TrimSpace(input.DiscountCode) != "" {
			validation, err := s.discounts.ValidateTx(ctx, tx, input.DiscountCode, snapshot)
			if err != nil {
				return err
			}
			calc = s.discounts.CalculateDiscount(validation, snapshot)
			discountID = &validation.Discount.ID
			code := validation.Discount.Code
			discountCode = &code
		}

		shares := allocateDiscount(input.Lines, claims, calc.Lines)
		items := make([]models.OrderItem, 0, len(claims))
		for i, claim := range claims {
			line := input.Lines[claim.line]
			items = append(items, models.OrderItem{
				ID:              uuid.New(),
				InventoryItemID: claim.Item.ID,
				ProductID:       line.ProductID,
				VariantID:       line.VariantID,
				LocationID:      claim.Item.LocationID,
				Quantity:        claim.Quantity,
				UnitPrice:       line.UnitPrice,
				DiscountAmount:  shares[i],
				InventoryStatus: enums.InventoryClaimReserved,
			})
		}

		total := subtotal.Add(input.ShippingAmount).Sub(calc.Total())
		if total.IsNegative() {
			total = decimal.Zero
		}
		order = &models.Order{
			ID:               orderID,
			OrderNumber:      orderNumber,
			UserID:           input.UserID,
			OwnerRef:         owner,
			CartID:           input.CartID,
			IsDirect:         input.IsDirect,
			AllowOverselling: input.AllowOverselling,
			Currency:         currency,
			SubtotalAmount:   subtotal.Round(2),
			DiscountAmount:   calc.Total().Round(2),
			ShippingAmount:   input.ShippingAmount.Round(2),
			TotalAmount:      total.Round(2),
			AmountPaid:       decimal.Zero,
			DiscountID:       discountID,
			DiscountCode:     discountCode,
			OrderStatus:      enums.OrderStatusPending,
			PaymentStatus:    enums.PaymentStatusPending,
			Items:            items,
		}
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if discountID != nil {
			if err := s.discounts.RecordUsage(ctx, tx, *discountID, input.UserID, orderID); err != nil {
				return err
			}
		}

		providerOrderID := strings.TrimSpace(input.ProviderOrderID)
		if providerOrderID == "" {
			providerOrderID = orderNumber
		}
		if err := repo.CreatePaymentTransaction(ctx, &models.PaymentTransaction{
			OrderID:         orderID,
			Provider:        paymentProvider,
			ProviderOrderID: providerOrderID,
			Amount:          order.TotalAmount,
			Currency:        currency,
			Status:          enums.TransactionStatusPending,
			RefundedAmount:  decimal.Zero,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         input.Actor,
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:          orderID,
				OrderNumber:      orderNumber,
				OwnerRef:         owner,
				TotalAmount:      order.TotalAmount,
				Currency:         currency,
				IsDirect:         input.IsDirect,
				AllowOverselling: input.AllowOverselling,
				Lines:            toEventLines(items),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, orderNumber)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"owner":     owner,
			"items":     len(order.Items),
			"total":     order.TotalAmount.String(),
			"is_direct": input.IsDirect,
		})
		s.logg.Info(logCtx, "order placed")
	}
	return order, nil
}

// claimStock carries converted cart holds over to the order and reserves fresh
// stock for whatever the holds do not cover. Hold units no line needs go back
// to the pool.
func (s *service) claimStock(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, orderNumber, owner string, input PlaceOrderInput) ([]Claim, error) {
	remaining := make([]int, len(input.Lines))
	for i, line := range input.Lines {
		remaining[i] = line.Quantity
	}

	var claims []Claim
	stock := s.inventory.WithTx(tx)
	if input.CartID != nil {
		holds, err := s.carts.ConvertCartReservation(ctx, tx, *input.CartID, orderID)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(holds))
		for _, hold := range holds {
			ids = append(ids, hold.InventoryItemID)
		}
		rows, err := stock.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, hold := range holds {
			row := rows[hold.InventoryItemID]
			left := hold.Quantity
			for i, line := range input.Lines {
				if left == 0 {
					break
				}
				if remaining[i] == 0 || line.ProductID != hold.ProductID || !sameID(line.VariantID, hold.VariantID) {
					continue
				}
				if line.LocationID != nil && !sameID(line.LocationID, row.LocationID) {
					continue
				}
				take := min(left, remaining[i])
				claims = append(claims, Claim{Item: row, Quantity: take, line: i})
				remaining[i] -= take
				left -= take
			}
			if left > 0 {
				if err := stock.DecrementReserved(ctx, hold.InventoryItemID, left); err != nil {
					return nil, err
				}
			}
		}
	}

	var requests []inventory.StockRequest
	var requestLines []int
	for i, line := range input.Lines {
		if remaining[i] == 0 {
			continue
		}
		req := line.request()
		req.Quantity = remaining[i]
		requests = append(requests, req)
		requestLines = append(requestLines, i)
	}
	if len(requests) == 0 {
		return claims, nil
	}
	fresh, err := s.ReserveStockForOrder(ctx, tx, orderNumber, owner, requests, input.AllowOverselling)
	if err != nil {
		return nil, err
	}
	for _, claim := range fresh {
		claim.line = requestLines[claim.line]
		claims = append(claims, claim)
	}
	return claims, nil
}

// CancelOrder releases reserved claims and marks the order cancelled.
func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (*models.Order, error) {
	return s.transition(ctx, orderID, enums.EventOrderCancelled, reason, actor,
		func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, []models.OrderItem, error) {
			if !order.OrderStatus.Cancellable() {
				return nil, nil, orderConflict(order, enums.OrderStatusCancelled)
			}
			released, err := s.ReleaseReservation(ctx, tx, order.ID)
			if err != nil {
				return nil, nil, err
			}
			now := s.now().UTC()
			return map[string]any{
				"order_status": enums.OrderStatusCancelled,
				"cancelled_at": now,
			}, released, nil
		})
}

// FulfillOrder ships the order. Non-direct orders must be paid first.
func (s *service) FulfillOrder(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error) {
	return s.transition(ctx, orderID, enums.EventOrderFulfilled, "", actor,
		func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, []models.OrderItem, error) {
			switch order.OrderStatus {
			case enums.OrderStatusConfirmed, enums.OrderStatusProcessing:
			case enums.OrderStatusPending:
				if !order.IsDirect {
					return nil, nil, orderConflict(order, enums.OrderStatusShipped)
				}
			default:
				return nil, nil, orderConflict(order, enums.OrderStatusShipped)
			}
			if !order.IsDirect && order.PaymentStatus != enums.PaymentStatusPaid {
				return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid").
					WithDetails(map[string]any{"payment_status": order.PaymentStatus})
			}
			fulfilled, err := s.FulfillOrderInventory(ctx, tx, order.ID)
			if err != nil {
				return nil, nil, err
			}
			return map[string]any{
				"order_status": enums.OrderStatusShipped,
				"fulfilled_at": s.now().UTC(),
			}, fulfilled, nil
		})
}

// ReturnOrder restocks returned units. The order becomes returned once nothing
// shipped is still outstanding.
func (s *service) ReturnOrder(ctx context.Context, orderID uuid.UUID, lines []ReturnLine, actor *outbox.ActorRef) (*models.Order, error) {
	return s.transition(ctx, orderID, enums.EventOrderReturned, "", actor,
		func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, []models.OrderItem, error) {
			switch order.OrderStatus {
			case enums.OrderStatusShipped, enums.OrderStatusDelivered:
			default:
				return nil, nil, orderConflict(order, enums.OrderStatusReturned)
			}
			returned, err := s.ProcessOrderReturn(ctx, tx, order.ID, lines)
			if err != nil {
				return nil, nil, err
			}
			items, err := s.repo.WithTx(tx).FindItems(ctx, order.ID)
			if err != nil {
				return nil, nil, err
			}
			for _, item := range items {
				if item.InventoryStatus == enums.InventoryClaimFulfilled {
					return map[string]any{}, returned, nil
				}
			}
			return map[string]any{"order_status": enums.OrderStatusReturned}, returned, nil
		})
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.repo.FindByID(ctx, orderID)
}

type transitionFunc func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, []models.OrderItem, error)

func (s *service) transition(ctx context.Context, orderID uuid.UUID, eventType enums.OutboxEventType, reason string, actor *outbox.ActorRef, fn transitionFunc) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		updates, touched, err := fn(ctx, tx, order)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := repo.UpdateOrder(ctx, orderID, updates); err != nil {
				return err
			}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data: payloads.OrderInventoryEvent{
				OrderID:     orderID,
				OrderNumber: order.OrderNumber,
				Lines:       toEventLines(touched),
				OccurredAt:  s.now().UTC(),
				Reason:      reason,
			},
		}); err != nil {
			return err
		}
		updated, err = repo.FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, updated.OrderNumber)
		logCtx = s.logg.WithField(logCtx, "order_status", updated.OrderStatus)
		s.logg.Info(logCtx, string(eventType))
	}
	return updated, nil
}

func validatePlaceOrder(input PlaceOrderInput) error {
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line required")
	}
	for _, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if line.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
		}
	}
	if strings.TrimSpace(input.Currency) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency required")
	}
	if input.ShippingAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping amount must not be negative")
	}
	if input.AllowOverselling && !input.IsDirect {
		return pkgerrors.New(pkgerrors.CodeValidation, "overselling is only allowed on direct orders")
	}
	return nil
}

func buildSnapshot(input PlaceOrderInput) discounts.CartSnapshot {
	items := make([]discounts.CartItem, 0, len(input.Lines))
	for _, line := range input.Lines {
		items = append(items, discounts.CartItem{
			ProductID:     line.ProductID,
			VariantID:     line.VariantID,
			CollectionIDs: line.CollectionIDs,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
		})
	}
	return discounts.CartSnapshot{
		Items:          items,
		ShippingAmount: input.ShippingAmount,
		Customer: discounts.Customer{
			CustomerID: input.UserID,
			Segments:   input.Segments,
			Country:    input.Country,
		},
	}
}

// allocateDiscount spreads each line's discount across the claims that fill
// it, weighted by quantity. The last claim of a line absorbs rounding.
func allocateDiscount(lines []LineInput, claims []Claim, calcLines []discounts.LineDiscount) []decimal.Decimal {
	pending := map[string][]decimal.Decimal{}
	for _, ld := range calcLines {
		key := lineKey(ld.ProductID, ld.VariantID)
		pending[key] = append(pending[key], ld.Amount)
	}
	perLine := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		perLine[i] = decimal.Zero
		key := lineKey(line.ProductID, line.VariantID)
		if queue := pending[key]; len(queue) > 0 {
			perLine[i] = queue[0]
			pending[key] = queue[1:]
		}
	}

	claimed := make([]int, len(lines))
	assigned := make([]decimal.Decimal, len(lines))
	for i := range assigned {
		assigned[i] = decimal.Zero
	}
	shares := make([]decimal.Decimal, len(claims))
	for i, claim := range claims {
		line := claim.line
		claimed[line] += claim.Quantity
		if claimed[line] >= lines[line].Quantity {
			shares[i] = perLine[line].Sub(assigned[line])
		} else {
			shares[i] = perLine[line].
				Mul(decimal.NewFromInt(int64(claim.Quantity))).
				Div(decimal.NewFromInt(int64(lines[line].Quantity))).
				Round(2)
		}
		assigned[line] = assigned[line].Add(shares[i])
	}
	return shares
}

func toEventLines(items []models.OrderItem) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, payloads.OrderLine{
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			InventoryItemID: item.InventoryItemID,
			Quantity:        item.Quantity,
		})
	}
	return lines
}

func orderConflict(order *models.Order, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
		WithDetails(map[string]any{
			"order_number": order.OrderNumber,
			"from":         order.OrderStatus,
			"to":           to,
		})
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "SF" + now.Format("20060102") + "-" + suffix
}

func ownerRef(userID *uuid.UUID) string {
	if userID == nil {
		return models.GuestOwner
	}
	return userID.String()
}

func lineKey(productID uuid.UUID, variantID *uuid.UUID) string {
	if variantID == nil {
		return productID.String()
	}
	return productID.String() + ":" + variantID.String()
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
