package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/repositories"
)

const (
	orderEventCreated           = "order.created"
	orderEventStatusChanged     = "order.status.changed"
	orderEventPaymentReconciled = "order.payment.reconciled"

	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicate submissions or conflicting payment sessions.
	ErrOrderConflict = errors.New("order: conflict")
)

// Forward-only lifecycle. A status never appears as a target for any status
// ranked at or above it.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPendingPayment: {domain.OrderStatusPaid},
	domain.OrderStatusPaid:           {domain.OrderStatusShipped},
	domain.OrderStatusShipped:        {domain.OrderStatusDelivered},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreateFromCart freezes the cart into an order snapshot in pending_payment.
// Items, address, and totals are copied; later cart edits never affect the
// order.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error) {
	cart := cmd.Cart
	if len(cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart must contain at least one item", ErrOrderInvalidInput)
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: cart user id is required", ErrOrderInvalidInput)
	}
	if cart.ShippingAddress == nil || strings.TrimSpace(cart.ShippingAddress.PostalCode) == "" {
		return Order{}, fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}
	if cart.Totals == nil {
		return Order{}, fmt.Errorf("%w: cart totals are required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cart.PaymentMethod) == "" {
		return Order{}, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}
	currency := strings.TrimSpace(cart.Currency)
	if currency == "" {
		return Order{}, fmt.Errorf("%w: cart currency is required", ErrOrderInvalidInput)
	}

	now := s.now()

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		UserID:          userID,
		Status:          domain.OrderStatusPendingPayment,
		Currency:        currency,
		Items:           buildOrderLineItems(cart.Items),
		ShippingAddress: *cart.ShippingAddress,
		PaymentMethod:   strings.TrimSpace(cart.PaymentMethod),
		Totals:          *cart.Totals,
		IdempotencyKey:  strings.TrimSpace(cmd.IdempotencyKey),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if cart.Coupon != nil && cart.Coupon.Applied {
		order.CouponCode = cart.Coupon.Code
	}
	if contact := sanitizeContact(cmd.Contact); contact != nil {
		order.Contact = contact
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// MarkPaid applies a successful payment to the order. Reconciliation is
// keyed by the gateway session id: re-applying the session already recorded
// on a paid order is a no-op success, so redirect replays and admin retries
// never produce a second PaidAt. A different session against a paid order is
// a conflict.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return Order{}, fmt.Errorf("%w: payment session id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.IsPaid() {
		if order.Payment != nil && order.Payment.SessionID == sessionID {
			return order, nil
		}
		return Order{}, fmt.Errorf("%w: order %s already paid via another session", ErrOrderConflict, order.ID)
	}

	now := s.now()
	prevStatus := order.Status

	if err := s.applyStatusTransition(&order, domain.OrderStatusPaid, now); err != nil {
		return Order{}, err
	}

	payment := order.Payment
	if payment == nil {
		payment = &domain.OrderPayment{
			SessionID: sessionID,
			Amount:    order.Totals.TotalPrice,
			Currency:  order.Currency,
			CreatedAt: now,
		}
	}
	payment.SessionID = sessionID
	payment.Status = "paid"
	payment.ReconciledAt = &now
	payment.UpdatedAt = now
	if ref, ok := cmd.Details["gatewayRef"].(string); ok && strings.TrimSpace(ref) != "" {
		payment.GatewayRef = strings.TrimSpace(ref)
	}
	if len(cmd.Details) > 0 {
		payment.Raw = maps.Clone(cmd.Details)
	}
	order.Payment = payment

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentReconciled,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata:       map[string]any{"sessionId": sessionID},
	})

	return order, nil
}

// MarkShipped advances a paid order to shipped. Re-marking a shipped order
// is a no-op success; ShippedAt is set exactly once.
func (s *orderService) MarkShipped(ctx context.Context, cmd MarkStatusCommand) (Order, error) {
	return s.markStatus(ctx, cmd, domain.OrderStatusShipped, func(o Order) bool { return o.IsShipped() })
}

// MarkDelivered advances a shipped order to delivered.
func (s *orderService) MarkDelivered(ctx context.Context, cmd MarkStatusCommand) (Order, error) {
	return s.markStatus(ctx, cmd, domain.OrderStatusDelivered, func(o Order) bool { return o.IsDelivered() })
}

func (s *orderService) markStatus(ctx context.Context, cmd MarkStatusCommand, target domain.OrderStatus, reached func(Order) bool) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if reached(order) {
		return order, nil
	}

	now := s.now()
	prevStatus := order.Status

	if err := s.applyStatusTransition(&order, target, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})

	return order, nil
}

// applyStatusTransition mutates the order to the target status, stamping the
// lifecycle timestamp at most once. Regressions and skips are rejected.
func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	current := order.Status
	if current == target {
		order.UpdatedAt = now
		return nil
	}
	if !canTransition(current, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}

	order.Status = target
	order.UpdatedAt = now

	switch target {
	case domain.OrderStatusPaid:
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	}
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("KK-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func buildOrderLineItems(items []CartItem) []OrderLineItem {
	lines := make([]OrderLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderLineItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      item.Name,
			Brand:     item.Brand,
			Category:  item.Category,
			ImagePath: item.ImagePath,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.UnitPrice * int64(item.Quantity),
		})
	}
	return lines
}

func sanitizeContact(contact OrderContact) *OrderContact {
	contact.Name = strings.TrimSpace(contact.Name)
	contact.Email = strings.TrimSpace(contact.Email)
	contact.Phone = strings.TrimSpace(contact.Phone)
	if contact.Name == "" && contact.Email == "" && contact.Phone == "" {
		return nil
	}
	return &contact
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	return slices.Contains(orderStateTransitions[current], target)
}
