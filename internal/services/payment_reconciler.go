package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/payments"
	"github.com/kiranakart/api/internal/repositories"
)

const (
	defaultReconcileInterval  = 5 * time.Second
	defaultReconcileBatchSize = 50
)

// PaymentReconcilerDeps wires the collaborators for the background sweeper.
type PaymentReconcilerDeps struct {
	Orders    repositories.OrderRepository
	Service   OrderService
	Payments  checkoutGateway
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// PaymentReconciler periodically sweeps unpaid orders that hold a gateway
// session and asks the gateway for their authoritative status. Orders whose
// payment succeeded out-of-band (the customer paid but the redirect never
// landed) are marked paid; everything else is left for the next tick.
type PaymentReconciler struct {
	orders    repositories.OrderRepository
	service   OrderService
	payments  checkoutGateway
	interval  time.Duration
	batchSize int
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentReconciler validates dependencies and returns a ready reconciler.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (*PaymentReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment reconciler: order repository is required")
	}
	if deps.Service == nil {
		return nil, errors.New("payment reconciler: order service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment reconciler: payment manager is required")
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentReconciler{
		orders:    deps.Orders,
		service:   deps.Service,
		payments:  deps.Payments,
		interval:  interval,
		batchSize: batch,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// Run blocks, sweeping on a fixed interval until the context is cancelled.
// Individual sweep failures are logged and never stop the loop.
func (r *PaymentReconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger(ctx, "reconciler.sweep_failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

// SweepOnce reconciles a single batch of pending orders. Exposed separately
// so operators can trigger an immediate sweep.
func (r *PaymentReconciler) SweepOnce(ctx context.Context) error {
	page, err := r.orders.List(ctx, repositories.OrderListFilter{
		Status:     []string{string(domain.OrderStatusPendingPayment)},
		Pagination: domain.Pagination{PageSize: r.batchSize},
	})
	if err != nil {
		return err
	}

	for _, order := range page.Items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.reconcileOrder(ctx, order); err != nil {
			r.logger(ctx, "reconciler.order_failed", map[string]any{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}

func (r *PaymentReconciler) reconcileOrder(ctx context.Context, order domain.Order) error {
	if order.Payment == nil || strings.TrimSpace(order.Payment.SessionID) == "" {
		// No session yet: checkout is still mid-flight or failed before the
		// gateway call. Nothing to ask the gateway about.
		return nil
	}

	details, err := r.payments.LookupPayment(ctx, payments.PaymentContext{
		PreferredProvider: order.Payment.Provider,
		Currency:          order.Currency,
	}, payments.LookupRequest{IntentID: order.Payment.SessionID})
	if err != nil {
		return err
	}

	switch details.Status {
	case payments.StatusSucceeded:
		markDetails := map[string]any{}
		if details.IntentID != "" {
			markDetails["gatewayRef"] = details.IntentID
		}
		_, err := r.service.MarkPaid(ctx, MarkPaidCommand{
			OrderID:   order.ID,
			SessionID: order.Payment.SessionID,
			Details:   markDetails,
		})
		if err == nil {
			r.logger(ctx, "reconciler.order_paid", map[string]any{
				"order_id": order.ID,
				"session":  order.Payment.SessionID,
			})
		}
		return err
	case payments.StatusFailed:
		r.logger(ctx, "reconciler.payment_failed", map[string]any{
			"order_id": order.ID,
			"session":  order.Payment.SessionID,
		})
		return nil
	default:
		return nil
	}
}
