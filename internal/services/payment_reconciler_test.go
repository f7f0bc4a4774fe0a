package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/payments"
)

func newReconcilerFixture(t *testing.T, gateway *fakeGateway) (*PaymentReconciler, *fakeOrderRepo, OrderService) {
	t.Helper()
	repo := newFakeOrderRepo()
	orderSvc, err := NewOrderService(OrderServiceDeps{
		Orders:      repo,
		Counters:    &fakeCounterRepo{},
		Clock:       fixedClock(orderTestNow),
		IDGenerator: func() string { return "TESTULID" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	reconciler, err := NewPaymentReconciler(PaymentReconcilerDeps{
		Orders:   repo,
		Service:  orderSvc,
		Payments: gateway,
		Interval: 5 * time.Second,
		Clock:    fixedClock(orderTestNow),
	})
	if err != nil {
		t.Fatalf("NewPaymentReconciler: %v", err)
	}
	return reconciler, repo, orderSvc
}

func pendingOrderWithSession(id, sessionID string) domain.Order {
	totals := CartTotals{ItemsPrice: 55000, ShippingPrice: 19000, TaxPrice: 2000, TotalPrice: 76000}
	return domain.Order{
		ID:       id,
		UserID:   "user-1",
		Status:   domain.OrderStatusPendingPayment,
		Currency: "INR",
		Totals:   totals,
		Payment: &domain.OrderPayment{
			Provider:  "cashfree",
			SessionID: sessionID,
			Status:    "pending",
			Amount:    totals.TotalPrice,
			Currency:  "INR",
		},
	}
}

func TestPaymentReconcilerMarksSettledOrdersPaid(t *testing.T) {
	gateway := &fakeGateway{lookups: map[string]payments.PaymentDetails{
		"sess_paid": {IntentID: "cf_1", Status: payments.StatusSucceeded},
	}}
	reconciler, repo, _ := newReconcilerFixture(t, gateway)

	repo.orders["ord_paid"] = pendingOrderWithSession("ord_paid", "sess_paid")
	repo.orders["ord_waiting"] = pendingOrderWithSession("ord_waiting", "sess_waiting")

	if err := reconciler.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}

	if got := repo.orders["ord_paid"].Status; got != domain.OrderStatusPaid {
		t.Fatalf("expected ord_paid to be paid, got %s", got)
	}
	if repo.orders["ord_paid"].PaidAt == nil {
		t.Fatal("expected paidAt set")
	}
	if got := repo.orders["ord_waiting"].Status; got != domain.OrderStatusPendingPayment {
		t.Fatalf("expected ord_waiting untouched, got %s", got)
	}
}

func TestPaymentReconcilerSweepIsIdempotent(t *testing.T) {
	gateway := &fakeGateway{lookups: map[string]payments.PaymentDetails{
		"sess_paid": {IntentID: "cf_1", Status: payments.StatusSucceeded},
	}}
	reconciler, repo, _ := newReconcilerFixture(t, gateway)
	repo.orders["ord_paid"] = pendingOrderWithSession("ord_paid", "sess_paid")

	if err := reconciler.SweepOnce(context.Background()); err != nil {
		t.Fatalf("first SweepOnce: %v", err)
	}
	firstPaidAt := *repo.orders["ord_paid"].PaidAt

	// Paid orders drop out of the pending filter; even if the gateway were
	// asked again, MarkPaid with the same session is a no-op.
	if err := reconciler.SweepOnce(context.Background()); err != nil {
		t.Fatalf("second SweepOnce: %v", err)
	}
	if !repo.orders["ord_paid"].PaidAt.Equal(firstPaidAt) {
		t.Fatalf("expected unchanged paidAt, got %v", repo.orders["ord_paid"].PaidAt)
	}
}

func TestPaymentReconcilerSkipsOrdersWithoutSession(t *testing.T) {
	gateway := &fakeGateway{lookups: map[string]payments.PaymentDetails{}}
	reconciler, repo, _ := newReconcilerFixture(t, gateway)

	order := pendingOrderWithSession("ord_nosession", "")
	order.Payment = nil
	repo.orders["ord_nosession"] = order

	if err := reconciler.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if got := repo.orders["ord_nosession"].Status; got != domain.OrderStatusPendingPayment {
		t.Fatalf("expected order untouched, got %s", got)
	}
}

func TestPaymentReconcilerRunStopsOnContextCancel(t *testing.T) {
	gateway := &fakeGateway{lookups: map[string]payments.PaymentDetails{}}
	reconciler, _, _ := newReconcilerFixture(t, gateway)
	reconciler.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reconciler.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}
