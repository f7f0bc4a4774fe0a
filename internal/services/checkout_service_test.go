package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/payments"
)

type fakeGateway struct {
	sessions    int
	failCreate  bool
	lookups     map[string]payments.PaymentDetails
	lastRequest payments.CheckoutSessionRequest
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, _ payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if g.failCreate {
		return payments.CheckoutSession{}, errors.New("gateway down")
	}
	g.sessions++
	g.lastRequest = req
	return payments.CheckoutSession{
		ID:           "sess_1",
		Provider:     "cashfree",
		ClientSecret: "session_tok_1",
		IntentID:     "cf_987",
		RedirectURL:  "https://gateway.example/pay/sess_1",
	}, nil
}

func (g *fakeGateway) LookupPayment(_ context.Context, _ payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if details, ok := g.lookups[req.IntentID]; ok {
		return details, nil
	}
	return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusPending}, nil
}

type checkoutFixture struct {
	svc     CheckoutService
	cart    cartFixture
	orders  *fakeOrderRepo
	gateway *fakeGateway
}

func newCheckoutFixture(t *testing.T, coupons ...domain.Coupon) checkoutFixture {
	t.Helper()

	cart := newCartFixture(t, []domain.Product{testProduct("prd_rice", 55000, 10)}, coupons...)
	orders := newFakeOrderRepo()
	gateway := &fakeGateway{lookups: map[string]payments.PaymentDetails{}}

	orderSvc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Counters:    &fakeCounterRepo{},
		Clock:       fixedClock(orderTestNow),
		IDGenerator: func() string { return "TESTULID" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Cart:     cart.svc,
		Orders:   orderSvc,
		OrderLog: orders,
		Coupons:  cart.coupons,
		Payments: gateway,
		Clock:    fixedClock(orderTestNow),
		KeyGen:   func() string { return "generated-key" },
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}

	return checkoutFixture{svc: svc, cart: cart, orders: orders, gateway: gateway}
}

func (fx checkoutFixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := fx.cart.svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := fx.cart.svc.SetShippingAddress(ctx, SetShippingAddressCommand{
		UserID:  "user-1",
		Address: Address{Line1: "12 Gandhi Bazaar", City: "Bengaluru", PostalCode: "560004", Country: "IN"},
	}); err != nil {
		t.Fatalf("SetShippingAddress: %v", err)
	}
	if _, err := fx.cart.svc.SetPaymentMethod(ctx, SetPaymentMethodCommand{UserID: "user-1", Method: "cashfree"}); err != nil {
		t.Fatalf("SetPaymentMethod: %v", err)
	}
}

func TestCheckoutServicePlaceOrder(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.fillCart(t)

	result, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if result.Replayed {
		t.Fatal("expected fresh placement")
	}
	if result.Order.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("expected pending_payment got %s", result.Order.Status)
	}
	if result.Session.SessionID != "sess_1" {
		t.Fatalf("unexpected session %+v", result.Session)
	}
	if result.Order.Payment == nil || result.Order.Payment.SessionID != "sess_1" {
		t.Fatalf("expected session attached to order, got %+v", result.Order.Payment)
	}
	if !strings.Contains(fx.gateway.lastRequest.SuccessURL, "orderId="+result.Order.ID) {
		t.Fatalf("expected orderId in return url, got %s", fx.gateway.lastRequest.SuccessURL)
	}
	if fx.gateway.lastRequest.Amount != 76000 {
		t.Fatalf("expected session amount 76000 got %d", fx.gateway.lastRequest.Amount)
	}
	// The cart is cleared only after the gateway session exists.
	if _, ok := fx.cart.carts.carts["user-1"]; ok {
		t.Fatal("expected cart cleared after session creation")
	}
}

func TestCheckoutServicePlaceOrderForwardsContactAndNotifyURL(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.fillCart(t)

	_, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
		NotifyURL:      "https://shop.example/webhooks/cashfree",
		Contact: OrderContact{
			Name:  "Asha Rao",
			Email: "asha@example.in",
			Phone: "+919900112233",
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	metadata := fx.gateway.lastRequest.Metadata
	if metadata["notifyUrl"] != "https://shop.example/webhooks/cashfree" {
		t.Fatalf("expected notify url forwarded to gateway, metadata=%v", metadata)
	}
	if metadata["customerName"] != "Asha Rao" || metadata["customerEmail"] != "asha@example.in" || metadata["customerPhone"] != "+919900112233" {
		t.Fatalf("expected customer contact forwarded to gateway, metadata=%v", metadata)
	}
}

func TestCheckoutServicePlaceOrderReturnsGatewayPaymentToken(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.fillCart(t)

	result, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if result.Session.ClientSecret != "session_tok_1" {
		t.Fatalf("expected gateway payment token on session, got %+v", result.Session)
	}
	if result.Order.Payment == nil || result.Order.Payment.ClientSecret != "session_tok_1" {
		t.Fatalf("expected payment token persisted on order, got %+v", result.Order.Payment)
	}

	// A replay surfaces the same token so the client can relaunch checkout.
	replay, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("replayed PlaceOrder returned error: %v", err)
	}
	if !replay.Replayed || replay.Session.ClientSecret != "session_tok_1" {
		t.Fatalf("expected replay to carry the payment token, got %+v", replay.Session)
	}
}

func TestCheckoutServicePlaceOrderReplaysIdempotencyKey(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.fillCart(t)

	first, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("first PlaceOrder: %v", err)
	}

	second, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("second PlaceOrder: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay")
	}
	if second.Order.ID != first.Order.ID {
		t.Fatalf("expected same order %s got %s", first.Order.ID, second.Order.ID)
	}
	if second.Session.SessionID != first.Session.SessionID {
		t.Fatalf("expected same session, got %s", second.Session.SessionID)
	}
	if fx.gateway.sessions != 1 {
		t.Fatalf("expected one gateway session got %d", fx.gateway.sessions)
	}
	if len(fx.orders.orders) != 1 {
		t.Fatalf("expected one order got %d", len(fx.orders.orders))
	}
}

func TestCheckoutServicePlaceOrderGatewayFailureKeepsOrderAndCart(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.fillCart(t)
	fx.gateway.failCreate = true

	result, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected ErrCheckoutPaymentFailed got %v", err)
	}
	if result.Order.ID == "" {
		t.Fatal("expected unpaid order returned alongside error")
	}
	// The cart survives so the customer can retry.
	if _, ok := fx.cart.carts.carts["user-1"]; !ok {
		t.Fatal("expected cart untouched after gateway failure")
	}

	// A retry with the same key resumes the existing order.
	fx.gateway.failCreate = false
	retry, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("retry PlaceOrder: %v", err)
	}
	if !retry.Replayed {
		t.Fatal("expected replayed placement")
	}
	if retry.Order.ID != result.Order.ID {
		t.Fatalf("expected same order id %s got %s", result.Order.ID, retry.Order.ID)
	}
	if len(fx.orders.orders) != 1 {
		t.Fatalf("expected one order got %d", len(fx.orders.orders))
	}
}

func TestCheckoutServicePlaceOrderValidation(t *testing.T) {
	fx := newCheckoutFixture(t)

	if _, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "", ReturnURL: "https://x"}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput got %v", err)
	}
	if _, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1"}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput got %v", err)
	}
	// Empty cart is not ready for checkout.
	if _, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:    "user-1",
		ReturnURL: "https://shop.example/payment-result",
	}); !errors.Is(err, ErrCheckoutCartNotReady) {
		t.Fatalf("expected ErrCheckoutCartNotReady got %v", err)
	}
}

func TestCheckoutServiceReconcilePayment(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.fillCart(t)

	placed, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	// The gateway has not confirmed yet: the client flag alone is not enough.
	if _, err := fx.svc.ReconcilePayment(context.Background(), ReconcilePaymentCommand{
		OrderID:   placed.Order.ID,
		UserID:    "user-1",
		SessionID: "sess_1",
		Completed: true,
	}); !errors.Is(err, ErrCheckoutPaymentIncomplete) {
		t.Fatalf("expected ErrCheckoutPaymentIncomplete got %v", err)
	}

	fx.gateway.lookups["sess_1"] = payments.PaymentDetails{
		IntentID: "cf_123",
		Status:   payments.StatusSucceeded,
		Amount:   76000,
		Currency: "INR",
	}

	order, err := fx.svc.ReconcilePayment(context.Background(), ReconcilePaymentCommand{
		OrderID:   placed.Order.ID,
		UserID:    "user-1",
		SessionID: "sess_1",
		Completed: true,
	})
	if err != nil {
		t.Fatalf("ReconcilePayment returned error: %v", err)
	}
	if order.Status != domain.OrderStatusPaid || order.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", order)
	}
	firstPaidAt := *order.PaidAt

	// Replaying the redirect is a no-op success.
	again, err := fx.svc.ReconcilePayment(context.Background(), ReconcilePaymentCommand{
		OrderID:   placed.Order.ID,
		UserID:    "user-1",
		SessionID: "sess_1",
		Completed: true,
	})
	if err != nil {
		t.Fatalf("replayed ReconcilePayment returned error: %v", err)
	}
	if !again.PaidAt.Equal(firstPaidAt) {
		t.Fatalf("expected unchanged paidAt, got %v", again.PaidAt)
	}

	// A session id the order never saw is rejected.
	if _, err := fx.svc.ReconcilePayment(context.Background(), ReconcilePaymentCommand{
		OrderID:   placed.Order.ID,
		UserID:    "user-1",
		SessionID: "sess_other",
	}); !errors.Is(err, ErrCheckoutOrderMismatch) {
		t.Fatalf("expected ErrCheckoutOrderMismatch got %v", err)
	}

	// Another user cannot reconcile this order.
	if _, err := fx.svc.ReconcilePayment(context.Background(), ReconcilePaymentCommand{
		OrderID:   placed.Order.ID,
		UserID:    "user-2",
		SessionID: "sess_1",
	}); !errors.Is(err, ErrCheckoutOrderMismatch) {
		t.Fatalf("expected ErrCheckoutOrderMismatch got %v", err)
	}
}

func TestCheckoutServiceReconcilePaymentAbandonedRedirect(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.fillCart(t)

	placed, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	fx.gateway.lookups["sess_1"] = payments.PaymentDetails{
		IntentID: "cf_123",
		Status:   payments.StatusSucceeded,
	}

	// A redirect flagged as not completed short-circuits before the gateway
	// is consulted, even when the gateway would report success.
	if _, err := fx.svc.ReconcilePayment(context.Background(), ReconcilePaymentCommand{
		OrderID:   placed.Order.ID,
		UserID:    "user-1",
		SessionID: "sess_1",
		Completed: false,
	}); !errors.Is(err, ErrCheckoutPaymentIncomplete) {
		t.Fatalf("expected ErrCheckoutPaymentIncomplete got %v", err)
	}

	order, err := fx.svc.ReconcilePayment(context.Background(), ReconcilePaymentCommand{
		OrderID:   placed.Order.ID,
		UserID:    "user-1",
		SessionID: "sess_1",
		Completed: true,
	})
	if err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid order after completed redirect, got %s", order.Status)
	}
}

func TestCheckoutServicePlaceOrderRecordsCouponRedemption(t *testing.T) {
	fx := newCheckoutFixture(t, activeCoupon("SAVE100", domain.CouponKindFlat, 10000))
	fx.fillCart(t)

	if _, err := fx.cart.svc.ApplyCoupon(context.Background(), ApplyCouponCommand{UserID: "user-1", Code: "SAVE100"}); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}

	result, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		ReturnURL:      "https://shop.example/payment-result",
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if result.Order.CouponCode != "SAVE100" {
		t.Fatalf("expected coupon code on order, got %q", result.Order.CouponCode)
	}
	if result.Order.Totals.TotalPrice != 66000 {
		t.Fatalf("expected discounted frozen total 66000 got %d", result.Order.Totals.TotalPrice)
	}
	if fx.gateway.lastRequest.Amount != 66000 {
		t.Fatalf("expected gateway amount 66000 got %d", fx.gateway.lastRequest.Amount)
	}
}
