package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	session CheckoutSession
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	f.lastOp = "create"
	return f.session, f.err
}

func (f *fakeProvider) Confirm(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	f.lastOp = "confirm"
	return f.payment, f.err
}

func (f *fakeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	f.lastOp = "capture"
	return f.payment, f.err
}

func (f *fakeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	f.lastOp = "refund"
	return f.payment, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestManagerCreateCheckoutSessionUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	cashfree := &fakeProvider{session: CheckoutSession{ID: "sess_cashfree"}}
	stripe := &fakeProvider{session: CheckoutSession{ID: "sess_stripe"}}

	mgr, err := NewManager(map[string]Provider{
		"cashfree": cashfree,
		"stripe":   stripe,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "stripe"}, CheckoutSessionRequest{Currency: "USD"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if session.Provider != "stripe" {
		t.Fatalf("expected provider 'stripe', got %q", session.Provider)
	}
	if stripe.lastOp != "create" {
		t.Fatalf("expected stripe provider to handle call")
	}
	if cashfree.lastOp != "" {
		t.Fatalf("expected cashfree provider to remain unused")
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	ctx := context.Background()
	cashfree := &fakeProvider{session: CheckoutSession{ID: "sess_cashfree"}}
	stripe := &fakeProvider{session: CheckoutSession{ID: "sess_stripe"}}

	mgr, err := NewManager(
		map[string]Provider{
			"cashfree": cashfree,
			"stripe":   stripe,
		},
		WithCurrencyRoutes(map[string]string{"USD": "stripe"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	// The currency route beats the cashfree default.
	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{Currency: "USD"}, CheckoutSessionRequest{Currency: "USD"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "stripe" {
		t.Fatalf("expected provider 'stripe', got %q", session.Provider)
	}
	if stripe.lastOp != "create" {
		t.Fatalf("expected stripe provider to handle call")
	}
}

func TestManagerDefaultsToCashfree(t *testing.T) {
	ctx := context.Background()
	cashfree := &fakeProvider{session: CheckoutSession{ID: "sess_cashfree"}}
	stripe := &fakeProvider{session: CheckoutSession{ID: "sess_stripe"}}

	mgr, err := NewManager(map[string]Provider{
		"cashfree": cashfree,
		"stripe":   stripe,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreateCheckoutSession(ctx, PaymentContext{Currency: "INR"}, CheckoutSessionRequest{Currency: "INR"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Provider != "cashfree" {
		t.Fatalf("expected provider 'cashfree', got %q", session.Provider)
	}
}

func TestManagerFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	cashfree := &fakeProvider{payment: PaymentDetails{Provider: "cashfree"}}

	mgr, err := NewManager(map[string]Provider{"cashfree": cashfree})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.Capture(ctx, PaymentContext{}, CaptureRequest{IntentID: "ord_123"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if cashfree.lastOp != "capture" {
		t.Fatalf("expected capture to invoke default provider")
	}
	if details.Provider != "cashfree" {
		t.Fatalf("unexpected provider in details: %q", details.Provider)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{"cashfree": &fakeProvider{}, "stripe": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateCheckoutSession(ctx, PaymentContext{PreferredProvider: "unknown"}, CheckoutSessionRequest{Currency: "USD"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
