package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

func newTestCashfreeProvider(t *testing.T, server *httptest.Server) *CashfreeProvider {
	t.Helper()
	provider, err := NewCashfreeProvider(CashfreeProviderConfig{
		BaseURL:      server.URL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		HTTPClient:   resty.NewWithClient(server.Client()),
		Clock:        func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new cashfree provider: %v", err)
	}
	return provider
}

func TestCashfreeCreateCheckoutSession(t *testing.T) {
	var gotBody cashfreeCreateOrderRequest
	var gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-client-id") != "test-client" {
			t.Fatalf("missing client id header")
		}
		gotIdempotencyKey = r.Header.Get("x-idempotency-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cashfreeOrder{
			CFOrderID:        "98765",
			OrderID:          gotBody.OrderID,
			OrderAmount:      gotBody.OrderAmount,
			OrderCurrency:    "INR",
			OrderStatus:      "ACTIVE",
			PaymentSessionID: "session_abc",
			OrderExpiryTime:  "2024-06-01T12:30:00Z",
		})
	}))
	defer server.Close()

	provider := newTestCashfreeProvider(t, server)
	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:         76000,
		Currency:       "INR",
		CustomerID:     "user-1",
		SuccessURL:     "https://shop.example/return?orderId=ord_1",
		IdempotencyKey: "idem-1",
		Metadata:       map[string]string{"orderId": "ord_1", "orderNumber": "KK-2024-000001"},
	})
	if err != nil {
		t.Fatalf("create checkout session: %v", err)
	}

	if gotBody.OrderID != "ord_1" {
		t.Fatalf("expected gateway order id 'ord_1', got %q", gotBody.OrderID)
	}
	if gotBody.OrderAmount != json.Number("760.00") {
		t.Fatalf("expected decimal amount '760.00', got %q", gotBody.OrderAmount)
	}
	if gotIdempotencyKey != "idem-1" {
		t.Fatalf("expected idempotency header, got %q", gotIdempotencyKey)
	}
	if session.ID != "ord_1" {
		t.Fatalf("unexpected session id %q", session.ID)
	}
	if session.Provider != "cashfree" {
		t.Fatalf("unexpected provider %q", session.Provider)
	}
	if session.ClientSecret != "session_abc" {
		t.Fatalf("unexpected client secret %q", session.ClientSecret)
	}
	if session.IntentID != "98765" {
		t.Fatalf("unexpected intent id %q", session.IntentID)
	}
	if !session.ExpiresAt.Equal(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}
}

func TestCashfreeCreateCheckoutSessionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"order_currency is invalid","code":"order_currency_invalid","type":"invalid_request_error"}`))
	}))
	defer server.Close()

	provider := newTestCashfreeProvider(t, server)
	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:   100,
		Currency: "XXX",
		Metadata: map[string]string{"orderId": "ord_1"},
	})

	var apiErr *CashfreeAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected CashfreeAPIError, got %v", err)
	}
	if apiErr.Code != "order_currency_invalid" || apiErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestCashfreeLookupPaymentMapsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/ord_1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cashfreeOrder{
			CFOrderID:     "98765",
			OrderID:       "ord_1",
			OrderAmount:   json.Number("760.00"),
			OrderCurrency: "INR",
			OrderStatus:   "PAID",
		})
	}))
	defer server.Close()

	provider := newTestCashfreeProvider(t, server)
	details, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "ord_1"})
	if err != nil {
		t.Fatalf("lookup payment: %v", err)
	}

	if details.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", details.Status)
	}
	if details.Amount != 76000 {
		t.Fatalf("expected 76000 paise, got %d", details.Amount)
	}
	if !details.Captured || details.CapturedAt == nil {
		t.Fatalf("expected captured payment, got %+v", details)
	}
}

func TestCashfreeOrderStatusMapping(t *testing.T) {
	cases := map[string]Status{
		"PAID":       StatusSucceeded,
		"paid":       StatusSucceeded,
		"ACTIVE":     StatusPending,
		"EXPIRED":    StatusFailed,
		"TERMINATED": StatusFailed,
		"":           StatusPending,
	}
	for input, want := range cases {
		if got := cashfreeOrderStatus(input); got != want {
			t.Fatalf("status %q: expected %s, got %s", input, want, got)
		}
	}
}

func TestCashfreeAmountConversion(t *testing.T) {
	if got := minorToDecimal(76000); got != json.Number("760.00") {
		t.Fatalf("expected '760.00', got %q", got)
	}
	if got := minorToDecimal(105); got != json.Number("1.05") {
		t.Fatalf("expected '1.05', got %q", got)
	}
	if got := decimalToMinor(json.Number("760.00")); got != 76000 {
		t.Fatalf("expected 76000, got %d", got)
	}
	if got := decimalToMinor(json.Number("1.05")); got != 105 {
		t.Fatalf("expected 105, got %d", got)
	}
}

func TestCashfreeBreakerOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := newTestCashfreeProvider(t, server)
	for i := 0; i < 3; i++ {
		if _, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "ord_1"}); err == nil {
			t.Fatal("expected gateway error")
		}
	}

	_, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "ord_1"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}
