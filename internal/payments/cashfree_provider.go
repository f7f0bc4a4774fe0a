package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

const (
	// CashfreeSandboxURL is the base URL for the Cashfree PG sandbox.
	CashfreeSandboxURL = "https://sandbox.cashfree.com/pg"
	// CashfreeProductionURL is the base URL for the live Cashfree PG API.
	CashfreeProductionURL = "https://api.cashfree.com/pg"

	cashfreeAPIVersion     = "2023-08-01"
	cashfreeRequestTimeout = 10 * time.Second
	cashfreeSessionTTL     = 30 * time.Minute
)

// CashfreeLogger defines the logging contract for Cashfree provider operations.
type CashfreeLogger func(ctx context.Context, event string, fields map[string]any)

// CashfreeProviderConfig configures the CashfreeProvider.
type CashfreeProviderConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	APIVersion   string
	HTTPClient   *resty.Client
	Breaker      *gobreaker.CircuitBreaker
	Logger       CashfreeLogger
	Clock        func() time.Time
}

// CashfreeAPIError is a structured error returned by the Cashfree PG API.
type CashfreeAPIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *CashfreeAPIError) Error() string {
	return fmt.Sprintf("cashfree: %s (code=%s, status=%d)", e.Message, e.Code, e.HTTPStatus)
}

// CashfreeProvider implements the Provider interface against the Cashfree PG
// REST API. Outbound calls run through a circuit breaker so a degraded gateway
// fails fast instead of stalling checkout.
type CashfreeProvider struct {
	http       *resty.Client
	breaker    *gobreaker.CircuitBreaker
	clientID   string
	apiVersion string
	clock      func() time.Time
	logger     CashfreeLogger
}

// NewCashfreeProvider constructs a Cashfree Provider using the given configuration.
func NewCashfreeProvider(cfg CashfreeProviderConfig) (*CashfreeProvider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || secret == "" {
		return nil, errors.New("cashfree: client id and secret are required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = CashfreeSandboxURL
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = cashfreeAPIVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resty.New().
			SetTimeout(cashfreeRequestTimeout).
			SetRetryCount(0)
	}
	httpClient.
		SetBaseURL(baseURL).
		SetHeader("x-client-id", clientID).
		SetHeader("x-client-secret", secret).
		SetHeader("x-api-version", apiVersion)

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "cashfree",
			MaxRequests: 3,
			Interval:    15 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		})
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CashfreeProvider{
		http:       httpClient,
		breaker:    breaker,
		clientID:   clientID,
		apiVersion: apiVersion,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

type cashfreeCustomer struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

type cashfreeOrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type cashfreeCreateOrderRequest struct {
	OrderID       string            `json:"order_id"`
	OrderAmount   json.Number       `json:"order_amount"`
	OrderCurrency string            `json:"order_currency"`
	OrderNote     string            `json:"order_note,omitempty"`
	Customer      cashfreeCustomer  `json:"customer_details"`
	OrderMeta     cashfreeOrderMeta `json:"order_meta"`
	OrderTags     map[string]string `json:"order_tags,omitempty"`
}

type cashfreeOrder struct {
	CFOrderID        string      `json:"cf_order_id"`
	OrderID          string      `json:"order_id"`
	OrderAmount      json.Number `json:"order_amount"`
	OrderCurrency    string      `json:"order_currency"`
	OrderStatus      string      `json:"order_status"`
	PaymentSessionID string      `json:"payment_session_id"`
	OrderExpiryTime  string      `json:"order_expiry_time"`
}

type cashfreeRefund struct {
	CFRefundID   string      `json:"cf_refund_id"`
	RefundID     string      `json:"refund_id"`
	RefundAmount json.Number `json:"refund_amount"`
	RefundStatus string      `json:"refund_status"`
	ProcessedAt  string      `json:"processed_at"`
}

// CreateCheckoutSession registers an order with Cashfree and returns the
// payment session the storefront hands to the hosted checkout SDK.
func (p *CashfreeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("cashfree: provider is nil")
	}

	gatewayOrderID := strings.TrimSpace(req.Metadata["orderId"])
	if gatewayOrderID == "" {
		gatewayOrderID = strings.TrimSpace(req.IdempotencyKey)
	}
	if gatewayOrderID == "" {
		return CheckoutSession{}, errors.New("cashfree: order id or idempotency key is required")
	}
	if req.Amount <= 0 {
		return CheckoutSession{}, errors.New("cashfree: amount must be positive")
	}

	body := cashfreeCreateOrderRequest{
		OrderID:       gatewayOrderID,
		OrderAmount:   minorToDecimal(req.Amount),
		OrderCurrency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		OrderNote:     req.Metadata["orderNumber"],
		Customer: cashfreeCustomer{
			CustomerID:    req.CustomerID,
			CustomerName:  req.Metadata["customerName"],
			CustomerPhone: req.Metadata["customerPhone"],
			CustomerEmail: req.Metadata["customerEmail"],
		},
		OrderMeta: cashfreeOrderMeta{
			ReturnURL: req.SuccessURL,
			NotifyURL: req.Metadata["notifyUrl"],
		},
	}
	if len(req.Metadata) > 0 {
		body.OrderTags = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			body.OrderTags[k] = v
		}
	}

	var order cashfreeOrder
	if err := p.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
			r.SetHeader("x-idempotency-key", key)
		}
		return r.SetBody(body).SetResult(&order).Post("/orders")
	}); err != nil {
		return CheckoutSession{}, fmt.Errorf("cashfree: create order: %w", err)
	}

	p.logger(ctx, "payments.cashfree.session.created", map[string]any{
		"orderId":   order.OrderID,
		"cfOrderId": order.CFOrderID,
		"currency":  order.OrderCurrency,
	})

	expiresAt := p.clock().Add(cashfreeSessionTTL)
	if parsed, err := time.Parse(time.RFC3339, order.OrderExpiryTime); err == nil {
		expiresAt = parsed.UTC()
	}

	return CheckoutSession{
		ID:           order.OrderID,
		Provider:     "cashfree",
		ClientSecret: order.PaymentSessionID,
		IntentID:     order.CFOrderID,
		ExpiresAt:    expiresAt,
		Raw: map[string]any{
			"cfOrderId":        order.CFOrderID,
			"paymentSessionId": order.PaymentSessionID,
			"orderStatus":      order.OrderStatus,
		},
	}, nil
}

// Confirm reports the current gateway state for the order. Cashfree hosted
// checkout confirms on the customer device, so there is no server-side
// confirm call to make.
func (p *CashfreeProvider) Confirm(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("cashfree: provider is nil")
	}
	return p.LookupPayment(ctx, LookupRequest{IntentID: req.IntentID})
}

// Capture reports the current gateway state for the order. Cashfree captures
// automatically on payment success.
func (p *CashfreeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("cashfree: provider is nil")
	}
	return p.LookupPayment(ctx, LookupRequest{IntentID: req.IntentID})
}

// Refund issues a refund against a settled Cashfree order.
func (p *CashfreeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("cashfree: provider is nil")
	}
	orderID := strings.TrimSpace(req.IntentID)
	if orderID == "" {
		return PaymentDetails{}, errors.New("cashfree: order id is required")
	}
	refundID := strings.TrimSpace(req.IdempotencyKey)
	if refundID == "" {
		refundID = fmt.Sprintf("refund_%s_%d", orderID, p.clock().Unix())
	}

	payload := map[string]any{
		"refund_id": refundID,
	}
	if req.Amount != nil {
		payload["refund_amount"] = minorToDecimal(*req.Amount)
	}
	if note := strings.TrimSpace(req.Reason); note != "" {
		payload["refund_note"] = note
	}

	var refund cashfreeRefund
	if err := p.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(payload).SetResult(&refund).Post("/orders/" + orderID + "/refunds")
	}); err != nil {
		return PaymentDetails{}, fmt.Errorf("cashfree: refund order: %w", err)
	}

	p.logger(ctx, "payments.cashfree.refund.created", map[string]any{
		"orderId":    orderID,
		"refundId":   refund.RefundID,
		"cfRefundId": refund.CFRefundID,
		"status":     refund.RefundStatus,
	})

	details := PaymentDetails{
		Provider: "cashfree",
		IntentID: orderID,
		Status:   StatusRefunded,
		Amount:   decimalToMinor(refund.RefundAmount),
		Raw: map[string]any{
			"refundId":     refund.RefundID,
			"cfRefundId":   refund.CFRefundID,
			"refundStatus": refund.RefundStatus,
		},
	}
	if parsed, err := time.Parse(time.RFC3339, refund.ProcessedAt); err == nil {
		processed := parsed.UTC()
		details.RefundedAt = &processed
	}
	return details, nil
}

// LookupPayment fetches the order from Cashfree and normalises its status.
func (p *CashfreeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("cashfree: provider is nil")
	}
	orderID := strings.TrimSpace(req.IntentID)
	if orderID == "" {
		return PaymentDetails{}, errors.New("cashfree: order id is required")
	}

	var order cashfreeOrder
	if err := p.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&order).Get("/orders/" + orderID)
	}); err != nil {
		return PaymentDetails{}, fmt.Errorf("cashfree: lookup order: %w", err)
	}

	status := cashfreeOrderStatus(order.OrderStatus)
	details := PaymentDetails{
		Provider: "cashfree",
		IntentID: order.OrderID,
		Status:   status,
		Amount:   decimalToMinor(order.OrderAmount),
		Currency: strings.ToUpper(order.OrderCurrency),
		Captured: status == StatusSucceeded,
		Raw: map[string]any{
			"cfOrderId":   order.CFOrderID,
			"orderStatus": order.OrderStatus,
		},
	}
	if status == StatusSucceeded {
		captured := p.clock()
		details.CapturedAt = &captured
	}
	return details, nil
}

// do sends a request through the circuit breaker and turns non-2xx responses
// into CashfreeAPIError values.
func (p *CashfreeProvider) do(ctx context.Context, send func(r *resty.Request) (*resty.Response, error)) error {
	_, err := p.breaker.Execute(func() (any, error) {
		resp, err := send(p.http.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			apiErr := &CashfreeAPIError{HTTPStatus: resp.StatusCode()}
			if unmarshalErr := json.Unmarshal(resp.Body(), apiErr); unmarshalErr != nil || apiErr.Message == "" {
				apiErr.Message = strings.TrimSpace(resp.Status())
			}
			return nil, apiErr
		}
		return resp, nil
	})
	if err != nil {
		p.logger(ctx, "payments.cashfree.request.failed", map[string]any{
			"error":        err.Error(),
			"breakerState": p.breaker.State().String(),
		})
	}
	return err
}

func cashfreeOrderStatus(status string) Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID":
		return StatusSucceeded
	case "EXPIRED", "TERMINATED", "TERMINATION_REQUESTED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// minorToDecimal renders paise as the decimal rupee string the Cashfree API
// expects, avoiding float formatting drift.
func minorToDecimal(amount int64) json.Number {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return json.Number(fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100))
}

func decimalToMinor(amount json.Number) int64 {
	value, err := amount.Float64()
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 100))
}
