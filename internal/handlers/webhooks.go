package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/platform/httpx"
	"github.com/kiranakart/api/internal/services"
)

// WebhookHandlers ingests gateway payment notifications. The Cashfree
// endpoint sits behind HMAC validation and reconciles the referenced order;
// reconciliation is idempotent, so redelivered events are safe.
type WebhookHandlers struct {
	hmac       *auth.HMACValidator
	secretName string
	checkout   services.CheckoutService
	logger     func(ctx context.Context, msg string, fields map[string]any)
}

const maxWebhookBodySize = 256 * 1024

// WebhookOption customises webhook handler construction.
type WebhookOption func(*WebhookHandlers)

// WithWebhookHMAC guards the webhook routes with the given validator and
// secret name. Without it the routes accept unsigned requests, which is only
// acceptable in local development.
func WithWebhookHMAC(validator *auth.HMACValidator, secretName string) WebhookOption {
	return func(h *WebhookHandlers) {
		h.hmac = validator
		h.secretName = strings.TrimSpace(secretName)
	}
}

// WithWebhookLogger sets the structured logger for webhook processing.
func WithWebhookLogger(logger func(ctx context.Context, msg string, fields map[string]any)) WebhookOption {
	return func(h *WebhookHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(checkout services.CheckoutService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		checkout: checkout,
		logger:   func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.hmac != nil && h.secretName != "" {
		r.With(h.hmac.RequireHMAC(h.secretName)).Post("/cashfree", h.cashfreeWebhook)
		return
	}
	r.Post("/cashfree", h.cashfreeWebhook)
}

// cashfreeEvent mirrors the subset of the Cashfree PG webhook envelope the
// reconciler needs. OrderID carries the merchant order id, which doubles as
// the payment session id recorded on the order.
type cashfreeEvent struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			OrderID       string      `json:"order_id"`
			OrderAmount   json.Number `json:"order_amount"`
			OrderCurrency string      `json:"order_currency"`
		} `json:"order"`
		Payment struct {
			CFPaymentID   json.Number `json:"cf_payment_id"`
			PaymentStatus string      `json:"payment_status"`
			PaymentAmount json.Number `json:"payment_amount"`
			PaymentTime   string      `json:"payment_time"`
		} `json:"payment"`
	} `json:"data"`
	EventTime string `json:"event_time"`
}

type webhookAckResponse struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	OrderID   string `json:"order_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

func (h *WebhookHandlers) cashfreeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var event cashfreeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	orderID := strings.TrimSpace(event.Data.Order.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "data.order.order_id is required", http.StatusBadRequest))
		return
	}

	eventType := strings.ToUpper(strings.TrimSpace(event.Type))
	paymentStatus := strings.ToUpper(strings.TrimSpace(event.Data.Payment.PaymentStatus))
	completed := eventType == "PAYMENT_SUCCESS_WEBHOOK" || paymentStatus == "SUCCESS"

	h.logger(ctx, "webhooks.cashfree.received", map[string]any{
		"orderId":       orderID,
		"eventType":     eventType,
		"paymentStatus": paymentStatus,
	})

	// Failure and drop-off events are acknowledged without touching the
	// order: it stays pending and the sweeper or a retry settles it.
	if !completed {
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{
			Received: true,
			OrderID:  orderID,
			Status:   paymentStatus,
		})
		return
	}

	details := map[string]any{
		"source":    "cashfree_webhook",
		"eventType": eventType,
	}
	if event.Data.Payment.CFPaymentID != "" {
		details["cfPaymentId"] = event.Data.Payment.CFPaymentID.String()
	}
	if event.Data.Payment.PaymentTime != "" {
		details["paymentTime"] = event.Data.Payment.PaymentTime
	}

	order, err := h.checkout.ReconcilePayment(ctx, services.ReconcilePaymentCommand{
		OrderID:   orderID,
		SessionID: orderID,
		Completed: true,
		Details:   details,
	})
	if err != nil {
		h.writeWebhookError(ctx, w, orderID, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookAckResponse{
		Received:  true,
		Processed: true,
		OrderID:   order.ID,
		Status:    string(order.Status),
	})
}

func (h *WebhookHandlers) writeWebhookError(ctx context.Context, w http.ResponseWriter, orderID string, err error) {
	h.logger(ctx, "webhooks.cashfree.reconcile_failed", map[string]any{
		"orderId": orderID,
		"error":   err.Error(),
	})
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		// The order write may still be in flight; a non-2xx makes the
		// gateway redeliver later.
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutOrderMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("order_mismatch", "event does not match the recorded payment session", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentIncomplete):
		// Gateway verification still reports pending. Acknowledge so the
		// event is not retried forever; the sweeper settles the order.
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{
			Received: true,
			OrderID:  orderID,
			Status:   "pending_verification",
		})
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
	}
}
