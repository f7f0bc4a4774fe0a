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

// CheckoutHandlers drives order placement and payment confirmation for the
// authenticated user.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

const (
	maxCheckoutBodySize  = 32 * 1024
	idempotencyKeyHeader = "Idempotency-Key"
)

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.placeOrder)
	r.Post("/confirm", h.confirmPayment)
}

type placeOrderRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Provider       string `json:"provider"`
	ReturnURL      string `json:"return_url"`
	NotifyURL      string `json:"notify_url"`
	Contact        struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"contact"`
}

type placeOrderResponse struct {
	Order    orderPayload          `json:"order"`
	Session  paymentSessionPayload `json:"payment_session"`
	Replayed bool                  `json:"replayed"`
}

type paymentSessionPayload struct {
	SessionID    string `json:"session_id"`
	Provider     string `json:"provider"`
	ClientSecret string `json:"client_secret,omitempty"`
	GatewayRef   string `json:"gateway_ref,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	// Header wins over body so proxies can inject the key uniformly.
	idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}
	if idempotencyKey == "" {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "Idempotency-Key header or idempotency_key field is required", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:         uid,
		IdempotencyKey: idempotencyKey,
		Contact: services.OrderContact{
			Name:  strings.TrimSpace(req.Contact.Name),
			Email: strings.TrimSpace(req.Contact.Email),
			Phone: strings.TrimSpace(req.Contact.Phone),
		},
		ReturnURL: strings.TrimSpace(req.ReturnURL),
		NotifyURL: strings.TrimSpace(req.NotifyURL),
		Provider:  strings.TrimSpace(req.Provider),
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, placeOrderResponse{
		Order:    buildOrderPayload(result.Order),
		Session:  buildPaymentSessionPayload(result.Session),
		Replayed: result.Replayed,
	})
}

type confirmPaymentRequest struct {
	OrderID   string         `json:"order_id"`
	SessionID string         `json:"session_id"`
	Completed *bool          `json:"completed"`
	Details   map[string]any `json:"details"`
}

func (h *CheckoutHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.SessionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id and session_id are required", http.StatusBadRequest))
		return
	}

	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	order, err := h.checkout.ReconcilePayment(ctx, services.ReconcilePaymentCommand{
		OrderID:   strings.TrimSpace(req.OrderID),
		UserID:    uid,
		SessionID: strings.TrimSpace(req.SessionID),
		Completed: completed,
		Details:   req.Details,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CheckoutHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_ready", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutOrderMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("order_mismatch", "order does not belong to the caller or session does not match", http.StatusForbidden))
	case errors.Is(err, services.ErrCheckoutPaymentIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("payment_incomplete", "payment has not completed at the gateway", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment session could not be created", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}

func buildPaymentSessionPayload(session services.PaymentSession) paymentSessionPayload {
	payload := paymentSessionPayload{
		SessionID:    strings.TrimSpace(session.SessionID),
		Provider:     strings.TrimSpace(session.Provider),
		ClientSecret: strings.TrimSpace(session.ClientSecret),
		GatewayRef:   strings.TrimSpace(session.GatewayRef),
		RedirectURL:  strings.TrimSpace(session.RedirectURL),
	}
	if !session.ExpiresAt.IsZero() {
		payload.ExpiresAt = formatTime(session.ExpiresAt)
	}
	return payload
}
