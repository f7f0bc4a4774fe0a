package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/platform/httpx"
	"github.com/kiranakart/api/internal/services"
)

// OrderHandlers serves order reads for customers and status transitions for
// staff. Customers only ever see their own orders.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the customer-facing /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listOwnOrders)
	r.Get("/{orderID}", h.getOwnOrder)
}

// AdminRoutes wires the staff order endpoints: listing across users and the
// shipped/delivered transitions.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listAllOrders)
	r.Get("/{orderID}", h.getAnyOrder)
	r.Post("/{orderID}/ship", h.markShipped)
	r.Post("/{orderID}/deliver", h.markDelivered)
}

func (h *OrderHandlers) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	h.listOrders(w, r, identity.UID)
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	h.listOrders(w, r, strings.TrimSpace(r.URL.Query().Get("user_id")))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	page, err := paginationFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID:     userID,
		Pagination: page,
	}
	if statuses := parseStatusFilter(r.URL.Query().Get("status")); len(statuses) > 0 {
		filter.Status = statuses
	}
	if from := strings.TrimSpace(r.URL.Query().Get("placed_after")); from != "" {
		parsed, err := parseRFC3339(from)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "placed_after must be RFC 3339", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &parsed
	}
	if to := strings.TrimSpace(r.URL.Query().Get("placed_before")); to != "" {
		parsed, err := parseRFC3339(to)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "placed_before must be RFC 3339", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &parsed
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := orderListResponse{
		Orders:        make([]orderPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, order := range result.Items {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOwnOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	// Ownership is enforced here rather than in the service so staff reads can
	// share GetOrder.
	if order.UserID != identity.UID && !identity.IsAdmin() && !identity.HasRole(auth.RoleStaff) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getAnyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) markShipped(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkShipped)
}

func (h *OrderHandlers) markDelivered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkDelivered)
}

func (h *OrderHandlers) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, services.MarkStatusCommand) (services.Order, error)) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := apply(ctx, services.MarkStatusCommand{
		OrderID: orderID,
		ActorID: identity.UID,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func parseStatusFilter(raw string) []string {
	parts := strings.Split(raw, ",")
	statuses := make([]string, 0, len(parts))
	for _, part := range parts {
		status := strings.ToLower(strings.TrimSpace(part))
		if status == "" {
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"order_number"`
	UserID          string               `json:"user_id"`
	Status          string               `json:"status"`
	Currency        string               `json:"currency"`
	Items           []orderItemPayload   `json:"items"`
	ShippingAddress addressPayload       `json:"shipping_address"`
	PaymentMethod   string               `json:"payment_method,omitempty"`
	Totals          cartTotalsPayload    `json:"totals"`
	CouponCode      string               `json:"coupon_code,omitempty"`
	Contact         *orderContactPayload `json:"contact,omitempty"`
	Payment         *orderPaymentPayload `json:"payment,omitempty"`
	CreatedAt       string               `json:"created_at,omitempty"`
	UpdatedAt       string               `json:"updated_at,omitempty"`
	PaidAt          string               `json:"paid_at,omitempty"`
	ShippedAt       string               `json:"shipped_at,omitempty"`
	DeliveredAt     string               `json:"delivered_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Brand     string `json:"brand,omitempty"`
	Category  string `json:"category,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

type orderContactPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type orderPaymentPayload struct {
	Provider     string `json:"provider"`
	SessionID    string `json:"session_id"`
	GatewayRef   string `json:"gateway_ref,omitempty"`
	Status       string `json:"status,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency,omitempty"`
	ReconciledAt string `json:"reconciled_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              strings.TrimSpace(order.ID),
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		UserID:          strings.TrimSpace(order.UserID),
		Status:          string(order.Status),
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		Items:           buildOrderItems(order.Items),
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		PaymentMethod:   strings.TrimSpace(order.PaymentMethod),
		CouponCode:      strings.TrimSpace(order.CouponCode),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		PaidAt:          formatTimePointer(order.PaidAt),
		ShippedAt:       formatTimePointer(order.ShippedAt),
		DeliveredAt:     formatTimePointer(order.DeliveredAt),
		Totals: cartTotalsPayload{
			ItemsPrice:     order.Totals.ItemsPrice,
			ShippingPrice:  order.Totals.ShippingPrice,
			TaxPrice:       order.Totals.TaxPrice,
			CouponDiscount: order.Totals.CouponDiscount,
			TotalPrice:     order.Totals.TotalPrice,
		},
	}
	if order.Contact != nil {
		payload.Contact = &orderContactPayload{
			Name:  strings.TrimSpace(order.Contact.Name),
			Email: strings.TrimSpace(order.Contact.Email),
			Phone: strings.TrimSpace(order.Contact.Phone),
		}
	}
	if order.Payment != nil {
		payload.Payment = buildOrderPaymentPayload(order.Payment)
	}
	return payload
}

func buildOrderItems(items []domain.OrderLineItem) []orderItemPayload {
	if len(items) == 0 {
		return []orderItemPayload{}
	}
	payload := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, orderItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Brand:     strings.TrimSpace(item.Brand),
			Category:  strings.TrimSpace(item.Category),
			ImagePath: strings.TrimSpace(item.ImagePath),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	return payload
}

func buildOrderPaymentPayload(payment *domain.OrderPayment) *orderPaymentPayload {
	if payment == nil {
		return nil
	}
	return &orderPaymentPayload{
		Provider:     strings.TrimSpace(payment.Provider),
		SessionID:    strings.TrimSpace(payment.SessionID),
		GatewayRef:   strings.TrimSpace(payment.GatewayRef),
		Status:       strings.TrimSpace(payment.Status),
		Amount:       payment.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(payment.Currency)),
		ReconciledAt: formatTimePointer(payment.ReconciledAt),
	}
}
