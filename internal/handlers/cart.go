package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/platform/httpx"
	"github.com/kiranakart/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs handlers enforcing bearer authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.setItemQuantity)
	r.Delete("/items/{productID}", h.removeItem)
	r.Put("/shipping-address", h.setShippingAddress)
	r.Put("/payment-method", h.setPaymentMethod)
	r.Post("/coupon", h.applyCoupon)
	r.Delete("/coupon", h.removeCoupon)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.GetOrCreateCart(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, uid); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req cartItemRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    uid,
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req cartQuantityRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.SetItemQuantity(ctx, services.SetCartItemQuantityCommand{
		UserID:    uid,
		ProductID: productID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID:    uid,
		ProductID: productID,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) setShippingAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req addressPayload
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.SetShippingAddress(ctx, services.SetShippingAddressCommand{
		UserID:  uid,
		Address: req.toAddress(),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

type paymentMethodRequest struct {
	Method string `json:"method"`
}

func (h *CartHandlers) setPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req paymentMethodRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.SetPaymentMethod(ctx, services.SetPaymentMethodCommand{
		UserID: uid,
		Method: strings.TrimSpace(req.Method),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req applyCouponRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.ApplyCoupon(ctx, services.ApplyCouponCommand{
		UserID: uid,
		Code:   strings.TrimSpace(req.Code),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveCoupon(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.respondCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CartHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
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

func (h *CartHandlers) respondCart(w http.ResponseWriter, status int, cart services.Cart) {
	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found or unpublished", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "item not in cart", http.StatusNotFound))
	case errors.Is(err, services.ErrCartOutOfStock):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", "requested quantity exceeds available stock", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnserviceableAddress):
		httpx.WriteError(ctx, w, httpx.NewError("unserviceable_address", "postal code is outside the delivery area", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartCouponRejected):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCartPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_state", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}

func setCartResponseHeaders(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(cart.ID), cart.UpdatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	token := hex.EncodeToString(sum[:8])
	return fmt.Sprintf(`W/"%s"`, token)
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	Currency        string             `json:"currency"`
	ItemsCount      int                `json:"items_count"`
	Items           []cartItemPayload  `json:"items"`
	Coupon          *cartCouponPayload `json:"coupon,omitempty"`
	Totals          *cartTotalsPayload `json:"totals,omitempty"`
	ShippingAddress *addressPayload    `json:"shipping_address,omitempty"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
}

type cartCouponPayload struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	Applied        bool   `json:"applied"`
}

type cartTotalsPayload struct {
	ItemsPrice     int64 `json:"items_price"`
	ShippingPrice  int64 `json:"shipping_price"`
	TaxPrice       int64 `json:"tax_price"`
	CouponDiscount int64 `json:"coupon_discount"`
	TotalPrice     int64 `json:"total_price"`
}

type cartItemPayload struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Brand      string `json:"brand,omitempty"`
	Category   string `json:"category,omitempty"`
	ImagePath  string `json:"image_path,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Currency   string `json:"currency"`
	StockLimit int    `json:"stock_limit,omitempty"`
	AddedAt    string `json:"added_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:            strings.TrimSpace(cart.ID),
		UserID:        strings.TrimSpace(cart.UserID),
		Currency:      strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount:    len(cart.Items),
		Items:         buildCartItems(cart.Items),
		PaymentMethod: strings.TrimSpace(cart.PaymentMethod),
		Metadata:      cloneMap(cart.Metadata),
	}

	if cart.Coupon != nil {
		payload.Coupon = &cartCouponPayload{
			Code:           strings.TrimSpace(cart.Coupon.Code),
			DiscountAmount: cart.Coupon.DiscountAmount,
			Applied:        cart.Coupon.Applied,
		}
	}
	if cart.Totals != nil {
		payload.Totals = &cartTotalsPayload{
			ItemsPrice:     cart.Totals.ItemsPrice,
			ShippingPrice:  cart.Totals.ShippingPrice,
			TaxPrice:       cart.Totals.TaxPrice,
			CouponDiscount: cart.Totals.CouponDiscount,
			TotalPrice:     cart.Totals.TotalPrice,
		}
	}
	if cart.ShippingAddress != nil {
		addr := buildAddressPayload(*cart.ShippingAddress)
		addr.Surcharge = cart.ShippingAddress.Surcharge
		payload.ShippingAddress = &addr
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}

	return payload
}

func buildCartItems(items []services.CartItem) []cartItemPayload {
	if len(items) == 0 {
		return []cartItemPayload{}
	}

	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			ProductID:  strings.TrimSpace(item.ProductID),
			Name:       strings.TrimSpace(item.Name),
			Brand:      strings.TrimSpace(item.Brand),
			Category:   strings.TrimSpace(item.Category),
			ImagePath:  strings.TrimSpace(item.ImagePath),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Currency:   strings.ToUpper(strings.TrimSpace(item.Currency)),
			StockLimit: item.StockLimit,
		}
		if !item.AddedAt.IsZero() {
			entry.AddedAt = formatTime(item.AddedAt)
		}
		if item.UpdatedAt != nil && !item.UpdatedAt.IsZero() {
			entry.UpdatedAt = formatTime(*item.UpdatedAt)
		}
		payload = append(payload, entry)
	}
	return payload
}
