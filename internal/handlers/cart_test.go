package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/services"
)

func TestCartHandlersGetCartSuccess(t *testing.T) {
	now := time.Date(2025, 4, 12, 10, 0, 0, 0, time.UTC)
	updated := now.Add(2 * time.Minute)

	service := &stubCartService{
		getOrCreateFunc: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.Cart{
				ID:       "cart-user-7",
				UserID:   "user-7",
				Currency: "inr",
				Items: []services.CartItem{
					{
						ProductID: "prd-1",
						Name:      "Toor Dal 1kg",
						Quantity:  2,
						UnitPrice: 18900,
						Currency:  "INR",
						AddedAt:   now,
					},
				},
				Coupon: &services.CartCoupon{
					Code:           "FESTIVE10",
					DiscountAmount: 3780,
					Applied:        true,
				},
				Totals: &services.CartTotals{
					ItemsPrice:     37800,
					ShippingPrice:  9900,
					TaxPrice:       4100,
					CouponDiscount: 3780,
					TotalPrice:     48020,
				},
				UpdatedAt: updated,
			}, nil
		},
	}

	handler := NewCartHandlers(nil, service)

	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if cacheControl := rr.Header().Get("Cache-Control"); !strings.Contains(cacheControl, "no-store") {
		t.Fatalf("expected Cache-Control no-store, got %q", cacheControl)
	}
	if etag := rr.Header().Get("ETag"); etag == "" {
		t.Fatalf("expected ETag header")
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.ID != "cart-user-7" {
		t.Fatalf("expected cart id cart-user-7, got %q", resp.Cart.ID)
	}
	if resp.Cart.Currency != "INR" {
		t.Fatalf("expected currency INR, got %q", resp.Cart.Currency)
	}
	if resp.Cart.ItemsCount != 1 || len(resp.Cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", resp.Cart.ItemsCount)
	}
	if resp.Cart.Totals == nil || resp.Cart.Totals.TotalPrice != 48020 {
		t.Fatalf("expected total 48020, got %#v", resp.Cart.Totals)
	}
	if resp.Cart.Coupon == nil || resp.Cart.Coupon.Code != "FESTIVE10" {
		t.Fatalf("expected coupon FESTIVE10, got %#v", resp.Cart.Coupon)
	}
}

func TestCartHandlersGetCartServiceUnavailable(t *testing.T) {
	handler := NewCartHandlers(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	handler.getCart(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	handler.getCart(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemSuccess(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			if cmd.UserID != "user-3" || cmd.ProductID != "prd-9" || cmd.Quantity != 3 {
				t.Fatalf("unexpected command %#v", cmd)
			}
			return services.Cart{ID: "cart-user-3", UserID: "user-3", Currency: "INR"}, nil
		},
	}
	handler := NewCartHandlers(nil, service)

	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"product_id":"prd-9","quantity":3}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersAddItemMissingProduct(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"quantity":1}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemOutOfStock(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartOutOfStock
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"product_id":"prd-9","quantity":99}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCartHandlersSetItemQuantityRemovesOnNotFound(t *testing.T) {
	service := &stubCartService{
		setItemQuantityFunc: func(ctx context.Context, cmd services.SetCartItemQuantityCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartItemNotFound
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"quantity":2}`)
	req := httptest.NewRequest(http.MethodPut, "/cart/items/prd-404", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersSetShippingAddressUnserviceable(t *testing.T) {
	service := &stubCartService{
		setShippingAddressFunc: func(ctx context.Context, cmd services.SetShippingAddressCommand) (services.Cart, error) {
			if cmd.Address.PostalCode != "400001" {
				t.Fatalf("unexpected postal code %q", cmd.Address.PostalCode)
			}
			return services.Cart{}, services.ErrCartUnserviceableAddress
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"line1":"14 MG Road","city":"Mumbai","postal_code":"400001","country":"IN"}`)
	req := httptest.NewRequest(http.MethodPut, "/cart/shipping-address", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestCartHandlersApplyCouponRejected(t *testing.T) {
	service := &stubCartService{
		applyCouponFunc: func(ctx context.Context, cmd services.ApplyCouponCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartCouponRejected
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := bytes.NewBufferString(`{"code":"EXPIRED"}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/coupon", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearCartFunc: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected ClearCart to be invoked")
	}
}

func TestCartHandlersBodyTooLarge(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	oversized := strings.Repeat("x", maxCartBodySize+10)
	body := bytes.NewBufferString(`{"product_id":"` + oversized + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
}
