package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/services"
)

func TestWebhookHandlersCashfreeSuccessEvent(t *testing.T) {
	service := &stubCheckoutService{
		reconcilePaymentFunc: func(ctx context.Context, cmd services.ReconcilePaymentCommand) (services.Order, error) {
			if cmd.OrderID != "ord_42" || cmd.SessionID != "ord_42" {
				t.Fatalf("unexpected command %#v", cmd)
			}
			if cmd.UserID != "" {
				t.Fatalf("webhook must not assert ownership, got user %q", cmd.UserID)
			}
			if !cmd.Completed {
				t.Fatalf("expected completed reconciliation")
			}
			if cmd.Details["cfPaymentId"] != "990011" {
				t.Fatalf("expected gateway payment id in details, got %#v", cmd.Details)
			}
			return services.Order{ID: "ord_42", Status: domain.OrderStatusPaid}, nil
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {
			"order": {"order_id": "ord_42", "order_amount": "480.20", "order_currency": "INR"},
			"payment": {"cf_payment_id": 990011, "payment_status": "SUCCESS", "payment_time": "2025-04-12T10:30:00+05:30"}
		},
		"event_time": "2025-04-12T10:30:05+05:30"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cashfree", body)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp webhookAckResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Processed || resp.Status != string(domain.OrderStatusPaid) {
		t.Fatalf("unexpected ack %#v", resp)
	}
}

func TestWebhookHandlersCashfreeFailureEventAcknowledged(t *testing.T) {
	reconciled := false
	service := &stubCheckoutService{
		reconcilePaymentFunc: func(ctx context.Context, cmd services.ReconcilePaymentCommand) (services.Order, error) {
			reconciled = true
			return services.Order{}, nil
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{
		"type": "PAYMENT_FAILED_WEBHOOK",
		"data": {
			"order": {"order_id": "ord_42"},
			"payment": {"payment_status": "FAILED"}
		}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cashfree", body)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if reconciled {
		t.Fatalf("failed payment must not trigger reconciliation")
	}

	var resp webhookAckResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Processed {
		t.Fatalf("failure event must be acknowledged without processing")
	}
}

func TestWebhookHandlersCashfreeUnknownOrderRetries(t *testing.T) {
	service := &stubCheckoutService{
		reconcilePaymentFunc: func(ctx context.Context, cmd services.ReconcilePaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {"order": {"order_id": "ord_missing"}, "payment": {"payment_status": "SUCCESS"}}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cashfree", body)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// Non-2xx keeps the gateway retrying until the order write lands.
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestWebhookHandlersCashfreePendingAcknowledged(t *testing.T) {
	service := &stubCheckoutService{
		reconcilePaymentFunc: func(ctx context.Context, cmd services.ReconcilePaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrCheckoutPaymentIncomplete
		},
	}
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {"order": {"order_id": "ord_42"}, "payment": {"payment_status": "SUCCESS"}}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cashfree", body)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for pending verification, got %d", rr.Code)
	}
}

func TestWebhookHandlersCashfreeMalformedBody(t *testing.T) {
	handler := NewWebhookHandlers(&stubCheckoutService{})
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/cashfree", bytes.NewBufferString("not-json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookHandlersCashfreeMissingOrderID(t *testing.T) {
	handler := NewWebhookHandlers(&stubCheckoutService{})
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	body := bytes.NewBufferString(`{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"payment":{"payment_status":"SUCCESS"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/cashfree", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
