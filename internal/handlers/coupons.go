package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/platform/httpx"
	"github.com/kiranakart/api/internal/services"
)

// CouponHandlers serves coupon validation for shoppers and the coupon
// lifecycle for staff.
type CouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
}

const maxCouponBodySize = 16 * 1024

// NewCouponHandlers constructs coupon handlers.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService) *CouponHandlers {
	return &CouponHandlers{
		authn:   authn,
		coupons: coupons,
	}
}

// Routes wires the shopper-facing /coupons endpoints.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/validate", h.validateCoupon)
}

// AdminRoutes wires the staff coupon CRUD endpoints.
func (h *CouponHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listCoupons)
	r.Post("/", h.createCoupon)
	r.Put("/{couponID}", h.updateCoupon)
	r.Delete("/{couponID}", h.deleteCoupon)
}

type validateCouponRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type validateCouponResponse struct {
	Code           string `json:"code"`
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason,omitempty"`
	DiscountAmount int64  `json:"discount_amount"`
}

func (h *CouponHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req validateCouponRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}

	result, err := h.coupons.Validate(ctx, services.ValidateCouponCommand{
		Code:     strings.TrimSpace(req.Code),
		UserID:   identity.UID,
		Subtotal: req.Subtotal,
	})
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, validateCouponResponse{
		Code:           result.Code,
		Valid:          result.Valid,
		Reason:         result.Reason,
		DiscountAmount: result.DiscountAmount,
	})
}

func (h *CouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	page, err := paginationFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.CouponListFilter{Pagination: page}
	if statuses := parseStatusFilter(r.URL.Query().Get("status")); len(statuses) > 0 {
		filter.Status = statuses
	}

	result, err := h.coupons.ListCoupons(ctx, filter)
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	payload := couponListResponse{
		Coupons:       make([]couponPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, coupon := range result.Items {
		payload.Coupons = append(payload.Coupons, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req couponWriteRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	coupon, err := req.toCoupon("")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	created, err := h.coupons.CreateCoupon(ctx, services.UpsertCouponCommand{
		Coupon:  coupon,
		ActorID: identity.UID,
	})
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, couponResponse{Coupon: buildCouponPayload(created)})
}

func (h *CouponHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	couponID := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if couponID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon id is required", http.StatusBadRequest))
		return
	}

	var req couponWriteRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	coupon, err := req.toCoupon(couponID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	updated, err := h.coupons.UpdateCoupon(ctx, services.UpsertCouponCommand{
		Coupon:  coupon,
		ActorID: identity.UID,
	})
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(updated)})
}

func (h *CouponHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	couponID := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if couponID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon id is required", http.StatusBadRequest))
		return
	}

	if err := h.coupons.DeleteCoupon(ctx, couponID); err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CouponHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *CouponHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCouponBodySize)
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

func (h *CouponHandlers) writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCouponInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_coupon_code", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to process coupon request", http.StatusInternalServerError))
	}
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponListResponse struct {
	Coupons       []couponPayload `json:"coupons"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponPayload struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	MinSubtotal  int64  `json:"min_subtotal"`
	Status       string `json:"status"`
	StartsAt     string `json:"starts_at,omitempty"`
	EndsAt       string `json:"ends_at,omitempty"`
	PerUserLimit *int   `json:"per_user_limit,omitempty"`
	UsageLimit   *int   `json:"usage_limit,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

type couponWriteRequest struct {
	Code         string `json:"code"`
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	MinSubtotal  int64  `json:"min_subtotal"`
	Status       string `json:"status"`
	StartsAt     string `json:"starts_at"`
	EndsAt       string `json:"ends_at"`
	PerUserLimit *int   `json:"per_user_limit"`
	UsageLimit   *int   `json:"usage_limit"`
}

func (req couponWriteRequest) toCoupon(couponID string) (domain.Coupon, error) {
	coupon := domain.Coupon{
		ID:           couponID,
		Code:         strings.TrimSpace(req.Code),
		Kind:         domain.CouponKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Amount:       req.Amount,
		MinSubtotal:  req.MinSubtotal,
		Status:       strings.ToLower(strings.TrimSpace(req.Status)),
		PerUserLimit: req.PerUserLimit,
		UsageLimit:   req.UsageLimit,
	}
	if raw := strings.TrimSpace(req.StartsAt); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			return domain.Coupon{}, err
		}
		coupon.StartsAt = parsed
	}
	if raw := strings.TrimSpace(req.EndsAt); raw != "" {
		parsed, err := parseRFC3339(raw)
		if err != nil {
			return domain.Coupon{}, err
		}
		coupon.EndsAt = parsed
	}
	return coupon, nil
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		ID:           strings.TrimSpace(coupon.ID),
		Code:         strings.TrimSpace(coupon.Code),
		Kind:         string(coupon.Kind),
		Amount:       coupon.Amount,
		MinSubtotal:  coupon.MinSubtotal,
		Status:       strings.TrimSpace(coupon.Status),
		StartsAt:     formatTime(coupon.StartsAt),
		EndsAt:       formatTime(coupon.EndsAt),
		PerUserLimit: coupon.PerUserLimit,
		UsageLimit:   coupon.UsageLimit,
		CreatedAt:    formatTime(coupon.CreatedAt),
		UpdatedAt:    formatTime(coupon.UpdatedAt),
	}
}
