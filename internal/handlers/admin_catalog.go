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

// AdminCatalogHandlers exposes the staff product and category lifecycle,
// including unpublished entries the public surface hides.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

const maxAdminCatalogBodySize = 64 * 1024

// NewAdminCatalogHandlers constructs the staff catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes wires the staff catalog endpoints onto the provided router.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	page, err := paginationFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ProductFilter{
		Search:     strings.TrimSpace(r.URL.Query().Get("q")),
		Pagination: page,
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filter.CategoryID = &category
	}

	result, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}

	payload := productListResponse{
		Products:      make([]productPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, product := range result.Items {
		payload.Products = append(payload.Products, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID, true)
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type productWriteRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	Brand        string `json:"brand"`
	CategoryID   string `json:"category_id"`
	ImagePath    string `json:"image_path"`
	UnitPrice    int64  `json:"unit_price"`
	Currency     string `json:"currency"`
	CountInStock int    `json:"count_in_stock"`
	IsPublished  bool   `json:"is_published"`
}

func (req productWriteRequest) toProduct(productID string) domain.Product {
	return domain.Product{
		ID:           productID,
		Name:         strings.TrimSpace(req.Name),
		Slug:         strings.TrimSpace(req.Slug),
		Description:  req.Description,
		Brand:        strings.TrimSpace(req.Brand),
		CategoryID:   strings.TrimSpace(req.CategoryID),
		ImagePath:    strings.TrimSpace(req.ImagePath),
		UnitPrice:    req.UnitPrice,
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
		CountInStock: req.CountInStock,
		IsPublished:  req.IsPublished,
	}
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.upsertProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	h.upsertProduct(w, r, productID)
}

func (h *AdminCatalogHandlers) upsertProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req productWriteRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		Product: req.toProduct(productID),
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if productID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	page, err := paginationFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.catalog.ListCategories(ctx, services.CategoryFilter{Pagination: page})
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}

	payload := categoryListResponse{
		Categories:    make([]categoryPayload, 0, len(result.Items)),
		NextPageToken: result.NextPageToken,
	}
	for _, category := range result.Items {
		payload.Categories = append(payload.Categories, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type categoryWriteRequest struct {
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	ImagePath string `json:"image_path"`
	SortIndex int    `json:"sort_index"`
	IsActive  bool   `json:"is_active"`
}

func (req categoryWriteRequest) toCategory(categoryID string) domain.Category {
	return domain.Category{
		ID:        categoryID,
		Name:      strings.TrimSpace(req.Name),
		Slug:      strings.TrimSpace(req.Slug),
		ImagePath: strings.TrimSpace(req.ImagePath),
		SortIndex: req.SortIndex,
		IsActive:  req.IsActive,
	}
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, "")
}

func (h *AdminCatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := strings.TrimSpace(chi.URLParam(r, "categoryID"))
	if categoryID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "category id is required", http.StatusBadRequest))
		return
	}
	h.upsertCategory(w, r, categoryID)
}

func (h *AdminCatalogHandlers) upsertCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req categoryWriteRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	category, err := h.catalog.UpsertCategory(ctx, services.UpsertCategoryCommand{
		Category: req.toCategory(categoryID),
		ActorID:  identity.UID,
	})
	if err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if categoryID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	categoryID := strings.TrimSpace(chi.URLParam(r, "categoryID"))
	if categoryID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "category id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteCategory(ctx, categoryID); err != nil {
		writeCatalogServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *AdminCatalogHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxAdminCatalogBodySize)
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
