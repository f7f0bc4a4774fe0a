package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiranakart/api/internal/platform/httpx"
	"github.com/kiranakart/api/internal/services"
)

// CatalogHandlers serves the public storefront read surface. No
// authentication: anonymous shoppers browse products and categories.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs public catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the public catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ensureService(ctx, w) {
		return
	}

	page, err := paginationFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ProductFilter{
		Search:        strings.TrimSpace(r.URL.Query().Get("q")),
		OnlyPublished: true,
		Pagination:    page,
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filter.CategoryID = &category
	}

	result, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
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

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ensureService(ctx, w) {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID, false)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ensureService(ctx, w) {
		return
	}

	page, err := paginationFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.catalog.ListCategories(ctx, services.CategoryFilter{
		OnlyActive: true,
		Pagination: page,
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
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

func (h *CatalogHandlers) ensureService(ctx context.Context, w http.ResponseWriter) bool {
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	writeCatalogServiceError(ctx, w, err)
}

func writeCatalogServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "product or category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogRepositoryMissing):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description,omitempty"`
	Brand        string `json:"brand,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
	ImagePath    string `json:"image_path,omitempty"`
	UnitPrice    int64  `json:"unit_price"`
	Currency     string `json:"currency"`
	CountInStock int    `json:"count_in_stock"`
	IsPublished  bool   `json:"is_published"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:           strings.TrimSpace(product.ID),
		Name:         strings.TrimSpace(product.Name),
		Slug:         strings.TrimSpace(product.Slug),
		Description:  strings.TrimSpace(product.Description),
		Brand:        strings.TrimSpace(product.Brand),
		CategoryID:   strings.TrimSpace(product.CategoryID),
		ImagePath:    strings.TrimSpace(product.ImagePath),
		UnitPrice:    product.UnitPrice,
		Currency:     strings.ToUpper(strings.TrimSpace(product.Currency)),
		CountInStock: product.CountInStock,
		IsPublished:  product.IsPublished,
		CreatedAt:    formatTime(product.CreatedAt),
		UpdatedAt:    formatTime(product.UpdatedAt),
	}
}

type categoryListResponse struct {
	Categories    []categoryPayload `json:"categories"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type categoryPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	ImagePath string `json:"image_path,omitempty"`
	SortIndex int    `json:"sort_index"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{
		ID:        strings.TrimSpace(category.ID),
		Name:      strings.TrimSpace(category.Name),
		Slug:      strings.TrimSpace(category.Slug),
		ImagePath: strings.TrimSpace(category.ImagePath),
		SortIndex: category.SortIndex,
		IsActive:  category.IsActive,
		CreatedAt: formatTime(category.CreatedAt),
		UpdatedAt: formatTime(category.UpdatedAt),
	}
}
