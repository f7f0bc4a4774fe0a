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
	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/services"
)

func TestAdminCatalogHandlersListIncludesUnpublished(t *testing.T) {
	service := &stubCatalogService{
		listProductsFunc: func(ctx context.Context, filter services.ProductFilter) (domain.CursorPage[services.Product], error) {
			if filter.OnlyPublished {
				t.Fatalf("staff listing must include unpublished products")
			}
			return domain.CursorPage[services.Product]{
				Items: []services.Product{{ID: "prd_draft", Name: "Draft", IsPublished: false}},
			}, nil
		},
	}
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/admin/products", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminCatalogHandlersGetProductIncludesUnpublished(t *testing.T) {
	service := &stubCatalogService{
		getProductFunc: func(ctx context.Context, productID string, includeUnpublished bool) (services.Product, error) {
			if !includeUnpublished {
				t.Fatalf("staff reads must include unpublished products")
			}
			return services.Product{ID: productID, IsPublished: false}, nil
		},
	}
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/admin/products/prd_draft", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestAdminCatalogHandlersCreateProduct(t *testing.T) {
	service := &stubCatalogService{
		upsertProductFunc: func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
			if cmd.Product.ID != "" {
				t.Fatalf("create must not carry an id, got %q", cmd.Product.ID)
			}
			if cmd.Product.Name != "Toor Dal 1kg" || cmd.Product.UnitPrice != 18900 {
				t.Fatalf("unexpected product %#v", cmd.Product)
			}
			if cmd.ActorID != "admin-1" {
				t.Fatalf("expected actor id, got %q", cmd.ActorID)
			}
			created := cmd.Product
			created.ID = "prd_new"
			return created, nil
		},
	}
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := bytes.NewBufferString(`{"name":"Toor Dal 1kg","unit_price":18900,"currency":"inr","category_id":"cat_staples","count_in_stock":40,"is_published":true}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/products", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Product.ID != "prd_new" || resp.Product.Currency != "INR" {
		t.Fatalf("unexpected product %#v", resp.Product)
	}
}

func TestAdminCatalogHandlersUpdateProductUsesPathID(t *testing.T) {
	service := &stubCatalogService{
		upsertProductFunc: func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
			if cmd.Product.ID != "prd_7" {
				t.Fatalf("expected id from path, got %q", cmd.Product.ID)
			}
			return cmd.Product, nil
		},
	}
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := bytes.NewBufferString(`{"name":"Updated","unit_price":100,"currency":"INR"}`)
	req := httptest.NewRequest(http.MethodPut, "/admin/products/prd_7", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestAdminCatalogHandlersDeleteProductNotFound(t *testing.T) {
	service := &stubCatalogService{
		deleteProductFunc: func(ctx context.Context, productID string) error {
			return services.ErrCatalogNotFound
		},
	}
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/admin/products/missing", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminCatalogHandlersCreateCategory(t *testing.T) {
	service := &stubCatalogService{
		upsertCategoryFunc: func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
			if cmd.Category.Name != "Staples" || !cmd.Category.IsActive {
				t.Fatalf("unexpected category %#v", cmd.Category)
			}
			created := cmd.Category
			created.ID = "cat_new"
			return created, nil
		},
	}
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := bytes.NewBufferString(`{"name":"Staples","sort_index":1,"is_active":true}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/categories", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminCatalogHandlersSlugConflict(t *testing.T) {
	service := &stubCatalogService{
		upsertCategoryFunc: func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
			return services.Category{}, services.ErrCatalogConflict
		},
	}
	handler := NewAdminCatalogHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := bytes.NewBufferString(`{"name":"Staples"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/categories", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
