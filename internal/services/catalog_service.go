package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/repositories"
)

const (
	productIDPrefix  = "prd_"
	categoryIDPrefix = "cat_"
)

var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

var (
	// ErrCatalogRepositoryMissing indicates the repository dependency is absent.
	ErrCatalogRepositoryMissing = errors.New("catalog service: repository is not configured")
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the product or category does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogConflict indicates a slug collision or concurrent update.
	ErrCatalogConflict = errors.New("catalog service: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
	Clock   func() time.Time
	IDGen   func() string
}

type catalogService struct {
	repo      repositories.CatalogRepository
	clock     func() time.Time
	idGen     func() string
	sanitizer *bluemonday.Policy
	caser     cases.Caser
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
// Free-text fields from the admin surface are run through a strict HTML
// sanitizer before persistence.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &catalogService{
		repo:      deps.Catalog,
		clock:     func() time.Time { return clock().UTC() },
		idGen:     idGen,
		sanitizer: bluemonday.StrictPolicy(),
		caser:     cases.Fold(),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[Product], error) {
	if s.repo == nil {
		return domain.CursorPage[Product]{}, ErrCatalogRepositoryMissing
	}
	repoFilter := repositories.ProductFilter{
		CategoryID:    normalizeFilterPointer(filter.CategoryID),
		Search:        s.caser.String(strings.TrimSpace(filter.Search)),
		OnlyPublished: filter.OnlyPublished,
		Pagination: domain.Pagination{
			PageSize:  filter.Pagination.PageSize,
			PageToken: strings.TrimSpace(filter.Pagination.PageToken),
		},
	}
	page, err := s.repo.ListProducts(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, includeUnpublished bool) (Product, error) {
	if s.repo == nil {
		return Product{}, ErrCatalogRepositoryMissing
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	var (
		product domain.Product
		err     error
	)
	if includeUnpublished {
		product, err = s.repo.GetProduct(ctx, productID)
	} else {
		product, err = s.repo.GetPublishedProduct(ctx, productID)
	}
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if s.repo == nil {
		return Product{}, ErrCatalogRepositoryMissing
	}

	product := cmd.Product
	product.ID = strings.TrimSpace(product.ID)
	product.Name = s.sanitizeText(product.Name)
	product.Brand = s.sanitizeText(product.Brand)
	product.Description = s.sanitizeText(product.Description)
	product.CategoryID = strings.TrimSpace(product.CategoryID)
	product.ImagePath = strings.TrimSpace(product.ImagePath)
	product.Currency = strings.ToUpper(strings.TrimSpace(product.Currency))

	if product.Name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if product.UnitPrice < 0 {
		return Product{}, fmt.Errorf("%w: unit price must be non-negative", ErrCatalogInvalidInput)
	}
	if product.CountInStock < 0 {
		return Product{}, fmt.Errorf("%w: stock must be non-negative", ErrCatalogInvalidInput)
	}
	if product.Currency == "" {
		product.Currency = "INR"
	}
	if product.CategoryID != "" {
		if _, err := s.repo.GetCategory(ctx, product.CategoryID); err != nil {
			if isCatalogRepositoryNotFound(err) {
				return Product{}, fmt.Errorf("%w: category %s", ErrCatalogNotFound, product.CategoryID)
			}
			return Product{}, s.mapRepositoryError(err)
		}
	}

	now := s.clock()
	if product.ID == "" {
		product.ID = productIDPrefix + s.idGen()
		product.CreatedAt = now
	} else {
		existing, err := s.repo.GetProduct(ctx, product.ID)
		if err != nil {
			return Product{}, s.mapRepositoryError(err)
		}
		product.CreatedAt = existing.CreatedAt
	}
	product.Slug = s.generateSlug(product.Name)
	product.UpdatedAt = now

	saved, err := s.repo.UpsertProduct(ctx, product)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.repo == nil {
		return ErrCatalogRepositoryMissing
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		if isCatalogRepositoryNotFound(err) {
			return nil
		}
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) ListCategories(ctx context.Context, filter CategoryFilter) (domain.CursorPage[Category], error) {
	if s.repo == nil {
		return domain.CursorPage[Category]{}, ErrCatalogRepositoryMissing
	}
	repoFilter := repositories.CategoryFilter{
		OnlyActive: filter.OnlyActive,
		Pagination: domain.Pagination{
			PageSize:  filter.Pagination.PageSize,
			PageToken: strings.TrimSpace(filter.Pagination.PageToken),
		},
	}
	page, err := s.repo.ListCategories(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Category]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s.repo == nil {
		return Category{}, ErrCatalogRepositoryMissing
	}

	category := cmd.Category
	category.ID = strings.TrimSpace(category.ID)
	category.Name = s.sanitizeText(category.Name)
	category.ImagePath = strings.TrimSpace(category.ImagePath)
	if category.Name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}

	now := s.clock()
	if category.ID == "" {
		category.ID = categoryIDPrefix + s.idGen()
		category.CreatedAt = now
	} else {
		existing, err := s.repo.GetCategory(ctx, category.ID)
		if err != nil {
			return Category{}, s.mapRepositoryError(err)
		}
		category.CreatedAt = existing.CreatedAt
	}
	category.Slug = s.generateSlug(category.Name)
	category.UpdatedAt = now

	saved, err := s.repo.UpsertCategory(ctx, category)
	if err != nil {
		return Category{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.repo == nil {
		return ErrCatalogRepositoryMissing
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.DeleteCategory(ctx, categoryID); err != nil {
		if isCatalogRepositoryNotFound(err) {
			return nil
		}
		return s.mapRepositoryError(err)
	}
	return nil
}

// sanitizeText strips any markup from admin-supplied free text. The policy
// entity-escapes its output, so unescape to keep plain text like "&" intact.
func (s *catalogService) sanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

// generateSlug lowercases via Unicode case folding so non-ASCII product
// names still produce stable slugs.
func (s *catalogService) generateSlug(name string) string {
	folded := s.caser.String(strings.TrimSpace(name))
	folded = slugSanitizer.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-")
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		}
	}
	return err
}

func isCatalogRepositoryNotFound(err error) bool {
	if err == nil {
		return false
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func normalizeFilterPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
