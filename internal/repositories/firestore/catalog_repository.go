package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kiranakart/api/internal/domain"
	pfirestore "github.com/kiranakart/api/internal/platform/firestore"
	"github.com/kiranakart/api/internal/repositories"
)

const (
	productsCollection   = "products"
	categoriesCollection = "categories"
)

// CatalogRepository bundles product and category persistence. Products carry
// a derived keywords field so storefront search stays a single indexed query.
type CatalogRepository struct {
	products   *pfirestore.BaseRepository[productDocument]
	categories *pfirestore.BaseRepository[categoryDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository: firestore provider is required")
	}
	return &CatalogRepository{
		products:   pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		categories: pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil),
	}, nil
}

// ListProducts returns products matching the filter, most recent first.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("catalog repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("catalog repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CategoryID != nil {
			q = q.Where("categoryId", "==", strings.TrimSpace(*filter.CategoryID))
		}
		if filter.OnlyPublished {
			q = q.Where("isPublished", "==", true)
		}
		if search != "" {
			q = q.Where("keywords", "array-contains", search)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Product, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// GetPublishedProduct fetches a product visible on the storefront. Hidden
// products surface as not found so admin state never leaks.
func (r *CatalogRepository) GetPublishedProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := r.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.IsPublished {
		return domain.Product{}, pfirestore.NotFoundError("products.get_published", fmt.Errorf("product %s not published", product.ID))
	}
	return product, nil
}

// GetProduct fetches a product regardless of publication state.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(productID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// UpsertProduct stores the product snapshot.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}
	doc := encodeProductDocument(product)
	if _, err := r.products.Set(ctx, productID, doc); err != nil {
		return domain.Product{}, err
	}
	saved := product
	saved.ID = productID
	return saved, nil
}

// DeleteProduct removes the product document.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	if r == nil || r.products == nil {
		return errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("catalog repository: product id is required")
	}
	docRef, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// ListCategories returns categories ordered for storefront navigation.
func (r *CatalogRepository) ListCategories(ctx context.Context, filter repositories.CategoryFilter) (domain.CursorPage[domain.Category], error) {
	if r == nil || r.categories == nil {
		return domain.CursorPage[domain.Category]{}, errors.New("catalog repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}

	docs, err := r.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.OnlyActive {
			q = q.Where("isActive", "==", true)
		}
		q = q.OrderBy("sortIndex", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Category]{}, err
	}

	items := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeCategoryDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return domain.CursorPage[domain.Category]{Items: items}, nil
}

// GetCategory fetches a single category.
func (r *CatalogRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.categories == nil {
		return domain.Category{}, errors.New("catalog repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, errors.New("catalog repository: category id is required")
	}
	doc, err := r.categories.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return decodeCategoryDocument(categoryID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// UpsertCategory stores the category snapshot.
func (r *CatalogRepository) UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if r == nil || r.categories == nil {
		return domain.Category{}, errors.New("catalog repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return domain.Category{}, errors.New("catalog repository: category id is required")
	}
	doc := encodeCategoryDocument(category)
	if _, err := r.categories.Set(ctx, categoryID, doc); err != nil {
		return domain.Category{}, err
	}
	saved := category
	saved.ID = categoryID
	return saved, nil
}

// DeleteCategory removes the category document.
func (r *CatalogRepository) DeleteCategory(ctx context.Context, categoryID string) error {
	if r == nil || r.categories == nil {
		return errors.New("catalog repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return errors.New("catalog repository: category id is required")
	}
	docRef, err := r.categories.DocumentRef(ctx, categoryID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("categories.delete", err)
	}
	return nil
}

func encodeProductDocument(product domain.Product) productDocument {
	return productDocument{
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
		Keywords:     productKeywords(product.Name, product.Brand),
		CreatedAt:    product.CreatedAt.UTC(),
		UpdatedAt:    product.UpdatedAt.UTC(),
	}
}

func decodeProductDocument(id string, doc productDocument, createdAt, updatedAt time.Time) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         doc.Name,
		Slug:         doc.Slug,
		Description:  doc.Description,
		Brand:        doc.Brand,
		CategoryID:   doc.CategoryID,
		ImagePath:    doc.ImagePath,
		UnitPrice:    doc.UnitPrice,
		Currency:     strings.ToUpper(strings.TrimSpace(doc.Currency)),
		CountInStock: doc.CountInStock,
		IsPublished:  doc.IsPublished,
		CreatedAt:    chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:    chooseTime(doc.UpdatedAt, updatedAt),
	}
}

func encodeCategoryDocument(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:      strings.TrimSpace(category.Name),
		Slug:      strings.TrimSpace(category.Slug),
		ImagePath: strings.TrimSpace(category.ImagePath),
		SortIndex: category.SortIndex,
		IsActive:  category.IsActive,
		CreatedAt: category.CreatedAt.UTC(),
		UpdatedAt: category.UpdatedAt.UTC(),
	}
}

func decodeCategoryDocument(id string, doc categoryDocument, createdAt, updatedAt time.Time) domain.Category {
	return domain.Category{
		ID:        id,
		Name:      doc.Name,
		Slug:      doc.Slug,
		ImagePath: doc.ImagePath,
		SortIndex: doc.SortIndex,
		IsActive:  doc.IsActive,
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt: chooseTime(doc.UpdatedAt, updatedAt),
	}
}

// productKeywords derives the lowercase search terms indexed for
// array-contains lookups.
func productKeywords(values ...string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, value := range values {
		for _, word := range strings.Fields(strings.ToLower(value)) {
			word = strings.Trim(word, ".,;:!?()[]\"'")
			if word == "" {
				continue
			}
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			keywords = append(keywords, word)
		}
	}
	return keywords
}

type productDocument struct {
	Name         string    `firestore:"name"`
	Slug         string    `firestore:"slug"`
	Description  string    `firestore:"description,omitempty"`
	Brand        string    `firestore:"brand,omitempty"`
	CategoryID   string    `firestore:"categoryId,omitempty"`
	ImagePath    string    `firestore:"imagePath,omitempty"`
	UnitPrice    int64     `firestore:"unitPrice"`
	Currency     string    `firestore:"currency"`
	CountInStock int       `firestore:"countInStock"`
	IsPublished  bool      `firestore:"isPublished"`
	Keywords     []string  `firestore:"keywords"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type categoryDocument struct {
	Name      string    `firestore:"name"`
	Slug      string    `firestore:"slug"`
	ImagePath string    `firestore:"imagePath,omitempty"`
	SortIndex int       `firestore:"sortIndex"`
	IsActive  bool      `firestore:"isActive"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
