package repositories

import (
	"context"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Coupons() CouponRepository
	CouponUsage() CouponUsageRepository
	Catalog() CatalogRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart persistence keyed by user. A user has at most one
// working cart at a time.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// OrderRepository persists order snapshots and provides query helpers for
// users and admins. Orders are inserted once; Update only ever touches
// status, timestamps and the payment record.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID string, key string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CouponRepository maintains coupon definitions managed by the admin surface.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	Delete(ctx context.Context, couponID string) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[domain.Coupon], error)
}

// CouponUsageRepository records redemption counts to enforce per-user and
// aggregate limits.
type CouponUsageRepository interface {
	GetUsage(ctx context.Context, couponID string, userID string) (domain.CouponUsage, error)
	TotalUsage(ctx context.Context, couponID string) (int, error)
	IncrementUsage(ctx context.Context, couponID string, userID string, now time.Time) (domain.CouponUsage, error)
}

// CatalogRepository bundles product and category storage.
type CatalogRepository interface {
	ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[domain.Product], error)
	GetPublishedProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	ListCategories(ctx context.Context, filter CategoryFilter) (domain.CursorPage[domain.Category], error)
	GetCategory(ctx context.Context, categoryID string) (domain.Category, error)
	UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
}

// UserRepository stores user profiles.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// CounterRepository provides transaction-safe sequence numbers, used for
// human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type CouponListFilter struct {
	Status     []string
	Pagination domain.Pagination
}

type ProductFilter struct {
	CategoryID    *string
	Search        string
	OnlyPublished bool
	Pagination    domain.Pagination
}

type CategoryFilter struct {
	OnlyActive bool
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
