package services

import (
	"context"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination             = domain.Pagination
	SortOrder              = domain.SortOrder
	Cart                   = domain.Cart
	CartCoupon             = domain.CartCoupon
	CartItem               = domain.CartItem
	CartTotals             = domain.CartTotals
	PricingBreakdown       = domain.PricingBreakdown
	ItemPricingBreakdown   = domain.ItemPricingBreakdown
	SurchargeQuote         = domain.SurchargeQuote
	PaymentSession         = domain.PaymentSession
	Order                  = domain.Order
	OrderLineItem          = domain.OrderLineItem
	OrderContact           = domain.OrderContact
	OrderPayment           = domain.OrderPayment
	OrderStatus            = domain.OrderStatus
	Coupon                 = domain.Coupon
	CouponUsage            = domain.CouponUsage
	CouponValidationResult = domain.CouponValidationResult
	Address                = domain.Address
	Product                = domain.Product
	Category               = domain.Category
	UserProfile            = domain.UserProfile
	SystemHealthReport     = domain.SystemHealthReport
)

// CartService manages mutable cart state. Every mutation reprices the cart
// through the pricing engine before persisting, so stored totals are never
// stale relative to items, address, or coupon.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	SetItemQuantity(ctx context.Context, cmd SetCartItemQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	SetShippingAddress(ctx context.Context, cmd SetShippingAddressCommand) (Cart, error)
	SetPaymentMethod(ctx context.Context, cmd SetPaymentMethodCommand) (Cart, error)
	ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (Cart, error)
	RemoveCoupon(ctx context.Context, userID string) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CouponService validates coupon codes against definitions and per-user
// usage, and exposes the admin lifecycle.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error)
	RecordRedemption(ctx context.Context, cmd RecordRedemptionCommand) error
	ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	DeleteCoupon(ctx context.Context, couponID string) error
}

// CheckoutService orchestrates order placement: snapshot the cart into an
// order, create the gateway payment session, and reconcile the payment after
// the gateway redirects back.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (CheckoutResult, error)
	ReconcilePayment(ctx context.Context, cmd ReconcilePaymentCommand) (Order, error)
}

// OrderService encapsulates order reads and monotonic status transitions.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error)
	MarkShipped(ctx context.Context, cmd MarkStatusCommand) (Order, error)
	MarkDelivered(ctx context.Context, cmd MarkStatusCommand) (Order, error)
}

// CatalogService manages products and categories for storefront reads and
// admin writes.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string, includeUnpublished bool) (Product, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ListCategories(ctx context.Context, filter CategoryFilter) (domain.CursorPage[Category], error)
	UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
}

// UserService manages storefront user profiles.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// CounterService issues monotonic sequence values with optional formatting,
// backing human-readable order numbers.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// CounterGenerationOptions controls increment behaviour and formatting for
// generated counter values.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, value int64) string
}

// CounterValue carries a raw sequence value and its formatted rendering.
type CounterValue struct {
	Value     int64
	Formatted string
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// Command and DTO definitions ------------------------------------------------

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type SetCartItemQuantityCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
}

type SetShippingAddressCommand struct {
	UserID  string
	Address Address
}

type SetPaymentMethodCommand struct {
	UserID string
	Method string
}

type ApplyCouponCommand struct {
	UserID string
	Code   string
}

type ValidateCouponCommand struct {
	Code     string
	UserID   string
	Subtotal int64
}

type RecordRedemptionCommand struct {
	Code   string
	UserID string
}

type CouponListFilter struct {
	Status     []string
	Pagination Pagination
}

type UpsertCouponCommand struct {
	Coupon  Coupon
	ActorID string
}

// PlaceOrderCommand starts a checkout attempt. IdempotencyKey deduplicates
// retries and double submissions: a replayed key returns the original order
// instead of creating a new one.
type PlaceOrderCommand struct {
	UserID         string
	IdempotencyKey string
	Contact        OrderContact
	ReturnURL      string
	NotifyURL      string
	Provider       string
}

// CheckoutResult carries the created (or replayed) order together with the
// gateway session the client must redirect to.
type CheckoutResult struct {
	Order    Order
	Session  PaymentSession
	Replayed bool
}

// ReconcilePaymentCommand confirms a payment after the gateway redirect.
// SessionID keys the reconciliation: a session already applied to the order
// is a no-op success.
type ReconcilePaymentCommand struct {
	OrderID   string
	UserID    string
	SessionID string
	Completed bool
	Details   map[string]any
}

type OrderListFilter = repositories.OrderListFilter

type CreateOrderFromCartCommand struct {
	Cart           Cart
	Contact        OrderContact
	IdempotencyKey string
	ActorID        string
}

type MarkPaidCommand struct {
	OrderID   string
	SessionID string
	ActorID   string
	Details   map[string]any
}

type MarkStatusCommand struct {
	OrderID string
	ActorID string
}

type ProductFilter struct {
	CategoryID    *string
	Search        string
	OnlyPublished bool
	Pagination    Pagination
}

type CategoryFilter struct {
	OnlyActive bool
	Pagination Pagination
}

type UpsertProductCommand struct {
	Product Product
	ActorID string
}

type UpsertCategoryCommand struct {
	Category Category
	ActorID  string
}

// UpdateProfileCommand carries a partial profile update. Nil pointers leave
// the corresponding field untouched; Email only seeds a missing profile and
// never overwrites an existing address.
type UpdateProfileCommand struct {
	UserID  string
	Email   string
	Name    *string
	Phone   *string
	ActorID string
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
