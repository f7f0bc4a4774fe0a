package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Category groups products for storefront browsing.
type Category struct {
	ID        string
	Name      string
	Slug      string
	ImagePath string
	SortIndex int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product represents a storefront catalogue entry. Prices are stored in
// paise (minor currency units).
type Product struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	Brand        string
	CategoryID   string
	ImagePath    string
	UnitPrice    int64
	Currency     string
	CountInStock int
	IsPublished  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Cart aggregates the mutable shopping cart state for a user. It is the
// single source of truth for checkout until an order snapshot is taken.
type Cart struct {
	ID              string
	UserID          string
	Currency        string
	Items           []CartItem
	ShippingAddress *Address
	PaymentMethod   string
	Coupon          *CartCoupon
	Totals          *CartTotals
	Metadata        map[string]any
	UpdatedAt       time.Time
}

// CartCoupon captures the coupon snapshot applied to a cart. Discount is
// re-derived from the latest subtotal on every cart mutation.
type CartCoupon struct {
	Code           string
	DiscountAmount int64
	Applied        bool
}

// CartItem stores a single product line within a cart. Quantity is always
// at least 1; a line whose quantity would drop to 0 is removed instead.
type CartItem struct {
	ProductID  string
	Name       string
	Brand      string
	Category   string
	ImagePath  string
	UnitPrice  int64
	Currency   string
	Quantity   int
	StockLimit int
	AddedAt    time.Time
	UpdatedAt  *time.Time
}

// CartTotals summarizes the derived monetary breakdown for a cart in paise.
type CartTotals struct {
	ItemsPrice     int64
	ShippingPrice  int64
	TaxPrice       int64
	CouponDiscount int64
	TotalPrice     int64
}

// SurchargeQuote is the outcome of resolving a postal code against the
// serviceable delivery bands.
type SurchargeQuote struct {
	PostalCode string
	Allowed    bool
	Surcharge  int64
}

// PaymentSession represents gateway checkout session metadata handed back
// to the client. ClientSecret is the gateway's payment token (Cashfree's
// payment_session_id): hosted-checkout providers return it instead of a
// redirect URL, and the storefront launches checkout with it.
type PaymentSession struct {
	SessionID    string
	Provider     string
	ClientSecret string
	GatewayRef   string
	RedirectURL  string
	ExpiresAt    time.Time
}

// OrderStatus enumerates valid lifecycle states for orders. Transitions are
// monotonic: pending_payment → paid → shipped → delivered.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits payment completion.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid indicates payment succeeded.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped indicates the order has been shipped.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order has been delivered to the customer.
	OrderStatusDelivered OrderStatus = "delivered"
)

// Rank returns the monotonic position of the status in the lifecycle, or -1
// for an unknown status.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPendingPayment:
		return 0
	case OrderStatusPaid:
		return 1
	case OrderStatusShipped:
		return 2
	case OrderStatusDelivered:
		return 3
	default:
		return -1
	}
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered
}

// Order captures a placed order. Items and the price breakdown are a frozen
// snapshot taken at placement time; only status fields and payment records
// mutate afterwards.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	Currency        string
	Items           []OrderLineItem
	ShippingAddress Address
	PaymentMethod   string
	Totals          CartTotals
	CouponCode      string
	Contact         *OrderContact
	IdempotencyKey  string
	Payment         *OrderPayment
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
}

// IsPaid reports whether the order has reached at least the paid state.
func (o Order) IsPaid() bool {
	return o.Status.Rank() >= OrderStatusPaid.Rank()
}

// IsShipped reports whether the order has reached at least the shipped state.
func (o Order) IsShipped() bool {
	return o.Status.Rank() >= OrderStatusShipped.Rank()
}

// IsDelivered reports whether the order has been delivered.
func (o Order) IsDelivered() bool {
	return o.Status == OrderStatusDelivered
}

// OrderLineItem mirrors a cart item at the time of checkout.
type OrderLineItem struct {
	ProductID string
	Name      string
	Brand     string
	Category  string
	ImagePath string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// OrderContact stores the customer contact snapshot used by the gateway and
// for notifications.
type OrderContact struct {
	Name  string
	Email string
	Phone string
}

// OrderPayment records the gateway session and reconciliation outcome for an
// order. SessionID guards post-redirect reconciliation: each distinct session
// is applied at most once.
type OrderPayment struct {
	Provider     string
	SessionID    string
	ClientSecret string
	GatewayRef   string
	Status       string
	Amount       int64
	Currency     string
	ReconciledAt *time.Time
	Raw          map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CouponKind discriminates flat-amount and percentage coupons.
type CouponKind string

const (
	// CouponKindFlat subtracts a fixed amount from the cart subtotal.
	CouponKindFlat CouponKind = "flat"
	// CouponKindPercent subtracts a percentage of the cart subtotal.
	CouponKindPercent CouponKind = "percent"
)

// Coupon describes a discount code managed by the admin surface. Amount is
// paise for flat coupons and basis-free whole percent for percent coupons.
type Coupon struct {
	ID           string
	Code         string
	Kind         CouponKind
	Amount       int64
	MinSubtotal  int64
	Status       string
	StartsAt     time.Time
	EndsAt       time.Time
	PerUserLimit *int
	UsageLimit   *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CouponUsage aggregates per-user coupon usage counts.
type CouponUsage struct {
	UserID   string
	Times    int
	LastUsed time.Time
}

// CouponValidationResult is returned when a coupon is evaluated against a
// cart subtotal.
type CouponValidationResult struct {
	Code           string
	Valid          bool
	Reason         string
	DiscountAmount int64
}

// Address represents a delivery address. All four required fields must be
// non-empty before checkout can proceed.
type Address struct {
	Line1      string
	City       string
	PostalCode string
	Country    string
	Phone      string
	Surcharge  int64
}

// UserProfile captures the authenticated storefront user. IsAdmin mirrors
// the capability claim from the auth token; authorization is enforced
// server-side on every admin operation.
type UserProfile struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
