package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kiranakart/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals malformed cart mutation input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartRepositoryMissing indicates a required repository dependency is absent.
	ErrCartRepositoryMissing = errors.New("cart service: repository is not configured")
	// ErrCartProductNotFound indicates the referenced product does not exist or is unpublished.
	ErrCartProductNotFound = errors.New("cart service: product not found")
	// ErrCartItemNotFound indicates the cart has no line for the referenced product.
	ErrCartItemNotFound = errors.New("cart service: item not found")
	// ErrCartOutOfStock indicates the requested quantity exceeds available stock.
	ErrCartOutOfStock = errors.New("cart service: quantity exceeds stock")
	// ErrCartUnserviceableAddress indicates the shipping postal code falls outside the delivery bands.
	ErrCartUnserviceableAddress = errors.New("cart service: address not serviceable")
	// ErrCartCouponRejected indicates the coupon failed validation against the current cart.
	ErrCartCouponRejected = errors.New("cart service: coupon rejected")
	// ErrCartUnavailable indicates the cart store is temporarily unreachable.
	ErrCartUnavailable = errors.New("cart service: storage unavailable")
)

// CouponRejectionError wraps ErrCartCouponRejected with the machine-readable
// reason produced by coupon validation.
type CouponRejectionError struct {
	Code   string
	Reason string
}

func (e *CouponRejectionError) Error() string {
	return "cart service: coupon rejected: " + e.Reason
}

// Unwrap lets callers match the sentinel with errors.Is.
func (e *CouponRejectionError) Unwrap() error { return ErrCartCouponRejected }

const cartIDPrefix = "crt_"

// CartServiceDeps bundles dependencies required to construct a CartService implementation.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog repositories.CatalogRepository
	Pricing *CartPricingEngine
	Coupons CouponService
	Clock   func() time.Time
	IDGen   func() string
	Logger  func(context.Context, string, map[string]any)
}

type cartService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	pricing *CartPricingEngine
	coupons CouponService
	clock   func() time.Time
	idGen   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewCartService wires a CartService backed by the provided repositories and
// pricing engine.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, ErrCartRepositoryMissing
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return cartIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		pricing: deps.Pricing,
		coupons: deps.Coupons,
		clock:   func() time.Time { return clock().UTC() },
		idGen:   idGen,
		logger:  logger,
	}, nil
}

// GetOrCreateCart returns the user's working cart, materialising an empty
// one if none exists yet. The empty cart is not persisted until the first
// mutation.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.carts.GetCart(ctx, trimmed)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok {
			switch {
			case repoErr.IsNotFound():
				return s.newCart(trimmed), nil
			case repoErr.IsUnavailable():
				return Cart{}, ErrCartUnavailable
			}
		}
		return Cart{}, err
	}
	return cart, nil
}

// AddItem adds a product line or merges quantity into an existing line. The
// resulting quantity is capped at the product's available stock.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 {
		return Cart{}, ErrCartInvalidInput
	}

	product, err := s.lookupProduct(ctx, cmd.ProductID)
	if err != nil {
		return Cart{}, err
	}
	if product.CountInStock <= 0 {
		return Cart{}, ErrCartOutOfStock
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	quantity := cmd.Quantity
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID != product.ID {
			continue
		}
		quantity += cart.Items[i].Quantity
		if quantity > product.CountInStock {
			quantity = product.CountInStock
		}
		cart.Items[i].Quantity = quantity
		cart.Items[i].UnitPrice = product.UnitPrice
		cart.Items[i].Currency = product.Currency
		cart.Items[i].StockLimit = product.CountInStock
		cart.Items[i].UpdatedAt = &now
		merged = true
		break
	}
	if !merged {
		if quantity > product.CountInStock {
			quantity = product.CountInStock
		}
		cart.Items = append(cart.Items, CartItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Brand:      product.Brand,
			Category:   product.CategoryID,
			ImagePath:  product.ImagePath,
			UnitPrice:  product.UnitPrice,
			Currency:   product.Currency,
			Quantity:   quantity,
			StockLimit: product.CountInStock,
			AddedAt:    now,
		})
	}

	return s.repriceAndSave(ctx, cart)
}

// SetItemQuantity replaces a line's quantity. A target below 1 removes the
// line; a target above the stock limit fails instead of silently clamping,
// so the storefront can tell the user what happened.
func (s *cartService) SetItemQuantity(ctx context.Context, cmd SetCartItemQuantityCommand) (Cart, error) {
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity < 1 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{UserID: cmd.UserID, ProductID: cmd.ProductID})
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	product, err := s.lookupProduct(ctx, cmd.ProductID)
	if err != nil {
		return Cart{}, err
	}
	if cmd.Quantity > product.CountInStock {
		return Cart{}, ErrCartOutOfStock
	}

	now := s.clock()
	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID != product.ID {
			continue
		}
		cart.Items[i].Quantity = cmd.Quantity
		cart.Items[i].UnitPrice = product.UnitPrice
		cart.Items[i].StockLimit = product.CountInStock
		cart.Items[i].UpdatedAt = &now
		found = true
		break
	}
	if !found {
		return Cart{}, ErrCartItemNotFound
	}

	return s.repriceAndSave(ctx, cart)
}

// RemoveItem drops the line for the product if present.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	items := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == cmd.ProductID {
			removed = true
			continue
		}
		items = append(items, item)
	}
	if !removed {
		return Cart{}, ErrCartItemNotFound
	}
	cart.Items = items

	return s.repriceAndSave(ctx, cart)
}

// SetShippingAddress validates and stores the delivery address. The postal
// code must resolve to a serviceable band; the resolved surcharge is stored
// on the address and reflected in shipping totals.
func (s *cartService) SetShippingAddress(ctx context.Context, cmd SetShippingAddressCommand) (Cart, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return Cart{}, ErrCartInvalidInput
	}
	address := cmd.Address
	address.Line1 = strings.TrimSpace(address.Line1)
	address.City = strings.TrimSpace(address.City)
	address.PostalCode = strings.TrimSpace(address.PostalCode)
	address.Country = strings.TrimSpace(address.Country)
	address.Phone = strings.TrimSpace(address.Phone)
	if address.Line1 == "" || address.City == "" || address.PostalCode == "" || address.Country == "" {
		return Cart{}, ErrCartInvalidInput
	}

	quote := s.pricing.delivery.ResolveSurcharge(address.PostalCode)
	if !quote.Allowed {
		return Cart{}, ErrCartUnserviceableAddress
	}
	address.Surcharge = quote.Surcharge

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}
	cart.ShippingAddress = &address

	return s.repriceAndSave(ctx, cart)
}

// SetPaymentMethod records the chosen payment method on the cart.
func (s *cartService) SetPaymentMethod(ctx context.Context, cmd SetPaymentMethodCommand) (Cart, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return Cart{}, ErrCartInvalidInput
	}
	method := strings.TrimSpace(cmd.Method)
	if method == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}
	cart.PaymentMethod = method

	return s.repriceAndSave(ctx, cart)
}

// ApplyCoupon validates the code against the cart's current subtotal and
// attaches it. Validation failures surface as CouponRejectionError so the
// storefront can show the reason inline.
func (s *cartService) ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (Cart, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if s.coupons == nil {
		return Cart{}, errors.New("cart service: coupon service is not configured")
	}
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	result, err := s.coupons.Validate(ctx, ValidateCouponCommand{
		Code:     code,
		UserID:   cmd.UserID,
		Subtotal: cartItemsSubtotal(cart),
	})
	if err != nil {
		return Cart{}, err
	}
	if !result.Valid {
		return Cart{}, &CouponRejectionError{Code: code, Reason: result.Reason}
	}

	cart.Coupon = &CartCoupon{
		Code:           result.Code,
		DiscountAmount: result.DiscountAmount,
		Applied:        true,
	}

	return s.repriceAndSave(ctx, cart)
}

// RemoveCoupon detaches any applied coupon and reprices.
func (s *cartService) RemoveCoupon(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if cart.Coupon == nil {
		return cart, nil
	}
	cart.Coupon = nil

	return s.repriceAndSave(ctx, cart)
}

// ClearCart deletes the user's cart entirely. Missing carts are a no-op.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return ErrCartInvalidInput
	}
	if err := s.carts.DeleteCart(ctx, trimmed); err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			return nil
		}
		return err
	}
	return nil
}

// repriceAndSave recomputes the coupon discount against the latest subtotal,
// runs the pricing engine, and persists the cart. Stored totals therefore
// always reflect the current items, address, and coupon.
func (s *cartService) repriceAndSave(ctx context.Context, cart Cart) (Cart, error) {
	now := s.clock()

	var discount int64
	if cart.Coupon != nil && s.coupons != nil {
		result, err := s.coupons.Validate(ctx, ValidateCouponCommand{
			Code:     cart.Coupon.Code,
			UserID:   cart.UserID,
			Subtotal: cartItemsSubtotal(cart),
		})
		if err != nil {
			return Cart{}, err
		}
		if result.Valid {
			discount = result.DiscountAmount
			cart.Coupon.DiscountAmount = result.DiscountAmount
			cart.Coupon.Applied = true
		} else {
			// The coupon no longer qualifies (for instance the subtotal
			// dropped below its minimum). Keep the code visible but stop
			// discounting.
			cart.Coupon.DiscountAmount = 0
			cart.Coupon.Applied = false
			s.logger(ctx, "cart.coupon_deactivated", map[string]any{
				"user_id": cart.UserID,
				"code":    cart.Coupon.Code,
				"reason":  result.Reason,
			})
		}
	}

	priced, err := s.pricing.Calculate(ctx, PriceCartCommand{Cart: cart, CouponDiscount: discount})
	if err != nil {
		if errors.Is(err, ErrCartPricingUnserviceable) {
			return Cart{}, ErrCartUnserviceableAddress
		}
		return Cart{}, err
	}
	totals := priced.Breakdown.Totals()
	cart.Totals = &totals
	cart.Currency = priced.Breakdown.Currency
	cart.UpdatedAt = now

	saved, err := s.carts.UpsertCart(ctx, cart)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsUnavailable() {
			return Cart{}, ErrCartUnavailable
		}
		return Cart{}, err
	}
	return saved, nil
}

func (s *cartService) lookupProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.catalog.GetPublishedProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsNotFound() {
			return Product{}, ErrCartProductNotFound
		}
		return Product{}, err
	}
	return product, nil
}

func (s *cartService) newCart(userID string) Cart {
	return Cart{
		ID:        s.idGen(),
		UserID:    userID,
		UpdatedAt: s.clock(),
	}
}

func cartItemsSubtotal(cart Cart) int64 {
	var subtotal int64
	for _, item := range cart.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return subtotal
}
