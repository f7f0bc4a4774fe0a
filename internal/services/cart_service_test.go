package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/platform/config"
	"github.com/kiranakart/api/internal/repositories"
)

type fakeCartRepo struct {
	carts       map[string]domain.Cart
	unavailable bool
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: map[string]domain.Cart{}}
}

func (r *fakeCartRepo) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	if r.unavailable {
		return domain.Cart{}, fakeRepoError{unavailable: true}
	}
	r.carts[cart.UserID] = cart
	return cart, nil
}

func (r *fakeCartRepo) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	if r.unavailable {
		return domain.Cart{}, fakeRepoError{unavailable: true}
	}
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, fakeRepoError{notFound: true}
	}
	return cart, nil
}

func (r *fakeCartRepo) DeleteCart(_ context.Context, userID string) error {
	if _, ok := r.carts[userID]; !ok {
		return fakeRepoError{notFound: true}
	}
	delete(r.carts, userID)
	return nil
}

type fakeCatalogRepo struct {
	products map[string]domain.Product
}

func newFakeCatalogRepo(products ...domain.Product) *fakeCatalogRepo {
	repo := &fakeCatalogRepo{products: map[string]domain.Product{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *fakeCatalogRepo) ListProducts(_ context.Context, _ repositories.ProductFilter) (domain.CursorPage[domain.Product], error) {
	page := domain.CursorPage[domain.Product]{}
	for _, p := range r.products {
		page.Items = append(page.Items, p)
	}
	return page, nil
}

func (r *fakeCatalogRepo) GetPublishedProduct(_ context.Context, productID string) (domain.Product, error) {
	product, ok := r.products[productID]
	if !ok || !product.IsPublished {
		return domain.Product{}, fakeRepoError{notFound: true}
	}
	return product, nil
}

func (r *fakeCatalogRepo) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, fakeRepoError{notFound: true}
	}
	return product, nil
}

func (r *fakeCatalogRepo) UpsertProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	r.products[product.ID] = product
	return product, nil
}

func (r *fakeCatalogRepo) DeleteProduct(_ context.Context, productID string) error {
	if _, ok := r.products[productID]; !ok {
		return fakeRepoError{notFound: true}
	}
	delete(r.products, productID)
	return nil
}

func (r *fakeCatalogRepo) ListCategories(_ context.Context, _ repositories.CategoryFilter) (domain.CursorPage[domain.Category], error) {
	return domain.CursorPage[domain.Category]{}, nil
}

func (r *fakeCatalogRepo) GetCategory(_ context.Context, _ string) (domain.Category, error) {
	return domain.Category{}, fakeRepoError{notFound: true}
}

func (r *fakeCatalogRepo) UpsertCategory(_ context.Context, category domain.Category) (domain.Category, error) {
	return category, nil
}

func (r *fakeCatalogRepo) DeleteCategory(_ context.Context, _ string) error { return nil }

var cartTestNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type cartFixture struct {
	svc     CartService
	carts   *fakeCartRepo
	catalog *fakeCatalogRepo
	coupons CouponService
}

func newCartFixture(t *testing.T, products []domain.Product, coupons ...domain.Coupon) cartFixture {
	t.Helper()

	carts := newFakeCartRepo()
	catalog := newFakeCatalogRepo(products...)

	delivery, err := NewDeliveryService(DeliveryServiceDeps{
		ServiceableBands: configuredBands(config.DefaultServiceableBands()),
		SurchargeBands:   configuredBands(config.DefaultSurchargeBands()),
		SurchargeAmount:  9100,
	})
	if err != nil {
		t.Fatalf("NewDeliveryService: %v", err)
	}

	engine, err := NewCartPricingEngine(CartPricingEngineDeps{
		Delivery:     delivery,
		Tax:          FlatTaxPolicy{Amount: 2000},
		ShippingBase: 9900,
		Now:          fixedClock(cartTestNow),
	})
	if err != nil {
		t.Fatalf("NewCartPricingEngine: %v", err)
	}

	couponSvc, err := NewCouponService(CouponServiceDeps{
		Coupons: newFakeCouponRepo(coupons...),
		Usage:   &fakeCouponUsageRepo{},
		Clock:   fixedClock(cartTestNow),
	})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}

	svc, err := NewCartService(CartServiceDeps{
		Carts:   carts,
		Catalog: catalog,
		Pricing: engine,
		Coupons: couponSvc,
		Clock:   fixedClock(cartTestNow),
		IDGen:   func() string { return "crt_test" },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}

	return cartFixture{svc: svc, carts: carts, catalog: catalog, coupons: couponSvc}
}

func testProduct(id string, price int64, stock int) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         "Product " + id,
		UnitPrice:    price,
		Currency:     "INR",
		CountInStock: stock,
		IsPublished:  true,
	}
}

func TestCartServiceAddItem(t *testing.T) {
	fx := newCartFixture(t, []domain.Product{testProduct("prd_rice", 20000, 10)})

	cart, err := fx.svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected cart items %+v", cart.Items)
	}
	if cart.Totals == nil {
		t.Fatal("expected totals to be computed")
	}
	if cart.Totals.ItemsPrice != 40000 {
		t.Fatalf("expected items price 40000 got %d", cart.Totals.ItemsPrice)
	}
	// No address yet: only base shipping applies.
	if cart.Totals.ShippingPrice != 9900 {
		t.Fatalf("expected shipping 9900 got %d", cart.Totals.ShippingPrice)
	}

	// Adding the same product merges lines and caps at stock.
	cart, err = fx.svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 20})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(cart.Items))
	}
	if cart.Items[0].Quantity != 10 {
		t.Fatalf("expected quantity capped at stock 10 got %d", cart.Items[0].Quantity)
	}
}

func TestCartServiceAddItemErrors(t *testing.T) {
	unpublished := testProduct("prd_hidden", 1000, 5)
	unpublished.IsPublished = false
	outOfStock := testProduct("prd_gone", 1000, 0)
	fx := newCartFixture(t, []domain.Product{unpublished, outOfStock})

	if _, err := fx.svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "prd_hidden", Quantity: 1}); !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound got %v", err)
	}
	if _, err := fx.svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "prd_gone", Quantity: 1}); !errors.Is(err, ErrCartOutOfStock) {
		t.Fatalf("expected ErrCartOutOfStock got %v", err)
	}
	if _, err := fx.svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "prd_gone", Quantity: 0}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput got %v", err)
	}
}

func TestCartServiceSetItemQuantity(t *testing.T) {
	fx := newCartFixture(t, []domain.Product{testProduct("prd_rice", 20000, 5)})
	ctx := context.Background()

	if _, err := fx.svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	cart, err := fx.svc.SetItemQuantity(ctx, SetCartItemQuantityCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 3})
	if err != nil {
		t.Fatalf("SetItemQuantity returned error: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity 3 got %d", cart.Items[0].Quantity)
	}

	if _, err := fx.svc.SetItemQuantity(ctx, SetCartItemQuantityCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 6}); !errors.Is(err, ErrCartOutOfStock) {
		t.Fatalf("expected ErrCartOutOfStock got %v", err)
	}

	// Quantity below 1 removes the line.
	cart, err = fx.svc.SetItemQuantity(ctx, SetCartItemQuantityCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 0})
	if err != nil {
		t.Fatalf("SetItemQuantity returned error: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart got %d lines", len(cart.Items))
	}
	if cart.Totals.TotalPrice != 0 {
		t.Fatalf("expected zero total for empty cart got %d", cart.Totals.TotalPrice)
	}
}

func TestCartServiceSetShippingAddress(t *testing.T) {
	fx := newCartFixture(t, []domain.Product{testProduct("prd_rice", 55000, 10)})
	ctx := context.Background()

	if _, err := fx.svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	cart, err := fx.svc.SetShippingAddress(ctx, SetShippingAddressCommand{
		UserID: "user-1",
		Address: Address{
			Line1:      "12 Gandhi Bazaar",
			City:       "Bengaluru",
			PostalCode: "560004",
			Country:    "IN",
		},
	})
	if err != nil {
		t.Fatalf("SetShippingAddress returned error: %v", err)
	}
	if cart.ShippingAddress == nil || cart.ShippingAddress.Surcharge != 9100 {
		t.Fatalf("expected surcharge 9100 on address, got %+v", cart.ShippingAddress)
	}
	if cart.Totals.ShippingPrice != 19000 {
		t.Fatalf("expected shipping 19000 got %d", cart.Totals.ShippingPrice)
	}
	if cart.Totals.TotalPrice != 76000 {
		t.Fatalf("expected total 76000 got %d", cart.Totals.TotalPrice)
	}

	// Out-of-band pincode is rejected before any state is saved.
	if _, err := fx.svc.SetShippingAddress(ctx, SetShippingAddressCommand{
		UserID: "user-1",
		Address: Address{
			Line1:      "1 Marine Drive",
			City:       "Mumbai",
			PostalCode: "400001",
			Country:    "IN",
		},
	}); !errors.Is(err, ErrCartUnserviceableAddress) {
		t.Fatalf("expected ErrCartUnserviceableAddress got %v", err)
	}

	saved := fx.carts.carts["user-1"]
	if saved.ShippingAddress == nil || saved.ShippingAddress.PostalCode != "560004" {
		t.Fatalf("expected stored address to remain 560004, got %+v", saved.ShippingAddress)
	}

	if _, err := fx.svc.SetShippingAddress(ctx, SetShippingAddressCommand{
		UserID:  "user-1",
		Address: Address{Line1: "x", City: "", PostalCode: "560004", Country: "IN"},
	}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput for missing city got %v", err)
	}
}

func TestCartServiceApplyCoupon(t *testing.T) {
	fx := newCartFixture(t,
		[]domain.Product{testProduct("prd_rice", 55000, 10)},
		activeCoupon("SAVE100", domain.CouponKindFlat, 10000),
	)
	ctx := context.Background()

	if _, err := fx.svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := fx.svc.SetShippingAddress(ctx, SetShippingAddressCommand{
		UserID:  "user-1",
		Address: Address{Line1: "12 Gandhi Bazaar", City: "Bengaluru", PostalCode: "560004", Country: "IN"},
	}); err != nil {
		t.Fatalf("SetShippingAddress: %v", err)
	}

	cart, err := fx.svc.ApplyCoupon(ctx, ApplyCouponCommand{UserID: "user-1", Code: "save100"})
	if err != nil {
		t.Fatalf("ApplyCoupon returned error: %v", err)
	}
	if cart.Coupon == nil || !cart.Coupon.Applied || cart.Coupon.DiscountAmount != 10000 {
		t.Fatalf("unexpected coupon state %+v", cart.Coupon)
	}
	if cart.Totals.TotalPrice != 66000 {
		t.Fatalf("expected discounted total 66000 got %d", cart.Totals.TotalPrice)
	}

	// Re-applying the same coupon must not stack the discount.
	cart, err = fx.svc.ApplyCoupon(ctx, ApplyCouponCommand{UserID: "user-1", Code: "SAVE100"})
	if err != nil {
		t.Fatalf("ApplyCoupon returned error: %v", err)
	}
	if cart.Totals.TotalPrice != 66000 {
		t.Fatalf("expected stable total 66000 got %d", cart.Totals.TotalPrice)
	}

	var rejection *CouponRejectionError
	_, err = fx.svc.ApplyCoupon(ctx, ApplyCouponCommand{UserID: "user-1", Code: "NOPE"})
	if !errors.As(err, &rejection) {
		t.Fatalf("expected CouponRejectionError got %v", err)
	}
	if rejection.Reason != CouponReasonNotFound {
		t.Fatalf("expected reason %s got %s", CouponReasonNotFound, rejection.Reason)
	}
	if !errors.Is(err, ErrCartCouponRejected) {
		t.Fatal("expected rejection to unwrap to ErrCartCouponRejected")
	}

	cart, err = fx.svc.RemoveCoupon(ctx, "user-1")
	if err != nil {
		t.Fatalf("RemoveCoupon returned error: %v", err)
	}
	if cart.Coupon != nil {
		t.Fatalf("expected coupon removed, got %+v", cart.Coupon)
	}
	if cart.Totals.TotalPrice != 76000 {
		t.Fatalf("expected total restored to 76000 got %d", cart.Totals.TotalPrice)
	}
}

func TestCartServiceCouponDeactivatedWhenSubtotalDrops(t *testing.T) {
	minCoupon := activeCoupon("MIN500", domain.CouponKindFlat, 10000)
	minCoupon.MinSubtotal = 50000
	fx := newCartFixture(t,
		[]domain.Product{testProduct("prd_rice", 55000, 10)},
		minCoupon,
	)
	ctx := context.Background()

	if _, err := fx.svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := fx.svc.ApplyCoupon(ctx, ApplyCouponCommand{UserID: "user-1", Code: "MIN500"}); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}

	// Dropping the line pushes the subtotal below the coupon minimum; the
	// discount must disappear rather than go stale.
	cart, err := fx.svc.RemoveItem(ctx, RemoveCartItemCommand{UserID: "user-1", ProductID: "prd_rice"})
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if cart.Coupon == nil {
		t.Fatal("expected coupon code to remain visible")
	}
	if cart.Coupon.Applied || cart.Coupon.DiscountAmount != 0 {
		t.Fatalf("expected deactivated coupon, got %+v", cart.Coupon)
	}
	if cart.Totals.CouponDiscount != 0 {
		t.Fatalf("expected zero discount got %d", cart.Totals.CouponDiscount)
	}
}

func TestCartServiceClearCart(t *testing.T) {
	fx := newCartFixture(t, []domain.Product{testProduct("prd_rice", 20000, 10)})
	ctx := context.Background()

	if _, err := fx.svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prd_rice", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := fx.svc.ClearCart(ctx, "user-1"); err != nil {
		t.Fatalf("ClearCart returned error: %v", err)
	}
	if _, ok := fx.carts.carts["user-1"]; ok {
		t.Fatal("expected cart to be deleted")
	}
	// Clearing an absent cart is a no-op.
	if err := fx.svc.ClearCart(ctx, "user-1"); err != nil {
		t.Fatalf("ClearCart on missing cart returned error: %v", err)
	}
}

func TestCartServiceGetOrCreateCart(t *testing.T) {
	fx := newCartFixture(t, nil)

	cart, err := fx.svc.GetOrCreateCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateCart returned error: %v", err)
	}
	if cart.UserID != "user-1" || len(cart.Items) != 0 {
		t.Fatalf("unexpected fresh cart %+v", cart)
	}
	// The empty cart is not persisted.
	if _, ok := fx.carts.carts["user-1"]; ok {
		t.Fatal("expected empty cart to stay unpersisted")
	}

	if _, err := fx.svc.GetOrCreateCart(context.Background(), "  "); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput got %v", err)
	}
}
