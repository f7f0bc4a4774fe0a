package handlers

import (
	"context"
	"errors"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/services"
)

var errStubNotImplemented = errors.New("stub: not implemented")

type stubCartService struct {
	getOrCreateFunc        func(ctx context.Context, userID string) (services.Cart, error)
	addItemFunc            func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	setItemQuantityFunc    func(ctx context.Context, cmd services.SetCartItemQuantityCommand) (services.Cart, error)
	removeItemFunc         func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	setShippingAddressFunc func(ctx context.Context, cmd services.SetShippingAddressCommand) (services.Cart, error)
	setPaymentMethodFunc   func(ctx context.Context, cmd services.SetPaymentMethodCommand) (services.Cart, error)
	applyCouponFunc        func(ctx context.Context, cmd services.ApplyCouponCommand) (services.Cart, error)
	removeCouponFunc       func(ctx context.Context, userID string) (services.Cart, error)
	clearCartFunc          func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getOrCreateFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.getOrCreateFunc(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addItemFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.addItemFunc(ctx, cmd)
}

func (s *stubCartService) SetItemQuantity(ctx context.Context, cmd services.SetCartItemQuantityCommand) (services.Cart, error) {
	if s.setItemQuantityFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.setItemQuantityFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeItemFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.removeItemFunc(ctx, cmd)
}

func (s *stubCartService) SetShippingAddress(ctx context.Context, cmd services.SetShippingAddressCommand) (services.Cart, error) {
	if s.setShippingAddressFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.setShippingAddressFunc(ctx, cmd)
}

func (s *stubCartService) SetPaymentMethod(ctx context.Context, cmd services.SetPaymentMethodCommand) (services.Cart, error) {
	if s.setPaymentMethodFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.setPaymentMethodFunc(ctx, cmd)
}

func (s *stubCartService) ApplyCoupon(ctx context.Context, cmd services.ApplyCouponCommand) (services.Cart, error) {
	if s.applyCouponFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.applyCouponFunc(ctx, cmd)
}

func (s *stubCartService) RemoveCoupon(ctx context.Context, userID string) (services.Cart, error) {
	if s.removeCouponFunc == nil {
		return services.Cart{}, errStubNotImplemented
	}
	return s.removeCouponFunc(ctx, userID)
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearCartFunc == nil {
		return errStubNotImplemented
	}
	return s.clearCartFunc(ctx, userID)
}

type stubCheckoutService struct {
	placeOrderFunc       func(ctx context.Context, cmd services.PlaceOrderCommand) (services.CheckoutResult, error)
	reconcilePaymentFunc func(ctx context.Context, cmd services.ReconcilePaymentCommand) (services.Order, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.CheckoutResult, error) {
	if s.placeOrderFunc == nil {
		return services.CheckoutResult{}, errStubNotImplemented
	}
	return s.placeOrderFunc(ctx, cmd)
}

func (s *stubCheckoutService) ReconcilePayment(ctx context.Context, cmd services.ReconcilePaymentCommand) (services.Order, error) {
	if s.reconcilePaymentFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.reconcilePaymentFunc(ctx, cmd)
}

type stubOrderService struct {
	createFromCartFunc func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.Order, error)
	getOrderFunc       func(ctx context.Context, orderID string) (services.Order, error)
	listOrdersFunc     func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	markPaidFunc       func(ctx context.Context, cmd services.MarkPaidCommand) (services.Order, error)
	markShippedFunc    func(ctx context.Context, cmd services.MarkStatusCommand) (services.Order, error)
	markDeliveredFunc  func(ctx context.Context, cmd services.MarkStatusCommand) (services.Order, error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrderFromCartCommand) (services.Order, error) {
	if s.createFromCartFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.createFromCartFunc(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getOrderFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.getOrderFunc(ctx, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listOrdersFunc == nil {
		return domain.CursorPage[services.Order]{}, errStubNotImplemented
	}
	return s.listOrdersFunc(ctx, filter)
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd services.MarkPaidCommand) (services.Order, error) {
	if s.markPaidFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.markPaidFunc(ctx, cmd)
}

func (s *stubOrderService) MarkShipped(ctx context.Context, cmd services.MarkStatusCommand) (services.Order, error) {
	if s.markShippedFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.markShippedFunc(ctx, cmd)
}

func (s *stubOrderService) MarkDelivered(ctx context.Context, cmd services.MarkStatusCommand) (services.Order, error) {
	if s.markDeliveredFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.markDeliveredFunc(ctx, cmd)
}

type stubCatalogService struct {
	listProductsFunc   func(ctx context.Context, filter services.ProductFilter) (domain.CursorPage[services.Product], error)
	getProductFunc     func(ctx context.Context, productID string, includeUnpublished bool) (services.Product, error)
	upsertProductFunc  func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	deleteProductFunc  func(ctx context.Context, productID string) error
	listCategoriesFunc func(ctx context.Context, filter services.CategoryFilter) (domain.CursorPage[services.Category], error)
	upsertCategoryFunc func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error)
	deleteCategoryFunc func(ctx context.Context, categoryID string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFunc == nil {
		return domain.CursorPage[services.Product]{}, errStubNotImplemented
	}
	return s.listProductsFunc(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string, includeUnpublished bool) (services.Product, error) {
	if s.getProductFunc == nil {
		return services.Product{}, errStubNotImplemented
	}
	return s.getProductFunc(ctx, productID, includeUnpublished)
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.upsertProductFunc == nil {
		return services.Product{}, errStubNotImplemented
	}
	return s.upsertProductFunc(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteProductFunc == nil {
		return errStubNotImplemented
	}
	return s.deleteProductFunc(ctx, productID)
}

func (s *stubCatalogService) ListCategories(ctx context.Context, filter services.CategoryFilter) (domain.CursorPage[services.Category], error) {
	if s.listCategoriesFunc == nil {
		return domain.CursorPage[services.Category]{}, errStubNotImplemented
	}
	return s.listCategoriesFunc(ctx, filter)
}

func (s *stubCatalogService) UpsertCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.upsertCategoryFunc == nil {
		return services.Category{}, errStubNotImplemented
	}
	return s.upsertCategoryFunc(ctx, cmd)
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.deleteCategoryFunc == nil {
		return errStubNotImplemented
	}
	return s.deleteCategoryFunc(ctx, categoryID)
}

type stubCouponService struct {
	validateFunc         func(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error)
	recordRedemptionFunc func(ctx context.Context, cmd services.RecordRedemptionCommand) error
	listCouponsFunc      func(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[services.Coupon], error)
	createCouponFunc     func(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error)
	updateCouponFunc     func(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error)
	deleteCouponFunc     func(ctx context.Context, couponID string) error
}

func (s *stubCouponService) Validate(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error) {
	if s.validateFunc == nil {
		return services.CouponValidationResult{}, errStubNotImplemented
	}
	return s.validateFunc(ctx, cmd)
}

func (s *stubCouponService) RecordRedemption(ctx context.Context, cmd services.RecordRedemptionCommand) error {
	if s.recordRedemptionFunc == nil {
		return errStubNotImplemented
	}
	return s.recordRedemptionFunc(ctx, cmd)
}

func (s *stubCouponService) ListCoupons(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[services.Coupon], error) {
	if s.listCouponsFunc == nil {
		return domain.CursorPage[services.Coupon]{}, errStubNotImplemented
	}
	return s.listCouponsFunc(ctx, filter)
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createCouponFunc == nil {
		return services.Coupon{}, errStubNotImplemented
	}
	return s.createCouponFunc(ctx, cmd)
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.updateCouponFunc == nil {
		return services.Coupon{}, errStubNotImplemented
	}
	return s.updateCouponFunc(ctx, cmd)
}

func (s *stubCouponService) DeleteCoupon(ctx context.Context, couponID string) error {
	if s.deleteCouponFunc == nil {
		return errStubNotImplemented
	}
	return s.deleteCouponFunc(ctx, couponID)
}

type stubUserService struct {
	getProfileFunc    func(ctx context.Context, userID string) (services.UserProfile, error)
	updateProfileFunc func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error)
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	if s.getProfileFunc == nil {
		return services.UserProfile{}, errStubNotImplemented
	}
	return s.getProfileFunc(ctx, userID)
}

func (s *stubUserService) UpdateProfile(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
	if s.updateProfileFunc == nil {
		return services.UserProfile{}, errStubNotImplemented
	}
	return s.updateProfileFunc(ctx, cmd)
}

type stubSystemService struct {
	healthReportFunc     func(ctx context.Context) (services.SystemHealthReport, error)
	nextCounterValueFunc func(ctx context.Context, cmd services.CounterCommand) (int64, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.healthReportFunc == nil {
		return services.SystemHealthReport{}, errStubNotImplemented
	}
	return s.healthReportFunc(ctx)
}

func (s *stubSystemService) NextCounterValue(ctx context.Context, cmd services.CounterCommand) (int64, error) {
	if s.nextCounterValueFunc == nil {
		return 0, errStubNotImplemented
	}
	return s.nextCounterValueFunc(ctx, cmd)
}
