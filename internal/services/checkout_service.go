package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/kiranakart/api/internal/domain"
	"github.com/kiranakart/api/internal/payments"
	"github.com/kiranakart/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartNotReady indicates the cart is missing required data for checkout.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutPaymentFailed indicates the gateway session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment session failed")
	// ErrCheckoutPaymentIncomplete indicates the gateway does not report the payment as captured.
	ErrCheckoutPaymentIncomplete = errors.New("checkout: payment incomplete")
	// ErrCheckoutOrderMismatch indicates the order does not belong to the caller or the session.
	ErrCheckoutOrderMismatch = errors.New("checkout: order mismatch")
)

// checkoutGateway abstracts payments.Manager for easier testing.
type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Cart     CartService
	Orders   OrderService
	OrderLog repositories.OrderRepository
	Coupons  CouponService
	Payments checkoutGateway
	Clock    func() time.Time
	KeyGen   func() string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	cart     CartService
	orders   OrderService
	orderLog repositories.OrderRepository
	coupons  CouponService
	payments checkoutGateway
	now      func() time.Time
	keyGen   func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Cart == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.OrderLog == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	keyGen := deps.KeyGen
	if keyGen == nil {
		keyGen = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		cart:     deps.Cart,
		orders:   deps.Orders,
		orderLog: deps.OrderLog,
		coupons:  deps.Coupons,
		payments: deps.Payments,
		now: func() time.Time {
			return clock().UTC()
		},
		keyGen: keyGen,
		logger: logger,
	}, nil
}

// PlaceOrder runs the placement pipeline: replay the idempotency key if it
// was seen before, otherwise snapshot the cart into an order, open the
// gateway session, and clear the cart. The cart is cleared only after the
// session exists; a gateway failure leaves the unpaid order in place so a
// retry with the same key resumes it instead of creating a duplicate.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}
	returnURL := strings.TrimSpace(cmd.ReturnURL)
	if returnURL == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}

	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		key = s.keyGen()
	}

	if existing, found, err := s.findByKey(ctx, userID, key); err != nil {
		return CheckoutResult{}, err
	} else if found {
		return s.resumeOrder(ctx, existing, cmd, returnURL)
	}

	cart, err := s.cart.GetOrCreateCart(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := validateCheckoutCart(cart); err != nil {
		return CheckoutResult{}, err
	}

	order, err := s.orders.CreateFromCart(ctx, CreateOrderFromCartCommand{
		Cart:           cart,
		Contact:        cmd.Contact,
		IdempotencyKey: key,
		ActorID:        userID,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	session, err := s.openSession(ctx, order, cmd, returnURL)
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"order_id": order.ID,
			"user_id":  userID,
			"error":    err.Error(),
		})
		return CheckoutResult{Order: order}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	order, err = s.attachSession(ctx, order, session)
	if err != nil {
		return CheckoutResult{}, err
	}

	if order.CouponCode != "" && s.coupons != nil {
		if err := s.coupons.RecordRedemption(ctx, RecordRedemptionCommand{
			Code:   order.CouponCode,
			UserID: userID,
		}); err != nil {
			s.logger(ctx, "checkout.redemption_record_failed", map[string]any{
				"order_id": order.ID,
				"code":     order.CouponCode,
				"error":    err.Error(),
			})
		}
	}

	if err := s.cart.ClearCart(ctx, userID); err != nil {
		// The order and session already exist; an undeleted cart is
		// recoverable noise rather than a checkout failure.
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"order_id": order.ID,
			"user_id":  userID,
			"error":    err.Error(),
		})
	}

	return CheckoutResult{Order: order, Session: toPaymentSession(session)}, nil
}

// ReconcilePayment confirms a payment after the gateway redirect. A
// completed claim is never trusted on its own: the gateway is asked for the
// authoritative status before the order is marked paid.
func (s *checkoutService) ReconcilePayment(ctx context.Context, cmd ReconcilePaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	sessionID := strings.TrimSpace(cmd.SessionID)
	if orderID == "" || sessionID == "" {
		return Order{}, ErrCheckoutInvalidInput
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		return Order{}, ErrCheckoutOrderMismatch
	}
	if order.Payment == nil || order.Payment.SessionID != sessionID {
		return Order{}, ErrCheckoutOrderMismatch
	}

	if order.IsPaid() {
		return order, nil
	}

	// A redirect that reports the payment as abandoned skips the gateway
	// round trip; the background sweeper still catches a stale flag. A
	// completed claim is always verified against the gateway below.
	if !cmd.Completed {
		return Order{}, ErrCheckoutPaymentIncomplete
	}

	details, err := s.payments.LookupPayment(ctx, payments.PaymentContext{
		PreferredProvider: order.Payment.Provider,
		Currency:          order.Currency,
	}, payments.LookupRequest{IntentID: sessionID})
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if details.Status != payments.StatusSucceeded {
		return Order{}, ErrCheckoutPaymentIncomplete
	}

	markDetails := map[string]any{}
	if details.IntentID != "" {
		markDetails["gatewayRef"] = details.IntentID
	}
	for k, v := range cmd.Details {
		markDetails[k] = v
	}

	return s.orders.MarkPaid(ctx, MarkPaidCommand{
		OrderID:   order.ID,
		SessionID: sessionID,
		ActorID:   cmd.UserID,
		Details:   markDetails,
	})
}

func (s *checkoutService) findByKey(ctx context.Context, userID, key string) (Order, bool, error) {
	order, err := s.orderLog.FindByIdempotencyKey(ctx, userID, key)
	if err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok {
			switch {
			case repoErr.IsNotFound():
				return Order{}, false, nil
			case repoErr.IsUnavailable():
				return Order{}, false, ErrCheckoutUnavailable
			}
		}
		return Order{}, false, err
	}
	return order, true, nil
}

// resumeOrder handles an idempotency-key replay. An order that already has a
// gateway session hands the same session back; one whose session creation
// failed earlier gets a fresh session against the same order id.
func (s *checkoutService) resumeOrder(ctx context.Context, order Order, cmd PlaceOrderCommand, returnURL string) (CheckoutResult, error) {
	if order.Payment != nil && order.Payment.SessionID != "" {
		return CheckoutResult{
			Order: order,
			Session: PaymentSession{
				SessionID:    order.Payment.SessionID,
				Provider:     order.Payment.Provider,
				ClientSecret: order.Payment.ClientSecret,
				GatewayRef:   order.Payment.GatewayRef,
			},
			Replayed: true,
		}, nil
	}

	session, err := s.openSession(ctx, order, cmd, returnURL)
	if err != nil {
		return CheckoutResult{Order: order, Replayed: true}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	order, err = s.attachSession(ctx, order, session)
	if err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{Order: order, Session: toPaymentSession(session), Replayed: true}, nil
}

func (s *checkoutService) openSession(ctx context.Context, order Order, cmd PlaceOrderCommand, returnURL string) (payments.CheckoutSession, error) {
	items := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Name,
			SKU:      line.ProductID,
			Quantity: int64(line.Quantity),
			Amount:   line.UnitPrice,
			Currency: order.Currency,
		})
	}

	// The order snapshot carries the contact on replays where the retry
	// request body may be empty.
	contact := cmd.Contact
	if order.Contact != nil {
		contact = *order.Contact
	}
	metadata := map[string]string{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	}
	if notifyURL := strings.TrimSpace(cmd.NotifyURL); notifyURL != "" {
		metadata["notifyUrl"] = notifyURL
	}
	if name := strings.TrimSpace(contact.Name); name != "" {
		metadata["customerName"] = name
	}
	if email := strings.TrimSpace(contact.Email); email != "" {
		metadata["customerEmail"] = email
	}
	if phone := strings.TrimSpace(contact.Phone); phone != "" {
		metadata["customerPhone"] = phone
	}

	return s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{
		PreferredProvider: cmd.Provider,
		Currency:          order.Currency,
	}, payments.CheckoutSessionRequest{
		Amount:         order.Totals.TotalPrice,
		Currency:       order.Currency,
		CustomerID:     order.UserID,
		SuccessURL:     buildReturnURL(returnURL, order.ID),
		CancelURL:      buildReturnURL(returnURL, order.ID),
		Metadata:       metadata,
		IdempotencyKey: order.IdempotencyKey,
		Items:          items,
	})
}

// attachSession records the pending gateway session on the order so redirect
// reconciliation and the background sweeper can find it.
func (s *checkoutService) attachSession(ctx context.Context, order Order, session payments.CheckoutSession) (Order, error) {
	now := s.now()
	order.Payment = &domain.OrderPayment{
		Provider:     session.Provider,
		SessionID:    session.ID,
		ClientSecret: session.ClientSecret,
		Status:       string(payments.StatusPending),
		Amount:       order.Totals.TotalPrice,
		Currency:     order.Currency,
		Raw:          session.Raw,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.UpdatedAt = now
	if err := s.orderLog.Update(ctx, order); err != nil {
		if repoErr, ok := err.(repositories.RepositoryError); ok && repoErr.IsUnavailable() {
			return Order{}, ErrCheckoutUnavailable
		}
		return Order{}, err
	}
	return order, nil
}

func validateCheckoutCart(cart Cart) error {
	if len(cart.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrCheckoutCartNotReady)
	}
	if cart.ShippingAddress == nil || strings.TrimSpace(cart.ShippingAddress.PostalCode) == "" {
		return fmt.Errorf("%w: shipping address missing", ErrCheckoutCartNotReady)
	}
	if strings.TrimSpace(cart.PaymentMethod) == "" {
		return fmt.Errorf("%w: payment method missing", ErrCheckoutCartNotReady)
	}
	if cart.Totals == nil || cart.Totals.TotalPrice <= 0 {
		return fmt.Errorf("%w: cart has no payable total", ErrCheckoutCartNotReady)
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %s has invalid quantity %d", ErrCheckoutCartNotReady, item.ProductID, item.Quantity)
		}
	}
	return nil
}

// buildReturnURL appends the order id to the client-supplied redirect target
// so the post-payment page knows which order to reconcile.
func buildReturnURL(base, orderID string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	query.Set("orderId", orderID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func toPaymentSession(session payments.CheckoutSession) PaymentSession {
	return PaymentSession{
		SessionID:    session.ID,
		Provider:     session.Provider,
		ClientSecret: session.ClientSecret,
		GatewayRef:   session.IntentID,
		RedirectURL:  session.RedirectURL,
		ExpiresAt:    session.ExpiresAt,
	}
}
