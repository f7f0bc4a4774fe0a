package services

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrCartPricingInvalidInput signals bad request data such as negative prices or quantities.
	ErrCartPricingInvalidInput = errors.New("cart pricing: invalid input")
	// ErrCartPricingCurrencyMismatch is returned when items use multiple currencies.
	ErrCartPricingCurrencyMismatch = errors.New("cart pricing: currency mismatch")
	// ErrCartPricingUnserviceable is returned when the shipping address falls outside all serviceable bands.
	ErrCartPricingUnserviceable = errors.New("cart pricing: postal code not serviceable")
)

// SurchargeResolver maps a postal code to a serviceability decision and a
// delivery surcharge. Implementations are pure and configuration-driven.
type SurchargeResolver interface {
	ResolveSurcharge(postalCode string) SurchargeQuote
}

// TaxPolicy derives the tax amount for a cart from the items subtotal.
// Amounts are paise.
type TaxPolicy interface {
	CalculateTax(itemsPrice int64) int64
}

// FlatTaxPolicy charges a fixed tax amount on every non-empty cart.
type FlatTaxPolicy struct {
	Amount int64
}

// CalculateTax returns the flat amount, or zero for an empty subtotal.
func (p FlatTaxPolicy) CalculateTax(itemsPrice int64) int64 {
	if itemsPrice <= 0 {
		return 0
	}
	if p.Amount < 0 {
		return 0
	}
	return p.Amount
}

// RateTaxPolicy charges tax as basis points of the items subtotal, rounded
// half up.
type RateTaxPolicy struct {
	Bps int64
}

// CalculateTax applies the configured rate to the subtotal.
func (p RateTaxPolicy) CalculateTax(itemsPrice int64) int64 {
	if itemsPrice <= 0 || p.Bps <= 0 {
		return 0
	}
	return (itemsPrice*p.Bps + 5000) / 10000
}

// CartPricingEngine derives the monetary breakdown for a cart. It performs
// no I/O: identical inputs always yield identical output. All arithmetic is
// integer paise so repeated recomputation never drifts.
type CartPricingEngine struct {
	delivery     SurchargeResolver
	tax          TaxPolicy
	shippingBase int64
	currency     string
	now          func() time.Time
	logger       func(context.Context, string, map[string]any)
}

// CartPricingEngineDeps bundles dependencies required to construct a CartPricingEngine.
type CartPricingEngineDeps struct {
	Delivery     SurchargeResolver
	Tax          TaxPolicy
	ShippingBase int64
	Currency     string
	Now          func() time.Time
	Logger       func(context.Context, string, map[string]any)
}

// NewCartPricingEngine validates dependencies and returns a ready engine.
func NewCartPricingEngine(deps CartPricingEngineDeps) (*CartPricingEngine, error) {
	if deps.Delivery == nil {
		return nil, errors.New("cart pricing engine: surcharge resolver is required")
	}
	if deps.ShippingBase < 0 {
		return nil, errors.New("cart pricing engine: shipping base must be non-negative")
	}
	tax := deps.Tax
	if tax == nil {
		tax = FlatTaxPolicy{}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CartPricingEngine{
		delivery:     deps.Delivery,
		tax:          tax,
		shippingBase: deps.ShippingBase,
		currency:     currency,
		now:          func() time.Time { return now().UTC() },
		logger:       logger,
	}, nil
}

// PriceCartCommand carries the cart snapshot and the validated coupon
// discount to apply. The discount is an input, not a lookup: callers are
// responsible for re-validating the coupon against the latest subtotal
// before pricing.
type PriceCartCommand struct {
	Cart           Cart
	CouponDiscount int64
}

// PriceCartResult wraps the computed breakdown.
type PriceCartResult struct {
	Breakdown PricingBreakdown
}

// Calculate computes itemsPrice, shippingPrice (base + postal surcharge),
// taxPrice, and totalPrice = max(0, items + shipping + tax - discount).
// Shipping and tax are zero for an empty cart. A postal code outside the
// serviceable bands fails with ErrCartPricingUnserviceable.
func (e *CartPricingEngine) Calculate(ctx context.Context, cmd PriceCartCommand) (PriceCartResult, error) {
	if e == nil {
		return PriceCartResult{}, ErrCartPricingInvalidInput
	}
	cart := cmd.Cart
	if cmd.CouponDiscount < 0 {
		return PriceCartResult{}, ErrCartPricingInvalidInput
	}

	currency, err := e.ensureSingleCurrency(cart)
	if err != nil {
		return PriceCartResult{}, err
	}

	var itemsPrice int64
	itemLines := make([]ItemPricingBreakdown, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return PriceCartResult{}, ErrCartPricingInvalidInput
		}
		if item.UnitPrice < 0 {
			return PriceCartResult{}, ErrCartPricingInvalidInput
		}
		line := item.UnitPrice * int64(item.Quantity)
		itemsPrice += line
		itemLines = append(itemLines, ItemPricingBreakdown{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  line,
		})
	}

	breakdown := PricingBreakdown{
		Currency: currency,
		Items:    itemLines,
	}
	if len(cart.Items) == 0 {
		return PriceCartResult{Breakdown: breakdown}, nil
	}

	var surcharge int64
	if cart.ShippingAddress != nil && strings.TrimSpace(cart.ShippingAddress.PostalCode) != "" {
		quote := e.delivery.ResolveSurcharge(cart.ShippingAddress.PostalCode)
		if !quote.Allowed {
			return PriceCartResult{}, ErrCartPricingUnserviceable
		}
		surcharge = quote.Surcharge
	}

	shippingPrice := e.shippingBase + surcharge
	taxPrice := e.tax.CalculateTax(itemsPrice)
	if taxPrice < 0 {
		taxPrice = 0
	}

	discount := cmd.CouponDiscount
	total := itemsPrice + shippingPrice + taxPrice - discount
	if total < 0 {
		total = 0
	}

	breakdown.ItemsPrice = itemsPrice
	breakdown.ShippingBase = e.shippingBase
	breakdown.Surcharge = surcharge
	breakdown.ShippingPrice = shippingPrice
	breakdown.TaxPrice = taxPrice
	breakdown.CouponDiscount = discount
	breakdown.TotalPrice = total

	return PriceCartResult{Breakdown: breakdown}, nil
}

func (e *CartPricingEngine) ensureSingleCurrency(cart Cart) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(cart.Currency))
	if currency == "" {
		currency = e.currency
	}
	for _, item := range cart.Items {
		itemCurrency := strings.ToUpper(strings.TrimSpace(item.Currency))
		if itemCurrency == "" {
			continue
		}
		if itemCurrency != currency {
			return "", ErrCartPricingCurrencyMismatch
		}
	}
	return currency, nil
}
