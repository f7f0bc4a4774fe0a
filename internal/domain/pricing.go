package domain

// PricingBreakdown captures the aggregated monetary results of pricing a
// cart. All amounts are paise.
type PricingBreakdown struct {
	Currency       string
	ItemsPrice     int64
	ShippingBase   int64
	Surcharge      int64
	ShippingPrice  int64
	TaxPrice       int64
	CouponDiscount int64
	TotalPrice     int64
	Items          []ItemPricingBreakdown
}

// ItemPricingBreakdown stores the per-line pricing outputs after running the
// engine.
type ItemPricingBreakdown struct {
	ProductID string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

// Totals flattens the breakdown into the shape persisted on carts and
// orders.
func (b PricingBreakdown) Totals() CartTotals {
	return CartTotals{
		ItemsPrice:     b.ItemsPrice,
		ShippingPrice:  b.ShippingPrice,
		TaxPrice:       b.TaxPrice,
		CouponDiscount: b.CouponDiscount,
		TotalPrice:     b.TotalPrice,
	}
}
