package order

import "github.com/shopspring/decimal"

// Pricing holds the flat surcharges shown on confirmations.
type Pricing struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

// DefaultPricing is a 13% tax rate and a 9.90 flat shipping fee.
var DefaultPricing = Pricing{
	TaxRate:     decimal.RequireFromString("0.13"),
	ShippingFee: decimal.RequireFromString("9.90"),
}

// Summary is the customer-facing breakdown of an order's cost.
type Summary struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Summarize computes the breakdown for o. The order total stays the
// pre-tax item sum; tax and shipping only appear here.
func (p Pricing) Summarize(o *Order) Summary {
	subtotal := calcSubtotal(o.Items)
	tax := floorAtZero(subtotal.Mul(p.TaxRate)).Round(2)
	shipping := floorAtZero(p.ShippingFee).Round(2)

	return Summary{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
	}
}

func calcSubtotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
