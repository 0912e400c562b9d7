package types

import "github.com/shopspring/decimal"

// ProductSnapshot is the slice of product data the backend denormalizes onto
// each cart item so the cart renders without a catalog round trip.
type ProductSnapshot struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
	VendorID string          `json:"vendor_id,omitempty"`
}

// CartItem is one line of the cart. Quantity is always a positive integer in
// a well-formed cart; the session layer routes zero to removal.
type CartItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ProductName string          `json:"product_name"`
	Product     ProductSnapshot `json:"product"`
}

// LineTotal is unit_price multiplied by quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the authoritative server-side cart as last fetched.
type Cart struct {
	ID    string     `json:"id"`
	Items []CartItem `json:"items"`
}

// ItemCount sums the quantities across all lines.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Totals are the client-derived cart amounts. No tax is computed client-side.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals derives the cart totals. Shipping is a fixed policy value of
// zero in this system. The sum is insertion-order independent.
func ComputeTotals(cart Cart) Totals {
	subtotal := decimal.Zero
	for _, item := range cart.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	shipping := decimal.Zero
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal.Add(shipping),
	}
}
