package types

import (
	"github.com/shopspring/decimal"

	"github.com/harborline/storefront/pkg/enums"
)

// CheckoutData is the transient, client-only snapshot gathered during the
// checkout step. It is owned by the checkout session and rebuilt on every
// field change; nothing is persisted until order submission.
type CheckoutData struct {
	BillingAddress       Address
	ShippingAddress      *Address
	PaymentMethod        enums.PaymentMethod
	CustomerNotes        string
	UseDifferentShipping bool
}

// OrderRequest is the order-creation payload. ShippingAddress is nil when the
// order ships to the billing address; the backend interprets the omission as
// "same as billing".
type OrderRequest struct {
	BillingAddress       Address             `json:"billing_address"`
	ShippingAddress      *Address            `json:"shipping_address,omitempty"`
	PaymentMethod        enums.PaymentMethod `json:"payment_method"`
	CustomerNotes        string              `json:"customer_notes,omitempty"`
	UseDifferentShipping bool                `json:"use_different_shipping"`
}

// OrderResponse is what the backend echoes on creation. Line items are not
// included; the client stitches them in from its pre-clear cart view.
type OrderResponse struct {
	OrderID  string          `json:"order_id"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// OrderConfirmation is the client-assembled confirmation view: the creation
// response enriched with the items and customer email held locally before the
// cart was cleared. The order is never re-fetched for this view.
type OrderConfirmation struct {
	OrderID       string          `json:"order_id"`
	Items         []CartItem      `json:"items"`
	CustomerEmail string          `json:"customer_email"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Shipping      decimal.Decimal `json:"shipping"`
	Total         decimal.Decimal `json:"total"`
}
