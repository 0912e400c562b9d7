package types

import "github.com/shopspring/decimal"

// Product is a catalog listing.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	VendorID    string          `json:"vendor_id,omitempty"`
	Category    string          `json:"category,omitempty"`
	InStock     bool            `json:"in_stock"`
}

// ProductPage is one page of catalog results with the opaque cursor for the
// next page; an empty NextCursor means the last page.
type ProductPage struct {
	Products   []Product `json:"products"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// Inventory is the supplier-side stock record for a product.
type Inventory struct {
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Location          string `json:"location,omitempty"`
}
