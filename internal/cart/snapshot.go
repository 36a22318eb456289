package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/internal/coupons"
)

// Snapshot is the cart as submitted by the client: product, optional variant
// and quantity per line.
type Snapshot struct {
	Lines []Line `json:"lines"`
}

// Line is one requested cart line.
type Line struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity"`
}

// PricedLine is a cart line resolved against the catalog at pricing time.
// The fields are copied onto order items unchanged.
type PricedLine struct {
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	ProductName    string     `json:"product_name"`
	VariantColor   string     `json:"variant_color,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	OfferLabel     string     `json:"offer_label,omitempty"`
	MRPCents       int64      `json:"mrp_cents"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	LineTotalCents int64      `json:"line_total_cents"`
	Discounted     bool       `json:"discounted"`
}

// Priced is the full pricing of a snapshot.
type Priced struct {
	Lines             []PricedLine `json:"lines"`
	SubtotalCents     int64        `json:"subtotal_cents"`
	ItemCount         int          `json:"item_count"`
	HasDiscountedLine bool         `json:"has_discounted_line"`
}

// Summary is the view coupon evaluation needs.
func (p Priced) Summary() coupons.CartSummary {
	return coupons.CartSummary{
		ItemCount:         p.ItemCount,
		TotalCents:        p.SubtotalCents,
		HasDiscountedLine: p.HasDiscountedLine,
	}
}

func lineKey(productID uuid.UUID, variantID *uuid.UUID) string {
	if variantID == nil {
		return productID.String()
	}
	return productID.String() + ":" + variantID.String()
}
