package coupons

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/money"
)

// UserHistory is what user eligibility depends on.
type UserHistory struct {
	HasPriorOrders bool
	UsageCount     int
}

// CartSummary is what cart eligibility and discount math depend on.
// ItemCount is the total quantity across lines.
type CartSummary struct {
	ItemCount         int   `json:"item_count"`
	TotalCents        int64 `json:"total_cents"`
	HasDiscountedLine bool  `json:"has_discounted_line"`
}

// Result is the outcome of an evaluation. Ineligibility is a result, not an
// error.
type Result struct {
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason,omitempty"`
	DiscountCents int64  `json:"discount_cents"`
}

// Applied is a coupon attached to a cart.
type Applied struct {
	CouponID      uuid.UUID `json:"coupon_id"`
	Code          string    `json:"code"`
	Title         string    `json:"title,omitempty"`
	DiscountCents int64     `json:"discount_cents"`
}

// CheckValidity covers the coupon-level checks.
func CheckValidity(c models.Coupon, today time.Time) (bool, string) {
	if !c.IsActive {
		return false, "Coupon is inactive"
	}
	day := civil(today)
	if day.Before(civil(c.StartsOn)) {
		return false, "Coupon is not yet active"
	}
	if day.After(civil(c.ExpiresOn)) {
		return false, "Coupon has expired"
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false, "Coupon usage limit reached"
	}
	return true, ""
}

// CheckUserEligibility covers first-time-only and the per-user limit.
func CheckUserEligibility(c models.Coupon, history UserHistory) (bool, string) {
	if c.FirstTimeOnly && history.HasPriorOrders {
		return false, "This coupon is only for first-time buyers"
	}
	limit := PerUserLimit(c)
	if history.UsageCount >= limit {
		return false, fmt.Sprintf("You have already used this coupon %d time(s)", limit)
	}
	return true, ""
}

// CheckCartEligibility covers item count, purchase thresholds and discounted
// lines.
func CheckCartEligibility(c models.Coupon, cart CartSummary) (bool, string) {
	if c.MinItems > 0 && cart.ItemCount < c.MinItems {
		return false, fmt.Sprintf("Add %d more item(s) to use this coupon", c.MinItems-cart.ItemCount)
	}
	if cart.TotalCents < c.MinPurchaseCents {
		return false, fmt.Sprintf("Add %s more to cart to use this coupon", money.FormatWhole(c.MinPurchaseCents-cart.TotalCents))
	}
	if c.MaxPurchaseCents > 0 && cart.TotalCents > c.MaxPurchaseCents {
		return false, fmt.Sprintf("Cart value exceeds %s. Remove %s worth items",
			money.FormatWhole(c.MaxPurchaseCents), money.FormatWhole(cart.TotalCents-c.MaxPurchaseCents))
	}
	if c.ExcludeDiscounted && cart.HasDiscountedLine {
		return false, "This coupon cannot be applied to discounted products"
	}
	return true, ""
}

// CalculateDiscount never exceeds the subtotal.
func CalculateDiscount(c models.Coupon, subtotalCents int64) int64 {
	if subtotalCents <= 0 {
		return 0
	}
	var discount int64
	switch c.DiscountType {
	case enums.DiscountTypePercent:
		discount = money.PercentBPS(subtotalCents, c.DiscountValue)
		if c.MaxRedeemableCents > 0 {
			discount = money.Min(discount, c.MaxRedeemableCents)
		}
	case enums.DiscountTypeFlat:
		discount = c.DiscountValue
	}
	if discount < 0 {
		return 0
	}
	return money.Min(discount, subtotalCents)
}

// Evaluate runs the checks in order and prices the discount when all pass.
func Evaluate(c models.Coupon, today time.Time, history UserHistory, cart CartSummary) Result {
	if ok, reason := CheckValidity(c, today); !ok {
		return Result{Reason: reason}
	}
	if ok, reason := CheckUserEligibility(c, history); !ok {
		return Result{Reason: reason}
	}
	if ok, reason := CheckCartEligibility(c, cart); !ok {
		return Result{Reason: reason}
	}
	return Result{Eligible: true, DiscountCents: CalculateDiscount(c, cart.TotalCents)}
}

// PerUserLimit treats an unset limit as one use per user.
func PerUserLimit(c models.Coupon) int {
	if c.PerUserLimit <= 0 {
		return 1
	}
	return c.PerUserLimit
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
