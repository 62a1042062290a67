package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gamezone/internal/backend"
)

// Coupon validation errors.
var (
	ErrCouponInvalid    = errors.New("invalid coupon")
	ErrCouponExpired    = errors.New("this coupon has expired")
	ErrCouponNotActive  = errors.New("this coupon is not active yet")
	ErrCouponUsed       = errors.New("this coupon has already been used")
	ErrCouponWrongStore = errors.New("this coupon is not valid for your store")
)

// Kind tags a resolved discount.
type Kind string

const (
	KindNone    Kind = "none"
	KindPercent Kind = "percent"
	KindFlat    Kind = "flat"
)

// Source names where a discount came from.
type Source string

const (
	SourceNone   Source = ""
	SourceCoupon Source = "coupon"
	SourceDaily  Source = "daily"
)

// Discount is the single discount applied to a price.
type Discount struct {
	Kind   Kind    `json:"kind"`
	Value  float64 `json:"value"`
	Source Source  `json:"source,omitempty"`
	Label  string  `json:"label,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// None is the zero discount.
var None = Discount{Kind: KindNone}

// Apply returns the discounted price and the amount taken off.
func (d Discount) Apply(price float64) (final, amount float64) {
	if price <= 0 {
		return 0, 0
	}
	switch d.Kind {
	case KindPercent:
		amount = price * d.Value / 100
	case KindFlat:
		amount = d.Value
	}
	final = math.Max(0, price-amount)
	return final, price - final
}

// ValidateCoupon checks a coupon against the store and the clock.
func ValidateCoupon(c *backend.Coupon, storeID string, now time.Time) error {
	if c == nil || c.Value <= 0 || couponKind(c.DiscountType) == KindNone {
		return ErrCouponInvalid
	}
	if c.IsExpired || (c.ExpiresAt != nil && now.After(*c.ExpiresAt)) {
		return ErrCouponExpired
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return ErrCouponNotActive
	}
	if c.Used {
		return ErrCouponUsed
	}
	if c.Store != "" && storeID != "" && c.Store != storeID {
		return ErrCouponWrongStore
	}
	return nil
}

// CouponDiscount converts a coupon into a discount without validating it.
func CouponDiscount(c *backend.Coupon) Discount {
	if c == nil {
		return None
	}
	kind := couponKind(c.DiscountType)
	if kind == KindNone || c.Value <= 0 {
		return None
	}
	d := Discount{Kind: kind, Value: c.Value, Source: SourceCoupon, Code: c.Code}
	d.Label = "Coupon Applied - " + valueLabel(kind, c.Value) + " off" + freeSnacksLabel(c.FreeSnacks)
	return d
}

// DailyDiscount converts today's store discount into a discount.
func DailyDiscount(d *backend.DailyDiscount) Discount {
	if d == nil || d.DiscountValue <= 0 {
		return None
	}
	var kind Kind
	switch strings.ToLower(d.DiscountType) {
	case "percent", "percentage":
		kind = KindPercent
	case "fixed", "flat":
		kind = KindFlat
	default:
		return None
	}
	return Discount{
		Kind:   kind,
		Value:  d.DiscountValue,
		Source: SourceDaily,
		Label:  valueLabel(kind, d.DiscountValue) + " OFF",
	}
}

// Resolve picks a valid coupon first, then a daily discount scoped to
// storeID, else none.
func Resolve(coupon *backend.Coupon, daily *backend.DailyDiscount, storeID string, now time.Time) Discount {
	if coupon != nil && ValidateCoupon(coupon, storeID, now) == nil {
		return CouponDiscount(coupon)
	}
	if daily != nil && (daily.Store == "" || storeID == "" || daily.Store == storeID) {
		return DailyDiscount(daily)
	}
	return None
}

func couponKind(t string) Kind {
	switch strings.ToLower(t) {
	case "percentage", "percent":
		return KindPercent
	case "flat", "fixed":
		return KindFlat
	default:
		return KindNone
	}
}

func valueLabel(kind Kind, value float64) string {
	v := strconv.FormatFloat(value, 'f', -1, 64)
	if kind == KindPercent {
		return v + "%"
	}
	return "₹" + v
}

func freeSnacksLabel(snacks []backend.FreeSnack) string {
	if len(snacks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snacks))
	for _, s := range snacks {
		parts = append(parts, fmt.Sprintf("%s (x%d)", s.SnackName, s.SnackQuantity))
	}
	return " + Free: " + strings.Join(parts, ", ")
}
