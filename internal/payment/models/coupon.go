package models

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "securecard/pkg/domain-errors"
)

// DefaultCouponCode is the "Secure Card Discount" offer seeded in every
// coupon table.
const DefaultCouponCode = "SECURECARD10"

var hundred = decimal.NewFromInt(100)

// Coupon is a percentage discount. The table of coupons is authoritative:
// clients send codes, never discounted amounts.
type Coupon struct {
	Code       string
	PercentOff int
	Active     bool
}

func NewCoupon(code string, percentOff int, active bool) (Coupon, error) {
	code = NormalizeCouponCode(code)
	if code == "" {
		return Coupon{}, dErrors.New(dErrors.CodeValidation, "coupon code is required")
	}
	if percentOff < 1 || percentOff > 100 {
		return Coupon{}, dErrors.New(dErrors.CodeValidation, "coupon discount must be between 1 and 100 percent")
	}
	return Coupon{Code: code, PercentOff: percentOff, Active: active}, nil
}

// DefaultCoupons is the seed used by the in-memory coupon table.
func DefaultCoupons() []Coupon {
	return []Coupon{{Code: DefaultCouponCode, PercentOff: 10, Active: true}}
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount is the amount taken off, rounded to cents.
func (c Coupon) Discount(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(c.PercentOff))).Div(hundred).Round(MaxAmountScale)
}

// Apply returns the discounted amount, never below zero.
func (c Coupon) Apply(amount decimal.Decimal) decimal.Decimal {
	out := amount.Sub(c.Discount(amount))
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Quote is a server-side price computation for a payment.
type Quote struct {
	Original      decimal.Decimal
	Discount      decimal.Decimal
	Amount        decimal.Decimal
	CouponCode    string
	CouponApplied bool
}
