package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

var hundred = decimal.NewFromInt(100)

// DiscountRule describes how a promo reduces a subtotal. Value is a percent
// (0-100) for percentage rules and a currency amount for fixed rules.
type DiscountRule struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Discount computes the discount for subtotal, clamped to [0, subtotal].
func (r DiscountRule) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch r.Kind {
	case DiscountPercentage:
		d = subtotal.Mul(r.Value).Div(hundred).Round(2)
	case DiscountFixed:
		d = r.Value
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}

func (r DiscountRule) Valid() bool {
	switch r.Kind {
	case DiscountPercentage:
		return !r.Value.IsNegative() && r.Value.LessThanOrEqual(hundred)
	case DiscountFixed:
		return !r.Value.IsNegative()
	default:
		return false
	}
}

// PromoCode is a registry entry. CurrentRedemptions only moves at checkout commit.
type PromoCode struct {
	Code               string          `json:"code"`
	Rule               DiscountRule    `json:"rule"`
	MinOrderAmount     decimal.Decimal `json:"minOrderAmount"`
	ValidFrom          time.Time       `json:"validFrom"`
	ValidTo            time.Time       `json:"validTo"`
	MaxRedemptions     int64           `json:"maxRedemptions"`
	CurrentRedemptions int64           `json:"currentRedemptions"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// ActiveAt reports whether t falls inside [ValidFrom, ValidTo]. A zero bound is open.
func (p PromoCode) ActiveAt(t time.Time) bool {
	if !p.ValidFrom.IsZero() && t.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidTo.IsZero() && t.After(p.ValidTo) {
		return false
	}
	return true
}

func (p PromoCode) Exhausted() bool {
	return p.CurrentRedemptions >= p.MaxRedemptions
}

// AppliedPromo is what a cart keeps: the code and the rule reference, never a
// frozen discount amount.
type AppliedPromo struct {
	Code           string          `json:"code"`
	Rule           DiscountRule    `json:"rule"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
}

func (p PromoCode) Applied() AppliedPromo {
	return AppliedPromo{Code: p.Code, Rule: p.Rule, MinOrderAmount: p.MinOrderAmount}
}

// NormalizePromoCode trims and case-folds a user supplied code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
