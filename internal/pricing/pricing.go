// Package pricing picks the best automatic and coupon discount for a price.
// All amounts are integer minor currency units.
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/promosync/internal/gid"
)

type ValueType string

const (
	ValueTypePercentage  ValueType = "PERCENTAGE"
	ValueTypeFixedAmount ValueType = "FIXED_AMOUNT"
)

type ScopeKind string

const (
	ScopeAll     ScopeKind = "ALL"
	ScopePartial ScopeKind = "PARTIAL"
)

// VariantScope limits a discount to some variants. A nil scope means every variant.
type VariantScope struct {
	Kind ScopeKind `json:"kind"`
	IDs  []string  `json:"ids,omitempty"`
}

// Discount is the pricing view of a LIVE discount. Value is a percentage rate
// for PERCENTAGE and an amount in minor units for FIXED_AMOUNT.
type Discount struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Coupon    bool          `json:"coupon"`
	ValueType ValueType     `json:"value_type"`
	Value     float64       `json:"value"`
	Currency  string        `json:"currency,omitempty"`
	Variants  *VariantScope `json:"variants,omitempty"`
}

type Candidate struct {
	Discount   *Discount `json:"discount"`
	FinalPrice int64     `json:"final_price"`
	Savings    int64     `json:"savings"`
}

type Best struct {
	RegularPrice int64      `json:"regular_price"`
	Automatic    *Candidate `json:"automatic"`
	Coupon       *Candidate `json:"coupon"`
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice returns the price after applying d. Nil discounts, unknown
// value types and non-finite values leave the price unchanged.
func DiscountedPrice(regular int64, d *Discount) int64 {
	if regular <= 0 {
		return max(regular, 0)
	}
	if d == nil || math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
		return regular
	}

	price := decimal.NewFromInt(regular)
	var final decimal.Decimal
	switch d.ValueType {
	case ValueTypePercentage:
		rate := clamp(decimal.NewFromFloat(d.Value), decimal.Zero, hundred)
		final = price.Mul(hundred.Sub(rate)).Div(hundred).Floor()
	case ValueTypeFixedAmount:
		amount := clamp(decimal.NewFromFloat(d.Value), decimal.Zero, price).Round(0)
		final = price.Sub(amount)
	default:
		return regular
	}
	if final.IsNegative() {
		return 0
	}
	return final.IntPart()
}

func Savings(regular int64, d *Discount) int64 {
	if regular <= 0 {
		return 0
	}
	return regular - DiscountedPrice(regular, d)
}

// EligibleForVariant reports whether d applies to the variant. Ids compare by
// numeric suffix, so global ids, numeric strings and numbers all match.
func EligibleForVariant(d *Discount, variantID any) bool {
	if d == nil {
		return false
	}
	if d.Variants == nil {
		return true
	}
	switch d.Variants.Kind {
	case ScopeAll:
		return true
	case ScopePartial:
		want := normalizeID(variantID)
		if want == "" {
			return false
		}
		for _, id := range d.Variants.IDs {
			if normalizeID(id) == want {
				return true
			}
		}
		return false
	}
	return false
}

// FindBest returns the eligible discount with the largest savings. Ties go to
// the higher nominal value, then to the earlier discount.
func FindBest(ds []Discount, price int64, variantID any) *Candidate {
	var best *Candidate
	for i := range ds {
		d := &ds[i]
		if !EligibleForVariant(d, variantID) {
			continue
		}
		c := &Candidate{Discount: d, FinalPrice: DiscountedPrice(price, d)}
		c.Savings = max(price, 0) - c.FinalPrice
		if best == nil || c.Savings > best.Savings ||
			(c.Savings == best.Savings && d.Value > best.Discount.Value) {
			best = c
		}
	}
	return best
}

// ResolveBestDiscounts picks the best automatic and coupon discount. Discounts
// do not stack, so a coupon that does not beat the automatic one is dropped.
func ResolveBestDiscounts(automatic, coupons []Discount, price int64, variantID any) Best {
	out := Best{
		RegularPrice: price,
		Automatic:    FindBest(automatic, price, variantID),
		Coupon:       FindBest(coupons, price, variantID),
	}
	if out.Automatic == nil || out.Coupon == nil {
		return out
	}
	suppress := out.Automatic.FinalPrice <= out.Coupon.FinalPrice
	if price <= 0 {
		suppress = out.Automatic.Savings >= out.Coupon.Savings
	}
	if suppress {
		out.Coupon = nil
	}
	return out
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func normalizeID(v any) string {
	var s string
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		s = id
	case json.Number:
		s = id.String()
	case int:
		s = strconv.Itoa(id)
	case int64:
		s = strconv.FormatInt(id, 10)
	case uint64:
		s = strconv.FormatUint(id, 10)
	case float64:
		if id != math.Trunc(id) || math.IsInf(id, 0) {
			return ""
		}
		s = strconv.FormatFloat(id, 'f', 0, 64)
	case interface{ String() string }:
		s = id.String()
	default:
		return ""
	}
	s = strings.TrimSpace(s)
	if n := gid.NumericSuffix(s); n != "" {
		return n
	}
	return s
}
