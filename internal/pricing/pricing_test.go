package pricing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func percent(id string, rate float64) Discount {
	return Discount{ID: id, ValueType: ValueTypePercentage, Value: rate}
}

func fixed(id string, amount float64) Discount {
	return Discount{ID: id, ValueType: ValueTypeFixedAmount, Value: amount, Currency: "USD"}
}

func TestDiscountedPrice(t *testing.T) {
	cases := []struct {
		name  string
		price int64
		d     *Discount
		want  int64
	}{
		{"percentage", 10000, &Discount{ValueType: ValueTypePercentage, Value: 20}, 8000},
		{"percentage floors", 999, &Discount{ValueType: ValueTypePercentage, Value: 15}, 849},
		{"rate above 100", 10000, &Discount{ValueType: ValueTypePercentage, Value: 150}, 0},
		{"negative rate", 10000, &Discount{ValueType: ValueTypePercentage, Value: -5}, 10000},
		{"fixed", 10000, &Discount{ValueType: ValueTypeFixedAmount, Value: 1500}, 8500},
		{"fixed rounds half up", 10000, &Discount{ValueType: ValueTypeFixedAmount, Value: 1499.5}, 8500},
		{"fixed above price", 10000, &Discount{ValueType: ValueTypeFixedAmount, Value: 50000}, 0},
		{"nil discount", 10000, nil, 10000},
		{"unknown type", 10000, &Discount{ValueType: "BOGUS", Value: 10}, 10000},
		{"zero price", 0, &Discount{ValueType: ValueTypePercentage, Value: 20}, 0},
		{"negative price", -10, &Discount{ValueType: ValueTypePercentage, Value: 20}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DiscountedPrice(tc.price, tc.d)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, int64(0))
		})
	}
}

func TestSavings(t *testing.T) {
	d := percent("1", 20)
	assert.Equal(t, int64(2000), Savings(10000, &d))
	assert.Zero(t, Savings(10000, nil))
	assert.Zero(t, Savings(-1, &d))
}

func TestEligibleForVariant(t *testing.T) {
	partial := Discount{Variants: &VariantScope{Kind: ScopePartial, IDs: []string{"gid://shopify/ProductVariant/444"}}}

	assert.True(t, EligibleForVariant(&partial, "444"))
	assert.True(t, EligibleForVariant(&partial, 444))
	assert.True(t, EligibleForVariant(&partial, int64(444)))
	assert.True(t, EligibleForVariant(&partial, float64(444)))
	assert.True(t, EligibleForVariant(&partial, json.Number("444")))
	assert.True(t, EligibleForVariant(&partial, "gid://shopify/ProductVariant/444"))
	assert.False(t, EligibleForVariant(&partial, "555"))
	assert.False(t, EligibleForVariant(&partial, nil))
	assert.False(t, EligibleForVariant(&partial, 444.5))

	assert.True(t, EligibleForVariant(&Discount{}, "555"))
	assert.True(t, EligibleForVariant(&Discount{Variants: &VariantScope{Kind: ScopeAll}}, "555"))
	assert.False(t, EligibleForVariant(&Discount{Variants: &VariantScope{Kind: "WEIRD"}}, "555"))
	assert.False(t, EligibleForVariant(nil, "555"))
}

func TestFindBest(t *testing.T) {
	ds := []Discount{percent("a", 10), fixed("b", 2500), percent("c", 25)}

	best := FindBest(ds, 10000, nil)
	require.NotNil(t, best)
	assert.Equal(t, "b", best.Discount.ID, "equal savings go to the higher nominal value")
	assert.Equal(t, int64(7500), best.FinalPrice)
	assert.Equal(t, int64(2500), best.Savings)

	assert.Nil(t, FindBest(nil, 10000, nil))

	scoped := percent("v", 50)
	scoped.Variants = &VariantScope{Kind: ScopePartial, IDs: []string{"444"}}
	best = FindBest([]Discount{percent("a", 10), scoped}, 10000, "555")
	require.NotNil(t, best)
	assert.Equal(t, "a", best.Discount.ID)
}

func TestResolveBestDiscountsSuppressesWeakerCoupon(t *testing.T) {
	best := ResolveBestDiscounts(
		[]Discount{percent("auto", 30)},
		[]Discount{percent("coupon", 20)},
		10000, nil,
	)
	require.NotNil(t, best.Automatic)
	assert.Equal(t, int64(7000), best.Automatic.FinalPrice)
	assert.Nil(t, best.Coupon)

	equal := ResolveBestDiscounts([]Discount{percent("auto", 20)}, []Discount{fixed("coupon", 2000)}, 10000, nil)
	assert.Nil(t, equal.Coupon, "ties favour the automatic discount")
}

func TestResolveBestDiscountsKeepsBetterCoupon(t *testing.T) {
	best := ResolveBestDiscounts(
		[]Discount{percent("auto", 10)},
		[]Discount{percent("coupon", 20)},
		10000, nil,
	)
	require.NotNil(t, best.Automatic)
	require.NotNil(t, best.Coupon)
	assert.Equal(t, int64(8000), best.Coupon.FinalPrice)

	onlyCoupon := ResolveBestDiscounts(nil, []Discount{percent("coupon", 20)}, 10000, nil)
	assert.Nil(t, onlyCoupon.Automatic)
	assert.NotNil(t, onlyCoupon.Coupon)
}

func TestResolveBestDiscountsVariantScope(t *testing.T) {
	auto := percent("auto", 30)
	auto.Variants = &VariantScope{Kind: ScopePartial, IDs: []string{"gid://shopify/ProductVariant/444"}}

	best := ResolveBestDiscounts([]Discount{auto}, []Discount{percent("coupon", 20)}, 10000, 555)
	assert.Nil(t, best.Automatic)
	require.NotNil(t, best.Coupon)

	best = ResolveBestDiscounts([]Discount{auto}, []Discount{percent("coupon", 20)}, 10000, 444)
	require.NotNil(t, best.Automatic)
	assert.Nil(t, best.Coupon)
}
