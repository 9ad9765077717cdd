package gid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id, err := Parse("gid://shopify/DiscountAutomaticNode/1057371")
	require.NoError(t, err)
	assert.Equal(t, "shopify", id.Platform)
	assert.Equal(t, "DiscountAutomaticNode", id.Type)
	assert.Equal(t, "1057371", id.Numeric)
	assert.Equal(t, "gid://shopify/DiscountAutomaticNode/1057371", id.String())

	id, err = Parse("gid://shopify/ProductVariant/44?inventory_item=9")
	require.NoError(t, err)
	assert.Equal(t, "44", id.Numeric)

	for _, bad := range []string{"", "12", "gid://shopify/Product", "gid://shopify/Product/abc", "https://x/Product/1"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalid, bad)
	}
}

func TestNumericSuffix(t *testing.T) {
	assert.Equal(t, "444", NumericSuffix("gid://shopify/ProductVariant/444"))
	assert.Equal(t, "444", NumericSuffix(" 444 "))
	assert.Equal(t, "", NumericSuffix("gid://shopify/Product/"))
	assert.Equal(t, "7", NumericSuffix("gid://shopify/Product/7?x=1"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "gid://shopify/Product/5", Normalize(TypeProduct, "5"))
	assert.Equal(t, "gid://shopify/Product/5", Normalize(TypeProduct, "gid://shopify/Product/5"))
}

func TestIsCodeDiscount(t *testing.T) {
	assert.True(t, IsCodeDiscount("gid://shopify/DiscountCodeNode/1"))
	assert.False(t, IsCodeDiscount("gid://shopify/DiscountAutomaticNode/1"))
	assert.False(t, IsCodeDiscount("not-a-gid"))
}
