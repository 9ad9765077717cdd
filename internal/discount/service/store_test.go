package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIsIdempotent(t *testing.T) {
	e := newEnv(t)
	d := eligible(discountID("1"))
	d.Scope = append(d.Scope, domain.Variants{IDs: []string{"gid://shopify/ProductVariant/7"}})

	for i := 0; i < 2; i++ {
		e.store(t, d)
		e.classify(t, domain.ForceRecompute, d)
	}

	assert.Equal(t, int64(1), e.count(t, &domain.Discount{}))
	assert.Equal(t, int64(1), e.count(t, &domain.LiveDiscount{}))
	assert.Equal(t, int64(3), e.count(t, &domain.DiscountTarget{}))
	assert.Equal(t, int64(2), e.count(t, &domain.DiscountProduct{}))
	assert.Equal(t, int64(1), e.count(t, &domain.DiscountVariant{}))
}

func TestStoreReplacesJunctions(t *testing.T) {
	e := newEnv(t)
	d := eligible(discountID("1"))
	e.store(t, d)

	d.Scope = domain.Scope{domain.Products{IDs: []string{"gid://shopify/Product/9"}}}
	e.store(t, d)

	var products []domain.DiscountProduct
	require.NoError(t, e.db.Find(&products).Error)
	require.Len(t, products, 1)
	assert.Equal(t, "gid://shopify/Product/9", products[0].ProductID)
}

func TestStoreDerivesColumns(t *testing.T) {
	e := newEnv(t)
	d := eligible("gid://shopify/DiscountCodeNode/42")
	d.Value = domain.FixedAmount{AmountMinor: 1500, Currency: "EUR"}
	d.Scope = domain.Scope{domain.Collections{IDs: []string{"gid://shopify/Collection/3"}}}
	d.Codes = []string{"SAVE15", " SAVE15 ", ""}
	e.store(t, d)

	row, err := e.repo.FindDiscount(context.Background(), e.db, testShop, d.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "42", row.NumericID)
	assert.Equal(t, domain.KindCode, row.Kind)
	assert.Equal(t, domain.TargetTypeCollection, row.TargetType)
	require.NotNil(t, row.ValueType)
	assert.Equal(t, domain.ValueTypeFixedAmount, *row.ValueType)
	assert.Nil(t, row.Percentage)
	require.NotNil(t, row.AmountMinor)
	assert.Equal(t, int64(1500), *row.AmountMinor)
	assert.Equal(t, "EUR", *row.Currency)
	assert.Contains(t, string(row.Payload), `"kind":"COLLECTION"`)

	assert.Equal(t, int64(1), e.count(t, &domain.DiscountCode{}))
	assert.Equal(t, int64(1), e.count(t, &domain.DiscountTarget{}))
	assert.Equal(t, int64(0), e.count(t, &domain.DiscountProduct{}))
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	e := newEnv(t)
	ok, err := e.svc.reprocessor.store.Save(context.Background(), "", eligible(discountID("1")), nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidShop)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	ok, err = e.svc.reprocessor.store.Save(context.Background(), testShop, &domain.RemoteDiscount{}, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestValueColumnsRoundTrip(t *testing.T) {
	for _, v := range []domain.Value{
		domain.Percentage{Rate: 12.5},
		domain.FixedAmount{AmountMinor: 999, Currency: "USD"},
	} {
		vt, pct, amount, currency := valueColumns(v)
		assert.Equal(t, v, valueFromColumns(vt, pct, amount, currency))
	}
	vt, _, _, _ := valueColumns(nil)
	assert.Nil(t, vt)
}
