package storefront

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promosync/internal/clock"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/discount/repository"
	discountservice "github.com/smallbiznis/promosync/internal/discount/service"
	"github.com/smallbiznis/promosync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const shop = "demo.myshopify.com"

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type seed struct {
	id       string
	kind     discountdomain.Kind
	status   discountdomain.LiveStatus
	rate     float64
	amount   int64
	products []string
	variants []string
	endsAt   *time.Time
}

func newService(t *testing.T, seeds ...seed) *Service {
	t.Helper()
	db := testutil.OpenDB(t, discountdomain.Models()...)
	repo := repository.Provide()
	ctx := context.Background()

	var next int64
	for _, s := range seeds {
		target := discountdomain.TargetTypeProduct
		if len(s.variants) > 0 {
			target = discountdomain.TargetTypeVariant
		}
		require.NoError(t, repo.UpsertDiscount(ctx, db, &discountdomain.Discount{
			Shop: shop, ID: s.id, NumericID: s.id, Title: s.id, Status: "ACTIVE",
			Kind: s.kind, Class: discountdomain.ClassProduct, Method: discountdomain.MethodBasic,
			StartsAt: now.Add(-time.Hour), TargetType: target, CreatedAt: now, UpdatedAt: now,
		}))

		var j discountdomain.Junctions
		for _, p := range s.products {
			next++
			j.Products = append(j.Products, discountdomain.DiscountProduct{
				ID: next, Shop: shop, DiscountID: s.id, ProductID: p, VariantScoped: len(s.variants) > 0, CreatedAt: now,
			})
		}
		for _, v := range s.variants {
			next++
			j.Targets = append(j.Targets, discountdomain.DiscountTarget{ID: next, Shop: shop, DiscountID: s.id, TargetKind: discountdomain.ScopeVariants, TargetID: v, CreatedAt: now})
		}
		require.NoError(t, repo.ReplaceJunctions(ctx, db, shop, s.id, j))

		row := &discountdomain.LiveDiscount{
			Shop: shop, ID: s.id, Title: s.id, Status: s.status, Kind: s.kind,
			StartsAt: now.Add(-time.Hour), EndsAt: s.endsAt, CreatedAt: now, UpdatedAt: now,
		}
		if s.amount > 0 {
			vt := discountdomain.ValueTypeFixedAmount
			currency := "USD"
			row.ValueType, row.AmountMinor, row.Currency = &vt, &s.amount, &currency
		} else {
			vt := discountdomain.ValueTypePercentage
			rate := s.rate
			row.ValueType, row.Percentage = &vt, &rate
		}
		require.NoError(t, repo.UpsertLive(ctx, db, row))
	}

	return New(Params{DB: db, Log: zap.NewNop(), Clock: clock.NewFakeClock(now), Repo: repo})
}

const product = "gid://shopify/Product/1"

func TestBestForProductSuppressesCoupon(t *testing.T) {
	svc := newService(t,
		seed{id: "auto", kind: discountdomain.KindAutomatic, status: discountdomain.StatusLive, rate: 30, products: []string{product}},
		seed{id: "coupon", kind: discountdomain.KindCode, status: discountdomain.StatusLive, rate: 20, products: []string{product}},
	)

	best, err := svc.BestForProduct(context.Background(), shop, "1", nil, 10000)
	require.NoError(t, err)
	require.NotNil(t, best.Automatic)
	assert.Equal(t, "auto", best.Automatic.Discount.ID)
	assert.Equal(t, int64(7000), best.Automatic.FinalPrice)
	assert.Nil(t, best.Coupon)
}

func TestBestForProductIgnoresHiddenAndExpired(t *testing.T) {
	past := now.Add(-time.Minute)
	svc := newService(t,
		seed{id: "hidden", kind: discountdomain.KindAutomatic, status: discountdomain.StatusHidden, rate: 50, products: []string{product}},
		seed{id: "stale", kind: discountdomain.KindAutomatic, status: discountdomain.StatusLive, rate: 40, products: []string{product}, endsAt: &past},
		seed{id: "other", kind: discountdomain.KindAutomatic, status: discountdomain.StatusLive, rate: 60, products: []string{"gid://shopify/Product/2"}},
		seed{id: "coupon", kind: discountdomain.KindCode, status: discountdomain.StatusLive, amount: 1500, products: []string{product}},
	)

	best, err := svc.BestForProduct(context.Background(), shop, product, nil, 10000)
	require.NoError(t, err)
	assert.Nil(t, best.Automatic)
	require.NotNil(t, best.Coupon)
	assert.Equal(t, int64(8500), best.Coupon.FinalPrice)
}

func TestBestForProductVariantScope(t *testing.T) {
	svc := newService(t,
		seed{
			id: "variant", kind: discountdomain.KindAutomatic, status: discountdomain.StatusLive, rate: 25,
			products: []string{product}, variants: []string{"gid://shopify/ProductVariant/444"},
		},
	)

	best, err := svc.BestForProduct(context.Background(), shop, product, 444, 10000)
	require.NoError(t, err)
	require.NotNil(t, best.Automatic)

	best, err = svc.BestForProduct(context.Background(), shop, product, "555", 10000)
	require.NoError(t, err)
	assert.Nil(t, best.Automatic)
}

func TestBestForProductMixedProductAndVariantTargets(t *testing.T) {
	db := testutil.OpenDB(t, discountdomain.Models()...)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	ctx := context.Background()

	otherProduct := "gid://shopify/Product/2"
	otherVariant := "gid://shopify/ProductVariant/99"
	remote := &discountdomain.RemoteDiscount{
		ID:       "gid://shopify/DiscountAutomaticNode/7",
		Title:    "Mixed",
		Status:   discountdomain.UpstreamStatusActive,
		Class:    discountdomain.ClassProduct,
		Method:   discountdomain.MethodBasic,
		StartsAt: now.Add(-time.Hour),
		Value:    discountdomain.Percentage{Rate: 10},
		Scope: discountdomain.Scope{
			discountdomain.Products{IDs: []string{product}},
			discountdomain.Variants{IDs: []string{otherVariant}},
		},
	}
	targets := discountdomain.NewTargets()
	targets.AddProduct(product)
	targets.AddVariantProduct(otherProduct)
	targets.AddVariant(otherVariant)

	store := discountservice.NewStore(db, repo, node, clk, zap.NewNop(), nil)
	_, err = store.Save(ctx, shop, remote, targets)
	require.NoError(t, err)
	vt := discountdomain.ValueTypePercentage
	rate := 10.0
	require.NoError(t, repo.UpsertLive(ctx, db, &discountdomain.LiveDiscount{
		Shop: shop, ID: remote.ID, Title: remote.Title, Status: discountdomain.StatusLive,
		Kind: discountdomain.KindAutomatic, ValueType: &vt, Percentage: &rate,
		StartsAt: now.Add(-time.Hour), CreatedAt: now, UpdatedAt: now,
	}))

	svc := New(Params{DB: db, Log: zap.NewNop(), Clock: clk, Repo: repo})

	best, err := svc.BestForProduct(ctx, shop, product, "11", 10000)
	require.NoError(t, err)
	require.NotNil(t, best.Automatic, "whole-product target applies to every variant")
	assert.Equal(t, int64(9000), best.Automatic.FinalPrice)

	best, err = svc.BestForProduct(ctx, shop, otherProduct, "98", 10000)
	require.NoError(t, err)
	assert.Nil(t, best.Automatic)

	best, err = svc.BestForProduct(ctx, shop, otherProduct, 99, 10000)
	require.NoError(t, err)
	require.NotNil(t, best.Automatic)
}

func TestBestForProductValidation(t *testing.T) {
	svc := newService(t)
	_, err := svc.BestForProduct(context.Background(), "", product, nil, 100)
	assert.ErrorIs(t, err, discountdomain.ErrInvalidShop)
	_, err = svc.BestForProduct(context.Background(), shop, " ", nil, 100)
	assert.ErrorIs(t, err, ErrInvalidProduct)
	_, err = svc.BestForProduct(context.Background(), shop, product, nil, -1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	best, err := svc.BestForProduct(context.Background(), shop, product, nil, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), best.RegularPrice)
	assert.Nil(t, best.Automatic)
}
