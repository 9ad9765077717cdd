package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/config"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/testutil"
	"github.com/smallbiznis/promosync/internal/tier/domain"
	"github.com/smallbiznis/promosync/internal/tier/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shop = "demo.myshopify.com"

func setup(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t, &domain.ShopTier{}, &discountdomain.LiveDiscount{})
	svc := newService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		Limits: config.StaticLimits(config.DefaultLimits()),
		Repo:   repository.Provide(),
	})
	return svc, db
}

func seedLive(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&discountdomain.LiveDiscount{
			Shop:   shop,
			ID:     fmt.Sprintf("gid://shopify/DiscountAutomaticNode/%d", i+1),
			Title:  "d",
			Status: discountdomain.StatusLive,
			Kind:   discountdomain.KindAutomatic,
		}).Error)
	}
}

func TestGetTierCreatesFreeRecordLazily(t *testing.T) {
	svc, db := setup(t)

	snapshot, err := svc.GetTier(context.Background(), shop)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, snapshot.Tier)
	assert.Equal(t, 1, snapshot.Quota)

	var rows int64
	require.NoError(t, db.Model(&domain.ShopTier{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	_, err = svc.GetTier(context.Background(), shop)
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.ShopTier{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestCanCreateLiveRespectsQuota(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	ok, err := svc.CanCreateLive(ctx, shop)
	require.NoError(t, err)
	assert.True(t, ok)

	seedLive(t, db, 1)
	ok, err = svc.CanCreateLive(ctx, shop)
	require.NoError(t, err)
	assert.False(t, ok)

	changed, err := svc.SetTier(ctx, shop, domain.TierAdvanced)
	require.NoError(t, err)
	assert.True(t, changed)

	ok, err = svc.CanCreateLive(ctx, shop)
	require.NoError(t, err)
	assert.True(t, ok, "advanced tier is unlimited")
}

func TestSetTierDowngradeReportsPending(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	_, err := svc.SetTier(ctx, shop, domain.TierBasic)
	require.NoError(t, err)
	seedLive(t, db, 3)

	changed, err := svc.SetTier(ctx, shop, domain.TierBasic)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = svc.SetTier(ctx, shop, domain.TierFree)
	require.NoError(t, err)
	snapshot, err := svc.GetTier(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snapshot.CurrentLive)
	assert.True(t, snapshot.PendingDowngrade)

	_, err = svc.SetTier(ctx, shop, domain.Tier("GOLD"))
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestGateEvaluate(t *testing.T) {
	svc, _ := setup(t)
	gate := NewGate(svc)
	ctx := context.Background()

	d := &discountdomain.RemoteDiscount{
		Scope:                 discountdomain.Scope{discountdomain.Variants{IDs: []string{"gid://shopify/ProductVariant/1"}}},
		AppliesOnSubscription: true,
	}
	eval, err := gate.Evaluate(ctx, shop, d)
	require.NoError(t, err)
	assert.Equal(t, "FREE", eval.Tier)
	assert.False(t, eval.IsAdvanced)
	assert.False(t, eval.IsBasicOrHigher)
	assert.True(t, eval.HasVariantTargets)
	assert.True(t, eval.AppliesOnSubscription)

	_, err = svc.SetTier(ctx, shop, domain.TierBasic)
	require.NoError(t, err)
	eval, err = gate.Evaluate(ctx, shop, d)
	require.NoError(t, err)
	assert.True(t, eval.IsBasicOrHigher)
	assert.False(t, eval.IsAdvanced)
}

func TestParseTier(t *testing.T) {
	tier, err := domain.ParseTier(" advanced ")
	require.NoError(t, err)
	assert.Equal(t, domain.TierAdvanced, tier)
	_, err = domain.ParseTier("platinum")
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}
