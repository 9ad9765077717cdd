package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileBackfillsWithoutUpstream(t *testing.T) {
	e := newEnv(t)
	variant := eligible(discountID("2"))
	variant.Scope = domain.Scope{domain.Variants{IDs: []string{"gid://shopify/ProductVariant/7"}}}
	e.store(t, eligible(discountID("1")))
	e.store(t, variant)

	drift, err := e.svc.HasDrift(context.Background(), testShop)
	require.NoError(t, err)
	assert.True(t, drift)

	res, err := e.svc.Reconcile(context.Background(), testShop)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Backfilled)
	assert.Zero(t, e.gateway.fetchCount())
	assert.Equal(t, int64(2), e.count(t, &domain.LiveDiscount{}))
	assert.Equal(t, domain.StatusHidden, e.live(t, discountID("1")).Status)

	res, err = e.svc.Reconcile(context.Background(), testShop)
	require.NoError(t, err)
	assert.Zero(t, res.Backfilled)

	drift, err = e.svc.HasDrift(context.Background(), testShop)
	require.NoError(t, err)
	assert.False(t, drift)
}

func TestReconcileCountsOnlyCreatedRows(t *testing.T) {
	e := newEnv(t)
	past := testNow.Add(-time.Hour)
	expired := eligible(discountID("2"))
	expired.EndsAt = &past
	e.store(t, eligible(discountID("1")))
	e.store(t, expired)

	res, err := e.svc.Reconcile(context.Background(), testShop)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Backfilled)
	assert.Equal(t, int64(1), e.count(t, &domain.LiveDiscount{}))
	assert.Equal(t, int64(1), e.count(t, &domain.Discount{}))
	assert.Nil(t, e.live(t, expired.ID))
}

func TestReconcileKeepsExclusions(t *testing.T) {
	e := newEnv(t)
	e.gate.tier = "BASIC"
	d := eligible(discountID("1"))
	d.Scope = domain.Scope{domain.Variants{IDs: []string{"gid://shopify/ProductVariant/7"}}}
	e.store(t, d)

	_, err := e.svc.Reconcile(context.Background(), testShop)
	require.NoError(t, err)
	row := e.live(t, d.ID)
	require.NotNil(t, row)
	assert.Equal(t, domain.StatusUpgradeRequired, row.Status)
	assert.Equal(t, domain.ReasonVariantTier, *row.ExclusionReason)
}

func TestSetLiveStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	d := eligible(discountID("1"))
	e.classify(t, domain.Routine, d)

	_, err := e.svc.SetLiveStatus(ctx, testShop, d.ID, domain.StatusNotSupported)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = e.svc.SetLiveStatus(ctx, testShop, discountID("404"), domain.StatusHidden)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	e.gate.canLive = false
	_, err = e.svc.SetLiveStatus(ctx, testShop, d.ID, domain.StatusLive)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, domain.KindTier, domain.KindOf(err))

	e.gate.canLive = true
	row, err := e.svc.SetLiveStatus(ctx, testShop, d.ID, domain.StatusLive)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, row.Status)
	assert.Equal(t, domain.StatusLive, e.live(t, d.ID).Status)

	hits := e.gate.quotaHit
	_, err = e.svc.SetLiveStatus(ctx, testShop, d.ID, domain.StatusLive)
	require.NoError(t, err)
	assert.Equal(t, hits, e.gate.quotaHit, "no-op toggle skips the quota")

	e.gate.liveErr = errors.New("count failed")
	_, err = e.svc.SetLiveStatus(ctx, testShop, d.ID, domain.StatusScheduled)
	require.NoError(t, err, "only going live consults the quota")
}

func TestSetLiveStatusRejectsExcludedRows(t *testing.T) {
	e := newEnv(t)
	d := eligible(discountID("1"))
	d.Method = domain.MethodBuyXGetY
	e.classify(t, domain.ForceRecompute, d)

	_, err := e.svc.SetLiveStatus(context.Background(), testShop, d.ID, domain.StatusLive)
	assert.ErrorIs(t, err, domain.ErrNotToggleable)
	assert.Equal(t, domain.StatusNotSupported, e.live(t, d.ID).Status)
}

func TestRemove(t *testing.T) {
	e := newEnv(t)
	d := eligible(discountID("1"))
	e.store(t, d)
	e.classify(t, domain.ForceRecompute, d)

	n, err := e.svc.Remove(context.Background(), testShop, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = e.svc.Remove(context.Background(), testShop, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.svc.Remove(context.Background(), testShop, "")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestSweep(t *testing.T) {
	e := newEnv(t)
	d := eligible(discountID("1"))
	e.store(t, d)
	e.classify(t, domain.ForceRecompute, d)

	assert.Equal(t, domain.SweepResult{}, e.svc.Sweep(context.Background(), testShop))

	e.clock.Advance(30 * 24 * time.Hour)
	require.NoError(t, e.db.Model(&domain.LiveDiscount{}).Where("id = ?", d.ID).Update("ends_at", testNow.Add(time.Hour)).Error)
	assert.Equal(t, domain.SweepResult{Cleaned: 1, Total: 2}, e.svc.Sweep(context.Background(), testShop))
	assert.Zero(t, e.count(t, &domain.DiscountProduct{}))
}

func TestListShops(t *testing.T) {
	e := newEnv(t)
	e.store(t, eligible(discountID("1")))
	e.classify(t, domain.Routine, eligible(discountID("2")))

	shops, err := e.svc.ListShops(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{testShop}, shops)
}
