package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/discount/repository"
	"github.com/smallbiznis/promosync/internal/ratelimit"
	"github.com/smallbiznis/promosync/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testShop = "demo.myshopify.com"

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu        sync.Mutex
	discounts map[string]*domain.RemoteDiscount
	ids       []string
	fetchErr  map[string]error
	listErr   error
	fetches   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		discounts: make(map[string]*domain.RemoteDiscount),
		fetchErr:  make(map[string]error),
	}
}

func (g *fakeGateway) put(d *domain.RemoteDiscount) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.discounts[d.ID] = d
	g.ids = append(g.ids, d.ID)
}

func (g *fakeGateway) FetchDiscount(_ context.Context, _, id string) (*domain.RemoteDiscount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	if err := g.fetchErr[id]; err != nil {
		return nil, err
	}
	d, ok := g.discounts[id]
	if !ok {
		return nil, nil
	}
	clone := *d
	return &clone, nil
}

func (g *fakeGateway) ListDiscountIDs(context.Context, string) ([]string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, false, g.listErr
	}
	return append([]string(nil), g.ids...), false, nil
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

// fakeResolver returns the discount's direct product and variant references.
type fakeResolver struct {
	mu     sync.Mutex
	forced []bool
}

func (r *fakeResolver) Resolve(_ context.Context, _ string, d *domain.RemoteDiscount, opts domain.ResolveOptions) (*domain.Targets, error) {
	r.mu.Lock()
	r.forced = append(r.forced, opts.ForceRefresh)
	r.mu.Unlock()
	if d.Class != domain.ClassProduct || d.Scope.IsEmpty() || d.Scope.AppliesToAll() {
		return nil, nil
	}
	t := domain.NewTargets()
	for _, entry := range d.Scope {
		switch e := entry.(type) {
		case domain.Products:
			t.AddProduct(e.IDs...)
		case domain.Variants:
			t.AddVariant(e.IDs...)
		}
	}
	return t, nil
}

type fakeGate struct {
	tier     string
	err      error
	canLive  bool
	liveErr  error
	quotaHit int
}

func (g *fakeGate) Evaluate(_ context.Context, _ string, d *domain.RemoteDiscount) (domain.TierEvaluation, error) {
	if g.err != nil {
		return domain.TierEvaluation{}, g.err
	}
	return domain.TierEvaluation{
		Tier:                  g.tier,
		IsAdvanced:            g.tier == "ADVANCED",
		IsBasicOrHigher:       g.tier == "BASIC" || g.tier == "ADVANCED",
		HasVariantTargets:     d.Scope.HasVariantTargets(),
		AppliesOnSubscription: d.AppliesOnSubscription,
	}, nil
}

func (g *fakeGate) CanCreateLive(context.Context, string) (bool, error) {
	g.quotaHit++
	return g.canLive, g.liveErr
}

type env struct {
	svc      *Service
	db       *gorm.DB
	repo     domain.Repository
	gateway  *fakeGateway
	resolver *fakeResolver
	gate     *fakeGate
	clock    *clock.FakeClock
	locker   *ratelimit.LocalLocker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.OpenDB(t, domain.Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	e := &env{
		db:       db,
		repo:     repository.Provide(),
		gateway:  newFakeGateway(),
		resolver: &fakeResolver{},
		gate:     &fakeGate{tier: "ADVANCED", canLive: true},
		clock:    clock.NewFakeClock(testNow),
		locker:   ratelimit.NewLocalLocker(),
	}
	e.svc = newService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    e.clock,
		GenID:    node,
		Repo:     e.repo,
		Gateway:  e.gateway,
		Resolver: e.resolver,
		Gate:     e.gate,
		Locker:   e.locker,
	})
	return e
}

func discountID(n string) string {
	return "gid://shopify/DiscountAutomaticNode/" + n
}

// eligible is a discount every rule lets through to LIVE.
func eligible(id string) *domain.RemoteDiscount {
	return &domain.RemoteDiscount{
		ID:                       id,
		Title:                    "Sale " + id,
		Status:                   domain.UpstreamStatusActive,
		Class:                    domain.ClassProduct,
		Method:                   domain.MethodBasic,
		StartsAt:                 testNow.Add(-24 * time.Hour),
		Value:                    domain.Percentage{Rate: 20},
		Scope:                    domain.Scope{domain.Products{IDs: []string{"gid://shopify/Product/1", "gid://shopify/Product/2"}}},
		AppliesOnOneTimePurchase: true,
		AllCustomers:             true,
	}
}

func (e *env) store(t *testing.T, d *domain.RemoteDiscount) {
	t.Helper()
	targets, err := e.resolver.Resolve(context.Background(), testShop, d, domain.ResolveOptions{})
	require.NoError(t, err)
	ok, err := e.svc.reprocessor.store.Save(context.Background(), testShop, d, targets)
	require.NoError(t, err)
	require.True(t, ok)
}

func (e *env) classify(t *testing.T, mode domain.Mode, d *domain.RemoteDiscount) domain.Outcome {
	t.Helper()
	out, err := e.svc.reprocessor.classifier.WithMode(mode).Classify(context.Background(), testShop, d)
	require.NoError(t, err)
	return out
}

func (e *env) live(t *testing.T, id string) *domain.LiveDiscount {
	t.Helper()
	row, err := e.repo.FindLive(context.Background(), e.db, testShop, id)
	require.NoError(t, err)
	return row
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}
