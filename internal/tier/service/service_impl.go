package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/config"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Limits config.LimitsSource
	Repo   domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	limits config.LimitsSource
	repo   domain.Repository
}

func New(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("tier.service"),
		clock:  p.Clock,
		limits: p.Limits,
		repo:   p.Repo,
	}
}

// GetTier loads the shop's plan, creating a FREE record on first sight.
func (s *Service) GetTier(ctx context.Context, shop string) (domain.Snapshot, error) {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return domain.Snapshot{}, discountdomain.ErrInvalidShop
	}
	tier, err := s.loadTier(ctx, shop)
	if err != nil {
		return domain.Snapshot{}, err
	}
	live, err := s.repo.CountLive(ctx, s.db, shop)
	if err != nil {
		return domain.Snapshot{}, err
	}
	quota := s.quota(tier)
	return domain.Snapshot{
		Shop:             shop,
		Tier:             tier,
		Quota:            quota,
		CurrentLive:      live,
		PendingDowngrade: quota > 0 && live > int64(quota),
	}, nil
}

func (s *Service) SetTier(ctx context.Context, shop string, tier domain.Tier) (bool, error) {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return false, discountdomain.ErrInvalidShop
	}
	if !tier.Valid() {
		return false, domain.ErrInvalidTier
	}
	current, err := s.loadTier(ctx, shop)
	if err != nil {
		return false, err
	}
	if current == tier {
		return false, nil
	}
	if err := s.repo.UpdateTier(ctx, s.db, shop, tier, s.clock.Now()); err != nil {
		return false, err
	}
	s.log.Info("shop tier changed",
		zap.String("shop", shop),
		zap.String("from", string(current)),
		zap.String("to", string(tier)),
	)
	return true, nil
}

// CanCreateLive reports whether one more LIVE discount fits the plan quota.
func (s *Service) CanCreateLive(ctx context.Context, shop string) (bool, error) {
	tier, err := s.loadTier(ctx, shop)
	if err != nil {
		return false, err
	}
	quota := s.quota(tier)
	if quota == 0 {
		return true, nil
	}
	live, err := s.repo.CountLive(ctx, s.db, shop)
	if err != nil {
		return false, err
	}
	return live < int64(quota), nil
}

func (s *Service) loadTier(ctx context.Context, shop string) (domain.Tier, error) {
	row, err := s.repo.Find(ctx, s.db, shop)
	if err != nil {
		return "", err
	}
	if row != nil {
		return row.Tier, nil
	}

	now := s.clock.Now()
	row = &domain.ShopTier{Shop: shop, Tier: domain.TierFree, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.CreateIfMissing(ctx, s.db, row); err != nil {
		return "", err
	}
	// A concurrent creator may have won the insert.
	stored, err := s.repo.Find(ctx, s.db, shop)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return domain.TierFree, nil
	}
	return stored.Tier, nil
}

func (s *Service) quota(tier domain.Tier) int {
	return s.limits.Limits().TierQuotas[tier.QuotaKey()]
}
