package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     domain.Repository
	Gateway  domain.Gateway
	Resolver domain.TargetResolver
	Gate     domain.TierGate
	Locker   Locker               `optional:"true"`
	Metrics  *metrics.SyncMetrics `optional:"true"`
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
	gate domain.TierGate

	clock       clock.Clock
	sweeper     *Sweeper
	reconciler  *Reconciler
	reprocessor *Reprocessor
}

func New(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	sweeper := NewSweeper(p.DB, p.Repo, p.Clock, p.Log, p.Metrics)
	classifier := NewClassifier(p.DB, p.Repo, p.Gate, sweeper, p.Clock, p.Log, p.Metrics)
	reconciler := NewReconciler(p.DB, p.Repo, classifier, p.Log, p.Metrics)
	store := NewStore(p.DB, p.Repo, p.GenID, p.Clock, p.Log, p.Metrics)

	return &Service{
		db:          p.DB,
		log:         p.Log.Named("discount.service"),
		repo:        p.Repo,
		gate:        p.Gate,
		clock:       p.Clock,
		sweeper:     sweeper,
		reconciler:  reconciler,
		reprocessor: NewReprocessor(p.DB, p.Repo, p.Gateway, p.Resolver, store, classifier, reconciler, p.Locker, p.Log, p.Metrics),
	}
}

func (s *Service) SyncOne(ctx context.Context, shop, id string, mode domain.Mode) (domain.SyncResult, error) {
	return s.reprocessor.SyncOne(ctx, shop, id, mode)
}

func (s *Service) Remove(ctx context.Context, shop, id string) (int64, error) {
	if strings.TrimSpace(shop) == "" {
		return 0, domain.NewOpError("remove", domain.KindInvalidInput, domain.ErrInvalidShop)
	}
	if strings.TrimSpace(id) == "" {
		return 0, domain.NewOpError("remove", domain.KindInvalidInput, domain.ErrInvalidID)
	}
	return s.reprocessor.Remove(ctx, shop, id)
}

func (s *Service) ReprocessAll(ctx context.Context, shop string, mode domain.Mode) (domain.ReprocessResult, error) {
	return s.reprocessor.ReprocessAll(ctx, shop, mode)
}

func (s *Service) ReprocessProduct(ctx context.Context, shop, productID string) (domain.ReprocessResult, error) {
	return s.reprocessor.ReprocessProduct(ctx, shop, productID)
}

func (s *Service) ReprocessCollection(ctx context.Context, shop, collectionID string) (domain.ReprocessResult, error) {
	return s.reprocessor.ReprocessCollection(ctx, shop, collectionID)
}

func (s *Service) Reconcile(ctx context.Context, shop string) (domain.ReconcileResult, error) {
	if strings.TrimSpace(shop) == "" {
		return domain.ReconcileResult{}, domain.NewOpError("reconcile", domain.KindInvalidInput, domain.ErrInvalidShop)
	}
	return s.reconciler.Reconcile(ctx, shop)
}

func (s *Service) HasDrift(ctx context.Context, shop string) (bool, error) {
	return s.reconciler.HasDrift(ctx, shop)
}

func (s *Service) Sweep(ctx context.Context, shop string) domain.SweepResult {
	return s.sweeper.Sweep(ctx, shop)
}

// SetLiveStatus is the manual operator toggle between LIVE, HIDDEN and
// SCHEDULED. Going LIVE is subject to the plan quota.
func (s *Service) SetLiveStatus(ctx context.Context, shop, id string, status domain.LiveStatus) (*domain.LiveDiscount, error) {
	if !status.Toggleable() {
		return nil, domain.NewOpError("set_status", domain.KindInvalidInput, domain.ErrInvalidStatus)
	}
	existing, err := s.repo.FindLive(ctx, s.db, shop, id)
	if err != nil {
		return nil, domain.NewOpError("set_status", domain.KindStorage, err)
	}
	if existing == nil {
		return nil, domain.NewOpError("set_status", domain.KindNotFound, domain.ErrNotFound)
	}
	if !existing.Status.Toggleable() {
		return nil, domain.NewOpError("set_status", domain.KindInvalidInput, domain.ErrNotToggleable)
	}
	if existing.Status == status {
		return existing, nil
	}

	if status == domain.StatusLive {
		ok, err := s.gate.CanCreateLive(ctx, shop)
		if err != nil {
			return nil, domain.NewOpError("set_status", domain.KindTier, err)
		}
		if !ok {
			return nil, domain.NewOpError("set_status", domain.KindTier, domain.ErrQuotaExceeded)
		}
	}

	now := s.clock.Now()
	if err := s.repo.UpdateLiveStatus(ctx, s.db, shop, id, status, now); err != nil {
		return nil, domain.NewOpError("set_status", domain.KindStorage, err)
	}
	s.log.Info("live status set manually",
		zap.String("shop", shop),
		zap.String("discount_id", id),
		zap.String("from", string(existing.Status)),
		zap.String("to", string(status)),
	)
	existing.Status = status
	existing.UpdatedAt = now
	return existing, nil
}

func (s *Service) ListShops(ctx context.Context) ([]string, error) {
	shops, err := s.repo.ListShops(ctx, s.db)
	if err != nil {
		return nil, domain.NewOpError("list_shops", domain.KindStorage, err)
	}
	return shops, nil
}
