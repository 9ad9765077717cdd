package service

import (
	"context"

	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sweeper removes expired discounts of one shop. It never fails its caller.
type Sweeper struct {
	db      *gorm.DB
	repo    domain.Repository
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.SyncMetrics
}

func NewSweeper(db *gorm.DB, repo domain.Repository, clk clock.Clock, log *zap.Logger, m *metrics.SyncMetrics) *Sweeper {
	return &Sweeper{
		db:      db,
		repo:    repo,
		clock:   clk,
		log:     log.Named("discount.sweeper"),
		metrics: m,
	}
}

// Sweep deletes every discount and live row whose end date has passed.
// Cleaned is the number of distinct expired ids, Total the rows removed.
func (s *Sweeper) Sweep(ctx context.Context, shop string) domain.SweepResult {
	ids, err := s.repo.ListExpiredIDs(ctx, s.db, shop, s.clock.Now())
	if err != nil {
		s.log.Warn("sweep lookup failed", zap.String("shop", shop), zap.Error(err))
		return domain.SweepResult{}
	}
	if len(ids) == 0 {
		return domain.SweepResult{}
	}

	var total int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.DeleteDiscounts(ctx, tx, shop, ids)
		total = n
		return err
	})
	if err != nil {
		s.log.Warn("sweep delete failed", zap.String("shop", shop), zap.Int("expired", len(ids)), zap.Error(err))
		return domain.SweepResult{}
	}

	s.metrics.AddSwept(len(ids))
	s.log.Info("swept expired discounts",
		zap.String("shop", shop),
		zap.Int("cleaned", len(ids)),
		zap.Int64("total", total),
	)
	return domain.SweepResult{Cleaned: len(ids), Total: int(total)}
}
