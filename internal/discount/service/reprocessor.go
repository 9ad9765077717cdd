package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	reprocessLockTTL    = 30 * time.Minute
	reprocessLockPrefix = "promosync:reprocess:"

	scopeAll        = "all"
	scopeProduct    = "product"
	scopeCollection = "collection"
)

// Locker guards full walks so one shop is never reprocessed twice at once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Reprocessor runs the fetch, resolve, store and classify pipeline for one
// discount or for every discount of a shop.
type Reprocessor struct {
	db         *gorm.DB
	repo       domain.Repository
	gateway    domain.Gateway
	resolver   domain.TargetResolver
	store      *Store
	classifier *Classifier
	reconciler *Reconciler
	locker     Locker
	log        *zap.Logger
	metrics    *metrics.SyncMetrics
}

func NewReprocessor(
	db *gorm.DB,
	repo domain.Repository,
	gateway domain.Gateway,
	resolver domain.TargetResolver,
	store *Store,
	classifier *Classifier,
	reconciler *Reconciler,
	locker Locker,
	log *zap.Logger,
	m *metrics.SyncMetrics,
) *Reprocessor {
	return &Reprocessor{
		db:         db,
		repo:       repo,
		gateway:    gateway,
		resolver:   resolver,
		store:      store,
		classifier: classifier,
		reconciler: reconciler,
		locker:     locker,
		log:        log.Named("discount.reprocessor"),
		metrics:    m,
	}
}

// SyncOne refreshes a single discount. A discount gone upstream is removed locally.
func (r *Reprocessor) SyncOne(ctx context.Context, shop, id string, mode domain.Mode) (domain.SyncResult, error) {
	return r.syncOne(ctx, shop, id, mode, false)
}

func (r *Reprocessor) syncOne(ctx context.Context, shop, id string, mode domain.Mode, forceRefresh bool) (domain.SyncResult, error) {
	var result domain.SyncResult
	if strings.TrimSpace(shop) == "" {
		return result, domain.NewOpError("sync", domain.KindInvalidInput, domain.ErrInvalidShop)
	}
	if strings.TrimSpace(id) == "" {
		return result, domain.NewOpError("sync", domain.KindInvalidInput, domain.ErrInvalidID)
	}

	existing, err := r.repo.FindLive(ctx, r.db, shop, id)
	if err != nil {
		return result, domain.NewOpError("sync", domain.KindStorage, err)
	}
	result.Existed = existing != nil

	d, err := r.gateway.FetchDiscount(ctx, shop, id)
	if err != nil {
		return result, domain.NewOpError("fetch", domain.KindUpstream, err)
	}
	if d == nil {
		if _, err := r.Remove(ctx, shop, id); err != nil {
			return result, err
		}
		result.Outcome.Deleted = true
		return result, nil
	}

	targets, err := r.resolver.Resolve(ctx, shop, d, domain.ResolveOptions{ForceRefresh: forceRefresh})
	if err != nil {
		return result, domain.NewOpError("resolve", domain.KindUpstream, err)
	}

	stored, err := r.store.Save(ctx, shop, d, targets)
	if err != nil {
		return result, err
	}
	result.Stored = stored

	outcome, err := r.classifier.WithMode(mode).Classify(ctx, shop, d)
	if err != nil {
		return result, err
	}
	result.Outcome = outcome
	return result, nil
}

// Remove deletes every local row of a discount.
func (r *Reprocessor) Remove(ctx context.Context, shop, id string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := r.repo.DeleteDiscounts(ctx, tx, shop, []string{id})
		n = deleted
		return err
	})
	if err != nil {
		return 0, domain.NewOpError("remove", domain.KindStorage, err)
	}
	r.log.Info("discount removed", zap.String("shop", shop), zap.String("discount_id", id), zap.Int64("rows", n))
	return n, nil
}

// ReprocessAll walks every upstream discount of the shop. Backfill runs
// before and after the walk. Item failures are counted, not returned.
func (r *Reprocessor) ReprocessAll(ctx context.Context, shop string, mode domain.Mode) (domain.ReprocessResult, error) {
	var result domain.ReprocessResult
	if strings.TrimSpace(shop) == "" {
		return result, domain.NewOpError("reprocess", domain.KindInvalidInput, domain.ErrInvalidShop)
	}

	release, err := r.lock(ctx, shop)
	if err != nil {
		return result, err
	}
	defer release()

	before, err := r.reconciler.Reconcile(ctx, shop)
	if err != nil {
		r.log.Warn("pre-walk backfill failed", zap.String("shop", shop), zap.Error(err))
	}
	result.Backfilled += before.Backfilled

	ids, truncated, err := r.gateway.ListDiscountIDs(ctx, shop)
	if err != nil {
		return result, domain.NewOpError("reprocess", domain.KindUpstream, err)
	}
	if truncated {
		r.log.Warn("discount listing truncated", zap.String("shop", shop), zap.Int("listed", len(ids)))
	}

	result.Total = len(ids)
	if err := r.walk(ctx, shop, ids, mode, false, scopeAll, &result); err != nil {
		return result, err
	}

	after, err := r.reconciler.Reconcile(ctx, shop)
	if err != nil {
		r.log.Warn("post-walk backfill failed", zap.String("shop", shop), zap.Error(err))
	}
	result.Backfilled += after.Backfilled

	r.log.Info("reprocess finished",
		zap.String("shop", shop),
		zap.String("mode", mode.String()),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("added", result.Added),
		zap.Int("deleted", result.Deleted),
		zap.Int("backfilled", result.Backfilled),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ReprocessProduct refreshes the discounts that reference productID.
func (r *Reprocessor) ReprocessProduct(ctx context.Context, shop, productID string) (domain.ReprocessResult, error) {
	ids, err := r.repo.DiscountIDsByProduct(ctx, r.db, shop, productID)
	if err != nil {
		return domain.ReprocessResult{}, domain.NewOpError("reprocess_product", domain.KindStorage, err)
	}
	return r.reprocessSubset(ctx, shop, ids, scopeProduct)
}

// ReprocessCollection refreshes the discounts that target collectionID.
func (r *Reprocessor) ReprocessCollection(ctx context.Context, shop, collectionID string) (domain.ReprocessResult, error) {
	ids, err := r.repo.DiscountIDsByCollection(ctx, r.db, shop, collectionID)
	if err != nil {
		return domain.ReprocessResult{}, domain.NewOpError("reprocess_collection", domain.KindStorage, err)
	}
	return r.reprocessSubset(ctx, shop, ids, scopeCollection)
}

func (r *Reprocessor) reprocessSubset(ctx context.Context, shop string, ids []string, scope string) (domain.ReprocessResult, error) {
	result := domain.ReprocessResult{Total: len(ids)}
	err := r.walk(ctx, shop, ids, domain.Routine, true, scope, &result)
	return result, err
}

func (r *Reprocessor) walk(ctx context.Context, shop string, ids []string, mode domain.Mode, forceRefresh bool, scope string, result *domain.ReprocessResult) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.syncOne(ctx, shop, id, mode, forceRefresh)
		if err != nil {
			result.Failed++
			r.metrics.IncReprocessItem(scope, "failed")
			r.log.Warn("reprocess item failed",
				zap.String("shop", shop),
				zap.String("discount_id", id),
				zap.String("kind", domain.KindOf(err).String()),
				zap.Error(err),
			)
			continue
		}

		result.Processed++
		outcome := "updated"
		switch {
		case res.Outcome.Deleted:
			outcome = "deleted"
			if res.Existed {
				result.Deleted++
			}
		case res.Existed:
			result.Updated++
		default:
			outcome = "added"
			result.Added++
		}
		r.metrics.IncReprocessItem(scope, outcome)
	}
	return nil
}

func (r *Reprocessor) lock(ctx context.Context, shop string) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	key := reprocessLockPrefix + strings.ToLower(shop)
	token, ok, err := r.locker.TryLock(ctx, key, reprocessLockTTL)
	if err != nil {
		return nil, domain.NewOpError("reprocess", domain.KindConflict, err)
	}
	if !ok {
		return nil, domain.NewOpError("reprocess", domain.KindConflict, domain.ErrReprocessRunning)
	}
	return func() {
		// release must outlive a cancelled walk
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.locker.Release(releaseCtx, key, token); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("reprocess lock release failed", zap.String("shop", shop), zap.Error(err))
		}
	}, nil
}
