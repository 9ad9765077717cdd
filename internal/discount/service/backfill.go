package service

import (
	"context"

	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler creates live rows for stored discounts that have none, using
// only stored columns.
type Reconciler struct {
	db         *gorm.DB
	repo       domain.Repository
	classifier *Classifier
	log        *zap.Logger
	metrics    *metrics.SyncMetrics
}

func NewReconciler(db *gorm.DB, repo domain.Repository, classifier *Classifier, log *zap.Logger, m *metrics.SyncMetrics) *Reconciler {
	return &Reconciler{
		db:         db,
		repo:       repo,
		classifier: classifier.WithMode(domain.Routine),
		log:        log.Named("discount.reconciler"),
		metrics:    m,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, shop string) (domain.ReconcileResult, error) {
	orphans, err := r.repo.ListOrphans(ctx, r.db, shop)
	if err != nil {
		return domain.ReconcileResult{}, domain.NewOpError("reconcile", domain.KindStorage, err)
	}

	var result domain.ReconcileResult
	for i := range orphans {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		row := &orphans[i]
		synthesized, err := r.synthesize(ctx, row)
		if err != nil {
			r.log.Warn("backfill synthesis failed", zap.String("shop", shop), zap.String("discount_id", row.ID), zap.Error(err))
			continue
		}
		out, err := r.classifier.Classify(ctx, shop, synthesized)
		if err != nil {
			r.log.Warn("backfill classification failed", zap.String("shop", shop), zap.String("discount_id", row.ID), zap.Error(err))
			continue
		}
		// Expired orphans are deleted rather than backfilled.
		if !out.Persisted {
			continue
		}
		result.Backfilled++
	}

	if result.Backfilled > 0 {
		r.metrics.AddBackfilled(result.Backfilled)
		r.log.Info("backfilled live discounts", zap.String("shop", shop), zap.Int("backfilled", result.Backfilled))
	}
	return result, nil
}

// HasDrift reports whether stored discounts outnumber live rows.
func (r *Reconciler) HasDrift(ctx context.Context, shop string) (bool, error) {
	discounts, err := r.repo.CountDiscounts(ctx, r.db, shop)
	if err != nil {
		return false, err
	}
	live, err := r.repo.CountLive(ctx, r.db, shop)
	if err != nil {
		return false, err
	}
	return discounts > live, nil
}

// synthesize rebuilds the fields the classifier reads. One stored product or
// variant id stands in for the full scope.
func (r *Reconciler) synthesize(ctx context.Context, row *domain.Discount) (*domain.RemoteDiscount, error) {
	d := &domain.RemoteDiscount{
		ID:                       row.ID,
		Title:                    row.Title,
		Status:                   row.Status,
		Summary:                  row.Summary,
		Class:                    row.Class,
		Method:                   row.Method,
		StartsAt:                 row.StartsAt,
		EndsAt:                   row.EndsAt,
		Value:                    valueFromColumns(row.ValueType, row.Percentage, row.AmountMinor, row.Currency),
		AppliesOnOneTimePurchase: row.AppliesOnOneTimePurchase,
		AppliesOnSubscription:    row.AppliesOnSubscription,
		HasMinimumRequirement:    row.HasMinimumRequirement,
		AllCustomers:             row.AllCustomers,
	}

	switch row.TargetType {
	case domain.TargetTypeAll:
		d.Scope = domain.Scope{domain.AllItems{}}
	case domain.TargetTypeVariant:
		variantID, err := r.repo.FirstVariantID(ctx, r.db, row.Shop, row.ID)
		if err != nil {
			return nil, err
		}
		if variantID != "" {
			d.Scope = domain.Scope{domain.Variants{IDs: []string{variantID}}}
		}
	case domain.TargetTypeProduct, domain.TargetTypeCollection:
		productID, err := r.repo.FirstProductID(ctx, r.db, row.Shop, row.ID)
		if err != nil {
			return nil, err
		}
		if productID != "" {
			d.Scope = domain.Scope{domain.Products{IDs: []string{productID}}}
		}
	}
	return d, nil
}
