package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Classifier decides the storefront status of a discount and persists it.
// It is bound to one Mode; WithMode returns a copy with another policy.
type Classifier struct {
	db      *gorm.DB
	repo    domain.Repository
	gate    domain.TierGate
	sweeper *Sweeper
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.SyncMetrics
	mode    domain.Mode
}

func NewClassifier(db *gorm.DB, repo domain.Repository, gate domain.TierGate, sweeper *Sweeper, clk clock.Clock, log *zap.Logger, m *metrics.SyncMetrics) *Classifier {
	return &Classifier{
		db:      db,
		repo:    repo,
		gate:    gate,
		sweeper: sweeper,
		clock:   clk,
		log:     log.Named("discount.classifier"),
		metrics: m,
		mode:    domain.Routine,
	}
}

func (c *Classifier) WithMode(mode domain.Mode) *Classifier {
	clone := *c
	clone.mode = mode
	return &clone
}

func (c *Classifier) Mode() domain.Mode { return c.mode }

// Classify applies the status rules in priority order. Tier lookups that fail
// exclude the discount instead of failing the call.
func (c *Classifier) Classify(ctx context.Context, shop string, d *domain.RemoteDiscount) (out domain.Outcome, err error) {
	if d == nil || strings.TrimSpace(d.ID) == "" {
		return out, domain.NewOpError("classify", domain.KindInvalidInput, domain.ErrInvalidID)
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("classifier panic", zap.String("discount_id", d.ID), zap.Any("panic", r))
			err = domain.NewOpError("classify", domain.KindUnknown, fmt.Errorf("panic: %v", r))
		}
	}()

	now := c.clock.Now()
	if d.IsExpired(now) {
		n, err := c.deleteExpired(ctx, shop, d.ID)
		if err != nil {
			return out, domain.NewOpError("classify", domain.KindStorage, err)
		}
		c.log.Info("expired discount removed", zap.String("shop", shop), zap.String("discount_id", d.ID), zap.Int64("rows", n))
		c.metrics.IncClassification("deleted", "expired")
		out.Deleted = true
		return out, nil
	}

	status, reason := c.evaluate(ctx, shop, d, now)

	existing, err := c.repo.FindLive(ctx, c.db, shop, d.ID)
	if err != nil {
		return out, domain.NewOpError("classify", domain.KindStorage, err)
	}
	if reason == nil {
		status = c.applyPolicy(ctx, shop, d.ID, status, existing)
	}

	row := liveRow(shop, d, status, reason, now)
	if existing != nil {
		row.CreatedAt = existing.CreatedAt
	}
	if err := c.repo.UpsertLive(ctx, c.db, row); err != nil {
		return out, domain.NewOpError("classify", domain.KindStorage, err)
	}

	reasonLabel := ""
	if reason != nil {
		reasonLabel = string(*reason)
	}
	c.metrics.IncClassification(string(status), reasonLabel)

	out.Status = status
	out.Reason = reason
	out.Persisted = true
	out.Swept = c.sweeper.Sweep(ctx, shop)
	return out, nil
}

func (c *Classifier) deleteExpired(ctx context.Context, shop, id string) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := c.repo.DeleteDiscounts(ctx, tx, shop, []string{id})
		n = deleted
		return err
	})
	return n, err
}

// evaluate runs the exclusion rules and computes the base status.
func (c *Classifier) evaluate(ctx context.Context, shop string, d *domain.RemoteDiscount, now time.Time) (domain.LiveStatus, *domain.ExclusionReason) {
	switch {
	case d.Class != domain.ClassProduct:
		return excluded(domain.StatusNotSupported, domain.ReasonNotProductDiscount)
	case d.Method == domain.MethodBuyXGetY:
		return excluded(domain.StatusNotSupported, domain.ReasonBuyXGetY)
	case !d.AllCustomers:
		return excluded(domain.StatusNotSupported, domain.ReasonCustomerSegment)
	case d.HasMinimumRequirement:
		return excluded(domain.StatusNotSupported, domain.ReasonMinimumRequirement)
	}

	eval, err := c.gate.Evaluate(ctx, shop, d)
	if err != nil {
		c.log.Warn("tier check failed", zap.String("shop", shop), zap.String("discount_id", d.ID), zap.Error(err))
		return excluded(domain.StatusNotSupported, domain.ReasonTierCheckFailed)
	}
	if eval.AppliesOnSubscription && !eval.IsAdvanced {
		return excluded(domain.StatusUpgradeRequired, domain.ReasonSubscriptionTier)
	}
	if eval.HasVariantTargets && !eval.IsAdvanced {
		return excluded(domain.StatusUpgradeRequired, domain.ReasonVariantTier)
	}
	if _, fixed := d.Value.(domain.FixedAmount); fixed && !eval.IsBasicOrHigher {
		return excluded(domain.StatusUpgradeRequired, domain.ReasonFixedAmountTier)
	}

	switch {
	case d.StartsAt.After(now):
		return domain.StatusScheduled, nil
	case d.IsActive() && (d.EndsAt == nil || d.EndsAt.After(now)):
		return domain.StatusLive, nil
	}
	return domain.StatusHidden, nil
}

// applyPolicy overlays the mode on a base status.
func (c *Classifier) applyPolicy(ctx context.Context, shop, id string, base domain.LiveStatus, existing *domain.LiveDiscount) domain.LiveStatus {
	if c.mode.PreservesExisting() {
		if existing != nil && existing.Status.Toggleable() {
			return existing.Status
		}
		return domain.StatusHidden
	}

	if base != domain.StatusLive || (existing != nil && existing.Status == domain.StatusLive) {
		return base
	}
	ok, err := c.gate.CanCreateLive(ctx, shop)
	if err != nil {
		c.log.Warn("live quota check failed", zap.String("shop", shop), zap.String("discount_id", id), zap.Error(err))
		return domain.StatusHidden
	}
	if !ok {
		c.log.Info("live quota reached, discount hidden", zap.String("shop", shop), zap.String("discount_id", id))
		return domain.StatusHidden
	}
	return base
}

func excluded(status domain.LiveStatus, reason domain.ExclusionReason) (domain.LiveStatus, *domain.ExclusionReason) {
	return status, &reason
}

func liveRow(shop string, d *domain.RemoteDiscount, status domain.LiveStatus, reason *domain.ExclusionReason, now time.Time) *domain.LiveDiscount {
	row := &domain.LiveDiscount{
		Shop:      shop,
		ID:        d.ID,
		Title:     d.Title,
		Status:    status,
		Kind:      d.Kind(),
		StartsAt:  d.StartsAt,
		EndsAt:    d.EndsAt,
		Summary:   d.Summary,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if reason != nil {
		details := reason.Details()
		row.ExclusionReason = reason
		row.ExclusionDetails = &details
	}
	row.ValueType, row.Percentage, row.AmountMinor, row.Currency = valueColumns(d.Value)
	return row
}
