package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/promosync/internal/discount/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var discountUpdateColumns = []string{
	"numeric_id", "title", "status", "kind", "class", "method", "starts_at", "ends_at",
	"value_type", "percentage", "amount_minor", "currency",
	"applies_on_one_time_purchase", "applies_on_subscription", "target_type",
	"has_minimum_requirement", "all_customers", "summary", "payload",
	"upstream_updated_at", "updated_at",
}

var liveUpdateColumns = []string{
	"title", "status", "exclusion_reason", "exclusion_details", "kind",
	"value_type", "percentage", "amount_minor", "currency",
	"starts_at", "ends_at", "summary", "updated_at",
}

var shopIDColumns = []clause.Column{{Name: "shop"}, {Name: "id"}}

func (r *repo) UpsertDiscount(ctx context.Context, db *gorm.DB, d *domain.Discount) error {
	if d == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   shopIDColumns,
		DoUpdates: clause.AssignmentColumns(discountUpdateColumns),
	}).Create(d).Error
}

func (r *repo) ReplaceJunctions(ctx context.Context, db *gorm.DB, shop, discountID string, j domain.Junctions) error {
	tx := db.WithContext(ctx)
	for _, model := range []any{
		&domain.DiscountTarget{},
		&domain.DiscountProduct{},
		&domain.DiscountVariant{},
		&domain.DiscountCode{},
	} {
		if err := tx.Where("shop = ? AND discount_id = ?", shop, discountID).Delete(model).Error; err != nil {
			return err
		}
	}

	if len(j.Targets) > 0 {
		if err := tx.CreateInBatches(j.Targets, 500).Error; err != nil {
			return err
		}
	}
	if len(j.Products) > 0 {
		if err := tx.CreateInBatches(j.Products, 500).Error; err != nil {
			return err
		}
	}
	if len(j.Variants) > 0 {
		if err := tx.CreateInBatches(j.Variants, 500).Error; err != nil {
			return err
		}
	}
	if len(j.Codes) > 0 {
		if err := tx.CreateInBatches(j.Codes, 500).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindDiscount(ctx context.Context, db *gorm.DB, shop, id string) (*domain.Discount, error) {
	var d domain.Discount
	err := db.WithContext(ctx).Where("shop = ? AND id = ?", shop, id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) DeleteDiscounts(ctx context.Context, db *gorm.DB, shop string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := db.WithContext(ctx)
	for _, model := range []any{
		&domain.DiscountTarget{},
		&domain.DiscountProduct{},
		&domain.DiscountVariant{},
		&domain.DiscountCode{},
	} {
		if err := tx.Where("shop = ? AND discount_id IN ?", shop, ids).Delete(model).Error; err != nil {
			return 0, err
		}
	}

	var total int64
	for _, model := range []any{&domain.LiveDiscount{}, &domain.Discount{}} {
		res := tx.Where("shop = ? AND id IN ?", shop, ids).Delete(model)
		if res.Error != nil {
			return 0, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *repo) FindLive(ctx context.Context, db *gorm.DB, shop, id string) (*domain.LiveDiscount, error) {
	var l domain.LiveDiscount
	err := db.WithContext(ctx).Where("shop = ? AND id = ?", shop, id).Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repo) UpsertLive(ctx context.Context, db *gorm.DB, l *domain.LiveDiscount) error {
	if l == nil {
		return gorm.ErrInvalidData
	}
	if err := l.Validate(); err != nil {
		return err
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   shopIDColumns,
		DoUpdates: clause.AssignmentColumns(liveUpdateColumns),
	}).Create(l).Error
}

func (r *repo) UpdateLiveStatus(ctx context.Context, db *gorm.DB, shop, id string, status domain.LiveStatus, at time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE live_discounts
		 SET status = ?, exclusion_reason = NULL, exclusion_details = NULL, updated_at = ?
		 WHERE shop = ? AND id = ?`,
		status,
		at,
		shop,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) ListLiveForProduct(ctx context.Context, db *gorm.DB, shop, productID string, status domain.LiveStatus) ([]domain.LiveDiscount, error) {
	var items []domain.LiveDiscount
	err := db.WithContext(ctx).Raw(
		`SELECT l.* FROM live_discounts l
		 JOIN discounts d ON d.shop = l.shop AND d.id = l.id
		 WHERE l.shop = ? AND l.status = ?
		   AND (d.target_type = ? OR EXISTS (
		     SELECT 1 FROM discount_products p
		     WHERE p.shop = l.shop AND p.discount_id = l.id AND p.product_id = ?))
		 ORDER BY l.id ASC`,
		shop,
		status,
		domain.TargetTypeAll,
		productID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// VariantScopes returns the targeted variant ids of the discounts that reach
// the product only through variants. Discounts covering the whole product are
// absent from the result.
func (r *repo) VariantScopes(ctx context.Context, db *gorm.DB, shop, productID string, discountIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(discountIDs) == 0 {
		return out, nil
	}
	var rows []domain.DiscountTarget
	err := db.WithContext(ctx).Raw(
		`SELECT t.* FROM discount_targets t
		 JOIN discount_products p
		   ON p.shop = t.shop AND p.discount_id = t.discount_id
		  AND p.product_id = ? AND p.variant_scoped = ?
		 WHERE t.shop = ? AND t.target_kind = ? AND t.discount_id IN ?
		 ORDER BY t.discount_id ASC, t.target_id ASC`,
		productID,
		true,
		shop,
		domain.ScopeVariants,
		discountIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DiscountID] = append(out[row.DiscountID], row.TargetID)
	}
	return out, nil
}

func (r *repo) ListExpiredIDs(ctx context.Context, db *gorm.DB, shop string, now time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM discounts
		 WHERE shop = ? AND ((ends_at IS NOT NULL AND ends_at < ?) OR UPPER(status) = ?)
		 UNION
		 SELECT id FROM live_discounts
		 WHERE shop = ? AND ends_at IS NOT NULL AND ends_at < ?`,
		shop,
		now,
		domain.UpstreamStatusExpired,
		shop,
		now,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListOrphans(ctx context.Context, db *gorm.DB, shop string) ([]domain.Discount, error) {
	var items []domain.Discount
	err := db.WithContext(ctx).Raw(
		`SELECT d.* FROM discounts d
		 WHERE d.shop = ? AND NOT EXISTS (
		   SELECT 1 FROM live_discounts l WHERE l.shop = d.shop AND l.id = d.id)
		 ORDER BY d.id ASC`,
		shop,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FirstProductID(ctx context.Context, db *gorm.DB, shop, discountID string) (string, error) {
	var id string
	err := db.WithContext(ctx).Raw(
		`SELECT product_id FROM discount_products
		 WHERE shop = ? AND discount_id = ? ORDER BY product_id ASC LIMIT 1`,
		shop,
		discountID,
	).Scan(&id).Error
	return id, err
}

func (r *repo) FirstVariantID(ctx context.Context, db *gorm.DB, shop, discountID string) (string, error) {
	var id string
	err := db.WithContext(ctx).Raw(
		`SELECT target_id FROM discount_targets
		 WHERE shop = ? AND discount_id = ? AND target_kind = ? ORDER BY target_id ASC LIMIT 1`,
		shop,
		discountID,
		domain.ScopeVariants,
	).Scan(&id).Error
	return id, err
}

func (r *repo) CountDiscounts(ctx context.Context, db *gorm.DB, shop string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Discount{}).Where("shop = ?", shop).Count(&n).Error
	return n, err
}

func (r *repo) CountLive(ctx context.Context, db *gorm.DB, shop string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.LiveDiscount{}).Where("shop = ?", shop).Count(&n).Error
	return n, err
}

func (r *repo) DiscountIDsByProduct(ctx context.Context, db *gorm.DB, shop, productID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(
		`SELECT discount_id FROM discount_products WHERE shop = ? AND product_id = ?
		 UNION
		 SELECT discount_id FROM discount_targets WHERE shop = ? AND target_kind = ? AND target_id = ?
		 ORDER BY discount_id ASC`,
		shop,
		productID,
		shop,
		domain.ScopeProducts,
		productID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) DiscountIDsByCollection(ctx context.Context, db *gorm.DB, shop, collectionID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT discount_id FROM discount_targets
		 WHERE shop = ? AND target_kind = ? AND target_id = ?
		 ORDER BY discount_id ASC`,
		shop,
		domain.ScopeCollections,
		collectionID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListShops(ctx context.Context, db *gorm.DB) ([]string, error) {
	var shops []string
	err := db.WithContext(ctx).Raw(
		`SELECT shop FROM discounts
		 UNION
		 SELECT shop FROM live_discounts
		 ORDER BY shop ASC`,
	).Scan(&shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}
