package repository

import (
	"context"
	"errors"
	"time"

	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/tier/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, shop string) (*domain.ShopTier, error) {
	var row domain.ShopTier
	err := db.WithContext(ctx).Where("shop = ?", shop).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) CreateIfMissing(ctx context.Context, db *gorm.DB, row *domain.ShopTier) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, shop string, tier domain.Tier, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE shop_tiers SET tier = ?, updated_at = ? WHERE shop = ?`,
		tier,
		at,
		shop,
	).Error
}

func (r *repo) CountLive(ctx context.Context, db *gorm.DB, shop string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&discountdomain.LiveDiscount{}).
		Where("shop = ? AND status = ?", shop, discountdomain.StatusLive).
		Count(&n).Error
	return n, err
}
