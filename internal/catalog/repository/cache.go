package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/promosync/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductCache is the database-backed product cache.
type ProductCache struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProductCache(db *gorm.DB) *ProductCache {
	return &ProductCache{db: db, now: time.Now}
}

func (c *ProductCache) Get(ctx context.Context, key string) (domain.ProductSnapshot, bool, error) {
	var row domain.Product
	err := c.db.WithContext(ctx).Where("cache_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ProductSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ProductSnapshot{}, false, err
	}
	if row.ExpiresAt != nil && !c.now().Before(*row.ExpiresAt) {
		return domain.ProductSnapshot{}, false, nil
	}
	return domain.ProductSnapshot{
		Shop:       row.Shop,
		ProductID:  row.ProductID,
		VariantIDs: []string(row.VariantIDs),
		Truncated:  row.Truncated,
		FetchedAt:  row.FetchedAt,
	}, true, nil
}

func (c *ProductCache) Put(ctx context.Context, key string, s domain.ProductSnapshot, ttl time.Duration) error {
	row := domain.Product{
		CacheKey:   key,
		Shop:       s.Shop,
		ProductID:  s.ProductID,
		VariantIDs: nonNil(s.VariantIDs),
		Truncated:  s.Truncated,
		FetchedAt:  s.FetchedAt,
		ExpiresAt:  expiry(c.now(), ttl),
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"variant_ids", "truncated", "fetched_at", "expires_at"}),
	}).Create(&row).Error
}

func (c *ProductCache) Delete(ctx context.Context, key string) error {
	return c.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&domain.Product{}).Error
}

// CollectionCache is the database-backed collection cache.
type CollectionCache struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCollectionCache(db *gorm.DB) *CollectionCache {
	return &CollectionCache{db: db, now: time.Now}
}

func (c *CollectionCache) Get(ctx context.Context, key string) (domain.CollectionSnapshot, bool, error) {
	var row domain.Collection
	err := c.db.WithContext(ctx).Where("cache_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CollectionSnapshot{}, false, nil
	}
	if err != nil {
		return domain.CollectionSnapshot{}, false, err
	}
	if row.ExpiresAt != nil && !c.now().Before(*row.ExpiresAt) {
		return domain.CollectionSnapshot{}, false, nil
	}
	return domain.CollectionSnapshot{
		Shop:         row.Shop,
		CollectionID: row.CollectionID,
		ProductIDs:   []string(row.ProductIDs),
		Truncated:    row.Truncated,
		FetchedAt:    row.FetchedAt,
	}, true, nil
}

func (c *CollectionCache) Put(ctx context.Context, key string, s domain.CollectionSnapshot, ttl time.Duration) error {
	row := domain.Collection{
		CacheKey:     key,
		Shop:         s.Shop,
		CollectionID: s.CollectionID,
		ProductIDs:   nonNil(s.ProductIDs),
		Truncated:    s.Truncated,
		FetchedAt:    s.FetchedAt,
		ExpiresAt:    expiry(c.now(), ttl),
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_ids", "truncated", "fetched_at", "expires_at"}),
	}).Create(&row).Error
}

func (c *CollectionCache) Delete(ctx context.Context, key string) error {
	return c.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&domain.Collection{}).Error
}

func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl).UTC()
	return &at
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
