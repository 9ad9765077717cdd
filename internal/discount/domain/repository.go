package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Junctions is the full set of junction rows written for one discount.
type Junctions struct {
	Targets  []DiscountTarget
	Products []DiscountProduct
	Variants []DiscountVariant
	Codes    []DiscountCode
}

type Repository interface {
	UpsertDiscount(ctx context.Context, db *gorm.DB, d *Discount) error
	ReplaceJunctions(ctx context.Context, db *gorm.DB, shop, discountID string, j Junctions) error
	FindDiscount(ctx context.Context, db *gorm.DB, shop, id string) (*Discount, error)
	DeleteDiscounts(ctx context.Context, db *gorm.DB, shop string, ids []string) (int64, error)

	FindLive(ctx context.Context, db *gorm.DB, shop, id string) (*LiveDiscount, error)
	UpsertLive(ctx context.Context, db *gorm.DB, l *LiveDiscount) error
	UpdateLiveStatus(ctx context.Context, db *gorm.DB, shop, id string, status LiveStatus, at time.Time) error
	ListLiveForProduct(ctx context.Context, db *gorm.DB, shop, productID string, status LiveStatus) ([]LiveDiscount, error)
	VariantScopes(ctx context.Context, db *gorm.DB, shop, productID string, discountIDs []string) (map[string][]string, error)

	ListExpiredIDs(ctx context.Context, db *gorm.DB, shop string, now time.Time) ([]string, error)
	ListOrphans(ctx context.Context, db *gorm.DB, shop string) ([]Discount, error)
	FirstProductID(ctx context.Context, db *gorm.DB, shop, discountID string) (string, error)
	FirstVariantID(ctx context.Context, db *gorm.DB, shop, discountID string) (string, error)
	CountDiscounts(ctx context.Context, db *gorm.DB, shop string) (int64, error)
	CountLive(ctx context.Context, db *gorm.DB, shop string) (int64, error)

	DiscountIDsByProduct(ctx context.Context, db *gorm.DB, shop, productID string) ([]string, error)
	DiscountIDsByCollection(ctx context.Context, db *gorm.DB, shop, collectionID string) ([]string, error)
	ListShops(ctx context.Context, db *gorm.DB) ([]string, error)
}
