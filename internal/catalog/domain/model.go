package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

// ProductSnapshot is the cached variant set of one product.
type ProductSnapshot struct {
	Shop       string    `json:"shop"`
	ProductID  string    `json:"product_id"`
	VariantIDs []string  `json:"variant_ids"`
	Truncated  bool      `json:"truncated"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// CollectionSnapshot is the cached member product set of one collection.
type CollectionSnapshot struct {
	Shop         string    `json:"shop"`
	CollectionID string    `json:"collection_id"`
	ProductIDs   []string  `json:"product_ids"`
	Truncated    bool      `json:"truncated"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Product is the database row behind the product cache.
type Product struct {
	CacheKey   string                      `gorm:"primaryKey;type:varchar(512)"`
	Shop       string                      `gorm:"type:varchar(255);not null;index"`
	ProductID  string                      `gorm:"type:varchar(255);not null"`
	VariantIDs datatypes.JSONSlice[string] `gorm:"not null"`
	Truncated  bool                        `gorm:"not null"`
	FetchedAt  time.Time                   `gorm:"not null"`
	ExpiresAt  *time.Time
}

func (Product) TableName() string { return "catalog_products" }

type Collection struct {
	CacheKey     string                      `gorm:"primaryKey;type:varchar(512)"`
	Shop         string                      `gorm:"type:varchar(255);not null;index"`
	CollectionID string                      `gorm:"type:varchar(255);not null"`
	ProductIDs   datatypes.JSONSlice[string] `gorm:"not null"`
	Truncated    bool                        `gorm:"not null"`
	FetchedAt    time.Time                   `gorm:"not null"`
	ExpiresAt    *time.Time
}

func (Collection) TableName() string { return "catalog_collections" }

func Models() []any {
	return []any{&Product{}, &Collection{}}
}

// Fetcher reads catalog relations from the upstream platform.
type Fetcher interface {
	CollectionProducts(ctx context.Context, shop, collectionID string) ([]string, bool, error)
	VariantProduct(ctx context.Context, shop, variantID string) (string, error)
	ProductVariants(ctx context.Context, shop, productID string) ([]string, bool, error)
}
