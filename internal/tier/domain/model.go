package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Tier is a shop's subscription plan level.
type Tier string

const (
	TierFree     Tier = "FREE"
	TierBasic    Tier = "BASIC"
	TierAdvanced Tier = "ADVANCED"
)

var ErrInvalidTier = errors.New("invalid_tier")

func (t Tier) Rank() int {
	switch t {
	case TierBasic:
		return 1
	case TierAdvanced:
		return 2
	}
	return 0
}

func (t Tier) Valid() bool {
	return t == TierFree || t == TierBasic || t == TierAdvanced
}

// QuotaKey is the key of this tier in the configured quota map.
func (t Tier) QuotaKey() string {
	return strings.ToLower(string(t))
}

func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrInvalidTier
	}
	return t, nil
}

type ShopTier struct {
	Shop      string    `json:"shop" gorm:"primaryKey;type:varchar(255)"`
	Tier      Tier      `json:"tier" gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (ShopTier) TableName() string { return "shop_tiers" }

// Snapshot is the plan view of a shop. Quota 0 means unlimited.
type Snapshot struct {
	Shop             string `json:"shop"`
	Tier             Tier   `json:"tier"`
	Quota            int    `json:"quota"`
	CurrentLive      int64  `json:"current_live"`
	PendingDowngrade bool   `json:"pending_downgrade"`
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, shop string) (*ShopTier, error)
	CreateIfMissing(ctx context.Context, db *gorm.DB, row *ShopTier) error
	UpdateTier(ctx context.Context, db *gorm.DB, shop string, tier Tier, at time.Time) error
	CountLive(ctx context.Context, db *gorm.DB, shop string) (int64, error)
}

type Service interface {
	GetTier(ctx context.Context, shop string) (Snapshot, error)
	SetTier(ctx context.Context, shop string, tier Tier) (changed bool, err error)
	CanCreateLive(ctx context.Context, shop string) (bool, error)
}
