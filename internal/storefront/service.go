// Package storefront serves the price-display read path over the LIVE projection.
package storefront

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/promosync/internal/clock"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/gid"
	"github.com/smallbiznis/promosync/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidProduct = errors.New("invalid_product_id")
	ErrInvalidPrice   = errors.New("invalid_price")
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  discountdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  discountdomain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("storefront.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// BestForProduct loads the LIVE discounts linked to the product and picks the
// best automatic and coupon discount for the given price and variant.
func (s *Service) BestForProduct(ctx context.Context, shop, productID string, variantID any, price int64) (pricing.Best, error) {
	if strings.TrimSpace(shop) == "" {
		return pricing.Best{}, discountdomain.ErrInvalidShop
	}
	if strings.TrimSpace(productID) == "" {
		return pricing.Best{}, ErrInvalidProduct
	}
	if price < 0 {
		return pricing.Best{}, ErrInvalidPrice
	}
	productID = gid.Normalize(gid.TypeProduct, productID)

	rows, err := s.repo.ListLiveForProduct(ctx, s.db, shop, productID, discountdomain.StatusLive)
	if err != nil {
		return pricing.Best{}, err
	}

	now := s.clock.Now()
	ids := make([]string, 0, len(rows))
	active := rows[:0]
	for _, row := range rows {
		if row.StartsAt.After(now) || (row.EndsAt != nil && !row.EndsAt.After(now)) {
			continue
		}
		active = append(active, row)
		ids = append(ids, row.ID)
	}

	variants, err := s.repo.VariantScopes(ctx, s.db, shop, productID, ids)
	if err != nil {
		return pricing.Best{}, err
	}

	var automatic, coupons []pricing.Discount
	for i := range active {
		d, ok := toPricing(&active[i], variants[active[i].ID])
		if !ok {
			continue
		}
		if d.Coupon {
			coupons = append(coupons, d)
		} else {
			automatic = append(automatic, d)
		}
	}

	best := pricing.ResolveBestDiscounts(automatic, coupons, price, variantID)
	s.log.Debug("best discount resolved",
		zap.String("shop", shop),
		zap.String("product_id", productID),
		zap.Int("automatic", len(automatic)),
		zap.Int("coupons", len(coupons)),
		zap.Bool("has_automatic", best.Automatic != nil),
		zap.Bool("has_coupon", best.Coupon != nil),
	)
	return best, nil
}

// toPricing converts a projection row. A non-empty variantIDs limits the
// discount to those variants of the product.
func toPricing(row *discountdomain.LiveDiscount, variantIDs []string) (pricing.Discount, bool) {
	d := pricing.Discount{
		ID:     row.ID,
		Title:  row.Title,
		Coupon: row.Kind == discountdomain.KindCode,
	}
	switch {
	case row.ValueType == nil:
		return d, false
	case *row.ValueType == discountdomain.ValueTypePercentage && row.Percentage != nil:
		d.ValueType = pricing.ValueTypePercentage
		d.Value = *row.Percentage
	case *row.ValueType == discountdomain.ValueTypeFixedAmount && row.AmountMinor != nil:
		d.ValueType = pricing.ValueTypeFixedAmount
		d.Value = float64(*row.AmountMinor)
		if row.Currency != nil {
			d.Currency = *row.Currency
		}
	default:
		return d, false
	}
	if len(variantIDs) > 0 {
		d.Variants = &pricing.VariantScope{Kind: pricing.ScopePartial, IDs: variantIDs}
	}
	return d, true
}
