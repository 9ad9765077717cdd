package catalog

import (
	"context"

	"github.com/smallbiznis/promosync/internal/cache"
	"github.com/smallbiznis/promosync/internal/catalog/domain"
	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/config"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Resolver expands discount scopes into concrete product and variant ids,
// filling the product and collection caches on the way.
type Resolver struct {
	fetcher     domain.Fetcher
	products    cache.Cache[domain.ProductSnapshot]
	collections cache.Cache[domain.CollectionSnapshot]
	limits      config.LimitsSource
	clock       clock.Clock
	log         *zap.Logger

	group singleflight.Group
}

func NewResolver(
	fetcher domain.Fetcher,
	products cache.Cache[domain.ProductSnapshot],
	collections cache.Cache[domain.CollectionSnapshot],
	limits config.LimitsSource,
	clk clock.Clock,
	log *zap.Logger,
) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Resolver{
		fetcher:     fetcher,
		products:    products,
		collections: collections,
		limits:      limits,
		clock:       clk,
		log:         log.Named("catalog.resolver"),
	}
}

// Resolve returns nil, nil for non-product discounts and for discounts that
// carry no item scope or apply to every item.
func (r *Resolver) Resolve(ctx context.Context, shop string, d *discountdomain.RemoteDiscount, opts discountdomain.ResolveOptions) (*discountdomain.Targets, error) {
	if d == nil || d.Class != discountdomain.ClassProduct {
		return nil, nil
	}
	if d.Scope.IsEmpty() || d.Scope.AppliesToAll() {
		return nil, nil
	}

	targets := discountdomain.NewTargets()
	for _, entry := range d.Scope {
		switch e := entry.(type) {
		case discountdomain.Collections:
			for _, collectionID := range e.IDs {
				snapshot, err := r.collection(ctx, shop, collectionID, opts.ForceRefresh)
				if err != nil {
					return nil, err
				}
				targets.AddProduct(snapshot.ProductIDs...)
				targets.Truncated = targets.Truncated || snapshot.Truncated
			}
		case discountdomain.Products:
			targets.AddProduct(e.IDs...)
		case discountdomain.Variants:
			for _, variantID := range e.IDs {
				if err := r.expandVariant(ctx, shop, variantID, opts.ForceRefresh, targets); err != nil {
					return nil, err
				}
			}
		}
	}
	return targets, nil
}

func (r *Resolver) expandVariant(ctx context.Context, shop, variantID string, force bool, targets *discountdomain.Targets) error {
	targets.AddVariant(variantID)

	productID, err := r.fetcher.VariantProduct(ctx, shop, variantID)
	if err != nil {
		return err
	}
	if productID == "" {
		r.log.Warn("variant has no owning product",
			zap.String("shop", shop),
			zap.String("variant_id", variantID),
		)
		return nil
	}
	targets.AddVariantProduct(productID)

	snapshot, err := r.product(ctx, shop, productID, force)
	if err != nil {
		return err
	}
	targets.AddVariant(snapshot.VariantIDs...)
	targets.Truncated = targets.Truncated || snapshot.Truncated
	return nil
}

func (r *Resolver) collection(ctx context.Context, shop, collectionID string, force bool) (domain.CollectionSnapshot, error) {
	key := cache.Key("collection", shop, collectionID)
	if !force {
		if snapshot, ok := cachedGet(ctx, r.log, key, r.collections.Get); ok {
			return snapshot, nil
		}
	}

	v, err, _ := r.group.Do(flightKey(key, force), func() (any, error) {
		ids, truncated, err := r.fetcher.CollectionProducts(ctx, shop, collectionID)
		if err != nil {
			return domain.CollectionSnapshot{}, err
		}
		snapshot := domain.CollectionSnapshot{
			Shop:         shop,
			CollectionID: collectionID,
			ProductIDs:   ids,
			Truncated:    truncated,
			FetchedAt:    r.clock.Now(),
		}
		if truncated {
			r.warnTruncated(shop, "collection", collectionID)
		}
		if err := r.collections.Put(ctx, key, snapshot, r.limits.Limits().CacheTTL); err != nil {
			r.log.Warn("collection cache write failed", zap.String("key", key), zap.Error(err))
		}
		return snapshot, nil
	})
	if err != nil {
		return domain.CollectionSnapshot{}, err
	}
	return v.(domain.CollectionSnapshot), nil
}

func (r *Resolver) product(ctx context.Context, shop, productID string, force bool) (domain.ProductSnapshot, error) {
	key := cache.Key("product", shop, productID)
	if !force {
		if snapshot, ok := cachedGet(ctx, r.log, key, r.products.Get); ok {
			return snapshot, nil
		}
	}

	v, err, _ := r.group.Do(flightKey(key, force), func() (any, error) {
		ids, truncated, err := r.fetcher.ProductVariants(ctx, shop, productID)
		if err != nil {
			return domain.ProductSnapshot{}, err
		}
		snapshot := domain.ProductSnapshot{
			Shop:       shop,
			ProductID:  productID,
			VariantIDs: ids,
			Truncated:  truncated,
			FetchedAt:  r.clock.Now(),
		}
		if truncated {
			r.warnTruncated(shop, "product", productID)
		}
		if err := r.products.Put(ctx, key, snapshot, r.limits.Limits().CacheTTL); err != nil {
			r.log.Warn("product cache write failed", zap.String("key", key), zap.Error(err))
		}
		return snapshot, nil
	})
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	return v.(domain.ProductSnapshot), nil
}

func (r *Resolver) warnTruncated(shop, resource, id string) {
	r.log.Warn("catalog.resolver.truncated",
		zap.String("shop", shop),
		zap.String("resource", resource),
		zap.String("id", id),
		zap.Int("cap", r.limits.Limits().PaginationCap),
	)
}

// cachedGet reads through a cache getter. Read failures count as misses.
func cachedGet[T any](ctx context.Context, log *zap.Logger, key string, get func(context.Context, string) (T, bool, error)) (T, bool) {
	value, ok, err := get(ctx, key)
	if err != nil {
		log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		var zero T
		return zero, false
	}
	return value, ok
}

func flightKey(key string, force bool) string {
	if force {
		return key + "|force"
	}
	return key
}
