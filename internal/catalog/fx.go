package catalog

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/promosync/internal/cache"
	"github.com/smallbiznis/promosync/internal/catalog/domain"
	"github.com/smallbiznis/promosync/internal/catalog/repository"
	"github.com/smallbiznis/promosync/internal/config"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/shopify"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("catalog",
	fx.Provide(provideCaches),
	fx.Provide(func(g *shopify.Gateway) domain.Fetcher { return g }),
	fx.Provide(NewResolver),
	fx.Provide(func(r *Resolver) discountdomain.TargetResolver { return r }),
)

type cacheParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
}

type cacheResult struct {
	fx.Out

	Products    cache.Cache[domain.ProductSnapshot]
	Collections cache.Cache[domain.CollectionSnapshot]
}

func provideCaches(p cacheParams) (cacheResult, error) {
	switch p.Config.CacheBackend {
	case "", config.CacheBackendDB:
		return cacheResult{
			Products:    repository.NewProductCache(p.DB),
			Collections: repository.NewCollectionCache(p.DB),
		}, nil
	case config.CacheBackendRedis:
		if p.Redis == nil {
			return cacheResult{}, fmt.Errorf("cache backend %q requires REDIS_ADDR", p.Config.CacheBackend)
		}
		return cacheResult{
			Products:    cache.NewRedis[domain.ProductSnapshot](p.Redis, "product"),
			Collections: cache.NewRedis[domain.CollectionSnapshot](p.Redis, "collection"),
		}, nil
	case config.CacheBackendMemory:
		return cacheResult{
			Products:    cache.NewMemory[domain.ProductSnapshot](),
			Collections: cache.NewMemory[domain.CollectionSnapshot](),
		}, nil
	}
	return cacheResult{}, fmt.Errorf("unknown cache backend %q", p.Config.CacheBackend)
}
