package shopify

import (
	"github.com/smallbiznis/promosync/internal/config"
	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("shopify",
	fx.Provide(func(db *gorm.DB) CredentialSource { return NewSessionStore(db) }),
	fx.Provide(func(cfg config.Config, creds CredentialSource, limits config.LimitsSource, log *zap.Logger, m *metrics.SyncMetrics) Querier {
		return NewClient(cfg.Shopify, creds, limits, log, m)
	}),
	fx.Provide(NewGateway),
	fx.Provide(func(g *Gateway) domain.Gateway { return g }),
)
