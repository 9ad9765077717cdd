package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promosync/internal/catalog"
	"github.com/smallbiznis/promosync/internal/clock"
	"github.com/smallbiznis/promosync/internal/config"
	"github.com/smallbiznis/promosync/internal/discount"
	"github.com/smallbiznis/promosync/internal/migration"
	"github.com/smallbiznis/promosync/internal/observability"
	"github.com/smallbiznis/promosync/internal/ratelimit"
	"github.com/smallbiznis/promosync/internal/scheduler"
	"github.com/smallbiznis/promosync/internal/server"
	"github.com/smallbiznis/promosync/internal/shopify"
	"github.com/smallbiznis/promosync/internal/storefront"
	"github.com/smallbiznis/promosync/internal/tier"
	"github.com/smallbiznis/promosync/internal/webhook"
	"github.com/smallbiznis/promosync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,

		// Functional Domains
		shopify.Module,
		catalog.Module,
		tier.Module,
		discount.Module,
		storefront.Module,
		webhook.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
