package db

import (
	"context"
	"time"

	"github.com/smallbiznis/promosync/internal/config"
	obslogger "github.com/smallbiznis/promosync/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(ConfigFrom),
	fx.Provide(New),
)

// New opens the database, attaches tracing and pool metrics plugins and tunes the pool.
func New(lc fx.Lifecycle, cfg Config, appCfg config.Config, log *zap.Logger, queryLog *obslogger.GormLogger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	var queryLogger gormlogger.Interface = gormlogger.Discard
	if queryLog != nil {
		queryLogger = queryLog
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 queryLogger,
		TranslateError:         true,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, err
	}
	if cfg.Type != TypeSQLite {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.Name,
			RefreshInterval: 15,
			StartServer:     false,
			Labels:          map[string]string{"service": appCfg.AppName},
		})); err != nil {
			return nil, err
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				log.Info("closing database")
				return sqlDB.Close()
			},
		})
	}
	return conn, nil
}
