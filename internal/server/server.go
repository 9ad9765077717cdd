package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/promosync/internal/config"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability"
	obsmiddleware "github.com/smallbiznis/promosync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/promosync/internal/observability/metrics"
	obstracing "github.com/smallbiznis/promosync/internal/observability/tracing"
	"github.com/smallbiznis/promosync/internal/pricing"
	"github.com/smallbiznis/promosync/internal/ratelimit"
	"github.com/smallbiznis/promosync/internal/storefront"
	tierdomain "github.com/smallbiznis/promosync/internal/tier/domain"
	webhookdomain "github.com/smallbiznis/promosync/internal/webhook/domain"
	webhookservice "github.com/smallbiznis/promosync/internal/webhook/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(func(s *webhookservice.Service) WebhookIngester { return s }),
	fx.Provide(func(s *storefront.Service) BestDiscountFinder { return s }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// WebhookIngester verifies and applies change notifications.
type WebhookIngester interface {
	Verify(payload []byte, signature string) error
	Ingest(ctx context.Context, env webhookdomain.Envelope) (webhookdomain.Result, error)
}

type BestDiscountFinder interface {
	BestForProduct(ctx context.Context, shop, productID string, variantID any, price int64) (pricing.Best, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	// discount ids are global ids and arrive path-escaped
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	webhooks       WebhookIngester
	storefront     BestDiscountFinder
	discounts      discountdomain.Service
	tiers          tierdomain.Service
	triggerLimiter *ratelimit.TriggerLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Webhooks       WebhookIngester
	Storefront     BestDiscountFinder
	Discounts      discountdomain.Service
	Tiers          tierdomain.Service
	TriggerLimiter *ratelimit.TriggerLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		webhooks:       p.Webhooks,
		storefront:     p.Storefront,
		discounts:      p.Discounts,
		tiers:          p.Tiers,
		triggerLimiter: p.TriggerLimiter,
	}

	svc.registerWebhookRoutes()
	svc.registerStorefrontRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/*topic", s.HandleWebhook)
}

func (s *Server) registerStorefrontRoutes() {
	sf := s.engine.Group("/storefront")

	sf.GET("/:shop/products/:productID/best", s.GetBestDiscount)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/shops/:shop")

	admin.Use(s.AdminAuthRequired())

	admin.POST("/reprocess", s.TriggerRateLimit("reprocess"), s.Reprocess)
	admin.POST("/reconcile", s.TriggerRateLimit("reconcile"), s.Reconcile)
	admin.POST("/sweep", s.TriggerRateLimit("sweep"), s.Sweep)

	admin.GET("/tier", s.GetTier)
	admin.PUT("/tier", s.SetTier)

	admin.PATCH("/live-discounts/:id", s.SetLiveStatus)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
