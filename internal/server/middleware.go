package server

import (
	"crypto/subtle"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/promosync/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderShopDomain  = "X-Shopify-Shop-Domain"
	HeaderWebhookID   = "X-Shopify-Webhook-Id"
	HeaderTriggeredAt = "X-Shopify-Triggered-At"
	HeaderHmac        = "X-Shopify-Hmac-Sha256"
	HeaderTopic       = "X-Shopify-Topic"

	contextWebhookTopicKey = "webhook_topic"
)

// AdminAuthRequired accepts requests carrying the configured admin bearer
// token. With no token configured the admin surface is closed.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.AdminToken)
		if expected == "" {
			AbortWithError(c, ErrForbidden)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// TriggerRateLimit paces manual triggers of action per shop.
func (s *Server) TriggerRateLimit(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.triggerLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		allowed, retryAfter, err := s.triggerLimiter.Allow(ctx, c.Param("shop"), action)
		if err != nil {
			logger.FromContext(ctx).Warn("admin trigger rate limit check failed", zap.String("action", action), zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}
